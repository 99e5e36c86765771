package usecase

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"crediflex-agent/internal/domain"
)

// maxTranscriptMessages bounds how much stored history is rendered into the
// upstream payload, independently of how much the store retains.
const maxTranscriptMessages = 10

const missingNamePlaceholder = "Sin nombre"

// statusLabels maps known approval statuses to their section labels.
// Unrecognized statuses pass through upper-cased.
var statusLabels = map[string]string{
	"active":    "ACTIVOS",
	"pending":   "PENDIENTES",
	"rejected":  "RECHAZADOS",
	"suspended": "SUSPENDIDOS",
}

var roleLabels = map[string]string{
	domain.RoleUser:      "Usuario",
	domain.RoleAssistant: "Asistente",
}

var currencyPrinter = message.NewPrinter(language.English)

// SummaryResult is the outcome of summarizing a business-data snapshot.
// Degraded marks a best-effort error description produced in place of a
// digest; a malformed snapshot must never abort the response pipeline, so the
// text is embedded in the context either way.
type SummaryResult struct {
	Text     string
	Degraded bool
}

// SummarizeBusinessData renders a deterministic, human-readable digest of the
// snapshot: clients grouped by approval status in first-seen order, then
// aggregate portfolio metrics.
func SummarizeBusinessData(snap domain.Snapshot) (result SummaryResult) {
	defer func() {
		if r := recover(); r != nil {
			result = SummaryResult{
				Text:     fmt.Sprintf("Error procesando datos: %v", r),
				Degraded: true,
			}
		}
	}()
	return SummaryResult{Text: renderDigest(snap)}
}

var renderDigest = renderBusinessDigest

func renderBusinessDigest(snap domain.Snapshot) string {
	var order []string
	groups := make(map[string][]string)
	for _, c := range snap.BusinessClients {
		status := c.ApprovalStatus
		if _, seen := groups[status]; !seen {
			order = append(order, status)
		}
		name := c.CompanyName
		if name == "" {
			name = missingNamePlaceholder
		}
		groups[status] = append(groups[status], name)
	}

	var b strings.Builder
	b.WriteString("RESUMEN DEL PROGRAMA DE CRÉDITO:\n\n")
	b.WriteString("CLIENTES POR STATUS DE APROBACIÓN:\n")
	for _, status := range order {
		names := groups[status]
		fmt.Fprintf(&b, "%s (%d):\n", statusLabel(status), len(names))
		for _, name := range names {
			fmt.Fprintf(&b, "  • %s\n", name)
		}
		b.WriteString("\n")
	}

	var totalRevenue float64
	for _, st := range snap.Settlements {
		totalRevenue += st.Amount
	}

	b.WriteString("MÉTRICAS GENERALES:\n")
	fmt.Fprintf(&b, "- Total clientes: %d\n", len(snap.BusinessClients))
	fmt.Fprintf(&b, "- Ingresos totales: %s\n", formatCurrency(totalRevenue))
	fmt.Fprintf(&b, "- Órdenes procesadas: %d", len(snap.Orders))

	return b.String()
}

// BuildContext composes the outbound payload in fixed order: recent
// transcript, snapshot digest, then the query. Omitted sections are skipped
// entirely; with no history and no snapshot the result is exactly the query.
func BuildContext(history []domain.Message, snap *domain.Snapshot, query string) string {
	var sections []string

	if len(history) > 0 {
		recent := history
		if len(recent) > maxTranscriptMessages {
			recent = recent[len(recent)-maxTranscriptMessages:]
		}
		lines := make([]string, 0, len(recent)+1)
		lines = append(lines, "CONVERSACIÓN PREVIA:")
		for _, m := range recent {
			lines = append(lines, roleLabel(m.Role)+": "+m.Content)
		}
		sections = append(sections, strings.Join(lines, "\n"))
	}

	if snap != nil {
		sections = append(sections, "DATOS DEL PROVEEDOR:\n"+SummarizeBusinessData(*snap).Text)
	}

	sections = append(sections, query)
	return strings.Join(sections, "\n\n")
}

func statusLabel(status string) string {
	if label, ok := statusLabels[status]; ok {
		return label
	}
	return strings.ToUpper(status)
}

func roleLabel(role string) string {
	if label, ok := roleLabels[role]; ok {
		return label
	}
	return role
}

// formatCurrency renders an amount as dollars with two decimals and thousands
// separators, e.g. 95060 -> "$95,060.00".
func formatCurrency(v float64) string {
	return "$" + currencyPrinter.Sprintf("%v", number.Decimal(v, number.Scale(2)))
}
