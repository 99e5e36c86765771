package domain

// Snapshot is a point-in-time bundle of supplier business records attached to
// a chat request for grounding. It is replaced wholesale on each update, never
// merged.
type Snapshot struct {
	BusinessClients []BusinessClient `json:"business_clients"`
	Orders          []Order          `json:"orders"`
	Settlements     []Settlement     `json:"settlements"`
	CreditRequests  []CreditRequest  `json:"credit_requests"`
}

// BusinessClient is a supplier's business customer in the credit program.
type BusinessClient struct {
	ClientID       string `json:"client_id"`
	CompanyName    string `json:"company_name"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	ApprovalStatus string `json:"approval_status"`
	Credit         Credit `json:"credit"`
}

// Credit holds a client's credit line figures.
type Credit struct {
	CreditLimit float64 `json:"credit_limit"`
	CreditUsed  float64 `json:"credit_used"`
}

// Order is a transaction placed by a business client.
type Order struct {
	ClientID        string  `json:"client_id"`
	Amount          float64 `json:"amount"`
	PaymentStatus   string  `json:"payment_status"`
	Created         int64   `json:"created"`
	ExternalOrderID string  `json:"external_order_id"`
	SupplierAccount string  `json:"supplier_account"`
	Currency        string  `json:"currency"`
	Status          string  `json:"status"`
}

// Settlement is a payout received by the supplier.
type Settlement struct {
	SettlementID    string  `json:"settlement_id"`
	Amount          float64 `json:"amount"`
	SettlementDate  int64   `json:"settlement_date"`
	SupplierAccount string  `json:"supplier_account"`
	Currency        string  `json:"currency"`
	Status          string  `json:"status"`
}

// CreditRequest is a pending credit application from a business client.
type CreditRequest struct {
	ClientID        string  `json:"client_id"`
	RequestTotal    float64 `json:"request_total"`
	Expires         int64   `json:"expires"`
	ExternalOrderID string  `json:"external_order_id"`
	SupplierAccount string  `json:"supplier_account"`
	Currency        string  `json:"currency"`
	Description     string  `json:"description"`
	Status          int     `json:"status"`
	Created         int64   `json:"created"`
}
