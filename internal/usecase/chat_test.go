package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"crediflex-agent/internal/domain"
)

type mockParams struct {
	vals  map[string]string
	err   error
	calls int
}

func (m *mockParams) GetParameter(_ context.Context, name string) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	v, ok := m.vals[name]
	if !ok {
		return "", fmt.Errorf("param not found: %s", name)
	}
	return v, nil
}

func testParams() *mockParams {
	return &mockParams{vals: map[string]string{
		"/crediflex/config/openai_model":    "gpt-4o-mini",
		"/crediflex/config/prompt_template": "pmpt_123",
	}}
}

type statusError struct {
	status int
}

func (e *statusError) Error() string       { return fmt.Sprintf("status %d", e.status) }
func (e *statusError) HTTPStatusCode() int { return e.status }

type mockLLM struct {
	answer     string
	responseID string
	err        error

	gotModel    string
	gotPromptID string
	gotInput    string
	calls       int
}

func (m *mockLLM) Respond(_ context.Context, model, promptID, input string) (string, string, error) {
	m.calls++
	m.gotModel = model
	m.gotPromptID = promptID
	m.gotInput = input
	return m.answer, m.responseID, m.err
}

type appendCall struct {
	id, role, content string
}

type mockThreads struct {
	thread    domain.Thread
	known     bool
	createdID string

	createCalls     int
	createWithID    []string
	appends         []appendCall
	setContextCalls []string
}

func (m *mockThreads) Create() string {
	m.createCalls++
	return m.createdID
}

func (m *mockThreads) CreateWithID(id string) {
	m.createWithID = append(m.createWithID, id)
	m.known = true
}

func (m *mockThreads) Get(id string) (domain.Thread, bool) {
	if !m.known {
		return domain.Thread{}, false
	}
	t := m.thread
	t.ID = id
	return t, true
}

func (m *mockThreads) Append(id, role, content string) {
	m.appends = append(m.appends, appendCall{id: id, role: role, content: content})
}

func (m *mockThreads) SetContext(id string, _ domain.Snapshot) {
	m.setContextCalls = append(m.setContextCalls, id)
}

func newTestService(t *testing.T, p *mockParams, llm *mockLLM, threads *mockThreads) *ChatService {
	t.Helper()
	svc, err := NewChatService(p, llm, threads, "/crediflex")
	require.NoError(t, err)
	return svc
}

func requireErrorCode(t *testing.T, err error, code ErrorCode) {
	t.Helper()
	var ucErr *Error
	require.ErrorAs(t, err, &ucErr)
	require.Equal(t, code, ucErr.Code)
}

func TestNewChatService_ValidatesDependencies(t *testing.T) {
	p, llm, threads := testParams(), &mockLLM{}, &mockThreads{}

	_, err := NewChatService(nil, llm, threads, "/crediflex")
	require.Error(t, err)
	_, err = NewChatService(p, nil, threads, "/crediflex")
	require.Error(t, err)
	_, err = NewChatService(p, llm, nil, "/crediflex")
	require.Error(t, err)
	_, err = NewChatService(p, llm, threads, "  ")
	require.Error(t, err)
}

func TestChat_EmptyQueryRejectedBeforeAnySideEffect(t *testing.T) {
	p, llm, threads := testParams(), &mockLLM{}, &mockThreads{}
	svc := newTestService(t, p, llm, threads)

	_, err := svc.Chat(context.Background(), ChatInput{Query: "   "})
	requireErrorCode(t, err, ErrorInvalidInput)
	require.Zero(t, llm.calls)
	require.Zero(t, threads.createCalls)
	require.Empty(t, threads.appends)
	require.Zero(t, p.calls)
}

func TestChat_NewThreadWhenNoIDSupplied(t *testing.T) {
	llm := &mockLLM{answer: "respuesta", responseID: "resp_1"}
	threads := &mockThreads{createdID: "gen-1", known: true}
	svc := newTestService(t, testParams(), llm, threads)

	out, err := svc.Chat(context.Background(), ChatInput{Query: "hola"})
	require.NoError(t, err)
	require.Equal(t, "gen-1", out.ThreadID)
	require.Equal(t, "respuesta", out.Answer)
	require.Equal(t, "resp_1", out.UpstreamResponseID)
	require.Equal(t, 1, threads.createCalls)
	require.Empty(t, threads.createWithID)
}

func TestChat_UnknownSuppliedIDRecreatedSilently(t *testing.T) {
	llm := &mockLLM{answer: "ok"}
	threads := &mockThreads{known: false}
	svc := newTestService(t, testParams(), llm, threads)

	out, err := svc.Chat(context.Background(), ChatInput{Query: "hola", ThreadID: "ghost-7"})
	require.NoError(t, err)
	require.Equal(t, "ghost-7", out.ThreadID)
	require.Equal(t, []string{"ghost-7"}, threads.createWithID)
	require.Zero(t, threads.createCalls)
}

func TestChat_AppendsUserThenAssistantTurn(t *testing.T) {
	llm := &mockLLM{answer: "claro"}
	threads := &mockThreads{createdID: "t1", known: true}
	svc := newTestService(t, testParams(), llm, threads)

	_, err := svc.Chat(context.Background(), ChatInput{Query: "hola"})
	require.NoError(t, err)
	require.Equal(t, []appendCall{
		{id: "t1", role: domain.RoleUser, content: "hola"},
		{id: "t1", role: domain.RoleAssistant, content: "claro"},
	}, threads.appends)
}

func TestChat_UpstreamPayloadCarriesHistoryRoleAndQueryLast(t *testing.T) {
	llm := &mockLLM{answer: "ok"}
	threads := &mockThreads{
		known: true,
		thread: domain.Thread{
			Messages: []domain.Message{
				{Role: domain.RoleUser, Content: "pregunta previa"},
				{Role: domain.RoleAssistant, Content: "respuesta previa"},
			},
		},
	}
	svc := newTestService(t, testParams(), llm, threads)

	_, err := svc.Chat(context.Background(), ChatInput{Query: "¿y ahora?", ThreadID: "t1", UserRole: "analyst"})
	require.NoError(t, err)
	require.Equal(t, "gpt-4o-mini", llm.gotModel)
	require.Equal(t, "pmpt_123", llm.gotPromptID)
	require.True(t, strings.HasPrefix(llm.gotInput, "ROL DEL USUARIO: analyst\n\n"))
	require.Contains(t, llm.gotInput, "Usuario: pregunta previa")
	require.Contains(t, llm.gotInput, "Asistente: respuesta previa")
	require.True(t, strings.HasSuffix(llm.gotInput, "¿y ahora?"))
}

func TestChat_DefaultsUserRoleToAdmin(t *testing.T) {
	llm := &mockLLM{answer: "ok"}
	threads := &mockThreads{createdID: "t1", known: true}
	svc := newTestService(t, testParams(), llm, threads)

	_, err := svc.Chat(context.Background(), ChatInput{Query: "hola"})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(llm.gotInput, "ROL DEL USUARIO: admin\n\n"))
}

func TestChat_SnapshotStoredAndSummarized(t *testing.T) {
	llm := &mockLLM{answer: "ok"}
	threads := &mockThreads{createdID: "t1", known: true}
	svc := newTestService(t, testParams(), llm, threads)

	snap := &domain.Snapshot{
		BusinessClients: []domain.BusinessClient{
			{CompanyName: "Alfa SA", ApprovalStatus: "active"},
		},
	}
	_, err := svc.Chat(context.Background(), ChatInput{Query: "hola", Snapshot: snap})
	require.NoError(t, err)
	require.Equal(t, []string{"t1"}, threads.setContextCalls)
	require.Contains(t, llm.gotInput, "DATOS DEL PROVEEDOR:")
	require.Contains(t, llm.gotInput, "ACTIVOS (1):")
}

func TestChat_FallsBackToStoredSnapshot(t *testing.T) {
	llm := &mockLLM{answer: "ok"}
	threads := &mockThreads{
		known: true,
		thread: domain.Thread{
			Context: &domain.Snapshot{
				BusinessClients: []domain.BusinessClient{
					{CompanyName: "Beta SA", ApprovalStatus: "pending"},
				},
			},
		},
	}
	svc := newTestService(t, testParams(), llm, threads)

	_, err := svc.Chat(context.Background(), ChatInput{Query: "hola", ThreadID: "t1"})
	require.NoError(t, err)
	require.Empty(t, threads.setContextCalls)
	require.Contains(t, llm.gotInput, "PENDIENTES (1):")
}

func TestChat_EmptyUpstreamAnswerSubstitutesFallback(t *testing.T) {
	llm := &mockLLM{answer: "   "}
	threads := &mockThreads{createdID: "t1", known: true}
	svc := newTestService(t, testParams(), llm, threads)

	out, err := svc.Chat(context.Background(), ChatInput{Query: "hola"})
	require.NoError(t, err)
	require.Equal(t, fallbackAnswer, out.Answer)
	require.Equal(t, fallbackAnswer, threads.appends[1].content)
}

func TestChat_MapsUpstreamErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code ErrorCode
	}{
		{name: "rate limited", err: &statusError{status: 429}, code: ErrorRateLimited},
		{name: "upstream status", err: &statusError{status: 500}, code: ErrorUpstream},
		{name: "transport", err: errors.New("connection refused"), code: ErrorUpstream},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			llm := &mockLLM{err: tc.err}
			threads := &mockThreads{createdID: "t1", known: true}
			svc := newTestService(t, testParams(), llm, threads)

			_, err := svc.Chat(context.Background(), ChatInput{Query: "hola"})
			requireErrorCode(t, err, tc.code)
			// Failed turns are not recorded in the thread.
			require.Empty(t, threads.appends)
		})
	}
}

func TestChat_ParamLoadFailureIsInternal(t *testing.T) {
	p := &mockParams{err: errors.New("ssm down")}
	svc := newTestService(t, p, &mockLLM{}, &mockThreads{createdID: "t1", known: true})

	_, err := svc.Chat(context.Background(), ChatInput{Query: "hola"})
	requireErrorCode(t, err, ErrorInternal)
}

func TestChat_ConfigLoadedOnce(t *testing.T) {
	p := testParams()
	llm := &mockLLM{answer: "ok"}
	svc := newTestService(t, p, llm, &mockThreads{createdID: "t1", known: true})

	for i := 0; i < 3; i++ {
		_, err := svc.Chat(context.Background(), ChatInput{Query: "hola"})
		require.NoError(t, err)
	}
	require.Equal(t, 2, p.calls) // model + prompt template, fetched once
}
