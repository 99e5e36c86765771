package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"crediflex-agent/internal/domain"
	"crediflex-agent/internal/metrics"
)

const (
	defaultUserRole = "admin"

	// fallbackAnswer is substituted when the upstream response carries no
	// text fragment at all.
	fallbackAnswer = "Lo siento, no pude generar una respuesta. Por favor intenta de nuevo."
)

// ParamGetter resolves named configuration values (SSM Parameter Store in
// production, environment-backed elsewhere).
type ParamGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// LLMClient is the outbound model-invocation collaborator. One call per chat
// turn, no retries.
type LLMClient interface {
	Respond(ctx context.Context, model, promptID, input string) (answer, responseID string, err error)
}

// ThreadStore is the slice of the session store the chat flow needs.
type ThreadStore interface {
	Create() string
	CreateWithID(id string)
	Get(id string) (domain.Thread, bool)
	Append(id, role, content string)
	SetContext(id string, snap domain.Snapshot)
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// ChatService orchestrates one conversational turn: thread resolution,
// context assembly, the upstream call, and history bookkeeping.
type ChatService struct {
	params      ParamGetter
	llm         LLMClient
	threads     ThreadStore
	paramPrefix string

	cacheMu     sync.RWMutex
	cacheLoaded bool
	model       string
	promptID    string
}

type ChatInput struct {
	Query    string
	ThreadID string
	Snapshot *domain.Snapshot
	UserRole string
}

type ChatOutput struct {
	Answer             string
	ThreadID           string
	UpstreamResponseID string
}

func NewChatService(p ParamGetter, llm LLMClient, threads ThreadStore, paramPrefix string) (*ChatService, error) {
	if p == nil {
		return nil, errors.New("usecase: param getter must not be nil")
	}
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if threads == nil {
		return nil, errors.New("usecase: thread store must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("usecase: parameter prefix must not be empty")
	}
	return &ChatService{
		params:      p,
		llm:         llm,
		threads:     threads,
		paramPrefix: paramPrefix,
	}, nil
}

// Chat runs a single turn. Validation failures surface before any session
// mutation or upstream call; an unknown thread id is transparently recreated
// under the supplied id rather than rejected.
func (s *ChatService) Chat(ctx context.Context, in ChatInput) (ChatOutput, error) {
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return ChatOutput{}, newError(ErrorInvalidInput, "empty_query", nil)
	}
	if err := s.ensureConfig(ctx); err != nil {
		return ChatOutput{}, newError(ErrorInternal, "param_load_error", err)
	}

	id := strings.TrimSpace(in.ThreadID)
	if id == "" {
		id = s.threads.Create()
	} else if _, ok := s.threads.Get(id); !ok {
		s.threads.CreateWithID(id)
	}

	if in.Snapshot != nil {
		s.threads.SetContext(id, *in.Snapshot)
	}

	thread, _ := s.threads.Get(id)
	snap := in.Snapshot
	if snap == nil {
		snap = thread.Context
	}

	role := strings.TrimSpace(in.UserRole)
	if role == "" {
		role = defaultUserRole
	}
	input := fmt.Sprintf("ROL DEL USUARIO: %s\n\n%s", role, BuildContext(thread.Messages, snap, query))

	start := time.Now()
	answer, responseID, err := s.llm.Respond(ctx, s.model, s.promptID, input)
	metrics.ObserveUpstreamRequest(time.Since(start), err == nil)
	if err != nil {
		if status, ok := upstreamStatusCode(err); ok {
			if status == 429 {
				return ChatOutput{}, newError(ErrorRateLimited, "openai_rate_limited", err)
			}
			return ChatOutput{}, newError(ErrorUpstream, "openai_error", err)
		}
		return ChatOutput{}, newError(ErrorUpstream, "openai_unreachable", err)
	}
	if strings.TrimSpace(answer) == "" {
		answer = fallbackAnswer
	}

	s.threads.Append(id, domain.RoleUser, query)
	s.threads.Append(id, domain.RoleAssistant, answer)

	return ChatOutput{
		Answer:             answer,
		ThreadID:           id,
		UpstreamResponseID: responseID,
	}, nil
}

// ensureConfig loads the model id and prompt-template reference once and
// caches them for the process lifetime.
func (s *ChatService) ensureConfig(ctx context.Context) error {
	s.cacheMu.RLock()
	if s.cacheLoaded {
		s.cacheMu.RUnlock()
		return nil
	}
	s.cacheMu.RUnlock()

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.cacheLoaded {
		return nil
	}

	model, err := s.params.GetParameter(ctx, s.paramPrefix+"/config/openai_model")
	if err != nil {
		return fmt.Errorf("usecase: load openai model: %w", err)
	}
	promptID, err := s.params.GetParameter(ctx, s.paramPrefix+"/config/prompt_template")
	if err != nil {
		return fmt.Errorf("usecase: load prompt template: %w", err)
	}

	s.model = model
	s.promptID = promptID
	s.cacheLoaded = true
	return nil
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}
