// Package pipeline implements the complaint ingestion pipeline: intake
// normalization, duplicate-incident clustering, LLM classification,
// persistence and resolution notification.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"jatri-ovijog-backend/auth"
	"jatri-ovijog-backend/llm"
	"jatri-ovijog-backend/models"
	"jatri-ovijog-backend/parser"
	"jatri-ovijog-backend/supabase"

	"github.com/apex/log"
)

// ErrInvalidStatus is returned for a status outside {new, working, resolved,
// fake}.
var ErrInvalidStatus = errors.New("invalid status. Allowed: new, working, resolved, fake")

// fallbackUserID is attributed to anonymous reports.
const fallbackUserID int64 = 1

// Service wires the pipeline stages together. One instance is shared across
// all requests; the only mutable state lives in the shared HTTP clients, the
// worker pool and the mail dispatcher.
type Service struct {
	store      *supabase.Client
	llm        llm.Client
	tokens     *auth.TokenManager
	pool       *Pool
	mailer     *Dispatcher
	llmTimeout time.Duration

	now func() time.Time
}

func NewService(store *supabase.Client, client llm.Client, tokens *auth.TokenManager, mailer *Dispatcher, poolSize int, llmTimeout time.Duration) *Service {
	log.Infof("pipeline LLM provider=%s pool=%d timeout=%s", client.SourceName(), poolSize, llmTimeout)
	return &Service{
		store:      store,
		llm:        client,
		tokens:     tokens,
		pool:       NewPool(poolSize),
		mailer:     mailer,
		llmTimeout: llmTimeout,
		now:        time.Now,
	}
}

// Store exposes the shared datastore client for the thin read-only handlers.
func (s *Service) Store() *supabase.Client {
	return s.store
}

// UpdateStatus validates and writes a status transition. On resolved or fake
// the priority drops to Low. A zero-row match reports
// supabase.ErrNotFound.
func (s *Service) UpdateStatus(ctx context.Context, id int64, status, note string) (supabase.Row, error) {
	canonical, ok := models.ValidStatus(status)
	if !ok {
		return nil, ErrInvalidStatus
	}

	payload := map[string]any{"status": canonical}
	if trimmed := strings.TrimSpace(note); trimmed != "" {
		payload["verification_note"] = trimmed
	}
	if canonical == models.StatusResolved || canonical == models.StatusFake {
		payload["priority"] = models.PriorityLow
	}

	return s.store.UpdateComplaint(ctx, id, payload)
}

// ParseChat runs the chat-to-form extraction on the worker pool.
func (s *Service) ParseChat(ctx context.Context, text string) (*models.ChatForm, error) {
	raw, err := s.pool.Do(ctx, "parse_chat", s.llmTimeout, func(ctx context.Context) (string, error) {
		return s.llm.ParseComplaintFromChat(ctx, text)
	})
	if err != nil {
		return nil, err
	}
	return parser.ParseChatForm(raw)
}
