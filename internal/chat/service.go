// Package chat runs the natural-language search conversation. Questions
// go to the extraction backend's search endpoint; both sides of the
// exchange are persisted so history survives restarts.
package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mizutanik/kakeibo/internal/extract"
	"github.com/mizutanik/kakeibo/internal/recordstore"
	"github.com/mizutanik/kakeibo/internal/session"
)

// Roles stored with each message.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// SearchClient answers a free-form question about the user's records.
type SearchClient interface {
	Search(ctx context.Context, sess extract.HeaderSource, req extract.SearchRequest) (string, error)
}

// Service persists the conversation and relays questions to the backend.
type Service struct {
	client SearchClient
	store  recordstore.ChatStore
	log    zerolog.Logger
}

// NewService creates a chat service.
func NewService(client SearchClient, store recordstore.ChatStore, log zerolog.Logger) *Service {
	return &Service{client: client, store: store, log: log}
}

// Ask sends the question to the backend and returns the answer. The
// question is persisted before the call so it is kept even when the
// search fails; the answer is persisted after.
func (s *Service) Ask(ctx context.Context, sess *session.Session, req extract.SearchRequest) (string, error) {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return "", fmt.Errorf("chat: empty question")
	}

	if err := s.store.InsertMessage(ctx, &recordstore.ChatMessage{
		UserID:  sess.UserID,
		Role:    RoleUser,
		Content: req.Query,
	}); err != nil {
		return "", fmt.Errorf("chat: recording question: %w", err)
	}

	answer, err := s.client.Search(ctx, sess, req)
	if err != nil {
		return "", fmt.Errorf("chat: search: %w", err)
	}

	if err := s.store.InsertMessage(ctx, &recordstore.ChatMessage{
		UserID:  sess.UserID,
		Role:    RoleAssistant,
		Content: answer,
	}); err != nil {
		// The user already has the answer; losing the stored copy is
		// worth a warning, not a failure.
		s.log.Warn().Err(err).Msg("Failed to persist assistant message")
	}
	return answer, nil
}

// History returns the user's conversation, oldest first.
func (s *Service) History(ctx context.Context, userID string) ([]recordstore.ChatMessage, error) {
	msgs, err := s.store.ListMessages(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("chat: listing history: %w", err)
	}
	return msgs, nil
}
