package chat

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mizutanik/kakeibo/internal/extract"
	"github.com/mizutanik/kakeibo/internal/recordstore"
	"github.com/mizutanik/kakeibo/internal/session"
)

type memChatStore struct {
	messages []recordstore.ChatMessage
	nextID   int
	insertMu error
}

func (m *memChatStore) ListMessages(ctx context.Context, userID string) ([]recordstore.ChatMessage, error) {
	var out []recordstore.ChatMessage
	for _, msg := range m.messages {
		if msg.UserID == userID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *memChatStore) InsertMessage(ctx context.Context, msg *recordstore.ChatMessage) error {
	if m.insertMu != nil {
		return m.insertMu
	}
	m.nextID++
	msg.ID = fmt.Sprintf("msg-%d", m.nextID)
	msg.CreatedAt = time.Now()
	m.messages = append(m.messages, *msg)
	return nil
}

type fakeSearchClient struct {
	answer string
	err    error
	gotReq extract.SearchRequest
}

func (f *fakeSearchClient) Search(ctx context.Context, sess extract.HeaderSource, req extract.SearchRequest) (string, error) {
	f.gotReq = req
	return f.answer, f.err
}

func chatSession() *session.Session {
	return &session.Session{
		UserID:        "user-1",
		Token:         session.NewToken("tok", time.Time{}),
		SpreadsheetID: "sheet",
	}
}

func TestAskPersistsBothSides(t *testing.T) {
	store := &memChatStore{}
	client := &fakeSearchClient{answer: "You spent 12,400 yen on groceries in March."}
	svc := NewService(client, store, zerolog.Nop())

	req := extract.SearchRequest{Query: "  how much on groceries in march?  ", DataType: "receipt", Period: "2025-03"}
	answer, err := svc.Ask(context.Background(), chatSession(), req)
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if answer != client.answer {
		t.Errorf("answer: got %q", answer)
	}
	if client.gotReq.Query != "how much on groceries in march?" {
		t.Errorf("question not trimmed: %q", client.gotReq.Query)
	}

	history, err := svc.History(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history length: got %d, want 2", len(history))
	}
	if history[0].Role != RoleUser || history[1].Role != RoleAssistant {
		t.Errorf("roles: got %s, %s", history[0].Role, history[1].Role)
	}
}

func TestAskKeepsQuestionOnSearchFailure(t *testing.T) {
	store := &memChatStore{}
	boom := errors.New("backend down")
	svc := NewService(&fakeSearchClient{err: boom}, store, zerolog.Nop())

	_, err := svc.Ask(context.Background(), chatSession(), extract.SearchRequest{Query: "anything"})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want backend error", err)
	}

	history, _ := svc.History(context.Background(), "user-1")
	if len(history) != 1 || history[0].Role != RoleUser {
		t.Errorf("question not kept after failure: %+v", history)
	}
}

func TestAskRejectsEmptyQuestion(t *testing.T) {
	store := &memChatStore{}
	svc := NewService(&fakeSearchClient{}, store, zerolog.Nop())

	if _, err := svc.Ask(context.Background(), chatSession(), extract.SearchRequest{Query: "   "}); err == nil {
		t.Error("empty question accepted")
	}
	if len(store.messages) != 0 {
		t.Errorf("empty question persisted: %+v", store.messages)
	}
}
