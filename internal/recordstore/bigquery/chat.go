package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/mizutanik/kakeibo/internal/recordstore"
)

type chatRow struct {
	MessageID string    `bigquery:"message_id"`
	UserID    string    `bigquery:"user_id"`
	Role      string    `bigquery:"role"`
	Content   string    `bigquery:"content"`
	CreatedAt time.Time `bigquery:"created_at"`
}

// ListMessages returns the user's chat history, oldest first.
func (s *Store) ListMessages(ctx context.Context, userID string) ([]recordstore.ChatMessage, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT message_id, user_id, role, content, created_at
		FROM %s
		WHERE user_id = @user_id
		ORDER BY created_at ASC
	`, s.table(chatTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("bigquery: listing chat messages: %w", err)
	}

	var msgs []recordstore.ChatMessage
	for {
		var row chatRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("bigquery: iterating chat messages: %w", err)
		}
		msgs = append(msgs, recordstore.ChatMessage{
			ID:        row.MessageID,
			UserID:    row.UserID,
			Role:      row.Role,
			Content:   row.Content,
			CreatedAt: row.CreatedAt,
		})
	}
	return msgs, nil
}

// InsertMessage stores one side of a chat exchange and assigns its id.
func (s *Store) InsertMessage(ctx context.Context, msg *recordstore.ChatMessage) error {
	msg.ID = newID()
	msg.CreatedAt = time.Now().UTC()

	row := &chatRow{
		MessageID: msg.ID,
		UserID:    msg.UserID,
		Role:      msg.Role,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	}
	if err := s.inserter(chatTable).Put(ctx, row); err != nil {
		return fmt.Errorf("bigquery: inserting chat message: %w", err)
	}
	return nil
}
