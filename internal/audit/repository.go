package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repo implements the audit trail with PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new audit repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Record inserts one audit entry. Callers treat failures as best-effort;
// the insert itself reports them normally.
func (r *Repo) Record(ctx context.Context, entry Entry) error {
	query := `
		INSERT INTO assignment_audit (id, conversation_id, prior_agent_id, new_agent_id, action, created_at)
		VALUES ($1, $2, $3, $4, $5, now())`

	id := entry.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	_, err := r.pool.Exec(ctx, query, id, entry.ConversationID, entry.PriorAgentID, entry.NewAgentID, entry.Action)
	if err != nil {
		return fmt.Errorf("record assignment audit: %w", err)
	}
	return nil
}

// ListByConversation returns the audit trail for one conversation,
// oldest first.
func (r *Repo) ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]Entry, error) {
	query := `
		SELECT id, conversation_id, prior_agent_id, new_agent_id, action, created_at
		FROM assignment_audit
		WHERE conversation_id = $1
		ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list assignment audit: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.ConversationID, &e.PriorAgentID, &e.NewAgentID, &e.Action, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan assignment audit: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
