package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"inbox_backend/platform/apperr"
)

const conversationNotFoundMessage = "conversation not found"

// Repo implements the Repository interface with PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new assignment repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Compile-time check that Repo implements Repository.
var _ Repository = (*Repo)(nil)

// GetInboxSettings retrieves the routing settings of an inbox.
// Returns nil for an unknown inbox.
func (r *Repo) GetInboxSettings(ctx context.Context, inboxID uuid.UUID) (*InboxSettings, error) {
	query := `
		SELECT id, auto_assignment_enabled, max_conversations_per_agent, last_assigned_agent_id
		FROM inboxes
		WHERE id = $1`

	var s InboxSettings
	err := r.pool.QueryRow(ctx, query, inboxID).Scan(
		&s.ID, &s.AutoAssignmentEnabled, &s.MaxConversationsPerAgent, &s.LastAssignedAgentID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get inbox settings: %w", err)
	}

	return &s, nil
}

// ListMembers retrieves active inbox members in display-name order, each
// annotated with its open-conversation count.
func (r *Repo) ListMembers(ctx context.Context, inboxID uuid.UUID, onlineOnly bool) ([]AgentLoad, error) {
	query := `
		SELECT a.id, a.display_name, a.availability,
		       COUNT(c.id) AS open_conversations
		FROM inbox_members m
		JOIN agents a ON a.id = m.agent_id
		LEFT JOIN conversations c ON c.assigned_agent_id = a.id AND c.status = 'open'
		WHERE m.inbox_id = $1
		  AND a.is_active
		  AND ($2::boolean = false OR a.availability = 'online')
		GROUP BY a.id, a.display_name, a.availability
		ORDER BY a.display_name ASC`

	rows, err := r.pool.Query(ctx, query, inboxID, onlineOnly)
	if err != nil {
		return nil, fmt.Errorf("list inbox members: %w", err)
	}
	defer rows.Close()

	var members []AgentLoad
	for rows.Next() {
		var m AgentLoad
		if err := rows.Scan(&m.ID, &m.DisplayName, &m.Availability, &m.OpenConversations); err != nil {
			return nil, fmt.Errorf("scan inbox member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// AssignConversation unconditionally sets the assigned agent.
func (r *Repo) AssignConversation(ctx context.Context, conversationID, agentID uuid.UUID) error {
	query := `UPDATE conversations SET assigned_agent_id = $2 WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, conversationID, agentID)
	if err != nil {
		return fmt.Errorf("assign conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(conversationNotFoundMessage)
	}
	return nil
}

// AssignIfUnassigned performs the compare-and-set pickup: the update only
// matches while assigned_agent_id is still null, so concurrent callers cannot
// both win.
func (r *Repo) AssignIfUnassigned(ctx context.Context, conversationID, agentID uuid.UUID) (bool, error) {
	query := `
		UPDATE conversations
		SET assigned_agent_id = $2
		WHERE id = $1 AND assigned_agent_id IS NULL`

	tag, err := r.pool.Exec(ctx, query, conversationID, agentID)
	if err != nil {
		return false, fmt.Errorf("assign if unassigned: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// AssignWithCursor assigns the conversation and advances the inbox's
// round-robin cursor in one transaction.
func (r *Repo) AssignWithCursor(ctx context.Context, conversationID, inboxID, agentID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin assign with cursor: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `UPDATE conversations SET assigned_agent_id = $2 WHERE id = $1`, conversationID, agentID)
	if err != nil {
		return fmt.Errorf("assign conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(conversationNotFoundMessage)
	}

	if _, err := tx.Exec(ctx, `UPDATE inboxes SET last_assigned_agent_id = $2 WHERE id = $1`, inboxID, agentID); err != nil {
		return fmt.Errorf("advance round-robin cursor: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit assign with cursor: %w", err)
	}
	return nil
}

// UnassignConversation returns the conversation to the unassigned pool.
func (r *Repo) UnassignConversation(ctx context.Context, conversationID uuid.UUID) error {
	query := `UPDATE conversations SET assigned_agent_id = NULL WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, conversationID)
	if err != nil {
		return fmt.Errorf("unassign conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(conversationNotFoundMessage)
	}
	return nil
}

// GetConversationInbox returns the owning inbox of a conversation.
func (r *Repo) GetConversationInbox(ctx context.Context, conversationID uuid.UUID) (uuid.UUID, error) {
	query := `SELECT inbox_id FROM conversations WHERE id = $1`

	var inboxID uuid.UUID
	err := r.pool.QueryRow(ctx, query, conversationID).Scan(&inboxID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, apperr.NotFound(conversationNotFoundMessage)
		}
		return uuid.Nil, fmt.Errorf("get conversation inbox: %w", err)
	}

	return inboxID, nil
}

// IsInboxMember reports whether the agent belongs to the inbox.
func (r *Repo) IsInboxMember(ctx context.Context, inboxID, agentID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM inbox_members WHERE inbox_id = $1 AND agent_id = $2)`

	var member bool
	if err := r.pool.QueryRow(ctx, query, inboxID, agentID).Scan(&member); err != nil {
		return false, fmt.Errorf("check inbox membership: %w", err)
	}
	return member, nil
}
