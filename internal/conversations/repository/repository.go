package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"inbox_backend/platform/apperr"
)

const conversationNotFoundMessage = "conversation not found"

// Conversation statuses.
const (
	StatusOpen     = "open"
	StatusResolved = "resolved"
	StatusArchived = "archived"
)

// Conversation is the unit being routed.
type Conversation struct {
	ID              uuid.UUID  `json:"id"`
	InboxID         uuid.UUID  `json:"inboxId"`
	ContactPhone    string     `json:"contactPhone"`
	ContactName     string     `json:"contactName"`
	AssignedAgentID *uuid.UUID `json:"assignedAgentId,omitempty"`
	Status          string     `json:"status"`
	LastMessageAt   time.Time  `json:"lastMessageAt"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// Repository defines data access for conversations.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (Conversation, error)
	ListByInbox(ctx context.Context, inboxID uuid.UUID, status string) ([]Conversation, error)
	FindOpenByContact(ctx context.Context, inboxID uuid.UUID, contactPhone string) (*Conversation, error)
	Create(ctx context.Context, inboxID uuid.UUID, contactPhone, contactName string) (Conversation, error)
	TouchLastMessage(ctx context.Context, id uuid.UUID) error
	SetStatus(ctx context.Context, id uuid.UUID, status string) error
}

// Repo implements the Repository interface with PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new conversations repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Compile-time check that Repo implements Repository.
var _ Repository = (*Repo)(nil)

const conversationColumns = `id, inbox_id, contact_phone, contact_name, assigned_agent_id, status, last_message_at, created_at`

func scanConversation(row pgx.Row) (Conversation, error) {
	var conv Conversation
	err := row.Scan(
		&conv.ID, &conv.InboxID, &conv.ContactPhone, &conv.ContactName,
		&conv.AssignedAgentID, &conv.Status, &conv.LastMessageAt, &conv.CreatedAt,
	)
	return conv, err
}

// GetByID retrieves a conversation by its ID.
func (r *Repo) GetByID(ctx context.Context, id uuid.UUID) (Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`

	conv, err := scanConversation(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Conversation{}, apperr.NotFound(conversationNotFoundMessage)
		}
		return Conversation{}, fmt.Errorf("get conversation by id: %w", err)
	}
	return conv, nil
}

// ListByInbox retrieves an inbox's conversations, newest activity first.
// An empty status lists all statuses.
func (r *Repo) ListByInbox(ctx context.Context, inboxID uuid.UUID, status string) ([]Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE inbox_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY last_message_at DESC`

	rows, err := r.pool.Query(ctx, query, inboxID, status)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var conversations []Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

// FindOpenByContact returns the open conversation for a contact in an inbox,
// or nil when none exists.
func (r *Repo) FindOpenByContact(ctx context.Context, inboxID uuid.UUID, contactPhone string) (*Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE inbox_id = $1 AND contact_phone = $2 AND status = 'open'
		ORDER BY created_at DESC
		LIMIT 1`

	conv, err := scanConversation(r.pool.QueryRow(ctx, query, inboxID, contactPhone))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find open conversation: %w", err)
	}
	return &conv, nil
}

// Create inserts a new open, unassigned conversation.
func (r *Repo) Create(ctx context.Context, inboxID uuid.UUID, contactPhone, contactName string) (Conversation, error) {
	query := `
		INSERT INTO conversations (id, inbox_id, contact_phone, contact_name, status, last_message_at, created_at)
		VALUES ($1, $2, $3, $4, 'open', now(), now())
		RETURNING ` + conversationColumns

	conv, err := scanConversation(r.pool.QueryRow(ctx, query, uuid.New(), inboxID, contactPhone, contactName))
	if err != nil {
		return Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

// TouchLastMessage bumps the conversation's last-message timestamp.
func (r *Repo) TouchLastMessage(ctx context.Context, id uuid.UUID) error {
	if _, err := r.pool.Exec(ctx, `UPDATE conversations SET last_message_at = now() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}

// SetStatus updates the conversation's status.
func (r *Repo) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE conversations SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("set conversation status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(conversationNotFoundMessage)
	}
	return nil
}
