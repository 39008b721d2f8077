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

const campaignNotFoundMessage = "campaign not found"

// Campaign statuses. Terminal statuses are never set by the reconciler,
// only read.
const (
	StatusDraft     = "draft"
	StatusScheduled = "scheduled"
	StatusRunning   = "running"
	StatusPaused    = "paused"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

// IsTerminal reports whether a campaign can no longer transition.
func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// Recipient statuses.
const (
	RecipientPending = "pending"
	RecipientSent    = "sent"
	RecipientFailed  = "failed"
)

// Campaign is a bulk-send job. ProcessingLock is an advisory marker, not a
// real mutex; staleness-based cleanup is the only enforcement.
type Campaign struct {
	ID              uuid.UUID  `json:"id"`
	InboxID         uuid.UUID  `json:"inboxId"`
	Name            string     `json:"name"`
	MessageTemplate string     `json:"messageTemplate"`
	Status          string     `json:"status"`
	CurrentIndex    int        `json:"currentIndex"`
	SentCount       int        `json:"sentCount"`
	FailedCount     int        `json:"failedCount"`
	ProcessingLock  *string    `json:"processingLock,omitempty"`
	LockAcquiredAt  *time.Time `json:"lockAcquiredAt,omitempty"`
	ScheduledAt     *time.Time `json:"scheduledAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// Recipient is one target of a campaign send, ordered by position.
type Recipient struct {
	ID         uuid.UUID `json:"id"`
	CampaignID uuid.UUID `json:"campaignId"`
	Phone      string    `json:"phone"`
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	Position   int       `json:"position"`
}

// Repository defines data access for campaigns and their recipients.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (Campaign, error)
	Create(ctx context.Context, c Campaign) (Campaign, error)
	List(ctx context.Context) ([]Campaign, error)
	SetStatus(ctx context.Context, id uuid.UUID, status string) error
	SaveSnapshot(ctx context.Context, id uuid.UUID, status string, currentIndex, sent, failed int) error
	ListActiveOrLocked(ctx context.Context) ([]Campaign, error)
	AcquireLock(ctx context.Context, id uuid.UUID, token string) (bool, error)
	ClearLock(ctx context.Context, id uuid.UUID) error
	PauseAndClearLock(ctx context.Context, id uuid.UUID) error
	AddRecipients(ctx context.Context, campaignID uuid.UUID, recipients []Recipient) error
	ListRecipientsFrom(ctx context.Context, campaignID uuid.UUID, fromPosition int) ([]Recipient, error)
	MarkRecipient(ctx context.Context, id uuid.UUID, status string) error
}

// Repo implements the Repository interface with PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new campaigns repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Compile-time check that Repo implements Repository.
var _ Repository = (*Repo)(nil)

const campaignColumns = `id, inbox_id, name, message_template, status, current_index, sent_count, failed_count,
	processing_lock, lock_acquired_at, scheduled_at, created_at, updated_at`

func scanCampaign(row pgx.Row) (Campaign, error) {
	var c Campaign
	err := row.Scan(
		&c.ID, &c.InboxID, &c.Name, &c.MessageTemplate, &c.Status,
		&c.CurrentIndex, &c.SentCount, &c.FailedCount,
		&c.ProcessingLock, &c.LockAcquiredAt, &c.ScheduledAt, &c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}

// GetByID retrieves a campaign by its ID.
func (r *Repo) GetByID(ctx context.Context, id uuid.UUID) (Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`

	c, err := scanCampaign(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Campaign{}, apperr.NotFound(campaignNotFoundMessage)
		}
		return Campaign{}, fmt.Errorf("get campaign by id: %w", err)
	}
	return c, nil
}

// Create inserts a new campaign.
func (r *Repo) Create(ctx context.Context, c Campaign) (Campaign, error) {
	query := `
		INSERT INTO campaigns (id, inbox_id, name, message_template, status, current_index, sent_count, failed_count, scheduled_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, 0, 0, $6, now(), now())
		RETURNING ` + campaignColumns

	created, err := scanCampaign(r.pool.QueryRow(ctx, query, c.ID, c.InboxID, c.Name, c.MessageTemplate, c.Status, c.ScheduledAt))
	if err != nil {
		return Campaign{}, fmt.Errorf("create campaign: %w", err)
	}
	return created, nil
}

// List retrieves all campaigns, newest first.
func (r *Repo) List(ctx context.Context) ([]Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()
	return collectCampaigns(rows)
}

func collectCampaigns(rows pgx.Rows) ([]Campaign, error) {
	var campaigns []Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

// SetStatus updates a campaign's status.
func (r *Repo) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE campaigns SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("set campaign status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(campaignNotFoundMessage)
	}
	return nil
}

// SaveSnapshot overwrites a campaign's persisted progress and status with the
// in-memory truth. A straight overwrite, safe to repeat.
func (r *Repo) SaveSnapshot(ctx context.Context, id uuid.UUID, status string, currentIndex, sent, failed int) error {
	query := `
		UPDATE campaigns
		SET status = $2, current_index = $3, sent_count = $4, failed_count = $5, updated_at = now()
		WHERE id = $1`

	if _, err := r.pool.Exec(ctx, query, id, status, currentIndex, sent, failed); err != nil {
		return fmt.Errorf("save campaign snapshot: %w", err)
	}
	return nil
}

// ListActiveOrLocked returns campaigns that are running or hold a processing
// lock, i.e. everything the reconciler needs to look at.
func (r *Repo) ListActiveOrLocked(ctx context.Context) ([]Campaign, error) {
	query := `
		SELECT ` + campaignColumns + `
		FROM campaigns
		WHERE status = 'running' OR processing_lock IS NOT NULL
		ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active or locked campaigns: %w", err)
	}
	defer rows.Close()
	return collectCampaigns(rows)
}

// AcquireLock conditionally claims the processing lock. Returns true iff this
// call won; false means another process already holds it.
func (r *Repo) AcquireLock(ctx context.Context, id uuid.UUID, token string) (bool, error) {
	query := `
		UPDATE campaigns
		SET processing_lock = $2, lock_acquired_at = now(), updated_at = now()
		WHERE id = $1 AND processing_lock IS NULL`

	tag, err := r.pool.Exec(ctx, query, id, token)
	if err != nil {
		return false, fmt.Errorf("acquire campaign lock: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ClearLock nulls out the lock fields. Safe to repeat.
func (r *Repo) ClearLock(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE campaigns
		SET processing_lock = NULL, lock_acquired_at = NULL, updated_at = now()
		WHERE id = $1`

	if _, err := r.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("clear campaign lock: %w", err)
	}
	return nil
}

// PauseAndClearLock demotes a campaign to paused and releases its lock in one
// statement. Used by crash recovery.
func (r *Repo) PauseAndClearLock(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE campaigns
		SET status = 'paused', processing_lock = NULL, lock_acquired_at = NULL, updated_at = now()
		WHERE id = $1`

	if _, err := r.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("pause and clear campaign lock: %w", err)
	}
	return nil
}

// AddRecipients bulk inserts recipients for a campaign.
func (r *Repo) AddRecipients(ctx context.Context, campaignID uuid.UUID, recipients []Recipient) error {
	batch := &pgx.Batch{}
	for _, rec := range recipients {
		batch.Queue(
			`INSERT INTO campaign_recipients (id, campaign_id, phone, name, status, position)
			 VALUES ($1, $2, $3, $4, 'pending', $5)`,
			rec.ID, campaignID, rec.Phone, rec.Name, rec.Position,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range recipients {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert campaign recipient: %w", err)
		}
	}
	return nil
}

// ListRecipientsFrom returns a campaign's recipients at or beyond a position,
// in send order.
func (r *Repo) ListRecipientsFrom(ctx context.Context, campaignID uuid.UUID, fromPosition int) ([]Recipient, error) {
	query := `
		SELECT id, campaign_id, phone, name, status, position
		FROM campaign_recipients
		WHERE campaign_id = $1 AND position >= $2
		ORDER BY position`

	rows, err := r.pool.Query(ctx, query, campaignID, fromPosition)
	if err != nil {
		return nil, fmt.Errorf("list campaign recipients: %w", err)
	}
	defer rows.Close()

	var recipients []Recipient
	for rows.Next() {
		var rec Recipient
		if err := rows.Scan(&rec.ID, &rec.CampaignID, &rec.Phone, &rec.Name, &rec.Status, &rec.Position); err != nil {
			return nil, fmt.Errorf("scan campaign recipient: %w", err)
		}
		recipients = append(recipients, rec)
	}
	return recipients, rows.Err()
}

// MarkRecipient records the outcome of a single send.
func (r *Repo) MarkRecipient(ctx context.Context, id uuid.UUID, status string) error {
	if _, err := r.pool.Exec(ctx,
		`UPDATE campaign_recipients SET status = $2 WHERE id = $1`, id, status); err != nil {
		return fmt.Errorf("mark campaign recipient: %w", err)
	}
	return nil
}
