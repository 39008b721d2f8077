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

const agentNotFoundMessage = "agent not found"

// Availability states an agent can be in.
const (
	AvailabilityOnline  = "online"
	AvailabilityBusy    = "busy"
	AvailabilityOffline = "offline"
)

// Agent is a human operator row.
type Agent struct {
	ID           uuid.UUID `json:"id"`
	DisplayName  string    `json:"displayName"`
	Availability string    `json:"availability"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Repository defines data access for the agent directory.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (Agent, error)
	List(ctx context.Context) ([]Agent, error)
	UpdateAvailability(ctx context.Context, id uuid.UUID, availability string) (Agent, error)
}

// Repo implements the Repository interface with PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new agent directory repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Compile-time check that Repo implements Repository.
var _ Repository = (*Repo)(nil)

// GetByID retrieves an agent by its ID.
func (r *Repo) GetByID(ctx context.Context, id uuid.UUID) (Agent, error) {
	query := `
		SELECT id, display_name, availability, is_active, created_at, updated_at
		FROM agents
		WHERE id = $1`

	var a Agent
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.DisplayName, &a.Availability, &a.IsActive, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Agent{}, apperr.NotFound(agentNotFoundMessage)
		}
		return Agent{}, fmt.Errorf("get agent by id: %w", err)
	}

	return a, nil
}

// List retrieves all agents ordered by display name.
func (r *Repo) List(ctx context.Context) ([]Agent, error) {
	query := `
		SELECT id, display_name, availability, is_active, created_at, updated_at
		FROM agents
		ORDER BY display_name ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var agents []Agent
	for rows.Next() {
		var a Agent
		if err := rows.Scan(&a.ID, &a.DisplayName, &a.Availability, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// UpdateAvailability sets an agent's availability and returns the updated row.
func (r *Repo) UpdateAvailability(ctx context.Context, id uuid.UUID, availability string) (Agent, error) {
	query := `
		UPDATE agents
		SET availability = $2, updated_at = now()
		WHERE id = $1
		RETURNING id, display_name, availability, is_active, created_at, updated_at`

	var a Agent
	err := r.pool.QueryRow(ctx, query, id, availability).Scan(
		&a.ID, &a.DisplayName, &a.Availability, &a.IsActive, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Agent{}, apperr.NotFound(agentNotFoundMessage)
		}
		return Agent{}, fmt.Errorf("update agent availability: %w", err)
	}

	return a, nil
}
