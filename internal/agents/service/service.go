package service

import (
	"context"

	"github.com/google/uuid"

	"inbox_backend/internal/agents/repository"
	"inbox_backend/internal/agents/transport"
	"inbox_backend/platform/logger"
)

// Service provides business logic for the agent directory.
type Service struct {
	repo repository.Repository
	log  *logger.Logger
}

// New creates a new agent directory service.
func New(repo repository.Repository, log *logger.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// List retrieves all agents.
func (s *Service) List(ctx context.Context) (transport.AgentListResponse, error) {
	agents, err := s.repo.List(ctx)
	if err != nil {
		return transport.AgentListResponse{}, err
	}

	items := make([]transport.AgentResponse, 0, len(agents))
	for _, a := range agents {
		items = append(items, toResponse(a))
	}
	return transport.AgentListResponse{Items: items, Total: len(items)}, nil
}

// GetByID retrieves a single agent.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (transport.AgentResponse, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return transport.AgentResponse{}, err
	}
	return toResponse(a), nil
}

// SetAvailability updates an agent's availability state. Assignment decisions
// pick the change up on their next availability read.
func (s *Service) SetAvailability(ctx context.Context, id uuid.UUID, availability string) (transport.AgentResponse, error) {
	a, err := s.repo.UpdateAvailability(ctx, id, availability)
	if err != nil {
		return transport.AgentResponse{}, err
	}

	s.log.Info("agent availability changed", "agentId", id, "availability", availability)
	return toResponse(a), nil
}

func toResponse(a repository.Agent) transport.AgentResponse {
	return transport.AgentResponse{
		ID:           a.ID.String(),
		DisplayName:  a.DisplayName,
		Availability: a.Availability,
		IsActive:     a.IsActive,
		UpdatedAt:    a.UpdatedAt,
	}
}
