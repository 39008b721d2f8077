// Package transport defines request and response DTOs for the agents module.
package transport

import "time"

// AgentResponse is the outward representation of an agent.
type AgentResponse struct {
	ID           string    `json:"id"`
	DisplayName  string    `json:"displayName"`
	Availability string    `json:"availability"`
	IsActive     bool      `json:"isActive"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// AgentListResponse wraps a list of agents.
type AgentListResponse struct {
	Items []AgentResponse `json:"items"`
	Total int             `json:"total"`
}

// UpdateAvailabilityRequest changes an agent's availability.
type UpdateAvailabilityRequest struct {
	Availability string `json:"availability" binding:"required" validate:"oneof=online busy offline"`
}
