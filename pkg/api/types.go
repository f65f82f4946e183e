package api

import (
	"context"

	"fsrewire/pkg/model"
)

// StateSource exposes the agent's current state.
type StateSource interface {
	State() model.State
}

// JournalReader lists recent reconcile runs.
type JournalReader interface {
	Recent(ctx context.Context, limit int) ([]model.ReconcileEntry, error)
}

// JournalResponse is returned by /api/v1/journal.
type JournalResponse struct {
	Entries []model.ReconcileEntry `json:"entries"`
}
