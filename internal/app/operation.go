package app

import "impulse-go/internal/model"

// Operation tracks one CLI invocation. Operations start in memory; only a
// download pass persists one, as a download_runs row keyed by ID.
type Operation struct {
	ID        string
	Name      string
	GroupID   string
	Label     string
	Status    string
	persisted bool
}

// NewOperation creates a new in-memory operation.
func NewOperation(id, name string) *Operation {
	return &Operation{
		ID:     id,
		Name:   name,
		Status: model.RunStatusRunning,
	}
}

// Persisted returns true if this operation has been saved to the database.
func (op *Operation) Persisted() bool {
	return op.persisted
}
