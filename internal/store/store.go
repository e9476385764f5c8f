package store

import (
	"context"
	"errors"

	"github.com/headline-goat/variant-goat/internal/experiment"
)

var ErrNotFound = errors.New("not found")

// AssignmentStore persists the variant a user was given for a test.
type AssignmentStore interface {
	// GetAssignment returns ErrNotFound when the user has no assignment.
	GetAssignment(ctx context.Context, testID, userID string) (string, error)
	// CreateAssignment stores a unless the user already has a variant for
	// the test. It returns the stored variant and whether a was the one
	// stored, so concurrent writers all agree on the first assignment.
	CreateAssignment(ctx context.Context, a experiment.Assignment) (string, bool, error)
}

// EventLog is an append-only durable record of events.
type EventLog interface {
	AppendEvent(ctx context.Context, e experiment.Event) error
	// ListEvents returns events oldest first. An empty testID lists every test.
	ListEvents(ctx context.Context, testID string) ([]experiment.Event, error)
}

// Store defines the storage capability shared by every backend.
type Store interface {
	AssignmentStore
	EventLog

	Close() error
}
