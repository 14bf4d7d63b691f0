package session

import (
	"context"

	"github.com/google/uuid"
)

// SessionRepository is owner-scoped. A session owned by someone else is
// reported exactly like a missing one. List returns sessions in insertion
// order.
type SessionRepository interface {
	Create(ctx context.Context, s *Session) error
	GetByID(ctx context.Context, ownerID string, id uuid.UUID) (*Session, error)
	Update(ctx context.Context, s *Session) error
	Delete(ctx context.Context, ownerID string, id uuid.UUID) error
	List(ctx context.Context, ownerID string, f Filter) ([]*Session, error)
	DeleteByPatient(ctx context.Context, ownerID string, patientID uuid.UUID) ([]uuid.UUID, error)
}
