package patient

import (
	"context"

	"github.com/google/uuid"
)

// PatientRepository is owner-scoped: a patient owned by someone else is
// reported exactly like a missing one.
type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, ownerID string, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, ownerID string, id uuid.UUID) error
	List(ctx context.Context, ownerID string) ([]*Patient, error)
}
