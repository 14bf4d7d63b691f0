package patient

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/caseload/caseload/internal/platform/apperr"
	"github.com/caseload/caseload/internal/platform/db"
)

// SessionRemover deletes a patient's sessions. DeleteForPatient runs inside
// the patient delete transaction; CancelReminders runs after it commits.
type SessionRemover interface {
	DeleteForPatient(ctx context.Context, ownerID string, patientID uuid.UUID) ([]uuid.UUID, error)
	CancelReminders(ctx context.Context, sessionIDs []uuid.UUID)
}

type Service struct {
	repo     PatientRepository
	tx       db.TxRunner
	sessions SessionRemover
	region   string
	logger   zerolog.Logger
}

// NewService builds the patient service. region is the default phone region
// (ISO 3166-1 alpha-2) for contact numbers without a country code.
func NewService(repo PatientRepository, tx db.TxRunner, region string, logger zerolog.Logger) *Service {
	return &Service{repo: repo, tx: tx, region: region, logger: logger}
}

// SetSessionRemover wires cascade deletion. It is set after construction
// because the session service itself depends on this one.
func (s *Service) SetSessionRemover(r SessionRemover) { s.sessions = r }

func (s *Service) CreatePatient(ctx context.Context, ownerID string, in Input) (*Patient, error) {
	in, err := in.normalize(s.region)
	if err != nil {
		return nil, err
	}
	p := &Patient{OwnerID: ownerID, Name: in.Name, ContactNumber: in.ContactNumber}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) GetPatient(ctx context.Context, ownerID string, id uuid.UUID) (*Patient, error) {
	return apperr.RetryOnce(ctx, func(ctx context.Context) (*Patient, error) {
		return s.repo.GetByID(ctx, ownerID, id)
	})
}

// FindOwned returns the patient only when ownerID owns it.
func (s *Service) FindOwned(ctx context.Context, ownerID string, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, ownerID, id)
}

func (s *Service) ListPatients(ctx context.Context, ownerID string) ([]*Patient, error) {
	return apperr.RetryOnce(ctx, func(ctx context.Context) ([]*Patient, error) {
		return s.repo.List(ctx, ownerID)
	})
}

// UpdatePatient replaces name and contact number. Session snapshots of the
// old name are left untouched.
func (s *Service) UpdatePatient(ctx context.Context, ownerID string, id uuid.UUID, in Input) (*Patient, error) {
	in, err := in.normalize(s.region)
	if err != nil {
		return nil, err
	}
	p := &Patient{ID: id, OwnerID: ownerID, Name: in.Name, ContactNumber: in.ContactNumber}
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// DeletePatient removes the patient and all of its sessions in one
// transaction, then cancels the sessions' reminders. It returns the number of
// sessions removed.
func (s *Service) DeletePatient(ctx context.Context, ownerID string, id uuid.UUID) (int, error) {
	var removed []uuid.UUID
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.GetByID(ctx, ownerID, id); err != nil {
			return err
		}
		if s.sessions != nil {
			ids, err := s.sessions.DeleteForPatient(ctx, ownerID, id)
			if err != nil {
				return err
			}
			removed = ids
		}
		return s.repo.Delete(ctx, ownerID, id)
	})
	if err != nil {
		return 0, err
	}

	if s.sessions != nil && len(removed) > 0 {
		s.sessions.CancelReminders(ctx, removed)
	}
	s.logger.Info().
		Str("owner_id", ownerID).
		Str("patient_id", id.String()).
		Int("sessions_removed", len(removed)).
		Msg("patient deleted")
	return len(removed), nil
}
