package patient

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"

	"github.com/caseload/caseload/internal/platform/apperr"
)

// Patient maps to the patients table. OwnerID is the practitioner that
// created the record and is never taken from client input.
type Patient struct {
	ID            uuid.UUID `db:"id" json:"id"`
	OwnerID       string    `db:"owner_id" json:"-"`
	Name          string    `db:"name" json:"name"`
	ContactNumber string    `db:"contact_number" json:"contact_number"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Input is the client-supplied part of a patient, used for create and
// full-replace update.
type Input struct {
	Name          string `json:"name"`
	ContactNumber string `json:"contact_number"`
}

// normalize trims the name and converts the contact number to E.164 using
// region as the default for numbers without a country code.
func (in Input) normalize(region string) (Input, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Input{}, apperr.Validation("name", "is required")
	}
	raw := strings.TrimSpace(in.ContactNumber)
	if raw == "" {
		return Input{}, apperr.Validation("contact_number", "is required")
	}
	num, err := phonenumbers.Parse(raw, region)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return Input{}, apperr.Validation("contact_number", "is not a valid phone number")
	}
	return Input{Name: name, ContactNumber: phonenumbers.Format(num, phonenumbers.E164)}, nil
}
