package patient

import (
	"testing"

	"github.com/caseload/caseload/internal/platform/apperr"
)

func TestInputNormalize(t *testing.T) {
	tests := []struct {
		name   string
		in     Input
		region string
		want   string
	}{
		{"national number with default region", Input{Name: "Asha", ContactNumber: "98765 43210"}, "IN", "+919876543210"},
		{"international number ignores region", Input{Name: "Asha", ContactNumber: "+1 650-253-0000"}, "IN", "+16502530000"},
		{"us national number", Input{Name: "Ben", ContactNumber: "(650) 253-0000"}, "US", "+16502530000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.normalize(tt.region)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.ContactNumber != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got.ContactNumber)
			}
		})
	}
}

func TestInputNormalize_TrimsName(t *testing.T) {
	got, err := Input{Name: "  Asha  ", ContactNumber: "+16502530000"}.normalize("IN")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "Asha" {
		t.Errorf("expected trimmed name, got %q", got.Name)
	}
}

func TestInputNormalize_Rejects(t *testing.T) {
	tests := []struct {
		in    Input
		field string
	}{
		{Input{Name: "", ContactNumber: "+16502530000"}, "name"},
		{Input{Name: "   ", ContactNumber: "+16502530000"}, "name"},
		{Input{Name: "Asha", ContactNumber: ""}, "contact_number"},
		{Input{Name: "Asha", ContactNumber: "12345"}, "contact_number"},
		{Input{Name: "Asha", ContactNumber: "not a number"}, "contact_number"},
	}
	for _, tt := range tests {
		_, err := tt.in.normalize("IN")
		var ae *apperr.Error
		if !apperr.Is(err, apperr.KindValidation) {
			t.Errorf("%+v: expected validation error, got %v", tt.in, err)
			continue
		}
		ae = err.(*apperr.Error)
		if ae.Field != tt.field {
			t.Errorf("%+v: expected field %s, got %s", tt.in, tt.field, ae.Field)
		}
	}
}
