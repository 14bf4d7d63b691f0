package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsNoRows(t *testing.T) {
	if !IsNoRows(fmt.Errorf("get session: %w", pgx.ErrNoRows)) {
		t.Error("expected wrapped ErrNoRows to match")
	}
	if IsNoRows(errors.New("other")) {
		t.Error("unexpected match")
	}
}

func TestIsForeignKeyViolation(t *testing.T) {
	fk := &pgconn.PgError{Code: "23503", ConstraintName: "sessions_patient_id_fkey"}
	if !IsForeignKeyViolation(fmt.Errorf("insert: %w", fk)) {
		t.Error("expected FK violation to match")
	}
	if IsForeignKeyViolation(&pgconn.PgError{Code: "23505"}) {
		t.Error("unique violation must not match")
	}
	if !IsCheckViolation(&pgconn.PgError{Code: "23514"}) {
		t.Error("expected check violation to match")
	}
}

func TestIsNumericOutOfRange(t *testing.T) {
	if !IsNumericOutOfRange(fmt.Errorf("update: %w", &pgconn.PgError{Code: "22003"})) {
		t.Error("expected numeric overflow to match")
	}
	if IsNumericOutOfRange(&pgconn.PgError{Code: "23514"}) {
		t.Error("check violation must not match")
	}
}
