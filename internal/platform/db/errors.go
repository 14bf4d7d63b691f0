package db

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres SQLSTATE codes the repositories react to.
const (
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
	codeNumericOutOfRange   = "22003"
)

func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func IsForeignKeyViolation(err error) bool {
	return hasCode(err, codeForeignKeyViolation)
}

func IsCheckViolation(err error) bool {
	return hasCode(err, codeCheckViolation)
}

// IsNumericOutOfRange reports a value too large for its numeric column.
func IsNumericOutOfRange(err error) bool {
	return hasCode(err, codeNumericOutOfRange)
}

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
