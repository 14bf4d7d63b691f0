package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/caseload/caseload/internal/platform/apperr"
	"github.com/caseload/caseload/internal/platform/db"
)

type sessionRepoPG struct{ pool *pgxpool.Pool }

func NewSessionRepoPG(pool *pgxpool.Pool) SessionRepository {
	return &sessionRepoPG{pool: pool}
}

func (r *sessionRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const sessionCols = `id, seq, owner_id, patient_id, patient_name, date, time, notes,
	completed, amount::float8, created_at, updated_at`

func (r *sessionRepoPG) scanRow(row pgx.Row) (*Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.Seq, &s.OwnerID, &s.PatientID, &s.PatientName, &s.Date, &s.Time, &s.Notes,
		&s.Completed, &s.Amount, &s.CreatedAt, &s.UpdatedAt)
	return &s, err
}

func mapErr(op string, err error) error {
	switch {
	case db.IsNoRows(err):
		return apperr.NotFound("session")
	case db.IsForeignKeyViolation(err):
		return apperr.Precondition("patient was deleted")
	case db.IsNumericOutOfRange(err):
		return apperr.Validation("amount", "is out of range")
	case db.IsCheckViolation(err):
		return apperr.Validation("session", "violates a stored invariant")
	}
	return apperr.Dependency(op, err)
}

func (r *sessionRepoPG) Create(ctx context.Context, s *Session) error {
	s.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO sessions (id, owner_id, patient_id, patient_name, date, time, notes, completed, amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING seq, created_at, updated_at`,
		s.ID, s.OwnerID, s.PatientID, s.PatientName, s.Date, s.Time, s.Notes, s.Completed, s.Amount,
	).Scan(&s.Seq, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return mapErr("create session", err)
	}
	return nil
}

func (r *sessionRepoPG) GetByID(ctx context.Context, ownerID string, id uuid.UUID) (*Session, error) {
	s, err := r.scanRow(r.conn(ctx).QueryRow(ctx,
		`SELECT `+sessionCols+` FROM sessions WHERE id = $1 AND owner_id = $2`, id, ownerID))
	if err != nil {
		return nil, mapErr("get session", err)
	}
	return s, nil
}

func (r *sessionRepoPG) Update(ctx context.Context, s *Session) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE sessions SET patient_id = $3, patient_name = $4, date = $5, time = $6, notes = $7,
			completed = $8, amount = $9, updated_at = NOW()
		WHERE id = $1 AND owner_id = $2
		RETURNING seq, created_at, updated_at`,
		s.ID, s.OwnerID, s.PatientID, s.PatientName, s.Date, s.Time, s.Notes, s.Completed, s.Amount,
	).Scan(&s.Seq, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return mapErr("update session", err)
	}
	return nil
}

func (r *sessionRepoPG) Delete(ctx context.Context, ownerID string, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM sessions WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return mapErr("delete session", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("session")
	}
	return nil
}

// buildListQuery renders the owner-scoped filter as SQL.
func buildListQuery(ownerID string, f Filter) (string, []interface{}) {
	where := []string{"owner_id = $1"}
	args := []interface{}{ownerID}
	add := func(clause string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.PatientID != nil {
		add("patient_id = $%d", *f.PatientID)
	}
	if f.StartDate != nil {
		add("date >= $%d", *f.StartDate)
	}
	if f.EndDate != nil {
		add("date <= $%d", *f.EndDate)
	}
	if f.Completed != nil {
		add("completed = $%d", *f.Completed)
	}
	return `SELECT ` + sessionCols + ` FROM sessions WHERE ` + strings.Join(where, " AND ") + ` ORDER BY seq`, args
}

func (r *sessionRepoPG) List(ctx context.Context, ownerID string, f Filter) ([]*Session, error) {
	sql, args := buildListQuery(ownerID, f)
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, mapErr("list sessions", err)
	}
	defer rows.Close()

	items := []*Session{}
	for rows.Next() {
		s, err := r.scanRow(rows)
		if err != nil {
			return nil, mapErr("scan session", err)
		}
		items = append(items, s)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("list sessions", err)
	}
	return items, nil
}

func (r *sessionRepoPG) DeleteByPatient(ctx context.Context, ownerID string, patientID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`DELETE FROM sessions WHERE owner_id = $1 AND patient_id = $2 RETURNING id`, ownerID, patientID)
	if err != nil {
		return nil, mapErr("delete patient sessions", err)
	}
	defer rows.Close()

	ids := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, mapErr("scan session id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("delete patient sessions", err)
	}
	return ids, nil
}
