package patient

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/caseload/caseload/internal/platform/apperr"
	"github.com/caseload/caseload/internal/platform/db"
)

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const patientCols = `id, owner_id, name, contact_number, created_at, updated_at`

func (r *patientRepoPG) scanRow(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.OwnerID, &p.Name, &p.ContactNumber, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func mapErr(op string, err error) error {
	if db.IsNoRows(err) {
		return apperr.NotFound("patient")
	}
	return apperr.Dependency(op, err)
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (id, owner_id, name, contact_number)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`,
		p.ID, p.OwnerID, p.Name, p.ContactNumber,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return apperr.Dependency("create patient", err)
	}
	return nil
}

func (r *patientRepoPG) GetByID(ctx context.Context, ownerID string, id uuid.UUID) (*Patient, error) {
	p, err := r.scanRow(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patients WHERE id = $1 AND owner_id = $2`, id, ownerID))
	if err != nil {
		return nil, mapErr("get patient", err)
	}
	return p, nil
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE patients SET name = $3, contact_number = $4, updated_at = NOW()
		WHERE id = $1 AND owner_id = $2
		RETURNING created_at, updated_at`,
		p.ID, p.OwnerID, p.Name, p.ContactNumber,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return mapErr("update patient", err)
	}
	return nil
}

func (r *patientRepoPG) Delete(ctx context.Context, ownerID string, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patients WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return apperr.Precondition("patient still has sessions")
		}
		return apperr.Dependency("delete patient", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("patient")
	}
	return nil
}

func (r *patientRepoPG) List(ctx context.Context, ownerID string) ([]*Patient, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+patientCols+` FROM patients WHERE owner_id = $1 ORDER BY name, created_at`, ownerID)
	if err != nil {
		return nil, apperr.Dependency("list patients", err)
	}
	defer rows.Close()

	items := []*Patient{}
	for rows.Next() {
		p, err := r.scanRow(rows)
		if err != nil {
			return nil, apperr.Dependency("scan patient", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Dependency("list patients", err)
	}
	return items, nil
}
