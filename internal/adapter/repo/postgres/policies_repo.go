package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/brokerpoint/polizza-analyzer/internal/domain"
)

// PolicyRepo persists extracted policy texts using a minimal pgx pool.
type PolicyRepo struct{ Pool PgxPool }

// NewPolicyRepo constructs a PolicyRepo with the given pool.
func NewPolicyRepo(p PgxPool) *PolicyRepo { return &PolicyRepo{Pool: p} }

// Create stores a policy text and returns its id (generates one if empty).
// Re-uploading for the same (company, insurance type) replaces the text.
func (r *PolicyRepo) Create(ctx context.Context, p domain.Policy) (string, error) {
	tracer := otel.Tracer("repo.policies")
	ctx, span := tracer.Start(ctx, "policies.Create")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "policies"),
	)
	id := p.ID
	if id == "" {
		id = uuid.New().String()
	}
	q := `INSERT INTO policies (id, company_name, insurance_type, text, filename, created_at)
	      VALUES ($1,$2,$3,$4,$5,$6)
	      ON CONFLICT (company_name, insurance_type)
	      DO UPDATE SET text=EXCLUDED.text, filename=EXCLUDED.filename, created_at=EXCLUDED.created_at`
	_, err := r.Pool.Exec(ctx, q, id, p.CompanyName, p.InsuranceType, p.Text, p.Filename, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("op=policy.create: %w", err)
	}
	return id, nil
}

// GetByCompany loads a company's policy for one insurance type.
func (r *PolicyRepo) GetByCompany(ctx context.Context, companyName, insuranceType string) (domain.Policy, error) {
	tracer := otel.Tracer("repo.policies")
	ctx, span := tracer.Start(ctx, "policies.GetByCompany")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "policies"),
	)
	q := `SELECT id, company_name, insurance_type, text, filename, created_at
	      FROM policies WHERE company_name=$1 AND insurance_type=$2`
	row := r.Pool.QueryRow(ctx, q, companyName, insuranceType)
	var p domain.Policy
	if err := row.Scan(&p.ID, &p.CompanyName, &p.InsuranceType, &p.Text, &p.Filename, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Policy{}, fmt.Errorf("op=policy.get_by_company: %w", domain.ErrNotFound)
		}
		return domain.Policy{}, fmt.Errorf("op=policy.get_by_company: %w", err)
	}
	return p, nil
}

// ListByType returns every stored policy for one insurance type.
func (r *PolicyRepo) ListByType(ctx context.Context, insuranceType string) ([]domain.Policy, error) {
	tracer := otel.Tracer("repo.policies")
	ctx, span := tracer.Start(ctx, "policies.ListByType")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "policies"),
	)
	q := `SELECT id, company_name, insurance_type, text, filename, created_at
	      FROM policies WHERE insurance_type=$1 ORDER BY company_name`
	rows, err := r.Pool.Query(ctx, q, insuranceType)
	if err != nil {
		return nil, fmt.Errorf("op=policy.list_by_type: %w", err)
	}
	defer rows.Close()

	var out []domain.Policy
	for rows.Next() {
		var p domain.Policy
		if err := rows.Scan(&p.ID, &p.CompanyName, &p.InsuranceType, &p.Text, &p.Filename, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("op=policy.list_by_type: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=policy.list_by_type: %w", err)
	}
	return out, nil
}
