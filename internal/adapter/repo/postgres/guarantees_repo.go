package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/brokerpoint/polizza-analyzer/internal/domain"
)

// GuaranteeRepo persists the guarantee catalog using a minimal pgx pool.
type GuaranteeRepo struct{ Pool PgxPool }

// NewGuaranteeRepo constructs a GuaranteeRepo with the given pool.
func NewGuaranteeRepo(p PgxPool) *GuaranteeRepo { return &GuaranteeRepo{Pool: p} }

// ListByType returns the catalog for one insurance type, ordered by section
// and title for stable presentation.
func (r *GuaranteeRepo) ListByType(ctx context.Context, insuranceType string) ([]domain.Guarantee, error) {
	tracer := otel.Tracer("repo.guarantees")
	ctx, span := tracer.Start(ctx, "guarantees.ListByType")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "guarantees"),
	)
	q := `SELECT id, insurance_type, section, title, description, created_at
	      FROM guarantees WHERE insurance_type=$1 ORDER BY section, title`
	rows, err := r.Pool.Query(ctx, q, insuranceType)
	if err != nil {
		return nil, fmt.Errorf("op=guarantee.list_by_type: %w", err)
	}
	defer rows.Close()

	var out []domain.Guarantee
	for rows.Next() {
		var g domain.Guarantee
		if err := rows.Scan(&g.ID, &g.InsuranceType, &g.Section, &g.Title, &g.Description, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("op=guarantee.list_by_type: %w", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=guarantee.list_by_type: %w", err)
	}
	return out, nil
}

// Upsert stores a guarantee and reports whether a row was actually inserted;
// an exact (type, section, title) duplicate leaves the catalog untouched.
func (r *GuaranteeRepo) Upsert(ctx context.Context, g domain.Guarantee) (bool, error) {
	tracer := otel.Tracer("repo.guarantees")
	ctx, span := tracer.Start(ctx, "guarantees.Upsert")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "guarantees"),
	)
	id := g.ID
	if id == "" {
		id = uuid.New().String()
	}
	q := `INSERT INTO guarantees (id, insurance_type, section, title, description, created_at)
	      VALUES ($1,$2,$3,$4,$5,$6)
	      ON CONFLICT (insurance_type, section, title) DO NOTHING`
	tag, err := r.Pool.Exec(ctx, q, id, g.InsuranceType, g.Section, g.Title, g.Description, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("op=guarantee.upsert: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
