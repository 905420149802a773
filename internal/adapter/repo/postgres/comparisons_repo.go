package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/brokerpoint/polizza-analyzer/internal/domain"
)

// ComparisonRepo persists cross-company comparison results, one row per
// guarantee name. The aspect breakdown is stored as JSONB.
type ComparisonRepo struct{ Pool PgxPool }

// NewComparisonRepo constructs a ComparisonRepo with the given pool.
func NewComparisonRepo(p PgxPool) *ComparisonRepo { return &ComparisonRepo{Pool: p} }

// Upsert stores a comparison result, replacing a previous run for the same
// guarantee.
func (r *ComparisonRepo) Upsert(ctx context.Context, res domain.ComparisonResult) error {
	tracer := otel.Tracer("repo.comparisons")
	ctx, span := tracer.Start(ctx, "comparisons.Upsert")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "comparisons"),
	)
	detailed, err := json.Marshal(res.DetailedComparison)
	if err != nil {
		return fmt.Errorf("op=comparison.upsert: %w", err)
	}
	q := `INSERT INTO comparisons
	        (guarantee_name, companies_analyzed, common_points, detailed_comparison,
	         main_differences, confidence, analysis_time_seconds, raw_response, error, updated_at)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	      ON CONFLICT (guarantee_name)
	      DO UPDATE SET companies_analyzed=EXCLUDED.companies_analyzed,
	        common_points=EXCLUDED.common_points, detailed_comparison=EXCLUDED.detailed_comparison,
	        main_differences=EXCLUDED.main_differences, confidence=EXCLUDED.confidence,
	        analysis_time_seconds=EXCLUDED.analysis_time_seconds,
	        raw_response=EXCLUDED.raw_response, error=EXCLUDED.error, updated_at=EXCLUDED.updated_at`
	_, err = r.Pool.Exec(ctx, q,
		res.GuaranteeName, res.CompaniesAnalyzed, res.CommonPoints, detailed,
		res.MainDifferences, res.Confidence, res.AnalysisTimeSeconds, res.RawResponse, res.Error, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=comparison.upsert: %w", err)
	}
	return nil
}

// GetByGuarantee loads the stored comparison for one guarantee name.
func (r *ComparisonRepo) GetByGuarantee(ctx context.Context, guaranteeName string) (domain.ComparisonResult, error) {
	tracer := otel.Tracer("repo.comparisons")
	ctx, span := tracer.Start(ctx, "comparisons.GetByGuarantee")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "comparisons"),
	)
	q := `SELECT guarantee_name, companies_analyzed, common_points, detailed_comparison,
	             main_differences, confidence, analysis_time_seconds, raw_response, error
	      FROM comparisons WHERE guarantee_name=$1`
	row := r.Pool.QueryRow(ctx, q, guaranteeName)

	var res domain.ComparisonResult
	var detailed []byte
	if err := row.Scan(&res.GuaranteeName, &res.CompaniesAnalyzed, &res.CommonPoints, &detailed,
		&res.MainDifferences, &res.Confidence, &res.AnalysisTimeSeconds, &res.RawResponse, &res.Error); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ComparisonResult{}, fmt.Errorf("op=comparison.get_by_guarantee: %w", domain.ErrNotFound)
		}
		return domain.ComparisonResult{}, fmt.Errorf("op=comparison.get_by_guarantee: %w", err)
	}
	if err := json.Unmarshal(detailed, &res.DetailedComparison); err != nil {
		return domain.ComparisonResult{}, fmt.Errorf("op=comparison.get_by_guarantee: %w", err)
	}
	return res, nil
}
