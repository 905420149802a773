package postgres

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/brokerpoint/polizza-analyzer/internal/domain"
)

// ExtractionRepo persists per-guarantee extraction results keyed by
// (company, guarantee title), so re-running an analysis overwrites the
// previous answer instead of accumulating stale rows.
type ExtractionRepo struct{ Pool PgxPool }

// NewExtractionRepo constructs an ExtractionRepo with the given pool.
func NewExtractionRepo(p PgxPool) *ExtractionRepo { return &ExtractionRepo{Pool: p} }

// Upsert stores an extraction result for one (company, guarantee) pair.
func (r *ExtractionRepo) Upsert(ctx context.Context, companyName, guaranteeTitle string, res domain.ExtractionResult) error {
	tracer := otel.Tracer("repo.extractions")
	ctx, span := tracer.Start(ctx, "extractions.Upsert")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "extractions"),
	)
	q := `INSERT INTO extractions
	        (company_name, guarantee_title, success, ref_number, title, content,
	         confidence, found, analysis_time_seconds, raw_response, error, updated_at)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	      ON CONFLICT (company_name, guarantee_title)
	      DO UPDATE SET success=EXCLUDED.success, ref_number=EXCLUDED.ref_number,
	        title=EXCLUDED.title, content=EXCLUDED.content, confidence=EXCLUDED.confidence,
	        found=EXCLUDED.found, analysis_time_seconds=EXCLUDED.analysis_time_seconds,
	        raw_response=EXCLUDED.raw_response, error=EXCLUDED.error, updated_at=EXCLUDED.updated_at`
	_, err := r.Pool.Exec(ctx, q,
		companyName, guaranteeTitle, res.Success, res.RefNumber, res.Title, res.Content,
		res.Confidence, res.Found, res.AnalysisTimeSeconds, res.RawResponse, res.Error, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=extraction.upsert: %w", err)
	}
	return nil
}

// ListByCompany returns every stored extraction for a company, keyed by
// guarantee title.
func (r *ExtractionRepo) ListByCompany(ctx context.Context, companyName string) (map[string]domain.ExtractionResult, error) {
	tracer := otel.Tracer("repo.extractions")
	ctx, span := tracer.Start(ctx, "extractions.ListByCompany")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "extractions"),
	)
	q := `SELECT guarantee_title, success, ref_number, title, content, confidence,
	             found, analysis_time_seconds, raw_response, error
	      FROM extractions WHERE company_name=$1`
	rows, err := r.Pool.Query(ctx, q, companyName)
	if err != nil {
		return nil, fmt.Errorf("op=extraction.list_by_company: %w", err)
	}
	defer rows.Close()

	out := make(map[string]domain.ExtractionResult)
	for rows.Next() {
		var title string
		var res domain.ExtractionResult
		if err := rows.Scan(&title, &res.Success, &res.RefNumber, &res.Title, &res.Content,
			&res.Confidence, &res.Found, &res.AnalysisTimeSeconds, &res.RawResponse, &res.Error); err != nil {
			return nil, fmt.Errorf("op=extraction.list_by_company: %w", err)
		}
		out[title] = res
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=extraction.list_by_company: %w", err)
	}
	return out, nil
}
