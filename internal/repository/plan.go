package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/voyasim/backend/internal/domain"
)

const planColumns = `id, name, type, region, country, data_amount_gb, validity_days,
	price_cents, currency, package_code, topup_available, created_at, updated_at`

// PlanRepository handles database operations for plans.
type PlanRepository struct {
	db *pgxpool.Pool
}

// NewPlanRepository creates a new PlanRepository.
func NewPlanRepository(db *pgxpool.Pool) *PlanRepository {
	return &PlanRepository{db: db}
}

// ListAll returns all plans ordered by name.
func (r *PlanRepository) ListAll(ctx context.Context) ([]*domain.Plan, error) {
	rows, err := r.db.Query(ctx, `SELECT `+planColumns+` FROM plans ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()
	return scanPlans(rows)
}

// FindByID returns a plan by ID, or nil when absent.
func (r *PlanRepository) FindByID(ctx context.Context, id string) (*domain.Plan, error) {
	row := r.db.QueryRow(ctx, `SELECT `+planColumns+` FROM plans WHERE id = $1`, id)
	return scanPlan(row)
}

// FindByPackageCode returns a plan by its provider package code, or nil.
func (r *PlanRepository) FindByPackageCode(ctx context.Context, code string) (*domain.Plan, error) {
	row := r.db.QueryRow(ctx, `SELECT `+planColumns+` FROM plans WHERE package_code = $1`, code)
	return scanPlan(row)
}

// Create inserts a new plan.
func (r *PlanRepository) Create(ctx context.Context, p *domain.Plan) error {
	query := `
		INSERT INTO plans (id, name, type, region, country, data_amount_gb, validity_days,
			price_cents, currency, package_code, topup_available, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.db.Exec(ctx, query,
		p.ID, p.Name, p.Type, p.Region, p.Country, p.DataAmountGB, p.ValidityDays,
		p.PriceCents, p.Currency, p.PackageCode, p.TopupAvailable, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create plan: %w", err)
	}
	return nil
}

// UpdateCatalogFields overwrites the provider-derived fields of a plan while
// leaving price, currency and manually-edited name untouched. Used by sync.
func (r *PlanRepository) UpdateCatalogFields(ctx context.Context, p *domain.Plan) error {
	query := `
		UPDATE plans
		SET type = $1, region = $2, country = $3, data_amount_gb = $4,
			validity_days = $5, topup_available = $6, updated_at = NOW()
		WHERE package_code = $7
	`
	_, err := r.db.Exec(ctx, query,
		p.Type, p.Region, p.Country, p.DataAmountGB, p.ValidityDays, p.TopupAvailable, p.PackageCode,
	)
	if err != nil {
		return fmt.Errorf("failed to update plan catalog fields: %w", err)
	}
	return nil
}

// UpdatePricing applies an admin pricing/naming change.
func (r *PlanRepository) UpdatePricing(ctx context.Context, id string, priceCents *int64, currency, name *string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE plans
		SET price_cents = COALESCE($1, price_cents),
			currency = COALESCE($2, currency),
			name = COALESCE($3, name),
			updated_at = NOW()
		WHERE id = $4
	`, priceCents, currency, name, id)
	if err != nil {
		return fmt.Errorf("failed to update plan pricing: %w", err)
	}
	return nil
}

func scanPlan(row pgx.Row) (*domain.Plan, error) {
	var p domain.Plan
	err := row.Scan(&p.ID, &p.Name, &p.Type, &p.Region, &p.Country, &p.DataAmountGB,
		&p.ValidityDays, &p.PriceCents, &p.Currency, &p.PackageCode, &p.TopupAvailable,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan plan: %w", err)
	}
	return &p, nil
}

func scanPlans(rows pgx.Rows) ([]*domain.Plan, error) {
	var plans []*domain.Plan
	for rows.Next() {
		var p domain.Plan
		if err := rows.Scan(&p.ID, &p.Name, &p.Type, &p.Region, &p.Country, &p.DataAmountGB,
			&p.ValidityDays, &p.PriceCents, &p.Currency, &p.PackageCode, &p.TopupAvailable,
			&p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, &p)
	}
	return plans, rows.Err()
}
