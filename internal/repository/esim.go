package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/voyasim/backend/internal/domain"
)

const esimColumns = `id, user_id, plan_id, checkout_session_id, provider_order_no,
	iccid, activation_code, smdp_address, qr_code, status, created_at, updated_at`

// EsimRepository handles database operations for activation records and their
// topup history.
type EsimRepository struct {
	db *pgxpool.Pool
}

// NewEsimRepository creates a new EsimRepository.
func NewEsimRepository(db *pgxpool.Pool) *EsimRepository {
	return &EsimRepository{db: db}
}

// CreateIfAbsent inserts an activation record unless one already exists for
// the same checkout session. Returns true when the row was inserted, false
// when a concurrent or earlier fulfillment got there first. The ON CONFLICT
// clause is what closes the duplicate-webhook race.
func (r *EsimRepository) CreateIfAbsent(ctx context.Context, e *domain.Esim) (bool, error) {
	query := `
		INSERT INTO esims (id, user_id, plan_id, checkout_session_id, provider_order_no,
			iccid, activation_code, smdp_address, qr_code, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (checkout_session_id) DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query,
		e.ID, e.UserID, e.PlanID, e.CheckoutSessionID, e.ProviderOrderNo,
		e.ICCID, e.ActivationCode, e.SmdpAddress, e.QRCode, e.Status,
		e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create esim: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// FindBySessionID returns the activation record for a checkout session, or nil.
func (r *EsimRepository) FindBySessionID(ctx context.Context, sessionID string) (*domain.Esim, error) {
	row := r.db.QueryRow(ctx, `SELECT `+esimColumns+` FROM esims WHERE checkout_session_id = $1`, sessionID)
	return scanEsim(row)
}

// FindByID returns an activation record by id, or nil.
func (r *EsimRepository) FindByID(ctx context.Context, id string) (*domain.Esim, error) {
	row := r.db.QueryRow(ctx, `SELECT `+esimColumns+` FROM esims WHERE id = $1`, id)
	return scanEsim(row)
}

// FindByICCID returns an activation record by ICCID, or nil.
func (r *EsimRepository) FindByICCID(ctx context.Context, iccid string) (*domain.Esim, error) {
	row := r.db.QueryRow(ctx, `SELECT `+esimColumns+` FROM esims WHERE iccid = $1 AND iccid <> ''`, iccid)
	return scanEsim(row)
}

// MarkActiveByOrderNo flips the record for a provider order number to active.
// Returns false when no record matches an unknown order; the caller logs and
// moves on. Rejected-submit rows carry an empty provider_order_no, so a blank
// order number never matches.
func (r *EsimRepository) MarkActiveByOrderNo(ctx context.Context, orderNo string) (bool, error) {
	if orderNo == "" {
		return false, nil
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE esims SET status = $1, updated_at = NOW() WHERE provider_order_no = $2 AND provider_order_no <> ''`,
		domain.EsimStatusActive, orderNo)
	if err != nil {
		return false, fmt.Errorf("failed to mark esim active: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListAll returns all activation records, newest first (admin surface).
func (r *EsimRepository) ListAll(ctx context.Context) ([]*domain.Esim, error) {
	rows, err := r.db.Query(ctx, `SELECT `+esimColumns+` FROM esims ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list esims: %w", err)
	}
	defer rows.Close()

	var esims []*domain.Esim
	for rows.Next() {
		var e domain.Esim
		if err := rows.Scan(&e.ID, &e.UserID, &e.PlanID, &e.CheckoutSessionID, &e.ProviderOrderNo,
			&e.ICCID, &e.ActivationCode, &e.SmdpAddress, &e.QRCode, &e.Status,
			&e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan esim: %w", err)
		}
		esims = append(esims, &e)
	}
	return esims, rows.Err()
}

// AppendTopup records one topup in an eSIM's history.
func (r *EsimRepository) AppendTopup(ctx context.Context, t *domain.Topup) error {
	query := `
		INSERT INTO topups (id, esim_id, package_code, provider_topup_id, checkout_session_id, amount_cents, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query,
		t.ID, t.EsimID, t.PackageCode, t.ProviderTopupID, t.CheckoutSessionID, t.AmountCents, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append topup: %w", err)
	}
	return nil
}

// ListTopups returns an eSIM's topup history, oldest first.
func (r *EsimRepository) ListTopups(ctx context.Context, esimID string) ([]*domain.Topup, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, esim_id, package_code, provider_topup_id, checkout_session_id, amount_cents, created_at
		FROM topups WHERE esim_id = $1 ORDER BY created_at
	`, esimID)
	if err != nil {
		return nil, fmt.Errorf("failed to list topups: %w", err)
	}
	defer rows.Close()

	var topups []*domain.Topup
	for rows.Next() {
		var t domain.Topup
		if err := rows.Scan(&t.ID, &t.EsimID, &t.PackageCode, &t.ProviderTopupID,
			&t.CheckoutSessionID, &t.AmountCents, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan topup: %w", err)
		}
		topups = append(topups, &t)
	}
	return topups, rows.Err()
}

func scanEsim(row pgx.Row) (*domain.Esim, error) {
	var e domain.Esim
	err := row.Scan(&e.ID, &e.UserID, &e.PlanID, &e.CheckoutSessionID, &e.ProviderOrderNo,
		&e.ICCID, &e.ActivationCode, &e.SmdpAddress, &e.QRCode, &e.Status,
		&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan esim: %w", err)
	}
	return &e, nil
}
