package entitle

import (
	"context"
	"database/sql"

	"github.com/normgate/normgate/errors"
)

// Store is the durable entitlement source of truth.
type Store interface {
	ListByTenant(ctx context.Context, tenantID string) ([]Entitlement, error)
	Insert(ctx context.Context, e Entitlement) error
	Cancel(ctx context.Context, tenantID string, pkg PackageType, reason string) (Entitlement, error)
	AppendAudit(ctx context.Context, tenantID, action string, pkg PackageType, detail string) error
}

// SQLStore implements Store on the NormGate SQLite database.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

const entitlementColumns = `id, tenant_id, package_type, status, started_at,
	trial_end, expires_at, cancelled_at, cancel_reason, created_at, updated_at`

// ListByTenant returns every entitlement row for a tenant, newest
// first. Accessibility filtering is the resolver's job.
func (s *SQLStore) ListByTenant(ctx context.Context, tenantID string) ([]Entitlement, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entitlementColumns+` FROM entitlements WHERE tenant_id = ? ORDER BY created_at DESC`,
		tenantID)
	if err != nil {
		return nil, errors.Wrap(err, "query entitlements")
	}
	defer rows.Close()

	var entitlements []Entitlement
	for rows.Next() {
		e, err := scanEntitlement(rows)
		if err != nil {
			return nil, err
		}
		entitlements = append(entitlements, e)
	}
	return entitlements, errors.Wrap(rows.Err(), "iterate entitlements")
}

func (s *SQLStore) Insert(ctx context.Context, e Entitlement) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO entitlements (id, tenant_id, package_type, status, started_at, trial_end, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.TenantID, string(e.PackageType), string(e.Status), e.StartedAt, e.TrialEnd, e.ExpiresAt)
	return errors.Wrap(err, "insert entitlement")
}

// Cancel soft-cancels the tenant's accessible entitlement for a
// package. Returns ErrNotFound when no trial or active row exists.
func (s *SQLStore) Cancel(ctx context.Context, tenantID string, pkg PackageType, reason string) (Entitlement, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entitlementColumns+` FROM entitlements
		 WHERE tenant_id = ? AND package_type = ? AND status IN ('trial', 'active')
		 ORDER BY created_at DESC LIMIT 1`,
		tenantID, string(pkg))
	e, err := scanEntitlement(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entitlement{}, errors.Wrapf(errors.ErrNotFound, "no accessible %s entitlement for tenant %s", pkg, tenantID)
		}
		return Entitlement{}, err
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE entitlements
		 SET status = 'cancelled', cancelled_at = CURRENT_TIMESTAMP, cancel_reason = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		reason, e.ID)
	if err != nil {
		return Entitlement{}, errors.Wrap(err, "cancel entitlement")
	}

	e.Status = StatusCancelled
	e.CancelReason = reason
	return e, nil
}

// AppendAudit records one entitlement lifecycle event.
func (s *SQLStore) AppendAudit(ctx context.Context, tenantID, action string, pkg PackageType, detail string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (tenant_id, action, package_type, detail) VALUES (?, ?, ?, ?)`,
		tenantID, action, string(pkg), detail)
	return errors.Wrap(err, "append audit")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntitlement(row rowScanner) (Entitlement, error) {
	var e Entitlement
	var trialEnd, expiresAt, cancelledAt sql.NullTime
	var cancelReason sql.NullString

	err := row.Scan(&e.ID, &e.TenantID, &e.PackageType, &e.Status, &e.StartedAt,
		&trialEnd, &expiresAt, &cancelledAt, &cancelReason, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entitlement{}, err
		}
		return Entitlement{}, errors.Wrap(err, "scan entitlement")
	}

	if trialEnd.Valid {
		e.TrialEnd = &trialEnd.Time
	}
	if expiresAt.Valid {
		e.ExpiresAt = &expiresAt.Time
	}
	if cancelledAt.Valid {
		e.CancelledAt = &cancelledAt.Time
	}
	e.CancelReason = cancelReason.String
	return e, nil
}
