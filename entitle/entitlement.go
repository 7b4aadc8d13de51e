package entitle

import "time"

// Status is the lifecycle state of an entitlement.
type Status string

const (
	StatusTrial     Status = "trial"
	StatusActive    Status = "active"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// Entitlement is one tenant's hold on one package.
type Entitlement struct {
	ID           string
	TenantID     string
	PackageType  PackageType
	Status       Status
	StartedAt    time.Time
	TrialEnd     *time.Time
	ExpiresAt    *time.Time
	CancelledAt  *time.Time
	CancelReason string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsAccessible reports whether the entitlement grants access at the
// given instant. Active entitlements are accessible until expiry
// (never, when expires_at is unset); trials are accessible until
// trial_end. Expired and cancelled entitlements never grant access.
func (e Entitlement) IsAccessible(now time.Time) bool {
	switch e.Status {
	case StatusActive:
		return e.ExpiresAt == nil || e.ExpiresAt.After(now)
	case StatusTrial:
		return e.TrialEnd != nil && e.TrialEnd.After(now)
	default:
		return false
	}
}
