package entitle

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/normgate/normgate/errors"
	"github.com/normgate/normgate/store"
)

// DefaultCacheTTL bounds staleness of cached partition sets when no
// explicit invalidation reaches this process.
const DefaultCacheTTL = 5 * time.Minute

// PaidTermDays is the subscription term granted by a paid activation.
const PaidTermDays = 30

// Resolver computes the partition set a tenant may query. Results are
// cached per tenant; the cache is a performance layer only and every
// cache failure falls back to recomputation.
type Resolver struct {
	store  Store
	cache  store.Cache
	ttl    time.Duration
	logger *zap.SugaredLogger

	// now is injectable for expiry tests.
	now func() time.Time
}

// ResolverOption tunes a Resolver.
type ResolverOption func(*Resolver)

func WithCacheTTL(ttl time.Duration) ResolverOption {
	return func(r *Resolver) { r.ttl = ttl }
}

func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) { r.now = now }
}

// NewResolver builds a Resolver. cache may be nil, which disables
// caching entirely.
func NewResolver(entitlements Store, cache store.Cache, logger *zap.SugaredLogger, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		store:  entitlements,
		cache:  cache,
		ttl:    DefaultCacheTTL,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func cacheKey(tenantID string) string {
	return "normgate:partitions:" + tenantID
}

// AllowedPartitions returns the sorted set of partitions the tenant
// may query: the free tier plus every accessible entitlement's grant,
// with an ALL bundle short-circuiting to the full catalog. When the
// entitlement store is unreachable the resolver fails closed to the
// free tier.
func (r *Resolver) AllowedPartitions(ctx context.Context, tenantID string) []string {
	if cached, ok := r.cacheGet(ctx, tenantID); ok {
		return cached
	}

	partitions := r.resolve(ctx, tenantID)
	r.cacheSet(ctx, tenantID, partitions)
	return partitions
}

func (r *Resolver) resolve(ctx context.Context, tenantID string) []string {
	entitlements, err := r.store.ListByTenant(ctx, tenantID)
	if err != nil {
		// Fail closed: a store outage must never widen access.
		if r.logger != nil {
			r.logger.Errorw("entitlement lookup failed, falling back to free tier",
				"tenant_id", tenantID,
				"error", err,
			)
		}
		return append([]string(nil), FreePartitions...)
	}

	now := r.now()
	allowed := map[string]bool{}
	for _, p := range FreePartitions {
		allowed[p] = true
	}

	for _, e := range entitlements {
		if !e.IsAccessible(now) {
			continue
		}
		pkg, ok := LookupPackage(e.PackageType)
		if !ok {
			if r.logger != nil {
				r.logger.Warnw("unknown package type on entitlement",
					"tenant_id", tenantID,
					"package_type", e.PackageType,
				)
			}
			continue
		}
		if pkg.AllPartitions {
			return append([]string(nil), AllPartitions...)
		}
		for _, p := range pkg.Partitions {
			allowed[p] = true
		}
	}

	partitions := make([]string, 0, len(allowed))
	for p := range allowed {
		partitions = append(partitions, p)
	}
	sort.Strings(partitions)
	return partitions
}

// Invalidate drops a tenant's cached partition set. Best-effort: a
// failed invalidation leaves staleness bounded by the TTL.
func (r *Resolver) Invalidate(ctx context.Context, tenantID string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Del(ctx, cacheKey(tenantID)); err != nil {
		if r.logger != nil {
			r.logger.Warnw("cache invalidation failed",
				"tenant_id", tenantID,
				"error", err,
			)
		}
	}
}

func (r *Resolver) cacheGet(ctx context.Context, tenantID string) ([]string, bool) {
	if r.cache == nil {
		return nil, false
	}
	raw, err := r.cache.Get(ctx, cacheKey(tenantID))
	if err != nil {
		if !store.IsMiss(err) && r.logger != nil {
			r.logger.Warnw("partition cache read failed",
				"tenant_id", tenantID,
				"error", err,
			)
		}
		return nil, false
	}
	var partitions []string
	if err := json.Unmarshal([]byte(raw), &partitions); err != nil {
		return nil, false
	}
	return partitions, true
}

func (r *Resolver) cacheSet(ctx context.Context, tenantID string, partitions []string) {
	if r.cache == nil {
		return
	}
	raw, err := json.Marshal(partitions)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, cacheKey(tenantID), string(raw), r.ttl); err != nil {
		if r.logger != nil {
			r.logger.Warnw("partition cache write failed",
				"tenant_id", tenantID,
				"error", err,
			)
		}
	}
}

// Activate grants a tenant a package, as a trial or a paid
// subscription. Duplicate accessible holds on the same package return
// ErrConflict. The tenant's cached partition set is invalidated.
func (r *Resolver) Activate(ctx context.Context, tenantID string, pkg PackageType, trial bool) (Entitlement, error) {
	catalogPkg, ok := LookupPackage(pkg)
	if !ok {
		return Entitlement{}, errors.Wrapf(errors.ErrInvalidRequest, "unknown package type %q", pkg)
	}

	existing, err := r.store.ListByTenant(ctx, tenantID)
	if err != nil {
		return Entitlement{}, errors.Wrap(err, "check existing entitlements")
	}
	now := r.now()
	for _, e := range existing {
		if e.PackageType == pkg && e.IsAccessible(now) {
			return Entitlement{}, errors.Wrapf(errors.ErrConflict, "tenant %s already holds %s", tenantID, pkg)
		}
	}

	e := Entitlement{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		PackageType: pkg,
		Status:      StatusActive,
		StartedAt:   now,
	}
	if trial {
		e.Status = StatusTrial
		trialEnd := now.AddDate(0, 0, catalogPkg.TrialDays)
		e.TrialEnd = &trialEnd
	} else {
		// Monthly subscription; renewal is external and pushes
		// expires_at forward.
		expiresAt := now.AddDate(0, 0, PaidTermDays)
		e.ExpiresAt = &expiresAt
	}

	if err := r.store.Insert(ctx, e); err != nil {
		return Entitlement{}, err
	}

	action := "entitlement.activated"
	if trial {
		action = "entitlement.trial_started"
	}
	if err := r.store.AppendAudit(ctx, tenantID, action, pkg, ""); err != nil && r.logger != nil {
		r.logger.Warnw("audit append failed", "tenant_id", tenantID, "error", err)
	}

	r.Invalidate(ctx, tenantID)
	if r.logger != nil {
		r.logger.Infow("entitlement activated",
			"tenant_id", tenantID,
			"package_type", pkg,
			"status", e.Status,
		)
	}
	return e, nil
}

// Deactivate soft-cancels a tenant's hold on a package and invalidates
// the cached partition set.
func (r *Resolver) Deactivate(ctx context.Context, tenantID string, pkg PackageType, reason string) (Entitlement, error) {
	e, err := r.store.Cancel(ctx, tenantID, pkg, reason)
	if err != nil {
		return Entitlement{}, err
	}

	if err := r.store.AppendAudit(ctx, tenantID, "entitlement.cancelled", pkg, reason); err != nil && r.logger != nil {
		r.logger.Warnw("audit append failed", "tenant_id", tenantID, "error", err)
	}

	r.Invalidate(ctx, tenantID)
	if r.logger != nil {
		r.logger.Infow("entitlement cancelled",
			"tenant_id", tenantID,
			"package_type", pkg,
			"reason", reason,
		)
	}
	return e, nil
}

// HasPartitionAccess reports whether the tenant may query one
// partition.
func (r *Resolver) HasPartitionAccess(ctx context.Context, tenantID, partition string) bool {
	for _, p := range r.AllowedPartitions(ctx, tenantID) {
		if p == partition {
			return true
		}
	}
	return false
}

// ValidatePartitionAccess checks a requested partition set against the
// tenant's allowed set. Returns true when every partition is
// accessible, otherwise false plus the inaccessible ones.
func (r *Resolver) ValidatePartitionAccess(ctx context.Context, tenantID string, partitions []string) (bool, []string) {
	allowed := map[string]bool{}
	for _, p := range r.AllowedPartitions(ctx, tenantID) {
		allowed[p] = true
	}

	var missing []string
	for _, p := range partitions {
		if !allowed[p] {
			missing = append(missing, p)
		}
	}
	return len(missing) == 0, missing
}

// BundleSavings compares a tenant's combined active package spend
// against the all-access bundle price.
type BundleSavings struct {
	ShouldUpgrade       bool
	CurrentMonthlyCents int
	BundleMonthlyCents  int
	MonthlySavingsCents int
}

// BundleSavings sums the prices of the tenant's accessible active
// packages and recommends the bundle when it is cheaper. Trials are
// excluded: they cost nothing yet.
func (r *Resolver) BundleSavings(ctx context.Context, tenantID string) (BundleSavings, error) {
	entitlements, err := r.store.ListByTenant(ctx, tenantID)
	if err != nil {
		return BundleSavings{}, errors.Wrap(err, "list entitlements")
	}

	bundle, _ := LookupPackage(PackageMegaBundle)
	savings := BundleSavings{BundleMonthlyCents: bundle.PriceCents}

	now := r.now()
	for _, e := range entitlements {
		if e.Status != StatusActive || !e.IsAccessible(now) {
			continue
		}
		if pkg, ok := LookupPackage(e.PackageType); ok {
			savings.CurrentMonthlyCents += pkg.PriceCents
		}
	}

	if savings.CurrentMonthlyCents > savings.BundleMonthlyCents {
		savings.ShouldUpgrade = true
		savings.MonthlySavingsCents = savings.CurrentMonthlyCents - savings.BundleMonthlyCents
	}
	return savings, nil
}
