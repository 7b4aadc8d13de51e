package entitle

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normgate/normgate/db"
	"github.com/normgate/normgate/errors"
	"github.com/normgate/normgate/store"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	conn, err := db.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, db.Migrate(conn, nil))
	return NewSQLStore(conn)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestAllowedPartitionsFreeTierOnly(t *testing.T) {
	r := NewResolver(newTestStore(t), nil, nil)

	partitions := r.AllowedPartitions(context.Background(), "tenant-1")
	assert.Equal(t, []string{"norms.json"}, partitions)
}

func TestAllowedPartitionsWithActivePackage(t *testing.T) {
	s := newTestStore(t)
	r := NewResolver(s, nil, nil)
	ctx := context.Background()

	_, err := r.Activate(ctx, "tenant-1", PackageISOBox, false)
	require.NoError(t, err)

	partitions := r.AllowedPartitions(ctx, "tenant-1")
	assert.Equal(t, []string{"norms.json", "norms_iec.json", "norms_iso.json"}, partitions)
}

func TestAllowedPartitionsBundleShortCircuit(t *testing.T) {
	s := newTestStore(t)
	r := NewResolver(s, nil, nil)
	ctx := context.Background()

	_, err := r.Activate(ctx, "tenant-1", PackageUSBox, false)
	require.NoError(t, err)
	_, err = r.Activate(ctx, "tenant-1", PackageMegaBundle, false)
	require.NoError(t, err)

	partitions := r.AllowedPartitions(ctx, "tenant-1")
	assert.Equal(t, AllPartitions, partitions)
}

func TestAllowedPartitionsExpiredTrialExcluded(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	r := NewResolver(s, nil, nil, WithClock(fixedClock(start)))
	_, err := r.Activate(ctx, "tenant-1", PackageAsiaBox, true)
	require.NoError(t, err)

	// During the 14-day trial
	during := NewResolver(s, nil, nil, WithClock(fixedClock(start.AddDate(0, 0, 7))))
	assert.Contains(t, during.AllowedPartitions(ctx, "tenant-1"), "norms_china.json")

	// After the trial window
	after := NewResolver(s, nil, nil, WithClock(fixedClock(start.AddDate(0, 0, 15))))
	assert.Equal(t, []string{"norms.json"}, after.AllowedPartitions(ctx, "tenant-1"))
}

type failingStore struct{}

func (failingStore) ListByTenant(ctx context.Context, tenantID string) ([]Entitlement, error) {
	return nil, errors.New("store down")
}
func (failingStore) Insert(ctx context.Context, e Entitlement) error { return errors.New("store down") }
func (failingStore) Cancel(ctx context.Context, tenantID string, pkg PackageType, reason string) (Entitlement, error) {
	return Entitlement{}, errors.New("store down")
}
func (failingStore) AppendAudit(ctx context.Context, tenantID, action string, pkg PackageType, detail string) error {
	return errors.New("store down")
}

func TestAllowedPartitionsFailsClosedOnStoreError(t *testing.T) {
	r := NewResolver(failingStore{}, nil, nil)

	partitions := r.AllowedPartitions(context.Background(), "tenant-1")
	assert.Equal(t, []string{"norms.json"}, partitions, "store outage must not widen access")
}

type brokenCache struct{}

func (brokenCache) Get(ctx context.Context, key string) (string, error) {
	return "", errors.New("cache down")
}
func (brokenCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return errors.New("cache down")
}
func (brokenCache) Del(ctx context.Context, key string) error { return errors.New("cache down") }

func TestAllowedPartitionsFailsOpenOnCacheError(t *testing.T) {
	s := newTestStore(t)
	r := NewResolver(s, brokenCache{}, nil)
	ctx := context.Background()

	_, err := r.Activate(ctx, "tenant-1", PackageUSBox, false)
	require.NoError(t, err)

	partitions := r.AllowedPartitions(ctx, "tenant-1")
	assert.Equal(t, []string{"norms.json", "norms_us.json"}, partitions)
}

func TestAllowedPartitionsCaching(t *testing.T) {
	s := newTestStore(t)
	cache := store.NewMemoryCache()
	r := NewResolver(s, cache, nil)
	ctx := context.Background()

	_, err := r.Activate(ctx, "tenant-1", PackageUSBox, false)
	require.NoError(t, err)

	first := r.AllowedPartitions(ctx, "tenant-1")
	assert.Equal(t, []string{"norms.json", "norms_us.json"}, first)

	// Cached value survives a direct store mutation that bypasses
	// invalidation.
	require.NoError(t, s.Insert(ctx, Entitlement{
		ID: "raw", TenantID: "tenant-1", PackageType: PackageISOBox,
		Status: StatusActive, StartedAt: time.Now(),
	}))
	assert.Equal(t, first, r.AllowedPartitions(ctx, "tenant-1"))

	// Invalidation exposes the new grant
	r.Invalidate(ctx, "tenant-1")
	assert.Contains(t, r.AllowedPartitions(ctx, "tenant-1"), "norms_iso.json")
}

func TestActivateDuplicateConflict(t *testing.T) {
	r := NewResolver(newTestStore(t), nil, nil)
	ctx := context.Background()

	_, err := r.Activate(ctx, "tenant-1", PackageUSBox, false)
	require.NoError(t, err)

	_, err = r.Activate(ctx, "tenant-1", PackageUSBox, true)
	assert.True(t, errors.IsConflictError(err))
}

func TestActivateUnknownPackage(t *testing.T) {
	r := NewResolver(newTestStore(t), nil, nil)

	_, err := r.Activate(context.Background(), "tenant-1", "no_such_package", false)
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestActivatePaidSetsExpiry(t *testing.T) {
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	r := NewResolver(newTestStore(t), nil, nil, WithClock(fixedClock(start)))

	e, err := r.Activate(context.Background(), "tenant-1", PackageUSBox, false)
	require.NoError(t, err)

	assert.Equal(t, StatusActive, e.Status)
	assert.Nil(t, e.TrialEnd)
	require.NotNil(t, e.ExpiresAt)
	assert.Equal(t, start.AddDate(0, 0, 30), *e.ExpiresAt)
}

func TestAllowedPartitionsPaidAccessLapses(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	r := NewResolver(s, nil, nil, WithClock(fixedClock(start)))
	_, err := r.Activate(ctx, "tenant-1", PackageUSBox, false)
	require.NoError(t, err)

	// Inside the 30-day term
	during := NewResolver(s, nil, nil, WithClock(fixedClock(start.AddDate(0, 0, 20))))
	assert.Contains(t, during.AllowedPartitions(ctx, "tenant-1"), "norms_us.json")

	// Without renewal, access lapses after the term
	after := NewResolver(s, nil, nil, WithClock(fixedClock(start.AddDate(0, 0, 45))))
	assert.Equal(t, []string{"norms.json"}, after.AllowedPartitions(ctx, "tenant-1"))
}

func TestActivateTrialSetsTrialEnd(t *testing.T) {
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	r := NewResolver(newTestStore(t), nil, nil, WithClock(fixedClock(start)))

	e, err := r.Activate(context.Background(), "tenant-1", PackageISOBox, true)
	require.NoError(t, err)

	assert.Equal(t, StatusTrial, e.Status)
	require.NotNil(t, e.TrialEnd)
	assert.Equal(t, start.AddDate(0, 0, 14), *e.TrialEnd)
}

func TestDeactivate(t *testing.T) {
	s := newTestStore(t)
	r := NewResolver(s, store.NewMemoryCache(), nil)
	ctx := context.Background()

	_, err := r.Activate(ctx, "tenant-1", PackageUSBox, false)
	require.NoError(t, err)
	assert.Contains(t, r.AllowedPartitions(ctx, "tenant-1"), "norms_us.json")

	e, err := r.Deactivate(ctx, "tenant-1", PackageUSBox, "customer request")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, e.Status)
	assert.Equal(t, "customer request", e.CancelReason)

	assert.Equal(t, []string{"norms.json"}, r.AllowedPartitions(ctx, "tenant-1"))

	// Re-activation after cancellation is allowed
	_, err = r.Activate(ctx, "tenant-1", PackageUSBox, false)
	assert.NoError(t, err)
}

func TestDeactivateWithoutEntitlement(t *testing.T) {
	r := NewResolver(newTestStore(t), nil, nil)

	_, err := r.Deactivate(context.Background(), "tenant-1", PackageUSBox, "x")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestHasPartitionAccess(t *testing.T) {
	r := NewResolver(newTestStore(t), nil, nil)
	ctx := context.Background()

	assert.True(t, r.HasPartitionAccess(ctx, "tenant-1", "norms.json"))
	assert.False(t, r.HasPartitionAccess(ctx, "tenant-1", "norms_us.json"))

	_, err := r.Activate(ctx, "tenant-1", PackageUSBox, false)
	require.NoError(t, err)
	assert.True(t, r.HasPartitionAccess(ctx, "tenant-1", "norms_us.json"))
}

func TestValidatePartitionAccess(t *testing.T) {
	r := NewResolver(newTestStore(t), nil, nil)
	ctx := context.Background()

	_, err := r.Activate(ctx, "tenant-1", PackageISOBox, false)
	require.NoError(t, err)

	ok, missing := r.ValidatePartitionAccess(ctx, "tenant-1", []string{"norms.json", "norms_iso.json"})
	assert.True(t, ok)
	assert.Empty(t, missing)

	ok, missing = r.ValidatePartitionAccess(ctx, "tenant-1", []string{"norms_iso.json", "norms_us.json", "norms_uk.json"})
	assert.False(t, ok)
	assert.Equal(t, []string{"norms_us.json", "norms_uk.json"}, missing)
}

func TestBundleSavings(t *testing.T) {
	s := newTestStore(t)
	r := NewResolver(s, nil, nil)
	ctx := context.Background()

	// No packages: nothing to save
	savings, err := r.BundleSavings(ctx, "tenant-1")
	require.NoError(t, err)
	assert.False(t, savings.ShouldUpgrade)
	assert.Equal(t, 0, savings.CurrentMonthlyCents)

	// iso_box + asia_box + us_box + automotive = 4999+3999+2999+3499
	// = 15496, above the 9999 bundle
	for _, pkg := range []PackageType{PackageISOBox, PackageAsiaBox, PackageUSBox, PackageIndustryAutomotive} {
		_, err := r.Activate(ctx, "tenant-1", pkg, false)
		require.NoError(t, err)
	}

	savings, err = r.BundleSavings(ctx, "tenant-1")
	require.NoError(t, err)
	assert.True(t, savings.ShouldUpgrade)
	assert.Equal(t, 15496, savings.CurrentMonthlyCents)
	assert.Equal(t, 9999, savings.BundleMonthlyCents)
	assert.Equal(t, 5497, savings.MonthlySavingsCents)
}

func TestBundleSavingsExcludesTrials(t *testing.T) {
	r := NewResolver(newTestStore(t), nil, nil)
	ctx := context.Background()

	_, err := r.Activate(ctx, "tenant-1", PackageISOBox, true)
	require.NoError(t, err)
	_, err = r.Activate(ctx, "tenant-1", PackageUSBox, false)
	require.NoError(t, err)

	savings, err := r.BundleSavings(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, 2999, savings.CurrentMonthlyCents, "trials cost nothing yet")
	assert.False(t, savings.ShouldUpgrade)
}
