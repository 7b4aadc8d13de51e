// Package usage records partition accesses for billing attribution.
// Recording is append-only and fire-and-forget: it never blocks or
// fails the classification path.
package usage

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/normgate/normgate/entitle"
	"github.com/normgate/normgate/errors"
)

// Recorder writes partition access rows asynchronously.
type Recorder struct {
	db           *sql.DB
	entitlements entitle.Store
	logger       *zap.SugaredLogger

	now func() time.Time
	wg  sync.WaitGroup
}

func NewRecorder(db *sql.DB, entitlements entitle.Store, logger *zap.SugaredLogger) *Recorder {
	return &Recorder{
		db:           db,
		entitlements: entitlements,
		logger:       logger,
		now:          time.Now,
	}
}

// Record logs one partition access in the background. Errors are
// logged and swallowed.
func (r *Recorder) Record(tenantID, partition, operation string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.record(ctx, tenantID, partition, operation); err != nil {
			if r.logger != nil {
				r.logger.Warnw("usage recording failed",
					"tenant_id", tenantID,
					"partition", partition,
					"error", err,
				)
			}
		}
	}()
}

// Flush waits for in-flight recordings. Intended for shutdown and
// tests.
func (r *Recorder) Flush() {
	r.wg.Wait()
}

func (r *Recorder) record(ctx context.Context, tenantID, partition, operation string) error {
	pkg := r.attribute(ctx, tenantID, partition)

	var pkgValue any
	if pkg != nil {
		pkgValue = string(*pkg)
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO partition_usage (tenant_id, partition, operation, package_type, recorded_at)
		 VALUES (?, ?, ?, ?, ?)`,
		tenantID, partition, operation, pkgValue, r.now())
	return errors.Wrap(err, "insert partition usage")
}

// attribute names the package that owns the accessed partition. Free
// partitions attribute to no package; a specific package wins over an
// ALL bundle when the tenant holds both.
func (r *Recorder) attribute(ctx context.Context, tenantID, partition string) *entitle.PackageType {
	for _, free := range entitle.FreePartitions {
		if partition == free {
			return nil
		}
	}

	entitlements, err := r.entitlements.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil
	}

	now := r.now()
	var bundle *entitle.PackageType
	for _, e := range entitlements {
		if !e.IsAccessible(now) {
			continue
		}
		pkg, ok := entitle.LookupPackage(e.PackageType)
		if !ok {
			continue
		}
		if pkg.AllPartitions {
			if bundle == nil {
				t := e.PackageType
				bundle = &t
			}
			continue
		}
		for _, p := range pkg.Partitions {
			if p == partition {
				t := e.PackageType
				return &t
			}
		}
	}
	return bundle
}

// PartitionStat aggregates accesses for one (partition, operation)
// pair.
type PartitionStat struct {
	Partition   string
	Operation   string
	PackageType string
	Count       int
}

// Stats aggregates a tenant's recorded accesses over the trailing
// number of days.
func (r *Recorder) Stats(ctx context.Context, tenantID string, days int) ([]PartitionStat, error) {
	since := r.now().AddDate(0, 0, -days)
	rows, err := r.db.QueryContext(ctx,
		`SELECT partition, operation, COALESCE(package_type, ''), COUNT(*)
		 FROM partition_usage
		 WHERE tenant_id = ? AND recorded_at >= ?
		 GROUP BY partition, operation, package_type
		 ORDER BY COUNT(*) DESC`,
		tenantID, since)
	if err != nil {
		return nil, errors.Wrap(err, "query usage stats")
	}
	defer rows.Close()

	var stats []PartitionStat
	for rows.Next() {
		var s PartitionStat
		if err := rows.Scan(&s.Partition, &s.Operation, &s.PackageType, &s.Count); err != nil {
			return nil, errors.Wrap(err, "scan usage stat")
		}
		stats = append(stats, s)
	}
	return stats, errors.Wrap(rows.Err(), "iterate usage stats")
}
