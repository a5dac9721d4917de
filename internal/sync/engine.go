package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const (
	otelScope        = "tillsync/sync"
	spanSyncAll      = "sync.all"
	spanSyncOrders   = "sync.orders"
	metricPulled     = "tillsync.sync.rows.pulled"
	metricPushed     = "tillsync.sync.orders.pushed"
	metricPushFailed = "tillsync.sync.orders.failed"
	metricErrors     = "tillsync.sync.errors"
)

// Engine orchestrates pull and push between the central database and the
// mirror. Create one with [NewEngine]; it is safe for concurrent use, with
// passes serialized internally.
type Engine struct {
	remote   RemoteStore
	mirror   MirrorStore
	settings Settings
	log      *slog.Logger
	progress func(Progress)

	// mu serializes sync passes: the ticker loop and the repositories'
	// best-effort pushes may fire at the same time.
	mu sync.Mutex

	// OTel instruments — always non-nil (no-op when telemetry is disabled).
	tracer        trace.Tracer
	cntPulled     metric.Int64Counter
	cntPushed     metric.Int64Counter
	cntPushFailed metric.Int64Counter
	cntErrors     metric.Int64Counter
}

// Option configures an Engine.
type Option func(*Engine)

// WithProgress installs a callback invoked after each completed stage, e.g.
// to drive a progress bar on the till screen. The callback runs on the
// syncing goroutine and must return quickly.
func WithProgress(fn func(Progress)) Option {
	return func(e *Engine) { e.progress = fn }
}

// NewEngine creates an Engine over a remote/mirror store pair.
func NewEngine(remote RemoteStore, mirror MirrorStore, settings Settings, logger *slog.Logger, opts ...Option) *Engine {
	tracer := otel.Tracer(otelScope)
	meter := otel.Meter(otelScope)

	mustCounter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			logger.Error("creating OTel counter", "name", name, "error", err)
			return noop.Int64Counter{}
		}
		return c
	}

	e := &Engine{
		remote:   remote,
		mirror:   mirror,
		settings: settings,
		log:      logger,

		tracer:        tracer,
		cntPulled:     mustCounter(metricPulled, "Number of catalogue rows pulled into the mirror"),
		cntPushed:     mustCounter(metricPushed, "Number of orders pushed to the central DB"),
		cntPushFailed: mustCounter(metricPushFailed, "Number of order pushes that failed"),
		cntErrors:     mustCounter(metricErrors, "Number of sync passes that failed"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SyncAll runs one full pass: the four pull stages in fixed order, then the
// order push. Any pull failure aborts the pass, leaving the previous mirror
// contents intact for every stage that had not yet committed. Only a pass in
// which every pending order went out clears the remote catalogue-changed flag
// and stamps the last-sync time.
func (e *Engine) SyncAll(ctx context.Context) (Stats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, span := e.tracer.Start(ctx, spanSyncAll)
	defer span.End()

	start := time.Now()
	var stats Stats

	if err := e.pull(ctx, &stats); err != nil {
		e.cntErrors.Add(ctx, 1)
		span.RecordError(err)
		return stats, err
	}

	pushed, failed, err := e.pushOrders(ctx)
	stats.PushedOrders = pushed
	stats.FailedOrders = failed
	if err != nil {
		e.cntErrors.Add(ctx, 1)
		span.RecordError(err)
		return stats, err
	}
	e.report(StageOrders, 100)

	// Only a fully clean pass counts as "in sync": a skipped order keeps the
	// changed flag raised and the old timestamp, so the next tick retries.
	if failed == 0 {
		if err := e.remote.ClearCatalogueChanged(ctx); err != nil {
			e.log.Warn("clearing catalogue-changed flag failed", "error", err)
		}
		if err := e.mirror.SetLastSyncTime(ctx, time.Now()); err != nil {
			e.log.Warn("stamping last-sync time failed", "error", err)
		}
	}

	e.cntPulled.Add(ctx, int64(stats.Pulled()))
	span.SetAttributes(
		attribute.Int("sync.rows_pulled", stats.Pulled()),
		attribute.Int("sync.orders_pushed", stats.PushedOrders),
		attribute.Int("sync.orders_failed", stats.FailedOrders),
	)
	e.log.Info("sync finished",
		"rows_pulled", stats.Pulled(),
		"orders_pushed", stats.PushedOrders,
		"orders_failed", stats.FailedOrders,
		"duration", time.Since(start))
	return stats, nil
}

// pull refreshes the mirrored catalogue wholesale, stage by stage. Each
// stage fetches the full remote table first and only then replaces the
// mirror copy, so a failed fetch never empties the mirror.
func (e *Engine) pull(ctx context.Context, stats *Stats) error {
	products, err := e.remote.Products(ctx)
	if err != nil {
		return fmt.Errorf("pulling products: %w", err)
	}
	if err := e.mirror.ReplaceProducts(ctx, products); err != nil {
		return fmt.Errorf("mirroring products: %w", err)
	}
	stats.PulledProducts = len(products)
	e.report(StageProducts, 20)

	groups, err := e.remote.Groups(ctx)
	if err != nil {
		return fmt.Errorf("pulling product groups: %w", err)
	}
	if err := e.mirror.ReplaceGroups(ctx, groups); err != nil {
		return fmt.Errorf("mirroring product groups: %w", err)
	}
	stats.PulledGroups = len(groups)
	e.report(StageGroups, 40)

	points, err := e.remote.ServicingPoints(ctx)
	if err != nil {
		return fmt.Errorf("pulling servicing points: %w", err)
	}
	areas, err := e.remote.Areas(ctx)
	if err != nil {
		return fmt.Errorf("pulling areas: %w", err)
	}
	if err := e.mirror.ReplaceServicingPoints(ctx, points); err != nil {
		return fmt.Errorf("mirroring servicing points: %w", err)
	}
	if err := e.mirror.ReplaceAreas(ctx, areas); err != nil {
		return fmt.Errorf("mirroring areas: %w", err)
	}
	stats.PulledTables = len(points)
	stats.PulledAreas = len(areas)
	e.report(StageTables, 60)

	mods, err := e.remote.Modifiers(ctx)
	if err != nil {
		return fmt.Errorf("pulling modifiers: %w", err)
	}
	courses, err := e.remote.Courses(ctx)
	if err != nil {
		return fmt.Errorf("pulling courses: %w", err)
	}
	if err := e.mirror.ReplaceModifiers(ctx, mods); err != nil {
		return fmt.Errorf("mirroring modifiers: %w", err)
	}
	if err := e.mirror.ReplaceCourses(ctx, courses); err != nil {
		return fmt.Errorf("mirroring courses: %w", err)
	}
	stats.PulledModifiers = len(mods)
	stats.PulledCourses = len(courses)
	e.report(StageReference, 80)

	return nil
}

// SyncOrders pushes every pending order, one remote transaction each. A
// failing order is logged and skipped; the rest still go out. An unreachable
// central database aborts the whole phase instead.
func (e *Engine) SyncOrders(ctx context.Context) (pushed, failed int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, span := e.tracer.Start(ctx, spanSyncOrders)
	defer span.End()

	pushed, failed, err = e.pushOrders(ctx)
	if err != nil {
		e.cntErrors.Add(ctx, 1)
		span.RecordError(err)
	}
	return pushed, failed, err
}

func (e *Engine) pushOrders(ctx context.Context) (pushed, failed int, err error) {
	if err := e.remote.Probe(ctx); err != nil {
		return 0, 0, fmt.Errorf("central DB unreachable: %w", err)
	}

	orders, err := e.mirror.UnsyncedOrders(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("listing pending orders: %w", err)
	}

	for i := range orders {
		o := &orders[i]
		if err := e.remote.PushOrder(ctx, o); err != nil {
			e.log.Error("order push failed, keeping pending", "order_id", o.ID, "error", err)
			e.cntPushFailed.Add(ctx, 1)
			failed++
			continue
		}
		marked, err := e.mirror.MarkOrderSynced(ctx, o.ID, o.Rev)
		if err != nil {
			// Pushed but not marked: the next pass re-pushes, which the
			// remote upserts absorb.
			e.log.Error("marking order synced failed", "order_id", o.ID, "error", err)
			e.cntPushFailed.Add(ctx, 1)
			failed++
			continue
		}
		if !marked {
			// The order was mutated while its previous state was in flight.
			// It stays pending and the next pass pushes the newer revision.
			e.log.Info("order changed during push, keeping pending", "order_id", o.ID)
			failed++
			continue
		}
		e.cntPushed.Add(ctx, 1)
		pushed++
	}
	return pushed, failed, nil
}

// IsSyncNeeded reports whether a full sync would do any work: pending local
// orders or a raised catalogue-changed flag. An unreachable central database
// means no sync is possible, hence none is needed.
func (e *Engine) IsSyncNeeded(ctx context.Context) (bool, error) {
	pending, err := e.mirror.PendingOrderCount(ctx)
	if err != nil {
		return false, err
	}
	if pending > 0 {
		return true, nil
	}

	if err := e.remote.Probe(ctx); err != nil {
		return false, nil
	}
	changed, err := e.remote.CatalogueChanged(ctx)
	if err != nil {
		e.log.Warn("reading catalogue-changed flag failed", "error", err)
		return false, nil
	}
	return changed, nil
}

// Run drives the background loop: every interval, when auto-sync is on and
// the operator has not forced offline, run a full pass if one is needed. It
// blocks until ctx is cancelled. Interval changes take effect on the next
// tick.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info("sync loop started", "interval", e.settings.SyncInterval())

	// Immediate first pass so a till that was offline overnight catches up
	// without waiting a full interval.
	e.tick(ctx)

	ticker := time.NewTicker(e.settings.SyncInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.log.Info("sync loop shutting down")
			return ctx.Err()
		case <-ticker.C:
			e.tick(ctx)
			ticker.Reset(e.settings.SyncInterval())
		}
	}
}

func (e *Engine) tick(ctx context.Context) {
	if !e.settings.AutoSync() || e.settings.ForceOffline() {
		return
	}
	needed, err := e.IsSyncNeeded(ctx)
	if err != nil {
		e.log.Error("checking sync need failed", "error", err)
		return
	}
	if !needed {
		return
	}
	if _, err := e.SyncAll(ctx); err != nil {
		e.log.Error("sync failed", "error", err)
	}
}

func (e *Engine) report(stage Stage, percent int) {
	e.log.Debug("sync stage done", "stage", stage, "percent", percent)
	if e.progress != nil {
		e.progress(Progress{Stage: stage, Percent: percent})
	}
}
