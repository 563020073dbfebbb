package processor

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/services"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lanot/goesrecover/goesdb/backend"
	"github.com/lanot/goesrecover/goesdb/backend/lustre"
	"github.com/lanot/goesrecover/goesdb/backend/s3"
	"github.com/lanot/goesrecover/goesdb/pool"
	"github.com/lanot/goesrecover/modules/registry"
)

// queueDepth bounds submissions waiting for the processing loop. Records
// beyond it stay in the store and are picked up on the next start.
const queueDepth = 512

var (
	metricQueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "goesrecover",
		Name:      "processor_queries_total",
		Help:      "Total number of queries processed, by terminal state.",
	}, []string{"state"})
	metricQueryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "goesrecover",
		Name:      "processor_query_duration_seconds",
		Help:      "Time spent processing one query end to end.",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
	})
	metricArchives = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "goesrecover",
		Name:      "processor_archives_total",
		Help:      "Local archives processed, by outcome.",
	}, []string{"outcome"})
	metricDownloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "goesrecover",
		Name:      "processor_s3_downloads_total",
		Help:      "Remote objects downloaded, by outcome.",
	}, []string{"outcome"})
)

// S3Source lists and fetches remote objects.
type S3Source interface {
	Discover(ctx context.Context, req s3.DiscoverRequest) (map[string]backend.Object, error)
	Download(ctx context.Context, bucket, key, destDir string) error
}

// recordStore is the slice of the registry the processor writes through.
type recordStore interface {
	Get(id string) (*registry.Record, error)
	PendingIDs() ([]string, error)
	UpdateState(id, state string, progress int, message string) error
	SaveResults(id string, results interface{}, message string) error
}

// engine runs one query to its terminal state, writing progress as it
// goes. A returned error means the run was abandoned and the record must
// be marked failed.
type engine interface {
	run(ctx context.Context, rec *registry.Record) error
}

// Processor consumes accepted queries one at a time and drives them to a
// terminal state. File level parallelism comes from the shared worker
// pool, not from overlapping queries.
type Processor struct {
	services.Service

	cfg    Config
	store  recordStore
	engine engine
	logger log.Logger

	queue chan string
}

func New(cfg Config, store recordStore, local *lustre.Discoverer, remote S3Source, workers *pool.Pool, logger log.Logger) (*Processor, error) {
	if err := ValidateConfig(&cfg); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}

	p := &Processor{
		cfg:    cfg,
		store:  store,
		logger: logger,
		queue:  make(chan string, queueDepth),
	}

	switch cfg.Mode {
	case ModeSimulator:
		p.engine = newSimulator(cfg, store, logger)
	default:
		p.engine = newRetriever(cfg, store, local, remote, workers, logger)
	}

	p.Service = services.NewBasicService(p.starting, p.running, p.stopping)
	return p, nil
}

// Enqueue schedules one query for processing. A full queue is reported to
// the caller; the record stays pending and is retried on the next start.
func (p *Processor) Enqueue(id string) error {
	select {
	case p.queue <- id:
		return nil
	default:
		return fmt.Errorf("la cola de procesamiento está llena")
	}
}

func (p *Processor) starting(context.Context) error {
	if err := os.MkdirAll(p.cfg.DownloadPath, 0o755); err != nil {
		return errors.Wrap(err, "creating download directory")
	}
	level.Info(p.logger).Log("msg", "processor starting", "mode", p.cfg.Mode, "download_path", p.cfg.DownloadPath)
	return nil
}

func (p *Processor) running(ctx context.Context) error {
	// Records interrupted by a previous shutdown stay recibido or
	// procesando in the store. They are drained before new submissions;
	// the pipeline is idempotent so a rerun converges.
	pending, err := p.store.PendingIDs()
	if err != nil {
		return errors.Wrap(err, "listing pending queries")
	}
	if len(pending) > 0 {
		level.Info(p.logger).Log("msg", "resuming interrupted queries", "count", len(pending))
	}
	for _, id := range pending {
		if ctx.Err() != nil {
			return nil
		}
		p.processOne(ctx, id)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case id := <-p.queue:
			p.processOne(ctx, id)
		}
	}
}

func (p *Processor) stopping(error) error {
	level.Info(p.logger).Log("msg", "processor stopping")
	return nil
}

func (p *Processor) processOne(ctx context.Context, id string) {
	rec, err := p.store.Get(id)
	if err != nil {
		level.Warn(p.logger).Log("msg", "queued query has no record", "consulta_id", id, "err", err)
		return
	}
	if rec.Query == nil {
		level.Warn(p.logger).Log("msg", "queued record has no canonical query", "consulta_id", id)
		return
	}

	start := time.Now()
	if err := p.engine.run(ctx, rec); err != nil {
		// An interrupted run is not a failed query. The record keeps its
		// last progress and is resumed on the next start.
		if errors.Is(err, context.Canceled) {
			level.Info(p.logger).Log("msg", "query interrupted, will resume on restart", "consulta_id", id)
			return
		}
		metricQueriesTotal.WithLabelValues(registry.StateError).Inc()
		level.Error(p.logger).Log("msg", "query processing failed", "consulta_id", id, "err", err)
		if uerr := p.store.UpdateState(id, registry.StateError, 0, fmt.Sprintf("Error: %s", err)); uerr != nil {
			level.Error(p.logger).Log("msg", "failed to persist query failure", "consulta_id", id, "err", uerr)
		}
		return
	}

	metricQueriesTotal.WithLabelValues(registry.StateCompleted).Inc()
	metricQueryDuration.Observe(time.Since(start).Seconds())
	level.Info(p.logger).Log("msg", "query completed", "consulta_id", id, "duration", time.Since(start))
}
