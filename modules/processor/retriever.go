package processor

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/lanot/goesrecover/goesdb/archive"
	"github.com/lanot/goesrecover/goesdb/backend"
	"github.com/lanot/goesrecover/goesdb/backend/lustre"
	"github.com/lanot/goesrecover/goesdb/backend/s3"
	"github.com/lanot/goesrecover/goesdb/pool"
	"github.com/lanot/goesrecover/modules/registry"
	"github.com/lanot/goesrecover/pkg/goes"
	"github.com/lanot/goesrecover/pkg/query"
)

// retriever is the real engine. It assembles the destination directory
// from the local archive store first and the public bucket as fallback,
// then reports on whatever ended up there.
type retriever struct {
	cfg    Config
	store  recordStore
	local  *lustre.Discoverer
	remote S3Source
	pool   *pool.Pool
	logger log.Logger
}

func newRetriever(cfg Config, store recordStore, local *lustre.Discoverer, remote S3Source, workers *pool.Pool, logger log.Logger) *retriever {
	return &retriever{
		cfg:    cfg,
		store:  store,
		local:  local,
		remote: remote,
		pool:   workers,
		logger: logger,
	}
}

func (e *retriever) run(ctx context.Context, rec *registry.Record) error {
	q := rec.Query
	dest := filepath.Join(e.cfg.DownloadPath, rec.ID)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return errors.Wrap(err, "preparando directorio destino")
	}
	e.progress(rec.ID, 10, "Preparando entorno")

	var failedLocal []string
	if e.local != nil && e.local.Enabled() {
		var err error
		failedLocal, err = e.localStage(ctx, rec.ID, q, dest)
		if err != nil {
			return err
		}
	} else {
		e.progress(rec.ID, 20, "Lustre deshabilitado; saltando recuperación local.")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	downloaded := map[string]struct{}{}
	var failedS3 []string
	if e.cfg.S3Fallback && e.remote != nil {
		var err error
		downloaded, failedS3, err = e.s3Stage(ctx, rec.ID, q, dest)
		if err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	e.progress(rec.ID, 95, "Generando reporte final")

	failed := append(append([]string{}, failedLocal...), failedS3...)
	report, err := buildReport(reportInput{
		ID:         rec.ID,
		Dest:       dest,
		Downloaded: downloaded,
		Failed:     failed,
		Query:      q,
		CreatedAt:  rec.CreatedAt,
		MaxFiles:   maxFilesInReport(e.cfg.MaxFilesPerQuery),
		Now:        time.Now(),
	}, e.logger)
	if err != nil {
		return err
	}

	if err := e.store.SaveResults(rec.ID, report, finalMessage(report, len(failed))); err != nil {
		return errors.Wrap(err, "guardando resultados")
	}
	return nil
}

// localStage recovers from the packaged archive store. Archive paths
// that fail or time out are returned for the recovery query; they never
// abort the run.
func (e *retriever) localStage(ctx context.Context, id string, q *query.Query, dest string) ([]string, error) {
	candidates, err := e.local.DiscoverAndFilter(localEligible(q))
	if err != nil {
		return nil, errors.Wrap(err, "descubriendo archivos locales")
	}
	pending, err := e.local.ScanExisting(candidates, dest)
	if err != nil {
		return nil, errors.Wrap(err, "explorando directorio destino")
	}

	total := len(pending)
	e.progress(id, 20, fmt.Sprintf("Identificados %d archivos pendientes de procesar.", total))
	if total == 0 {
		return nil, nil
	}

	payloads := make([]interface{}, len(pending))
	for i, src := range pending {
		payloads[i] = src
	}
	results := e.pool.RunJobs(ctx, payloads, e.cfg.FileTimeout, func(jobCtx context.Context, payload interface{}) error {
		return processArchive(jobCtx, payload.(string), dest, q)
	})

	var failed []string
	done := 0
	for res := range results {
		done++
		src := res.Payload.(string)
		name := filepath.Base(src)

		var msg string
		switch {
		case res.TimedOut:
			failed = append(failed, src)
			metricArchives.WithLabelValues("timeout").Inc()
			level.Warn(e.logger).Log("msg", "archive processing timed out", "consulta_id", id, "archivo", name)
			msg = fmt.Sprintf("Falla por timeout %d/%d (%s)", done, total, name)
		case res.Err != nil:
			failed = append(failed, src)
			metricArchives.WithLabelValues("failed").Inc()
			level.Warn(e.logger).Log("msg", "archive processing failed", "consulta_id", id, "archivo", name, "err", res.Err)
			msg = fmt.Sprintf("Falla %d/%d (%s)", done, total, name)
		default:
			metricArchives.WithLabelValues("processed").Inc()
			msg = fmt.Sprintf("Recuperado archivo %d/%d (%s)", done, total, name)
		}
		e.progress(id, 20+int(math.Round(float64(done)/float64(total)*60)), msg)
	}
	return failed, nil
}

// processArchive runs one extraction under the job deadline. Extraction
// itself does not poll the context, so it is pushed to a goroutine and
// abandoned on expiry the way a killed worker task would be.
func processArchive(ctx context.Context, src, dest string, q *query.Query) error {
	done := make(chan error, 1)
	go func() {
		_, err := archive.Process(src, dest, q)
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// s3Stage fills in whatever the local pass could not provide. Returns
// the set of basenames fetched remotely (for report classification) and
// the names that failed every retry.
func (e *retriever) s3Stage(ctx context.Context, id string, q *query.Query, dest string) (map[string]struct{}, []string, error) {
	e.progress(id, 85, "Buscando archivos adicionales en S3.")

	first, err := q.FirstDay()
	if err != nil {
		return nil, nil, err
	}
	code, err := goes.SatCodeForDate(q.Satellite, first)
	if err != nil {
		return nil, nil, err
	}
	bucket := goes.BucketForCode(code)

	objects, err := e.discoverRemote(ctx, q, bucket)
	if err != nil {
		return nil, nil, errors.Wrap(err, "buscando archivos en s3")
	}

	names := make([]string, 0, len(objects))
	for name := range objects {
		names = append(names, name)
	}
	sort.Strings(names)

	e.progress(id, 85, fmt.Sprintf("Descargas S3 pendientes: %d", len(names)))

	return e.download(ctx, id, bucket, objects, names, dest)
}

// discoverRemote lists the bucket for the query. L2 queries are listed
// in two passes so the band filter only constrains CMI-family products.
func (e *retriever) discoverRemote(ctx context.Context, q *query.Query, bucket string) (map[string]backend.Object, error) {
	letter := goes.DomainLetter(q.Domain)
	out := make(map[string]backend.Object)

	merge := func(req s3.DiscoverRequest) error {
		found, err := e.remote.Discover(ctx, req)
		if err != nil {
			return err
		}
		for name, obj := range found {
			out[name] = obj
		}
		return nil
	}

	if !strings.EqualFold(q.Level, "L2") {
		err := merge(s3.DiscoverRequest{
			Bucket:       bucket,
			ProductPaths: []string{goes.ProductPathL1b(q.Sensor, letter)},
			Fechas:       q.Fechas,
			Bands:        q.Bands,
		})
		return out, err
	}

	var cmi, others []string
	for _, p := range q.Products {
		if goes.ProductRequiresBands(q.Level, p) {
			cmi = append(cmi, p)
		} else {
			others = append(others, p)
		}
	}

	if len(cmi) > 0 {
		if err := merge(s3.DiscoverRequest{
			Bucket:       bucket,
			ProductPaths: productPaths(q.Sensor, cmi, letter),
			Fechas:       q.Fechas,
			Bands:        q.Bands,
		}); err != nil {
			return nil, err
		}
	}
	if len(others) > 0 {
		if err := merge(s3.DiscoverRequest{
			Bucket:       bucket,
			ProductPaths: productPaths(q.Sensor, others, letter),
			Fechas:       q.Fechas,
		}); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (e *retriever) download(ctx context.Context, id, bucket string, objects map[string]backend.Object, names []string, dest string) (map[string]struct{}, []string, error) {
	downloaded := make(map[string]struct{}, len(names))

	// Files already present count as done so a restarted query reports
	// real progress instead of starting over.
	existing := 0
	pendingNames := make([]string, 0, len(names))
	for _, name := range names {
		if fi, err := os.Stat(filepath.Join(dest, name)); err == nil && fi.Size() > 0 {
			downloaded[name] = struct{}{}
			existing++
			continue
		}
		pendingNames = append(pendingNames, name)
	}

	denom := len(names)
	if denom == 0 {
		denom = 1
	}
	completed := existing
	if nc := countProductFiles(dest); nc > completed {
		completed = nc
	}
	if completed > denom {
		completed = denom
	}
	e.progress(id, 85+completed*10/denom, fmt.Sprintf("S3 progreso: %d/%d", completed, denom))

	if len(pendingNames) == 0 {
		level.Info(e.logger).Log("msg", "no pending s3 downloads", "consulta_id", id, "present", completed, "total", denom)
		return downloaded, nil, nil
	}

	payloads := make([]interface{}, len(pendingNames))
	for i, n := range pendingNames {
		payloads[i] = n
	}
	results := e.pool.RunJobs(ctx, payloads, 0, func(jobCtx context.Context, payload interface{}) error {
		obj := objects[payload.(string)]
		return e.remote.Download(jobCtx, bucket, obj.Key, dest)
	})

	var failed []string
	for res := range results {
		name := res.Payload.(string)
		if res.Err != nil {
			failed = append(failed, name)
			metricDownloads.WithLabelValues("failed").Inc()
			level.Warn(e.logger).Log("msg", "s3 download failed", "consulta_id", id, "archivo", name, "err", res.Err)
		} else {
			downloaded[name] = struct{}{}
			metricDownloads.WithLabelValues("downloaded").Inc()
		}

		if completed < denom {
			completed++
		}
		if completed%e.cfg.S3ProgressStep == 0 || completed == denom {
			e.progress(id, 85+completed*10/denom, fmt.Sprintf("S3 progreso: %d/%d", completed, denom))
		}
	}
	return downloaded, failed, nil
}

func (e *retriever) progress(id string, pct int, msg string) {
	if err := e.store.UpdateState(id, registry.StateProcessing, pct, msg); err != nil {
		level.Warn(e.logger).Log("msg", "failed to update progress", "consulta_id", id, "err", err)
	}
}

// localEligible strips products served only by the public bucket; the
// local store never archives them.
func localEligible(q *query.Query) *query.Query {
	kept := make([]string, 0, len(q.Products))
	for _, p := range q.Products {
		if !goes.IsS3Only(p) {
			kept = append(kept, p)
		}
	}
	if len(kept) == len(q.Products) {
		return q
	}
	out := *q
	out.Products = kept
	return &out
}

func productPaths(sensor string, products []string, letter string) []string {
	paths := make([]string, 0, len(products))
	for _, p := range products {
		paths = append(paths, goes.ProductPathL2(sensor, p, letter))
	}
	return paths
}

func countProductFiles(dest string) int {
	entries, err := os.ReadDir(dest)
	if err != nil {
		return 0
	}
	n := 0
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".nc") {
			n++
		}
	}
	return n
}
