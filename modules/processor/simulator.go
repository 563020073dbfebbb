package processor

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/lanot/goesrecover/goesdb/archive"
	"github.com/lanot/goesrecover/modules/registry"
	"github.com/lanot/goesrecover/pkg/goes"
	"github.com/lanot/goesrecover/pkg/query"
)

// stage is one step of a simulated run.
type stage struct {
	progress int
	message  string
	weight   int
}

var simStages = map[string][]stage{
	"rapido": {
		{10, "Validando parámetros...", 1},
		{40, "Consultando base de datos satelital...", 2},
		{70, "Procesando datos...", 3},
		{90, "Generando resultados...", 2},
		{100, "Completado", 1},
	},
	"normal": {
		{5, "Iniciando validación...", 2},
		{15, "Verificando disponibilidad de datos...", 3},
		{30, "Descargando metadatos...", 4},
		{50, "Procesando bandas espectrales...", 5},
		{70, "Generando productos derivados...", 4},
		{85, "Comprimiendo resultados...", 3},
		{95, "Finalizando...", 2},
		{100, "Procesamiento completado", 1},
	},
	"lento": {
		{5, "Preparando entorno de procesamiento...", 3},
		{15, "Validando grandes volúmenes de datos...", 5},
		{25, "Consultando múltiples fuentes...", 6},
		{40, "Descargando datos satelitales...", 8},
		{60, "Procesando imágenes de alta resolución...", 10},
		{75, "Aplicando algoritmos complejos...", 7},
		{90, "Generando reportes detallados...", 4},
		{100, "Procesamiento de larga duración completado", 2},
	},
}

// simulator walks the retrieval state machine without touching any
// storage. It fabricates target names on the real cadence, applies the
// configured success rates, and produces a report with the same shape,
// which keeps integration tests and load drills off the archive.
type simulator struct {
	cfg    Config
	store  recordStore
	logger log.Logger
	rng    *rand.Rand
}

func newSimulator(cfg Config, store recordStore, logger log.Logger) *simulator {
	seed := cfg.Simulator.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	level.Info(logger).Log("msg", "simulator engine enabled",
		"local_success_rate", cfg.Simulator.LocalSuccessRate,
		"s3_success_rate", cfg.Simulator.S3SuccessRate)
	return &simulator{
		cfg:    cfg,
		store:  store,
		logger: logger,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

func (s *simulator) run(ctx context.Context, rec *registry.Record) error {
	for _, st := range simStages[speedFor(rec.Query)] {
		s.progress(rec.ID, st.progress, st.message)
		if s.cfg.Simulator.StageDelay > 0 {
			select {
			case <-time.After(time.Duration(st.weight) * s.cfg.Simulator.StageDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	report, failed := s.buildSimulatedReport(rec)
	if err := s.store.SaveResults(rec.ID, report, finalMessage(report, failed)); err != nil {
		return errors.Wrap(err, "guardando resultados")
	}
	return nil
}

func (s *simulator) progress(id string, pct int, msg string) {
	if err := s.store.UpdateState(id, registry.StateProcessing, pct, msg); err != nil {
		level.Warn(s.logger).Log("msg", "failed to update progress", "consulta_id", id, "err", err)
	}
}

// speedFor classifies a query by how much work the real engine would do
// with it.
func speedFor(q *query.Query) string {
	products := len(q.Products)
	if products == 0 {
		products = 1
	}
	complexity := q.TotalDays * len(q.Bands) * products
	switch {
	case complexity > 100:
		return "lento"
	case complexity > 30:
		return "normal"
	default:
		return "rapido"
	}
}

type simTarget struct {
	name string
	ymd  string
	rng  string
}

func (s *simulator) buildSimulatedReport(rec *registry.Record) (*Report, int) {
	q := rec.Query
	targets := s.enumerate(q)

	localNames := []string{}
	s3Names := []string{}
	var failedTargets []simTarget
	for _, t := range targets {
		switch {
		case s.rng.Float64() < s.cfg.Simulator.LocalSuccessRate:
			localNames = append(localNames, t.name)
		case s.rng.Float64() < s.cfg.Simulator.S3SuccessRate:
			s3Names = append(s3Names, t.name)
		default:
			failedTargets = append(failedTargets, t)
		}
	}

	// The local store keeps whole archives only when everything in them
	// was asked for; remote files are always individual products.
	if archive.WholeCopy(q) {
		s3Names = s.expandNames(q, s3Names)
	} else {
		localNames = s.expandNames(q, localNames)
		s3Names = s.expandNames(q, s3Names)
	}

	sizeTgz := 100 + s.rng.Float64()*400
	sizeNC := 20 + s.rng.Float64()*130
	totalMB := 0.0
	countAll := map[string]int{}
	countS3 := map[string]int{}
	for _, name := range localNames {
		totalMB += fileSize(name, sizeTgz, sizeNC)
		if prod, ok := goes.ProductBase(name); ok {
			countAll[prod]++
		}
	}
	for _, name := range s3Names {
		totalMB += fileSize(name, sizeTgz, sizeNC)
		if prod, ok := goes.ProductBase(name); ok {
			countAll[prod]++
			countS3[prod]++
		}
	}

	now := time.Now()
	duration := "N/A"
	if created, err := time.Parse(time.RFC3339Nano, rec.CreatedAt); err == nil {
		duration = formatDuration(now.Sub(created))
	}

	maxFiles := maxFilesInReport(s.cfg.MaxFilesPerQuery)
	report := &Report{
		Sources: Sources{
			Lustre: SourceFiles{Files: truncateNames(localNames, maxFiles), Total: len(localNames)},
			S3:     SourceFiles{Files: truncateNames(s3Names, maxFiles), Total: len(s3Names)},
		},
		CountByProduct:   countAll,
		CountByProductS3: countS3,
		TotalFiles:       len(localNames) + len(s3Names),
		TotalMB:          round2(totalMB),
		DestPath:         filepath.Join(s.cfg.DownloadPath, rec.ID),
		ProcessedAt:      now.UTC().Format(time.RFC3339Nano),
		RecoveryQuery:    s.recoveryRequest(rec.ID, failedTargets, q),
		Duration:         duration,
	}
	return report, len(failedTargets)
}

// enumerate fabricates one archive target per observation the query
// covers, on the real scan cadence of each domain.
func (s *simulator) enumerate(q *query.Query) []simTarget {
	letter := goes.DomainLetter(q.Domain)
	code := simSatCode(q)
	l2 := strings.EqualFold(q.Level, "L2")

	var targets []simTarget
	for _, day := range q.DaysSorted() {
		dayTime, err := goes.ParseDay(day)
		if err != nil {
			continue
		}
		for _, rng := range q.Fechas[day] {
			start, end, err := goes.ParseTimeRange(rng)
			if err != nil {
				continue
			}
			for m := start.Minutes(); m <= end.Minutes(); m++ {
				if !scanMinute(q.Domain, m) {
					continue
				}
				at := dayTime.Add(time.Duration(m) * time.Minute)
				stamp := at.Format("20060021504")
				var name string
				if l2 {
					name = fmt.Sprintf("ABI-L2%s-M6_%s-s%s.tgz", letter, code, stamp)
				} else {
					name = fmt.Sprintf("ABI-L1b-Rad%s-M6_%s-s%s.tgz", letter, code, stamp)
				}
				targets = append(targets, simTarget{name: name, ymd: at.Format("20060102"), rng: rng})
			}
		}
	}
	return targets
}

// expandNames turns archive names into the product files extraction
// would have produced.
func (s *simulator) expandNames(q *query.Query, tgzNames []string) []string {
	letter := goes.DomainLetter(q.Domain)
	code := simSatCode(q)
	l2 := strings.EqualFold(q.Level, "L2")

	products := q.Products
	if goes.RequestedAllProducts(q.OriginalProducts()) {
		products = []string{"CMI", "ACHA"}
	}

	out := []string{}
	for _, tgz := range tgzNames {
		stamp, ok := goes.StartStampString(tgz)
		if !ok {
			continue
		}
		if !l2 {
			for _, band := range q.Bands {
				out = append(out, fmt.Sprintf("OR_ABI-L1b-Rad%s-M6C%s_%s_s%s000_e%s000_c%s000.nc", letter, band, code, stamp, stamp, stamp))
			}
			continue
		}
		for _, prod := range products {
			if prod == goes.TokenAll {
				continue
			}
			if goes.ProductRequiresBands(q.Level, prod) {
				for _, band := range q.Bands {
					out = append(out, fmt.Sprintf("CG_ABI-L2-%s%s-M6C%s_%s_s%s000_e%s000_c%s000.nc", prod, letter, band, code, stamp, stamp, stamp))
				}
				continue
			}
			out = append(out, fmt.Sprintf("OR_ABI-L2-%s%s-M6_%s_s%s000_e%s000_c%s000.nc", prod, letter, code, stamp, stamp, stamp))
		}
	}
	return out
}

// recoveryRequest mirrors the real builder but matches ranges verbatim,
// since synthetic targets remember the range that produced them.
func (s *simulator) recoveryRequest(id string, failed []simTarget, q *query.Query) *query.Request {
	if len(failed) == 0 || q.OriginalRequest == nil {
		return nil
	}
	original := q.OriginalRequest

	keys := make([]string, 0, len(original.Fechas))
	for k := range original.Fechas {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	matched := make(map[string][]string)
	for _, t := range failed {
		for _, key := range keys {
			bounds := strings.Split(key, "-")
			if t.ymd < bounds[0] || t.ymd > bounds[len(bounds)-1] {
				continue
			}
			if hasString(original.Fechas[key], t.rng) {
				if !hasString(matched[key], t.rng) {
					matched[key] = append(matched[key], t.rng)
				}
				break
			}
		}
	}
	if len(matched) == 0 {
		return nil
	}

	out := original.Clone()
	out.CreatedBy = ""
	out.Fechas = matched
	out.Description = fmt.Sprintf("Consulta de recuperación simulada para %s", id)
	return out
}

func simSatCode(q *query.Query) string {
	first, err := q.FirstDay()
	if err != nil {
		return "G16"
	}
	code, err := goes.SatCodeForDate(q.Satellite, first)
	if err != nil {
		return "G16"
	}
	return code
}

// scanMinute reports whether an observation starts at this minute of the
// day for the domain cadence.
func scanMinute(domain string, m int) bool {
	switch strings.ToLower(domain) {
	case "fd":
		return m%10 == 0
	case "conus":
		return m%5 == 1
	default:
		return false
	}
}

func fileSize(name string, tgzMB, ncMB float64) float64 {
	if strings.HasSuffix(name, ".tgz") {
		return tgzMB
	}
	return ncMB
}
