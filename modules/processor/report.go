package processor

import (
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/lanot/goesrecover/pkg/goes"
	"github.com/lanot/goesrecover/pkg/query"
)

// defaultMaxFilesInReport caps the per-source file lists when no explicit
// query limit is configured. Totals always reflect the full counts.
const defaultMaxFilesInReport = 1000

type SourceFiles struct {
	Files []string `json:"archivos"`
	Total int      `json:"total"`
}

type Sources struct {
	Lustre SourceFiles `json:"lustre"`
	S3     SourceFiles `json:"s3"`
}

// Report is the persisted result of one completed query.
type Report struct {
	Sources          Sources        `json:"fuentes"`
	CountByProduct   map[string]int `json:"conteo_por_producto"`
	CountByProductS3 map[string]int `json:"conteo_por_producto_s3"`
	TotalFiles       int            `json:"total_archivos"`
	TotalMB          float64        `json:"total_mb"`
	DestPath         string         `json:"ruta_destino"`
	ProcessedAt      string         `json:"timestamp_procesamiento"`
	RecoveryQuery    *query.Request `json:"consulta_recuperacion"`
	Duration         string         `json:"duracion_procesamiento"`
}

type reportInput struct {
	ID         string
	Dest       string
	Downloaded map[string]struct{}
	Failed     []string
	Query      *query.Query
	CreatedAt  string
	MaxFiles   int
	Now        time.Time
}

// buildReport scans the destination directory and classifies every file
// by whether the remote stage fetched it. The destination is the source
// of truth for what was retrieved; the download set only attributes
// origin.
func buildReport(in reportInput, logger log.Logger) (*Report, error) {
	entries, err := os.ReadDir(in.Dest)
	if err != nil {
		return nil, errors.Wrap(err, "leyendo directorio destino")
	}

	lustreNames := []string{}
	s3Names := []string{}
	countAll := map[string]int{}
	countS3 := map[string]int{}
	var totalBytes int64

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if info, err := entry.Info(); err == nil {
			totalBytes += info.Size()
		}
		if prod, ok := goes.ProductBase(name); ok {
			countAll[prod]++
		}
		if _, ok := in.Downloaded[name]; ok {
			s3Names = append(s3Names, name)
			if prod, ok := goes.ProductBase(name); ok {
				countS3[prod]++
			}
			continue
		}
		lustreNames = append(lustreNames, name)
	}
	sort.Strings(lustreNames)
	sort.Strings(s3Names)

	duration := "N/A"
	if created, err := time.Parse(time.RFC3339Nano, in.CreatedAt); err == nil {
		duration = formatDuration(in.Now.Sub(created))
	} else {
		level.Warn(logger).Log("msg", "invalid creation timestamp, omitting duration", "consulta_id", in.ID, "timestamp", in.CreatedAt)
	}

	return &Report{
		Sources: Sources{
			Lustre: SourceFiles{Files: truncateNames(lustreNames, in.MaxFiles), Total: len(lustreNames)},
			S3:     SourceFiles{Files: truncateNames(s3Names, in.MaxFiles), Total: len(s3Names)},
		},
		CountByProduct:   countAll,
		CountByProductS3: countS3,
		TotalFiles:       len(lustreNames) + len(s3Names),
		TotalMB:          round2(float64(totalBytes) / (1024 * 1024)),
		DestPath:         in.Dest,
		ProcessedAt:      in.Now.UTC().Format(time.RFC3339Nano),
		RecoveryQuery:    buildRecoveryQuery(in.ID, in.Failed, in.Query),
		Duration:         duration,
	}, nil
}

func finalMessage(r *Report, failed int) string {
	msg := fmt.Sprintf("Recuperación: T=%d, L=%d, S=%d", r.TotalFiles, r.Sources.Lustre.Total, r.Sources.S3.Total)
	if failed > 0 {
		msg += fmt.Sprintf(", F=%d", failed)
	}
	return msg
}

func maxFilesInReport(maxPerQuery int) int {
	if maxPerQuery > 0 {
		return maxPerQuery
	}
	return defaultMaxFilesInReport
}

func truncateNames(names []string, limit int) []string {
	if len(names) > limit {
		return names[:limit]
	}
	return names
}

// formatDuration renders H:MM:SS, dropping sub-second precision.
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Truncate(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%d:%02d:%02d", h, m, s)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
