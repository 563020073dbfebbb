package processor

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanot/goesrecover/pkg/query"
)

const (
	reportACHA = "CG_ABI-L2-ACHAC-M6_G16_s20231821201170_e20231821203543_c20231821204091.nc"
	reportDMW  = "OR_ABI-L2-DMWC-M6C14_G16_s20231821206170_e20231821208543_c20231821209067.nc"
	reportTGZ  = "ABI-L2C-M6_G16-s20231821211.tgz"
)

func reportDest(t *testing.T) string {
	t.Helper()
	dest := t.TempDir()
	for _, name := range []string{reportACHA, reportDMW, reportTGZ} {
		require.NoError(t, os.WriteFile(filepath.Join(dest, name), bytes.Repeat([]byte("x"), 262144), 0o644))
	}
	return dest
}

func TestBuildReportClassifiesSources(t *testing.T) {
	dest := reportDest(t)
	created := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)
	now := created.Add(1*time.Hour + 2*time.Minute + 5*time.Second)

	report, err := buildReport(reportInput{
		ID:         "q1",
		Dest:       dest,
		Downloaded: map[string]struct{}{reportDMW: {}},
		Query:      normalized(t, &query.Request{Level: "L2", Domain: "conus", Products: []string{"ACHA", "DMW"}, Fechas: map[string][]string{"20230701": {"12:00-12:59"}}}),
		CreatedAt:  created.Format(time.RFC3339Nano),
		MaxFiles:   defaultMaxFilesInReport,
		Now:        now,
	}, log.NewNopLogger())
	require.NoError(t, err)

	assert.Equal(t, []string{reportTGZ, reportACHA}, report.Sources.Lustre.Files)
	assert.Equal(t, 2, report.Sources.Lustre.Total)
	assert.Equal(t, []string{reportDMW}, report.Sources.S3.Files)
	assert.Equal(t, 1, report.Sources.S3.Total)
	assert.Equal(t, 3, report.TotalFiles)
	assert.Equal(t, 0.75, report.TotalMB)
	assert.Equal(t, dest, report.DestPath)
	assert.Equal(t, map[string]int{"ACHA": 1, "DMW": 1}, report.CountByProduct)
	assert.Equal(t, map[string]int{"DMW": 1}, report.CountByProductS3)
	assert.Equal(t, "1:02:05", report.Duration)
	assert.Equal(t, now.UTC().Format(time.RFC3339Nano), report.ProcessedAt)
	assert.Nil(t, report.RecoveryQuery)
}

func TestBuildReportTruncatesListsNotTotals(t *testing.T) {
	dest := reportDest(t)

	report, err := buildReport(reportInput{
		ID:         "q1",
		Dest:       dest,
		Downloaded: map[string]struct{}{reportDMW: {}},
		CreatedAt:  time.Now().UTC().Format(time.RFC3339Nano),
		MaxFiles:   1,
		Now:        time.Now(),
	}, log.NewNopLogger())
	require.NoError(t, err)

	assert.Len(t, report.Sources.Lustre.Files, 1)
	assert.Equal(t, 2, report.Sources.Lustre.Total)
	assert.Len(t, report.Sources.S3.Files, 1)
	assert.Equal(t, 1, report.Sources.S3.Total)
	assert.Equal(t, 3, report.TotalFiles)
}

func TestBuildReportInvalidCreationTimestamp(t *testing.T) {
	report, err := buildReport(reportInput{
		ID:        "q1",
		Dest:      t.TempDir(),
		CreatedAt: "hace un rato",
		MaxFiles:  defaultMaxFilesInReport,
		Now:       time.Now(),
	}, log.NewNopLogger())
	require.NoError(t, err)
	assert.Equal(t, "N/A", report.Duration)
}

func TestBuildReportMissingDest(t *testing.T) {
	_, err := buildReport(reportInput{
		ID:       "q1",
		Dest:     filepath.Join(t.TempDir(), "nope"),
		MaxFiles: defaultMaxFilesInReport,
		Now:      time.Now(),
	}, log.NewNopLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leyendo directorio destino")
}

func TestBuildReportAttachesRecoveryQuery(t *testing.T) {
	report, err := buildReport(reportInput{
		ID:        "q-rec",
		Dest:      t.TempDir(),
		Failed:    []string{"/depot/anywhere/" + reportDMW},
		Query:     normalized(t, &query.Request{Level: "L2", Domain: "conus", Products: []string{"DMW"}, Fechas: map[string][]string{"20230701": {"12:00-12:59"}}}),
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
		MaxFiles:  defaultMaxFilesInReport,
		Now:       time.Now(),
	}, log.NewNopLogger())
	require.NoError(t, err)

	require.NotNil(t, report.RecoveryQuery)
	assert.Equal(t, "Consulta de recuperación para la solicitud original q-rec", report.RecoveryQuery.Description)
}

func TestFinalMessage(t *testing.T) {
	r := &Report{TotalFiles: 3, Sources: Sources{Lustre: SourceFiles{Total: 2}, S3: SourceFiles{Total: 1}}}
	assert.Equal(t, "Recuperación: T=3, L=2, S=1", finalMessage(r, 0))
	assert.Equal(t, "Recuperación: T=3, L=2, S=1, F=2", finalMessage(r, 2))
}

func TestFormatDuration(t *testing.T) {
	for _, tc := range []struct {
		d    time.Duration
		want string
	}{
		{0, "0:00:00"},
		{3725 * time.Second, "1:02:05"},
		{86399 * time.Second, "23:59:59"},
		{90061 * time.Second, "25:01:01"},
		{-time.Minute, "0:00:00"},
	} {
		assert.Equal(t, tc.want, formatDuration(tc.d), "duration %s", tc.d)
	}
}

func TestMaxFilesInReport(t *testing.T) {
	assert.Equal(t, defaultMaxFilesInReport, maxFilesInReport(0))
	assert.Equal(t, 5, maxFilesInReport(5))
}
