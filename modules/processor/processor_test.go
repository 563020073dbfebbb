package processor

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanot/goesrecover/goesdb/backend"
	"github.com/lanot/goesrecover/goesdb/backend/lustre"
	"github.com/lanot/goesrecover/goesdb/backend/s3"
	"github.com/lanot/goesrecover/goesdb/pool"
	"github.com/lanot/goesrecover/modules/registry"
	"github.com/lanot/goesrecover/pkg/query"
)

var testNow = time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

type update struct {
	state    string
	progress int
	message  string
}

// spyStore records every write the engine makes.
type spyStore struct {
	mtx      sync.Mutex
	rec      *registry.Record
	updates  []update
	results  interface{}
	finalMsg string
}

func (s *spyStore) Get(string) (*registry.Record, error) { return s.rec, nil }

func (s *spyStore) PendingIDs() ([]string, error) { return nil, nil }

func (s *spyStore) UpdateState(_, state string, progress int, message string) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.updates = append(s.updates, update{state, progress, message})
	return nil
}

func (s *spyStore) SaveResults(_ string, results interface{}, message string) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.results = results
	s.finalMsg = message
	return nil
}

func (s *spyStore) hasUpdate(t *testing.T, want update) {
	t.Helper()
	s.mtx.Lock()
	defer s.mtx.Unlock()
	for _, u := range s.updates {
		if u == want {
			return
		}
	}
	t.Fatalf("update %+v not recorded, have %+v", want, s.updates)
}

// fakeS3 serves canned objects filtered by product path, the way the
// bucket layout would.
type fakeS3 struct {
	mtx       sync.Mutex
	discovers []s3.DiscoverRequest
	downloads int
	objects   map[string]backend.Object
	fail      map[string]bool
}

func (f *fakeS3) Discover(_ context.Context, req s3.DiscoverRequest) (map[string]backend.Object, error) {
	f.mtx.Lock()
	f.discovers = append(f.discovers, req)
	f.mtx.Unlock()

	out := make(map[string]backend.Object)
	for name, obj := range f.objects {
		for _, p := range req.ProductPaths {
			if strings.HasPrefix(obj.Key, p+"/") {
				out[name] = obj
				break
			}
		}
	}
	return out, nil
}

func (f *fakeS3) Download(_ context.Context, _, key, destDir string) error {
	f.mtx.Lock()
	f.downloads++
	f.mtx.Unlock()

	name := path.Base(key)
	if f.fail[name] {
		return fmt.Errorf("falló la descarga de %s", name)
	}
	return os.WriteFile(filepath.Join(destDir, name), bytes.Repeat([]byte("x"), 64), 0o644)
}

func buildTGZ(t *testing.T, dir, name string, members []string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))

	p := filepath.Join(dir, name)
	f, err := os.Create(p)
	require.NoError(t, err)
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	for _, m := range members {
		content := []byte("netcdf " + m)
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: m,
			Mode: 0o644,
			Size: int64(len(content)),
		}))
		_, err := tw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return p
}

func normalized(t *testing.T, req *query.Request) *query.Query {
	t.Helper()
	q, err := query.Normalize(req, testNow)
	require.NoError(t, err)
	return q
}

func testRecord(t *testing.T, id string, req *query.Request) *registry.Record {
	t.Helper()
	return &registry.Record{
		ID:        id,
		State:     registry.StateReceived,
		Query:     normalized(t, req),
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

func testPool(t *testing.T) *pool.Pool {
	t.Helper()
	p := pool.NewPool(&pool.Config{MaxWorkers: 4, QueueDepth: 64})
	t.Cleanup(p.Shutdown)
	return p
}

func testConfig(downloadPath string) Config {
	return Config{
		Mode:           ModeReal,
		DownloadPath:   downloadPath,
		S3Fallback:     false,
		FileTimeout:    30 * time.Second,
		S3ProgressStep: 100,
	}
}

func TestRunWholeCopyFromLocalStore(t *testing.T) {
	root := t.TempDir()
	buildTGZ(t, filepath.Join(root, "abi", "l1b", "fd", "2023", "43"),
		"ABI-L1b-RadF-M6_G16-s20232991200.tgz",
		[]string{
			"OR_ABI-L1b-RadF-M6C02_G16_s20232991200206_e20232991209514_c20232991209581.nc",
			"OR_ABI-L1b-RadF-M6C13_G16_s20232991200206_e20232991209514_c20232991209548.nc",
		})

	rec := testRecord(t, "q-local", &query.Request{
		Satellite: "GOES-16",
		Level:     "L1b",
		Domain:    "fd",
		Bands:     []string{"ALL"},
		Fechas:    map[string][]string{"20231026": {"12:00-12:30"}},
	})
	store := &spyStore{rec: rec}
	cfg := testConfig(t.TempDir())
	disc := lustre.NewDiscoverer(&lustre.Config{Path: root, Enabled: true}, log.NewNopLogger())

	eng := newRetriever(cfg, store, disc, nil, testPool(t), log.NewNopLogger())
	require.NoError(t, eng.run(context.Background(), rec))

	copied := filepath.Join(cfg.DownloadPath, rec.ID, "ABI-L1b-RadF-M6_G16-s20232991200.tgz")
	fi, err := os.Stat(copied)
	require.NoError(t, err)
	assert.Greater(t, fi.Size(), int64(0))

	store.hasUpdate(t, update{registry.StateProcessing, 10, "Preparando entorno"})
	store.hasUpdate(t, update{registry.StateProcessing, 20, "Identificados 1 archivos pendientes de procesar."})
	store.hasUpdate(t, update{registry.StateProcessing, 80, "Recuperado archivo 1/1 (ABI-L1b-RadF-M6_G16-s20232991200.tgz)"})
	store.hasUpdate(t, update{registry.StateProcessing, 95, "Generando reporte final"})

	report := store.results.(*Report)
	assert.Equal(t, 1, report.Sources.Lustre.Total)
	assert.Equal(t, 0, report.Sources.S3.Total)
	assert.Equal(t, 1, report.TotalFiles)
	assert.Nil(t, report.RecoveryQuery)
	assert.Equal(t, "Recuperación: T=1, L=1, S=0", store.finalMsg)
}

func TestRunSelectiveExtractionWithS3Fallback(t *testing.T) {
	root := t.TempDir()
	// 2023182 = 2023-07-01, week 26. CONUS scans start at minute 1, 6, ...
	buildTGZ(t, filepath.Join(root, "abi", "l2", "conus", "2023", "26"),
		"ABI-L2C-M6_G16-s20231821201.tgz",
		[]string{
			"CG_ABI-L2-CMIPC-M6C13_G16_s20231821201170_e20231821203543_c20231821204067.nc",
			"CG_ABI-L2-CMIPC-M6C02_G16_s20231821201170_e20231821203543_c20231821204082.nc",
			"CG_ABI-L2-ACHAC-M6_G16_s20231821201170_e20231821203543_c20231821204091.nc",
		})

	dmwOK := "OR_ABI-L2-DMWC-M6C14_G16_s20231821206170_e20231821208543_c20231821209067.nc"
	dmwBad := "OR_ABI-L2-DMWC-M6C14_G16_s20231821211170_e20231821213543_c20231821214067.nc"
	remote := &fakeS3{
		objects: map[string]backend.Object{
			dmwOK:  {Name: dmwOK, Key: "ABI-L2-DMWC/2023/182/12/" + dmwOK},
			dmwBad: {Name: dmwBad, Key: "ABI-L2-DMWC/2023/182/12/" + dmwBad},
		},
		fail: map[string]bool{dmwBad: true},
	}

	rec := testRecord(t, "q-mixed", &query.Request{
		Satellite: "GOES-16",
		Level:     "L2",
		Domain:    "conus",
		Products:  []string{"CMIP", "ACHA", "DMW"},
		Bands:     []string{"13"},
		Fechas:    map[string][]string{"20230701": {"12:00-12:59"}},
		CreatedBy: "amartinez",
	})
	store := &spyStore{rec: rec}
	cfg := testConfig(t.TempDir())
	cfg.S3Fallback = true
	disc := lustre.NewDiscoverer(&lustre.Config{Path: root, Enabled: true}, log.NewNopLogger())

	eng := newRetriever(cfg, store, disc, remote, testPool(t), log.NewNopLogger())
	require.NoError(t, eng.run(context.Background(), rec))

	dest := filepath.Join(cfg.DownloadPath, rec.ID)
	entries, err := os.ReadDir(dest)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{
		"CG_ABI-L2-CMIPC-M6C13_G16_s20231821201170_e20231821203543_c20231821204067.nc",
		"CG_ABI-L2-ACHAC-M6_G16_s20231821201170_e20231821203543_c20231821204091.nc",
		dmwOK,
	}, names)

	// The bucket was listed once for CMI products with bands and once
	// for the rest without them.
	require.Len(t, remote.discovers, 2)
	assert.Equal(t, []string{"ABI-L2-CMIPC"}, remote.discovers[0].ProductPaths)
	assert.Equal(t, []string{"13"}, remote.discovers[0].Bands)
	assert.Equal(t, []string{"ABI-L2-ACHAC", "ABI-L2-DMWC"}, remote.discovers[1].ProductPaths)
	assert.Empty(t, remote.discovers[1].Bands)
	assert.Equal(t, "noaa-goes16", remote.discovers[0].Bucket)

	store.hasUpdate(t, update{registry.StateProcessing, 85, "Buscando archivos adicionales en S3."})
	store.hasUpdate(t, update{registry.StateProcessing, 85, "Descargas S3 pendientes: 2"})
	// The counter seeds itself from everything already on disk, so the
	// two extracted products count toward it before any download runs.
	store.hasUpdate(t, update{registry.StateProcessing, 95, "S3 progreso: 2/2"})

	report := store.results.(*Report)
	assert.Equal(t, 2, report.Sources.Lustre.Total)
	assert.Equal(t, 1, report.Sources.S3.Total)
	assert.Equal(t, 3, report.TotalFiles)
	assert.Equal(t, map[string]int{"CMIP": 1, "ACHA": 1, "DMW": 1}, report.CountByProduct)
	assert.Equal(t, map[string]int{"DMW": 1}, report.CountByProductS3)
	assert.Equal(t, "Recuperación: T=3, L=2, S=1, F=1", store.finalMsg)

	require.NotNil(t, report.RecoveryQuery)
	assert.Equal(t, map[string][]string{"20230701": {"12:00-12:59"}}, report.RecoveryQuery.Fechas)
	assert.Empty(t, report.RecoveryQuery.CreatedBy)
	assert.Equal(t, "Consulta de recuperación para la solicitud original q-mixed", report.RecoveryQuery.Description)
}

func TestRunSkipsExistingDownloads(t *testing.T) {
	name := "OR_ABI-L2-DMWF-M6C14_G16_s20231821200170_e20231821203543_c20231821204067.nc"
	remote := &fakeS3{
		objects: map[string]backend.Object{
			name: {Name: name, Key: "ABI-L2-DMWF/2023/182/12/" + name},
		},
	}

	rec := testRecord(t, "q-resume", &query.Request{
		Satellite: "GOES-16",
		Level:     "L2",
		Domain:    "fd",
		Products:  []string{"DMW"},
		Fechas:    map[string][]string{"20230701": {"12:00-12:30"}},
	})
	store := &spyStore{rec: rec}
	cfg := testConfig(t.TempDir())
	cfg.S3Fallback = true
	disc := lustre.NewDiscoverer(&lustre.Config{Path: t.TempDir(), Enabled: true}, log.NewNopLogger())

	dest := filepath.Join(cfg.DownloadPath, rec.ID)
	require.NoError(t, os.MkdirAll(dest, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dest, name), []byte("already here"), 0o644))

	eng := newRetriever(cfg, store, disc, remote, testPool(t), log.NewNopLogger())
	require.NoError(t, eng.run(context.Background(), rec))

	assert.Equal(t, 0, remote.downloads)
	store.hasUpdate(t, update{registry.StateProcessing, 95, "S3 progreso: 1/1"})

	report := store.results.(*Report)
	assert.Equal(t, 1, report.Sources.S3.Total)
	assert.Equal(t, 0, report.Sources.Lustre.Total)
	assert.Equal(t, "Recuperación: T=1, L=0, S=1", store.finalMsg)
}

func TestRunLustreDisabled(t *testing.T) {
	rec := testRecord(t, "q-nolustre", &query.Request{
		Level:  "L1b",
		Domain: "fd",
		Fechas: map[string][]string{"20230701": {"12:00-12:10"}},
	})
	store := &spyStore{rec: rec}
	cfg := testConfig(t.TempDir())
	disc := lustre.NewDiscoverer(&lustre.Config{Path: t.TempDir(), Enabled: false}, log.NewNopLogger())

	eng := newRetriever(cfg, store, disc, nil, testPool(t), log.NewNopLogger())
	require.NoError(t, eng.run(context.Background(), rec))

	store.hasUpdate(t, update{registry.StateProcessing, 20, "Lustre deshabilitado; saltando recuperación local."})
	for _, u := range store.updates {
		assert.NotContains(t, u.message, "Identificados")
	}

	report := store.results.(*Report)
	assert.Equal(t, 0, report.TotalFiles)
	assert.Equal(t, "Recuperación: T=0, L=0, S=0", store.finalMsg)
}

func TestProcessOneMarksFailure(t *testing.T) {
	tmp := t.TempDir()
	blocked := filepath.Join(tmp, "blocked")
	require.NoError(t, os.WriteFile(blocked, []byte("file"), 0o644))

	rec := testRecord(t, "q-fail", &query.Request{
		Level:  "L1b",
		Domain: "fd",
		Fechas: map[string][]string{"20230701": {"12:00-12:10"}},
	})
	store := &spyStore{rec: rec}
	cfg := testConfig(blocked)
	disc := lustre.NewDiscoverer(&lustre.Config{Path: tmp, Enabled: true}, log.NewNopLogger())

	p, err := New(cfg, store, disc, nil, testPool(t), log.NewNopLogger())
	require.NoError(t, err)
	p.processOne(context.Background(), rec.ID)

	store.mtx.Lock()
	defer store.mtx.Unlock()
	require.NotEmpty(t, store.updates)
	last := store.updates[len(store.updates)-1]
	assert.Equal(t, registry.StateError, last.state)
	assert.Equal(t, 0, last.progress)
	assert.True(t, strings.HasPrefix(last.message, "Error: preparando directorio destino"))
}

func TestEnqueueFullQueue(t *testing.T) {
	rec := testRecord(t, "q-queue", &query.Request{
		Level:  "L1b",
		Domain: "fd",
		Fechas: map[string][]string{"20230701": {"12:00"}},
	})
	store := &spyStore{rec: rec}

	p, err := New(testConfig(t.TempDir()), store, lustre.NewDiscoverer(&lustre.Config{Path: t.TempDir(), Enabled: true}, log.NewNopLogger()), nil, testPool(t), log.NewNopLogger())
	require.NoError(t, err)

	for i := 0; i < queueDepth; i++ {
		require.NoError(t, p.Enqueue(fmt.Sprintf("id-%d", i)))
	}
	assert.Error(t, p.Enqueue("one-too-many"))
}
