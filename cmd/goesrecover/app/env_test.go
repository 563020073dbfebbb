package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanot/goesrecover/modules/processor"
)

func TestConfig_ApplyEnvironment(t *testing.T) {
	t.Setenv("PROCESSOR_MODE", "simulador")
	t.Setenv("DB_PATH", "/var/lib/goes/consultas.db")
	t.Setenv("SOURCE_PATH", "/depot/goes18")
	t.Setenv("DOWNLOAD_PATH", "/data/salidas")
	t.Setenv("MAX_WORKERS", "4")
	t.Setenv("S3_FALLBACK_ENABLED", "off")
	t.Setenv("LUSTRE_ENABLED", "YES")
	t.Setenv("FILE_PROCESSING_TIMEOUT_SECONDS", "90")
	t.Setenv("MAX_FILES_PER_QUERY", "250")
	t.Setenv("MAX_SIZE_MB_PER_QUERY", "1024.5")
	t.Setenv("MIN_FREE_SPACE_GB_BUFFER", "25")
	t.Setenv("S3_RETRY_ATTEMPTS", "5")
	t.Setenv("S3_RETRY_BACKOFF_SECONDS", "2.5")
	t.Setenv("S3_CONNECT_TIMEOUT", "10")
	t.Setenv("S3_READ_TIMEOUT", "60")
	t.Setenv("S3_PROGRESS_STEP", "50")
	t.Setenv("API_KEY", "super-secreta")
	t.Setenv("SIM_LOCAL_SUCCESS_RATE", "0.9")
	t.Setenv("SIM_S3_SUCCESS_RATE", "0.4")

	cfg := NewDefaultConfig()
	require.NoError(t, cfg.ApplyEnvironment())

	assert.Equal(t, processor.ModeSimulator, cfg.Processor.Mode)
	assert.Equal(t, "/var/lib/goes/consultas.db", cfg.Registry.Path)
	assert.Equal(t, "/depot/goes18", cfg.Lustre.Path)
	assert.Equal(t, "/data/salidas", cfg.Processor.DownloadPath)
	assert.Equal(t, 4, cfg.Pool.MaxWorkers)
	assert.False(t, cfg.Processor.S3Fallback)
	assert.True(t, cfg.Lustre.Enabled)
	assert.Equal(t, 90*time.Second, cfg.Processor.FileTimeout)
	assert.Equal(t, 250, cfg.Processor.MaxFilesPerQuery)
	assert.Equal(t, 250, cfg.Frontend.MaxFilesPerQuery)
	assert.Equal(t, 1024.5, cfg.Frontend.MaxSizeMBPerQuery)
	assert.Equal(t, float64(25), cfg.Frontend.MinFreeSpaceGBBuffer)
	assert.Equal(t, 5, cfg.S3.RetryAttempts)
	assert.Equal(t, 2500*time.Millisecond, cfg.S3.RetryBackoff)
	assert.Equal(t, 10*time.Second, cfg.S3.ConnectTimeout)
	assert.Equal(t, 60*time.Second, cfg.S3.ReadTimeout)
	assert.Equal(t, 50, cfg.Processor.S3ProgressStep)
	assert.Equal(t, "super-secreta", cfg.Frontend.APIKey.String())
	assert.Equal(t, 0.9, cfg.Processor.Simulator.LocalSuccessRate)
	assert.Equal(t, 0.4, cfg.Processor.Simulator.S3SuccessRate)
}

func TestConfig_ApplyEnvironmentKeepsUnsetValues(t *testing.T) {
	t.Setenv("MAX_WORKERS", "16")

	cfg := NewDefaultConfig()
	require.NoError(t, cfg.ApplyEnvironment())

	assert.Equal(t, 16, cfg.Pool.MaxWorkers)
	assert.Equal(t, processor.ModeReal, cfg.Processor.Mode)
	assert.Equal(t, "consultas_goes.db", cfg.Registry.Path)
	assert.Equal(t, 120*time.Second, cfg.Processor.FileTimeout)
	assert.True(t, cfg.Lustre.Enabled)
}

func TestConfig_ApplyEnvironmentRejectsBadValues(t *testing.T) {
	tt := []struct {
		env string
		val string
	}{
		{"MAX_WORKERS", "muchos"},
		{"LUSTRE_ENABLED", "tal vez"},
		{"S3_FALLBACK_ENABLED", "2"},
		{"MIN_FREE_SPACE_GB_BUFFER", "bastante"},
		{"FILE_PROCESSING_TIMEOUT_SECONDS", "un rato"},
	}

	for _, tc := range tt {
		t.Run(tc.env, func(t *testing.T) {
			t.Setenv(tc.env, tc.val)

			err := NewDefaultConfig().ApplyEnvironment()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.env)
		})
	}
}
