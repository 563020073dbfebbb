package app

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lanot/goesrecover/modules/processor"
)

func TestConfig_Defaults(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, All, cfg.Target)
	assert.Equal(t, 8000, cfg.Server.HTTPListenPort)
	assert.Equal(t, "consultas_goes.db", cfg.Registry.Path)
	assert.Equal(t, "/depot/goes16", cfg.Lustre.Path)
	assert.True(t, cfg.Lustre.Enabled)
	assert.Equal(t, processor.ModeReal, cfg.Processor.Mode)
	assert.Equal(t, "/data/tmp", cfg.Processor.DownloadPath)
	assert.True(t, cfg.Processor.S3Fallback)
	assert.Equal(t, 8, cfg.Pool.MaxWorkers)
	assert.Equal(t, float64(10), cfg.Frontend.MinFreeSpaceGBBuffer)
}

func TestConfig_CheckConfig(t *testing.T) {
	tt := []struct {
		name   string
		config *Config
		expect []ConfigWarning
	}{
		{
			name:   "check default cfg and expect no warnings",
			config: NewDefaultConfig(),
			expect: nil,
		},
		{
			name: "hit all warnings",
			config: func() *Config {
				cfg := NewDefaultConfig()
				cfg.Lustre.Enabled = false
				cfg.Processor.S3Fallback = false
				cfg.Processor.Mode = processor.ModeSimulator
				cfg.Processor.MaxFilesPerQuery = 100
				cfg.Frontend.MaxFilesPerQuery = 500
				cfg.Frontend.MinFreeSpaceGBBuffer = 0
				return cfg
			}(),
			expect: []ConfigWarning{
				warnSourcesDisabled,
				warnSimulatorMode,
				warnReportCapBelowAdmission,
				warnNoFreeSpaceBuffer,
			},
		},
		{
			name: "report cap below an unbounded admission gate",
			config: func() *Config {
				cfg := NewDefaultConfig()
				cfg.Processor.MaxFilesPerQuery = 100
				return cfg
			}(),
			expect: []ConfigWarning{warnReportCapBelowAdmission},
		},
		{
			name: "matching caps are quiet",
			config: func() *Config {
				cfg := NewDefaultConfig()
				cfg.Processor.MaxFilesPerQuery = 100
				cfg.Frontend.MaxFilesPerQuery = 100
				return cfg
			}(),
			expect: nil,
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			warnings := tc.config.CheckConfig()
			assert.Equal(t, tc.expect, warnings)
		})
	}
}
