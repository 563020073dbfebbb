package app

import (
	"flag"

	"github.com/grafana/dskit/flagext"
	"github.com/grafana/dskit/server"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lanot/goesrecover/goesdb/backend/lustre"
	"github.com/lanot/goesrecover/goesdb/backend/s3"
	"github.com/lanot/goesrecover/goesdb/pool"
	"github.com/lanot/goesrecover/modules/frontend"
	"github.com/lanot/goesrecover/modules/processor"
	"github.com/lanot/goesrecover/modules/registry"
	"github.com/lanot/goesrecover/pkg/util"
)

// Config is the root config for App.
type Config struct {
	Target string `yaml:"target,omitempty"`

	Server    server.Config    `yaml:"server,omitempty"`
	Registry  registry.Config  `yaml:"registry,omitempty"`
	Lustre    lustre.Config    `yaml:"lustre,omitempty"`
	S3        s3.Config        `yaml:"s3,omitempty"`
	Pool      pool.Config      `yaml:"pool,omitempty"`
	Processor processor.Config `yaml:"processor,omitempty"`
	Frontend  frontend.Config  `yaml:"frontend,omitempty"`
}

// RegisterFlagsAndApplyDefaults registers flag.
func (c *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	c.Target = All
	// global settings
	f.StringVar(&c.Target, "target", All, "target module")

	// Server settings
	flagext.DefaultValues(&c.Server)
	c.Server.LogLevel.RegisterFlags(f)

	f.IntVar(&c.Server.HTTPListenPort, "server.http-listen-port", 8000, "HTTP server listen port.")
	f.IntVar(&c.Server.GRPCListenPort, "server.grpc-listen-port", 9095, "gRPC server listen port.")

	// Everything else
	c.Registry.RegisterFlagsAndApplyDefaults(util.PrefixConfig(prefix, "registry"), f)
	c.Lustre.RegisterFlagsAndApplyDefaults(util.PrefixConfig(prefix, "lustre"), f)
	c.S3.RegisterFlagsAndApplyDefaults(util.PrefixConfig(prefix, "s3"), f)
	c.Pool.RegisterFlagsAndApplyDefaults(util.PrefixConfig(prefix, "pool"), f)
	c.Processor.RegisterFlagsAndApplyDefaults(util.PrefixConfig(prefix, "processor"), f)
	c.Frontend.RegisterFlagsAndApplyDefaults(util.PrefixConfig(prefix, "frontend"), f)
}

// NewDefaultConfig returns a Config with all defaults applied.
func NewDefaultConfig() *Config {
	defaultConfig := &Config{}
	defaultFS := flag.NewFlagSet("", flag.PanicOnError)
	defaultConfig.RegisterFlagsAndApplyDefaults("", defaultFS)
	return defaultConfig
}

// ConfigWarning bundles a warning message with an explanation for the
// operator.
type ConfigWarning struct {
	Message string
	Explain string
}

var (
	warnSourcesDisabled = ConfigWarning{
		Message: "lustre.enabled and processor.s3_fallback_enabled are both false",
		Explain: "accepted queries have no source to retrieve from and will always fail",
	}
	warnSimulatorMode = ConfigWarning{
		Message: "processor.mode is 'simulador'",
		Explain: "results are fabricated; no archive or bucket is read",
	}
	warnReportCapBelowAdmission = ConfigWarning{
		Message: "processor.max_files_per_query is lower than the admission limit",
		Explain: "accepted queries will be truncated while processing",
	}
	warnNoFreeSpaceBuffer = ConfigWarning{
		Message: "frontend.min_free_space_gb_buffer is zero or negative",
		Explain: "queries are admitted until the download disk is completely full",
	}
)

// CheckConfig checks if config values are suspect.
func (c *Config) CheckConfig() []ConfigWarning {
	var warnings []ConfigWarning

	if !c.Lustre.Enabled && !c.Processor.S3Fallback {
		warnings = append(warnings, warnSourcesDisabled)
	}

	if c.Processor.Mode == processor.ModeSimulator {
		warnings = append(warnings, warnSimulatorMode)
	}

	if c.Processor.MaxFilesPerQuery > 0 &&
		(c.Frontend.MaxFilesPerQuery == 0 || c.Frontend.MaxFilesPerQuery > c.Processor.MaxFilesPerQuery) {
		warnings = append(warnings, warnReportCapBelowAdmission)
	}

	if c.Frontend.MinFreeSpaceGBBuffer <= 0 {
		warnings = append(warnings, warnNoFreeSpaceBuffer)
	}

	return warnings
}

var metricFeaturesDesc = prometheus.NewDesc(
	metricsNamespace+"_feature_enabled",
	"Configured features of this instance.",
	[]string{"feature"},
	nil,
)

// Describe implements prometheus.Collector.
func (c *Config) Describe(ch chan<- *prometheus.Desc) {
	ch <- metricFeaturesDesc
}

// Collect implements prometheus.Collector.
func (c *Config) Collect(ch chan<- prometheus.Metric) {
	features := map[string]bool{
		"lustre":      c.Lustre.Enabled,
		"s3_fallback": c.Processor.S3Fallback,
		"simulator":   c.Processor.Mode == processor.ModeSimulator,
		"api_key":     c.Frontend.APIKey.String() != "",
	}

	for feature, enabled := range features {
		val := 0.0
		if enabled {
			val = 1.0
		}
		ch <- prometheus.MustNewConstMetric(metricFeaturesDesc, prometheus.GaugeValue, val, feature)
	}
}
