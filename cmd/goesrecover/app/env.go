package app

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envBindings maps config keys to the environment variables the service
// has been deployed with since its first release. Values set in the
// environment win over the config file so existing installations keep
// working unchanged.
var envBindings = map[string]string{
	"processor.mode":                         "PROCESSOR_MODE",
	"processor.download_path":                "DOWNLOAD_PATH",
	"processor.s3_fallback_enabled":          "S3_FALLBACK_ENABLED",
	"processor.file_processing_timeout":      "FILE_PROCESSING_TIMEOUT_SECONDS",
	"processor.max_files_per_query":          "MAX_FILES_PER_QUERY",
	"processor.s3_progress_step":             "S3_PROGRESS_STEP",
	"processor.simulator.local_success_rate": "SIM_LOCAL_SUCCESS_RATE",
	"processor.simulator.s3_success_rate":    "SIM_S3_SUCCESS_RATE",
	"registry.path":                          "DB_PATH",
	"lustre.path":                            "SOURCE_PATH",
	"lustre.enabled":                         "LUSTRE_ENABLED",
	"pool.max_workers":                       "MAX_WORKERS",
	"s3.retry_attempts":                      "S3_RETRY_ATTEMPTS",
	"s3.retry_backoff":                       "S3_RETRY_BACKOFF_SECONDS",
	"s3.connect_timeout":                     "S3_CONNECT_TIMEOUT",
	"s3.read_timeout":                        "S3_READ_TIMEOUT",
	"frontend.max_size_mb_per_query":         "MAX_SIZE_MB_PER_QUERY",
	"frontend.min_free_space_gb_buffer":      "MIN_FREE_SPACE_GB_BUFFER",
	"frontend.api_key":                       "API_KEY",
}

// ApplyEnvironment overlays c with whatever environment variables are set.
// Anything unset keeps its current value.
func (c *Config) ApplyEnvironment() error {
	v := viper.New()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}
	return c.applyEnvironment(v)
}

func (c *Config) applyEnvironment(v *viper.Viper) error {
	setString(v, "processor.mode", &c.Processor.Mode)
	setString(v, "processor.download_path", &c.Processor.DownloadPath)
	setString(v, "registry.path", &c.Registry.Path)
	setString(v, "lustre.path", &c.Lustre.Path)

	if err := setBool(v, "processor.s3_fallback_enabled", &c.Processor.S3Fallback); err != nil {
		return err
	}
	if err := setBool(v, "lustre.enabled", &c.Lustre.Enabled); err != nil {
		return err
	}

	if err := setInt(v, "pool.max_workers", &c.Pool.MaxWorkers); err != nil {
		return err
	}
	if err := setInt(v, "processor.s3_progress_step", &c.Processor.S3ProgressStep); err != nil {
		return err
	}
	if err := setInt(v, "s3.retry_attempts", &c.S3.RetryAttempts); err != nil {
		return err
	}

	// One limit governs both the admission gate and the report cap.
	if err := setInt(v, "processor.max_files_per_query", &c.Processor.MaxFilesPerQuery); err != nil {
		return err
	}
	if v.IsSet("processor.max_files_per_query") {
		c.Frontend.MaxFilesPerQuery = c.Processor.MaxFilesPerQuery
	}

	if err := setFloat(v, "frontend.max_size_mb_per_query", &c.Frontend.MaxSizeMBPerQuery); err != nil {
		return err
	}
	if err := setFloat(v, "frontend.min_free_space_gb_buffer", &c.Frontend.MinFreeSpaceGBBuffer); err != nil {
		return err
	}
	if err := setFloat(v, "processor.simulator.local_success_rate", &c.Processor.Simulator.LocalSuccessRate); err != nil {
		return err
	}
	if err := setFloat(v, "processor.simulator.s3_success_rate", &c.Processor.Simulator.S3SuccessRate); err != nil {
		return err
	}

	if err := setSeconds(v, "processor.file_processing_timeout", &c.Processor.FileTimeout); err != nil {
		return err
	}
	if err := setSeconds(v, "s3.retry_backoff", &c.S3.RetryBackoff); err != nil {
		return err
	}
	if err := setSeconds(v, "s3.connect_timeout", &c.S3.ConnectTimeout); err != nil {
		return err
	}
	if err := setSeconds(v, "s3.read_timeout", &c.S3.ReadTimeout); err != nil {
		return err
	}

	if v.IsSet("frontend.api_key") {
		if err := c.Frontend.APIKey.Set(v.GetString("frontend.api_key")); err != nil {
			return fmt.Errorf("API_KEY: %w", err)
		}
	}

	return nil
}

func setString(v *viper.Viper, key string, dst *string) {
	if v.IsSet(key) {
		*dst = v.GetString(key)
	}
}

func parseNum(v *viper.Viper, key string) (float64, error) {
	raw := strings.TrimSpace(v.GetString(key))
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: '%s' no es un número válido", envBindings[key], raw)
	}
	return f, nil
}

func setFloat(v *viper.Viper, key string, dst *float64) error {
	if !v.IsSet(key) {
		return nil
	}
	f, err := parseNum(v, key)
	if err != nil {
		return err
	}
	*dst = f
	return nil
}

func setInt(v *viper.Viper, key string, dst *int) error {
	if !v.IsSet(key) {
		return nil
	}
	f, err := parseNum(v, key)
	if err != nil {
		return err
	}
	*dst = int(f)
	return nil
}

// setSeconds reads a bare number of seconds, the unit every *_SECONDS and
// *_TIMEOUT variable has always used.
func setSeconds(v *viper.Viper, key string, dst *time.Duration) error {
	if !v.IsSet(key) {
		return nil
	}
	f, err := parseNum(v, key)
	if err != nil {
		return err
	}
	*dst = time.Duration(f * float64(time.Second))
	return nil
}

func setBool(v *viper.Viper, key string, dst *bool) error {
	if !v.IsSet(key) {
		return nil
	}
	raw := strings.TrimSpace(v.GetString(key))
	switch strings.ToLower(raw) {
	case "1", "t", "true", "yes", "on":
		*dst = true
	case "0", "f", "false", "no", "off":
		*dst = false
	default:
		return fmt.Errorf("%s: '%s' no es un valor booleano válido", envBindings[key], raw)
	}
	return nil
}
