package frontend

import (
	"flag"

	"github.com/grafana/dskit/flagext"

	"github.com/lanot/goesrecover/pkg/util"
)

type Config struct {
	MaxFilesPerQuery     int            `yaml:"max_files_per_query"`
	MaxSizeMBPerQuery    float64        `yaml:"max_size_mb_per_query"`
	MinFreeSpaceGBBuffer float64        `yaml:"min_free_space_gb_buffer"`
	APIKey               flagext.Secret `yaml:"api_key"`

	// DownloadPath is copied from the processor configuration at wiring
	// time so status responses and the disk gate agree on where files land.
	DownloadPath string `yaml:"-"`
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.IntVar(&cfg.MaxFilesPerQuery, util.PrefixConfig(prefix, "max-files-per-query"), 0, "Reject queries that estimate more files than this. 0 disables the limit.")
	f.Float64Var(&cfg.MaxSizeMBPerQuery, util.PrefixConfig(prefix, "max-size-mb-per-query"), 0, "Reject queries that estimate more megabytes than this. 0 disables the limit.")
	f.Float64Var(&cfg.MinFreeSpaceGBBuffer, util.PrefixConfig(prefix, "min-free-space-gb-buffer"), 10, "Gigabytes that must remain free on the download volume after the estimated retrieval.")
	f.Var(&cfg.APIKey, util.PrefixConfig(prefix, "api-key"), "Key required in the X-API-Key header by the restart and delete endpoints. Empty disables the check.")
}
