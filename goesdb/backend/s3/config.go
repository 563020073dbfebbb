package s3

import (
	"flag"
	"time"

	"github.com/grafana/dskit/flagext"

	"github.com/lanot/goesrecover/pkg/util"
)

type Config struct {
	Endpoint    string         `yaml:"endpoint"`
	Region      string         `yaml:"region"`
	AccessKey   string         `yaml:"access_key"`
	SecretKey   flagext.Secret `yaml:"secret_key"`
	Insecure    bool           `yaml:"insecure"`
	SignatureV2 bool           `yaml:"signature_v2"`

	// ForcePathStyle is required against non AWS endpoints such as minio.
	ForcePathStyle bool `yaml:"forcepathstyle"`

	RetryAttempts  int           `yaml:"retry_attempts"`
	RetryBackoff   time.Duration `yaml:"retry_backoff"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`

	HedgeRequestsAt   time.Duration `yaml:"hedge_requests_at"`
	HedgeRequestsUpTo int           `yaml:"hedge_requests_up_to"`
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	cfg.Region = "us-east-1"
	cfg.RetryAttempts = 3
	cfg.RetryBackoff = time.Second
	cfg.ConnectTimeout = 5 * time.Second
	cfg.ReadTimeout = 30 * time.Second
	cfg.HedgeRequestsUpTo = 2

	f.StringVar(&cfg.Endpoint, util.PrefixConfig(prefix, "endpoint"), "s3.amazonaws.com", "S3 endpoint to list and fetch products from.")
}
