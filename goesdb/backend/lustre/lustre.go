package lustre

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/lanot/goesrecover/pkg/goes"
	"github.com/lanot/goesrecover/pkg/query"
	"github.com/lanot/goesrecover/pkg/util"
)

// The primary store lays archives out as
// <root>/<sensor>/<level>/<domain>/<YYYY>/<WW>/<name>-s<YYYYJJJHHMM>...tgz
// with one compressed tar per observation start.

type Config struct {
	Path    string `yaml:"path"`
	Enabled bool   `yaml:"enabled"`
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	cfg.Enabled = true
	f.StringVar(&cfg.Path, util.PrefixConfig(prefix, "path"), "/depot/goes16", "Root of the primary archive store.")
}

// Discoverer finds packaged archives for a query.
type Discoverer struct {
	cfg    *Config
	logger log.Logger
}

func NewDiscoverer(cfg *Config, logger log.Logger) *Discoverer {
	return &Discoverer{
		cfg:    cfg,
		logger: logger,
	}
}

// Enabled reports whether the local store participates in retrieval.
func (d *Discoverer) Enabled() bool {
	return d.cfg.Enabled
}

// DiscoverAndFilter enumerates candidate archives for every day of the
// query and keeps the ones whose embedded start stamp falls inside a
// requested range, widened to the containing hours. The result is sorted
// and free of duplicates.
func (d *Discoverer) DiscoverAndFilter(q *query.Query) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string

	for _, day := range q.DaysSorted() {
		dir, err := d.weekDir(q, day)
		if err != nil {
			return nil, err
		}

		pattern := filepath.Join(dir, "*"+day+"*.tgz")
		candidates, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("globbing %s: %w", pattern, err)
		}

		kept := 0
		for _, c := range candidates {
			if _, ok := seen[c]; ok {
				continue
			}
			if !stampInRanges(filepath.Base(c), day, q.Fechas[day]) {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
			kept++
		}
		level.Debug(d.logger).Log("msg", "discovered archives", "day", day, "candidates", len(candidates), "kept", kept)
	}

	sort.Strings(out)
	return out, nil
}

// ScanExisting drops candidates whose start stamp is already represented
// by a file in the destination directory. Candidates without a parseable
// stamp stay pending.
func (d *Discoverer) ScanExisting(candidates []string, dest string) ([]string, error) {
	entries, err := os.ReadDir(dest)
	if err != nil {
		if os.IsNotExist(err) {
			return candidates, nil
		}
		return nil, fmt.Errorf("scanning destination %s: %w", dest, err)
	}

	have := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if stamp, ok := goes.StartStampString(e.Name()); ok {
			have[stamp] = struct{}{}
		}
	}

	pending := make([]string, 0, len(candidates))
	for _, c := range candidates {
		stamp, ok := goes.StartStampString(filepath.Base(c))
		if ok {
			if _, done := have[stamp]; done {
				continue
			}
		}
		pending = append(pending, c)
	}
	return pending, nil
}

func (d *Discoverer) weekDir(q *query.Query, day string) (string, error) {
	if len(day) != 7 {
		return "", fmt.Errorf("invalid julian day key %q", day)
	}
	year := day[:4]
	jjj, err := strconv.Atoi(day[4:])
	if err != nil {
		return "", fmt.Errorf("invalid julian day key %q", day)
	}

	parts := []string{d.cfg.Path, strings.ToLower(q.Sensor), strings.ToLower(q.Level)}
	if q.Domain != "" {
		parts = append(parts, strings.ToLower(q.Domain))
	}
	parts = append(parts, year, goes.WeekOfYear(jjj))
	return filepath.Join(parts...), nil
}

// stampInRanges widens each range to [HH00, HH59] of its endpoint hours
// and compares the 11 digit stamps as strings.
func stampInRanges(name, day string, ranges []string) bool {
	stamp, ok := goes.StartStampString(name)
	if !ok {
		return false
	}

	for _, rng := range ranges {
		start, end, err := goes.ParseTimeRange(rng)
		if err != nil {
			continue
		}
		lo := fmt.Sprintf("%s%02d00", day, start.Hour)
		hi := fmt.Sprintf("%s%02d59", day, end.Hour)
		if stamp >= lo && stamp <= hi {
			return true
		}
	}
	return false
}
