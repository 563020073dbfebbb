package s3

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/cristalhq/hedgedhttp"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/backoff"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/lanot/goesrecover/goesdb/backend"
	"github.com/lanot/goesrecover/goesdb/backend/instrumentation"
	"github.com/lanot/goesrecover/pkg/goes"
)

const (
	errCodeNoSuchKey = "NoSuchKey"

	// listConcurrency bounds the hour-directory listings in flight per
	// discovery.
	listConcurrency = 8
)

type overrideSignatureVersion struct {
	upstream credentials.Provider
	useV2    bool
}

func (s *overrideSignatureVersion) Retrieve() (credentials.Value, error) {
	v, err := s.upstream.Retrieve()
	if err != nil {
		return v, err
	}

	if s.useV2 && !v.SignerType.IsAnonymous() {
		v.SignerType = credentials.SignatureV2
	}

	return v, nil
}

func (s *overrideSignatureVersion) RetrieveWithCredContext(cc *credentials.CredContext) (credentials.Value, error) {
	v, err := s.upstream.RetrieveWithCredContext(cc)
	if err != nil {
		return v, err
	}

	if s.useV2 && !v.SignerType.IsAnonymous() {
		v.SignerType = credentials.SignatureV2
	}

	return v, nil
}

func (s *overrideSignatureVersion) IsExpired() bool {
	return s.upstream.IsExpired()
}

// Reader lists and fetches products from the public bucket. The NOAA
// buckets allow anonymous access, which the credential chain falls back to
// when nothing is configured.
type Reader struct {
	cfg    *Config
	core   *minio.Core
	logger log.Logger
}

func NewReader(cfg *Config, logger log.Logger) (*Reader, error) {
	core, err := createCore(cfg, true)
	if err != nil {
		return nil, errors.Wrap(err, "unexpected error creating core")
	}

	return &Reader{
		cfg:    cfg,
		core:   core,
		logger: logger,
	}, nil
}

// DiscoverRequest names what to list remotely. Day keys are accepted in
// both YYYYMMDD and YYYYJJJ form. An empty band list disables band
// filtering.
type DiscoverRequest struct {
	Bucket       string
	ProductPaths []string
	Fechas       map[string][]string
	Bands        []string
}

// listing is one hour-directory to enumerate, with the filters its day
// carries.
type listing struct {
	prefix string
	day    string
	ranges []string
}

// Discover lists every product directory the request covers and returns
// the matching objects as filename → key. Listings fan out concurrently;
// directories that do not exist are empty, not errors, and listings that
// keep failing after retries are skipped.
func (r *Reader) Discover(ctx context.Context, req DiscoverRequest) (map[string]backend.Object, error) {
	if req.Bucket == "" {
		return nil, backend.ErrEmptyBucket
	}

	days := make([]string, 0, len(req.Fechas))
	for d := range req.Fechas {
		days = append(days, d)
	}
	sort.Strings(days)

	var listings []listing
	for _, day := range days {
		t, err := goes.ParseDay(day)
		if err != nil {
			return nil, err
		}
		year, jjj := t.Format("2006"), t.Format("002")
		ranges := req.Fechas[day]

		for _, hour := range wholeHours(ranges) {
			for _, productPath := range req.ProductPaths {
				listings = append(listings, listing{
					prefix: path.Join(productPath, year, jjj, hour) + "/",
					day:    year + jjj,
					ranges: ranges,
				})
			}
		}
	}

	var (
		mtx sync.Mutex
		out = make(map[string]backend.Object)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listConcurrency)

	for _, l := range listings {
		g.Go(func() error {
			keys, err := r.listRetry(gctx, req.Bucket, l.prefix)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				level.Debug(r.logger).Log("msg", "listing failed after retries, skipping hour", "bucket", req.Bucket, "prefix", l.prefix, "err", err)
				return nil
			}

			mtx.Lock()
			defer mtx.Unlock()
			for _, key := range keys {
				name := path.Base(key)
				if !strings.HasSuffix(name, ".nc") {
					continue
				}
				if !goes.MatchesAnyBand(name, req.Bands) {
					continue
				}
				if !minuteInRanges(name, l.day, l.ranges) {
					continue
				}
				out[name] = backend.Object{Name: name, Key: key}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Download fetches one object into destDir under its base name, retrying
// transient failures with exponential backoff. An existing non-empty file
// is left alone. A missing key is a permanent failure.
func (r *Reader) Download(ctx context.Context, bucket, key, destDir string) error {
	dest := filepath.Join(destDir, path.Base(key))
	if fi, err := os.Stat(dest); err == nil && fi.Size() > 0 {
		return nil
	}

	bo := backoff.New(ctx, backoff.Config{
		MinBackoff: r.cfg.RetryBackoff,
		MaxBackoff: r.cfg.RetryBackoff * 16,
		MaxRetries: r.cfg.RetryAttempts,
	})

	var lastErr error
	for bo.Ongoing() {
		lastErr = r.fetch(ctx, bucket, key, dest)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, backend.ErrDoesNotExist) {
			return lastErr
		}
		level.Debug(r.logger).Log("msg", "download attempt failed", "key", key, "attempt", bo.NumRetries()+1, "err", lastErr)
		bo.Wait()
	}
	if lastErr == nil {
		lastErr = bo.Err()
	}
	return lastErr
}

func (r *Reader) fetch(ctx context.Context, bucket, key, dest string) error {
	reader, _, _, err := r.core.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return readError(err)
	}
	defer reader.Close()

	tmp := dest + ".partial"
	out, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap(err, "creating download file")
	}

	if _, err := io.Copy(out, reader); err != nil {
		out.Close()
		os.Remove(tmp)
		return errors.Wrapf(err, "downloading %s", key)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "closing download file")
	}
	return os.Rename(tmp, dest)
}

func (r *Reader) listRetry(ctx context.Context, bucket, prefix string) ([]string, error) {
	bo := backoff.New(ctx, backoff.Config{
		MinBackoff: r.cfg.RetryBackoff,
		MaxBackoff: r.cfg.RetryBackoff * 16,
		MaxRetries: r.cfg.RetryAttempts,
	})

	var lastErr error
	for bo.Ongoing() {
		keys, err := r.list(bucket, prefix)
		if err == nil {
			return keys, nil
		}
		lastErr = err
		bo.Wait()
	}
	if lastErr == nil {
		lastErr = bo.Err()
	}
	return nil, lastErr
}

func (r *Reader) list(bucket, prefix string) ([]string, error) {
	var keys []string

	nextMarker := ""
	isTruncated := true
	for isTruncated {
		// ListObjects(bucket, prefix, nextMarker, delimiter string, maxKeys int)
		res, err := r.core.ListObjects(bucket, prefix, nextMarker, "/", 0)
		if err != nil {
			return nil, errors.Wrapf(err, "error listing objects in s3 bucket, bucket: %s", bucket)
		}
		isTruncated = res.IsTruncated
		nextMarker = res.NextMarker

		for _, c := range res.Contents {
			keys = append(keys, c.Key)
		}
	}
	return keys, nil
}

// wholeHours enumerates the whole hours [startHH, endHH] covered by the
// ranges, deduplicated and sorted.
func wholeHours(ranges []string) []string {
	seen := make(map[int]struct{})
	for _, rng := range ranges {
		start, end, err := goes.ParseTimeRange(rng)
		if err != nil {
			continue
		}
		for h := start.Hour; h <= end.Hour; h++ {
			seen[h] = struct{}{}
		}
	}

	hours := make([]int, 0, len(seen))
	for h := range seen {
		hours = append(hours, h)
	}
	sort.Ints(hours)

	out := make([]string, 0, len(hours))
	for _, h := range hours {
		out = append(out, fmt.Sprintf("%02d", h))
	}
	return out
}

// minuteInRanges applies the exact minute filter: the 11 digit stamp after
// the _s marker must name this day and fall inside one of the ranges.
func minuteInRanges(name, day string, ranges []string) bool {
	stamp, ok := goes.StartStampString(name)
	if !ok || !strings.HasPrefix(stamp, day) {
		return false
	}

	hh, err1 := strconv.Atoi(stamp[7:9])
	mm, err2 := strconv.Atoi(stamp[9:11])
	if err1 != nil || err2 != nil {
		return false
	}
	m := hh*60 + mm

	for _, rng := range ranges {
		start, end, err := goes.ParseTimeRange(rng)
		if err != nil {
			continue
		}
		if m >= start.Minutes() && m <= end.Minutes() {
			return true
		}
	}
	return false
}

func createCore(cfg *Config, hedge bool) (*minio.Core, error) {
	wrapCredentialsProvider := func(p credentials.Provider) credentials.Provider {
		if cfg.SignatureV2 {
			return &overrideSignatureVersion{useV2: cfg.SignatureV2, upstream: p}
		}
		return p
	}

	creds := credentials.NewChainCredentials([]credentials.Provider{
		wrapCredentialsProvider(&credentials.EnvAWS{}),
		wrapCredentialsProvider(&credentials.Static{
			Value: credentials.Value{
				AccessKeyID:     cfg.AccessKey,
				SecretAccessKey: cfg.SecretKey.String(),
			},
		}),
		wrapCredentialsProvider(&credentials.EnvMinio{}),
		wrapCredentialsProvider(&credentials.FileAWSCredentials{}),
		wrapCredentialsProvider(&credentials.FileMinioClient{}),
		wrapCredentialsProvider(&credentials.IAM{
			Client: &http.Client{
				Transport: http.DefaultTransport,
			},
		}),
	})

	customTransport, err := minio.DefaultTransport(!cfg.Insecure)
	if err != nil {
		return nil, errors.Wrap(err, "create minio.DefaultTransport")
	}

	if cfg.ConnectTimeout > 0 {
		customTransport.DialContext = (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext
	}
	if cfg.ReadTimeout > 0 {
		customTransport.ResponseHeaderTimeout = cfg.ReadTimeout
	}

	// add instrumentation
	transport := instrumentation.NewTransport(customTransport)
	var stats *hedgedhttp.Stats

	if hedge && cfg.HedgeRequestsAt != 0 {
		transport, stats, err = hedgedhttp.NewRoundTripperAndStats(cfg.HedgeRequestsAt, cfg.HedgeRequestsUpTo, transport)
		if err != nil {
			return nil, err
		}
		instrumentation.PublishHedgedMetrics(stats)
	}

	opts := &minio.Options{
		Region:    cfg.Region,
		Secure:    !cfg.Insecure,
		Creds:     creds,
		Transport: transport,
	}

	if cfg.ForcePathStyle {
		opts.BucketLookup = minio.BucketLookupPath
	}

	return minio.NewCore(cfg.Endpoint, opts)
}

func readError(err error) error {
	if err != nil && minio.ToErrorResponse(err).Code == errCodeNoSuchKey {
		return backend.ErrDoesNotExist
	}
	return err
}
