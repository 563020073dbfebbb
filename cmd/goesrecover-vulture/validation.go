package main

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lanot/goesrecover/pkg/httpclient"
	"github.com/lanot/goesrecover/pkg/query"
)

// vultureClient is the slice of the API client the probes use.
type vultureClient interface {
	Ready() error
	ValidateQuery(r *query.Request) (*httpclient.ValidationResult, error)
}

type validationMetrics struct {
	requested     int
	requestFailed int
	badEstimate   int
	notRejected   int
}

// buildCanaryRequest returns a one-hour, single-band request for the day
// before now. Validation never persists or downloads anything, so the probe
// exercises the whole admission pipeline without queuing work.
func buildCanaryRequest(now time.Time) *query.Request {
	day := now.AddDate(0, 0, -1).UTC().Format("20060102")
	return &query.Request{
		Satellite: "GOES-16",
		Domain:    "fd",
		Bands:     []string{"13"},
		Fechas:    map[string][]string{day: {"10:00-11:00"}},
		CreatedBy: "vulture",
	}
}

// buildBrokenRequest returns a request the admission gate must reject.
func buildBrokenRequest(now time.Time) *query.Request {
	r := buildCanaryRequest(now)
	r.Satellite = "GOES-99"
	return r
}

// checkEstimate verifies the answer to the canary is sane. A one-hour
// full-disk band always estimates at least one file.
func checkEstimate(resp *httpclient.ValidationResult) error {
	if !resp.Success {
		return fmt.Errorf("validation did not succeed: %s", resp.Message)
	}
	if resp.FileCount <= 0 {
		return fmt.Errorf("estimate has no files: %d", resp.FileCount)
	}
	if resp.TotalSizeMB <= 0 {
		return fmt.Errorf("estimate has no size: %f", resp.TotalSizeMB)
	}
	return nil
}

// isRejection reports whether the error is the admission gate saying no,
// as opposed to a transport or server failure.
func isRejection(err error) bool {
	apiErr := &httpclient.APIError{}
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest
}

// probeValidation sends one request the gate must accept and one it must
// reject, and scores both answers.
func probeValidation(c vultureClient, now time.Time, logger *zap.Logger) validationMetrics {
	vm := validationMetrics{
		requested: 2,
	}

	canary := buildCanaryRequest(now)
	logger = logger.With(zap.String("fecha", dateKey(canary)))
	logger.Info("validating canary request")

	resp, err := c.ValidateQuery(canary)
	switch {
	case err != nil:
		logger.Error("error validating canary request", zap.Error(err))
		vm.requestFailed++
	default:
		if err := checkEstimate(resp); err != nil {
			logger.Error("canary estimate failed checks", zap.Error(err))
			vm.badEstimate++
		}
	}

	_, err = c.ValidateQuery(buildBrokenRequest(now))
	switch {
	case err == nil:
		logger.Error("broken request was accepted")
		vm.notRejected++
	case !isRejection(err):
		logger.Error("error validating broken request", zap.Error(err))
		vm.requestFailed++
	}

	return vm
}

func dateKey(r *query.Request) string {
	for d := range r.Fechas {
		return d
	}
	return ""
}
