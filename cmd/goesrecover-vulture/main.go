package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"time"

	zaplogfmt "github.com/jsternberg/zap-logfmt"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lanot/goesrecover/pkg/httpclient"
)

var (
	prometheusListenAddress string
	prometheusPath          string

	goesrecoverEndpoint     string
	goesrecoverAPIKey       string
	readyBackoffDuration    time.Duration
	validateBackoffDuration time.Duration

	logger *zap.Logger
)

func init() {
	flag.StringVar(&prometheusPath, "prometheus-path", "/metrics", "The path to publish Prometheus metrics to.")
	flag.StringVar(&prometheusListenAddress, "prometheus-listen-address", ":80", "The address to listen on for Prometheus scrapes.")

	flag.StringVar(&goesrecoverEndpoint, "goesrecover-endpoint", "", "The URL (scheme://hostname:port) at which to reach goesrecover.")
	flag.StringVar(&goesrecoverAPIKey, "goesrecover-api-key", "", "Value for the X-API-Key header.")
	flag.DurationVar(&readyBackoffDuration, "ready-backoff-duration", 15*time.Second, "The amount of time to pause between readiness probes")
	flag.DurationVar(&validateBackoffDuration, "validate-backoff-duration", 30*time.Second, "The amount of time to pause between validation probes")
}

func main() {
	flag.Parse()

	config := zap.NewDevelopmentEncoderConfig()
	logger = zap.New(zapcore.NewCore(
		zaplogfmt.NewEncoder(config),
		os.Stdout,
		zapcore.DebugLevel,
	))

	logger.Info("goesrecover vulture starting", zap.String("endpoint", goesrecoverEndpoint))

	client := httpclient.NewWithCompression(goesrecoverEndpoint, goesrecoverAPIKey)

	tickerReady := time.NewTicker(readyBackoffDuration)
	tickerValidate := time.NewTicker(validateBackoffDuration)

	// Readiness
	go func() {
		for range tickerReady.C {
			latency, err := probeReadiness(client)

			metricReadyLatency.Set(latency.Seconds())
			if err != nil {
				metricReady.Set(0)
				metricErrorTotal.Inc()
				logger.Error("readiness probe failed", zap.Error(err))
				continue
			}
			metricReady.Set(1)
		}
	}()

	// Validation
	go func() {
		for now := range tickerValidate.C {
			vm := probeValidation(client, now, logger)

			metricValidationsTotal.Add(float64(vm.requested))
			metricValidationErrors.WithLabelValues("requestfailed").Add(float64(vm.requestFailed))
			metricValidationErrors.WithLabelValues("badestimate").Add(float64(vm.badEstimate))
			metricValidationErrors.WithLabelValues("notrejected").Add(float64(vm.notRejected))
		}
	}()

	http.Handle(prometheusPath, promhttp.Handler())
	log.Fatal(http.ListenAndServe(prometheusListenAddress, nil))
}

func probeReadiness(c vultureClient) (time.Duration, error) {
	start := time.Now()
	err := c.Ready()
	return time.Since(start), err
}
