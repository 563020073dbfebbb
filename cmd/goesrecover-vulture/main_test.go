package main

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/lanot/goesrecover/pkg/goes"
	"github.com/lanot/goesrecover/pkg/httpclient"
)

func TestProbeValidation(t *testing.T) {
	now := time.Date(2024, 1, 16, 12, 0, 0, 0, time.UTC)
	rejection := &httpclient.APIError{
		Method:     "POST",
		URL:        "http://goesrecover/validate",
		StatusCode: http.StatusBadRequest,
		Detail:     "Satélite inválido: GOES-99",
	}
	okEstimate := &httpclient.ValidationResult{
		Success:  true,
		Message:  "La solicitud es válida.",
		Estimate: goes.Estimate{FileCount: 6, TotalSizeMB: 360, TotalSizeGB: 0.35, AverageFileMB: 60},
	}

	tests := []struct {
		name     string
		client   *MockClient
		expected validationMetrics
	}{
		{
			name:     "healthy service",
			client:   &MockClient{resp: okEstimate, brokenErr: rejection},
			expected: validationMetrics{requested: 2},
		},
		{
			name:     "transport failure counts both probes",
			client:   &MockClient{respErr: errors.New("connection refused"), brokenErr: errors.New("connection refused")},
			expected: validationMetrics{requested: 2, requestFailed: 2},
		},
		{
			name:     "empty estimate",
			client:   &MockClient{resp: &httpclient.ValidationResult{Success: true}, brokenErr: rejection},
			expected: validationMetrics{requested: 2, badEstimate: 1},
		},
		{
			name:     "broken request accepted",
			client:   &MockClient{resp: okEstimate, brokenResp: &httpclient.ValidationResult{Success: true}},
			expected: validationMetrics{requested: 2, notRejected: 1},
		},
		{
			name:     "broken request hits a server error",
			client:   &MockClient{resp: okEstimate, brokenErr: &httpclient.APIError{StatusCode: http.StatusInternalServerError}},
			expected: validationMetrics{requested: 2, requestFailed: 1},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			vm := probeValidation(tc.client, now, zap.NewNop())
			assert.Equal(t, tc.expected, vm)
			assert.Len(t, tc.client.Requests(), 2)
		})
	}
}

func TestProbeReadiness(t *testing.T) {
	latency, err := probeReadiness(&MockClient{})
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, latency, time.Duration(0))

	_, err = probeReadiness(&MockClient{readyErr: errors.New("not ready")})
	assert.Error(t, err)
}
