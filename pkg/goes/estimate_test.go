package goes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateFullMonthConus(t *testing.T) {
	// 31 days, 288 CONUS scans per day, 16 bands.
	est, err := EstimateQuery(EstimateRequest{
		Level:  "L1b",
		Domain: "conus",
		Fechas: map[string][]string{
			"20230701-20230731": {"00:00-23:59"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 142848, est.FileCount)
	assert.InDelta(t, 460684.8, est.TotalSizeMB, 0.01)
	assert.InDelta(t, 449.89, est.TotalSizeGB, 0.01)
	assert.InDelta(t, 3.225, est.AverageFileMB, 0.006)
}

func TestEstimateFullDiskPeriodicity(t *testing.T) {
	// 12:00..13:00 on a ten minute cadence starts seven scans.
	est, err := EstimateQuery(EstimateRequest{
		Level:  "L1b",
		Domain: "fd",
		Bands:  []string{"13"},
		Fechas: map[string][]string{
			"20230701": {"12:00-13:00"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 7, est.FileCount)
	assert.InDelta(t, 7*14.0, est.TotalSizeMB, 0.01)
}

func TestEstimateConusIgnoresPeriodicity(t *testing.T) {
	// CONUS scans start at hh:01 and hh:06 steps no matter the item.
	est, err := EstimateQuery(EstimateRequest{
		Level:    "L2",
		Domain:   "conus",
		Products: []string{"ACHA"},
		Fechas: map[string][]string{
			"20230701": {"12:00-12:59"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 12, est.FileCount)
}

func TestEstimateCMIPExpandsPerBand(t *testing.T) {
	est, err := EstimateQuery(EstimateRequest{
		Level:    "L2",
		Domain:   "fd",
		Products: []string{"CMIP"},
		Bands:    []string{"ALL"},
		Fechas: map[string][]string{
			"20230701": {"00:00-00:09"},
		},
	})
	require.NoError(t, err)
	// one scan start in the window, sixteen bands
	assert.Equal(t, 16, est.FileCount)

	est, err = EstimateQuery(EstimateRequest{
		Level:    "L2",
		Domain:   "fd",
		Products: []string{"CMIP"},
		Bands:    []string{"02", "13"},
		Fechas: map[string][]string{
			"20230701": {"00:00-00:09"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, est.FileCount)
}

func TestEstimateMissingBandsDefaultsToAll(t *testing.T) {
	est, err := EstimateQuery(EstimateRequest{
		Level:    "L2",
		Domain:   "fd",
		Products: []string{"CMIP"},
		Fechas: map[string][]string{
			"20230701": {"00:00-00:09"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 16, est.FileCount)
}

func TestEstimateWrapsMidnight(t *testing.T) {
	est, err := EstimateQuery(EstimateRequest{
		Level:  "L1b",
		Domain: "fd",
		Bands:  []string{"13"},
		Fechas: map[string][]string{
			"20230701": {"23:55-00:05"},
		},
	})
	require.NoError(t, err)
	// only the 00:00 start falls inside the wrapped window
	assert.Equal(t, 1, est.FileCount)
}

func TestEstimateHourlyProducts(t *testing.T) {
	est, err := EstimateQuery(EstimateRequest{
		Level:    "L2",
		Domain:   "fd",
		Products: []string{"LST"},
		Fechas: map[string][]string{
			"20230701": {"00:00-23:59"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 24, est.FileCount)
}

func TestEstimateDefaultL2Period(t *testing.T) {
	// LVMP has no explicit cadence and falls back to twenty minutes.
	est, err := EstimateQuery(EstimateRequest{
		Level:    "L2",
		Domain:   "fd",
		Products: []string{"LVMP"},
		Fechas: map[string][]string{
			"20230701": {"00:00-23:59"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 72, est.FileCount)
}

func TestEstimateRejectsBadInput(t *testing.T) {
	_, err := EstimateQuery(EstimateRequest{
		Level:  "L5",
		Domain: "fd",
		Fechas: map[string][]string{"20230701": {"00:00"}},
	})
	require.Error(t, err)

	_, err = EstimateQuery(EstimateRequest{
		Level:  "L1b",
		Domain: "fd",
		Fechas: map[string][]string{"garbage": {"00:00"}},
	})
	require.Error(t, err)

	_, err = EstimateQuery(EstimateRequest{
		Level:  "L1b",
		Domain: "fd",
		Fechas: map[string][]string{"20230701": {"99:00"}},
	})
	require.Error(t, err)
}
