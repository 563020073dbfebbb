package s3

import (
	"flag"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanot/goesrecover/goesdb/backend"
)

func TestWholeHours(t *testing.T) {
	assert.Equal(t, []string{"12"}, wholeHours([]string{"12:30"}))
	assert.Equal(t, []string{"12", "13", "14"}, wholeHours([]string{"12:30-14:01"}))
	assert.Equal(t, []string{"03", "04", "12"}, wholeHours([]string{"12:00-12:59", "03:10-04:20"}))

	// overlapping ranges do not duplicate hours
	assert.Equal(t, []string{"12"}, wholeHours([]string{"12:00-12:10", "12:20-12:30"}))

	assert.Empty(t, wholeHours([]string{"garbage"}))
}

func TestMinuteInRanges(t *testing.T) {
	name := "OR_ABI-L1b-RadC-M6C13_G16_s20232991206204_e20232991208577_c20232991209092.nc"

	assert.True(t, minuteInRanges(name, "2023299", []string{"12:00-12:10"}))
	assert.True(t, minuteInRanges(name, "2023299", []string{"12:06"}))
	assert.False(t, minuteInRanges(name, "2023299", []string{"12:07-12:59"}))
	assert.False(t, minuteInRanges(name, "2023299", []string{"11:00-12:05"}))

	// stamps from another day never match
	assert.False(t, minuteInRanges(name, "2023300", []string{"12:00-12:10"}))

	assert.False(t, minuteInRanges("no-stamp-here.nc", "2023299", []string{"12:00-12:10"}))
}

func TestReadError(t *testing.T) {
	assert.Nil(t, readError(nil))

	err := minio.ErrorResponse{Code: errCodeNoSuchKey}
	assert.Equal(t, backend.ErrDoesNotExist, readError(err))

	other := minio.ErrorResponse{Code: "AccessDenied"}
	assert.Equal(t, other, readError(other))
}

func TestConfigDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.RegisterFlagsAndApplyDefaults("s3", flag.NewFlagSet("test", flag.PanicOnError))

	assert.Equal(t, "us-east-1", cfg.Region)
	assert.Equal(t, 3, cfg.RetryAttempts)
	require.NotZero(t, cfg.RetryBackoff)
	require.NotZero(t, cfg.ConnectTimeout)
	require.NotZero(t, cfg.ReadTimeout)
}
