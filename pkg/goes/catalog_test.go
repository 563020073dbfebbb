package goes

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSatCodeForDate(t *testing.T) {
	before := time.Date(2025, 3, 31, 23, 59, 0, 0, time.UTC)
	after := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		satellite string
		date      time.Time
		expected  string
	}{
		{"GOES-EAST", before, "G16"},
		{"GOES-EAST", after, "G19"},
		{"goes-east", after, "G19"},
		{"GOES-WEST", before, "G18"},
		{"GOES-WEST", after, "G18"},
		{"GOES-16", after, "G16"},
		{"GOES-18", before, "G18"},
		{"GOES-19", before, "G19"},
		{"", before, "G16"},
	}

	for _, tc := range tests {
		code, err := SatCodeForDate(tc.satellite, tc.date)
		require.NoError(t, err)
		assert.Equal(t, tc.expected, code, "satellite %q at %v", tc.satellite, tc.date)
	}

	_, err := SatCodeForDate("GOES-17", before)
	assert.EqualError(t, err, "Satélite 'GOES-17' no es soportado")
}

func TestBucketForCode(t *testing.T) {
	assert.Equal(t, "noaa-goes16", BucketForCode("G16"))
	assert.Equal(t, "noaa-goes18", BucketForCode("G18"))
	assert.Equal(t, "noaa-goes19", BucketForCode("G19"))
}

func TestValidateBands(t *testing.T) {
	out, err := ValidateBands([]string{"1", "06", "13"})
	require.NoError(t, err)
	assert.Equal(t, []string{"01", "06", "13"}, out)

	out, err = ValidateBands([]string{"all"})
	require.NoError(t, err)
	assert.Equal(t, []string{TokenAll}, out)

	out, err = ValidateBands(nil)
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = ValidateBands([]string{"13", "17"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Bandas inválidas")

	_, err = ValidateBands([]string{"0"})
	require.Error(t, err)

	_, err = ValidateBands([]string{"x"})
	require.Error(t, err)
}

func TestExpandBands(t *testing.T) {
	assert.Len(t, ExpandBands([]string{"ALL"}), 16)
	assert.Len(t, ExpandBands([]string{"01", "all", "13"}), 16)
	assert.Equal(t, []string{"02", "13"}, ExpandBands([]string{"2", "13"}))
}

func TestRequestedAllBands(t *testing.T) {
	assert.True(t, RequestedAllBands([]string{"ALL"}))
	assert.True(t, RequestedAllBands(DefaultBands()))
	assert.True(t, RequestedAllBands([]string{
		"1", "2", "3", "4", "5", "6", "7", "8",
		"9", "10", "11", "12", "13", "14", "15", "16",
	}))
	assert.False(t, RequestedAllBands([]string{"01", "13"}))
	assert.False(t, RequestedAllBands(nil))
}

func TestRequestedAllProducts(t *testing.T) {
	assert.True(t, RequestedAllProducts([]string{"ALL"}))
	assert.True(t, RequestedAllProducts(ValidProducts()))
	assert.False(t, RequestedAllProducts([]string{"CMIP", "ACHA"}))
	assert.False(t, RequestedAllProducts(nil))
}

func TestProductRequiresBands(t *testing.T) {
	assert.True(t, ProductRequiresBands("L1b", "anything"))
	assert.True(t, ProductRequiresBands("L2", "CMIP"))
	assert.True(t, ProductRequiresBands("L2", "cmip"))
	assert.False(t, ProductRequiresBands("L2", "ACHA"))
	assert.False(t, ProductRequiresBands("L2", "RRQPE"))
}

func TestQueryRequiresBands(t *testing.T) {
	assert.True(t, QueryRequiresBands("L1b", nil))
	assert.True(t, QueryRequiresBands("L2", []string{"ACHA", "CMIP"}))
	assert.True(t, QueryRequiresBands("L2", []string{"ALL"}))
	assert.False(t, QueryRequiresBands("L2", []string{"ACHA", "RRQPE"}))
}

func TestProductAlias(t *testing.T) {
	assert.Equal(t, "COD", ProductAlias("CODD"))
	assert.Equal(t, "COD", ProductAlias("CODN"))
	assert.Equal(t, "CPS", ProductAlias("cpsn"))
	assert.Equal(t, "VAA", ProductAlias("VAAF"))
	assert.Equal(t, "ACHA", ProductAlias("ACHA"))
}

func TestIsS3Only(t *testing.T) {
	assert.True(t, IsS3Only("DMW"))
	assert.True(t, IsS3Only("dsr"))
	assert.True(t, IsS3Only("RSR"))
	assert.False(t, IsS3Only("CMIP"))
	assert.False(t, IsS3Only("ACHA"))
}

func TestProductPaths(t *testing.T) {
	assert.Equal(t, "ABI-L1b-RadF", ProductPathL1b("abi", "F"))
	assert.Equal(t, "ABI-L1b-RadC", ProductPathL1b("abi", "C"))
	assert.Equal(t, "ABI-L2-CMIPC", ProductPathL2("abi", "CMIP", "C"))
	assert.Equal(t, "ABI-L2-CODF", ProductPathL2("abi", "CODD", "F"))
}

func TestDomainLetter(t *testing.T) {
	assert.Equal(t, "F", DomainLetter("fd"))
	assert.Equal(t, "C", DomainLetter("conus"))
	assert.Equal(t, "C", DomainLetter("CONUS"))
	assert.Equal(t, "M1", DomainLetter("m1"))
}
