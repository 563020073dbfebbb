package goes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJulianConversions(t *testing.T) {
	j, err := YMDToJulian("20231026")
	require.NoError(t, err)
	assert.Equal(t, "2023299", j)

	ymd, err := JulianToYMD("2023299")
	require.NoError(t, err)
	assert.Equal(t, "20231026", ymd)

	// leap year
	j, err = YMDToJulian("20241231")
	require.NoError(t, err)
	assert.Equal(t, "2024366", j)

	_, err = ParseDay("2023-10-26")
	require.Error(t, err)
	_, err = ParseDay("20231301")
	require.Error(t, err)
}

func TestExpandDayKey(t *testing.T) {
	days, err := ExpandDayKey("20230701")
	require.NoError(t, err)
	assert.Equal(t, []string{"20230701"}, days)

	days, err = ExpandDayKey("20230701-20230703")
	require.NoError(t, err)
	assert.Equal(t, []string{"20230701", "20230702", "20230703"}, days)

	days, err = ExpandDayKey("20230701-20230731")
	require.NoError(t, err)
	assert.Len(t, days, 31)

	// julian keys keep their shape
	days, err = ExpandDayKey("2023299-2023301")
	require.NoError(t, err)
	assert.Equal(t, []string{"2023299", "2023300", "2023301"}, days)

	// ranges cross month and year boundaries
	days, err = ExpandDayKey("20231230-20240102")
	require.NoError(t, err)
	assert.Equal(t, []string{"20231230", "20231231", "20240101", "20240102"}, days)

	_, err = ExpandDayKey("20230703-20230701")
	require.Error(t, err)
}

func TestWeekOfYear(t *testing.T) {
	assert.Equal(t, "01", WeekOfYear(1))
	assert.Equal(t, "01", WeekOfYear(7))
	assert.Equal(t, "02", WeekOfYear(8))
	assert.Equal(t, "43", WeekOfYear(299))
	assert.Equal(t, "53", WeekOfYear(365))

	w, err := WeekForDay("20231026")
	require.NoError(t, err)
	assert.Equal(t, "43", w)
}

func TestParseTimeRange(t *testing.T) {
	start, end, err := ParseTimeRange("12:00-13:30")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay{12, 0}, start)
	assert.Equal(t, TimeOfDay{13, 30}, end)

	start, end, err = ParseTimeRange("09:05")
	require.NoError(t, err)
	assert.Equal(t, start, end)
	assert.Equal(t, TimeOfDay{9, 5}, start)

	_, _, err = ParseTimeRange("25:00")
	require.Error(t, err)
	_, _, err = ParseTimeRange("12:60")
	require.Error(t, err)
	_, _, err = ParseTimeRange("noon")
	require.Error(t, err)
}

func TestMinutesInRange(t *testing.T) {
	assert.Equal(t, 1, MinutesInRange(TimeOfDay{12, 0}, TimeOfDay{12, 0}))
	assert.Equal(t, 61, MinutesInRange(TimeOfDay{12, 0}, TimeOfDay{13, 0}))
	assert.Equal(t, 1440, MinutesInRange(TimeOfDay{0, 0}, TimeOfDay{23, 59}))

	// wraps midnight
	assert.Equal(t, 21, MinutesInRange(TimeOfDay{23, 50}, TimeOfDay{0, 10}))
}

func TestParseStamp(t *testing.T) {
	ts, err := ParseStamp("20232991201")
	require.NoError(t, err)
	assert.Equal(t, 2023, ts.Year())
	assert.Equal(t, 299, ts.YearDay())
	assert.Equal(t, 12, ts.Hour())
	assert.Equal(t, 1, ts.Minute())

	_, err = ParseStamp("2023299120")
	require.Error(t, err)
	_, err = ParseStamp("2023299xx01")
	require.Error(t, err)
}
