package logstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimespan(t *testing.T) {
	tests := []struct {
		in   string
		want Timespan
	}{
		{"P1D", Timespan{Days: 1}},
		{"P7D", Timespan{Days: 7}},
		{"PT12H", Timespan{Hours: 12}},
		{"P1M", Timespan{Months: 1}},
		{"P1M2DT3H", Timespan{Months: 1, Days: 2, Hours: 3}},
		{" P1D ", Timespan{Days: 1}},
	}
	for _, tt := range tests {
		got, err := ParseTimespan(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseTimespan_Invalid(t *testing.T) {
	for _, in := range []string{"", "P", "1D", "P1W", "PT1M", "one day", "P-1D"} {
		_, err := ParseTimespan(in)
		require.Error(t, err, in)
	}
}

func TestTimespanString(t *testing.T) {
	assert.Equal(t, "P1D", Timespan{Days: 1}.String())
	assert.Equal(t, "PT12H", Timespan{Hours: 12}.String())
	assert.Equal(t, "P3M", Timespan{Months: 3}.String())
	assert.Equal(t, "P1M2DT3H", Timespan{Months: 1, Days: 2, Hours: 3}.String())
	assert.Equal(t, "PT0H", Timespan{}.String())
}

func TestTimespanRoundTrip(t *testing.T) {
	for _, s := range []string{"P1D", "PT6H", "P2M", "P1M7DT12H"} {
		ts, err := ParseTimespan(s)
		require.NoError(t, err)
		assert.Equal(t, s, ts.String())
	}
}

func TestDefaultTimespanIsOneDay(t *testing.T) {
	assert.Equal(t, "P1D", DefaultTimespan.String())
}
