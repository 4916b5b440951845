package wiretime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatKnownInstants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   time.Time
		want string
	}{
		{name: "epoch", in: time.Unix(0, 0), want: "1970-01-01T00:00:00Z"},
		{name: "reference", in: time.Date(2024, 1, 13, 12, 0, 0, 0, time.UTC), want: "2024-01-13T12:00:00Z"},
		{name: "leap day", in: time.Date(2024, 2, 29, 23, 59, 59, 0, time.UTC), want: "2024-02-29T23:59:59Z"},
		{name: "day after leap day", in: time.Date(2024, 2, 29, 23, 59, 60, 0, time.UTC), want: "2024-03-01T00:00:00Z"},
		{name: "non-leap century", in: time.Date(2100, 2, 28, 23, 59, 60, 0, time.UTC), want: "2100-03-01T00:00:00Z"},
		{name: "leap century", in: time.Date(2000, 2, 29, 0, 0, 0, 0, time.UTC), want: "2000-02-29T00:00:00Z"},
		{name: "year end", in: time.Date(2023, 12, 31, 23, 59, 59, 0, time.UTC), want: "2023-12-31T23:59:59Z"},
		{name: "new year", in: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), want: "2024-01-01T00:00:00Z"},
		{name: "truncates fraction", in: time.Date(2024, 5, 6, 7, 8, 9, 999_000_000, time.UTC), want: "2024-05-06T07:08:09Z"},
		{name: "converts offset", in: time.Date(2024, 1, 1, 1, 30, 0, 0, time.FixedZone("CET", 3600)), want: "2024-01-01T00:30:00Z"},
		{name: "far future", in: time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC), want: "9999-12-31T23:59:59Z"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Format(tt.in))
		})
	}
}

func TestRoundTripPreservesCalendarFields(t *testing.T) {
	t.Parallel()
	instants := []time.Time{
		time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(1999, 12, 31, 23, 59, 59, 0, time.UTC),
		time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 2, 28, 12, 34, 56, 0, time.UTC),
		time.Date(2024, 2, 29, 6, 7, 8, 0, time.UTC),
		time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC),
		time.Date(2400, 2, 29, 1, 2, 3, 0, time.UTC),
	}
	for _, in := range instants {
		got, err := Parse(Format(in))
		require.NoError(t, err)
		assert.Equal(t, in.Year(), got.Year())
		assert.Equal(t, in.Month(), got.Month())
		assert.Equal(t, in.Day(), got.Day())
		assert.Equal(t, in.Hour(), got.Hour())
		assert.Equal(t, in.Minute(), got.Minute())
		assert.Equal(t, in.Second(), got.Second())
	}
}

func TestRoundTripEveryDayOfLeapAndCommonYear(t *testing.T) {
	t.Parallel()
	for _, year := range []int{2023, 2024} {
		day := time.Date(year, 1, 1, 13, 14, 15, 0, time.UTC)
		for day.Year() == year {
			got, err := Parse(Format(day))
			require.NoError(t, err)
			require.True(t, got.Equal(day), "round trip of %s gave %s", day, got)
			day = day.AddDate(0, 0, 1)
		}
	}
}

func TestCutoffNeverAfterNow(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 1, 0, 0, 30, 0, time.UTC)
	for i := 0; i < 500; i++ {
		n := now.Add(time.Duration(i) * 7919 * time.Second)
		c := Cutoff(n, 60*time.Second)
		assert.LessOrEqual(t, c, Format(n))
	}
	assert.Equal(t, "2023-12-31T23:59:30Z", Cutoff(now, time.Minute))
	assert.Equal(t, Format(now), Cutoff(now, -time.Minute))
}

func TestParseAcceptsOffsets(t *testing.T) {
	t.Parallel()
	got, err := Parse("2024-01-13T13:00:00+01:00")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-13T12:00:00Z", Format(got))

	_, err = Parse("")
	assert.Error(t, err)
	_, err = Parse("yesterday")
	assert.Error(t, err)
	_, err = Parse("2024-13-01T00:00:00Z")
	assert.Error(t, err)
}

func TestLexicographicMatchesChronological(t *testing.T) {
	t.Parallel()
	a := Format(time.Date(2024, 9, 30, 23, 59, 59, 0, time.UTC))
	b := Format(time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC))
	assert.True(t, Before(a, b))
	assert.True(t, After(b, a))
	assert.False(t, After(a, a))
}
