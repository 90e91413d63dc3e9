package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRejectsBadExpressions(t *testing.T) {
	for _, expr := range []string{"", "not a schedule", "61 * * * *", "* * * *"} {
		_, err := Parse(expr)
		assert.ErrorIs(t, err, ErrInvalidSchedule, "expr %q", expr)
	}
}

func TestParseAcceptsWeekdayNames(t *testing.T) {
	at := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC) // a Tuesday

	active, err := IsActiveNow("30 9 * * tuesday", at)
	require.NoError(t, err)
	assert.True(t, active)

	active, err = IsActiveNow("30 9 * * Monday", at)
	require.NoError(t, err)
	assert.False(t, active)
}

func TestParseAcceptsWrapAroundRanges(t *testing.T) {
	// "55-5" covers the top of one hour into the start of the next.
	for _, minute := range []int{55, 59, 0, 5} {
		at := time.Date(2026, 3, 10, 14, minute, 0, 0, time.UTC)
		active, err := IsActiveNow("55-5 * * * *", at)
		require.NoError(t, err)
		assert.True(t, active, "minute %d", minute)
	}
	at := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	active, err := IsActiveNow("55-5 * * * *", at)
	require.NoError(t, err)
	assert.False(t, active)
}

func TestIsActiveNow(t *testing.T) {
	at := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC) // a Tuesday

	tests := []struct {
		expr   string
		active bool
	}{
		{"30 14 * * *", true},
		{"30 14 * * 2", true},
		{"30 14 10 3 *", true},
		{"0 14 * * *", false},
		{"30 15 * * *", false},
		{"30 14 * * 3", false},
	}
	for _, tt := range tests {
		active, err := IsActiveNow(tt.expr, at)
		require.NoError(t, err, tt.expr)
		assert.Equal(t, tt.active, active, tt.expr)
	}
}

func TestIsActiveNowIgnoresSeconds(t *testing.T) {
	at := time.Date(2026, 3, 10, 14, 30, 42, 0, time.UTC)
	active, err := IsActiveNow("30 14 * * *", at)
	require.NoError(t, err)
	assert.True(t, active)
}

func TestEnumerate(t *testing.T) {
	from := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	to := from.Add(48 * time.Hour)

	firings, err := Enumerate("0 6 * * *", from, to)
	require.NoError(t, err)
	require.Len(t, firings, 2)
	assert.Equal(t, time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC), firings[0])
	assert.Equal(t, time.Date(2026, 3, 11, 6, 0, 0, 0, time.UTC), firings[1])
}

func TestGeneratorsProduceValidSchedules(t *testing.T) {
	seed := time.Date(2026, 7, 15, 9, 37, 0, 0, time.UTC)
	for name, gen := range map[string]Generator{
		"daily": Daily, "everyOtherDay": EveryOtherDay, "weekly": Weekly,
		"monthly": Monthly, "biyearly": Biyearly, "yearly": Yearly,
	} {
		_, err := Parse(gen(seed))
		assert.NoError(t, err, name)
	}
}

func TestGeneratorsPinMinuteToTickBoundary(t *testing.T) {
	seed := time.Date(2026, 7, 15, 9, 37, 0, 0, time.UTC)
	assert.Equal(t, "30 9 * * *", Daily(seed))
	assert.Equal(t, "30 9 * * 3", Weekly(seed))
	assert.Equal(t, "30 9 15 * *", Monthly(seed))
}

func TestEveryOtherDayUsesOddDays(t *testing.T) {
	seed := time.Date(2026, 7, 15, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, "0 9 1-31/2 * *", EveryOtherDay(seed))
}

func TestBiyearlyMonthsSixApart(t *testing.T) {
	seed := time.Date(2026, 10, 3, 8, 0, 0, 0, time.UTC)
	expr := Biyearly(seed)
	_, err := Parse(expr)
	require.NoError(t, err)
	assert.Equal(t, "0 8 3 4,10 *", expr)
}

func TestGenerateSelectionSetSpacesSeeds(t *testing.T) {
	seed := time.Date(2026, 7, 15, 9, 0, 0, 0, time.UTC)
	set := GenerateSelectionSet(Daily, seed, 3)
	require.Len(t, set, 3)
	assert.Equal(t, "0 9 * * *", set[0])
	assert.Equal(t, "10 9 * * *", set[1])
	assert.Equal(t, "20 9 * * *", set[2])
}
