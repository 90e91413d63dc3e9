package budget

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func shortCandidates(n int) []Candidate {
	out := make([]Candidate, n)
	for i := range out {
		out[i] = Candidate{ID: "v", Duration: 60}
	}
	return out
}

func TestTakeRespectsPerTickLimit(t *testing.T) {
	calc := New(400, 4, 5400)
	assert.Equal(t, 4, calc.Take(0, shortCandidates(10)))
}

func TestTakeClampsToCandidates(t *testing.T) {
	calc := New(400, 4, 5400)
	assert.Equal(t, 2, calc.Take(0, shortCandidates(2)))
}

func TestTakeZeroWhenDailyLimitReached(t *testing.T) {
	calc := New(400, 4, 5400)
	fired := false
	calc.OnMaxDaily(func() { fired = true })

	assert.Equal(t, 0, calc.Take(400, shortCandidates(10)))
	assert.True(t, fired)
}

func TestTakeClampsToDailyRemainder(t *testing.T) {
	calc := New(400, 4, 5400)
	assert.Equal(t, 1, calc.Take(399, shortCandidates(10)))
}

func TestTakeHalvesOnLongCandidate(t *testing.T) {
	calc := New(400, 4, 5400)
	halved := false
	calc.OnHalved(func() { halved = true })

	candidates := shortCandidates(4)
	candidates[1].Duration = 7200

	assert.Equal(t, 2, calc.Take(0, candidates))
	assert.True(t, halved)
}

func TestTakeHalvesOnlyOnce(t *testing.T) {
	calc := New(400, 4, 5400)
	candidates := shortCandidates(4)
	candidates[0].Duration = 7200
	candidates[1].Duration = 9000

	assert.Equal(t, 2, calc.Take(0, candidates))
}

func TestTakeIgnoresLongCandidatesBeyondTake(t *testing.T) {
	// The halving check only inspects candidates that would be taken.
	calc := New(400, 2, 5400)
	candidates := shortCandidates(4)
	candidates[3].Duration = 7200

	assert.Equal(t, 2, calc.Take(0, candidates))
}

func TestTakeHalvingFloorsToZero(t *testing.T) {
	calc := New(400, 1, 5400)
	candidates := []Candidate{{ID: "long", Duration: 7200}}
	assert.Equal(t, 0, calc.Take(0, candidates))
}

func TestTakeDisabledSplit(t *testing.T) {
	calc := New(400, 4, 0)
	candidates := shortCandidates(4)
	candidates[0].Duration = 100000
	assert.Equal(t, 4, calc.Take(0, candidates))
}
