// Package budget computes how many downloads the archiver may dispatch in
// one tick, given the daily limit, the per-tick cap, and a duration-weighted
// halving for long candidates.
package budget

import "log"

// Candidate is the minimum the calculator needs to know about a video
// awaiting dispatch.
type Candidate struct {
	ID       string
	Duration int // seconds
}

// Calculator applies the admission-control policy for one tick.
type Calculator struct {
	DailyLimit       int // D
	PerTickLimit     int // T
	DurationSplit    int // S, seconds
	onMaxDaily       func()
	onHalved         func()
}

// New returns a calculator with the given limits.
func New(dailyLimit, perTickLimit, durationSplit int) *Calculator {
	return &Calculator{
		DailyLimit:    dailyLimit,
		PerTickLimit:  perTickLimit,
		DurationSplit: durationSplit,
	}
}

// OnMaxDaily registers an observer for the "max daily reached" signal.
func (c *Calculator) OnMaxDaily(fn func()) { c.onMaxDaily = fn }

// OnHalved registers an observer for the duration-halving signal.
func (c *Calculator) OnHalved(fn func()) { c.onHalved = fn }

// Take returns how many of the candidates, in priority order, may be
// dispatched this tick given todayDownloads completed so far today.
func (c *Calculator) Take(todayDownloads int, candidates []Candidate) int {
	remaining := c.DailyLimit - todayDownloads
	if remaining <= 0 {
		log.Printf("Budget: max daily downloads reached (%d/%d)", todayDownloads, c.DailyLimit)
		if c.onMaxDaily != nil {
			c.onMaxDaily()
		}
		return 0
	}

	take := c.PerTickLimit
	if remaining < take {
		take = remaining
	}
	if take > len(candidates) {
		take = len(candidates)
	}
	if take <= 0 {
		return 0
	}

	for _, cand := range candidates[:take] {
		if c.DurationSplit > 0 && cand.Duration > c.DurationSplit {
			log.Printf("Budget: Halving max automated downloads, %q duration %ds exceeds split %ds",
				cand.ID, cand.Duration, c.DurationSplit)
			if c.onHalved != nil {
				c.onHalved()
			}
			take /= 2
			break
		}
	}
	return take
}
