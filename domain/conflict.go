package domain

import (
	"time"
)

// Strategy selects how competing candidates are reduced to one winner.
type Strategy string

const (
	// StrategyTimestamp keeps the most recent candidate (last-writer-wins).
	StrategyTimestamp Strategy = "timestamp"
	// StrategyPriority keeps the candidate from the highest-ranked device
	// type, falling back to timestamp between equal ranks.
	StrategyPriority Strategy = "priority"
	// StrategyUserChoice is not implemented yet and falls back to
	// StrategyTimestamp. The fallback is reported in the resolution so
	// clients are not misled about how the winner was picked.
	StrategyUserChoice Strategy = "user_choice"
)

// Candidate is one message competing to become the canonical state of a
// conversation.
type Candidate struct {
	ID         string
	Content    string
	Timestamp  time.Time
	DeviceID   string
	DeviceType DeviceType
}

// Resolution is the outcome of a conflict: a single winner, the strategy
// that actually decided it, and the full candidate set so every device can
// reconcile. Losers are superseded, never merged.
type Resolution struct {
	Resolved   Candidate
	Applied    Strategy
	Candidates []Candidate
}

// Resolve picks one canonical candidate. It is a pure function and safe
// under arbitrary concurrency. Ties keep the earliest candidate in input
// order, so resolution is deterministic for a given input sequence.
func Resolve(candidates []Candidate, strategy Strategy) (Resolution, bool) {
	if len(candidates) == 0 {
		return Resolution{}, false
	}

	applied := strategy
	if strategy == StrategyUserChoice {
		applied = StrategyTimestamp
	}

	winner := candidates[0]
	for _, c := range candidates[1:] {
		if beats(c, winner, applied) {
			winner = c
		}
	}

	return Resolution{
		Resolved:   winner,
		Applied:    applied,
		Candidates: candidates,
	}, true
}

// beats reports whether challenger strictly wins over incumbent. Strict
// comparison preserves stable input order on ties.
func beats(challenger, incumbent Candidate, strategy Strategy) bool {
	switch strategy {
	case StrategyPriority:
		cp, ip := challenger.DeviceType.Priority(), incumbent.DeviceType.Priority()
		if cp != ip {
			return cp > ip
		}
		return challenger.Timestamp.After(incumbent.Timestamp)
	default:
		return challenger.Timestamp.After(incumbent.Timestamp)
	}
}
