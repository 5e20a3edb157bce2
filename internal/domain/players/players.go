// Package players models an immutable snapshot of a server's player roster.
package players

import (
	"encoding/json"
	"fmt"
	"time"
)

// Score is one player's current name, score, and connection duration.
type Score struct {
	Name     string
	Score    int
	Duration time.Duration
}

// Players is an immutable roster snapshot: a current count, a maximum
// count, a bot count, and a sequence of per-player scores. The length of
// Scores may diverge from Current -- a freshly connected player may not
// have published a display name yet and is dropped from Scores (see
// FromEntries), while still counting toward Current.
type Players struct {
	Current int
	Max     int
	Bots    int
	Scores  []Score
}

// Entry is a raw player record as reported by an A2S PLAYERS query, before
// names have been filtered.
type Entry struct {
	Name     string
	Score    int
	Duration time.Duration
}

// FromEntries builds a Players snapshot from raw A2S fields, dropping
// entries with an empty name (not-yet-named fresh connections).
func FromEntries(current, max, bots int, entries []Entry) Players {
	scores := make([]Score, 0, len(entries))
	for _, e := range entries {
		if e.Name == "" {
			continue
		}
		scores = append(scores, Score{Name: e.Name, Score: e.Score, Duration: e.Duration})
	}
	return Players{Current: current, Max: max, Bots: bots, Scores: scores}
}

// Empty is the zero-value roster used when a server's players are unknown.
var Empty = Players{Scores: []Score{}}

type wireForm struct {
	Current int      `json:"current"`
	Max     int      `json:"max"`
	Bots    int      `json:"bots"`
	Scores  [][3]any `json:"scores"`
}

// MarshalJSON renders Players as {"current","max","bots","scores"} where
// scores is an array of [name, score, duration-seconds] triples.
func (p Players) MarshalJSON() ([]byte, error) {
	scores := make([][3]any, len(p.Scores))
	for i, s := range p.Scores {
		scores[i] = [3]any{s.Name, s.Score, s.Duration.Seconds()}
	}
	return json.Marshal(wireForm{
		Current: p.Current,
		Max:     p.Max,
		Bots:    p.Bots,
		Scores:  scores,
	})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (p *Players) UnmarshalJSON(data []byte) error {
	var raw struct {
		Current int                  `json:"current"`
		Max     int                  `json:"max"`
		Bots    int                  `json:"bots"`
		Scores  [][3]json.RawMessage `json:"scores"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode players: %w", err)
	}

	scores := make([]Score, len(raw.Scores))
	for i, triple := range raw.Scores {
		var name string
		if err := json.Unmarshal(triple[0], &name); err != nil {
			return fmt.Errorf("decode players: score %d name: %w", i, err)
		}
		var score int
		if err := json.Unmarshal(triple[1], &score); err != nil {
			return fmt.Errorf("decode players: score %d score: %w", i, err)
		}
		var seconds float64
		if err := json.Unmarshal(triple[2], &seconds); err != nil {
			return fmt.Errorf("decode players: score %d duration: %w", i, err)
		}
		scores[i] = Score{Name: name, Score: score, Duration: time.Duration(seconds * float64(time.Second))}
	}

	p.Current = raw.Current
	p.Max = raw.Max
	p.Bots = raw.Bots
	p.Scores = scores
	return nil
}
