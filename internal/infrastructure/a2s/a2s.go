// Package a2s wraps the third-party Source-engine A2S UDP query client
// (github.com/rumblefrog/go-a2s) behind a small, context-scoped interface
// and re-shapes its heterogeneous response types into the fixed, tagged
// structs the tagger and poller consume.
package a2s

import (
	"context"
	"fmt"
	"time"

	goa2s "github.com/rumblefrog/go-a2s"

	serrors "serverstf/internal/shared/errors"
)

// DefaultTimeout is the per-request timeout enforced by Querier when the
// caller's context carries no earlier deadline.
const DefaultTimeout = 5 * time.Second

// Info is the subset of an A2S INFO response the tagger and status model
// consume, plus an Extra overflow for anything go-a2s exposes beyond it.
type Info struct {
	ServerName  string
	Map         string
	AppID       int
	PlayerCount int
	MaxPlayers  int
	BotCount    int
	Extra       map[string]string
}

// Player is one entry of an A2S PLAYERS response.
type Player struct {
	Name     string
	Score    int
	Duration time.Duration
}

// Players is an A2S PLAYERS response.
type Players struct {
	Players []Player
}

// Rules is an A2S RULES response: a flat string-to-string map holding every
// server console variable the server reported (e.g. "tf_gamemode_ctf" ->
// "1"). It has no separate overflow field.
type Rules struct {
	Rules map[string]string
}

// Querier issues A2S queries against one server address. Each Querier owns
// a single UDP socket and is not safe for concurrent use by multiple
// goroutines -- callers (the poller pool) give each worker its own.
type Querier interface {
	GetInfo(ctx context.Context) (Info, error)
	GetPlayers(ctx context.Context) (Players, error)
	GetRules(ctx context.Context) (Rules, error)
	Close() error
}

type querier struct {
	client *goa2s.Client
}

// Dial opens a UDP socket to addr ("ip:port") for subsequent A2S queries.
func Dial(addr string) (Querier, error) {
	client, err := goa2s.NewClient(addr, goa2s.TimeoutOption(DefaultTimeout))
	if err != nil {
		return nil, serrors.NewPollError(fmt.Sprintf("dial %s", addr), err)
	}
	return &querier{client: client}, nil
}

func (q *querier) Close() error {
	return q.client.Close()
}

// GetInfo issues an A2S_INFO query, honoring ctx's deadline (or
// DefaultTimeout if ctx carries none).
func (q *querier) GetInfo(ctx context.Context) (Info, error) {
	type result struct {
		info *goa2s.ServerInfo
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		info, err := q.client.QueryInfo()
		ch <- result{info, err}
	}()

	select {
	case <-ctx.Done():
		return Info{}, serrors.NewPollError("query info timed out", ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return Info{}, serrors.NewPollError("query info", r.err)
		}
		return Info{
			ServerName:  r.info.Name,
			Map:         r.info.Map,
			AppID:       int(r.info.ID),
			PlayerCount: int(r.info.Players),
			MaxPlayers:  int(r.info.MaxPlayers),
			BotCount:    int(r.info.Bots),
			Extra:       map[string]string{"folder": r.info.Folder, "game": r.info.Game},
		}, nil
	}
}

// GetPlayers issues an A2S_PLAYER query, honoring ctx's deadline.
func (q *querier) GetPlayers(ctx context.Context) (Players, error) {
	type result struct {
		players *goa2s.PlayerInfo
		err     error
	}
	ch := make(chan result, 1)
	go func() {
		players, err := q.client.QueryPlayer()
		ch <- result{players, err}
	}()

	select {
	case <-ctx.Done():
		return Players{}, serrors.NewPollError("query players timed out", ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return Players{}, serrors.NewPollError("query players", r.err)
		}
		out := make([]Player, 0, len(r.players.Players))
		for _, p := range r.players.Players {
			out = append(out, Player{
				Name:     p.Name,
				Score:    int(p.Score),
				Duration: time.Duration(float64(p.Duration) * float64(time.Second)),
			})
		}
		return Players{Players: out}, nil
	}
}

// GetRules issues an A2S_RULES query, honoring ctx's deadline.
func (q *querier) GetRules(ctx context.Context) (Rules, error) {
	type result struct {
		rules *goa2s.RulesInfo
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		rules, err := q.client.QueryRules()
		ch <- result{rules, err}
	}()

	select {
	case <-ctx.Done():
		return Rules{}, serrors.NewPollError("query rules timed out", ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return Rules{}, serrors.NewPollError("query rules", r.err)
		}
		out := make(map[string]string, len(r.rules.Rules))
		for name, value := range r.rules.Rules {
			out[name] = value
		}
		return Rules{Rules: out}, nil
	}
}

// Get looks up a rule value by name, reporting whether it was present --
// the tagger's predicates treat a missing rule as simply "false" rather
// than erroring.
func (r Rules) Get(name string) (string, bool) {
	v, ok := r.Rules[name]
	return v, ok
}

// Get looks up an Info overflow field by name.
func (i Info) Get(name string) (string, bool) {
	v, ok := i.Extra[name]
	return v, ok
}
