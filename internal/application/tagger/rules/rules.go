// Package rules supplies the built-in tag rule table: game identity, game
// mode, and population tags. Rules are plain composite literals, registered
// explicitly rather than discovered by package scanning.
package rules

import (
	"math"
	"strings"

	"serverstf/internal/application/tagger"
	"serverstf/internal/domain/players"
	"serverstf/internal/domain/tagset"
	"serverstf/internal/infrastructure/a2s"
)

// Default returns the full built-in rule table: game identity (tf2, csgo),
// TF2 game modes, and player population tags.
func Default() []tagger.Rule {
	var all []tagger.Rule
	all = append(all, games()...)
	all = append(all, modes()...)
	all = append(all, population()...)
	return all
}

func games() []tagger.Rule {
	return []tagger.Rule{
		{
			Tag: "tf2",
			Predicate: func(info a2s.Info, _ players.Players, _ a2s.Rules, _ tagset.Set) bool {
				return info.AppID == 440
			},
		},
		{
			Tag: "csgo",
			Predicate: func(info a2s.Info, _ players.Players, _ a2s.Rules, _ tagset.Set) bool {
				return info.AppID == 730
			},
		},
	}
}

func hasMapPrefix(info a2s.Info, prefix string) bool {
	return strings.HasPrefix(strings.ToLower(info.Map), prefix)
}

func cvar(rules a2s.Rules, name string) bool {
	v, ok := rules.Get(name)
	return ok && v == "1"
}

func modes() []tagger.Rule {
	return []tagger.Rule{
		{
			Tag:          "mode:arena",
			Dependencies: []string{"tf2"},
			Predicate: func(_ a2s.Info, _ players.Players, rules a2s.Rules, applied tagset.Set) bool {
				return applied.Contains("tf2") && cvar(rules, "tf_gamemode_arena")
			},
		},
		{
			Tag:          "mode:cp",
			Dependencies: []string{"tf2"},
			Predicate: func(_ a2s.Info, _ players.Players, rules a2s.Rules, applied tagset.Set) bool {
				return applied.Contains("tf2") && cvar(rules, "tf_gamemode_cp")
			},
		},
		{
			Tag:          "mode:ctf",
			Dependencies: []string{"tf2"},
			Predicate: func(_ a2s.Info, _ players.Players, rules a2s.Rules, applied tagset.Set) bool {
				return applied.Contains("tf2") && cvar(rules, "tf_gamemode_ctf")
			},
		},
		{
			// A derivative of mode:cp, typically indicated by a koth_ map prefix.
			Tag:          "mode:koth",
			Dependencies: []string{"tf2", "mode:cp"},
			Predicate: func(info a2s.Info, _ players.Players, _ a2s.Rules, applied tagset.Set) bool {
				return applied.Contains("tf2") && applied.Contains("mode:cp") && hasMapPrefix(info, "koth_")
			},
		},
		{
			Tag:          "mode:mvm",
			Dependencies: []string{"tf2"},
			Predicate: func(_ a2s.Info, _ players.Players, rules a2s.Rules, applied tagset.Set) bool {
				return applied.Contains("tf2") && cvar(rules, "tf_gamemode_mvm")
			},
		},
		{
			Tag:          "mode:payload",
			Dependencies: []string{"tf2"},
			Predicate: func(_ a2s.Info, _ players.Players, rules a2s.Rules, applied tagset.Set) bool {
				return applied.Contains("tf2") && cvar(rules, "tf_gamemode_payload")
			},
		},
		{
			Tag:          "mode:sd",
			Dependencies: []string{"tf2"},
			Predicate: func(_ a2s.Info, _ players.Players, rules a2s.Rules, applied tagset.Set) bool {
				return applied.Contains("tf2") && cvar(rules, "tf_gamemode_sd")
			},
		},
		{
			Tag:          "mode:rd",
			Dependencies: []string{"tf2"},
			Predicate: func(_ a2s.Info, _ players.Players, rules a2s.Rules, applied tagset.Set) bool {
				return applied.Contains("tf2") && cvar(rules, "tf_gamemode_rd")
			},
		},
		{
			Tag:          "mode:medieval",
			Dependencies: []string{"tf2"},
			Predicate: func(_ a2s.Info, _ players.Players, rules a2s.Rules, applied tagset.Set) bool {
				return applied.Contains("tf2") && cvar(rules, "tf_medieval")
			},
		},
		{
			Tag:          "mode:sb",
			Dependencies: []string{"tf2", "mode:arena"},
			Predicate: func(info a2s.Info, _ players.Players, _ a2s.Rules, applied tagset.Set) bool {
				return applied.Contains("tf2") && applied.Contains("mode:arena") && hasMapPrefix(info, "sb_")
			},
		},
		{
			// Versus Saxton Hale.
			Tag:          "mode:vsh",
			Dependencies: []string{"tf2", "mode:arena"},
			Predicate: func(info a2s.Info, _ players.Players, _ a2s.Rules, applied tagset.Set) bool {
				return applied.Contains("tf2") && applied.Contains("mode:arena") && hasMapPrefix(info, "vsh_")
			},
		},
		{
			Tag:          "mode:dr",
			Dependencies: []string{"tf2", "mode:arena"},
			Predicate: func(info a2s.Info, _ players.Players, _ a2s.Rules, applied tagset.Set) bool {
				return applied.Contains("tf2") && applied.Contains("mode:arena") && hasMapPrefix(info, "dr_")
			},
		},
		{
			// Unofficial surfing game mode.
			Tag:          "mode:surf",
			Dependencies: []string{"tf2"},
			Predicate: func(info a2s.Info, _ players.Players, _ a2s.Rules, applied tagset.Set) bool {
				return applied.Contains("tf2") && hasMapPrefix(info, "surf_")
			},
		},
		{
			// My Gaming Edge mod.
			Tag:          "mode:mge",
			Dependencies: []string{"tf2"},
			Predicate: func(info a2s.Info, _ players.Players, _ a2s.Rules, applied tagset.Set) bool {
				return applied.Contains("tf2") && hasMapPrefix(info, "mge_")
			},
		},
	}
}

func population() []tagger.Rule {
	return []tagger.Rule{
		{
			// Player count can exceed max_players on servers with reserved slots.
			Tag: "population:full",
			Predicate: func(info a2s.Info, _ players.Players, _ a2s.Rules, _ tagset.Set) bool {
				return info.PlayerCount-info.BotCount >= info.MaxPlayers
			},
		},
		{
			Tag: "population:empty",
			Predicate: func(info a2s.Info, _ players.Players, _ a2s.Rules, _ tagset.Set) bool {
				return info.PlayerCount-info.BotCount == 0
			},
		},
		{
			Tag: "population:active",
			Predicate: func(info a2s.Info, _ players.Players, _ a2s.Rules, _ tagset.Set) bool {
				return float64(info.PlayerCount-info.BotCount) >= math.Floor(float64(info.MaxPlayers)*0.6)
			},
		},
	}
}
