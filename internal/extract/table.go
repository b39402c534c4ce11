package extract

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/andybalholm/cascadia"
	"gopkg.in/yaml.v3"
)

// Selector keys.
const (
	KeyTeamName      = "team_name"
	KeyTeamLogo      = "team_logo"
	KeyTeamRegion    = "team_region"
	KeyRosterPlayers = "roster_players"
	KeyRosterItem    = "roster_item"
	KeyMatchElements = "match_elements"
	KeyOpponent      = "opponent"
	KeyScore         = "score"
	KeyMatchDate     = "match_date"
	KeyMatchEvent    = "match_tournament"
	KeyMatchLink     = "match_link"
	KeyStatElements  = "stat_elements"
	KeyEventName     = "event_name"
	KeyEventDate     = "event_date"
	KeyEventRegion   = "event_region"
	KeyEventPrize    = "event_prize"
	KeyEventTeams    = "event_teams"
	KeyEventIndex    = "event_index"
)

// Rule is one selector in a fallback chain. Attr switches the rule to
// attribute mode; Reject lists extra text values (case-insensitive) to skip.
type Rule struct {
	Selector string   `yaml:"selector"`
	Attr     string   `yaml:"attr,omitempty"`
	Reject   []string `yaml:"reject,omitempty"`
}

// UnmarshalYAML accepts either a bare selector string or a mapping.
func (r *Rule) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		r.Selector = node.Value
		return nil
	}
	type plain Rule
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*r = Rule(p)
	return nil
}

// Table maps a field key to its ordered selector chain.
type Table map[string][]Rule

func rules(selectors ...string) []Rule {
	out := make([]Rule, len(selectors))
	for i, s := range selectors {
		out[i] = Rule{Selector: s}
	}
	return out
}

// DefaultTable returns the built-in selector chains for vlr.gg pages.
func DefaultTable() Table {
	versus := []string{"vs", "versus"}
	return Table{
		KeyTeamName: rules(
			"h1.wf-title",
			"h1.team-header-name",
			".team-header-name",
			`h1[class*="title"]`,
			"h1",
		),
		KeyTeamLogo: {
			{Selector: "img.team-header-logo", Attr: "src"},
			{Selector: ".team-header-logo img", Attr: "src"},
			{Selector: ".wf-avatar img", Attr: "src"},
			{Selector: `img[class*="logo"]`, Attr: "src"},
		},
		KeyTeamRegion: rules(
			".team-header-country",
			".flag",
			`[class*="country"]`,
			`[class*="flag"]`,
			".team-header-info .flag",
		),
		KeyRosterPlayers: rules(
			`.team-roster-item a[href*="/player/"]`,
			`.roster-item a[href*="/player/"]`,
			`a[href*="/player/"]`,
		),
		KeyRosterItem: rules(".team-roster-item"),
		KeyMatchElements: rules(
			".wf-card",
			".match-item",
			`[class*="match"]`,
			".mod-color",
			".match-list-item",
		),
		KeyOpponent: {
			{Selector: ".text-of", Reject: versus},
			{Selector: ".team-name", Reject: versus},
			{Selector: `[class*="team"]:not([class*="own"])`, Reject: versus},
			{Selector: `a[href*="/team/"]`, Reject: versus},
			{Selector: ".match-item-vs .text-of", Reject: versus},
		},
		KeyScore: rules(
			".match-item-vs-score",
			`[class*="score"]`,
			".mod-win",
			".mod-loss",
			".match-item-eta",
		),
		KeyMatchDate: rules(
			".match-item-date",
			`[class*="date"]`,
			".moment-tz-convert",
			"[data-time-to-show]",
		),
		KeyMatchEvent: rules(
			".match-item-event",
			`[class*="tournament"]`,
			`[class*="event"]`,
		),
		KeyMatchLink: {
			{Selector: `a[href*="/match/"]`, Attr: "href"},
		},
		KeyStatElements: rules(
			`[class*="stat"]`,
			`[class*="rating"]`,
			`[class*="winrate"]`,
			".team-summary-stats",
		),
		KeyEventName:   rules("h1"),
		KeyEventDate:   rules(".event-header-date"),
		KeyEventRegion: rules(".event-header-region"),
		KeyEventPrize:  rules(".event-prize"),
		KeyEventTeams:  rules(`a[href*="/team/"]`),
		KeyEventIndex:  rules("a.event-item"),
	}
}

// Merge returns a copy of t with every key in override replacing t's chain.
func (t Table) Merge(override Table) Table {
	out := make(Table, len(t)+len(override))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

// Validate rejects empty chains and selectors that do not compile.
func (t Table) Validate() error {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var errs []error
	for _, key := range keys {
		chain := t[key]
		if len(chain) == 0 {
			errs = append(errs, fmt.Errorf("selector key %q: empty chain", key))
			continue
		}
		for i, r := range chain {
			if r.Selector == "" {
				errs = append(errs, fmt.Errorf("selector key %q[%d]: empty selector", key, i))
				continue
			}
			if _, err := cascadia.Compile(r.Selector); err != nil {
				errs = append(errs, fmt.Errorf("selector key %q[%d] %q: %w", key, i, r.Selector, err))
			}
		}
	}
	return errors.Join(errs...)
}

// LoadTable reads a YAML override file and merges it over DefaultTable.
// An empty path returns the defaults.
func LoadTable(path string) (Table, error) {
	table := DefaultTable()
	if path == "" {
		return table, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read selectors file: %w", err)
	}
	var override Table
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("parse selectors file %s: %w", path, err)
	}

	table = table.Merge(override)
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("validate selectors file %s: %w", path, err)
	}
	return table, nil
}
