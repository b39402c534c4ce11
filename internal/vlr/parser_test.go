package vlr

import (
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/vlr-scraper/internal/extract"
	"github.com/albapepper/vlr-scraper/internal/roster"
)

var scrapedAt = time.Date(2025, 7, 26, 14, 30, 5, 0, time.UTC)

const teamPage = `<html><body>
<div class="team-header">
  <div class="wf-avatar team-header-logo"><img src="//owcdn.net/img/62a40cc2b5e29.png"></div>
  <h1 class="wf-title">Team Heretics</h1>
  <div class="team-header-country"><i class="flag mod-eu"></i> Europe</div>
</div>
<div class="team-summary-stats">
  <div class="stat-win">Win rate 62.5%</div>
  <div class="stat-rating">Rating 1.12</div>
</div>
<div class="team-roster-item">
  <a href="/player/11225/boo"><div class="team-roster-item-name-alias">Boo</div></a>
</div>
<div class="team-roster-item">
  <a href="/player/4004/benjyfishy"><div class="team-roster-item-name-alias">benjyfishy</div></a>
  <div class="team-roster-item-name-role">inactive</div>
</div>
<div class="team-roster-item">
  <a href="/player/9/neilzinho"><div class="team-roster-item-name-alias">neilzinho</div></a>
  <div class="team-roster-item-name-role">head coach</div>
</div>
<div class="team-roster-item">
  <a href="/player/1/x">x</a>
</div>
<a class="wf-card m-item" href="/match/314/th-vs-fnc">
  <div class="m-item-team"><span class="text-of">vs</span></div>
  <div class="team-name">FNATIC</div>
  <div class="m-item-result"><span class="score">2:1</span></div>
  <div class="m-item-date" data-time-to-show="2025/07/20 18:00"></div>
  <div class="m-item-event">VCT 2025: EMEA Stage 2</div>
</a>
<div class="wf-card"><div class="team-name">Team Vitality</div></div>
<div class="wf-card"><p>ad slot</p></div>
</body></html>`

func parse(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func newParser(t *testing.T, matchLimit int) *Parser {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ex, err := extract.New(extract.DefaultTable(), "https://www.vlr.gg", logger)
	require.NoError(t, err)
	return NewParser(ex, nil, matchLimit, logger)
}

func TestParseTeam(t *testing.T) {
	p := newParser(t, 0)
	rec := p.ParseTeam(parse(t, teamPage), "https://www.vlr.gg/team/1001/team-heretics", scrapedAt)

	assert.Equal(t, "Team Heretics", rec.TeamName)
	assert.Equal(t, "1001", rec.TeamID)
	require.NotNil(t, rec.LogoURL)
	assert.Equal(t, "https://owcdn.net/img/62a40cc2b5e29.png", *rec.LogoURL)
	require.NotNil(t, rec.Region)
	assert.Equal(t, "Europe", *rec.Region)
	assert.Equal(t, scrapedAt, rec.ScrapedAt)
	assert.Nil(t, rec.LastUpdated)

	require.Len(t, rec.Roster, 3, "single-character names are skipped")
	assert.Equal(t, Player{
		Name:       "Boo",
		ProfileURL: "https://www.vlr.gg/player/11225/boo",
		ID:         "11225",
		Role:       roster.RoleActive,
		Status:     roster.StatusActive,
	}, rec.Roster[0])
	assert.Equal(t, roster.RoleInactive, rec.Roster[1].Role)
	assert.Equal(t, roster.StatusInactive, rec.Roster[1].Status)
	assert.Equal(t, roster.RoleCoach, rec.Roster[2].Role)

	require.NotNil(t, rec.TeamStats.WinRate)
	assert.Equal(t, "62.5%", *rec.TeamStats.WinRate)
	require.NotNil(t, rec.TeamStats.Rating)
	assert.InDelta(t, 1.12, *rec.TeamStats.Rating, 1e-9)
}

func TestParseTeamNameFallsBackToURL(t *testing.T) {
	p := newParser(t, 0)
	doc := parse(t, `<html><body><h1 class="wf-title">N/A</h1></body></html>`)

	rec := p.ParseTeam(doc, "https://www.vlr.gg/team/42/some-team", scrapedAt)
	assert.Equal(t, "Some Team", rec.TeamName)
	assert.Equal(t, "42", rec.TeamID)
	assert.Nil(t, rec.LogoURL)
	assert.Nil(t, rec.Region)
	assert.Empty(t, rec.Roster)
	assert.Empty(t, rec.RecentMatches)
}

func TestParseTeamNameFallsBackToTimestamp(t *testing.T) {
	p := newParser(t, 0)
	rec := p.ParseTeam(parse(t, `<html></html>`), "https://www.vlr.gg/team/42", scrapedAt)
	assert.Equal(t, "team_20250726_143005", rec.TeamName)
	assert.Equal(t, "42", rec.TeamID)
}

func TestParseMatches(t *testing.T) {
	p := newParser(t, 0)
	matches := p.ParseMatches(parse(t, teamPage))

	require.Len(t, matches, 2, "cards without opponent or result are dropped")

	first := matches[0]
	assert.Equal(t, "FNATIC", first.Opponent, "vs placeholder is skipped")
	assert.Equal(t, "2:1", first.Result)
	require.NotNil(t, first.Score)
	assert.Equal(t, "2:1", *first.Score)
	require.NotNil(t, first.Date)
	assert.Equal(t, "2025/07/20 18:00", *first.Date)
	require.NotNil(t, first.Tournament)
	assert.Equal(t, "VCT 2025: EMEA Stage 2", *first.Tournament)
	require.NotNil(t, first.MatchURL, "the card itself is the link")
	assert.Equal(t, "https://www.vlr.gg/match/314/th-vs-fnc", *first.MatchURL)

	second := matches[1]
	assert.Equal(t, "Team Vitality", second.Opponent)
	assert.Equal(t, Unknown, second.Result)
	assert.Nil(t, second.Score)
	assert.Nil(t, second.Date)
}

func TestParseMatchesResultWithoutScore(t *testing.T) {
	p := newParser(t, 0)
	doc := parse(t, `<div class="match-item">
		<span class="match-item-eta">LIVE</span>
		<a href="/match/99/x">details</a>
		<span title="Sat, July 26">today</span>
	</div>`)

	matches := p.ParseMatches(doc)
	require.Len(t, matches, 1)
	assert.Equal(t, Unknown, matches[0].Opponent)
	assert.Equal(t, "LIVE", matches[0].Result)
	assert.Nil(t, matches[0].Score)
	require.NotNil(t, matches[0].MatchURL)
	assert.Equal(t, "https://www.vlr.gg/match/99/x", *matches[0].MatchURL)
}

func TestParseMatchesFieldFallbacks(t *testing.T) {
	str := func(s string) *string { return &s }

	tests := []struct {
		name string
		html string
		want MatchSummary
	}{
		{
			name: "blank score falls through to win marker",
			html: `<div class="match-item"><span class="match-item-vs-score"> </span><span class="mod-win">W</span></div>`,
			want: MatchSummary{Opponent: Unknown, Result: "W"},
		},
		{
			name: "placeholder score falls through",
			html: `<div class="match-item"><span class="team-name">FNC</span><span class="match-item-vs-score">N/A</span><span class="mod-win">W</span></div>`,
			want: MatchSummary{Opponent: "FNC", Result: "W"},
		},
		{
			name: "placeholder date attribute falls through",
			html: `<div class="match-item"><span class="team-name">FNC</span>
				<span class="match-item-date" data-time-to-show="unknown"></span>
				<span class="moment-tz-convert" title="2025/07/20 18:00"></span></div>`,
			want: MatchSummary{Opponent: "FNC", Result: Unknown, Date: str("2025/07/20 18:00")},
		},
		{
			name: "date text used without attributes",
			html: `<div class="match-item"><span class="team-name">FNC</span><span class="match-item-date">Jul 20</span></div>`,
			want: MatchSummary{Opponent: "FNC", Result: Unknown, Date: str("Jul 20")},
		},
		{
			name: "empty tournament falls through",
			html: `<div class="match-item"><span class="team-name">FNC</span>
				<span class="match-item-event"></span><span class="tournament-name">Masters Toronto</span></div>`,
			want: MatchSummary{Opponent: "FNC", Result: Unknown, Tournament: str("Masters Toronto")},
		},
		{
			name: "score with separator",
			html: `<div class="match-item"><span class="team-name">FNC</span><span class="match-item-vs-score">13-11</span></div>`,
			want: MatchSummary{Opponent: "FNC", Result: "13-11", Score: str("13-11")},
		},
		{
			name: "link on a descendant",
			html: `<div class="match-item"><span class="team-name">FNC</span><a href="/match/7/a-vs-b">go</a></div>`,
			want: MatchSummary{Opponent: "FNC", Result: Unknown, MatchURL: str("https://www.vlr.gg/match/7/a-vs-b")},
		},
	}
	p := newParser(t, 0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches := p.ParseMatches(parse(t, tt.html))
			require.Len(t, matches, 1)
			assert.Equal(t, tt.want, matches[0])
		})
	}
}

func TestParseMatchesHonorsLimit(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 20; i++ {
		b.WriteString(`<div class="wf-card"><span class="team-name">Opp</span></div>`)
	}
	p := newParser(t, 10)
	assert.Len(t, p.ParseMatches(parse(t, b.String())), 10)

	p = newParser(t, 0)
	assert.Len(t, p.ParseMatches(parse(t, b.String())), DefaultMatchLimit)
}

func TestParseStatsEmpty(t *testing.T) {
	p := newParser(t, 0)
	stats := p.ParseStats(parse(t, `<div class="stats">no numbers</div>`))
	assert.Nil(t, stats.WinRate)
	assert.Nil(t, stats.Rating)

	data, err := json.Marshal(stats)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(data))
}

func TestStatValue(t *testing.T) {
	s := "61.5%"
	tests := []struct {
		in   any
		want float64
		ok   bool
	}{
		{1.25, 1.25, true},
		{3, 3, true},
		{int64(7), 7, true},
		{"0.98", 0.98, true},
		{&s, 61.5, true},
		{"n/a", 0, false},
		{nil, 0, false},
		{(*string)(nil), 0, false},
		{[]int{1}, 0, false},
	}
	for _, tt := range tests {
		got, ok := StatValue(tt.in)
		assert.Equal(t, tt.ok, ok, "%v", tt.in)
		assert.InDelta(t, tt.want, got, 1e-9, "%v", tt.in)
	}
}

func TestTeamRecordJSONShape(t *testing.T) {
	p := newParser(t, 0)
	rec := p.ParseTeam(parse(t, `<h1>Team Liquid</h1>`), "https://www.vlr.gg/team/474/team-liquid", scrapedAt)

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	for _, key := range []string{"team_name", "team_id", "logo_url", "region", "roster", "recent_matches", "team_stats", "team_url", "scraped_at", "last_updated"} {
		assert.Contains(t, m, key)
	}
	assert.Nil(t, m["logo_url"])
	assert.Equal(t, []any{}, m["roster"])
}

func TestIDAndSlug(t *testing.T) {
	tests := []struct {
		url, kind, id, slug string
	}{
		{"https://www.vlr.gg/team/2593/fnatic", "team", "2593", "fnatic"},
		{"https://www.vlr.gg/team/2593/fnatic/?group=all", "team", "2593", "fnatic"},
		{"/player/9/zekken", "player", "9", "zekken"},
		{"https://www.vlr.gg/event/2097/valorant-champions-2024", "event", "2097", "valorant-champions-2024"},
		{"https://www.vlr.gg/team/sentinels", "team", "sentinels", "sentinels"},
		{"https://www.vlr.gg/", "team", "unknown", ""},
	}
	for _, tt := range tests {
		id, slug := idAndSlug(tt.url, tt.kind)
		assert.Equal(t, tt.id, id, tt.url)
		assert.Equal(t, tt.slug, slug, tt.url)
	}
}

func TestTitleFromSlug(t *testing.T) {
	assert.Equal(t, "Some Team", TitleFromSlug("some-team"))
	assert.Equal(t, "100 Thieves", TitleFromSlug("100-thieves"))
	assert.Equal(t, "Drx", TitleFromSlug("DRX"))
	assert.Empty(t, TitleFromSlug("42"))
	assert.Empty(t, TitleFromSlug(""))
}
