package vlr

import (
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/albapepper/vlr-scraper/internal/extract"
	"github.com/albapepper/vlr-scraper/internal/roster"
)

// DefaultMatchLimit caps the recent matches kept per team.
const DefaultMatchLimit = 15

var (
	winRateRe = regexp.MustCompile(`(\d+(?:\.\d+)?)%`)
	ratingRe  = regexp.MustCompile(`rating\D*?(\d+(?:\.\d+)?)`)
)

// Parser extracts records from vlr.gg documents.
type Parser struct {
	ex         *extract.Extractor
	classifier *roster.Classifier
	matchLimit int
	logger     *slog.Logger
}

// NewParser creates a Parser. A nil classifier uses the default role table.
func NewParser(ex *extract.Extractor, classifier *roster.Classifier, matchLimit int, logger *slog.Logger) *Parser {
	if classifier == nil {
		classifier = roster.Default()
	}
	if matchLimit <= 0 {
		matchLimit = DefaultMatchLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{ex: ex, classifier: classifier, matchLimit: matchLimit, logger: logger}
}

// ----------------------------------------------------------------------------
// Teams
// ----------------------------------------------------------------------------

// ParseTeam builds a TeamRecord. Fields that cannot be found are left nil or
// empty; the name always resolves to something.
func (p *Parser) ParseTeam(doc *goquery.Document, teamURL string, now time.Time) TeamRecord {
	id, slug := idAndSlug(teamURL, "team")

	name, ok := p.ex.Extract(doc.Selection, extract.KeyTeamName, "")
	if !ok {
		name = TitleFromSlug(slug)
	}
	if name == "" {
		name = "team_" + now.Format("20060102_150405")
	}
	p.logger.Info("Processing team", "team", name, "url", teamURL)

	rec := TeamRecord{
		TeamName:      name,
		TeamID:        id,
		LogoURL:       optional(p.ex.Extract(doc.Selection, extract.KeyTeamLogo, "src")),
		Region:        optional(p.ex.Extract(doc.Selection, extract.KeyTeamRegion, "")),
		Roster:        p.ParseRoster(doc),
		RecentMatches: p.ParseMatches(doc),
		TeamStats:     p.ParseStats(doc),
		TeamURL:       teamURL,
		ScrapedAt:     now,
	}
	return rec
}

// ParseRoster classifies every player link found by the first roster
// selector that matches.
func (p *Parser) ParseRoster(doc *goquery.Document) []Player {
	links, selector := p.ex.ExtractAll(doc.Selection, extract.KeyRosterPlayers)
	p.logger.Debug("Found player links", "count", links.Length(), "selector", selector)

	players := make([]Player, 0, links.Length())
	links.Each(func(_ int, link *goquery.Selection) {
		name := extract.Clean(link.Text())
		if utf8.RuneCountInString(name) < 2 {
			return
		}
		href, _ := link.Attr("href")
		id, _ := idAndSlug(href, "player")

		container, ok := p.ex.Closest(link, extract.KeyRosterItem)
		if !ok {
			container = link.Parent()
		}
		role, status := p.classifier.Classify(name, extract.StrippedText(container))

		players = append(players, Player{
			Name:       name,
			ProfileURL: p.ex.Resolve(href),
			ID:         id,
			Role:       role,
			Status:     status,
		})
	})
	return players
}

// ParseMatches reads up to the match limit from the first match-container
// selector with any hits. Containers with neither opponent nor result are
// dropped.
func (p *Parser) ParseMatches(doc *goquery.Document) []MatchSummary {
	elems, selector := p.ex.ExtractAll(doc.Selection, extract.KeyMatchElements)
	p.logger.Debug("Found match elements", "count", elems.Length(), "selector", selector)

	matches := make([]MatchSummary, 0, min(elems.Length(), p.matchLimit))
	elems.EachWithBreak(func(i int, el *goquery.Selection) bool {
		if i >= p.matchLimit {
			return false
		}
		if m, ok := p.parseMatch(el); ok {
			matches = append(matches, m)
		}
		return true
	})
	return matches
}

func (p *Parser) parseMatch(el *goquery.Selection) (MatchSummary, bool) {
	opponent, hasOpponent := p.ex.Extract(el, extract.KeyOpponent, "")
	result, hasResult := p.ex.Extract(el, extract.KeyScore, "")
	if !hasOpponent && !hasResult {
		return MatchSummary{}, false
	}

	m := MatchSummary{
		Opponent:   Unknown,
		Result:     Unknown,
		Date:       optional(p.ex.ExtractWith(el, extract.KeyMatchDate, matchDate)),
		Tournament: optional(p.ex.Extract(el, extract.KeyMatchEvent, "")),
		MatchURL:   optional(p.ex.Extract(el, extract.KeyMatchLink, "")),
	}
	if hasOpponent {
		m.Opponent = opponent
	}
	if hasResult {
		m.Result = result
		if strings.ContainsAny(result, ":-") {
			m.Score = ptr(result)
		}
	}
	return m, true
}

// matchDate prefers the machine-readable timestamp attributes over the
// displayed text.
func matchDate(el *goquery.Selection) string {
	if v, ok := firstAttr(el, "data-time-to-show", "title"); ok {
		return v
	}
	return el.Text()
}

// ParseStats scans every stat-like element. Later matches overwrite earlier
// ones.
func (p *Parser) ParseStats(doc *goquery.Document) TeamStats {
	var stats TeamStats
	p.ex.EachMatch(doc.Selection, extract.KeyStatElements, func(el *goquery.Selection) {
		text := strings.ToLower(extract.Clean(el.Text()))

		if strings.Contains(text, "win") && strings.Contains(text, "%") {
			if m := winRateRe.FindStringSubmatch(text); m != nil {
				stats.WinRate = ptr(m[1] + "%")
			}
		}
		if m := ratingRe.FindStringSubmatch(text); m != nil {
			if v, ok := StatValue(m[1]); ok {
				stats.Rating = ptr(v)
			}
		}
	})
	return stats
}

// StatValue normalizes a scraped stat into a float. It accepts numbers and
// numeric strings, including percentages like "61.5%".
func StatValue(val any) (float64, bool) {
	switch v := val.(type) {
	case nil:
		return 0, false
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case *string:
		if v == nil {
			return 0, false
		}
		return StatValue(*v)
	case string:
		v = strings.TrimSuffix(strings.TrimSpace(v), "%")
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f, true
		}
		return 0, false
	default:
		return 0, false
	}
}

// ----------------------------------------------------------------------------
// URL helpers
// ----------------------------------------------------------------------------

// idAndSlug pulls the numeric id and trailing slug out of paths shaped like
// /<kind>/<id>/<slug>. Without a numeric id the last segment is the id.
func idAndSlug(rawURL, kind string) (id, slug string) {
	segs := pathSegments(rawURL)
	for i, s := range segs {
		if s == kind && i+1 < len(segs) && isDigits(segs[i+1]) {
			id = segs[i+1]
			if i+2 < len(segs) {
				slug = segs[i+2]
			}
			return id, slug
		}
	}
	if len(segs) == 0 {
		return "unknown", ""
	}
	last := segs[len(segs)-1]
	return last, last
}

func pathSegments(rawURL string) []string {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		path = u.Path
	}
	var segs []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

// TitleFromSlug turns "some-team" into "Some Team". Purely numeric slugs
// yield "".
func TitleFromSlug(slug string) string {
	if slug == "" || isDigits(slug) {
		return ""
	}
	return cases.Title(language.Und).String(strings.ReplaceAll(slug, "-", " "))
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func firstAttr(sel *goquery.Selection, names ...string) (string, bool) {
	for _, n := range names {
		if v, ok := sel.Attr(n); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}
