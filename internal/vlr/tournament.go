package vlr

import (
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/albapepper/vlr-scraper/internal/extract"
)

// DateSeparator splits an event header date range.
const DateSeparator = "–"

// DefaultEventKeywords pick out VCT events on the event index.
var DefaultEventKeywords = []string{"vct", "valorant champions tour", "masters", "champions"}

// ParseTournament builds a TournamentRecord from an event page.
func (p *Parser) ParseTournament(doc *goquery.Document, tournamentURL string, now time.Time) TournamentRecord {
	id, _ := idAndSlug(tournamentURL, "event")

	name, ok := p.ex.Extract(doc.Selection, extract.KeyEventName, "")
	if !ok {
		name = Unknown
	}

	rec := TournamentRecord{
		TournamentName:     name,
		TournamentID:       id,
		Region:             optional(p.ex.Extract(doc.Selection, extract.KeyEventRegion, "")),
		PrizePool:          optional(p.ex.Extract(doc.Selection, extract.KeyEventPrize, "")),
		ParticipatingTeams: []string{},
		TournamentURL:      tournamentURL,
		ScrapedAt:          now,
	}
	if dates, ok := p.ex.Extract(doc.Selection, extract.KeyEventDate, ""); ok {
		rec.StartDate, rec.EndDate = SplitDateRange(dates)
	}

	seen := make(map[string]bool)
	teams, _ := p.ex.ExtractAll(doc.Selection, extract.KeyEventTeams)
	teams.Each(func(_ int, a *goquery.Selection) {
		team := extract.Clean(a.Text())
		if team == "" || seen[team] {
			return
		}
		seen[team] = true
		rec.ParticipatingTeams = append(rec.ParticipatingTeams, team)
	})

	p.logger.Info("Processing tournament", "tournament", name, "teams", len(rec.ParticipatingTeams), "url", tournamentURL)
	return rec
}

// SplitDateRange splits "Mar 1 – Mar 15" into its ends. Without a separator
// the whole text is the start date and end is nil.
func SplitDateRange(text string) (start, end *string) {
	before, after, found := strings.Cut(text, DateSeparator)
	start = optional(strings.TrimSpace(before), true)
	if found {
		end = optional(strings.TrimSpace(after), true)
	}
	return start, end
}

// ----------------------------------------------------------------------------
// Event index
// ----------------------------------------------------------------------------

// EventIndexURL returns the n-th page (1-based) of the event listing.
func EventIndexURL(baseURL string, page int) string {
	return fmt.Sprintf("%s/events?page=%d", strings.TrimRight(baseURL, "/"), page)
}

// ParseEventIndex returns absolute URLs of event links whose text contains
// any keyword, de-duplicated in first-seen order. Nil keywords use
// DefaultEventKeywords.
func (p *Parser) ParseEventIndex(doc *goquery.Document, keywords []string) []string {
	if keywords == nil {
		keywords = DefaultEventKeywords
	}
	var urls []string
	seen := make(map[string]bool)

	links, _ := p.ex.ExtractAll(doc.Selection, extract.KeyEventIndex)
	links.Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		text := strings.ToLower(extract.Clean(a.Text()))
		if !containsAny(text, keywords) {
			return
		}
		u := p.ex.Resolve(href)
		if seen[u] {
			return
		}
		seen[u] = true
		urls = append(urls, u)
	})
	return urls
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
