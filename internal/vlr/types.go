// Package vlr turns parsed vlr.gg pages into team and tournament records.
package vlr

import (
	"time"

	"github.com/albapepper/vlr-scraper/internal/roster"
)

// Unknown is the stand-in for required text fields that could not be found.
const Unknown = "Unknown"

// Player is one roster entry on a team page.
type Player struct {
	Name       string        `json:"player_name"`
	ProfileURL string        `json:"player_url"`
	ID         string        `json:"player_id"`
	Role       roster.Role   `json:"role"`
	Status     roster.Status `json:"status"`
}

// MatchSummary is one entry of a team's recent match list.
type MatchSummary struct {
	Opponent   string  `json:"opponent"`
	Result     string  `json:"result"`
	Score      *string `json:"score"`
	Date       *string `json:"date"`
	Tournament *string `json:"tournament"`
	MatchURL   *string `json:"match_url"`
}

// TeamStats holds the summary numbers scraped off a team page.
type TeamStats struct {
	WinRate *string  `json:"win_rate,omitempty"`
	Rating  *float64 `json:"rating,omitempty"`
}

// TeamRecord is everything scraped from one team page.
type TeamRecord struct {
	TeamName      string         `json:"team_name"`
	TeamID        string         `json:"team_id"`
	LogoURL       *string        `json:"logo_url"`
	Region        *string        `json:"region"`
	Roster        []Player       `json:"roster"`
	RecentMatches []MatchSummary `json:"recent_matches"`
	TeamStats     TeamStats      `json:"team_stats"`
	TeamURL       string         `json:"team_url"`
	ScrapedAt     time.Time      `json:"scraped_at"`
	LastUpdated   *time.Time     `json:"last_updated"`
}

// TournamentRecord is everything scraped from one event page.
type TournamentRecord struct {
	TournamentName     string    `json:"tournament_name"`
	TournamentID       string    `json:"tournament_id"`
	StartDate          *string   `json:"start_date"`
	EndDate            *string   `json:"end_date"`
	Region             *string   `json:"region"`
	PrizePool          *string   `json:"prize_pool"`
	ParticipatingTeams []string  `json:"participating_teams"`
	TournamentURL      string    `json:"tournament_url"`
	ScrapedAt          time.Time `json:"scraped_at"`
}

func ptr[T any](v T) *T { return &v }

// optional returns nil for a miss.
func optional(v string, ok bool) *string {
	if !ok || v == "" {
		return nil
	}
	return &v
}
