// Package extract evaluates ordered CSS selector chains against parsed pages.
//
// Every lookup is best-effort: a field that no selector yields comes back as
// ("", false), never as an error.
package extract

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var placeholders = map[string]bool{
	"":        true,
	"unknown": true,
	"n/a":     true,
}

// Extractor resolves field keys through a selector Table.
type Extractor struct {
	table  Table
	base   *url.URL
	logger *slog.Logger
}

// New creates an Extractor. baseURL is used to absolutize href/src values.
func New(table Table, baseURL string, logger *slog.Logger) (*Extractor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	base, err := url.Parse(baseURL)
	if err != nil || !base.IsAbs() {
		return nil, fmt.Errorf("parse base url %q: not an absolute url", baseURL)
	}
	return &Extractor{table: table, base: base, logger: logger}, nil
}

// Table returns the selector table in use.
func (e *Extractor) Table() Table { return e.table }

// Extract returns the first acceptable value along the chain for key.
// A non-empty attr forces attribute mode for every rule in the chain.
// Each rule is tried against sel itself before its descendants.
func (e *Extractor) Extract(sel *goquery.Selection, key, attr string) (string, bool) {
	chain, ok := e.chain(key)
	if !ok {
		return "", false
	}
	for _, r := range chain {
		el := match(sel, r.Selector)
		if el.Length() == 0 {
			continue
		}

		name := attr
		if name == "" {
			name = r.Attr
		}
		if name != "" {
			v, ok := el.Attr(name)
			v = strings.TrimSpace(v)
			if !ok || v == "" {
				continue
			}
			if name == "href" || name == "src" {
				v = e.Resolve(v)
			}
			return v, true
		}

		text := Clean(el.Text())
		if rejected(text, r.Reject) {
			continue
		}
		return text, true
	}
	return "", false
}

// Reader pulls a raw value out of a matched element.
type Reader func(el *goquery.Selection) string

// ExtractWith walks the chain like Extract but reads each match with read.
// The value is cleaned and rejected on the same terms as text.
func (e *Extractor) ExtractWith(sel *goquery.Selection, key string, read Reader) (string, bool) {
	chain, ok := e.chain(key)
	if !ok {
		return "", false
	}
	for _, r := range chain {
		el := match(sel, r.Selector)
		if el.Length() == 0 {
			continue
		}
		v := Clean(read(el))
		if rejected(v, r.Reject) {
			continue
		}
		return v, true
	}
	return "", false
}

// match returns sel itself when it matches selector, else its first
// matching descendant.
func match(sel *goquery.Selection, selector string) *goquery.Selection {
	if self := sel.Filter(selector); self.Length() > 0 {
		return self.First()
	}
	return sel.Find(selector).First()
}

// ExtractAll returns every match of the first selector in the chain that
// matches anything, along with that selector. Results are never merged
// across selectors.
func (e *Extractor) ExtractAll(sel *goquery.Selection, key string) (*goquery.Selection, string) {
	chain, ok := e.chain(key)
	if !ok {
		return sel.Slice(0, 0), ""
	}
	for _, r := range chain {
		if found := sel.Find(r.Selector); found.Length() > 0 {
			return found, r.Selector
		}
	}
	return sel.Slice(0, 0), ""
}

// EachMatch calls fn for every element matched by every selector in the
// chain, in chain order.
func (e *Extractor) EachMatch(sel *goquery.Selection, key string, fn func(*goquery.Selection)) {
	chain, ok := e.chain(key)
	if !ok {
		return
	}
	for _, r := range chain {
		sel.Find(r.Selector).Each(func(_ int, el *goquery.Selection) {
			fn(el)
		})
	}
}

// Closest returns the nearest ancestor-or-self of sel matching any selector
// in the chain for key.
func (e *Extractor) Closest(sel *goquery.Selection, key string) (*goquery.Selection, bool) {
	chain, ok := e.chain(key)
	if !ok {
		return nil, false
	}
	for _, r := range chain {
		if c := sel.Closest(r.Selector); c.Length() > 0 {
			return c, true
		}
	}
	return nil, false
}

// Resolve absolutizes ref against the base URL.
func (e *Extractor) Resolve(ref string) string {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	return e.base.ResolveReference(u).String()
}

func (e *Extractor) chain(key string) ([]Rule, bool) {
	chain, ok := e.table[key]
	if !ok || len(chain) == 0 {
		e.logger.Debug("Unknown selector key", "key", key)
		return nil, false
	}
	return chain, true
}

// Clean trims text and collapses internal whitespace runs to one space.
func Clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// StrippedText joins every non-blank text node under sel with single spaces,
// so adjacent elements never run together.
func StrippedText(sel *goquery.Selection) string {
	var parts []string
	var walk func(*goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, c *goquery.Selection) {
			if goquery.NodeName(c) == "#text" {
				if t := strings.TrimSpace(c.Text()); t != "" {
					parts = append(parts, t)
				}
				return
			}
			walk(c)
		})
	}
	walk(sel)
	return Clean(strings.Join(parts, " "))
}

// IsPlaceholder reports whether text is empty or a stand-in like "N/A".
func IsPlaceholder(text string) bool {
	return placeholders[strings.ToLower(text)]
}

func rejected(text string, extra []string) bool {
	if IsPlaceholder(text) {
		return true
	}
	for _, r := range extra {
		if strings.EqualFold(text, r) {
			return true
		}
	}
	return false
}
