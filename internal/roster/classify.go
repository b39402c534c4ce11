// Package roster infers a roster entry's role and status from its display
// name and the text surrounding it on the team page.
package roster

import (
	"fmt"
	"regexp"
	"strings"
)

// Role is a roster role label.
type Role string

const (
	RoleActive           Role = "active player"
	RoleInactive         Role = "inactive"
	RoleSubstitute       Role = "substitute"
	RoleCoach            Role = "coach"
	RoleAssistantCoach   Role = "assistant coach"
	RolePerformanceCoach Role = "performance coach"
	RoleManager          Role = "manager"
	RoleAnalyst          Role = "analyst"
	RoleIGL              Role = "igl"
)

// Status is the coarse availability derived from a Role.
type Status string

const (
	StatusActive     Status = "active"
	StatusInactive   Status = "inactive"
	StatusSubstitute Status = "substitute"
)

// StatusFor derives the status implied by role.
func StatusFor(role Role) Status {
	switch role {
	case RoleInactive:
		return StatusInactive
	case RoleSubstitute:
		return StatusSubstitute
	default:
		return StatusActive
	}
}

// Pattern maps a word-boundary expression to the role it signals.
type Pattern struct {
	Expr string
	Role Role
}

// DefaultPatterns is evaluated in order; the first hit on either the name or
// the context wins. Qualified coach titles precede the bare word.
var DefaultPatterns = []Pattern{
	{`\binactive\b`, RoleInactive},
	{`\bsub\b|\bsubstitute\b`, RoleSubstitute},
	{`\bassistant coach\b`, RoleAssistantCoach},
	{`\bperformance coach\b`, RolePerformanceCoach},
	{`\bcoach\b`, RoleCoach},
	{`\bmanager\b`, RoleManager},
	{`\banalyst\b`, RoleAnalyst},
	{`\bigl\b`, RoleIGL},
}

var inactiveRe = regexp.MustCompile(`\binactive\b`)

type compiled struct {
	re   *regexp.Regexp
	role Role
}

// Classifier holds a compiled pattern table. It is safe for concurrent use.
type Classifier struct {
	patterns []compiled
}

// NewClassifier compiles patterns. Passing nil uses DefaultPatterns.
func NewClassifier(patterns []Pattern) (*Classifier, error) {
	if patterns == nil {
		patterns = DefaultPatterns
	}
	c := &Classifier{patterns: make([]compiled, 0, len(patterns))}
	for _, p := range patterns {
		re, err := regexp.Compile(p.Expr)
		if err != nil {
			return nil, fmt.Errorf("compile role pattern %q: %w", p.Expr, err)
		}
		c.patterns = append(c.patterns, compiled{re: re, role: p.Role})
	}
	return c, nil
}

// Default returns a Classifier over DefaultPatterns.
func Default() *Classifier {
	c, err := NewClassifier(nil)
	if err != nil {
		panic(err)
	}
	return c
}

// Classify returns the role and status for a roster entry. Inactive always
// wins over any other keyword present, even with a custom pattern table.
func (c *Classifier) Classify(name, context string) (Role, Status) {
	name = strings.ToLower(name)
	context = strings.ToLower(context)

	if inactiveRe.MatchString(name) || inactiveRe.MatchString(context) {
		return RoleInactive, StatusInactive
	}
	for _, p := range c.patterns {
		if p.re.MatchString(name) || p.re.MatchString(context) {
			return p.role, StatusFor(p.role)
		}
	}
	return RoleActive, StatusActive
}
