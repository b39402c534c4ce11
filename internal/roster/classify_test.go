package roster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		player     string
		context    string
		wantRole   Role
		wantStatus Status
	}{
		{"inactive beats co-occurring keywords", "Player (Inactive)", "coach analyst", RoleInactive, StatusInactive},
		{"no signal", "PlayerX", "", RoleActive, StatusActive},
		{"inactive in context only", "Boaster", "boaster inactive", RoleInactive, StatusInactive},
		{"sub abbreviation", "Chronicle", "chronicle sub", RoleSubstitute, StatusSubstitute},
		{"substitute word", "Leo", "Leo Substitute", RoleSubstitute, StatusSubstitute},
		{"coach", "Elmapuddy", "Elmapuddy head coach", RoleCoach, StatusActive},
		{"performance coach", "Kaplan", "Kaplan performance coach", RolePerformanceCoach, StatusActive},
		{"assistant coach", "Pipsen", "Pipsen Assistant Coach", RoleAssistantCoach, StatusActive},
		{"qualified title in name", "Assistant Coach", "", RoleAssistantCoach, StatusActive},
		{"manager", "Someone", "team manager", RoleManager, StatusActive},
		{"analyst", "Someone", "Analyst", RoleAnalyst, StatusActive},
		{"igl", "Derke", "derke igl", RoleIGL, StatusActive},
		{"word boundary", "Subroza", "subzero inactivity", RoleActive, StatusActive},
		{"earlier pattern wins", "Mako", "sub coach", RoleSubstitute, StatusSubstitute},
	}
	c := Default()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			role, status := c.Classify(tt.player, tt.context)
			assert.Equal(t, tt.wantRole, role)
			assert.Equal(t, tt.wantStatus, status)
		})
	}
}

func TestStatusConsistentWithRole(t *testing.T) {
	for _, p := range DefaultPatterns {
		status := StatusFor(p.Role)
		switch p.Role {
		case RoleInactive:
			assert.Equal(t, StatusInactive, status)
		case RoleSubstitute:
			assert.Equal(t, StatusSubstitute, status)
		default:
			assert.Equal(t, StatusActive, status, p.Role)
		}
	}
}

func TestCustomPatternsKeepInactivePrecedence(t *testing.T) {
	c, err := NewClassifier([]Pattern{
		{`\bcoach\b`, RoleCoach},
		{`\bstreamer\b`, Role("content creator")},
	})
	require.NoError(t, err)

	role, status := c.Classify("Tarik", "streamer")
	assert.Equal(t, Role("content creator"), role)
	assert.Equal(t, StatusActive, status)

	role, status = c.Classify("Sliggy", "coach inactive")
	assert.Equal(t, RoleInactive, role)
	assert.Equal(t, StatusInactive, status)
}

func TestNewClassifierRejectsBadPattern(t *testing.T) {
	_, err := NewClassifier([]Pattern{{`(unclosed`, RoleCoach}})
	assert.Error(t, err)
}
