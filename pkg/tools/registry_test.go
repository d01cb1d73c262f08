package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestRegistry_ExactlyOneCategory verifies every registered tool belongs to
// exactly one category membership predicate.
func TestRegistry_ExactlyOneCategory(t *testing.T) {
	predicates := map[Category]func(string) bool{
		CategoryReadOnly:   IsReadOnly,
		CategorySafeUI:     IsSafeUI,
		CategoryControlled: IsControlled,
		CategoryWrite:      IsWrite,
		CategoryShell:      IsShell,
		CategorySubagent:   IsSubagent,
	}

	for _, name := range Registered() {
		matches := 0
		for _, pred := range predicates {
			if pred(name) {
				matches++
			}
		}
		assert.Equal(t, 1, matches, "tool %s must belong to exactly one category", name)
	}
}

func TestRegistry_CategoryOf(t *testing.T) {
	cat, ok := CategoryOf(ToolBash)
	assert.True(t, ok)
	assert.Equal(t, CategoryShell, cat)

	_, ok = CategoryOf("TotallyMadeUp")
	assert.False(t, ok)
}

func TestRegistry_RiskLevels(t *testing.T) {
	tests := []struct {
		tool string
		want RiskLevel
	}{
		{ToolRead, RiskNone},
		{ToolShowNotice, RiskNone},
		{ToolWebFetch, RiskLow},
		{ToolWrite, RiskMedium},
		{ToolRunCommand, RiskMedium},
		{ToolBash, RiskHigh},
		{ToolTask, RiskLow},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, RiskLevelOf(tt.tool), "risk for %s", tt.tool)
	}
}

// TestRegistry_UnknownToolRiskIsMedium verifies unknown tools are never
// graded none or low.
func TestRegistry_UnknownToolRiskIsMedium(t *testing.T) {
	assert.Equal(t, RiskMedium, RiskLevelOf("UnknownTool"))
	assert.Equal(t, RiskMedium, RiskLevelOf(""))
}

func TestRegistry_CreatesFiles(t *testing.T) {
	assert.True(t, CreatesFiles(ToolWrite))
	assert.True(t, CreatesFiles(ToolCreateNote))
	assert.False(t, CreatesFiles(ToolEdit))
	assert.False(t, CreatesFiles(ToolBash))
}
