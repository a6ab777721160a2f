package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/verdict/internal/core/domain"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefghij", 5))
	assert.Equal(t, "a", truncate("abc", 1))
}

func TestStatusText(t *testing.T) {
	assert.Equal(t, "true", statusText(domain.CheckState{Status: domain.StatusDone, Value: "true"}))
	assert.Equal(t, "Done", statusText(domain.CheckState{Status: domain.StatusDone, Value: strings.Repeat("x", 200)}))
	assert.Equal(t, "Not found", statusText(domain.CheckState{Status: domain.StatusNotFound}))
	assert.Equal(t, "Rate limited", statusText(domain.CheckState{Status: domain.StatusRateLimited}))
	assert.Equal(t, "Pending", statusText(domain.CheckState{Status: domain.StatusPending}))
}

func TestRenderItems(t *testing.T) {
	assert.Contains(t, renderItems(nil, nil), "No items.")

	items := []domain.WorkItem{{
		ID:    3,
		Input: "Water boils at 100C",
		Checks: map[string]domain.CheckState{
			domain.CheckExact: {Status: domain.StatusNotFound},
			domain.CheckFuzzy: {Status: domain.StatusError, Detail: "boom"},
		},
	}}
	out := renderItems([]string{domain.CheckExact, domain.CheckFuzzy}, items)
	assert.Contains(t, out, "EXACT")
	assert.Contains(t, out, "FUZZY")
	assert.Contains(t, out, "Water boils at 100C")
	assert.Contains(t, out, "Not found")
	assert.Contains(t, out, "Error")

	details := renderDetails([]string{domain.CheckExact, domain.CheckFuzzy}, items[0])
	assert.Contains(t, details, "fuzzy: boom")
	assert.NotContains(t, details, "exact:")
}

func TestStatusText_ShowsCountdown(t *testing.T) {
	st := domain.CheckState{Status: domain.StatusRateLimited, Progress: "Retrying in 3s..."}
	assert.Equal(t, "Retrying in 3s...", statusText(st))

	st = domain.CheckState{Status: domain.StatusDone, Value: "false", Progress: "stale"}
	assert.Equal(t, "false", statusText(st))
}

func TestProgressLines_ReportsChangesOnly(t *testing.T) {
	checks := []string{domain.CheckExact, domain.CheckFuzzy}
	item := func(progress string) []domain.WorkItem {
		return []domain.WorkItem{{
			ID: 7,
			Checks: map[string]domain.CheckState{
				domain.CheckExact: {Status: domain.StatusNotFound},
				domain.CheckFuzzy: {Status: domain.StatusRateLimited, Progress: progress},
			},
		}}
	}
	seen := map[string]string{}

	lines := progressLines(checks, item("Retrying in 4.8s..."), seen)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "#7 fuzzy:")
	assert.Contains(t, lines[0], "Retrying in 4.8s...")

	assert.Empty(t, progressLines(checks, item("Retrying in 4.8s..."), seen))

	lines = progressLines(checks, item("Retrying in 4.6s..."), seen)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "Retrying in 4.6s...")
}
