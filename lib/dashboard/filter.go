// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dashboard

import (
	"strings"
	"sync"
	"unicode"

	"github.com/charmbracelet/lipgloss"
	"github.com/junegunn/fzf/src/algo"
	"github.com/junegunn/fzf/src/util"

	"github.com/bureau-foundation/gparallel/lib/job"
)

var initScoring sync.Once

// fuzzyScore runs fzf's V2 matcher of pattern against text, case
// insensitively. Returns the score and whether every pattern rune was
// found in order. An empty pattern matches with score 0.
func fuzzyScore(text string, pattern []rune, slab *util.Slab) (int, bool) {
	if len(pattern) == 0 {
		return 0, true
	}
	initScoring.Do(func() { algo.Init("default") })

	lowered := make([]rune, len(pattern))
	for index, character := range pattern {
		lowered[index] = unicode.ToLower(character)
	}
	chars := util.ToChars([]byte(text))
	result, _ := algo.FuzzyMatchV2(false, true, true, &chars, lowered, false, slab)
	if result.Start < 0 {
		return 0, false
	}
	return result.Score, true
}

// FilterModel narrows the job list to jobs whose command (or short id)
// fuzzy-matches the query. The list keeps submission order; the filter
// only hides rows.
type FilterModel struct {
	// Input is the current query.
	Input string

	// Active is true while the query has keyboard focus.
	Active bool

	slab *util.Slab
}

// Apply returns the jobs matching the query. An empty query returns
// jobs unchanged.
func (filter *FilterModel) Apply(jobs []job.Info) []job.Info {
	if filter.Input == "" {
		return jobs
	}
	if filter.slab == nil {
		filter.slab = util.MakeSlab(100*1024, 2048)
	}
	pattern := []rune(strings.TrimSpace(filter.Input))
	var matched []job.Info
	for _, info := range jobs {
		if _, ok := fuzzyScore(info.ShortID()+" "+info.Command, pattern, filter.slab); ok {
			matched = append(matched, info)
		}
	}
	return matched
}

// HandleRune appends a typed character to the query.
func (filter *FilterModel) HandleRune(character rune) {
	filter.Input += string(character)
}

// HandleBackspace removes the last character. Returns false when the
// query was already empty.
func (filter *FilterModel) HandleBackspace() bool {
	if filter.Input == "" {
		return false
	}
	runes := []rune(filter.Input)
	filter.Input = string(runes[:len(runes)-1])
	return true
}

// Clear resets the query and releases focus.
func (filter *FilterModel) Clear() {
	filter.Input = ""
	filter.Active = false
}

// View renders the filter bar: the query with a cursor while active,
// a dim reminder while a kept query narrows the list, and "" when no
// filter applies.
func (filter *FilterModel) View(theme Theme, width int) string {
	if !filter.Active && filter.Input == "" {
		return ""
	}
	if filter.Active {
		cursor := lipgloss.NewStyle().
			Foreground(theme.HeaderForeground).
			Bold(true).
			Render("▎")
		return lipgloss.NewStyle().
			Foreground(theme.NormalText).
			Width(width).
			Render(" / " + filter.Input + cursor)
	}
	return lipgloss.NewStyle().
		Foreground(theme.FaintText).
		Width(width).
		Render(" filter: " + filter.Input + "  (esc to clear)")
}
