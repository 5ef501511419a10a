// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dashboard

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/bureau-foundation/gparallel/lib/job"
)

// tickInterval is the refresh period.
const tickInterval = 100 * time.Millisecond

const helpText = "↑/↓ Navigate jobs  / Filter  q Quit (jobs continue)  " +
	"Ctrl+C Force quit & stop all jobs  Auto-exit when all jobs complete"

// Fixed rows: header (or filter bar), three panel titles, status line.
const chromeRows = 5

// Default terminal size until the first WindowSizeMsg.
const (
	defaultWidth  = 80
	defaultHeight = 24
)

// jobLabelWidth fits "RUN G" plus a three-digit device id.
const jobLabelWidth = 8

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(at time.Time) tea.Msg {
		return tickMsg(at)
	})
}

// Model is the bubbletea model of the dashboard.
type Model struct {
	source    Source
	theme     Theme
	keys      KeyMap
	onForce   func()
	width     int
	height    int
	ready     bool
	frame     Frame
	visible   []job.Info
	selected  uuid.UUID
	offset    int
	filter    FilterModel
	titleJob  uuid.UUID
	titleText string

	notice           string
	noticeLevel      slog.Level
	noticeGeneration int

	detached  bool
	forceQuit bool
	finished  bool
}

// New creates a dashboard reading from source. onForceQuit runs when
// the user presses Ctrl+C, before the program exits; it runs outside
// the event loop and may log.
func New(source Source, onForceQuit func()) Model {
	model := Model{
		source:  source,
		theme:   DefaultTheme,
		keys:    DefaultKeyMap,
		onForce: onForceQuit,
		width:   defaultWidth,
		height:  defaultHeight,
	}
	model.refresh()
	return model
}

// Detached reports whether the user left with q.
func (model Model) Detached() bool { return model.detached }

// ForceQuit reports whether the user left with Ctrl+C.
func (model Model) ForceQuit() bool { return model.forceQuit }

// Finished reports whether the dashboard exited because every job
// reached a terminal state.
func (model Model) Finished() bool { return model.finished }

// Selected returns the selected job, uuid.Nil when there is none.
func (model Model) Selected() uuid.UUID { return model.selected }

func (model Model) Init() tea.Cmd {
	return tick()
}

func (model Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch message := msg.(type) {
	case tickMsg:
		model.refresh()
		if model.frame.Counts.Finished() {
			model.finished = true
			return model, tea.Quit
		}
		return model, tick()

	case tea.WindowSizeMsg:
		model.width = message.Width
		model.height = message.Height
		model.ready = true
		model.refresh()

	case logRecordMsg:
		model.noticeGeneration++
		model.notice = message.Summary
		model.noticeLevel = message.Level
		generation := model.noticeGeneration
		return model, tea.Tick(logRecordFadeDelay, func(time.Time) tea.Msg {
			return logRecordFadeMsg{generation: generation}
		})

	case logRecordFadeMsg:
		if message.generation == model.noticeGeneration {
			model.notice = ""
		}

	case tea.KeyMsg:
		return model.handleKey(message)
	}
	return model, nil
}

func (model Model) handleKey(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Ctrl+C wins in every mode, including while typing a filter.
	if key.Matches(message, model.keys.ForceQuit) {
		model.forceQuit = true
		if model.onForce == nil {
			return model, tea.Quit
		}
		onForce := model.onForce
		return model, func() tea.Msg {
			onForce()
			return tea.QuitMsg{}
		}
	}

	if model.filter.Active {
		model.handleFilterKey(message)
		return model, nil
	}

	jobRows, _ := model.layout()
	switch {
	case key.Matches(message, model.keys.Detach):
		model.detached = true
		return model, tea.Quit
	case key.Matches(message, model.keys.Up):
		model.move(-1)
	case key.Matches(message, model.keys.Down):
		model.move(1)
	case key.Matches(message, model.keys.PageUp):
		model.move(-jobRows)
	case key.Matches(message, model.keys.PageDown):
		model.move(jobRows)
	case key.Matches(message, model.keys.Home):
		model.moveTo(0)
	case key.Matches(message, model.keys.End):
		model.moveTo(len(model.visible) - 1)
	case key.Matches(message, model.keys.FilterActivate):
		model.filter.Active = true
	case key.Matches(message, model.keys.FilterClear):
		if model.filter.Input != "" {
			model.filter.Clear()
			model.refresh()
		}
	}
	return model, nil
}

// handleFilterKey edits the query. Enter keeps the query and returns
// to navigation, Esc clears it. Arrow keys still move the selection.
func (model *Model) handleFilterKey(message tea.KeyMsg) {
	switch message.Type {
	case tea.KeyEsc:
		model.filter.Clear()
	case tea.KeyEnter:
		model.filter.Active = false
		return
	case tea.KeyBackspace:
		if !model.filter.HandleBackspace() {
			return
		}
	case tea.KeySpace:
		model.filter.HandleRune(' ')
	case tea.KeyRunes:
		for _, character := range message.Runes {
			model.filter.HandleRune(character)
		}
	case tea.KeyUp:
		model.move(-1)
		return
	case tea.KeyDown:
		model.move(1)
		return
	default:
		return
	}
	model.offset = 0
	model.refresh()
}

func (model *Model) move(delta int) {
	model.moveTo(model.cursor() + delta)
}

func (model *Model) moveTo(index int) {
	if len(model.visible) == 0 {
		return
	}
	index = max(0, min(index, len(model.visible)-1))
	model.selected = model.visible[index].ID
	model.refresh()
}

// cursor returns the index of the selected job in the visible list,
// or -1.
func (model Model) cursor() int {
	for index, info := range model.visible {
		if info.ID == model.selected {
			return index
		}
	}
	return -1
}

// refresh pulls a new frame, applies the filter, and keeps the
// selection on a visible job. A selection hidden by the filter moves
// to the first visible job.
func (model *Model) refresh() {
	_, logRows := model.layout()
	model.frame = model.source.Frame(model.selected, logRows)
	model.visible = model.filter.Apply(model.frame.Jobs)

	if model.cursor() < 0 {
		model.selected = uuid.Nil
		if len(model.visible) > 0 {
			model.selected = model.visible[0].ID
		}
		if model.selected != uuid.Nil && model.selected != model.frame.Focus {
			model.frame = model.source.Frame(model.selected, logRows)
			model.visible = model.filter.Apply(model.frame.Jobs)
		}
	}

	jobRows, _ := model.layout()
	if index := model.cursor(); index >= 0 {
		if index < model.offset {
			model.offset = index
		}
		if index >= model.offset+jobRows {
			model.offset = index - jobRows + 1
		}
	}
	model.offset = max(0, min(model.offset, len(model.visible)-jobRows))

	if model.frame.Focus != model.titleJob {
		model.titleJob = model.frame.Focus
		model.titleText = ""
		if focus, ok := model.focusJob(); ok {
			model.titleText = highlightCommand(focus.Command)
		}
	}
}

func (model Model) focusJob() (job.Info, bool) {
	for _, info := range model.frame.Jobs {
		if info.ID == model.frame.Focus {
			return info, true
		}
	}
	return job.Info{}, false
}

// layout splits the rows left after chrome and the device list between
// the job list and the log tail. The job list takes what it needs up
// to half.
func (model Model) layout() (jobRows, logRows int) {
	available := max(model.height-chromeRows-len(model.frame.Devices), 2)
	jobRows = min(max(len(model.visible), 1), max(available/2, 1))
	logRows = max(available-jobRows, 1)
	return jobRows, logRows
}

func (model Model) View() string {
	if !model.ready {
		return "Loading..."
	}
	jobRows, logRows := model.layout()

	var sections []string
	if bar := model.filter.View(model.theme, model.width); bar != "" {
		sections = append(sections, bar)
	} else {
		sections = append(sections, model.renderHeader())
	}
	sections = append(sections,
		model.renderTitle("Devices"),
		model.renderDevices(),
		model.renderTitle("Jobs"),
		model.renderJobs(jobRows),
		model.renderTitle(model.logTitle()),
		model.renderLog(logRows),
		model.renderStatus(),
	)
	return strings.Join(sections, "\n")
}

func (model Model) renderHeader() string {
	theme := model.theme
	counts := model.frame.Counts
	count := func(n int, label string, state job.State) string {
		return lipgloss.NewStyle().Foreground(theme.StateColor(state)).
			Render(fmt.Sprintf("%d %s", n, label))
	}
	parts := []string{
		lipgloss.NewStyle().Foreground(theme.HeaderForeground).Bold(true).Render("gparallel"),
		count(counts.Queued, "queued", job.Queued),
		count(counts.Running, "running", job.Running),
		count(counts.Done, "done", job.Done),
		count(counts.Failed, "failed", job.Failed),
		count(counts.Cancelled, "cancelled", job.Cancelled),
		lipgloss.NewStyle().Foreground(theme.FaintText).
			Render("elapsed " + model.frame.Elapsed.Round(time.Second).String()),
	}
	if model.frame.ShuttingDown {
		parts = append(parts, lipgloss.NewStyle().Foreground(theme.StateFailed).Bold(true).
			Render("shutting down"))
	}
	return ansi.Truncate(" "+strings.Join(parts, "  "), model.width, "…")
}

// renderTitle draws a rule with an embedded title. title may contain
// escape sequences.
func (model Model) renderTitle(title string) string {
	border := lipgloss.NewStyle().Foreground(model.theme.BorderColor)
	title = ansi.Truncate(title, max(model.width-5, 0), "…")
	fill := max(model.width-ansi.StringWidth(title)-4, 0)
	return border.Render("── ") + title + " " + border.Render(strings.Repeat("─", fill))
}

func (model Model) renderDevices() string {
	theme := model.theme
	faint := lipgloss.NewStyle().Foreground(theme.FaintText)
	lines := make([]string, 0, len(model.frame.Devices))
	for _, row := range model.frame.Devices {
		marker := faint.Render("○")
		holder := ""
		if row.Busy {
			marker = lipgloss.NewStyle().Foreground(theme.StateRunning).Render("●")
			holder = faint.Render("  job " + job.ShortID(row.Job))
		}

		memory := faint.Render("—")
		if row.HasTelemetry() {
			reading := row.Memory()
			percent := reading.UsedPercent()
			memory = lipgloss.NewStyle().Foreground(theme.UsageColor(percent)).
				Render(fmt.Sprintf("%s free / %s  %3.0f%% used",
					humanize.IBytes(reading.Free), humanize.IBytes(reading.Total), percent))
		}

		name := ansi.Truncate(row.Name, 28, "…")
		line := fmt.Sprintf(" %s %-5s %-28s %s%s", marker, fmt.Sprintf("G%d", row.ID), name, memory, holder)
		lines = append(lines, ansi.Truncate(line, model.width, "…"))
	}
	return strings.Join(lines, "\n")
}

func stateLabel(info job.Info) string {
	switch info.State {
	case job.Queued:
		return "QUEUE"
	case job.Running:
		return fmt.Sprintf("RUN G%d", info.Device)
	case job.Done:
		return "DONE"
	case job.Failed:
		return "FAIL"
	case job.Cancelled:
		return "CANCEL"
	default:
		return "?"
	}
}

func (model Model) renderJobs(rows int) string {
	theme := model.theme
	total := len(model.visible)
	scrollbar := renderScrollbar(theme, rows, total, rows, model.offset)
	width := model.width
	if scrollbar != "" {
		width--
	}
	rowStyle := lipgloss.NewStyle().Width(width).MaxWidth(width)

	lines := make([]string, 0, rows)
	if total == 0 {
		placeholder := "(no jobs)"
		if model.filter.Input != "" {
			placeholder = "(no jobs match the filter)"
		}
		lines = append(lines, rowStyle.Foreground(theme.FaintText).Render(" "+placeholder))
	}
	end := min(model.offset+rows, total)
	for _, info := range model.visible[model.offset:end] {
		label := stateLabel(info)
		prefixWidth := 1 + 8 + 1 + jobLabelWidth + 1
		command := ansi.Truncate(sanitize(info.Command), max(width-prefixWidth-1, 0), "…")

		if info.ID == model.selected {
			line := fmt.Sprintf(" %s %-*s %s", info.ShortID(), jobLabelWidth, label, command)
			lines = append(lines, rowStyle.
				Background(theme.SelectedBackground).
				Foreground(theme.SelectedForeground).
				Bold(true).
				Render(line))
			continue
		}
		line := " " + lipgloss.NewStyle().Foreground(theme.FaintText).Render(info.ShortID()) +
			" " + lipgloss.NewStyle().Foreground(theme.StateColor(info.State)).
			Render(fmt.Sprintf("%-*s", jobLabelWidth, label)) +
			" " + lipgloss.NewStyle().Foreground(theme.NormalText).Render(command)
		lines = append(lines, rowStyle.Render(line))
	}
	for len(lines) < rows {
		lines = append(lines, rowStyle.Render(""))
	}

	block := strings.Join(lines, "\n")
	if scrollbar == "" {
		return block
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, block, scrollbar)
}

func (model Model) logTitle() string {
	focus, ok := model.focusJob()
	if !ok || len(model.visible) == 0 {
		return "Output"
	}
	return "Output " + focus.ShortID() + "  " + model.titleText
}

func (model Model) renderLog(rows int) string {
	faint := lipgloss.NewStyle().Foreground(model.theme.FaintText)
	lines := make([]string, 0, rows)
	switch {
	case len(model.visible) == 0:
		lines = append(lines, faint.Render(" (nothing selected)"))
	case len(model.frame.Tail) == 0:
		lines = append(lines, faint.Render(" (no output yet)"))
	default:
		tail := model.frame.Tail
		if len(tail) > rows {
			tail = tail[len(tail)-rows:]
		}
		for _, line := range tail {
			lines = append(lines, ansi.Truncate(sanitize(line), model.width, "…"))
		}
	}
	for len(lines) < rows {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

func (model Model) renderStatus() string {
	theme := model.theme
	if model.notice != "" {
		color := theme.WarnForeground
		if model.noticeLevel >= slog.LevelError {
			color = theme.ErrorForeground
		}
		return lipgloss.NewStyle().Foreground(color).
			Render(ansi.Truncate(" "+model.notice, model.width, "…"))
	}
	return lipgloss.NewStyle().Foreground(theme.HelpText).
		Render(ansi.Truncate(" "+helpText, model.width, "…"))
}

// sanitize makes job text safe for a single terminal row: escape
// sequences are removed and tabs expanded.
func sanitize(text string) string {
	return strings.ReplaceAll(ansi.Strip(text), "\t", "    ")
}

// highlightCommand renders command as highlighted shell. Falls back
// to the plain text when the highlighter fails.
func highlightCommand(command string) string {
	var buffer bytes.Buffer
	if err := quick.Highlight(&buffer, sanitize(command), "bash", "terminal256", "monokai"); err != nil {
		return command
	}
	return strings.TrimRight(buffer.String(), "\n")
}
