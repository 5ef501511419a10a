// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dashboard

import (
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"
	"github.com/google/uuid"

	"github.com/bureau-foundation/gparallel/lib/device"
	"github.com/bureau-foundation/gparallel/lib/job"
)

// fakeSource serves a fixed set of jobs and devices.
type fakeSource struct {
	devices  []DeviceRow
	jobs     []job.Info
	output   map[uuid.UUID][]string
	shutdown bool
	calls    int
}

func (source *fakeSource) Frame(selected uuid.UUID, tail int) Frame {
	source.calls++
	frame := Frame{
		Devices:      source.devices,
		Jobs:         source.jobs,
		ShuttingDown: source.shutdown,
		Elapsed:      90 * time.Second,
	}
	for _, info := range source.jobs {
		switch info.State {
		case job.Queued:
			frame.Counts.Queued++
		case job.Running:
			frame.Counts.Running++
		case job.Done:
			frame.Counts.Done++
		case job.Failed:
			frame.Counts.Failed++
		case job.Cancelled:
			frame.Counts.Cancelled++
		}
	}
	focus := uuid.Nil
	for _, info := range source.jobs {
		if info.ID == selected {
			focus = selected
		}
	}
	if focus == uuid.Nil && len(source.jobs) > 0 {
		focus = source.jobs[0].ID
	}
	frame.Focus = focus
	lines := source.output[focus]
	if len(lines) > tail {
		lines = lines[len(lines)-tail:]
	}
	frame.Tail = lines
	return frame
}

func testID(n int) uuid.UUID {
	return uuid.MustParse(fmt.Sprintf("%08d-0000-4000-8000-000000000000", n))
}

func standardSource() *fakeSource {
	first, second, third := testID(10000001), testID(20000002), testID(30000003)
	return &fakeSource{
		devices: []DeviceRow{
			{
				Device: device.Device{
					ID:            0,
					Name:          "NVIDIA GeForce RTX 4090",
					TotalMemory:   24 << 30,
					FreeMemory:    18 << 30,
					MemoryUpdated: time.Unix(1000, 0),
				},
				Busy: true,
				Job:  first,
			},
			{Device: device.Device{ID: 1, Name: "GPU1"}},
		},
		jobs: []job.Info{
			{ID: first, Command: "python train.py --lr 0.1", State: job.Running, Device: 0},
			{ID: second, Command: "python eval.py", State: job.Queued, Device: job.NoDevice},
			{ID: third, Command: "bash cleanup.sh", State: job.Done, Device: job.NoDevice},
		},
		output: map[uuid.UUID][]string{
			first:  {"epoch 1 loss 0.9", "epoch 2 loss 0.5"},
			second: {},
			third:  {"removed 3 files"},
		},
	}
}

func update(t *testing.T, model Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := model.Update(msg)
	updated, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T, want Model", next)
	}
	return updated, cmd
}

func sized(t *testing.T, source Source, width, height int) Model {
	t.Helper()
	model, _ := update(t, New(source, nil), tea.WindowSizeMsg{Width: width, Height: height})
	return model
}

func runes(text string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)}
}

func plainView(model Model) string {
	return ansi.Strip(model.View())
}

func TestViewBeforeWindowSize(t *testing.T) {
	model := New(standardSource(), nil)
	if view := model.View(); view != "Loading..." {
		t.Errorf("View() = %q before the first WindowSizeMsg", view)
	}
}

func TestDefaultSelectionAndPanels(t *testing.T) {
	source := standardSource()
	model := sized(t, source, 120, 30)

	if model.Selected() != source.jobs[0].ID {
		t.Fatalf("Selected() = %s, want the first job", model.Selected())
	}

	view := plainView(model)
	for _, want := range []string{
		"gparallel", "1 queued", "1 running", "1 done", "0 failed", "elapsed 1m30s",
		"● G0", "NVIDIA GeForce RTX 4090", "18 GiB free / 24 GiB", "25% used",
		"job 10000001",
		"○ G1", "—",
		"RUN G0", "QUEUE", "DONE", "python eval.py",
		"Output 10000001", "python train.py --lr 0.1",
		"epoch 1 loss 0.9", "epoch 2 loss 0.5",
		"q Quit (jobs continue)",
	} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
	if strings.Contains(view, "removed 3 files") {
		t.Error("view shows output of a job that is not selected")
	}
	if got := strings.Count(view, "\n") + 1; got != 30 {
		t.Errorf("view has %d rows, want 30", got)
	}
}

func TestNavigation(t *testing.T) {
	source := standardSource()
	model := sized(t, source, 120, 30)

	model, _ = update(t, model, tea.KeyMsg{Type: tea.KeyDown})
	if model.Selected() != source.jobs[1].ID {
		t.Fatalf("after down: selected %s, want second job", model.Selected())
	}
	if view := plainView(model); !strings.Contains(view, "(no output yet)") {
		t.Errorf("queued job without output should show a placeholder:\n%s", view)
	}

	model, _ = update(t, model, runes("j"))
	if model.Selected() != source.jobs[2].ID {
		t.Fatalf("after j: selected %s, want third job", model.Selected())
	}
	if view := plainView(model); !strings.Contains(view, "removed 3 files") {
		t.Errorf("view should show the third job's output:\n%s", view)
	}

	// Moving past the end stays on the last job.
	model, _ = update(t, model, tea.KeyMsg{Type: tea.KeyDown})
	if model.Selected() != source.jobs[2].ID {
		t.Errorf("down at end moved selection to %s", model.Selected())
	}

	model, _ = update(t, model, tea.KeyMsg{Type: tea.KeyHome})
	if model.Selected() != source.jobs[0].ID {
		t.Errorf("home: selected %s, want first job", model.Selected())
	}
	model, _ = update(t, model, runes("k"))
	if model.Selected() != source.jobs[0].ID {
		t.Errorf("k at top moved selection to %s", model.Selected())
	}
	model, _ = update(t, model, tea.KeyMsg{Type: tea.KeyEnd})
	if model.Selected() != source.jobs[2].ID {
		t.Errorf("end: selected %s, want last job", model.Selected())
	}
}

func TestScrollKeepsSelectionVisible(t *testing.T) {
	source := &fakeSource{
		devices: []DeviceRow{{Device: device.Device{ID: 0, Name: "GPU0"}}},
	}
	for index := range 50 {
		source.jobs = append(source.jobs, job.Info{
			ID:      testID(index),
			Command: fmt.Sprintf("run-%02d", index),
			State:   job.Queued,
			Device:  job.NoDevice,
		})
	}
	model := sized(t, source, 80, 14)

	if view := model.View(); !strings.Contains(view, "┃") {
		t.Error("job list longer than its panel should draw a scrollbar")
	}

	model, _ = update(t, model, tea.KeyMsg{Type: tea.KeyEnd})
	view := plainView(model)
	if !strings.Contains(view, "run-49") {
		t.Errorf("last job not visible after end:\n%s", view)
	}
	if strings.Contains(view, "run-00") {
		t.Errorf("first job still visible after scrolling to the end:\n%s", view)
	}

	model, _ = update(t, model, tea.KeyMsg{Type: tea.KeyPgUp})
	if model.cursor() >= 49 {
		t.Errorf("pgup did not move the selection, cursor %d", model.cursor())
	}
	if view := plainView(model); !strings.Contains(view, source.jobs[model.cursor()].Command) {
		t.Errorf("selected job %q not visible after pgup", source.jobs[model.cursor()].Command)
	}
}

func TestDetach(t *testing.T) {
	model := sized(t, standardSource(), 100, 30)
	model, cmd := update(t, model, runes("q"))
	if !model.Detached() {
		t.Error("q should mark the dashboard detached")
	}
	if model.ForceQuit() {
		t.Error("q must not force quit")
	}
	if cmd == nil {
		t.Fatal("q returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit the program")
	}
}

func TestForceQuitRunsCallback(t *testing.T) {
	called := 0
	model, _ := update(t, New(standardSource(), func() { called++ }), tea.WindowSizeMsg{Width: 100, Height: 30})

	// Ctrl+C works even while the filter has focus.
	model, _ = update(t, model, runes("/"))
	model, cmd := update(t, model, tea.KeyMsg{Type: tea.KeyCtrlC})
	if !model.ForceQuit() {
		t.Error("ctrl+c should mark force quit")
	}
	if called != 0 {
		t.Fatal("callback ran inside Update")
	}
	if cmd == nil {
		t.Fatal("ctrl+c returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("ctrl+c command should quit the program")
	}
	if called != 1 {
		t.Errorf("callback ran %d times, want 1", called)
	}
}

func TestAutoExitWhenAllJobsFinish(t *testing.T) {
	source := standardSource()
	model := sized(t, source, 100, 30)

	model, cmd := update(t, model, tickMsg(time.Now()))
	if model.Finished() || cmd == nil {
		t.Fatal("dashboard with active jobs should keep ticking")
	}

	for index := range source.jobs {
		source.jobs[index].State = job.Done
	}
	model, cmd = update(t, model, tickMsg(time.Now()))
	if !model.Finished() {
		t.Fatal("dashboard should finish once every job is terminal")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("finished dashboard should quit")
	}
}

func TestNoJobsDoesNotAutoExit(t *testing.T) {
	model := sized(t, &fakeSource{}, 80, 20)
	model, _ = update(t, model, tickMsg(time.Now()))
	if model.Finished() {
		t.Error("an empty registry is not finished")
	}
	if view := plainView(model); !strings.Contains(view, "(no jobs)") {
		t.Errorf("empty job list should show a placeholder:\n%s", view)
	}
}

func TestFilter(t *testing.T) {
	source := standardSource()
	model := sized(t, source, 120, 30)

	model, _ = update(t, model, runes("/"))
	for _, character := range "evl" {
		model, _ = update(t, model, runes(string(character)))
	}
	view := plainView(model)
	if !strings.Contains(view, " / evl") {
		t.Errorf("active filter bar missing:\n%s", view)
	}
	if strings.Contains(view, "cleanup.sh") || strings.Contains(view, "--lr") {
		t.Errorf("non-matching jobs still listed:\n%s", view)
	}
	if model.Selected() != source.jobs[1].ID {
		t.Errorf("selection should move to the only match, got %s", model.Selected())
	}

	// q is typed into the query, not treated as detach.
	model, _ = update(t, model, runes("q"))
	if model.Detached() {
		t.Fatal("q while filtering detached the dashboard")
	}
	if view := plainView(model); !strings.Contains(view, "(no jobs match the filter)") {
		t.Errorf("expected the no-match placeholder:\n%s", view)
	}
	model, _ = update(t, model, tea.KeyMsg{Type: tea.KeyBackspace})

	model, _ = update(t, model, tea.KeyMsg{Type: tea.KeyEnter})
	view = plainView(model)
	if !strings.Contains(view, "filter: evl") {
		t.Errorf("kept filter should be shown after enter:\n%s", view)
	}

	model, _ = update(t, model, tea.KeyMsg{Type: tea.KeyEsc})
	view = plainView(model)
	for _, want := range []string{"cleanup.sh", "--lr", "gparallel"} {
		if !strings.Contains(view, want) {
			t.Errorf("after esc the view should contain %q:\n%s", want, view)
		}
	}
}

func TestLogNoticeReplacesHelp(t *testing.T) {
	model := sized(t, standardSource(), 140, 30)

	model, cmd := update(t, model, logRecordMsg{Summary: "device memory unavailable (device=1)", Level: slog.LevelWarn})
	if cmd == nil {
		t.Fatal("notice should schedule a fade")
	}
	view := plainView(model)
	if !strings.Contains(view, "device memory unavailable (device=1)") {
		t.Errorf("notice not shown:\n%s", view)
	}
	if strings.Contains(view, "Auto-exit") {
		t.Error("help text should be hidden while a notice is shown")
	}

	model, _ = update(t, model, logRecordMsg{Summary: "second", Level: slog.LevelError})
	model, _ = update(t, model, logRecordFadeMsg{generation: 1})
	if view := plainView(model); !strings.Contains(view, "second") {
		t.Error("a stale fade cleared the newer notice")
	}
	model, _ = update(t, model, logRecordFadeMsg{generation: 2})
	if view := plainView(model); !strings.Contains(view, "Auto-exit when all jobs complete") {
		t.Errorf("help text not restored after fade:\n%s", view)
	}
}

func TestShuttingDownHeader(t *testing.T) {
	source := standardSource()
	source.shutdown = true
	model := sized(t, source, 140, 30)
	if view := plainView(model); !strings.Contains(view, "shutting down") {
		t.Errorf("header should show the shutdown:\n%s", view)
	}
}

func TestStateLabels(t *testing.T) {
	tests := []struct {
		info job.Info
		want string
	}{
		{job.Info{State: job.Queued}, "QUEUE"},
		{job.Info{State: job.Running, Device: 3}, "RUN G3"},
		{job.Info{State: job.Done}, "DONE"},
		{job.Info{State: job.Failed}, "FAIL"},
		{job.Info{State: job.Cancelled}, "CANCEL"},
	}
	for _, test := range tests {
		if got := stateLabel(test.info); got != test.want {
			t.Errorf("stateLabel(%v) = %q, want %q", test.info.State, got, test.want)
		}
	}
}

func TestSanitizeStripsEscapes(t *testing.T) {
	if got := sanitize("\x1b[31mred\x1b[0m\tdone"); got != "red    done" {
		t.Errorf("sanitize = %q", got)
	}
}
