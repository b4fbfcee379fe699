package cli

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/time/rate"

	"github.com/stellar-expert/relgraph/pkg/graph"
)

func newTestModel(t *testing.T, st *graph.State) ExploreModel {
	t.Helper()
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	m, cancel := NewExploreModel(context.Background(), st, limiter, nil)
	t.Cleanup(cancel)
	return m
}

func key(k string) tea.KeyMsg {
	switch k {
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "backspace":
		return tea.KeyMsg{Type: tea.KeyBackspace}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
}

func press(m ExploreModel, k string) (ExploreModel, tea.Cmd) {
	next, cmd := m.Update(key(k))
	return next.(ExploreModel), cmd
}

func TestPeerRows(t *testing.T) {
	st := newFixtureState(t, 10)
	rows := peerRows(st.SelectedNode())
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}

	a, b := rows[0], rows[1]
	if a.peer.ID() != peerAAddr || a.out != graph.KindCreator || a.in != graph.KindPayments || a.received != 3 {
		t.Errorf("row A = %s out=%s in=%s received=%d", a.peer.ID(), a.out, a.in, a.received)
	}
	if b.peer.ID() != peerBAddr || b.out != 0 || b.in != graph.KindPayments || b.received != 5 || b.sent != 0 {
		t.Errorf("row B = %s out=%s in=%s sent=%d received=%d", b.peer.ID(), b.out, b.in, b.sent, b.received)
	}
}

func TestExploreToggleVisibility(t *testing.T) {
	st := newFixtureState(t, 10)
	m := newTestModel(t, st)

	if got := len(st.GraphData().Nodes); got != 1 {
		t.Fatalf("visible nodes = %d, want 1", got)
	}
	m, _ = press(m, "v")
	if got := len(st.GraphData().Nodes); got != 2 {
		t.Errorf("visible nodes after show = %d, want 2", got)
	}
	press(m, "v")
	if got := len(st.GraphData().Nodes); got != 1 {
		t.Errorf("visible nodes after hide = %d, want 1", got)
	}
}

func TestExploreNavigateHovers(t *testing.T) {
	st := newFixtureState(t, 10)
	m := newTestModel(t, st)

	m, _ = press(m, "down")
	if m.Cursor != 1 {
		t.Fatalf("cursor = %d, want 1", m.Cursor)
	}
	if h := st.HoverNode(); h == nil || h.ID() != peerBAddr {
		t.Errorf("hover = %v, want B", h)
	}

	m, _ = press(m, "down")
	if m.Cursor != 1 {
		t.Errorf("cursor moved past the end: %d", m.Cursor)
	}
	m, _ = press(m, "up")
	if m.Cursor != 0 {
		t.Errorf("cursor = %d, want 0", m.Cursor)
	}
}

func TestExploreFollowAndBack(t *testing.T) {
	st := newFixtureState(t, 10)
	m := newTestModel(t, st)

	m, _ = press(m, "enter")
	st.Wait()
	if sel := st.SelectedNode(); sel.ID() != peerAAddr {
		t.Fatalf("selected = %s, want A", sel.ID())
	}
	if got := len(peerRows(st.SelectedNode())); got != 2 {
		t.Errorf("A rows = %d, want 2", got)
	}

	press(m, "backspace")
	st.Wait()
	if sel := st.SelectedNode(); sel.ID() != rootAddr {
		t.Errorf("selected after back = %s, want root", sel.ID())
	}
}

func TestExploreFetchMoreThrottled(t *testing.T) {
	st := newFixtureState(t, 1)
	m := newTestModel(t, st)
	root := st.SelectedNode()

	m, cmd := press(m, "m")
	if cmd == nil {
		t.Fatal("fetch more returned no command")
	}
	next, _ := m.Update(cmd())
	m = next.(ExploreModel)
	if root.LinkCount() != 2 {
		t.Errorf("links = %d, want 2", root.LinkCount())
	}
	if !strings.Contains(m.status, "loaded more") {
		t.Errorf("status = %q", m.status)
	}

	m, cmd = press(m, "m")
	if cmd != nil {
		t.Error("second fetch was not throttled")
	}
	if !strings.Contains(m.status, "slow down") {
		t.Errorf("status = %q", m.status)
	}
}

func TestExploreFetchFailedEvent(t *testing.T) {
	st := newFixtureState(t, 10)
	m := newTestModel(t, st)

	next, cmd := m.Update(stateChangedMsg{Kind: graph.EventFetchFailed, Address: peerAAddr})
	m = next.(ExploreModel)
	if cmd == nil {
		t.Error("event handler did not re-arm the event listener")
	}
	if !strings.Contains(m.status, "failed") {
		t.Errorf("status = %q", m.status)
	}
}

func TestExploreView(t *testing.T) {
	st := newFixtureState(t, 10)
	m := newTestModel(t, st)

	view := m.View()
	for _, want := range []string{"Relations of " + rootAddr, graph.ShortAddress(peerAAddr), "q quit"} {
		if !strings.Contains(view, want) {
			t.Errorf("view lacks %q", want)
		}
	}
	if strings.Contains(view, "s save") {
		t.Error("save hint shown without a snapshot store")
	}
}

func TestExploreQuit(t *testing.T) {
	st := newFixtureState(t, 10)
	m := newTestModel(t, st)

	_, cmd := press(m, "q")
	if cmd == nil {
		t.Fatal("quit returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q does not quit")
	}
}
