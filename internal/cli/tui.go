package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/time/rate"

	"github.com/stellar-expert/relgraph/pkg/graph"
)

// List styles
var (
	listDimStyle    = lipgloss.NewStyle().Foreground(colorDim)
	listStatusStyle = lipgloss.NewStyle().Foreground(colorGray)
	listErrorStyle  = lipgloss.NewStyle().Foreground(colorRed)
)

// =============================================================================
// Messages
// =============================================================================

// stateChangedMsg is delivered for every graph event.
type stateChangedMsg graph.Event

// fetchDoneMsg reports the outcome of a "fetch more" request.
type fetchDoneMsg struct {
	address string
	err     error
}

// savedMsg reports the outcome of a snapshot save.
type savedMsg struct {
	id  string
	err error
}

// =============================================================================
// ExploreModel - Interactive graph explorer
// =============================================================================

// ExploreModel is the bubbletea model for the terminal explorer. It lists
// the counter-parties of the selected account; the user shows or hides
// them, follows them, and loads further pages of relations.
type ExploreModel struct {
	ctx     context.Context
	state   *graph.State
	limiter *rate.Limiter
	events  <-chan graph.Event
	save    func(context.Context) (string, error)

	Cursor  int
	Offset  int
	Height  int
	history []*graph.Node
	status  string
	err     error
}

// NewExploreModel creates an explorer over st. Fetch-more requests are
// throttled by limiter. save may be nil to disable snapshots.
func NewExploreModel(ctx context.Context, st *graph.State, limiter *rate.Limiter, save func(context.Context) (string, error)) (ExploreModel, func()) {
	events := make(chan graph.Event, 64)
	cancel := st.Subscribe(func(ev graph.Event) {
		select {
		case events <- ev:
		default:
		}
	})
	return ExploreModel{
		ctx:     ctx,
		state:   st,
		limiter: limiter,
		events:  events,
		save:    save,
		Height:  15,
	}, cancel
}

func (m ExploreModel) Init() tea.Cmd {
	return m.waitEvent()
}

func (m ExploreModel) waitEvent() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		return stateChangedMsg(<-events)
	}
}

func (m ExploreModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case stateChangedMsg:
		if msg.Kind == graph.EventFetchFailed {
			m.status = "loading relations of " + graph.ShortAddress(msg.Address) + " failed"
		}
		m.clamp()
		return m, m.waitEvent()

	case fetchDoneMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.err = nil
			m.status = "loaded more relations of " + graph.ShortAddress(msg.address)
		}
		m.clamp()
		return m, nil

	case savedMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.status = "saved snapshot " + msg.id
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.Height = max(msg.Height-9, 5)
		m.clamp()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m ExploreModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	rows := m.rows()
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "up", "k":
		if m.Cursor > 0 {
			m.Cursor--
		}
		m.clamp()
		m.hoverCurrent(rows)
	case "down", "j":
		if m.Cursor < len(rows)-1 {
			m.Cursor++
		}
		m.clamp()
		m.hoverCurrent(rows)
	case " ", "space", "v":
		if m.Cursor < len(rows) {
			r := rows[m.Cursor]
			m.setErr(m.state.SetDisplayNodeState(r.peer, !r.peer.Visible()))
		}
	case "enter", "right", "l":
		if m.Cursor < len(rows) {
			prev := m.state.SelectedNode()
			if err := m.state.SelectNode(m.ctx, rows[m.Cursor].peer); err != nil {
				m.setErr(err)
				break
			}
			m.history = append(m.history, prev)
			m.Cursor, m.Offset = 0, 0
		}
	case "backspace", "left", "h":
		if n := len(m.history); n > 0 {
			prev := m.history[n-1]
			m.history = m.history[:n-1]
			m.setErr(m.state.SelectNode(m.ctx, prev))
			m.Cursor, m.Offset = 0, 0
		}
	case "m":
		cmd := m.fetchMore()
		return m, cmd
	case "s":
		if m.save != nil {
			save, ctx := m.save, m.ctx
			return m, func() tea.Msg {
				id, err := save(ctx)
				return savedMsg{id: id, err: err}
			}
		}
	}
	return m, nil
}

// fetchMore loads the next page of the selected account, subject to the
// rate limiter.
func (m *ExploreModel) fetchMore() tea.Cmd {
	sel := m.state.SelectedNode()
	switch {
	case sel == nil:
		return nil
	case !sel.CanFetchMoreLinks():
		m.status = "all relations loaded"
		return nil
	case sel.Fetching():
		m.status = "already loading"
		return nil
	case !m.limiter.Allow():
		m.status = "slow down: too many requests"
		return nil
	}
	m.status = "loading…"
	st, ctx := m.state, m.ctx
	return func() tea.Msg {
		return fetchDoneMsg{address: sel.ID(), err: st.PopulateNodeLinks(ctx, sel)}
	}
}

func (m *ExploreModel) setErr(err error) {
	m.err = err
	if err == nil {
		m.status = ""
	}
}

func (m *ExploreModel) hoverCurrent(rows []peerRow) {
	if m.Cursor < len(rows) {
		_ = m.state.SetHoverNode(rows[m.Cursor].peer)
	}
}

// clamp keeps the cursor and scroll offset inside the current list.
func (m *ExploreModel) clamp() {
	n := len(m.rows())
	if m.Cursor >= n {
		m.Cursor = max(n-1, 0)
	}
	if m.Cursor < m.Offset {
		m.Offset = m.Cursor
	}
	if m.Cursor >= m.Offset+m.Height {
		m.Offset = m.Cursor - m.Height + 1
	}
}

// =============================================================================
// Rows
// =============================================================================

// peerRow is one counter-party of the selected account as seen from it.
type peerRow struct {
	peer     *graph.Node
	link     *graph.Link
	out, in  graph.RelationKind
	sent     int64
	received int64
}

func (m ExploreModel) rows() []peerRow {
	sel := m.state.SelectedNode()
	if sel == nil {
		return nil
	}
	return peerRows(sel)
}

// peerRows lists the links of n oriented from n, in link id order.
func peerRows(n *graph.Node) []peerRow {
	links := n.Links()
	rows := make([]peerRow, 0, len(links))
	for _, l := range links {
		r := peerRow{peer: l.Other(n), link: l, out: l.Forward(), in: l.Backward()}
		t := l.Transfers()
		r.sent, r.received = t[0], t[1]
		if l.Source() != n {
			r.out, r.in = r.in, r.out
			r.sent, r.received = r.received, r.sent
		}
		rows = append(rows, r)
	}
	return rows
}

// =============================================================================
// View
// =============================================================================

func (m ExploreModel) View() string {
	var b strings.Builder
	sel := m.state.SelectedNode()
	if sel == nil {
		return StyleDim.Render("no account selected") + "\n"
	}

	b.WriteString(StyleTitle.Render("Relations of " + sel.ID()))
	b.WriteString("\n")
	data := m.state.GraphData()
	b.WriteString(listStatusStyle.Render(fmt.Sprintf("%s · %d links loaded · %d/%d accounts shown",
		sel.FetchStatus(), sel.LinkCount(), len(data.Nodes), m.state.NodeCount())))
	b.WriteString("\n\n")

	rows := m.rows()
	if len(rows) == 0 {
		b.WriteString(listDimStyle.Render("  no relations loaded yet"))
		b.WriteString("\n")
	} else {
		b.WriteString(m.table(rows))
		b.WriteString("\n")
		b.WriteString(listDimStyle.Render(fmt.Sprintf("  [%d/%d]", m.Cursor+1, len(rows))))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	switch {
	case m.err != nil:
		b.WriteString(listErrorStyle.Render(iconError + " " + m.err.Error()))
	case m.status != "":
		b.WriteString(listStatusStyle.Render(iconInfo + " " + m.status))
	}
	b.WriteString("\n")
	help := "↑/↓ navigate  space show/hide  ⏎ follow  ← back  m more"
	if m.save != nil {
		help += "  s save"
	}
	b.WriteString(listDimStyle.Render(help + "  q quit"))
	return b.String()
}

func (m ExploreModel) table(rows []peerRow) string {
	end := min(m.Offset+m.Height, len(rows))
	out := make([][]string, 0, end-m.Offset)
	for i := m.Offset; i < end; i++ {
		r := rows[i]
		cursor := "  "
		if i == m.Cursor {
			cursor = "▸ "
		}
		shown := ""
		if r.peer.Visible() {
			shown = "✓"
		}
		out = append(out, []string{
			cursor,
			graph.ShortAddress(r.peer.ID()),
			shown,
			dash(r.out.String()),
			dash(r.in.String()),
			strconv.FormatInt(r.sent, 10) + " / " + strconv.FormatInt(r.received, 10),
			r.link.Created().Format("2006-01-02"),
		})
	}

	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("", "Account", "Shown", "Outgoing", "Incoming", "Payments", "Since").
		Rows(out...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			idx := m.Offset + row
			if idx >= len(rows) {
				return lipgloss.NewStyle()
			}
			base := lipgloss.NewStyle()
			if col == 6 {
				base = base.Foreground(colorDim)
			}
			if idx == m.Cursor {
				return base.Foreground(colorCyan).Bold(true)
			}
			if rows[idx].peer.Visible() {
				return base.Foreground(colorGreen)
			}
			return base.Foreground(colorWhite)
		}).
		Render()
}
