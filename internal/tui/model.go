package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"versefinder/internal/domain"
)

// ErrAborted is returned by Run when the user quit without confirming.
var ErrAborted = errors.New("review aborted")

// Model is the Bubble Tea model for reviewing collected verses. Verses can only be
// dropped; nothing can be added.
type Model struct {
	title     string
	verses    []string
	dropped   map[int]bool
	visible   []int
	cursor    int
	filter    textinput.Model
	filtering bool
	viewport  viewport.Model
	status    string
	ready     bool
	done      bool
	aborted   bool
}

// New creates a review model over verses, which should already be in canonical order.
func New(title string, verses []string) Model {
	ti := textinput.New()
	ti.Prompt = "/ "
	ti.Placeholder = "filter verses"
	ti.CharLimit = 0
	m := Model{
		title:    title,
		verses:   verses,
		dropped:  make(map[int]bool),
		filter:   ti,
		viewport: viewport.New(0, 0),
		status:   "space: drop/keep  /: filter  enter: confirm  ctrl+c: abort",
	}
	m.applyFilter()
	return m
}

func (m Model) Init() tea.Cmd { return nil }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, lh := listBoxStyle.GetFrameSize()
		reserved := 2 + 1 + 1 // header, filter, status
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-lh)
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			m.aborted = true
			return m, tea.Quit
		}
		if m.filtering {
			return m.updateFilter(msg)
		}
		switch msg.String() {
		case "enter":
			m.done = true
			return m, tea.Quit
		case "q", "esc":
			m.aborted = true
			return m, tea.Quit
		case "/":
			m.filtering = true
			m.filter.Focus()
			return m, textinput.Blink
		case "down", "j":
			if len(m.visible) > 0 {
				m.cursor = (m.cursor + 1) % len(m.visible)
			}
		case "up", "k":
			if len(m.visible) > 0 {
				m.cursor = (m.cursor - 1 + len(m.visible)) % len(m.visible)
			}
		case " ", "x":
			if len(m.visible) > 0 {
				i := m.visible[m.cursor]
				m.dropped[i] = !m.dropped[i]
			}
		}
		m.refresh()
		return m, nil
	}
	return m, nil
}

func (m Model) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		m.filtering = false
		m.filter.Blur()
		m.applyFilter()
		m.refresh()
		return m, nil
	case tea.KeyEsc:
		m.filtering = false
		m.filter.Blur()
		m.filter.SetValue("")
		m.applyFilter()
		m.refresh()
		return m, nil
	}
	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	return m, cmd
}

func (m *Model) applyFilter() {
	q := strings.ToLower(strings.TrimSpace(m.filter.Value()))
	m.visible = m.visible[:0]
	for i, v := range m.verses {
		if q == "" || strings.Contains(strings.ToLower(v), q) {
			m.visible = append(m.visible, i)
		}
	}
	m.cursor = 0
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderList())
	if m.cursor < m.viewport.YOffset {
		m.viewport.SetYOffset(m.cursor)
	} else if m.viewport.Height > 0 && m.cursor >= m.viewport.YOffset+m.viewport.Height {
		m.viewport.SetYOffset(m.cursor - m.viewport.Height + 1)
	}
}

// View renders the TUI layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render(m.title)
	counts := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(
		fmt.Sprintf("%d verses, %d dropped, %d shown", len(m.verses), m.droppedCount(), len(m.visible)))
	list := listBoxStyle.Render(m.viewport.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	return header + "\n" + counts + "\n" + list + "\n" + m.filter.View() + "\n" + status
}

func (m Model) renderList() string {
	if len(m.visible) == 0 {
		return "No verses."
	}
	lines := make([]string, len(m.visible))
	for row, i := range m.visible {
		mark := "[x]"
		style := keptStyle
		if m.dropped[i] {
			mark = "[ ]"
			style = droppedStyle
		}
		line := mark + " " + m.verses[i]
		if row == m.cursor {
			line = cursorStyle.Render("> " + line)
		} else {
			line = style.Render("  " + line)
		}
		lines[row] = line
	}
	return strings.Join(lines, "\n")
}

func (m Model) droppedCount() int {
	n := 0
	for _, d := range m.dropped {
		if d {
			n++
		}
	}
	return n
}

// Kept returns every verse not dropped.
func (m Model) Kept() domain.CitationSet {
	keep := make(domain.CitationSet, len(m.verses))
	for i, v := range m.verses {
		if !m.dropped[i] {
			keep.Add(v)
		}
	}
	return keep
}

// Confirmed reports whether the user finished the review with enter.
func (m Model) Confirmed() bool { return m.done && !m.aborted }

// Run shows the review screen and returns the verses to keep.
func Run(title string, verses []string) (domain.CitationSet, error) {
	final, err := tea.NewProgram(New(title, verses), tea.WithAltScreen()).Run()
	if err != nil {
		return nil, err
	}
	m := final.(Model)
	if !m.Confirmed() {
		return nil, ErrAborted
	}
	return m.Kept(), nil
}

var (
	listBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	cursorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	keptStyle    = lipgloss.NewStyle()
	droppedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Strikethrough(true)
)
