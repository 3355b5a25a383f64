// Package inspect is a terminal browser for the stored conversation
// histories.
package inspect

import (
	"fmt"
	"strings"

	"chatbridge/internal/history"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// --- Styles ---

var (
	titleStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("62")).
			Foreground(lipgloss.Color("230")).
			Padding(0, 1).
			Bold(true)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	authorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	botStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	timeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	docStyle    = lipgloss.NewStyle().Padding(1, 2)
	windowStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)
)

// --- Types ---

type state int

const (
	stateList state = iota
	stateHistory
)

type item struct {
	id       string
	count    int
	lastSeen string
}

func (i item) Title() string { return i.id }
func (i item) Description() string {
	if i.lastSeen == "" {
		return fmt.Sprintf("%d messages", i.count)
	}
	return fmt.Sprintf("%d messages, last %s", i.count, i.lastSeen)
}
func (i item) FilterValue() string { return i.id }

// Model browses a snapshot: a list of conversations and a scrollable view of
// the selected history.
type Model struct {
	state    state
	snap     history.Snapshot
	botID    string
	selected string

	list     list.Model
	viewport viewport.Model
	width    int
	height   int
	quitting bool
}

func NewModel(snap history.Snapshot, conversations []string, botID string) Model {
	items := make([]list.Item, len(conversations))
	for i, id := range conversations {
		msgs := snap[id]
		it := item{id: id, count: len(msgs)}
		if len(msgs) > 0 {
			it.lastSeen = msgs[len(msgs)-1].Timestamp
		}
		items[i] = it
	}

	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Conversations"
	l.SetShowHelp(false)

	return Model{
		state:    stateList,
		snap:     snap,
		botID:    botID,
		list:     l,
		viewport: viewport.New(0, 0),
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "q":
			if m.state == stateList && m.list.FilterState() != list.Filtering {
				m.quitting = true
				return m, tea.Quit
			}
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.list.SetSize(msg.Width-4, msg.Height-6)
		m.viewport.Width = msg.Width - 8
		m.viewport.Height = msg.Height - 10
		if m.state == stateHistory {
			m.viewport.SetContent(m.render(m.selected))
		}
	}

	var cmd tea.Cmd
	switch m.state {
	case stateList:
		if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.String() == "enter" && m.list.FilterState() != list.Filtering {
			if it, ok := m.list.SelectedItem().(item); ok {
				m.selected = it.id
				m.state = stateHistory
				m.viewport.SetContent(m.render(it.id))
				m.viewport.GotoBottom()
				return m, nil
			}
		}
		m.list, cmd = m.list.Update(msg)

	case stateHistory:
		if keyMsg, ok := msg.(tea.KeyMsg); ok {
			switch keyMsg.String() {
			case "esc", "backspace", "q":
				m.state = stateList
				m.selected = ""
				return m, nil
			}
		}
		m.viewport, cmd = m.viewport.Update(msg)
	}
	return m, cmd
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render(" chatbridge history "))
	s.WriteString("\n\n")

	switch m.state {
	case stateList:
		s.WriteString(m.list.View())
		s.WriteString("\n" + helpStyle.Render("q/ctrl+c: quit • ↑/↓: navigate • /: filter • enter: open"))
	case stateHistory:
		s.WriteString(fmt.Sprintf("%s (%d messages)\n", m.selected, len(m.snap[m.selected])))
		s.WriteString(windowStyle.Render(m.viewport.View()))
		s.WriteString("\n" + helpStyle.Render(fmt.Sprintf("esc: back • ↑/↓/pgup/pgdn: scroll • %3.f%%", m.viewport.ScrollPercent()*100)))
	}
	return docStyle.Render(s.String())
}

func (m Model) render(id string) string {
	msgs := m.snap[id]
	if len(msgs) == 0 {
		return "(empty)"
	}
	var b strings.Builder
	for i, msg := range msgs {
		style := authorStyle
		if msg.AuthorID == m.botID {
			style = botStyle
		}
		b.WriteString(timeStyle.Render(msg.Timestamp) + " " + style.Render(msg.AuthorID) + "\n")
		b.WriteString(msg.Content + "\n")
		for _, a := range msg.Attachments {
			b.WriteString(helpStyle.Render("  attachment: "+string(a)) + "\n")
		}
		if i < len(msgs)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// --- Runner ---

// Run opens the browser on the cache's current contents.
func Run(cache *history.Cache, botID string) error {
	p := tea.NewProgram(NewModel(cache.Snapshot(), cache.Conversations(), botID), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
