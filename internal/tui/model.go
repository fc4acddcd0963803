// Package tui implements the batch review terminal UI: a status-colored
// list of the receipts under review, an inline edit form, and a save pass
// with per-item outcomes. Every mutation flows through the review
// machine's guarded operations via the session; the TUI holds no state of
// its own beyond cursor and focus.
package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Brownbull/gmni-boletapp-sub000/internal/model"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/review"
)

// Session is the slice of the scan session the review TUI drives.
type Session interface {
	ReviewPhase() review.Phase
	ReviewItems() []review.Item
	FocusReviewItem(i int) bool
	StartReviewEdit(id string) bool
	UpdateReviewItem(id string, patch model.DraftPatch) bool
	FinishReviewEdit() bool
	DiscardReviewItem(id string) bool
	SaveBatch(ctx context.Context) (saved, failed int, err error)
	ReviewCounts() (saved, failed, outstanding int)
	ReviewErr() string
}

// state is the TUI's input mode. It shadows the review machine's phase;
// confirm and help are view-only detours that leave the machine alone.
type state int

const (
	stateList state = iota
	stateEditing
	stateConfirmDiscard
	stateSaving
	stateSummary
	stateHelp
)

type saveDoneMsg struct {
	err    error
	saved  int
	failed int
}

type saveTickMsg time.Time

// Model is the bubbletea model for batch review.
type Model struct {
	session   Session
	ctx       context.Context
	keys      KeyMap
	theme     Theme
	form      editForm
	items     []review.Item
	discardID string
	saveErr   string
	state     state
	prev      state
	cursor    int
	saved     int
	failed    int
	width     int
	height    int
}

// New builds the review model over a session whose review machine is
// already holding a batch.
func New(ctx context.Context, session Session) Model {
	return Model{
		session: session,
		ctx:     ctx,
		keys:    DefaultKeyMap(),
		theme:   Default,
		items:   session.ReviewItems(),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case saveTickMsg:
		if m.state != stateSaving {
			return m, nil
		}
		m.items = m.session.ReviewItems()
		return m, saveTick()

	case saveDoneMsg:
		m.items = m.session.ReviewItems()
		m.saved = msg.saved
		m.failed = msg.failed
		m.saveErr = ""
		if msg.err != nil {
			m.saveErr = msg.err.Error()
		}
		m.state = stateSummary
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.ForceQuit) {
			return m, tea.Quit
		}
		switch m.state {
		case stateList:
			return m.updateList(msg)
		case stateEditing:
			return m.updateEditing(msg)
		case stateConfirmDiscard:
			return m.updateConfirmDiscard(msg)
		case stateSaving:
			// Keys are inert while the save pass runs.
			return m, nil
		case stateSummary:
			return m.updateSummary(msg)
		case stateHelp:
			m.state = m.prev
			return m, nil
		}
	}
	return m, nil
}

func (m Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
			m.session.FocusReviewItem(m.cursor)
		}

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.items)-1 {
			m.cursor++
			m.session.FocusReviewItem(m.cursor)
		}

	case key.Matches(msg, m.keys.Edit):
		if len(m.items) == 0 {
			return m, nil
		}
		item := m.items[m.cursor]
		if !m.session.StartReviewEdit(item.ID) {
			return m, nil
		}
		m.form = newEditForm(item)
		m.state = stateEditing
		return m, textinput.Blink

	case key.Matches(msg, m.keys.Discard):
		if len(m.items) == 0 {
			return m, nil
		}
		m.discardID = m.items[m.cursor].ID
		m.state = stateConfirmDiscard

	case key.Matches(msg, m.keys.Save):
		if len(m.items) == 0 {
			return m, nil
		}
		m.state = stateSaving
		return m, tea.Batch(m.saveCmd(), saveTick())

	case key.Matches(msg, m.keys.Help):
		m.prev = m.state
		m.state = stateHelp

	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) updateEditing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		m.session.FinishReviewEdit()
		return m.backToList(), nil

	case key.Matches(msg, m.keys.Apply):
		patch, err := m.form.patch()
		if err != nil {
			m.form.errMsg = err.Error()
			return m, nil
		}
		if !patch.IsZero() {
			m.session.UpdateReviewItem(m.form.item.ID, patch)
		}
		m.session.FinishReviewEdit()
		return m.backToList(), nil

	case key.Matches(msg, m.keys.NextField):
		var cmd tea.Cmd
		m.form, cmd = m.form.moveFocus(1)
		return m, cmd

	case key.Matches(msg, m.keys.PrevField):
		var cmd tea.Cmd
		m.form, cmd = m.form.moveFocus(-1)
		return m, cmd
	}

	var cmd tea.Cmd
	m.form, cmd = m.form.Update(msg)
	return m, cmd
}

func (m Model) updateConfirmDiscard(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y", "enter":
		m.session.DiscardReviewItem(m.discardID)
		return m.backToList(), nil
	case "n", "N", "esc", "q":
		return m.backToList(), nil
	}
	return m, nil
}

func (m Model) updateSummary(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit), key.Matches(msg, m.keys.Apply):
		return m, tea.Quit
	}
	return m, nil
}

// backToList refreshes the item slice and clamps the cursor after an
// operation that may have shrunk it.
func (m Model) backToList() Model {
	m.items = m.session.ReviewItems()
	if m.cursor >= len(m.items) {
		m.cursor = len(m.items) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	m.discardID = ""
	m.state = stateList
	return m
}

func (m Model) saveCmd() tea.Cmd {
	ctx := m.ctx
	session := m.session
	return func() tea.Msg {
		saved, failed, err := session.SaveBatch(ctx)
		return saveDoneMsg{err: err, saved: saved, failed: failed}
	}
}

func saveTick() tea.Cmd {
	return tea.Tick(120*time.Millisecond, func(t time.Time) tea.Msg {
		return saveTickMsg(t)
	})
}
