package chat

import (
	"context"
	"fmt"
	"strings"

	"mathbot/pkg/channel/console"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type role int

const (
	roleUser role = iota
	roleBot
	roleDirect
	roleError
)

type card struct {
	role      role
	id        string
	replyTo   string
	text      string
	path      string
	code      string
	footer    string
	reactions []string
	edited    bool
	deleted   bool
}

type entryMsg struct {
	entry console.Entry
}

type submitResultMsg struct {
	err error
}

type model struct {
	ctx       context.Context
	transport Transport
	info      RuntimeInfo

	theme     theme
	spinner   spinner.Model
	input     textinput.Model
	viewport  viewport.Model
	cards     []card
	byID      map[string]int
	width     int
	height    int
	isReady   bool
	pending   int
	renders   int
	lastErr   string
	followLog bool
}

func newModel(ctx context.Context, transport Transport, info RuntimeInfo) *model {
	spin := spinner.New()
	spin.Spinner = spinner.Points
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	in := textinput.New()
	in.Prompt = ""
	in.Placeholder = "Write `$\\frac{a}{b}$`, or /edit <id> <text>, /delete <id>"
	in.Focus()
	in.CharLimit = 0

	vp := viewport.New(80, 12)

	return &model{
		ctx:       ctx,
		transport: transport,
		info:      info,
		theme:     defaultTheme(),
		spinner:   spin,
		input:     in,
		viewport:  vp,
		byID:      make(map[string]int),
		width:     100,
		height:    28,
		followLog: true,
	}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForEntryCmd(m.transport))
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		m.resizeComponents()
		m.refreshViewport(false)
		m.isReady = true
		return m, nil
	case tea.MouseMsg:
		m.handleViewportMouse(typed)
		return m, nil
	case tea.KeyMsg:
		switch typed.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		}

		if handled := m.handleViewportKey(typed); handled {
			return m, nil
		}

		if typed.String() == "enter" {
			return m, m.submit(m.input.Value())
		}
	case entryMsg:
		m.applyEntry(typed.entry)
		m.refreshViewport(false)
		return m, waitForEntryCmd(m.transport)
	case submitResultMsg:
		if typed.err != nil {
			m.lastErr = typed.err.Error()
			m.cards = append(m.cards, card{role: roleError, text: typed.err.Error()})
			m.refreshViewport(false)
		}
		return m, nil
	case spinner.TickMsg:
		if m.pending == 0 {
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(typed)
		return m, cmd
	}

	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) submit(value string) tea.Cmd {
	parsed, err := parseCommand(value)
	if err != nil {
		if strings.TrimSpace(value) == "" {
			return nil
		}
		m.lastErr = err.Error()
		return nil
	}
	if parsed.kind == commandExit {
		return tea.Quit
	}

	m.lastErr = ""
	m.input.SetValue("")
	m.followLog = true

	startSpinner := m.pending == 0
	if parsed.kind != commandDelete {
		m.pending++
	}

	submitCmd := submitCmd(m.ctx, m.transport, parsed)
	if startSpinner && m.pending > 0 {
		return tea.Batch(m.spinner.Tick, submitCmd)
	}
	return submitCmd
}

// applyEntry folds one transcript change into the cards.
func (m *model) applyEntry(entry console.Entry) {
	switch entry.Kind {
	case console.EntryUser:
		m.appendCard(card{role: roleUser, id: entry.ID, text: entry.Text})
	case console.EntryEdited:
		if c := m.card(entry.ID); c != nil {
			c.text = entry.Text
			c.edited = true
		}
	case console.EntryImage:
		m.settle()
		m.renders++
		m.appendCard(card{role: roleBot, id: entry.ID, replyTo: entry.ReplyTo, path: entry.Path})
	case console.EntryText:
		m.settle()
		m.appendCard(card{role: roleBot, id: entry.ID, replyTo: entry.ReplyTo, text: entry.Text})
	case console.EntryDeleted:
		if c := m.card(entry.ID); c != nil {
			c.deleted = true
		}
	case console.EntryReaction:
		m.settle()
		if c := m.card(entry.ID); c != nil {
			c.reactions = toggleReaction(c.reactions, entry.Emoji, entry.Removed)
		}
	case console.EntryDirect:
		m.appendCard(card{role: roleDirect, text: entry.Direct.Text, code: entry.Direct.Code, footer: entry.Direct.Footer})
	}
}

// settle marks one pending submission as answered.
func (m *model) settle() {
	if m.pending > 0 {
		m.pending--
	}
}

func (m *model) appendCard(c card) {
	if c.id != "" {
		m.byID[c.id] = len(m.cards)
	}
	m.cards = append(m.cards, c)
}

func (m *model) card(id string) *card {
	idx, ok := m.byID[id]
	if !ok {
		return nil
	}
	return &m.cards[idx]
}

func toggleReaction(reactions []string, emoji string, removed bool) []string {
	out := make([]string, 0, len(reactions)+1)
	for _, existing := range reactions {
		if existing != emoji {
			out = append(out, existing)
		}
	}
	if !removed {
		out = append(out, emoji)
	}
	return out
}

func (m *model) View() string {
	if !m.isReady {
		m.resizeComponents()
		m.refreshViewport(false)
	}

	header := m.theme.header.Width(m.width - 2).Render("∑ mathbot console")
	sandbox := "off"
	if m.info.Sandbox {
		sandbox = "on"
	}
	meta := m.theme.headerMeta.Render(fmt.Sprintf(
		"grammar:%s · latex:%s · sandbox:%s · renders:%d · images:%s",
		displayOrNA(m.info.Grammar),
		displayOrNA(m.info.Latex),
		sandbox,
		m.renders,
		displayOrNA(m.info.ImageDir),
	))
	line := m.theme.divider.Width(m.width - 2).Render(strings.Repeat("═", max(8, m.width-2)))

	status := m.theme.status.Render("💡 Enter send  ·  PgUp/PgDn scroll  ·  End jump latest  ·  🛑 Ctrl+C/Esc quit")
	if m.pending > 0 {
		status = m.theme.statusBusy.Render(fmt.Sprintf("%s ⚡ rendering...", m.spinner.View()))
	}
	if m.lastErr != "" {
		status = m.theme.statusErr.Render("🚨 " + m.lastErr)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		meta,
		line,
		m.theme.viewport.Width(m.width-2).Render(m.viewport.View()),
		status,
		m.theme.inputLabel.Render("👤 You")+" "+m.theme.hint.Render("(type /exit, quit, or :q)"),
		m.theme.input.Width(m.width-2).Render(m.input.View()),
	)
}

func (m *model) resizeComponents() {
	w := m.width - 6
	if w < 50 {
		w = 50
	}
	h := m.height - 10
	if h < 8 {
		h = 8
	}

	m.viewport.Width = w
	m.viewport.Height = h
	m.input.Width = w - 2
}

func (m *model) refreshViewport(forceBottom bool) {
	previousOffset := m.viewport.YOffset
	sections := make([]string, 0, len(m.cards))
	for _, item := range m.cards {
		sections = append(sections, m.renderItem(item))
	}

	m.viewport.SetContent(strings.Join(sections, "\n\n"))
	if m.followLog || forceBottom {
		m.viewport.GotoBottom()
		m.followLog = true
		return
	}

	maxOffset := m.viewport.TotalLineCount() - m.viewport.Height
	if maxOffset < 0 {
		maxOffset = 0
	}
	if previousOffset > maxOffset {
		previousOffset = maxOffset
	}
	m.viewport.SetYOffset(previousOffset)
}

func (m *model) renderItem(item card) string {
	width := m.viewport.Width

	switch item.role {
	case roleUser:
		title := fmt.Sprintf("▛▚ [ 👤 #%s ] ▞▜", item.id)
		if item.edited {
			title += " " + m.theme.hint.Render("(edited)")
		}
		body := strings.TrimSpace(item.text)
		if len(item.reactions) > 0 {
			body += "\n\n" + strings.Join(item.reactions, " ")
		}
		return m.renderCard(m.theme.userTitle.Render(title), m.boxOrDeleted(m.theme.userBox, item, body, width))
	case roleBot:
		title := fmt.Sprintf("▛▚ [ ∑ #%s ↩ #%s ] ▞▜", item.id, item.replyTo)
		body := strings.TrimSpace(item.text)
		if item.path != "" {
			body = "🖼  " + item.path
		}
		return m.renderCard(m.theme.botTitle.Render(title), m.boxOrDeleted(m.theme.botBox, item, body, width))
	case roleDirect:
		body := strings.TrimSpace(item.text)
		if item.code != "" {
			body += "\n\n" + m.theme.code.Render(strings.TrimSpace(item.code))
		}
		if item.footer != "" {
			body += "\n\n" + m.theme.hint.Render(item.footer)
		}
		return m.renderCard(m.theme.directTitle.Render("▛▚ [ ✉ private ] ▞▜"), m.theme.directBox.Width(width).Render(body))
	default:
		return m.renderCard(m.theme.errorTitle.Render("▛▚ [ERROR] ▞▜"), m.theme.errorBox.Width(width).Render(strings.TrimSpace(item.text)))
	}
}

func (m *model) boxOrDeleted(box lipgloss.Style, item card, body string, width int) string {
	if item.deleted {
		return m.theme.deletedBox.Width(width).Render("(deleted)")
	}
	return box.Width(width).Render(body)
}

func (m *model) renderCard(title string, body string) string {
	return lipgloss.JoinVertical(lipgloss.Left, title, body)
}

func (m *model) handleViewportKey(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "pgup", "ctrl+b", "alt+up", "ctrl+up":
		m.viewport.PageUp()
		m.followLog = false
		return true
	case "pgdown", "ctrl+f", "alt+down", "ctrl+down":
		m.viewport.PageDown()
		if m.viewport.AtBottom() {
			m.followLog = true
		}
		return true
	case "home":
		m.viewport.GotoTop()
		m.followLog = false
		return true
	case "end":
		m.viewport.GotoBottom()
		m.followLog = true
		return true
	default:
		return false
	}
}

func (m *model) handleViewportMouse(msg tea.MouseMsg) bool {
	if msg.Action != tea.MouseActionPress {
		return false
	}

	switch msg.Button {
	case tea.MouseButtonWheelUp:
		m.viewport.LineUp(3)
		m.followLog = false
		return true
	case tea.MouseButtonWheelDown:
		m.viewport.LineDown(3)
		if m.viewport.AtBottom() {
			m.followLog = true
		}
		return true
	default:
		return false
	}
}

func waitForEntryCmd(transport Transport) tea.Cmd {
	if transport == nil {
		return nil
	}

	return func() tea.Msg {
		entry, ok := <-transport.Entries()
		if !ok {
			return nil
		}
		return entryMsg{entry: entry}
	}
}

func submitCmd(ctx context.Context, transport Transport, c command) tea.Cmd {
	return func() tea.Msg {
		var err error
		switch c.kind {
		case commandPost:
			_, err = transport.Post(ctx, c.text)
		case commandEdit:
			err = transport.Edit(ctx, c.id, c.text)
		case commandDelete:
			err = transport.Delete(ctx, c.id)
		}
		return submitResultMsg{err: err}
	}
}

func displayOrNA(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "n/a"
	}

	return trimmed
}
