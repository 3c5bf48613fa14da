// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/pulse-chat/pulse/chat"
	"github.com/pulse-chat/pulse/lib/tui"
)

const (
	rosterMaxWidth  = 28
	minWidth        = 40
	minHeight       = 8
	noticeFadeDelay = 5 * time.Second
	messagePrompt   = "> "
	searchPrompt    = "search> "
)

const commandHelp = "/open <topic> · /search <name> · /filter <text> · /older · /quit"

// Options configures NewModel.
type Options struct {
	// InitialTopic is opened when the screen starts. Optional.
	InitialTopic string

	// Theme and Keys default to DefaultTheme and DefaultKeyMap.
	Theme *tui.Theme
	Keys  *KeyMap
}

// Model is the bubbletea model for the chat screen. It holds copies of
// component state delivered by the Bridge and reports user actions
// through Actions.
type Model struct {
	actions Actions
	theme   tui.Theme
	keys    KeyMap

	width  int
	height int
	self   string

	roster []chat.RosterEntry
	filter string
	cursor int

	active   string
	topics   map[string]TopicMsg
	presence map[string]chat.PresenceState

	// picker is non-nil while the search popup is open. The input line
	// holds its query.
	picker *tui.Picker

	input    textinput.Model
	viewport viewport.Model
	follow   bool

	notice       string
	noticeError  bool
	noticeSerial int
	disconnected bool

	initialTopic string
}

type openTopicMsg struct {
	topic string
}

// NewModel returns the screen model. actions receives every user
// request.
func NewModel(actions Actions, options Options) Model {
	theme := tui.DefaultTheme
	if options.Theme != nil {
		theme = *options.Theme
	}
	keys := DefaultKeyMap
	if options.Keys != nil {
		keys = *options.Keys
	}

	input := textinput.New()
	input.Prompt = messagePrompt
	input.Placeholder = "Type a message, or /help"
	input.CharLimit = 4000
	input.Focus()

	return Model{
		actions:      actions,
		theme:        theme,
		keys:         keys,
		topics:       make(map[string]TopicMsg),
		presence:     make(map[string]chat.PresenceState),
		input:        input,
		viewport:     viewport.New(0, 0),
		follow:       true,
		initialTopic: options.InitialTopic,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	if m.initialTopic == "" {
		return textinput.Blink
	}
	topic := m.initialTopic
	return tea.Batch(textinput.Blink, func() tea.Msg { return openTopicMsg{topic: topic} })
}

// Active returns the topic shown in the conversation pane.
func (m Model) Active() string { return m.active }

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case openTopicMsg:
		m.open(msg.topic)
		return m, nil

	case SelfMsg:
		m.self = msg.UserID
		return m, nil

	case RosterMsg:
		m.roster = msg.Entries
		m.clampCursor()
		return m, nil

	case TopicMsg:
		m.topics[msg.Snapshot.Name] = msg
		if msg.Snapshot.Name == m.active {
			m.refreshConversation()
		}
		return m, nil

	case PresenceMsg:
		if msg.State.Online || msg.State.Typing {
			m.presence[msg.State.Topic] = msg.State
		} else {
			delete(m.presence, msg.State.Topic)
		}
		return m, nil

	case SearchMsg:
		return m, m.searchResults(msg.Event)

	case NoticeMsg:
		return m, m.setNotice(msg.Text, msg.Error)

	case DisconnectedMsg:
		m.disconnected = true
		text := "Connection lost."
		if msg.Err != nil {
			text = fmt.Sprintf("Connection lost: %v", msg.Err)
		}
		return m, m.setNotice(text, true)

	case logRecordMsg:
		return m, m.setNotice(msg.Summary, msg.Level >= slog.LevelWarn)

	case noticeFadeMsg:
		if msg.serial == m.noticeSerial {
			m.notice = ""
			m.noticeError = false
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case m.picker != nil && key.Matches(msg, m.keys.PickerUp):
		m.picker.MoveUp()
		return m, nil

	case m.picker != nil && key.Matches(msg, m.keys.PickerDown):
		m.picker.MoveDown()
		return m, nil

	case key.Matches(msg, m.keys.Cancel):
		if m.picker != nil {
			m.closeSearch()
		} else if m.filter != "" {
			m.filter = ""
			m.clampCursor()
		}
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		return m.submit()

	case key.Matches(msg, m.keys.RosterUp):
		m.cursor--
		m.clampCursor()
		return m, nil

	case key.Matches(msg, m.keys.RosterDown):
		m.cursor++
		m.clampCursor()
		return m, nil

	case key.Matches(msg, m.keys.OpenTopic):
		if entries := m.visibleRoster(); m.cursor < len(entries) {
			m.open(entries[m.cursor].Topic)
		}
		return m, nil

	case key.Matches(msg, m.keys.PageUp):
		m.pageUp()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.SetYOffset(m.viewport.YOffset + max(m.viewport.Height, 1))
		m.follow = m.viewport.AtBottom()
		return m, nil

	case key.Matches(msg, m.keys.End):
		m.viewport.GotoBottom()
		m.follow = true
		return m, nil
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if after := m.input.Value(); after != before {
		m.inputChanged(after)
	}
	return m, cmd
}

func (m *Model) inputChanged(value string) {
	if m.picker != nil {
		query := strings.TrimSpace(value)
		m.picker.Title = "Search: " + query
		m.actions.Search(query)
		return
	}
	if m.active == "" || m.disconnected || value == "" || strings.HasPrefix(value, "/") {
		return
	}
	m.actions.Typing(m.active)
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	if m.picker != nil {
		option, ok := m.picker.Selected()
		m.closeSearch()
		if ok {
			m.open(option.Value)
		}
		return m, nil
	}

	line := strings.TrimSpace(m.input.Value())
	m.input.SetValue("")
	if line == "" {
		return m, nil
	}
	if strings.HasPrefix(line, "/") {
		return m.command(line)
	}
	if m.active == "" {
		return m, m.setNotice("Open a conversation first: Tab, /open or /search.", true)
	}
	if m.disconnected {
		return m, m.setNotice("Not connected; the message was not sent.", true)
	}
	m.actions.Send(m.active, line)
	m.follow = true
	return m, nil
}

func (m Model) command(line string) (tea.Model, tea.Cmd) {
	name, args, _ := strings.Cut(line, " ")
	args = strings.TrimSpace(args)
	switch name {
	case "/quit", "/q":
		return m, tea.Quit
	case "/open":
		if args == "" {
			return m, m.setNotice("Usage: /open <topic>", true)
		}
		m.open(args)
	case "/search":
		m.openSearch(args)
	case "/filter":
		m.filter = args
		m.cursor = 0
		m.clampCursor()
	case "/older":
		if m.active == "" {
			return m, m.setNotice("No conversation is open.", true)
		}
		m.actions.LoadOlder(m.active)
	case "/help":
		return m, m.setNotice(commandHelp, false)
	default:
		return m, m.setNotice(fmt.Sprintf("Unknown command %s; try /help.", name), true)
	}
	return m, nil
}

func (m *Model) open(topic string) {
	if topic == "" {
		return
	}
	m.active = topic
	m.follow = true
	for index, entry := range m.visibleRoster() {
		if entry.Topic == topic {
			m.cursor = index
			break
		}
	}
	m.actions.Open(topic)
	m.refreshConversation()
}

func (m *Model) openSearch(query string) {
	m.picker = &tui.Picker{Title: "Search: " + query}
	m.input.Prompt = searchPrompt
	m.input.SetValue(query)
	m.input.CursorEnd()
	m.actions.Search(query)
}

func (m *Model) closeSearch() {
	m.picker = nil
	m.input.Prompt = messagePrompt
	m.input.SetValue("")
	m.actions.Search("")
}

func (m *Model) searchResults(event chat.SearchEvent) tea.Cmd {
	if m.picker == nil {
		return nil
	}
	if event.Err != nil {
		return m.setNotice(fmt.Sprintf("Search failed: %v", event.Err), true)
	}
	options := make([]tui.PickerOption, len(event.Results))
	for index, result := range event.Results {
		label := result.DisplayName
		if result.DisplayName != result.TopicID {
			label += " · " + result.TopicID
		}
		options[index] = tui.PickerOption{Label: label, Value: result.TopicID}
	}
	m.picker.Options = options
	if m.picker.Cursor >= len(options) {
		m.picker.Cursor = 0
	}
	return nil
}

func (m *Model) pageUp() {
	m.viewport.SetYOffset(m.viewport.YOffset - max(m.viewport.Height, 1))
	m.follow = false
	if m.viewport.YOffset == 0 && m.active != "" && m.topics[m.active].HasOlder {
		m.actions.LoadOlder(m.active)
	}
}

func (m *Model) setNotice(text string, isError bool) tea.Cmd {
	m.noticeSerial++
	m.notice = text
	m.noticeError = isError
	serial := m.noticeSerial
	return tea.Tick(noticeFadeDelay, func(time.Time) tea.Msg {
		return noticeFadeMsg{serial: serial}
	})
}

func (m *Model) visibleRoster() []chat.RosterEntry {
	return chat.FilterEntries(m.roster, m.filter)
}

func (m *Model) clampCursor() {
	count := len(m.visibleRoster())
	m.cursor = max(min(m.cursor, count-1), 0)
}

// Layout: a title row, the body (roster, separator, conversation),
// the input row, and the status row.
func (m Model) rosterWidth() int { return min(rosterMaxWidth, m.width/3) }

func (m Model) bodyHeight() int { return max(m.height-3, 1) }

// conversationWidth excludes the scrollbar column.
func (m Model) conversationWidth() int { return max(m.width-m.rosterWidth()-2, 1) }

func (m *Model) layout() {
	m.viewport.Width = m.conversationWidth()
	m.viewport.Height = max(m.bodyHeight()-1, 1)
	m.input.Width = max(m.width-len(searchPrompt)-1, 1)
	m.refreshConversation()
}

// refreshConversation re-renders the active topic into the viewport.
// While following, the view sticks to the newest message. Otherwise
// it keeps its distance from the bottom, so a prepended history page
// does not move what is on screen.
func (m *Model) refreshConversation() {
	fromBottom := m.viewport.TotalLineCount() - m.viewport.YOffset
	m.viewport.SetContent(m.renderMessages())
	if m.follow {
		m.viewport.GotoBottom()
		return
	}
	m.viewport.SetYOffset(m.viewport.TotalLineCount() - fromBottom)
}

func (m Model) renderMessages() string {
	if m.active == "" {
		return m.faint().Render("No conversation open. Pick one with C-n/C-p and Tab, or /search for people.")
	}
	topic, ok := m.topics[m.active]
	if !ok || (len(topic.Snapshot.Messages) == 0 && len(topic.Snapshot.Pending) == 0) {
		return m.faint().Render("No messages yet.")
	}

	width := m.conversationWidth()
	var lines []string
	if topic.HasOlder {
		lines = append(lines, m.faint().Render("↑ PgUp for older messages"))
	}
	var lastDay string
	for _, message := range topic.Snapshot.Messages {
		if !message.Timestamp.IsZero() {
			if day := message.Timestamp.Local().Format("Mon 2 Jan 2006"); day != lastDay {
				lines = append(lines, m.faint().Render("── "+day+" ──"))
				lastDay = day
			}
		}
		lines = append(lines, m.renderMessage(message, width))
	}
	for _, send := range topic.Snapshot.Pending {
		lines = append(lines, m.renderPending(send, width))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderMessage(message chat.Message, width int) string {
	stamp := "     "
	if !message.Timestamp.IsZero() {
		stamp = message.Timestamp.Local().Format("15:04")
	}
	authorColor := m.theme.OtherName
	if message.Outgoing {
		authorColor = m.theme.OwnName
	}
	prefix := m.faint().Render(stamp) + " " +
		lipgloss.NewStyle().Foreground(authorColor).Bold(true).Render(m.author(message)) + ": "

	body := lipgloss.NewStyle().Foreground(m.theme.NormalText).Render(message.Text)
	if message.Outgoing {
		body += " " + lipgloss.NewStyle().Foreground(m.theme.StatusColor(message.Status)).Render(tui.StatusMark(message.Status))
	}
	return hangingIndent(prefix, body, width)
}

func (m Model) renderPending(send chat.PendingSend, width int) string {
	prefix := m.faint().Render("      you: ")
	state := "sending…"
	color := m.theme.Pending
	if send.TimedOut {
		state = "not confirmed"
		color = m.theme.Error
	}
	body := lipgloss.NewStyle().Foreground(m.theme.Pending).Render(send.Text) + " " +
		lipgloss.NewStyle().Foreground(color).Italic(true).Render(state)
	return hangingIndent(prefix, body, width)
}

// hangingIndent wraps body to width and indents continuation lines
// under the first character after prefix.
func hangingIndent(prefix, body string, width int) string {
	indent := ansi.StringWidth(prefix)
	wrapped := ansi.Wrap(body, max(width-indent, 8), "")
	lines := strings.Split(wrapped, "\n")
	for index := 1; index < len(lines); index++ {
		lines[index] = strings.Repeat(" ", indent) + lines[index]
	}
	return prefix + strings.Join(lines, "\n")
}

func (m Model) author(message chat.Message) string {
	if message.Outgoing {
		return "you"
	}
	if message.From == m.active {
		if name := m.topics[m.active].Snapshot.DisplayName; name != "" {
			return name
		}
	}
	for _, entry := range m.roster {
		if entry.Topic == message.From {
			return entry.DisplayName
		}
	}
	return message.From
}

func (m Model) faint() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(m.theme.FaintText)
}

// View implements tea.Model.
func (m Model) View() string {
	if m.width == 0 {
		return ""
	}
	if m.width < minWidth || m.height < minHeight {
		return "Terminal too small for pulse chat."
	}

	rosterWidth := m.rosterWidth()
	bodyHeight := m.bodyHeight()
	rosterLines := m.renderRoster(rosterWidth, bodyHeight)
	conversationLines := m.renderConversation(bodyHeight)
	separator := lipgloss.NewStyle().Foreground(m.theme.BorderColor).Render("│")

	lines := make([]string, 0, bodyHeight+3)
	lines = append(lines, m.renderTitle())
	for row := range bodyHeight {
		lines = append(lines, rosterLines[row]+separator+conversationLines[row])
	}
	lines = append(lines, tui.Fit(m.input.View(), m.width), m.renderStatus())
	view := strings.Join(lines, "\n")

	if m.picker != nil {
		m.picker.MaxWidth = m.width - rosterWidth - 2
		m.picker.AnchorX = rosterWidth + 2
		m.picker.AnchorY = 2
		view = tui.SpliceOverlay(view, m.picker.Render(m.theme), m.picker.AnchorX, m.picker.AnchorY)
	}
	return view
}

func (m Model) renderTitle() string {
	title := " pulse"
	if m.self != "" {
		title += " · " + m.self
	}
	style := lipgloss.NewStyle().Bold(true).Foreground(m.theme.HeaderForeground)
	line := style.Render(title)
	if m.disconnected {
		line += "  " + lipgloss.NewStyle().Foreground(m.theme.Error).Render("disconnected")
	}
	return tui.Fit(line, m.width)
}

func (m Model) renderRoster(width, height int) []string {
	lines := make([]string, height)
	header := "Chats"
	if m.filter != "" {
		header = "Filter: " + m.filter
	}
	lines[0] = lipgloss.NewStyle().Bold(true).Foreground(m.theme.HeaderForeground).Render(tui.Fit(" "+header, width))

	entries := m.visibleRoster()
	rows := height - 1
	start := max(0, m.cursor-rows+1)
	for row := range rows {
		index := start + row
		if index >= len(entries) {
			lines[row+1] = strings.Repeat(" ", width)
			continue
		}
		lines[row+1] = m.renderRosterEntry(entries[index], index == m.cursor, width)
	}
	if len(entries) == 0 && rows > 0 {
		empty := "no conversations"
		if m.filter != "" {
			empty = "no matches"
		}
		lines[1] = m.faint().Render(tui.Fit(" "+empty, width))
	}
	return lines
}

func (m Model) renderRosterEntry(entry chat.RosterEntry, selected bool, width int) string {
	state := m.presence[entry.Topic]
	marker := m.faint().Render("○")
	switch {
	case state.Typing:
		marker = lipgloss.NewStyle().Foreground(m.theme.Typing).Render("…")
	case entry.Online || state.Online:
		marker = lipgloss.NewStyle().Foreground(m.theme.Online).Render("●")
	}

	badge := ""
	if entry.Unread > 0 {
		badge = fmt.Sprintf(" %d", entry.Unread)
	}
	nameWidth := max(width-3-len(badge), 1)

	nameStyle := lipgloss.NewStyle().Foreground(m.theme.NormalText)
	if selected {
		nameStyle = nameStyle.Foreground(m.theme.SelectedForeground).Background(m.theme.SelectedBackground)
	}
	if entry.Topic == m.active {
		nameStyle = nameStyle.Bold(true)
	}
	line := " " + marker + " " + nameStyle.Render(tui.Fit(entry.DisplayName, nameWidth))
	if badge != "" {
		line += lipgloss.NewStyle().Foreground(m.theme.Unread).Bold(true).Render(badge)
	}
	return line
}

func (m Model) renderConversation(height int) []string {
	width := m.conversationWidth()
	lines := make([]string, height)
	lines[0] = m.renderHeader(width + 1)

	body := strings.Split(m.viewport.View(), "\n")
	moreAbove := m.active != "" && m.topics[m.active].HasOlder && m.viewport.YOffset == 0
	scrollbar := strings.Split(tui.RenderScrollbar(m.theme, height-1,
		m.viewport.TotalLineCount(), m.viewport.Height, m.viewport.YOffset, !m.follow, moreAbove), "\n")
	for row := 1; row < height; row++ {
		text := ""
		if row-1 < len(body) {
			text = body[row-1]
		}
		bar := " "
		if row-1 < len(scrollbar) {
			bar = scrollbar[row-1]
		}
		lines[row] = tui.Fit(text, width) + bar
	}
	return lines
}

func (m Model) renderHeader(width int) string {
	if m.active == "" {
		return strings.Repeat(" ", width)
	}
	topic := m.topics[m.active]
	name := topic.Snapshot.DisplayName
	if name == "" {
		name = m.active
	}
	header := lipgloss.NewStyle().Bold(true).Foreground(m.theme.HeaderForeground).Render(" " + name)

	state := m.presence[m.active]
	switch {
	case !topic.Snapshot.Subscribed:
		header += "  " + m.faint().Render("joining…")
	case state.Typing:
		header += "  " + lipgloss.NewStyle().Foreground(m.theme.Typing).Render("typing…")
	case state.Online || topic.Snapshot.Online:
		header += "  " + lipgloss.NewStyle().Foreground(m.theme.Online).Render("online")
	}
	return tui.Fit(header, width)
}

func (m Model) renderStatus() string {
	if m.notice != "" {
		color := m.theme.NormalText
		if m.noticeError {
			color = m.theme.Error
		}
		return lipgloss.NewStyle().Foreground(color).Render(tui.Fit(" "+m.notice, m.width))
	}
	return lipgloss.NewStyle().Foreground(m.theme.HelpText).Render(tui.Fit(" "+m.keys.helpLine(), m.width))
}
