package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"cellar/internal/client"
	"cellar/internal/item"
	"cellar/internal/logging"
)

// clipboardWriteAll is a package-level variable to allow mocking in tests.
var clipboardWriteAll = clipboard.WriteAll

// ItemAPI is the slice of the HTTP client the browser drives. The browser
// never talks to the store directly; everything goes through the server so
// the age gate is enforced in one place.
type ItemAPI interface {
	List(ctx context.Context) ([]item.Item, error)
	Create(ctx context.Context, name string) (item.Item, error)
	Delete(ctx context.Context, id int64) error
}

// Messages for tea updates. Failures carry enough of the request to compose
// the user-facing message in the reducer.
type (
	itemsLoadedMsg  []item.Item
	itemCreatedMsg  item.Item
	itemDeletedMsg  int64
	loadFailedMsg   struct{ err error }
	createFailedMsg struct{ err error }
	deleteFailedMsg struct {
		item item.Item
		err  error
	}
)

// Config configures the browser.
type Config struct {
	// MinAgeDays shown in help and age messages. Zero means the default
	// gate.
	MinAgeDays int

	// Timeout per request. Zero means 10s.
	Timeout time.Duration

	// DarkMode forces the dark theme instead of auto-detection.
	DarkMode bool
}

// BrowserModel is the interactive item browser: a list of items, a draft
// input, and the delete flow with the age gate surfaced inline.
type BrowserModel struct {
	// UI components
	textinput textinput.Model
	viewport  viewport.Model
	spinner   spinner.Model
	styles    Styles
	renderer  *glamour.TermRenderer

	// Backend
	api ItemAPI

	// State
	items      []item.Item
	cursor     int
	isLoading  bool
	status     string
	errText    string
	showHelp   bool
	width      int
	height     int
	ready      bool
	minAgeDays int
	timeout    time.Duration

	now func() time.Time
}

// NewBrowserModel creates the browser over the given API.
func NewBrowserModel(api ItemAPI, cfg Config) BrowserModel {
	if cfg.MinAgeDays <= 0 {
		cfg.MinAgeDays = item.DefaultMinAgeDays
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	styles := DefaultStyles()
	if cfg.DarkMode {
		styles = NewStyles(DarkTheme())
	}

	ti := textinput.New()
	ti.Placeholder = "New item name... (Enter to add)"
	ti.Focus()
	ti.Prompt = "│ "
	ti.CharLimit = 256
	ti.Width = 60
	ti.PromptStyle = styles.Prompt
	ti.TextStyle = styles.UserInput

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	vp := viewport.New(80, 20)
	vp.SetContent("")

	renderer, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)

	return BrowserModel{
		textinput:  ti,
		spinner:    sp,
		viewport:   vp,
		styles:     styles,
		renderer:   renderer,
		api:        api,
		items:      []item.Item{},
		minAgeDays: cfg.MinAgeDays,
		timeout:    cfg.Timeout,
		now:        time.Now,
	}
}

// Init triggers the initial load.
func (m BrowserModel) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		m.loadItems(),
	)
}

// Update handles messages.
func (m BrowserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		spCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit

		case tea.KeyEsc:
			if m.showHelp {
				m.showHelp = false
				return m, nil
			}
			return m, tea.Quit

		case tea.KeyCtrlG:
			m.showHelp = !m.showHelp
			return m, nil

		case tea.KeyEnter:
			if !m.isLoading {
				return m.handleSubmit()
			}
			return m, nil

		case tea.KeyUp:
			if m.cursor > 0 {
				m.cursor--
				m.syncViewport()
			}
			return m, nil

		case tea.KeyDown:
			if m.cursor < len(m.items)-1 {
				m.cursor++
				m.syncViewport()
			}
			return m, nil

		case tea.KeyCtrlD, tea.KeyDelete:
			if !m.isLoading {
				return m.handleDelete()
			}
			return m, nil

		case tea.KeyCtrlR:
			if !m.isLoading {
				m.isLoading = true
				m.status = ""
				return m, tea.Batch(m.spinner.Tick, m.loadItems())
			}
			return m, nil

		case tea.KeyCtrlY:
			return m.handleCopy()
		}

		// Everything else is typing.
		m.textinput, tiCmd = m.textinput.Update(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 3
		inputHeight := 3
		footerHeight := 3

		if !m.ready {
			m.viewport = viewport.New(msg.Width-4, msg.Height-headerHeight-inputHeight-footerHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width - 4
			m.viewport.Height = msg.Height - headerHeight - inputHeight - footerHeight
		}
		m.textinput.Width = msg.Width - 8

		if m.renderer != nil {
			m.renderer, _ = glamour.NewTermRenderer(
				glamour.WithAutoStyle(),
				glamour.WithWordWrap(msg.Width-8),
			)
		}
		m.syncViewport()

	case spinner.TickMsg:
		if m.isLoading {
			m.spinner, spCmd = m.spinner.Update(msg)
			return m, spCmd
		}

	case itemsLoadedMsg:
		m.isLoading = false
		m.items = msg
		m.errText = ""
		m.status = fmt.Sprintf("%d items", len(m.items))
		m.clampCursor()
		m.syncViewport()

	case itemCreatedMsg:
		m.isLoading = false
		m.items = appendItem(m.items, item.Item(msg))
		m.cursor = len(m.items) - 1
		m.errText = ""
		m.status = fmt.Sprintf("Added %q", msg.Name)
		m.textinput.Reset()
		m.syncViewport()

	case itemDeletedMsg:
		m.isLoading = false
		m.items = removeItem(m.items, int64(msg))
		m.errText = ""
		m.status = "Item deleted"
		m.clampCursor()
		m.syncViewport()

	case loadFailedMsg:
		m.isLoading = false
		m.errText = "Failed to load items: " + reason(msg.err)

	case createFailedMsg:
		m.isLoading = false
		m.errText = "Failed to add item: " + reason(msg.err)

	case deleteFailedMsg:
		m.isLoading = false
		m.errText = m.deleteFailureText(msg)
	}

	m.viewport, vpCmd = m.viewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd, spCmd)
}

// handleSubmit sends the draft as a new item. Blank drafts are a no-op.
func (m BrowserModel) handleSubmit() (tea.Model, tea.Cmd) {
	if strings.TrimSpace(m.textinput.Value()) == "" {
		return m, nil
	}
	m.isLoading = true
	m.status = ""
	return m, tea.Batch(m.spinner.Tick, m.createItem(m.textinput.Value()))
}

// handleDelete requests deletion of the selected item.
func (m BrowserModel) handleDelete() (tea.Model, tea.Cmd) {
	if len(m.items) == 0 || m.cursor >= len(m.items) {
		return m, nil
	}
	target := m.items[m.cursor]
	m.isLoading = true
	m.status = ""
	return m, tea.Batch(m.spinner.Tick, m.deleteItem(target))
}

// handleCopy puts the selected item's name on the clipboard.
func (m BrowserModel) handleCopy() (tea.Model, tea.Cmd) {
	if len(m.items) == 0 || m.cursor >= len(m.items) {
		return m, nil
	}
	name := m.items[m.cursor].Name
	if err := clipboardWriteAll(name); err != nil {
		m.errText = "Failed to copy name to clipboard"
	} else {
		m.status = fmt.Sprintf("Copied %q", name)
	}
	return m, nil
}

func (m BrowserModel) loadItems() tea.Cmd {
	api := m.api
	timeout := m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		items, err := api.List(ctx)
		if err != nil {
			logging.UIDebug("Load failed: %v", err)
			return loadFailedMsg{err}
		}
		return itemsLoadedMsg(items)
	}
}

func (m BrowserModel) createItem(name string) tea.Cmd {
	api := m.api
	timeout := m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		created, err := api.Create(ctx, name)
		if err != nil {
			logging.UIDebug("Create failed: %v", err)
			return createFailedMsg{err}
		}
		return itemCreatedMsg(created)
	}
}

func (m BrowserModel) deleteItem(target item.Item) tea.Cmd {
	api := m.api
	timeout := m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := api.Delete(ctx, target.ID); err != nil {
			logging.UIDebug("Delete of #%d failed: %v", target.ID, err)
			return deleteFailedMsg{item: target, err: err}
		}
		return itemDeletedMsg(target.ID)
	}
}

// deleteFailureText composes the message for a failed delete. The age
// restriction states the minimum and the item's current age in whole days.
func (m BrowserModel) deleteFailureText(msg deleteFailedMsg) string {
	var apiErr *client.APIError
	if errors.As(msg.err, &apiErr) && client.IsAgeRestricted(msg.err) && apiErr.ItemAge != nil {
		return fmt.Sprintf("Cannot delete %q: items must be at least %d days old (currently %d days)",
			msg.item.Name, m.minAgeDays, item.WholeDays(*apiErr.ItemAge))
	}
	return "Failed to delete item: " + reason(msg.err)
}

// reason extracts the server's message for API errors, the plain error
// text otherwise.
func reason(err error) string {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}

// appendItem is the list transition for a successful create: server order is
// newest-first, but a fresh local add lands at the end until the next reload.
func appendItem(items []item.Item, it item.Item) []item.Item {
	out := make([]item.Item, 0, len(items)+1)
	out = append(out, items...)
	return append(out, it)
}

// removeItem is the list transition for a successful delete.
func removeItem(items []item.Item, id int64) []item.Item {
	out := make([]item.Item, 0, len(items))
	for _, it := range items {
		if it.ID != id {
			out = append(out, it)
		}
	}
	return out
}

func (m *BrowserModel) clampCursor() {
	if m.cursor >= len(m.items) {
		m.cursor = len(m.items) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// syncViewport re-renders the list and keeps the cursor row visible.
func (m *BrowserModel) syncViewport() {
	m.viewport.SetContent(m.renderItems())
	if m.viewport.Height <= 0 {
		return
	}
	top := m.viewport.YOffset
	bottom := top + m.viewport.Height - 1
	if m.cursor < top {
		m.viewport.SetYOffset(m.cursor)
	} else if m.cursor > bottom {
		m.viewport.SetYOffset(m.cursor - m.viewport.Height + 1)
	}
}

// renderItems formats the list, one row per item, with age and gate status.
func (m BrowserModel) renderItems() string {
	if len(m.items) == 0 {
		return m.styles.Muted.Render("The cellar is empty. Type a name and press Enter.")
	}

	now := m.now()
	var sb strings.Builder
	for i, it := range m.items {
		marker := "  "
		nameStyle := m.styles.Body
		if i == m.cursor {
			marker = "→ "
			nameStyle = m.styles.Selected
		}

		ageText := "age unknown"
		gate := m.styles.Warning.Render("✗")
		if created, err := it.CreatedTime(); err == nil {
			age := item.AgeDays(created, now)
			ageText = fmt.Sprintf("%.1fd", age)
			if item.WholeDays(age) >= m.minAgeDays {
				gate = m.styles.Success.Render("✓")
			}
		}

		line := fmt.Sprintf("%s%s  %s",
			marker,
			nameStyle.Render(it.Name),
			m.styles.Muted.Render(fmt.Sprintf("#%d · %s", it.ID, ageText)),
		)
		sb.WriteString(line + " " + gate + "\n")
	}
	return sb.String()
}

// helpText is the Ctrl+G overlay, rendered as markdown.
func (m BrowserModel) helpText() string {
	return fmt.Sprintf(`## cellar

| Key | Action |
|-----|--------|
| Enter | Add the drafted item |
| ↑/↓ | Select an item |
| Ctrl+D / Del | Delete the selected item |
| Ctrl+R | Reload from the server |
| Ctrl+Y | Copy the selected name |
| Ctrl+G | Toggle this help |
| Esc / Ctrl+C | Quit |

Items must rest at least **%d full days** before they can be deleted.
`, m.minAgeDays)
}

// safeRenderMarkdown renders markdown with panic recovery.
func (m BrowserModel) safeRenderMarkdown(content string) (result string) {
	defer func() {
		if r := recover(); r != nil {
			result = content
		}
	}()

	if m.renderer != nil && content != "" {
		rendered, err := m.renderer.Render(content)
		if err == nil {
			return rendered
		}
	}
	return content
}

// View renders the browser.
func (m BrowserModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	header := m.renderHeader()

	var body string
	if m.showHelp {
		body = m.styles.Content.Render(m.safeRenderMarkdown(m.helpText()))
	} else {
		body = m.styles.Content.Render(m.viewport.View())
	}

	if m.isLoading {
		body += "\n" + m.styles.Spinner.Render(m.spinner.View()) + " Working..."
	}

	statusLine := ""
	if m.errText != "" {
		statusLine = m.styles.Error.Render(m.errText)
	} else if m.status != "" {
		statusLine = m.styles.Info.Render(m.status)
	}

	inputStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(m.styles.Theme.Accent).
		Padding(0, 1)
	inputArea := inputStyle.Render(m.textinput.View())

	footer := m.styles.Footer.Render("Enter: add • ↑/↓: select • Ctrl+D: delete • Ctrl+R: reload • Ctrl+G: help • Ctrl+C: exit")

	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		body,
		statusLine,
		inputArea,
		footer,
	)
}

func (m BrowserModel) renderHeader() string {
	title := m.styles.Header.Render(" 🍷 cellar ")
	count := m.styles.Badge.Render(fmt.Sprintf("%d", len(m.items)))

	var state string
	if m.isLoading {
		state = m.styles.Warning.Render("● Working")
	} else if m.errText != "" {
		state = m.styles.Error.Render("● Error")
	} else {
		state = m.styles.Success.Render("● Ready")
	}

	headerLine := lipgloss.JoinHorizontal(
		lipgloss.Center,
		title,
		" ",
		count,
		"  ",
		state,
	)

	return lipgloss.JoinVertical(
		lipgloss.Left,
		headerLine,
		m.styles.RenderDivider(m.width),
	)
}

// Run starts the interactive browser.
func Run(api ItemAPI, cfg Config) error {
	p := tea.NewProgram(
		NewBrowserModel(api, cfg),
		tea.WithAltScreen(),
	)

	_, err := p.Run()
	return err
}
