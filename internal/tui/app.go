// Package tui is the interactive terminal front end: database picker,
// login and registration forms, and the role-specific menus.
package tui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/wemcdonald/sqlgate/internal/database"
	"github.com/wemcdonald/sqlgate/internal/render"
	"github.com/wemcdonald/sqlgate/pkg/gateway"
	"github.com/wemcdonald/sqlgate/pkg/session"
	"github.com/wemcdonald/sqlgate/pkg/types"
)

// Screen identifies what the model is showing.
type Screen int

const (
	ScreenPickDB Screen = iota
	ScreenMain
	ScreenLogin
	ScreenRegister
	ScreenMenu
	ScreenPrompt
)

func (s Screen) String() string {
	switch s {
	case ScreenPickDB:
		return "databases"
	case ScreenMain:
		return "main"
	case ScreenLogin:
		return "login"
	case ScreenRegister:
		return "register"
	case ScreenMenu:
		return "menu"
	case ScreenPrompt:
		return "prompt"
	default:
		return "unknown"
	}
}

// Backend opens a database and hands out session controllers for it.
// *app.Service satisfies it.
type Backend interface {
	Open(ctx context.Context, path string) error
	NewController() (*session.Controller, error)
}

// Options configures the model.
type Options struct {
	Dir    string // searched for *.db files when Path is empty
	Path   string // opened directly, skipping the picker
	Format string // render format for outcomes
}

// Messages for async operations.
type (
	openedMsg struct {
		path string
		err  error
	}
	loggedInMsg struct {
		sess *types.Session
		err  error
	}
	registeredMsg struct {
		err error
	}
	outcomeMsg struct {
		out *gateway.Outcome
		err error
	}
	tablesMsg struct {
		names []string
		err   error
	}
)

type action int

const (
	actionInfo action = iota
	actionTables
	actionSQL
	actionHelp
	actionLogout
)

type menuItem struct {
	label  string
	action action
}

var (
	userMenu = []menuItem{
		{"User information", actionInfo},
		{"View tables", actionTables},
		{"Log out", actionLogout},
	}
	adminMenu = []menuItem{
		{"User information", actionInfo},
		{"Run SQL command", actionSQL},
		{"Help", actionHelp},
		{"Log out", actionLogout},
	}
)

// Form field indices.
const (
	fieldUsername = iota
	fieldPassword
	fieldRole
)

// Model is the top-level bubbletea model.
type Model struct {
	backend Backend
	format  string
	dir     string
	path    string

	screen    Screen
	databases []string
	cursor    int

	ctrl *session.Controller
	sess *types.Session

	form      []textinput.Model
	formFocus int
	prompt    textinput.Model

	output    string
	last      *gateway.Outcome
	status    string
	statusErr bool
	busy      bool

	width  int
	height int
}

// New creates the model. With opts.Path set the database is opened on
// Init; otherwise the user picks one from opts.Dir.
func New(backend Backend, opts Options) Model {
	p := textinput.New()
	p.Prompt = "sql> "
	p.CharLimit = 4096
	p.Width = 70

	m := Model{
		backend: backend,
		format:  opts.Format,
		dir:     opts.Dir,
		path:    opts.Path,
		screen:  ScreenPickDB,
		prompt:  p,
	}

	if opts.Path != "" {
		m.busy = true
		m.setStatus("Opening " + filepath.Base(opts.Path) + "...")
		return m
	}

	dbs, err := database.ListDatabases(opts.Dir)
	if err != nil {
		m.setError("Failed to list databases: " + err.Error())
		return m
	}
	m.databases = dbs
	if len(dbs) == 0 {
		m.setError(fmt.Sprintf("No databases found in %s.", opts.Dir))
	}
	return m
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	if m.path != "" {
		return m.openCmd(m.path)
	}
	return nil
}

// Screen returns the current screen.
func (m Model) Screen() Screen { return m.screen }

// Session returns the logged-in session, or nil.
func (m Model) Session() *types.Session { return m.sess }

// Close terminates the active session, if any.
func (m Model) Close() error {
	if m.ctrl == nil {
		return nil
	}
	return m.ctrl.Close()
}

// Update handles all messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.prompt.Width = max(20, msg.Width-8)
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.Close() //nolint:errcheck // quitting
			return m, tea.Quit
		}
		if m.busy {
			return m, nil
		}
		switch m.screen {
		case ScreenPickDB:
			return m.updatePick(msg)
		case ScreenMain:
			return m.updateMain(msg)
		case ScreenLogin, ScreenRegister:
			return m.updateForm(msg)
		case ScreenMenu:
			return m.updateMenu(msg)
		case ScreenPrompt:
			return m.updatePrompt(msg)
		}

	case openedMsg:
		m.busy = false
		if msg.err != nil {
			m.screen = ScreenPickDB
			m.setError("Failed to open database: " + errorText(msg.err))
			return m, nil
		}
		m.path = msg.path
		ctrl, err := m.backend.NewController()
		if err != nil {
			m.setError(errorText(err))
			return m, nil
		}
		m.ctrl = ctrl
		m.screen = ScreenMain
		m.setStatus("Connected to " + filepath.Base(msg.path) + ".")
		return m, nil

	case loggedInMsg:
		m.busy = false
		if msg.err != nil {
			if errors.Is(msg.err, types.ErrAuthFailed) {
				m.setError("Invalid username or password.")
			} else {
				m.setError(errorText(msg.err))
			}
			return m, nil
		}
		m.sess = msg.sess
		m.form = nil
		m.output = ""
		m.screen = ScreenMenu
		m.cursor = 0
		m.setStatus(fmt.Sprintf("Welcome, %s!", msg.sess.Username))
		return m, nil

	case registeredMsg:
		m.busy = false
		if msg.err != nil {
			if errors.Is(msg.err, types.ErrDuplicateUsername) {
				m.setError("User with this name already exists.")
			} else {
				m.setError(errorText(msg.err))
			}
			return m, nil
		}
		m.form = nil
		m.screen = ScreenMain
		m.setStatus("User registered successfully.")
		return m, nil

	case outcomeMsg:
		m.busy = false
		if msg.err != nil {
			return m.sessionError(msg.err), nil
		}
		m.last = msg.out
		m.output = m.renderOutcome(msg.out)
		if msg.out.IsFailure() {
			m.setError("Command failed.")
		} else {
			m.setStatus(fmt.Sprintf("Done in %s.", msg.out.Duration.Round(time.Millisecond)))
		}
		return m, nil

	case tablesMsg:
		m.busy = false
		if msg.err != nil {
			return m.sessionError(msg.err), nil
		}
		m.output = render.Tables(msg.names)
		return m, nil
	}

	// cursor blink and other input messages
	var cmd tea.Cmd
	switch m.screen {
	case ScreenLogin, ScreenRegister:
		if m.formFocus < len(m.form) {
			m.form[m.formFocus], cmd = m.form[m.formFocus].Update(msg)
		}
	case ScreenPrompt:
		m.prompt, cmd = m.prompt.Update(msg)
	}
	return m, cmd
}

func (m Model) updatePick(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.databases)-1 {
			m.cursor++
		}
	case "enter":
		if len(m.databases) == 0 {
			return m, nil
		}
		path := m.databases[m.cursor]
		m.busy = true
		m.setStatus("Opening " + filepath.Base(path) + "...")
		return m, m.openCmd(path)
	case "q", "esc":
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) updateMain(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "1":
		return m.startForm(ScreenLogin)
	case "2":
		return m.startForm(ScreenRegister)
	case "3", "q":
		m.Close() //nolint:errcheck // quitting
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) startForm(screen Screen) (tea.Model, tea.Cmd) {
	username := textinput.New()
	username.Prompt = "Username: "
	username.CharLimit = 64

	password := textinput.New()
	password.Prompt = "Password: "
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'
	password.CharLimit = 128

	m.form = []textinput.Model{username, password}
	if screen == ScreenRegister {
		role := textinput.New()
		role.Prompt = "Role:     "
		role.Placeholder = "user or admin"
		role.CharLimit = 32
		m.form = append(m.form, role)
	}

	m.screen = screen
	m.status = ""
	cmd := m.focusField(0)
	return m, cmd
}

func (m *Model) focusField(i int) tea.Cmd {
	m.formFocus = i
	var cmd tea.Cmd
	for j := range m.form {
		if j == i {
			cmd = m.form[j].Focus()
		} else {
			m.form[j].Blur()
		}
	}
	return cmd
}

func (m Model) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	last := len(m.form) - 1

	switch msg.String() {
	case "esc":
		m.form = nil
		m.screen = ScreenMain
		m.status = ""
		return m, nil
	case "tab", "down":
		cmd := m.focusField((m.formFocus + 1) % len(m.form))
		return m, cmd
	case "shift+tab", "up":
		cmd := m.focusField((m.formFocus + last) % len(m.form))
		return m, cmd
	case "enter":
		if m.formFocus < last {
			cmd := m.focusField(m.formFocus + 1)
			return m, cmd
		}
		return m.submitForm()
	}

	var cmd tea.Cmd
	m.form[m.formFocus], cmd = m.form[m.formFocus].Update(msg)
	return m, cmd
}

func (m Model) submitForm() (tea.Model, tea.Cmd) {
	username := m.form[fieldUsername].Value()
	password := m.form[fieldPassword].Value()

	m.busy = true
	if m.screen == ScreenLogin {
		return m, m.loginCmd(username, password)
	}
	role := types.Role(strings.TrimSpace(m.form[fieldRole].Value()))
	return m, m.registerCmd(username, password, role)
}

func (m Model) menu() []menuItem {
	if m.sess != nil && m.sess.Role.IsRestricted() {
		return userMenu
	}
	return adminMenu
}

func (m Model) updateMenu(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	items := m.menu()

	switch key := msg.String(); key {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case "down", "j":
		if m.cursor < len(items)-1 {
			m.cursor++
		}
		return m, nil
	case "enter":
		return m.runAction(items[m.cursor].action)
	default:
		if len(key) == 1 && key[0] >= '1' && int(key[0]-'1') < len(items) {
			m.cursor = int(key[0] - '1')
			return m.runAction(items[m.cursor].action)
		}
	}
	return m, nil
}

func (m Model) runAction(a action) (tea.Model, tea.Cmd) {
	switch a {
	case actionInfo:
		m.output = fmt.Sprintf("Username: %s\nRole: %s", m.sess.Username, m.sess.Role)
		return m, nil
	case actionHelp:
		m.output = m.helpText()
		return m, nil
	case actionTables:
		m.enterPrompt("SELECT * FROM <table>")
		m.busy = true
		focus := m.prompt.Focus()
		return m, tea.Batch(focus, m.tablesCmd())
	case actionSQL:
		m.enterPrompt("SQL command, 'help' or 'exit'")
		m.output = ""
		focus := m.prompt.Focus()
		return m, focus
	case actionLogout:
		if err := m.ctrl.Logout(); err != nil {
			return m.sessionError(err), nil
		}
		m.resetSession()
		m.setStatus("Logged out.")
		return m, nil
	}
	return m, nil
}

func (m *Model) enterPrompt(placeholder string) {
	m.prompt.Reset()
	m.prompt.Placeholder = placeholder
	m.screen = ScreenPrompt
	m.status = ""
}

func (m Model) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.prompt.Blur()
		m.screen = ScreenMenu
		return m, nil
	case "ctrl+y":
		m.copyLast()
		return m, nil
	case "enter":
		stmt := strings.TrimSpace(m.prompt.Value())
		m.prompt.Reset()
		switch strings.ToLower(stmt) {
		case "":
			return m, nil
		case "exit":
			m.prompt.Blur()
			m.screen = ScreenMenu
			return m, nil
		case "help":
			m.output = m.helpText()
			return m, nil
		}
		m.busy = true
		m.setStatus("Executing...")
		return m, m.submitCmd(stmt)
	}

	var cmd tea.Cmd
	m.prompt, cmd = m.prompt.Update(msg)
	return m, cmd
}

func (m *Model) copyLast() {
	if m.last == nil || !m.last.IsRowSet() {
		m.setError("Nothing to copy.")
		return
	}
	s, err := render.CSV(m.last)
	if err != nil {
		m.setError("Copy failed: " + err.Error())
		return
	}
	if err := clipboard.WriteAll(s); err != nil {
		m.setError("Copy failed: " + err.Error())
		return
	}
	m.setStatus(fmt.Sprintf("Copied %d rows as CSV.", len(m.last.Rows)))
}

func (m Model) helpText() string {
	lines, err := m.ctrl.Help()
	if err != nil {
		return errorText(err)
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderOutcome(out *gateway.Outcome) string {
	var b strings.Builder
	if err := render.Outcome(&b, out, m.format); err != nil {
		return render.Table(out)
	}
	return strings.TrimRight(b.String(), "\n")
}

// sessionError reports err and, when the session cannot continue, drops
// back to the main menu with a fresh controller.
func (m Model) sessionError(err error) Model {
	if errors.Is(err, types.ErrConnectionLost) || errors.Is(err, types.ErrSessionTerminated) {
		m.resetSession()
		m.setError("Session ended: " + errorText(err))
		return m
	}
	if errors.Is(err, types.ErrAuthorizationDenied) {
		m.setError("Permission denied: " + errorText(err))
		return m
	}
	m.setError(errorText(err))
	return m
}

func (m *Model) resetSession() {
	if m.ctrl != nil {
		m.ctrl.Close() //nolint:errcheck // replaced below
	}
	m.ctrl = nil
	m.sess = nil
	m.last = nil
	m.output = ""
	m.cursor = 0
	m.prompt.Reset()
	m.prompt.Blur()
	m.screen = ScreenMain

	ctrl, err := m.backend.NewController()
	if err != nil {
		m.screen = ScreenPickDB
		m.setError(errorText(err))
		return
	}
	m.ctrl = ctrl
}

func (m *Model) setStatus(s string) {
	m.status = s
	m.statusErr = false
}

func (m *Model) setError(s string) {
	m.status = s
	m.statusErr = true
}

func errorText(err error) string {
	var dbErr *types.DBError
	if errors.As(err, &dbErr) {
		return dbErr.Message
	}
	return err.Error()
}

// Async commands

func (m Model) openCmd(path string) tea.Cmd {
	backend := m.backend
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := backend.Open(ctx, path)
		return openedMsg{path: path, err: err}
	}
}

func (m Model) loginCmd(username, password string) tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		sess, err := ctrl.Login(ctx, username, password)
		return loggedInMsg{sess: sess, err: err}
	}
}

func (m Model) registerCmd(username, password string, role types.Role) tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return registeredMsg{err: ctrl.Register(ctx, username, password, role)}
	}
}

// submitCmd runs without a deadline of its own; a cancelled parent context
// ends the session, so statement limits come from the gateway's query
// timeout.
func (m Model) submitCmd(statement string) tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		out, err := ctrl.Submit(context.Background(), statement)
		return outcomeMsg{out: out, err: err}
	}
}

func (m Model) tablesCmd() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		names, err := ctrl.ListTables(context.Background())
		return tablesMsg{names: names, err: err}
	}
}
