package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"tickerdesk/internal/app"
	"tickerdesk/internal/clipboard"
	"tickerdesk/internal/config"
	"tickerdesk/internal/dashboard"
	"tickerdesk/internal/domain"
	"tickerdesk/internal/prompt"
	"tickerdesk/internal/remote"
	"tickerdesk/internal/util"
	"tickerdesk/internal/watchlist"
)

const toastTTL = 4 * time.Second

// Input modes.
const (
	modeBrowse = iota
	modeAdd
	modeSettings
)

// Settings form fields.
const (
	fieldToken = iota
	fieldOwner
	fieldRepo
	fieldCount
)

// Messages.
type tickMsg time.Time
type loadedMsg struct{ ok bool }
type notificationMsg watchlist.Notification

type addedMsg struct {
	code string
	err  error
}

type removedMsg struct {
	code string
	err  error
}

type triggeredMsg struct{ err error }

type copiedMsg struct {
	preview string
	err     error
}

type configSavedMsg struct{ err error }

type toast struct {
	kind    watchlist.Kind
	text    string
	expires time.Time
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// waitNotification blocks on the store's notification channel. The returned
// command is re-armed after every delivery.
func waitNotification(ch <-chan watchlist.Notification) tea.Cmd {
	return func() tea.Msg {
		n, ok := <-ch
		if !ok {
			return nil
		}
		return notificationMsg(n)
	}
}

// Model.
type model struct {
	ctx    context.Context
	store  *watchlist.Store
	clip   clipboard.Writer
	notes  <-chan watchlist.Notification
	logger *slog.Logger
	now    func() time.Time

	view       dashboard.View
	sortMode   int
	targetDate string
	updated    time.Time
	loading    bool

	viewport      viewport.Model
	ready         bool
	width, height int

	selectedCode string

	mode     int
	addInput textinput.Model
	settings [fieldCount]textinput.Model
	focus    int

	toasts []toast
}

func newModel(ctx context.Context, s *watchlist.Store, clip clipboard.Writer, logger *slog.Logger) model {
	_, notes := s.Subscribe(16)

	add := textinput.New()
	add.Placeholder = "ticker code, e.g. TSM or 2330"
	add.CharLimit = 16
	add.Prompt = " add: "

	var settings [fieldCount]textinput.Model
	labels := [fieldCount]string{"token", "owner", "repo"}
	for i := range settings {
		in := textinput.New()
		in.Prompt = fmt.Sprintf("  %-6s ", labels[i])
		in.CharLimit = 256
		settings[i] = in
	}
	settings[fieldToken].EchoMode = textinput.EchoPassword
	settings[fieldToken].EchoCharacter = '•'
	settings[fieldToken].Placeholder = "personal access token"
	settings[fieldOwner].Placeholder = "repository owner"
	settings[fieldRepo].Placeholder = "repository name"

	now := time.Now()
	return model{
		ctx:        ctx,
		store:      s,
		clip:       clip,
		notes:      notes,
		logger:     logger,
		now:        time.Now,
		targetDate: now.Format(domain.DateLayout),
		loading:    true,
		addInput:   add,
		settings:   settings,
	}
}

func (m model) Init() tea.Cmd {
	s, ctx := m.store, m.ctx
	return tea.Batch(
		tickCmd(),
		waitNotification(m.notes),
		func() tea.Msg { return loadedMsg{ok: s.Load(ctx)} },
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch m.mode {
		case modeAdd:
			return m.updateAdd(msg)
		case modeSettings:
			return m.updateSettings(msg)
		}
		if next, cmd, handled := m.updateBrowse(msg); handled {
			return next, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		headerH := 1
		footerH := 2
		vpHeight := m.height - headerH - footerH
		if vpHeight < 1 {
			vpHeight = 1
		}
		if !m.ready {
			m.viewport = viewport.New(m.width, vpHeight)
			m.viewport.MouseWheelEnabled = true
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = vpHeight
		}
		m.rebuild()
		return m, nil

	case tickMsg:
		m.expireToasts(time.Time(msg))
		m.rebuild()
		return m, tickCmd()

	case loadedMsg:
		m.loading = false
		if !msg.ok {
			m.logger.Debug("initial load superseded")
		}
		m.rebuild()
		return m, nil

	case notificationMsg:
		n := watchlist.Notification(msg)
		m.logger.Info("notification", "kind", n.Kind, "message", n.Message, "codes", n.Codes)
		m.pushToast(n.Kind, n.Message)
		m.rebuild()
		return m, waitNotification(m.notes)

	case addedMsg:
		switch {
		case errors.Is(msg.err, watchlist.ErrDuplicate):
			m.pushToast(watchlist.KindInfo, msg.code+" is already on the watchlist")
		case msg.err != nil:
			m.pushToast(watchlist.KindError, msg.err.Error())
		default:
			m.selectedCode = msg.code
		}
		m.rebuild()
		m.ensureVisible()
		return m, nil

	case removedMsg:
		if msg.err != nil {
			m.logger.Warn("remove failed", "code", msg.code, "error", msg.err)
			m.pushToast(watchlist.KindError, msg.err.Error())
		}
		m.rebuild()
		return m, nil

	case triggeredMsg:
		// Outcomes are reported by the store's notifications.
		if msg.err != nil {
			m.logger.Warn("trigger failed", "error", msg.err)
		}
		return m, nil

	case copiedMsg:
		switch {
		case errors.Is(msg.err, prompt.ErrNoRecords):
			m.pushToast(watchlist.KindWarning, "no tickers to include in the prompt")
		case msg.err != nil:
			m.pushToast(watchlist.KindError, "copy failed: "+msg.err.Error())
		default:
			m.pushToast(watchlist.KindSuccess, "prompt copied ("+msg.preview+")")
		}
		m.rebuild()
		return m, nil

	case configSavedMsg:
		if msg.err != nil {
			m.pushToast(watchlist.KindError, "saving settings failed: "+msg.err.Error())
			m.rebuild()
		}
		return m, nil
	}

	if m.ready {
		m.viewport, cmd = m.viewport.Update(msg)
	}
	return m, cmd
}

func (m model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	s, ctx := m.store, m.ctx

	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit, true

	case "s":
		m.sortMode = (m.sortMode + 1) % dashboard.SortModeCount
		m.rebuild()
		return m, nil, true

	case "a":
		m.mode = modeAdd
		m.addInput.Reset()
		cmd := m.addInput.Focus()
		return m, cmd, true

	case "x", "delete":
		code := m.selectedCode
		if code == "" {
			return m, nil, true
		}
		m.moveSelection(1)
		if m.selectedCode == code {
			m.selectedCode = ""
		}
		return m, func() tea.Msg {
			return removedMsg{code: code, err: s.Remove(ctx, code)}
		}, true

	case "r":
		m.loading = true
		return m, func() tea.Msg {
			s.Refresh(ctx, false)
			return loadedMsg{ok: true}
		}, true

	case "t":
		return m, func() tea.Msg {
			err := s.TriggerBatchRun(ctx)
			if errors.Is(err, remote.ErrNotConfigured) {
				err = nil
			}
			return triggeredMsg{err: err}
		}, true

	case "p":
		records := s.Records()
		target := m.targetDate
		clip := m.clip
		now := m.now()
		return m, func() tea.Msg {
			text, err := prompt.Build(records, target, now)
			if err != nil {
				return copiedMsg{err: err}
			}
			if err := clip.Copy(text); err != nil {
				return copiedMsg{err: err}
			}
			return copiedMsg{preview: prompt.Preview(records)}
		}, true

	case "[", "]":
		d, err := time.Parse(domain.DateLayout, m.targetDate)
		if err != nil {
			d = m.now()
		}
		if msg.String() == "[" {
			d = d.AddDate(0, 0, -1)
		} else {
			d = d.AddDate(0, 0, 1)
		}
		m.targetDate = d.Format(domain.DateLayout)
		return m, nil, true

	case "c":
		cfg := s.RemoteConfig(ctx)
		m.settings[fieldToken].SetValue(cfg.Token)
		m.settings[fieldOwner].SetValue(cfg.Owner)
		m.settings[fieldRepo].SetValue(cfg.Repo)
		m.mode = modeSettings
		m.focus = fieldToken
		cmd := m.focusSettings()
		return m, cmd, true

	case "up", "k":
		m.moveSelection(-1)
		m.viewport.SetContent(m.renderContent())
		m.ensureVisible()
		return m, nil, true

	case "down", "j":
		m.moveSelection(1)
		m.viewport.SetContent(m.renderContent())
		m.ensureVisible()
		return m, nil, true
	}
	return m, nil, false
}

func (m model) updateAdd(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = modeBrowse
		m.addInput.Blur()
		return m, nil
	case "enter":
		input := m.addInput.Value()
		m.mode = modeBrowse
		m.addInput.Blur()
		if domain.NormalizeCode(input) == "" {
			return m, nil
		}
		s, ctx := m.store, m.ctx
		return m, func() tea.Msg {
			rec, err := s.Add(ctx, input)
			code := rec.Code
			if code == "" {
				code = domain.NormalizeCode(input)
			}
			return addedMsg{code: code, err: err}
		}
	}
	var cmd tea.Cmd
	m.addInput, cmd = m.addInput.Update(msg)
	return m, cmd
}

func (m model) updateSettings(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = modeBrowse
		m.blurSettings()
		return m, nil
	case "tab", "down":
		m.focus = (m.focus + 1) % fieldCount
		cmd := m.focusSettings()
		return m, cmd
	case "shift+tab", "up":
		m.focus = (m.focus + fieldCount - 1) % fieldCount
		cmd := m.focusSettings()
		return m, cmd
	case "enter":
		if m.focus < fieldCount-1 {
			m.focus++
			cmd := m.focusSettings()
			return m, cmd
		}
		cfg := domain.RemoteConfig{
			Token: m.settings[fieldToken].Value(),
			Owner: m.settings[fieldOwner].Value(),
			Repo:  m.settings[fieldRepo].Value(),
		}
		m.mode = modeBrowse
		m.blurSettings()
		s, ctx := m.store, m.ctx
		return m, func() tea.Msg {
			return configSavedMsg{err: s.SaveRemoteConfig(ctx, cfg)}
		}
	}
	var cmd tea.Cmd
	m.settings[m.focus], cmd = m.settings[m.focus].Update(msg)
	return m, cmd
}

func (m *model) focusSettings() tea.Cmd {
	var cmd tea.Cmd
	for i := range m.settings {
		if i == m.focus {
			cmd = m.settings[i].Focus()
		} else {
			m.settings[i].Blur()
		}
	}
	return cmd
}

func (m *model) blurSettings() {
	for i := range m.settings {
		m.settings[i].Blur()
	}
}

func (m *model) pushToast(kind watchlist.Kind, text string) {
	ttl := toastTTL
	if kind == watchlist.KindError {
		ttl *= 2
	}
	m.toasts = append(m.toasts, toast{kind: kind, text: text, expires: m.now().Add(ttl)})
}

func (m *model) expireToasts(now time.Time) {
	kept := m.toasts[:0]
	for _, t := range m.toasts {
		if now.Before(t.expires) {
			kept = append(kept, t)
		}
	}
	m.toasts = kept
}

// rebuild recomputes the grouped view from the store and re-renders.
func (m *model) rebuild() {
	m.view = dashboard.ComputeView(m.store.Records(), m.sortMode)
	m.updated = m.store.LastUpdated()
	codes := m.flatCodes()
	if m.selectedCode == "" || !containsCode(codes, m.selectedCode) {
		m.selectedCode = ""
		if len(codes) > 0 {
			m.selectedCode = codes[0]
		}
	}
	if m.ready {
		m.viewport.SetContent(m.renderContent())
	}
}

// flatCodes lists codes in display order.
func (m *model) flatCodes() []string {
	var codes []string
	for _, g := range m.view.Groups {
		for _, r := range g.Records {
			codes = append(codes, r.Code)
		}
	}
	return codes
}

func (m *model) moveSelection(delta int) {
	codes := m.flatCodes()
	if len(codes) == 0 {
		m.selectedCode = ""
		return
	}
	cur := -1
	for i, c := range codes {
		if c == m.selectedCode {
			cur = i
			break
		}
	}
	cur += delta
	if cur < 0 {
		cur = 0
	}
	if cur > len(codes)-1 {
		cur = len(codes) - 1
	}
	m.selectedCode = codes[cur]
}

func (m *model) ensureVisible() {
	line := m.selectedLine()
	if line < 0 {
		return
	}
	yOff := m.viewport.YOffset
	vpH := m.viewport.Height
	if line < yOff {
		m.viewport.SetYOffset(line)
	} else if line >= yOff+vpH {
		m.viewport.SetYOffset(line - vpH + 1)
	}
}

func containsCode(codes []string, code string) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(config.Path())
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	logPath := fmt.Sprintf("/tmp/tickerdesk-%s.log", time.Now().Format(domain.DateLayout))
	logger, logFile, err := util.NewFileLogger(logPath, cfg.Logging.Level, "text")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logFile.Close()
	util.SetDefault(logger)

	a, err := app.Open(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Store.Run(ctx)

	logger.Info("tickerdesk started", "snapshot", a.Snapshot.Location(), "codes", len(a.Store.SavedCodes(ctx)))

	p := tea.NewProgram(
		newModel(ctx, a.Store, clipboard.NewOSC52(), logger),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
