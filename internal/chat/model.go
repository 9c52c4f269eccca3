package chat

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/adamavenir/chatbus/internal/bus"
	"github.com/adamavenir/chatbus/internal/db"
	"github.com/adamavenir/chatbus/internal/service"
	"github.com/adamavenir/chatbus/internal/types"
)

const (
	defaultHistory      = 200
	defaultTypingExpiry = 5 * time.Second
)

// Options configure chat.
type Options struct {
	DB           *sql.DB
	ChatID       string
	UserID       string
	History      int
	TypingExpiry time.Duration
	Notify       bool
	Logger       zerolog.Logger
	// NewBus builds the process bus around the UI executor.
	NewBus func(executor bus.Executor, onDegraded func(error)) (*bus.Bus, error)
}

// Run starts the chat UI and blocks until the user quits.
func Run(ctx context.Context, opts Options) error {
	model, err := NewModel(opts)
	if err != nil {
		return err
	}

	program := tea.NewProgram(model, tea.WithAltScreen())
	executor := NewProgramExecutor(program)
	defer executor.Close()

	b, err := opts.NewBus(executor, model.OnDegraded)
	if err != nil {
		return err
	}
	svc := service.NewChatService(opts.DB, b, opts.Logger)
	model.attach(b, svc)

	defer b.Close(context.Background())

	_, result, err := svc.Login(opts.UserID, model)
	if err != nil {
		return err
	}
	if !result.Propagated() {
		model.status = "offline mode: presence not shared"
	}
	defer svc.Logout(opts.UserID)

	if err := b.Start(ctx); err != nil {
		return err
	}

	_, err = program.Run()
	model.typing.Stop()
	return err
}

// Model is the bubbletea model of one chat. It is also the session's bus
// listener; callbacks arrive through execMsg on the event loop.
type Model struct {
	db       *sql.DB
	bus      *bus.Bus
	svc      *service.ChatService
	logger   zerolog.Logger
	chat     types.Chat
	userID   string
	history  int
	notify   bool
	members  []string
	names    map[string]string
	messages []types.Message
	readBy   map[string]map[string]bool
	typers   map[string]bool
	typing   *TypingTimer
	expiry   time.Duration
	viewport viewport.Model
	input    textarea.Model
	status   string
	degraded string
	width    int
	height   int
}

// NewModel loads the chat and its history.
func NewModel(opts Options) (*Model, error) {
	chat, err := db.GetChat(opts.DB, opts.ChatID)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, fmt.Errorf("chat %s: %w", opts.ChatID, db.ErrNotFound)
	}
	history := opts.History
	if history <= 0 {
		history = defaultHistory
	}

	input := textarea.New()
	input.Placeholder = "message"
	input.ShowLineNumbers = false
	input.SetHeight(1)
	input.Focus()

	m := &Model{
		db:       opts.DB,
		logger:   opts.Logger,
		chat:     *chat,
		userID:   opts.UserID,
		history:  history,
		expiry:   opts.TypingExpiry,
		notify:   opts.Notify,
		names:    map[string]string{},
		readBy:   map[string]map[string]bool{},
		typers:   map[string]bool{},
		viewport: viewport.New(0, 0),
		input:    input,
	}
	if err := m.reload(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Model) attach(b *bus.Bus, svc *service.ChatService) {
	m.bus = b
	m.svc = svc
	expiry := m.expiry
	if expiry <= 0 {
		expiry = defaultTypingExpiry
	}
	m.typing = NewTypingTimer(expiry, func(typing bool) error {
		return b.UpdateTypingStatus(m.chat.ID, m.userID, typing)
	})
	m.typing.OnError(func(err error) {
		m.logger.Debug().Err(err).Msg("typing status not propagated")
	})
}

// reload re-fetches members, profiles and history from the database.
func (m *Model) reload() error {
	members, err := db.Participants(m.db, m.chat.ID)
	if err != nil {
		return err
	}
	m.members = members
	for _, id := range members {
		m.refreshName(id)
	}
	messages, err := db.ListMessages(m.db, m.chat.ID, m.history)
	if err != nil {
		return err
	}
	m.messages = messages
	m.refreshViewport()
	return nil
}

func (m *Model) refreshName(userID string) {
	user, err := db.GetUser(m.db, userID)
	if err != nil || user == nil {
		m.names[userID] = userID
		return
	}
	m.names[userID] = user.DisplayName
}

func (m *Model) displayName(userID string) string {
	if name, ok := m.names[userID]; ok {
		return name
	}
	return userID
}

func (m *Model) Init() tea.Cmd {
	return textarea.Blink
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case execMsg:
		msg()
		return m, nil
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.typing.Stop()
			return m, tea.Quit
		case tea.KeyEnter:
			m.submit()
			return m, nil
		}
		before := m.input.Value()
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		if value := m.input.Value(); value != before {
			if strings.TrimSpace(value) == "" {
				m.typing.Stop()
			} else {
				m.typing.Keystroke()
			}
		}
		return m, cmd
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *Model) submit() {
	body := strings.TrimSpace(m.input.Value())
	if body == "" {
		return
	}
	m.typing.Stop()
	m.input.Reset()

	sent, result, err := m.svc.SendMessage(m.chat.ID, m.userID, body, nil)
	if err != nil {
		m.status = "send failed: " + err.Error()
		return
	}
	// Own messages are never echoed back by the bus.
	m.messages = append(m.messages, sent)
	if !result.Propagated() {
		m.status = "saved locally; other windows will not see it until they reload"
	} else {
		m.status = ""
	}
	m.refreshViewport()
}

// OnNewMessage implements bus.Listener.
func (m *Model) OnNewMessage(msg types.Message) {
	if msg.ChatID != m.chat.ID {
		return
	}
	m.messages = append(m.messages, msg)
	delete(m.typers, msg.SenderID)
	m.refreshViewport()

	if m.notify {
		if err := notifyMessage(m.chat.Name, m.displayName(msg.SenderID), msg); err != nil {
			m.logger.Debug().Err(err).Msg("desktop notification failed")
		}
	}
	svc := m.svc
	if svc == nil {
		return
	}
	user := m.userID
	go func() {
		if _, err := svc.MarkRead(msg.ID, user); err != nil {
			m.logger.Debug().Err(err).Str("message", msg.ID).Msg("mark read failed")
		}
	}()
}

// OnTypingStatusChanged implements bus.Listener.
func (m *Model) OnTypingStatusChanged(chatID, userID string, typing bool) {
	if chatID != m.chat.ID || userID == m.userID {
		return
	}
	if typing {
		m.typers[userID] = true
	} else {
		delete(m.typers, userID)
	}
}

// OnMessageRead implements bus.Listener.
func (m *Model) OnMessageRead(messageID, userID string) {
	if userID == m.userID {
		return
	}
	readers, ok := m.readBy[messageID]
	if !ok {
		readers = map[string]bool{}
		m.readBy[messageID] = readers
	}
	readers[userID] = true
	m.refreshViewport()
}

// OnUserProfileUpdated implements bus.Listener.
func (m *Model) OnUserProfileUpdated(userID string) {
	m.refreshName(userID)
	m.refreshViewport()
}

// OnUserOnlineStatusChanged implements bus.Listener.
func (m *Model) OnUserOnlineStatusChanged(userID string, online bool) {
	if !online {
		delete(m.typers, userID)
	}
}

// OnResync implements bus.ResyncListener.
func (m *Model) OnResync() {
	m.typers = map[string]bool{}
	if err := m.reload(); err != nil {
		m.status = "reload failed: " + err.Error()
		return
	}
	m.status = "caught up after missed updates"
}

// OnDegraded surfaces a stopped poller. Realtime updates stay off until restart.
func (m *Model) OnDegraded(err error) {
	m.degraded = "realtime updates unavailable: " + err.Error()
}

func (m *Model) typersLine() string {
	if len(m.typers) == 0 {
		return ""
	}
	names := make([]string, 0, len(m.typers))
	for id := range m.typers {
		names = append(names, m.displayName(id))
	}
	sort.Strings(names)
	if len(names) == 1 {
		return names[0] + " is typing..."
	}
	return strings.Join(names, ", ") + " are typing..."
}
