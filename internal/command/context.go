package command

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/adamavenir/chatbus/internal/bus"
	"github.com/adamavenir/chatbus/internal/config"
	"github.com/adamavenir/chatbus/internal/core"
	"github.com/adamavenir/chatbus/internal/cursor"
	"github.com/adamavenir/chatbus/internal/db"
	"github.com/adamavenir/chatbus/internal/logging"
	"github.com/adamavenir/chatbus/internal/outbox"
	"github.com/adamavenir/chatbus/internal/service"
)

// CommandContext provides shared command resources.
type CommandContext struct {
	Config   config.Config
	Root     core.Root
	DB       *sql.DB
	Logger   zerolog.Logger
	JSONMode bool
}

// sessionAnnotation marks commands that run a long-lived session. Their
// instance defaults to <command>-<as>, so two sessions started without
// --instance keep separate cursors.
const sessionAnnotation = "chatbus/session"

// loadConfig resolves configuration from the command's flags.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	configFile, _ := cmd.Flags().GetString("config")
	return config.Load(config.LoadOptions{
		ConfigFile:      configFile,
		Flags:           cmd.Flags(),
		DefaultInstance: sessionInstance(cmd),
	})
}

func sessionInstance(cmd *cobra.Command) string {
	if _, ok := cmd.Annotations[sessionAnnotation]; !ok {
		return ""
	}
	as, _ := cmd.Flags().GetString("as")
	as = strings.TrimSpace(as)
	if as == "" {
		return ""
	}
	return cmd.Name() + "-" + strings.NewReplacer("/", "_", `\`, "_").Replace(as)
}

func newLogger(cmd *cobra.Command, cfg config.Config) zerolog.Logger {
	level := cfg.LogLevel
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		level = zerolog.DebugLevel.String()
	}
	return logging.NewConsole(level, cfg.Instance)
}

// GetContext resolves configuration, the storage root and the database for a command.
func GetContext(cmd *cobra.Command) (*CommandContext, error) {
	jsonMode, _ := cmd.Flags().GetBool("json")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	root, err := core.OpenRoot(cfg.Root)
	if err != nil {
		return nil, err
	}
	conn, err := db.OpenDatabase(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	return &CommandContext{
		Config:   cfg,
		Root:     root,
		DB:       conn,
		Logger:   newLogger(cmd, cfg),
		JSONMode: jsonMode,
	}, nil
}

// Close releases the database.
func (c *CommandContext) Close() {
	_ = c.DB.Close()
}

// Outbox opens the event store under the root.
func (c *CommandContext) Outbox() *outbox.Store {
	return outbox.Open(c.Root, outbox.Options{GapTimeout: c.Config.GapTimeout})
}

// Cursor returns the tracker for this instance.
func (c *CommandContext) Cursor() *cursor.Tracker {
	return cursor.NewTracker(c.Root, c.Config.Instance)
}

// NewBus builds a bus for this process. It is not started.
func (c *CommandContext) NewBus(executor bus.Executor, onDegraded func(error)) (*bus.Bus, error) {
	logger := c.Logger
	return bus.New(bus.Options{
		Config:     c.Config.Bus(),
		Outbox:     c.Outbox(),
		Cursor:     c.Cursor(),
		Directory:  db.NewDirectory(c.DB),
		Executor:   executor,
		WatchDir:   c.Root.EventsDir(),
		Logger:     &logger,
		OnDegraded: onDegraded,
	})
}

// producer is a bus that only publishes. It is never started, so closing
// it does not touch presence.
type producer struct {
	Bus     *bus.Bus
	Service *service.ChatService
	queue   *bus.UIQueue
}

func (c *CommandContext) newProducer() (*producer, error) {
	queue := bus.NewUIQueue()
	b, err := c.NewBus(queue, nil)
	if err != nil {
		queue.Close()
		return nil, err
	}
	return &producer{
		Bus:     b,
		Service: service.NewChatService(c.DB, b, c.Logger),
		queue:   queue,
	}, nil
}

func (p *producer) Close() {
	p.queue.Close()
}

// requireAs returns the acting user from --as.
func requireAs(cmd *cobra.Command) (string, error) {
	as, _ := cmd.Flags().GetString("as")
	as = strings.TrimSpace(as)
	if as == "" {
		return "", fmt.Errorf("--as is required")
	}
	return as, nil
}

// reportPropagation warns when a local change did not reach the bus.
func reportPropagation(cmd *cobra.Command, result service.Result) {
	if result.Propagated() {
		return
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Warning: saved locally but not propagated: %v\n", result.PropagationErr)
}

func writeJSON(cmd *cobra.Command, value any) error {
	return writeJSONTo(cmd.OutOrStdout(), value)
}

func writeJSONTo(w io.Writer, value any) error {
	return json.NewEncoder(w).Encode(value)
}
