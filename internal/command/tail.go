package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gobwas/glob"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/adamavenir/chatbus/internal/bus"
	"github.com/adamavenir/chatbus/internal/service"
	"github.com/adamavenir/chatbus/internal/types"
)

const resyncKind = "resync"

var errRealtimeStopped = errors.New("realtime delivery stopped")

// tailEvent is one listener callback as printed by tail.
type tailEvent struct {
	Kind      string         `json:"kind"`
	Target    string         `json:"target,omitempty"`
	ChatID    string         `json:"chat_id,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	MessageID string         `json:"message_id,omitempty"`
	Message   *types.Message `json:"message,omitempty"`
	Typing    *bool          `json:"typing,omitempty"`
	Online    *bool          `json:"online,omitempty"`
	At        int64          `json:"at"`
}

type tailFilter struct {
	kinds  map[string]bool
	target glob.Glob
}

func newTailFilter(kinds []string, target string) (*tailFilter, error) {
	f := &tailFilter{}
	if len(kinds) > 0 {
		f.kinds = map[string]bool{}
		for _, kind := range kinds {
			if kind != resyncKind && !types.EventKind(kind).Valid() {
				return nil, fmt.Errorf("unknown kind %q", kind)
			}
			f.kinds[kind] = true
		}
	}
	if target != "" {
		g, err := glob.Compile(target, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid --target pattern: %w", err)
		}
		f.target = g
	}
	return f, nil
}

func (f *tailFilter) Match(ev tailEvent) bool {
	if f.kinds != nil && !f.kinds[ev.Kind] {
		return false
	}
	if f.target != nil && ev.Kind != resyncKind && !f.target.Match(ev.Target) {
		return false
	}
	return true
}

// tailPrinter turns listener callbacks into lines. It runs on the executor.
type tailPrinter struct {
	out      io.Writer
	filter   *tailFilter
	jsonMode bool
	now      func() time.Time
}

func (p *tailPrinter) emit(ev tailEvent) {
	if !p.filter.Match(ev) {
		return
	}
	ev.At = p.now().UnixMilli()
	if p.jsonMode {
		_ = writeJSONTo(p.out, ev)
		return
	}
	fmt.Fprintln(p.out, formatTailEvent(ev))
}

func (p *tailPrinter) listener() bus.ListenerFuncs {
	return bus.ListenerFuncs{
		NewMessage: func(msg types.Message) {
			p.emit(tailEvent{Kind: string(types.KindMessage), Target: msg.ChatID, ChatID: msg.ChatID, UserID: msg.SenderID, MessageID: msg.ID, Message: &msg})
		},
		TypingStatusChanged: func(chatID, userID string, typing bool) {
			p.emit(tailEvent{Kind: string(types.KindTyping), Target: types.CompositeTarget(chatID, userID), ChatID: chatID, UserID: userID, Typing: &typing})
		},
		MessageRead: func(messageID, userID string) {
			p.emit(tailEvent{Kind: string(types.KindReadReceipt), Target: userID, UserID: userID, MessageID: messageID})
		},
		UserProfileUpdated: func(userID string) {
			p.emit(tailEvent{Kind: string(types.KindProfileUpdate), Target: userID, UserID: userID})
		},
		UserOnlineStatusChanged: func(userID string, online bool) {
			p.emit(tailEvent{Kind: string(types.KindPresence), Target: userID, UserID: userID, Online: &online})
		},
		Resync: func() {
			p.emit(tailEvent{Kind: resyncKind})
		},
	}
}

func formatTailEvent(ev tailEvent) string {
	stamp := time.UnixMilli(ev.At).Format("15:04:05")
	switch ev.Kind {
	case string(types.KindMessage):
		body := ev.Message.Body
		if ev.Message.MediaRef != "" {
			body = strings.TrimSpace(fmt.Sprintf("%s [%s %s]", body, ev.Message.MediaType, ev.Message.MediaRef))
		}
		return fmt.Sprintf("%s #%s %s: %s", stamp, ev.ChatID, ev.UserID, body)
	case string(types.KindTyping):
		state := "stopped typing"
		if *ev.Typing {
			state = "is typing"
		}
		return fmt.Sprintf("%s #%s %s %s", stamp, ev.ChatID, ev.UserID, state)
	case string(types.KindReadReceipt):
		return fmt.Sprintf("%s %s read %s", stamp, ev.UserID, ev.MessageID)
	case string(types.KindProfileUpdate):
		return fmt.Sprintf("%s %s updated their profile", stamp, ev.UserID)
	case string(types.KindPresence):
		state := "offline"
		if *ev.Online {
			state = "online"
		}
		return fmt.Sprintf("%s %s is %s", stamp, ev.UserID, state)
	default:
		return fmt.Sprintf("%s --- missed events, state re-fetched ---", stamp)
	}
}

// NewTailCmd creates the tail command.
func NewTailCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Run a session and print the callbacks it receives",
		Long: `Start a bus for this instance, log in as a user and print every listener
callback until interrupted.

Targets are chat ids for messages, chat/user for typing and user ids otherwise.

Examples:
  chatbus tail --as bob
  chatbus tail --as bob --kind message,typing
  chatbus tail --as bob --target 'general*' --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			as, err := requireAs(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			kinds, _ := cmd.Flags().GetStringSlice("kind")
			target, _ := cmd.Flags().GetString("target")
			duration, _ := cmd.Flags().GetDuration("for")

			filter, err := newTailFilter(kinds, target)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if duration > 0 {
				var cancel context.CancelFunc
				runCtx, cancel = context.WithTimeout(runCtx, duration)
				defer cancel()
			}

			if err := runTail(runCtx, cmd, ctx, as, filter); err != nil {
				return writeCommandError(cmd, err)
			}
			return nil
		},
	}

	cmd.Annotations = map[string]string{sessionAnnotation: "true"}
	cmd.Flags().String("as", "", "user to log in as")
	cmd.Flags().StringSlice("kind", nil, "only print these kinds (message, typing, read_receipt, presence, profile_update, resync)")
	cmd.Flags().String("target", "", "only print events whose target matches this glob")
	cmd.Flags().Duration("for", 0, "stop after this long (default: until interrupted)")
	return cmd
}

func runTail(runCtx context.Context, cmd *cobra.Command, ctx *CommandContext, as string, filter *tailFilter) error {
	printer := &tailPrinter{out: cmd.OutOrStdout(), filter: filter, jsonMode: ctx.JSONMode, now: time.Now}
	errOut := cmd.ErrOrStderr()

	queue := bus.NewUIQueue()
	defer queue.Close()

	degraded := make(chan error, 1)
	b, err := ctx.NewBus(queue, func(err error) {
		select {
		case degraded <- err:
		default:
		}
	})
	if err != nil {
		return err
	}
	defer b.Close(context.Background())

	// Log in before starting so replayed records reach the session.
	svc := service.NewChatService(ctx.DB, b, ctx.Logger)
	_, result, err := svc.Login(as, printer.listener())
	if err != nil {
		return err
	}
	reportPropagation(cmd, result)
	defer svc.Logout(as)

	if err := b.Start(context.Background()); err != nil {
		return err
	}

	if !ctx.JSONMode {
		fmt.Fprintf(errOut, "--- tailing as %s from seq %d (Ctrl+C to stop) ---\n", as, b.Position())
	}

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-b.Done():
			if gctx.Err() != nil {
				return nil
			}
			return errRealtimeStopped
		}
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err := <-degraded:
			fmt.Fprintf(errOut, "Warning: %v\n", err)
			return nil
		}
	})
	return g.Wait()
}
