package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"chat-client/internal/config"
	"chat-client/internal/events"
	"chat-client/internal/logging"
	"chat-client/internal/models"
	"chat-client/internal/notify"
	"chat-client/internal/rooms"
	"chat-client/internal/session"
	"chat-client/internal/transport"
)

const sessionHelp = `Commands:
  /rooms        list rooms
  /open <id>    open a room and show its history
  /history      show the open room again
  /close        close the open room
  /read <id>    mark a message as read
  /typing       announce that you are typing
  /quit         leave
Any other line is sent to the open room.`

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Open an interactive chat session",
	Long:  "Connects to the chat backend and reads commands from standard input.\n\n" + sessionHelp,
	RunE:  runSession,
}

func init() {
	rootCmd.AddCommand(sessionCmd)
}

func runSession(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}
	logger := logging.New()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := newClientDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close(context.Background())

	out := cmd.OutOrStdout()
	user, err := sessionUser(ctx, deps.prefs, cfg)
	if err != nil {
		logger.Warn("stored roles ignored", "error", err)
	}
	if len(user.Roles) > 0 {
		fmt.Fprintf(out, "-- signed in as %s (%s)\n", user.Name, strings.Join(user.Roles, ", "))
	}
	ctrl := session.New(user, deps.transport, deps.api,
		session.WithStorage(deps.prefs),
		session.WithNotifier(notify.NewTerminal(out, true)),
		session.WithLogger(logger),
		session.WithTypingDebounce(cfg.TypingDebounce),
		session.WithObserver(typingObserver(out, user.ID)),
		session.WithStateListener(func(s transport.State) {
			fmt.Fprintf(out, "-- connection %s\n", s)
		}),
	)
	defer ctrl.Close()

	if err := ctrl.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, sessionHelp)
	return runREPL(ctx, ctrl, cmd.InOrStdin(), out)
}

// chatSession is the part of *session.Controller the REPL drives.
type chatSession interface {
	RefreshRooms(ctx context.Context) ([]models.ChatRoom, error)
	SelectRoom(ctx context.Context, roomID models.ID) error
	CloseRoom(ctx context.Context) error
	MarkRead(ctx context.Context, messageID models.ID) error
	Keystroke() error
	SendText(ctx context.Context, text string) (models.Message, error)
	Messages() []models.Message
	ActiveRoom() models.ID
}

func runREPL(ctx context.Context, s chatSession, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := execLine(ctx, s, strings.TrimSpace(line), out); quit {
				return nil
			}
		}
	}
}

// execLine runs one REPL line and reports whether the session should end.
func execLine(ctx context.Context, s chatSession, line string, out io.Writer) bool {
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		if _, err := s.SendText(ctx, line); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
		return false
	}

	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	var err error
	switch name {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(out, sessionHelp)
	case "/rooms":
		var list []models.ChatRoom
		if list, err = s.RefreshRooms(ctx); err == nil {
			err = printRooms(out, list)
		}
	case "/open":
		if arg == "" {
			err = errors.New("usage: /open <room id>")
			break
		}
		if err = s.SelectRoom(ctx, models.ID(arg)); err == nil {
			printMessages(out, s.Messages())
		}
	case "/history":
		printMessages(out, s.Messages())
	case "/close":
		err = s.CloseRoom(ctx)
	case "/read":
		if arg == "" {
			err = errors.New("usage: /read <message id>")
			break
		}
		err = s.MarkRead(ctx, models.ID(arg))
	case "/typing":
		err = s.Keystroke()
	default:
		err = fmt.Errorf("unknown command %s", name)
	}
	if err != nil {
		fmt.Fprintf(out, "error: %v\n", err)
	}
	return false
}

func printMessages(out io.Writer, msgs []models.Message) {
	if len(msgs) == 0 {
		fmt.Fprintln(out, "(no messages)")
		return
	}
	for _, m := range msgs {
		author := m.Sender.Name
		if m.Direction == models.Outgoing {
			author = "you"
		} else if author == "" {
			author = m.Sender.ID.String()
		}
		fmt.Fprintf(out, "[%s] %s %s: %s (%s)\n",
			m.CreatedAt.Local().Format("15:04"), m.ID, author, m.Content, strings.ToLower(string(m.Status)))
	}
}

func typingObserver(out io.Writer, self models.ID) rooms.Observer {
	return func(roomID models.ID, evt events.Event) {
		t, ok := evt.(events.Typing)
		if !ok || t.UserID == self {
			return
		}
		name := t.UserName
		if name == "" {
			name = t.UserID.String()
		}
		fmt.Fprintf(out, "   %s is typing in room %s...\n", name, roomID)
	}
}
