package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"chat-server/internal/models"
	"chat-server/internal/reconcile"
	"chat-server/pkg/chatclient"

	"github.com/spf13/cobra"
)

var historyLimit int

func init() {
	for _, c := range []*cobra.Command{dmCmd, groupCmd} {
		c.Flags().IntVar(&historyLimit, "history", 20, "number of past messages to show")
		rootCmd.AddCommand(c)
	}
}

var dmCmd = &cobra.Command{
	Use:   "dm <userId>",
	Short: "Chat directly with a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(conversation{peerID: args[0]})
	},
}

var groupCmd = &cobra.Command{
	Use:   "group <groupId>",
	Short: "Chat in a group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(conversation{groupID: args[0]})
	},
}

// conversation is either a direct chat with peerID or a group chat.
type conversation struct {
	peerID  string
	groupID string
}

func (c conversation) roomID(self string) string {
	if c.groupID != "" {
		return c.groupID
	}
	return models.DirectRoomID(self, c.peerID)
}

func (c conversation) owns(self string, m *models.Message) bool {
	if m == nil {
		return false
	}
	if c.groupID != "" {
		return m.GroupID == c.groupID
	}
	return !m.IsGroup() && m.Participant(self) && m.Participant(c.peerID)
}

func (c conversation) send(body string) models.Command {
	req := models.SendRequest{Body: body, Kind: models.KindText}
	if c.groupID != "" {
		req.GroupID = c.groupID
		return models.SendGroup{SendRequest: req}
	}
	req.RecipientID = c.peerID
	return models.SendDirect{SendRequest: req}
}

func runChat(conv conversation) error {
	cfg, err := requireLogin()
	if err != nil {
		return err
	}
	self := cfg.Auth.UserID

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	api := chatclient.NewAPI(cfg.Server, cfg.Auth.Token)
	tl := reconcile.New(self)

	var history []*models.Message
	if conv.groupID != "" {
		history, err = api.GroupHistory(ctx, conv.groupID, historyLimit)
	} else {
		history, err = api.Conversation(ctx, conv.peerID, historyLimit)
	}
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	for _, m := range history {
		tl.Observe(m)
		printMessage(self, m, "")
	}

	conn, err := chatclient.Dial(ctx, cfg.Server, cfg.Auth.Token)
	if err != nil {
		return err
	}
	defer conn.Close()

	room := conv.roomID(self)
	if err := conn.Send(ctx, models.JoinRoom{RoomID: room}); err != nil {
		return err
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	ping := time.NewTicker(25 * time.Second)
	defer ping.Stop()

	fmt.Println("Type a message and press enter. /help lists commands.")
	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ping.C:
			if err := conn.Send(ctx, models.ActivityPing{}); err != nil {
				return err
			}

		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if strings.HasPrefix(line, "/") {
				cmd, err := slashCommand(line)
				if err != nil {
					fmt.Println(err)
					continue
				}
				if cmd == nil {
					return nil
				}
				if err := conn.Send(ctx, cmd); err != nil {
					return err
				}
				continue
			}
			echo := tl.Submit(sendRequestOf(conv.send(line)))
			printMessage(self, &echo.Message, "sending")
			if err := conn.Send(ctx, conv.send(line)); err != nil {
				tl.Fail(echo.Message.ID)
				return err
			}

		case ev, ok := <-conn.Events():
			if !ok {
				if err := conn.Err(); err != nil {
					return fmt.Errorf("connection lost: %w", err)
				}
				return nil
			}
			render(self, conv, tl, ev)
		}
	}
}

func sendRequestOf(cmd models.Command) models.SendRequest {
	switch c := cmd.(type) {
	case models.SendDirect:
		return c.SendRequest
	case models.SendGroup:
		return c.SendRequest
	}
	return models.SendRequest{}
}

func render(self string, conv conversation, tl *reconcile.Timeline, ev models.Event) {
	switch e := ev.(type) {
	case *models.Delivered:
		if conv.owns(self, e.Message) && tl.Apply(e) != reconcile.Dropped {
			fmt.Printf("  ✓ sent %s\n", e.Message.ID)
		}
	case *models.Receive:
		if conv.owns(self, e.Message) && tl.Apply(e) == reconcile.Appended {
			printMessage(self, e.Message, "")
		}
	case *models.GroupReceive:
		if conv.owns(self, e.Message) && tl.Apply(e) == reconcile.Appended {
			printMessage(self, e.Message, "")
		}
	case *models.MessageEdited:
		if tl.Apply(e) == reconcile.Patched {
			fmt.Printf("  ~ %s edited: %s\n", e.MessageID, e.NewBody)
		}
	case *models.MessageDeleted:
		if tl.Apply(e) == reconcile.Patched {
			fmt.Printf("  - %s deleted\n", e.MessageID)
		}
	case *models.ReactionChanged, *models.MessagePinned, *models.ReadReceipt:
		tl.Apply(e)
	case *models.PresenceChanged:
		if conv.peerID == "" || e.UserID == conv.peerID {
			state := "offline"
			if e.IsOnline {
				state = "online"
			}
			fmt.Printf("  * %s is %s\n", e.UserID, state)
		}
	case *models.TypingChanged:
		if e.RoomID == conv.roomID(self) && e.IsTyping {
			fmt.Printf("  * %s is typing...\n", e.UserID)
		}
	case *models.ErrorEvent:
		if e.Ref == models.CmdSendDirect || e.Ref == models.CmdSendGroup {
			if item, ok := tl.FailOldestPending(); ok {
				fmt.Printf("  ! not sent %q: %s (%s)\n", item.Message.Body, e.Detail, e.Code)
				return
			}
		}
		fmt.Printf("  ! %s: %s\n", e.Code, e.Detail)
	}
}

func printMessage(self string, m *models.Message, note string) {
	who := m.SenderID
	if who == self {
		who = "me"
	}
	body := m.Body
	if m.IsDeleted {
		body = "(deleted)"
	}
	line := fmt.Sprintf("[%s] %s: %s", m.CreatedAt.Local().Format("15:04:05"), who, body)
	if note != "" {
		line += "  (" + note + ")"
	}
	fmt.Println(line)
}

// slashCommand parses /edit, /delete, /react, /unreact, /read, /pin, /unpin
// and /quit. A nil command means quit.
func slashCommand(line string) (models.Command, error) {
	fields := strings.Fields(line)
	name, args := fields[0], fields[1:]

	need := func(n int) error {
		if len(args) < n {
			return fmt.Errorf("usage: %s needs %d argument(s)", name, n)
		}
		return nil
	}

	switch name {
	case "/quit":
		return nil, nil
	case "/edit":
		if err := need(2); err != nil {
			return nil, err
		}
		return models.Edit{MessageID: args[0], Body: strings.Join(args[1:], " ")}, nil
	case "/delete":
		if err := need(1); err != nil {
			return nil, err
		}
		return models.Delete{MessageID: args[0]}, nil
	case "/react", "/unreact":
		if err := need(2); err != nil {
			return nil, err
		}
		if name == "/unreact" {
			return models.Unreact{MessageID: args[0], Emoji: args[1]}, nil
		}
		return models.React{MessageID: args[0], Emoji: args[1]}, nil
	case "/read":
		if err := need(1); err != nil {
			return nil, err
		}
		return models.MarkRead{MessageID: args[0]}, nil
	case "/pin", "/unpin":
		if err := need(1); err != nil {
			return nil, err
		}
		return models.Pin{MessageID: args[0], Pinned: name == "/pin"}, nil
	}
	return nil, fmt.Errorf("commands: /edit <id> <text>, /delete <id>, /react <id> <emoji>, /unreact <id> <emoji>, /read <id>, /pin <id>, /unpin <id>, /quit")
}
