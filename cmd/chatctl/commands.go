package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/matheus3301/chatline/internal/api"
	"github.com/matheus3301/chatline/internal/app"
	"github.com/matheus3301/chatline/internal/bus"
	"github.com/matheus3301/chatline/internal/chat"
	"github.com/matheus3301/chatline/internal/config"
	"github.com/matheus3301/chatline/internal/conversation"
	"github.com/matheus3301/chatline/internal/profile"
	"github.com/matheus3301/chatline/internal/render"
	"github.com/matheus3301/chatline/internal/selection"
	"github.com/matheus3301/chatline/internal/status"
	"github.com/matheus3301/chatline/internal/store"
	"github.com/matheus3301/chatline/internal/transport"
	"github.com/spf13/cobra"
)

// echoWait bounds how long send waits for the server to echo the message.
const echoWait = 3 * time.Second

var (
	beforeID   string
	htmlOut    bool
	attachPath string
	showQR     bool
	outboxMax  int
	forceInit  bool
)

var historyCmd = &cobra.Command{
	Use:   "history <contact-id>",
	Short: "Print the conversation with a contact",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

var sendCmd = &cobra.Command{
	Use:   "send <contact-id> [text...]",
	Short: "Send a message, optionally with a file",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSend,
}

var uploadCmd = &cobra.Command{
	Use:   "upload <path>",
	Short: "Upload a file and print its attachment id",
	Args:  cobra.ExactArgs(1),
	RunE:  runUpload,
}

var addFriendCmd = &cobra.Command{
	Use:   "add-friend <username>",
	Short: "Send a friend request",
	Args:  cobra.ExactArgs(1),
	RunE:  runAddFriend,
}

var linkCmd = &cobra.Command{
	Use:   "link <contact-id>",
	Short: "Print the deep link that opens a chat",
	Args:  cobra.ExactArgs(1),
	RunE:  runLink,
}

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Inspect the outgoing message queue",
}

var outboxListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent outbox entries",
	Args:  cobra.NoArgs,
	RunE:  runOutboxList,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage config.toml",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config.toml with default values",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

func init() {
	historyCmd.Flags().StringVar(&beforeID, "before", "", "only messages older than this message id")
	historyCmd.Flags().BoolVar(&htmlOut, "html", false, "print the conversation as sanitised chat page markup")
	sendCmd.Flags().StringVar(&attachPath, "file", "", "file to attach")
	linkCmd.Flags().BoolVar(&showQR, "qr", false, "also print the link as a QR code")
	outboxListCmd.Flags().IntVar(&outboxMax, "limit", 50, "maximum entries to list")
	configInitCmd.Flags().BoolVar(&forceInit, "force", false, "overwrite an existing config.toml")

	outboxCmd.AddCommand(outboxListCmd)
	configCmd.AddCommand(configInitCmd)
}

func newClient(cfg *config.Config) *api.Client {
	return api.NewClient(api.Options{
		BaseURL: cfg.Server.BaseURL,
		Cookie:  cfg.Server.Cookie,
		Timeout: timeout,
		Decoder: chat.Decoder{BaseURL: cfg.Server.BaseURL, Location: time.UTC},
	}, nil)
}

func runHistory(cmd *cobra.Command, args []string) error {
	_, cfg, err := resolve()
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(cmd)
	defer cancel()

	client := newClient(cfg)
	var msgs []chat.Message
	if beforeID != "" {
		msgs, err = client.FetchBefore(ctx, args[0], beforeID)
	} else {
		msgs, err = client.FetchInitial(ctx, args[0])
	}
	if err != nil {
		return err
	}
	if jsonOut {
		return outputJSON(msgs)
	}

	r := render.New(cfg.User.ID, cfg.Location(), cfg.Chat.Locale)
	if htmlOut {
		fmt.Print(render.HTML(r.Project(msgs)))
		return nil
	}
	for _, it := range r.Project(msgs) {
		if it.IsDivider() {
			fmt.Printf("── %s ──\n", it.Divider)
			continue
		}
		row := it.Row
		fmt.Printf("%s  %s: %s\n", row.Time, row.Sender, row.Text)
		if row.Attachment != nil {
			fmt.Printf("    📎 %s %s\n", row.Attachment.Label, row.Attachment.URL)
		}
	}
	return nil
}

func runSend(cmd *cobra.Command, args []string) error {
	_, cfg, err := resolve()
	if err != nil {
		return err
	}
	if cfg.User.ID == "" {
		return errors.New("user id not configured (set [user] id or CHATLINE_USER_ID)")
	}
	ctx, cancel := withTimeout(cmd)
	defer cancel()

	msg := chat.Message{
		SenderID:    cfg.User.ID,
		RecipientID: args[0],
		Content:     strings.Join(args[1:], " "),
		Timestamp:   time.Now(),
	}
	if attachPath != "" {
		att, err := newClient(cfg).UploadFile(ctx, attachPath)
		if err != nil {
			return err
		}
		msg.Attachment = &att
		if msg.Content == "" {
			msg.Content = conversation.FilePrefix + att.Filename
		}
	}
	if msg.Content == "" {
		return errors.New("nothing to send")
	}

	u, err := transport.SocketURL(cfg.Server.BaseURL, cfg.Server.SocketPath)
	if err != nil {
		return err
	}
	b := bus.New()
	ch := transport.New(transport.Options{
		URL:     u,
		Cookie:  cfg.Server.Cookie,
		UserID:  cfg.User.ID,
		Decoder: chat.Decoder{BaseURL: cfg.Server.BaseURL, Location: time.UTC},
	}, status.NewMachine(b), b, nil)
	defer func() { _ = ch.Close() }()

	echoed := make(chan chat.Message, 1)
	ch.OnMessage(func(m chat.Message) {
		if m.SenderID == msg.SenderID && m.RecipientID == msg.RecipientID && m.Content == msg.Content {
			select {
			case echoed <- m:
			default:
			}
		}
	})

	if err := connect(ctx, ch, b); err != nil {
		return err
	}
	if err := ch.Send(chat.EventSendMessage, chat.EncodeSend(msg)); err != nil {
		return err
	}

	select {
	case m := <-echoed:
		if jsonOut {
			return outputJSON(m)
		}
		fmt.Printf("sent: id %s\n", m.ID)
	case <-time.After(echoWait):
		fmt.Println("sent (no echo from server)")
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// connect dials ch and waits until it reports Connected.
func connect(ctx context.Context, ch *transport.Channel, b *bus.Bus) error {
	changes, unsub := b.Subscribe(bus.KindTransport, 8)
	defer unsub()
	if err := ch.Connect(ctx); err != nil {
		return err
	}
	for {
		select {
		case evt := <-changes:
			if c, ok := evt.Payload.(status.StatusChange); ok && c.To == status.Connected {
				return nil
			}
		case <-ctx.Done():
			return fmt.Errorf("connect: %w", ctx.Err())
		}
	}
}

func runUpload(cmd *cobra.Command, args []string) error {
	_, cfg, err := resolve()
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(cmd)
	defer cancel()

	att, err := newClient(cfg).UploadFile(ctx, args[0])
	if err != nil {
		return err
	}
	if jsonOut {
		return outputJSON(att)
	}
	fmt.Printf("Attachment: %s\n", att.ID)
	fmt.Printf("Filename:   %s\n", att.Filename)
	fmt.Printf("URL:        %s\n", att.URL)
	return nil
}

func runAddFriend(cmd *cobra.Command, args []string) error {
	_, cfg, err := resolve()
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(cmd)
	defer cancel()

	if err := newClient(cfg).AddFriend(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("friend request sent to %s\n", args[0])
	return nil
}

func runLink(_ *cobra.Command, args []string) error {
	_, cfg, err := resolve()
	if err != nil {
		return err
	}
	link, err := selection.Link(strings.TrimRight(cfg.Server.BaseURL, "/")+app.ChatPage, args[0])
	if err != nil {
		return err
	}
	fmt.Println(link)
	if showQR {
		qr, err := selection.RenderQR(link)
		if err != nil {
			return err
		}
		fmt.Print(qr)
	}
	return nil
}

func runOutboxList(_ *cobra.Command, _ []string) error {
	name, _, err := resolve()
	if err != nil {
		return err
	}
	db, err := store.OpenMigrated(profile.StorePath(name))
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	entries, err := db.ListOutbox(outboxMax)
	if err != nil {
		return err
	}
	if jsonOut {
		return outputJSON(entries)
	}
	if len(entries) == 0 {
		fmt.Println("outbox is empty")
		return nil
	}
	fmt.Printf("%-8s %-10s %-8s %-20s %s\n", "STATUS", "TO", "TRIES", "QUEUED", "CONTENT")
	for _, e := range entries {
		content := e.Content
		if e.ErrorMessage != "" {
			content += " (" + e.ErrorMessage + ")"
		}
		fmt.Printf("%-8s %-10s %-8d %-20s %s\n",
			e.Status, e.RecipientID, e.Attempts,
			time.UnixMilli(e.CreatedAt).Format(time.DateTime), content)
	}
	return nil
}

func runConfigInit(_ *cobra.Command, _ []string) error {
	path := profile.ConfigPath()
	if _, err := os.Stat(path); err == nil && !forceInit {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.Save(path, config.Default()); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}
