package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/devroad/mentorchat/internal/client"
	"github.com/devroad/mentorchat/internal/media"
	"github.com/devroad/mentorchat/internal/models"
)

const (
	clientURLVar   = "MENTORCHAT_URL"
	clientTokenVar = "MENTORCHAT_TOKEN"
	clientTimeout  = 2 * time.Minute
)

func printClientUsage(out io.Writer) {
	fmt.Fprintln(out, "Usage: mentorchat client <command> [args]")
	fmt.Fprintln(out, "  login <username> <password>              Print a token for MENTORCHAT_TOKEN")
	fmt.Fprintln(out, "  me")
	fmt.Fprintln(out, "  mentors")
	fmt.Fprintln(out, "  conversations")
	fmt.Fprintln(out, "  open <mentor id>")
	fmt.Fprintln(out, "  history <conversation id>")
	fmt.Fprintln(out, "  send <conversation id> <text> [--reply <message id>]")
	fmt.Fprintln(out, "  attach <conversation id> <image|voice|video> <file> [caption]")
	fmt.Fprintln(out, "  record <conversation id> <voice|video> <file>")
	fmt.Fprintf(out, "The server is read from %s (default http://localhost:8080).\n", clientURLVar)
}

func runClient(out io.Writer, args []string) error {
	if len(args) == 0 {
		printClientUsage(out)
		return fmt.Errorf("missing client command")
	}

	baseURL := os.Getenv(clientURLVar)
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	c := client.New(baseURL, os.Getenv(clientTokenVar))

	ctx, cancel := context.WithTimeout(context.Background(), clientTimeout)
	defer cancel()

	command, args := args[0], args[1:]
	switch command {
	case "login":
		if len(args) != 2 {
			return fmt.Errorf("usage: client login <username> <password>")
		}
		user, err := c.Login(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "# signed in as %s (%s)\n", user.Username, user.Role)
		fmt.Fprintf(out, "export %s=%s\n", clientTokenVar, c.Token())
		return nil

	case "me":
		user, err := client.NewSessionContext(c).Init(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%d\t%s\t%s\t%s\n", user.ID, user.Username, user.Name(), user.Role)
		return nil

	case "mentors":
		mentors, err := c.Mentors(ctx)
		if err != nil {
			return err
		}
		for _, m := range mentors {
			fmt.Fprintf(out, "%d\t%s\t%s\n", m.ID, m.Username, m.DisplayName)
		}
		return nil

	case "conversations":
		inbox := client.NewInbox(c, 0)
		if err := inbox.Refresh(ctx); err != nil {
			return err
		}
		for _, s := range inbox.Conversations() {
			last := ""
			if s.LastMessage != nil {
				last = s.LastMessage.Body
			}
			fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", s.ID, s.OtherParticipant.DisplayName, s.LastActivityAt.Format(time.RFC3339), last)
		}
		return nil

	case "open":
		if len(args) != 1 {
			return fmt.Errorf("usage: client open <mentor id>")
		}
		mentorID, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid mentor id %q", args[0])
		}
		detail, err := c.OpenConversation(ctx, mentorID)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\t%s <-> %s\n", detail.ID, detail.Learner.DisplayName, detail.Mentor.DisplayName)
		return nil

	case "history":
		if len(args) != 1 {
			return fmt.Errorf("usage: client history <conversation id>")
		}
		inbox := client.NewInbox(c, 0)
		if err := inbox.Open(ctx, args[0]); err != nil {
			return err
		}
		for inbox.HasOlder() {
			if _, err := inbox.LoadOlder(ctx); err != nil {
				return err
			}
		}
		for _, m := range inbox.Messages() {
			printMessage(out, m)
		}
		return nil

	case "send":
		return clientSend(ctx, out, c, args)

	case "attach":
		if len(args) < 3 {
			return fmt.Errorf("usage: client attach <conversation id> <image|voice|video> <file> [caption]")
		}
		kind, err := media.ParseKind(args[1], 0)
		if err != nil {
			return err
		}
		f, closeFile, err := openMediaFile(args[2])
		if err != nil {
			return err
		}
		defer closeFile()

		composer := client.NewComposer(nil, c, 0)
		if err := composer.PickFile(kind, f); err != nil {
			return err
		}
		return uploadAndSend(ctx, out, c, composer, args[0], strings.Join(args[3:], " "))

	case "record":
		if len(args) != 3 {
			return fmt.Errorf("usage: client record <conversation id> <voice|video> <file>")
		}
		kind, err := media.ParseKind(args[1], 0)
		if err != nil {
			return err
		}
		composer := client.NewComposer(&client.FileDevice{Path: args[2]}, c, 0)
		if err := composer.StartCapture(ctx, kind); err != nil {
			return err
		}
		f, err := composer.StopCapture()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "# recorded %s (%s, %s)\n", f.Name, f.DeclaredType, formatBytes(f.Size))
		return uploadAndSend(ctx, out, c, composer, args[0], "")

	case "-h", "--help", "help":
		printClientUsage(out)
		return nil
	}

	printClientUsage(os.Stderr)
	return fmt.Errorf("unknown client command: %s", command)
}

func clientSend(ctx context.Context, out io.Writer, c *client.Client, args []string) error {
	var replyTo *string
	var text []string
	for i := 0; i < len(args); i++ {
		if args[i] == "--reply" {
			i++
			if i >= len(args) {
				return fmt.Errorf("--reply requires a message id")
			}
			id := args[i]
			replyTo = &id
			continue
		}
		text = append(text, args[i])
	}
	if len(text) < 2 {
		return fmt.Errorf("usage: client send <conversation id> <text> [--reply <message id>]")
	}

	msg, err := c.Send(ctx, text[0], models.Draft{
		Kind:      models.KindText,
		Body:      strings.Join(text[1:], " "),
		ReplyToID: replyTo,
	})
	if err != nil {
		return err
	}
	printMessage(out, msg)
	return nil
}

func uploadAndSend(ctx context.Context, out io.Writer, c *client.Client, composer *client.Composer, conversationID, caption string) error {
	res, err := composer.Upload(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "# uploaded %s\n", res.URL)

	draft, err := composer.Draft(caption, nil)
	if err != nil {
		return err
	}
	msg, err := c.Send(ctx, conversationID, draft)
	if err != nil {
		return err
	}
	composer.Sent()
	printMessage(out, msg)
	return nil
}

// openMediaFile sniffs the declared type the way a browser would report it.
func openMediaFile(path string) (media.File, func(), error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return media.File{}, nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	fh, err := os.Open(path)
	if err != nil {
		return media.File{}, nil, err
	}
	info, err := fh.Stat()
	if err != nil {
		fh.Close()
		return media.File{}, nil, err
	}
	return media.File{
		Name:         filepath.Base(path),
		DeclaredType: mt.String(),
		Size:         info.Size(),
		Body:         fh,
	}, func() { fh.Close() }, nil
}

func printMessage(out io.Writer, m *models.Message) {
	line := fmt.Sprintf("%s  %s  %s: %s", m.CreatedAt.Local().Format("2006-01-02 15:04"), m.ID, m.Sender.DisplayName, m.Body)
	if m.Kind != models.KindText && m.MediaURL != nil {
		line += fmt.Sprintf(" [%s %s]", strings.ToLower(string(m.Kind)), *m.MediaURL)
	}
	if m.ReplyTo != nil {
		line += fmt.Sprintf(" (reply to %s: %q)", m.ReplyTo.SenderName, m.ReplyTo.Body)
	}
	fmt.Fprintln(out, line)
}
