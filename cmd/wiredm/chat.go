package main

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

	"github.com/vovakirdan/wiredm/internal/chatclient"
	"github.com/vovakirdan/wiredm/internal/proto"
)

const chatHelp = `Type a line and press Enter to send it.
  /read          mark the conversation read
  /typing        send a typing indicator
  /del <id>      delete a message for everyone
  /hide <id>     delete a message for yourself
  /log           print the local timeline
Ctrl+C to exit.`

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive terminal client for one conversation",
		RunE:  runChat,
	}
	cmd.Flags().String("addr", "ws://localhost:8080/ws", "WebSocket address")
	cmd.Flags().String("token", os.Getenv("WIREDM_TOKEN"), "bearer token (defaults to $WIREDM_TOKEN)")
	cmd.Flags().String("peer", "", "user id of the other participant")
	_ = cmd.MarkFlagRequired("peer")
	return cmd
}

func runChat(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	token, _ := cmd.Flags().GetString("token")
	peer, _ := cmd.Flags().GetString("peer")
	if token == "" {
		return errors.New("a token is required (--token or $WIREDM_TOKEN)")
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	client, err := chatclient.Dial(ctx, addr, token)
	if err != nil {
		return err
	}
	defer client.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Connected to %s as %s, talking to %s\n%s\n", addr, client.UserID(), peer, chatHelp)

	if err := client.Join(ctx, peer); err != nil {
		return err
	}

	readErr := make(chan error, 1)
	go func() {
		defer cancel()
		readErr <- client.Run(ctx, func(frame proto.Outbound) { printFrame(out, frame) })
	}()

	inputLoop(ctx, client, peer, cmd.InOrStdin(), out)

	cancel()
	if err := <-readErr; err != nil {
		return err
	}
	return nil
}

func inputLoop(ctx context.Context, client *chatclient.Client, peer string, in io.Reader, out io.Writer) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if err := handleLine(ctx, client, peer, strings.TrimSpace(line), out); err != nil {
				fmt.Fprintf(out, "! %v\n", err)
				return
			}
		}
	}
}

func handleLine(ctx context.Context, client *chatclient.Client, peer, line string, out io.Writer) error {
	cmd, arg, _ := strings.Cut(line, " ")
	switch cmd {
	case "":
		return nil
	case "/read":
		return client.MarkRead(ctx, peer)
	case "/typing":
		return client.Typing(ctx, peer)
	case "/del":
		return client.DeleteForEveryone(ctx, strings.TrimSpace(arg))
	case "/hide":
		return client.DeleteForMe(ctx, strings.TrimSpace(arg))
	case "/log":
		for _, e := range client.Timeline(peer).Entries() {
			state := e.Message.Status
			switch {
			case e.Failed != "":
				state = "failed"
			case e.Pending:
				state = "pending"
			}
			fmt.Fprintf(out, "  %s %s: %s (%s)\n", e.Message.ID, e.Message.SenderID, e.Message.Text, state)
		}
		return nil
	}
	_, err := client.Send(ctx, peer, line)
	return err
}

func printFrame(out io.Writer, frame proto.Outbound) {
	if frame.Type == proto.OutboundTypeError && frame.Error != nil {
		fmt.Fprintf(out, "! %s: %s\n", frame.Error.Code, frame.Error.Msg)
		return
	}

	switch frame.Event {
	case "message":
		var ev proto.EventMessage
		if frame.Decode(&ev) == nil {
			fmt.Fprintf(out, "[%s] %s: %s\n", ev.ID, ev.SenderID, ev.Text)
		}
	case "history":
		var ev proto.EventHistory
		if frame.Decode(&ev) == nil {
			for _, m := range ev.Messages {
				fmt.Fprintf(out, "[%s] %s: %s (%s)\n", m.ID, m.SenderID, m.Text, m.Status)
			}
		}
	case "status", "status_batch":
		var updates []proto.StatusUpdate
		if frame.Event == "status" {
			var u proto.StatusUpdate
			if frame.Decode(&u) == nil {
				updates = append(updates, u)
			}
		} else {
			var ev proto.EventStatusBatch
			if frame.Decode(&ev) == nil {
				updates = ev.Updates
			}
		}
		for _, u := range updates {
			fmt.Fprintf(out, "  %s -> %s\n", u.ID, u.Status)
		}
	case "typing":
		var ev proto.EventTyping
		if frame.Decode(&ev) == nil {
			fmt.Fprintf(out, "  %s is typing...\n", ev.UserID)
		}
	case "presence":
		var ev proto.EventPresence
		if frame.Decode(&ev) == nil {
			fmt.Fprintf(out, "  online: %s\n", strings.Join(ev.Online, ", "))
		}
	case "message_updated":
		var ev proto.EventMessage
		if frame.Decode(&ev) == nil {
			fmt.Fprintf(out, "[%s] %s: %s\n", ev.ID, ev.SenderID, ev.Text)
		}
	case "stop_typing", "ready":
	default:
		fmt.Fprintf(out, "event=%s data=%s\n", frame.Event, string(frame.Data))
	}
}
