package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/young1lin/lorph/internal/attachment"
	"github.com/young1lin/lorph/internal/session"
	"github.com/young1lin/lorph/pkg/logger"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat in the terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		r := newREPL(a.session, os.Stdin, os.Stdout)

		// Ctrl+C stops the running turn, or exits when idle
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigs)
		go func() {
			for range sigs {
				if !a.session.Stop() {
					a.Close()
					os.Exit(130)
				}
			}
		}()

		return r.Run(context.Background())
	},
}

const helpText = `Commands:
  /help              show this help
  /models            list the selectable models
  /model <id>        switch model
  /attach <path>     attach a file to the next message
  /history           list the conversation
  /edit <n> <text>   replace message n and ask again
  /regen <n>         regenerate answer n
  /clear             start over
  /quit              exit
Press Ctrl+C to stop an answer.`

// repl is a line-oriented terminal client for a session
type repl struct {
	session *session.Session
	in      io.Reader
	out     io.Writer
	pending []attachment.File
}

func newREPL(sess *session.Session, in io.Reader, out io.Writer) *repl {
	return &repl{session: sess, in: in, out: out}
}

// Run reads lines until EOF or /quit
func (r *repl) Run(ctx context.Context) error {
	fmt.Fprintf(r.out, "lorph %s, model %s. Type /help for commands.\n", Version, r.session.Model())

	scanner := bufio.NewScanner(r.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Fprint(r.out, "\n> ")
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := r.command(ctx, line); quit {
				return nil
			}
			continue
		}

		files := r.pending
		r.pending = nil
		r.runTurn(ctx, func(ctx context.Context) (*session.Turn, error) {
			return r.session.Submit(ctx, session.Input{Text: line, Files: files})
		})
	}
}

// command executes a slash command and reports whether to quit
func (r *repl) command(ctx context.Context, line string) bool {
	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch name {
	case "/help":
		fmt.Fprintln(r.out, helpText)
	case "/quit", "/exit":
		return true
	case "/models":
		current := r.session.Model()
		for _, m := range r.session.Models() {
			marker := " "
			if m == current {
				marker = "*"
			}
			fmt.Fprintf(r.out, "%s %s\n", marker, m)
		}
	case "/model":
		if err := r.session.SetModel(rest); err != nil {
			fmt.Fprintf(r.out, "cannot use model %q: %v\n", rest, err)
			return false
		}
		fmt.Fprintf(r.out, "model set to %s\n", rest)
	case "/attach":
		f, err := attachment.Open(rest)
		if err != nil {
			fmt.Fprintf(r.out, "attach failed: %v\n", err)
			return false
		}
		r.pending = append(r.pending, f)
		fmt.Fprintf(r.out, "attached %s (%d bytes), it will be sent with your next message\n", f.Name, len(f.Data))
	case "/history":
		r.printHistory()
	case "/edit":
		n, text, _ := strings.Cut(rest, " ")
		id, ok := r.messageID(n)
		if !ok {
			return false
		}
		r.runTurn(ctx, func(ctx context.Context) (*session.Turn, error) {
			return r.session.Edit(ctx, id, text)
		})
	case "/regen":
		id, ok := r.messageID(rest)
		if !ok {
			return false
		}
		r.runTurn(ctx, func(ctx context.Context) (*session.Turn, error) {
			return r.session.Regenerate(ctx, id)
		})
	case "/clear":
		r.session.Reset()
		r.pending = nil
		fmt.Fprintln(r.out, "conversation cleared")
	default:
		fmt.Fprintf(r.out, "unknown command %s, type /help\n", name)
	}
	return false
}

// messageID resolves a 1-based message number from /history
func (r *repl) messageID(n string) (string, bool) {
	msgs := r.session.Messages()
	i, err := strconv.Atoi(n)
	if err != nil || i < 1 || i > len(msgs) {
		fmt.Fprintf(r.out, "no message %q, see /history\n", n)
		return "", false
	}
	return msgs[i-1].ID, true
}

func (r *repl) printHistory() {
	msgs := r.session.Messages()
	if len(msgs) == 0 {
		fmt.Fprintln(r.out, "no messages yet")
		return
	}
	for i, m := range msgs {
		content := strings.ReplaceAll(m.Content, "\n", " ")
		if runes := []rune(content); len(runes) > 80 {
			content = string(runes[:80]) + "..."
		}
		fmt.Fprintf(r.out, "%2d %-9s %s\n", i+1, m.Role, content)
	}
}

// runTurn submits a turn and prints its events until it is done
func (r *repl) runTurn(ctx context.Context, submit func(ctx context.Context) (*session.Turn, error)) {
	events, unsubscribe := r.session.Subscribe()
	defer unsubscribe()

	turn, err := submit(ctx)
	if err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return
	}
	if turn == nil {
		return
	}

	log := logger.WithTurnID(turn.ID)
	printed := ""
	// show prints what content adds to the printed text; events carry full text
	show := func(content string) {
		if content == printed {
			return
		}
		if strings.HasPrefix(content, printed) {
			fmt.Fprint(r.out, content[len(printed):])
		} else {
			fmt.Fprint(r.out, "\n"+content)
		}
		printed = content
	}

	for ev := range events {
		if ev.TurnID != turn.ID {
			continue
		}

		switch ev.Type {
		case session.EventSearching:
			fmt.Fprintln(r.out, "Searching the web...")
		case session.EventSearchResults:
			if len(ev.Results) == 0 {
				fmt.Fprintln(r.out, "No sources found, answering from the model's knowledge.")
				break
			}
			fmt.Fprintf(r.out, "Sources (%d):\n", len(ev.Results))
			for i, res := range ev.Results {
				fmt.Fprintf(r.out, "  [%d] %s (%s)\n", i+1, res.Title, res.Source)
			}
			fmt.Fprintln(r.out)
		case session.EventContent:
			show(ev.Content)
		case session.EventError:
			// the annotated message arrives with the done snapshot
			log.Debug("turn failed", zap.String("error", ev.Error))
		case session.EventRelatedQuestions:
			show(ev.Content)
			fmt.Fprintln(r.out, "\n\nRelated:")
			for _, q := range ev.Related {
				fmt.Fprintf(r.out, "  - %s\n", q)
			}
		case session.EventDone:
			// content events may have been skipped; the snapshot is authoritative
			if len(ev.Messages) > 0 {
				show(ev.Messages[0].Content)
			}
			if ev.State == session.StateAborted {
				fmt.Fprintln(r.out, "\n[stopped]")
			} else {
				fmt.Fprintln(r.out)
			}
			log.Debug("turn rendered", zap.Int("chars", len(printed)))
			return
		}
	}
}
