package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/young1lin/lorph/internal/models"
	"github.com/young1lin/lorph/internal/session"
	"github.com/young1lin/lorph/internal/stream"
)

type echoCompleter struct{}

func (echoCompleter) Stream(ctx context.Context, model string, messages []models.ChatMessage, onChunk func(string)) (*stream.Result, error) {
	text := "Hello from " + model + " <<Tell me more>>"
	onChunk(stream.VisibleContent(text, false))
	return &stream.Result{
		Text:    text,
		Visible: stream.VisibleContent(text, true),
		Related: stream.RelatedQuestions(text),
	}, nil
}

func runREPL(t *testing.T, sess *session.Session, input string) string {
	t.Helper()
	var out bytes.Buffer
	r := newREPL(sess, strings.NewReader(input), &out)
	require.NoError(t, r.Run(context.Background()))
	return out.String()
}

func TestREPLConversation(t *testing.T) {
	sess := session.New(echoCompleter{}, nil, session.WithModels("m1", []string{"m1", "m2"}))

	out := runREPL(t, sess, "hi\n/history\n/quit\nnever read\n")

	require.Contains(t, out, "Hello from m1 ")
	require.Contains(t, out, "Related:\n  - Tell me more")
	require.NotContains(t, out, "<<")
	require.Contains(t, out, " 1 user      hi")
	require.Contains(t, out, " 2 assistant Hello from m1")
	require.Len(t, sess.Messages(), 2)
}

func TestREPLModelCommands(t *testing.T) {
	sess := session.New(echoCompleter{}, nil, session.WithModels("m1", []string{"m1", "m2"}))

	out := runREPL(t, sess, "/models\n/model m3\n/model m2\nhello\n")

	require.Contains(t, out, "* m1\n  m2\n")
	require.Contains(t, out, `cannot use model "m3"`)
	require.Contains(t, out, "model set to m2")
	require.Contains(t, out, "Hello from m2")
}

func TestREPLEditRegenerateAndClear(t *testing.T) {
	sess := session.New(echoCompleter{}, nil)

	out := runREPL(t, sess, "first question\n/edit 9 nope\n/edit 1 better question\n/regen 2\n")
	require.Contains(t, out, `no message "9"`)

	msgs := sess.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "better question", msgs[0].Content)

	runREPL(t, sess, "/clear\n")
	require.Empty(t, sess.Messages())
}

func TestREPLAttach(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("meeting notes"), 0o644))
	sess := session.New(echoCompleter{}, nil)

	out := runREPL(t, sess, "/attach "+path+"\n/attach /does/not/exist\nsummarize\n")

	require.Contains(t, out, "attached notes.txt (13 bytes)")
	require.Contains(t, out, "attach failed")
	user := sess.Messages()[0]
	require.Equal(t, []string{"notes.txt"}, user.Attachments)
	require.Contains(t, user.Content, "meeting notes")
}

func TestREPLUnknownCommand(t *testing.T) {
	sess := session.New(echoCompleter{}, nil)
	out := runREPL(t, sess, "/bogus\n")
	require.Contains(t, out, "unknown command /bogus")
}
