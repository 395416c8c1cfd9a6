// Package stream decodes newline-delimited JSON completion streams and splits
// the accumulated text into visible content and the related-question markers.
package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// StreamError is an error the upstream reported inside an otherwise healthy stream
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("upstream stream error: %s", e.Message)
}

// Result is the outcome of a decoded stream
type Result struct {
	Text      string   // everything received, markers included
	Visible   string   // text shown to the user
	Related   []string // at most MaxRelatedQuestions
	Cancelled bool     // stream ended by the caller, not by the upstream
}

// frame holds every field any supported upstream shape may carry
type frame struct {
	Message *struct {
		Content string `json:"content"`
	} `json:"message"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		Text    string `json:"text"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Response     string          `json:"response"`
	Done         bool            `json:"done"`
	FinishReason string          `json:"finish_reason"`
	Error        json.RawMessage `json:"error"`
}

// matcher pulls a content delta out of one frame shape
type matcher struct {
	name  string
	match func(f *frame) string
}

// matchers are tried in order, the first non-empty delta wins
var matchers = []matcher{
	{"message", func(f *frame) string {
		if f.Message == nil {
			return ""
		}
		return f.Message.Content
	}},
	{"chat_delta", func(f *frame) string {
		if len(f.Choices) == 0 {
			return ""
		}
		return f.Choices[0].Delta.Content
	}},
	{"completion_text", func(f *frame) string {
		if len(f.Choices) == 0 {
			return ""
		}
		return f.Choices[0].Text
	}},
	{"response", func(f *frame) string {
		return f.Response
	}},
	{"chat_message", func(f *frame) string {
		if len(f.Choices) == 0 {
			return ""
		}
		return f.Choices[0].Message.Content
	}},
}

func (f *frame) delta() string {
	for _, m := range matchers {
		if d := m.match(f); d != "" {
			return d
		}
	}
	return ""
}

func (f *frame) finished() bool {
	if f.Done || f.FinishReason != "" {
		return true
	}
	return len(f.Choices) > 0 && f.Choices[0].FinishReason != nil && *f.Choices[0].FinishReason != ""
}

// upstreamError returns the in-band error message, if the frame carries one
func (f *frame) upstreamError() string {
	if len(f.Error) == 0 || string(f.Error) == "null" {
		return ""
	}
	var msg string
	if err := json.Unmarshal(f.Error, &msg); err == nil {
		return msg
	}
	var detail struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(f.Error, &detail); err == nil && detail.Message != "" {
		return detail.Message
	}
	return string(f.Error)
}

// Decoder incrementally decodes a completion stream.
// It is not safe for concurrent use.
type Decoder struct {
	pending []byte
	text    strings.Builder
	done    bool
	err     error
	log     *zap.Logger
}

// NewDecoder creates a decoder; log may be nil
func NewDecoder(log *zap.Logger) *Decoder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Decoder{log: log}
}

// Feed consumes the next raw chunk. Partial lines are buffered until a later
// chunk completes them. It reports whether the accumulated text grew.
// Once the stream is done further input is ignored.
func (d *Decoder) Feed(p []byte) bool {
	if d.done {
		return false
	}
	d.pending = append(d.pending, p...)

	grew := false
	for !d.done {
		i := bytes.IndexByte(d.pending, '\n')
		if i < 0 {
			break
		}
		line := d.pending[:i]
		d.pending = d.pending[i+1:]
		if d.line(line) {
			grew = true
		}
	}
	return grew
}

// line handles one complete line and reports whether text was appended
func (d *Decoder) line(raw []byte) bool {
	line := bytes.TrimSpace(raw)
	if len(line) == 0 {
		return false
	}
	if rest, ok := bytes.CutPrefix(line, []byte("data:")); ok {
		line = bytes.TrimSpace(rest)
	}
	if string(line) == "[DONE]" {
		d.done = true
		return false
	}

	var f frame
	if err := json.Unmarshal(line, &f); err != nil {
		d.log.Debug("skipping malformed stream line", zap.Error(err), zap.Int("bytes", len(line)))
		return false
	}

	if msg := f.upstreamError(); msg != "" {
		d.err = &StreamError{Message: msg}
		d.done = true
		return false
	}

	delta := f.delta()
	if delta != "" {
		d.text.WriteString(delta)
	}
	if f.finished() {
		d.done = true
	}
	return delta != ""
}

// Done reports whether the stream signalled its end
func (d *Decoder) Done() bool {
	return d.done
}

// Err returns the in-band upstream error, if one terminated the stream
func (d *Decoder) Err() error {
	return d.err
}

// Text returns everything accumulated so far, markers included
func (d *Decoder) Text() string {
	return d.text.String()
}

// Visible recomputes the visible prefix from the whole accumulated text
func (d *Decoder) Visible() string {
	return VisibleContent(d.text.String(), false)
}

// Finish flushes a trailing unterminated line and returns the final result.
// Calling it more than once returns the same result.
func (d *Decoder) Finish() *Result {
	if !d.done && len(d.pending) > 0 {
		d.line(d.pending)
	}
	d.pending = nil
	d.done = true

	text := d.text.String()
	return &Result{
		Text:    text,
		Visible: VisibleContent(text, true),
		Related: RelatedQuestions(text),
	}
}
