package attachment

import (
	"context"
	"fmt"
	"strings"

	errors "github.com/Laisky/errors/v2"
	"go.uber.org/zap"

	"github.com/young1lin/lorph/pkg/logger"
)

const (
	footer            = "---------------------------"
	unsupportedNotice = "[System: File type not supported for text extraction, but file is attached.]"
)

// Render wraps one file's extraction outcome in its name header and footer
func Render(name, text string, err error) string {
	body := strings.TrimSpace(text)
	if err != nil {
		var exErr *ExtractionError
		if errors.As(err, &exErr) && exErr.Kind == KindUnsupported {
			body = unsupportedNotice
		} else {
			body = fmt.Sprintf("[Error extracting text: %s]", err.Error())
		}
	}
	return fmt.Sprintf("------- %s -------\n%s\n%s", name, body, footer)
}

// RenderAll extracts every file and renders the blocks in order. A failing
// file becomes an inline error block and never stops the rest.
func RenderAll(ctx context.Context, x Extractor, files []File) string {
	log := logger.FromContext(ctx).Named("attachment")

	blocks := make([]string, 0, len(files))
	for _, f := range files {
		text, err := x.Extract(ctx, f)
		if err != nil {
			log.Warn("text extraction failed", zap.String("file", f.Name), zap.Error(err))
		}
		blocks = append(blocks, Render(f.Name, text, err))
	}
	return strings.Join(blocks, "\n\n")
}

// Compose appends rendered attachments to the user's text
func Compose(text, rendered string) string {
	if rendered == "" {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(text + "\n\n" + rendered)
}

// Names returns the file names in order
func Names(files []File) []string {
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	return names
}
