package completion

import (
	"github.com/young1lin/lorph/internal/config"
	"github.com/young1lin/lorph/internal/models"
)

// OptionsFromConfig returns the sampling parameters configured for completions
func OptionsFromConfig(cfg *config.CompletionConfig) models.GenerationOptions {
	return models.GenerationOptions{
		Temperature: cfg.Temperature,
		TopK:        cfg.TopK,
		TopP:        cfg.TopP,
	}
}

// BuildRequest assembles a streaming completion request
func BuildRequest(model string, messages []models.ChatMessage, opts models.GenerationOptions) *models.CompletionRequest {
	return &models.CompletionRequest{
		Model:    model,
		Messages: messages,
		Stream:   true,
		Options:  opts,
	}
}

// ConvertHistory replays prior conversation messages as completion messages.
// Only the stored content is sent: injected search context and control
// instructions of earlier turns never reach the message list.
func ConvertHistory(history []models.Message) []models.ChatMessage {
	messages := make([]models.ChatMessage, 0, len(history))
	for _, m := range history {
		msg := convertMessage(m)
		if msg != nil {
			messages = append(messages, *msg)
		}
	}
	return messages
}

func convertMessage(m models.Message) *models.ChatMessage {
	switch m.Role {
	case models.RoleUser, models.RoleAssistant:
	default:
		return nil
	}
	return &models.ChatMessage{
		Role:    m.Role,
		Content: m.Content,
	}
}
