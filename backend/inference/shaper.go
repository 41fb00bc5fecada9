package inference

import (
	"time"

	"github.com/amandeep2102/vision-chat/shared/models"
)

// Shape wraps a generation into the chat response envelope. The model id is
// echoed as requested and done is always true (no streaming).
func Shape(result models.GenerationResult, now time.Time) models.ChatResponse {
	return models.ChatResponse{
		Message: models.ResponseMessage{
			Role:    models.RoleAssistant,
			Content: result.Text,
		},
		Model:           result.ModelID,
		CreatedAt:       now.Format(time.RFC3339Nano),
		Done:            true,
		DurationSeconds: result.Elapsed.Seconds(),
	}
}
