package inference

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"github.com/amandeep2102/vision-chat/backend/logger"
	"github.com/amandeep2102/vision-chat/backend/processor"
	"github.com/amandeep2102/vision-chat/shared/models"
)

// greedyTemperature stands in for 0, which the client omits from requests.
const greedyTemperature = 1e-6

// OpenAIPipeline serves the model through an OpenAI compatible chat
// completions endpoint (vLLM, TGI, llama.cpp server, ...).
type OpenAIPipeline struct {
	readiness
	api   *openai.Client
	model string
}

func NewOpenAIPipeline(baseURL, apiKey, model string, httpClient *http.Client) *OpenAIPipeline {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return &OpenAIPipeline{
		api:   openai.NewClientWithConfig(cfg),
		model: model,
	}
}

func (o *OpenAIPipeline) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	err := o.probe(ctx)
	status := StatusLoaded
	if err != nil {
		status = StatusNotLoaded
	}
	if o.set(status) {
		logger.Infof("[MODEL] %s is now %s", o.model, status)
	}
	return err
}

func (o *OpenAIPipeline) probe(ctx context.Context) error {
	list, err := o.api.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("listing models: %w", err)
	}
	for _, m := range list.Models {
		if m.ID == o.model {
			return nil
		}
	}
	return fmt.Errorf("model %q is not served", o.model)
}

func (o *OpenAIPipeline) Generate(ctx context.Context, turns []models.CanonicalTurn, params GenerationParams) ([]models.GeneratedTurn, error) {
	messages, err := toOpenAIMessages(turns)
	if err != nil {
		return nil, err
	}

	temperature := float32(params.EffectiveTemperature())
	if temperature == 0 {
		temperature = greedyTemperature
	}
	resp, err := o.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    messages,
		MaxTokens:   params.MaxNewTokens,
		Temperature: temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	out := make([]models.GeneratedTurn, 0, 1)
	if len(resp.Choices) > 0 {
		msg := resp.Choices[0].Message
		content := msg.Content
		out = append(out, models.GeneratedTurn{Role: msg.Role, Content: &content})
	}
	return out, nil
}

func toOpenAIMessages(turns []models.CanonicalTurn) ([]openai.ChatCompletionMessage, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(turns))
	for _, turn := range turns {
		if len(turn.Parts) == 1 && turn.Parts[0].Kind == models.CanonicalText {
			messages = append(messages, openai.ChatCompletionMessage{Role: turn.Role, Content: turn.Parts[0].Text})
			continue
		}

		parts := make([]openai.ChatMessagePart, 0, len(turn.Parts))
		for _, part := range turn.Parts {
			switch part.Kind {
			case models.CanonicalText:
				parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: part.Text})
			case models.CanonicalImage:
				encoded, err := processor.EncodePNGBase64(part.Image)
				if err != nil {
					return nil, err
				}
				parts = append(parts, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL:    "data:image/png;base64," + encoded,
						Detail: openai.ImageURLDetailAuto,
					},
				})
			}
		}
		if len(parts) == 0 {
			messages = append(messages, openai.ChatCompletionMessage{Role: turn.Role, Content: ""})
			continue
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: turn.Role, MultiContent: parts})
	}
	return messages, nil
}
