package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/amandeep2102/vision-chat/backend/logger"
	"github.com/amandeep2102/vision-chat/backend/processor"
	"github.com/amandeep2102/vision-chat/shared/models"
)

const (
	defaultOllamaURL = "http://127.0.0.1:11434"
	probeTimeout     = 5 * time.Second
)

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content *string  `json:"content,omitempty"`
	Images  []string `json:"images,omitempty"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Model     string         `json:"model"`
	CreatedAt time.Time      `json:"created_at"`
	Message   *ollamaMessage `json:"message"`
	Done      bool           `json:"done"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}

// OllamaPipeline talks to an Ollama server's /api/chat endpoint.
type OllamaPipeline struct {
	readiness
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOllamaPipeline starts out not loaded; Probe flips it once the server
// lists model.
func NewOllamaPipeline(baseURL, model string, httpClient *http.Client) *OllamaPipeline {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &OllamaPipeline{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: httpClient,
	}
}

func (o *OllamaPipeline) Probe(ctx context.Context) error {
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

func (o *OllamaPipeline) probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("server not reachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return fmt.Errorf("decoding model list: %w", err)
	}
	for _, m := range tags.Models {
		if sameOllamaModel(m.Name, o.model) || sameOllamaModel(m.Model, o.model) {
			return nil
		}
	}
	return fmt.Errorf("model %q is not available on %s", o.model, o.baseURL)
}

func sameOllamaModel(listed, want string) bool {
	if listed == "" {
		return false
	}
	return listed == want || listed == want+":latest"
}

func (o *OllamaPipeline) Generate(ctx context.Context, turns []models.CanonicalTurn, params GenerationParams) ([]models.GeneratedTurn, error) {
	messages, err := toOllamaMessages(turns)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(ollamaChatRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   false,
		Options: map[string]any{
			"num_predict": params.MaxNewTokens,
			"temperature": params.EffectiveTemperature(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama error: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	var out ollamaChatResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedModelOutput, err)
	}
	if out.Message == nil {
		return nil, nil
	}
	role := out.Message.Role
	if role == "" {
		role = models.RoleAssistant
	}
	return []models.GeneratedTurn{{Role: role, Content: out.Message.Content}}, nil
}

// toOllamaMessages flattens text parts into content and images into the
// per message base64 list Ollama expects.
func toOllamaMessages(turns []models.CanonicalTurn) ([]ollamaMessage, error) {
	messages := make([]ollamaMessage, 0, len(turns))
	for _, turn := range turns {
		var texts []string
		var images []string
		for _, part := range turn.Parts {
			switch part.Kind {
			case models.CanonicalText:
				texts = append(texts, part.Text)
			case models.CanonicalImage:
				encoded, err := processor.EncodePNGBase64(part.Image)
				if err != nil {
					return nil, err
				}
				images = append(images, encoded)
			}
		}
		content := strings.Join(texts, "\n")
		if content == "" {
			// some Ollama versions reject an empty content field
			content = " "
		}
		messages = append(messages, ollamaMessage{Role: turn.Role, Content: &content, Images: images})
	}
	return messages, nil
}
