package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"time"
)

const (
	PartTypeText  = "text"
	PartTypeImage = "image"

	RoleAssistant = "assistant"
)

// ContentPart is one typed entry of a multi-part message. Only the fields
// relevant to Type are populated.
type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	URL  string `json:"url,omitempty"`
}

func TextPart(text string) ContentPart {
	return ContentPart{Type: PartTypeText, Text: text}
}

func ImagePart(url string) ContentPart {
	return ContentPart{Type: PartTypeImage, URL: url}
}

type contentKind int

const (
	contentText contentKind = iota
	contentParts
)

// Content is either plain text or an ordered list of parts. The JSON form is
// a string or an array; anything else fails to unmarshal.
type Content struct {
	kind  contentKind
	text  string
	parts []ContentPart
}

func TextContent(text string) Content {
	return Content{kind: contentText, text: text}
}

func PartsContent(parts ...ContentPart) Content {
	return Content{kind: contentParts, parts: parts}
}

func (c Content) IsText() bool { return c.kind == contentText }

func (c Content) Text() string { return c.text }

func (c Content) Parts() []ContentPart { return c.parts }

func (c Content) MarshalJSON() ([]byte, error) {
	if c.kind == contentParts {
		if c.parts == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(c.parts)
	}
	return json.Marshal(c.text)
}

func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("content: empty value")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("content: %w", err)
		}
		*c = TextContent(s)
	case '[':
		var parts []ContentPart
		if err := json.Unmarshal(data, &parts); err != nil {
			return fmt.Errorf("content: %w", err)
		}
		*c = PartsContent(parts...)
	default:
		return fmt.Errorf("content must be a string or an array of parts")
	}
	return nil
}

// ChatTurn is a caller supplied message.
type ChatTurn struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

type ChatRequest struct {
	Messages []ChatTurn      `json:"messages"`
	Model    string          `json:"model,omitempty"`
	Tools    json.RawMessage `json:"tools,omitempty"`
}

// ============ Canonical form ============

type CanonicalPartKind int

const (
	CanonicalText CanonicalPartKind = iota
	CanonicalImage
)

// CanonicalPart carries a fully resolved payload.
type CanonicalPart struct {
	Kind  CanonicalPartKind
	Text  string
	Image image.Image
}

type CanonicalTurn struct {
	Role  string
	Parts []CanonicalPart
}

// GeneratedTurn is one entry of a pipeline's output sequence. A nil Content
// means the pipeline omitted the field.
type GeneratedTurn struct {
	Role    string
	Content *string
}

// GenerationResult is what the invoker hands to the response shaper.
type GenerationResult struct {
	Text     string
	Elapsed  time.Duration
	ModelID  string
	Finished time.Time
}

// ============ HTTP envelopes ============

type ResponseMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatResponse struct {
	Message         ResponseMessage `json:"message"`
	Model           string          `json:"model"`
	CreatedAt       string          `json:"created_at"`
	Done            bool            `json:"done"`
	DurationSeconds float64         `json:"duration_seconds"`
}

type HealthResponse struct {
	OK          bool   `json:"ok"`
	Model       string `json:"model"`
	ModelStatus string `json:"model_status"`
	Timestamp   string `json:"timestamp"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
