package models

import (
	"strings"
	"time"
)

// ImageRecord is one uploaded image waiting to be referenced by a chat.
type ImageRecord struct {
	ID        string    `json:"id"`
	Data      string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type UploadImageRequest struct {
	Image string `json:"image"`
}

type UploadImageResponse struct {
	URL string `json:"url"`
	ID  string `json:"id"`
}

// ImageURLPrefix is the path under which stored images are served.
const ImageURLPrefix = "/api/images/"

func ImageURL(id string) string {
	return ImageURLPrefix + id
}

// StripDataURI drops a "data:image/png;base64," style prefix, returning the
// bare payload. Input without a prefix is returned unchanged.
func StripDataURI(data string) string {
	if _, payload, found := strings.Cut(data, ","); found {
		return payload
	}
	return data
}
