package processor

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/amandeep2102/vision-chat/shared/models"
)

var ErrDecodeFailed = errors.New("image decode failed")

// DecodeBase64 turns an encoded payload (optionally data URI prefixed) into
// raw bytes. Padded and unpadded base64 are both accepted.
func DecodeBase64(encoded string) ([]byte, error) {
	payload := strings.TrimSpace(models.StripDataURI(encoded))
	if payload == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrDecodeFailed)
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
		}
	}
	return raw, nil
}

// Decode is the pure step from an encoded payload to pixels.
func Decode(encoded string) (image.Image, error) {
	raw, err := DecodeBase64(encoded)
	if err != nil {
		return nil, err
	}
	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	return img, nil
}

func EncodeBase64(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}

// EncodePNG renders img as PNG, which every vision backend accepts.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encoding png: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodePNGBase64 is EncodePNG followed by base64.
func EncodePNGBase64(img image.Image) (string, error) {
	raw, err := EncodePNG(img)
	if err != nil {
		return "", err
	}
	return EncodeBase64(raw), nil
}
