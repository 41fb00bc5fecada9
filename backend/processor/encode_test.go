package processor

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func testPNGBase64(t *testing.T, w, h int) string {
	return base64.StdEncoding.EncodeToString(testPNG(t, w, h))
}

func TestDecodeValidPayloads(t *testing.T) {
	encoded := testPNGBase64(t, 4, 3)

	tests := map[string]string{
		"bare":     encoded,
		"data uri": "data:image/png;base64," + encoded,
		"unpadded": base64.RawStdEncoding.EncodeToString(testPNG(t, 4, 3)),
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			img, err := Decode(in)
			require.NoError(t, err)
			assert.Equal(t, 4, img.Bounds().Dx())
			assert.Equal(t, 3, img.Bounds().Dy())
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	raw := testPNG(t, 8, 8)
	truncated := base64.StdEncoding.EncodeToString(raw[:len(raw)/2])

	for name, in := range map[string]string{
		"empty":      "",
		"not base64": "!!!not-base64!!!",
		"not image":  base64.StdEncoding.EncodeToString([]byte("plain text")),
		"truncated":  truncated,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(in)
			assert.ErrorIs(t, err, ErrDecodeFailed)
		})
	}
}

func TestEncodePNGBase64RoundTrip(t *testing.T) {
	img, err := Decode(testPNGBase64(t, 5, 7))
	require.NoError(t, err)

	encoded, err := EncodePNGBase64(img)
	require.NoError(t, err)

	again, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, img.Bounds().Size(), again.Bounds().Size())
}

func TestDownscale(t *testing.T) {
	img, err := Decode(testPNGBase64(t, 200, 100))
	require.NoError(t, err)

	small := Downscale(img, 50)
	assert.Equal(t, 50, small.Bounds().Dx())
	assert.Equal(t, 25, small.Bounds().Dy())

	assert.Same(t, img, Downscale(img, 0))
	assert.Same(t, img, Downscale(img, 500))
}
