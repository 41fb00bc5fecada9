package processor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amandeep2102/vision-chat/shared/models"
)

func TestNormalizePlainText(t *testing.T) {
	n := NewNormalizer(NewResolver(mapStore{}), 0)

	out, report := n.Normalize(context.Background(), []models.ChatTurn{
		{Role: "user", Content: models.TextContent("hello")},
	})

	require.Len(t, out, 1)
	assert.Equal(t, "user", out[0].Role)
	require.Len(t, out[0].Parts, 1)
	assert.Equal(t, models.CanonicalText, out[0].Parts[0].Kind)
	assert.Equal(t, "hello", out[0].Parts[0].Text)
	assert.Equal(t, Report{}, report)
}

func TestNormalizeDropsUnresolvableImage(t *testing.T) {
	store := mapStore{testID: testPNGBase64(t, 3, 3)}
	n := NewNormalizer(NewResolver(store), 0)

	out, report := n.Normalize(context.Background(), []models.ChatTurn{{
		Role: "user",
		Content: models.PartsContent(
			models.ImagePart("/api/images/"+testID),
			models.ImagePart("/api/images/00000000-0000-4000-8000-000000000000"),
			models.TextPart("describe"),
		),
	}})

	require.Len(t, out, 1)
	parts := out[0].Parts
	require.Len(t, parts, 2)
	assert.Equal(t, models.CanonicalImage, parts[0].Kind)
	assert.Equal(t, 3, parts[0].Image.Bounds().Dx())
	assert.Equal(t, models.CanonicalText, parts[1].Kind)
	assert.Equal(t, "describe", parts[1].Text)

	assert.Equal(t, Report{ImagesResolved: 1, ImagesDropped: 1}, report)
	assert.Equal(t, NormalizerStats{ImagesResolved: 1, ImagesDropped: 1}, n.GetStats())
}

func TestNormalizeDropsUndecodableImage(t *testing.T) {
	store := mapStore{testID: "bm90IGFuIGltYWdl"}
	n := NewNormalizer(NewResolver(store), 0)

	out, report := n.Normalize(context.Background(), []models.ChatTurn{{
		Role:    "user",
		Content: models.PartsContent(models.ImagePart(testID)),
	}})

	require.Len(t, out, 1)
	assert.Empty(t, out[0].Parts)
	assert.Equal(t, 1, report.ImagesDropped)
}

func TestNormalizePreservesOrderAndRoles(t *testing.T) {
	store := mapStore{testID: testPNGBase64(t, 2, 2)}
	n := NewNormalizer(NewResolver(store), 0)

	out, _ := n.Normalize(context.Background(), []models.ChatTurn{
		{Role: "system", Content: models.TextContent("be brief")},
		{Role: "user", Content: models.PartsContent(
			models.TextPart("a"),
			models.ContentPart{Type: "audio", URL: "x"},
			models.ImagePart(testID),
			models.TextPart("b"),
		)},
		{Role: "tool-ish", Content: models.PartsContent()},
	})

	require.Len(t, out, 3)
	assert.Equal(t, []string{"system", "user", "tool-ish"}, []string{out[0].Role, out[1].Role, out[2].Role})

	kinds := make([]models.CanonicalPartKind, 0, len(out[1].Parts))
	for _, p := range out[1].Parts {
		kinds = append(kinds, p.Kind)
	}
	assert.Equal(t, []models.CanonicalPartKind{models.CanonicalText, models.CanonicalImage, models.CanonicalText}, kinds)
	assert.Equal(t, "a", out[1].Parts[0].Text)
	assert.Equal(t, "b", out[1].Parts[2].Text)
	assert.Empty(t, out[2].Parts)
}

func TestNormalizeDownscalesLargeImages(t *testing.T) {
	store := mapStore{testID: testPNGBase64(t, 64, 32)}
	n := NewNormalizer(NewResolver(store), 16)

	out, _ := n.Normalize(context.Background(), []models.ChatTurn{{
		Role:    "user",
		Content: models.PartsContent(models.ImagePart(testID)),
	}})

	require.Len(t, out[0].Parts, 1)
	assert.Equal(t, 16, out[0].Parts[0].Image.Bounds().Dx())
	assert.Equal(t, 8, out[0].Parts[0].Image.Bounds().Dy())
}
