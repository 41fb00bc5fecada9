package processor

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync/atomic"

	"github.com/amandeep2102/vision-chat/backend/logger"
	"github.com/amandeep2102/vision-chat/shared/models"
)

// ImageResolver turns a reference into an encoded payload.
type ImageResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// Report describes what happened to the image parts of one request.
type Report struct {
	ImagesResolved int
	ImagesDropped  int
}

type Normalizer struct {
	resolver ImageResolver
	maxDim   int

	resolved atomic.Int64
	dropped  atomic.Int64
}

// NewNormalizer builds a normalizer. Decoded images larger than maxDim on
// either side are downscaled; 0 keeps them as is.
func NewNormalizer(resolver ImageResolver, maxDim int) *Normalizer {
	return &Normalizer{resolver: resolver, maxDim: maxDim}
}

// Normalize converts caller turns into canonical turns. Image parts that fail
// to resolve or decode are logged and left out; the turn is still emitted.
// Parts are processed sequentially so output and log order follow the input.
func (n *Normalizer) Normalize(ctx context.Context, turns []models.ChatTurn) ([]models.CanonicalTurn, Report) {
	var report Report
	out := make([]models.CanonicalTurn, 0, len(turns))

	for ti, turn := range turns {
		canonical := models.CanonicalTurn{Role: turn.Role, Parts: []models.CanonicalPart{}}

		if turn.Content.IsText() {
			canonical.Parts = append(canonical.Parts, models.CanonicalPart{Kind: models.CanonicalText, Text: turn.Content.Text()})
			out = append(out, canonical)
			continue
		}

		for pi, part := range turn.Content.Parts() {
			switch part.Type {
			case models.PartTypeText:
				canonical.Parts = append(canonical.Parts, models.CanonicalPart{Kind: models.CanonicalText, Text: part.Text})
			case models.PartTypeImage:
				img, err := n.loadImage(ctx, part.URL)
				if err != nil {
					report.ImagesDropped++
					n.dropped.Add(1)
					slog.Warn("[CHAT] dropping image part",
						"turn", ti, "part", pi, "ref", part.URL,
						"reason", failureClass(err), logger.Err(err))
					continue
				}
				report.ImagesResolved++
				n.resolved.Add(1)
				canonical.Parts = append(canonical.Parts, models.CanonicalPart{Kind: models.CanonicalImage, Image: img})
			default:
				logger.Debugf("[CHAT] ignoring part type %q (turn %d, part %d)", part.Type, ti, pi)
			}
		}
		out = append(out, canonical)
	}
	return out, report
}

func (n *Normalizer) loadImage(ctx context.Context, ref string) (image.Image, error) {
	encoded, err := n.resolver.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	img, err := Decode(encoded)
	if err != nil {
		return nil, err
	}
	return Downscale(img, n.maxDim), nil
}

func failureClass(err error) string {
	switch {
	case errors.Is(err, ErrLocalImageMissing):
		return "local_image_missing"
	case errors.Is(err, ErrFetchFailed):
		return "fetch_failed"
	case errors.Is(err, ErrDecodeFailed):
		return "decode_failed"
	default:
		return "unexpected"
	}
}

type NormalizerStats struct {
	ImagesResolved int64 `json:"images_resolved"`
	ImagesDropped  int64 `json:"images_dropped"`
}

func (n *Normalizer) GetStats() NormalizerStats {
	return NormalizerStats{
		ImagesResolved: n.resolved.Load(),
		ImagesDropped:  n.dropped.Load(),
	}
}
