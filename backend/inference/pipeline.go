package inference

import (
	"context"
	"sync/atomic"

	"github.com/amandeep2102/vision-chat/shared/models"
)

type Status int32

const (
	StatusNotLoaded Status = iota
	StatusLoaded
)

func (s Status) String() string {
	if s == StatusLoaded {
		return "loaded"
	}
	return "not_loaded"
}

// GenerationParams is server side policy; requests cannot override it.
type GenerationParams struct {
	MaxNewTokens int     `json:"max_new_tokens"`
	DoSample     bool    `json:"do_sample"`
	Temperature  float64 `json:"temperature"`
}

// EffectiveTemperature is 0 when sampling is off.
func (p GenerationParams) EffectiveTemperature() float64 {
	if !p.DoSample {
		return 0
	}
	return p.Temperature
}

// Pipeline is the multimodal model. Generate returns only the turns the
// model produced, newest last.
type Pipeline interface {
	Status() Status
	Generate(ctx context.Context, turns []models.CanonicalTurn, params GenerationParams) ([]models.GeneratedTurn, error)
}

// Prober is implemented by pipelines whose readiness lives in another process.
type Prober interface {
	Probe(ctx context.Context) error
}

// readiness is the shared Loaded/NotLoaded flag of remote backends.
type readiness struct {
	status atomic.Int32
}

func (r *readiness) Status() Status {
	return Status(r.status.Load())
}

func (r *readiness) set(s Status) (changed bool) {
	return Status(r.status.Swap(int32(s))) != s
}
