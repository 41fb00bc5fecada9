package inference

import (
	"context"
	"time"

	"github.com/amandeep2102/vision-chat/backend/logger"
)

// ReadinessProbe keeps a remote pipeline's Loaded flag current.
type ReadinessProbe struct {
	prober   Prober
	interval time.Duration
}

func NewReadinessProbe(prober Prober, interval time.Duration) *ReadinessProbe {
	return &ReadinessProbe{prober: prober, interval: interval}
}

func (r *ReadinessProbe) Name() string { return "model-readiness-probe" }

// Run probes once immediately, then every interval until ctx is done.
func (r *ReadinessProbe) Run(ctx context.Context) error {
	r.probeOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.probeOnce(ctx)
		}
	}
}

func (r *ReadinessProbe) probeOnce(ctx context.Context) {
	if err := r.prober.Probe(ctx); err != nil {
		logger.Warnf("[MODEL] readiness probe failed: %v", err)
	}
}
