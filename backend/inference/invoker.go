package inference

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amandeep2102/vision-chat/backend/worker"
	"github.com/amandeep2102/vision-chat/shared/models"
)

var (
	ErrModelNotReady        = errors.New("model is not loaded yet, please retry later")
	ErrMalformedModelOutput = errors.New("malformed model output")
)

type generation struct {
	turns   []models.GeneratedTurn
	elapsed time.Duration
}

// Invoker hands canonical turns to the pipeline on the inference pool.
// The pool size caps how many model calls run at once; with one worker
// concurrent chats queue behind each other once they reach this point.
type Invoker struct {
	pipeline Pipeline
	pool     *worker.Pool
	params   GenerationParams
}

func NewInvoker(pipeline Pipeline, pool *worker.Pool, params GenerationParams) *Invoker {
	return &Invoker{pipeline: pipeline, pool: pool, params: params}
}

func (i *Invoker) Params() GenerationParams {
	return i.params
}

func (i *Invoker) Status() Status {
	return i.pipeline.Status()
}

// Invoke runs one generation. The model call is not bound to ctx's deadline
// or cancellation: a started call always runs to completion.
func (i *Invoker) Invoke(ctx context.Context, turns []models.CanonicalTurn, modelID string) (models.GenerationResult, error) {
	if i.pipeline.Status() != StatusLoaded {
		return models.GenerationResult{}, ErrModelNotReady
	}

	callCtx := context.WithoutCancel(ctx)
	res, err := i.pool.SubmitAndWait("chat:"+modelID, func() (any, error) {
		start := time.Now()
		out, err := i.pipeline.Generate(callCtx, turns, i.params)
		return generation{turns: out, elapsed: time.Since(start)}, err
	})
	if err != nil {
		return models.GenerationResult{}, fmt.Errorf("scheduling inference: %w", err)
	}
	if res.Err != nil {
		return models.GenerationResult{}, fmt.Errorf("inference: %w", res.Err)
	}

	gen, ok := res.Value.(generation)
	if !ok {
		return models.GenerationResult{}, fmt.Errorf("%w: unexpected result type %T", ErrMalformedModelOutput, res.Value)
	}
	text, err := lastContent(gen.turns)
	if err != nil {
		return models.GenerationResult{}, err
	}

	return models.GenerationResult{
		Text:     text,
		Elapsed:  gen.elapsed,
		ModelID:  modelID,
		Finished: res.CompletedAt,
	}, nil
}

func lastContent(turns []models.GeneratedTurn) (string, error) {
	if len(turns) == 0 {
		return "", fmt.Errorf("%w: empty turn sequence", ErrMalformedModelOutput)
	}
	last := turns[len(turns)-1]
	if last.Content == nil {
		return "", fmt.Errorf("%w: last turn has no content", ErrMalformedModelOutput)
	}
	return *last.Content, nil
}
