package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/amandeep2102/vision-chat/backend/logger"
)

// Service is a long running component that stops when its context is done.
type Service interface {
	Name() string
	Run(context.Context) error
}

// Group runs services together. The first failure cancels the rest; Run
// returns once every service has stopped, with all failures combined.
type Group []Service

func (g Group) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, len(g))
	wg.Add(len(g))
	for _, s := range g {
		go func(s Service) {
			defer wg.Done()
			logger.Debugf("[SERVICE] %s started", s.Name())
			if err := s.Run(runCtx); err != nil {
				errCh <- fmt.Errorf("%s: %w", s.Name(), err)
				cancel()
			}
			logger.Debugf("[SERVICE] %s stopped", s.Name())
		}(s)
	}

	<-runCtx.Done()
	wg.Wait()
	close(errCh)

	var result error
	for err := range errCh {
		result = multierror.Append(result, err)
	}
	return result
}
