package bus

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// Group runs several subscribers with the same handler and stops all of them
// when any returns an error.
type Group []Subscriber

// Run blocks until ctx is cancelled or a member fails.
func (g Group) Run(ctx context.Context, h Handler) error {
	eg, ctx := errgroup.WithContext(ctx)
	for _, s := range g {
		s := s
		eg.Go(func() error { return s.Run(ctx, h) })
	}
	return eg.Wait()
}

// Close closes every member.
func (g Group) Close() error {
	var errs []error
	for _, s := range g {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
