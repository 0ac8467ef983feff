package lifecycle

import (
	"context"

	"github.com/aretw0/lifecycle"

	"github.com/aretw0/keel/pkg/core"
)

type integritySource struct {
	events <-chan core.IntegrityEvent
	out    chan lifecycle.Event
}

// NewSource creates a lifecycle.Source that emits integrity events.
// It bridges the channel returned by AuditLog.Watch to the generic lifecycle
// Event interface, so a failed verification can be routed like any other
// application event.
func NewSource(events <-chan core.IntegrityEvent) lifecycle.Source {
	return &integritySource{
		events: events,
		out:    make(chan lifecycle.Event),
	}
}

func (s *integritySource) Events() <-chan lifecycle.Event {
	return s.out
}

func (s *integritySource) Start(ctx context.Context) error {
	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer close(s.out)
		for {
			select {
			case <-ctx.Done():
				return nil
			case e, ok := <-s.events:
				if !ok {
					return nil
				}
				// core.IntegrityEvent implements lifecycle.Event (has String())
				select {
				case s.out <- e:
				case <-ctx.Done():
					return nil
				}
			}
		}
	})
	return nil
}
