package session

import (
	"fmt"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog/log"
)

// Dispatcher runs tasks asynchronously. *ants.Pool satisfies it.
type Dispatcher interface {
	Submit(task func()) error
}

type goDispatcher struct{}

func (goDispatcher) Submit(task func()) error {
	go task()
	return nil
}

// NewPool creates the shared worker pool that runs story, voice and image calls
// for every session. Submit fails fast with ants.ErrPoolOverload when all workers are busy.
func NewPool(size int) (*ants.Pool, error) {
	pool, err := ants.NewPool(size,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p any) {
			log.Error().Str("panic", fmt.Sprint(p)).Msg("Session task panicked")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create session pool: %w", err)
	}
	return pool, nil
}
