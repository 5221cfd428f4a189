package apikeys

import (
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

var (
	ErrNoKeysAvailable  = errors.New("no API keys available")
	ErrAllKeysExhausted = errors.New("all available API keys have been exhausted")
)

// Ring hands out API keys for a single provider and advances to the next
// one when a key is rejected.
type Ring struct {
	name string
	keys []string
	log  zerolog.Logger

	mu      sync.Mutex
	current int
}

func NewRing(name string, keys []string, log zerolog.Logger) (*Ring, error) {
	var usable []string
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			usable = append(usable, k)
		}
	}
	if len(usable) == 0 {
		return nil, ErrNoKeysAvailable
	}
	return &Ring{
		name: name,
		keys: usable,
		log:  log.With().Str("provider", name).Logger(),
	}, nil
}

func (r *Ring) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.keys[r.current]
}

// Rotate moves past the current key. After a full lap it wraps to the
// first key and returns ErrAllKeysExhausted.
func (r *Ring) Rotate() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.log.Warn().Int("key", r.current+1).Msg("api key rejected, rotating")
	r.current++
	if r.current >= len(r.keys) {
		r.current = 0
		r.log.Warn().Msg("all api keys tried")
		return ErrAllKeysExhausted
	}
	return nil
}

// Len is the number of attempts a caller should make before giving up.
func (r *Ring) Len() int {
	return len(r.keys)
}
