// Package bridge is the harness-facing surface over the sockio engine: an
// arena of socket records addressed by opaque integer handles, with the
// server/client role fixed at creation.
//
// The handle indirection exists for callers on the far side of a
// foreign-function boundary (simulator DPI/VPI shims) that can only carry
// an integer. Lookups are bounds-checked and fail with ErrBadHandle; a
// stale or fabricated handle can never reach memory it does not own.
//
// Setup failures (socket creation, bind, listen, first connect,
// non-blocking mode switch) terminate the process: they indicate a
// misconfigured environment nothing upstream can recover from. All other
// failures are surfaced through status bytes and booleans.
package bridge

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/simbridge/simbridge/internal/sockio"
)

// Handle identifies one socket record in the arena.
type Handle int

var (
	ErrBadHandle    = errors.New("bridge: unknown handle")
	ErrEmptyName    = errors.New("bridge: empty socket name")
	ErrNameTooLong  = fmt.Errorf("bridge: socket name exceeds %d bytes", sockio.MaxNameLen)
	ErrNegativeSize = errors.New("bridge: negative block size")
)

var arena = struct {
	mu    sync.Mutex
	socks []*sockio.Socket
}{}

func register(s *sockio.Socket) Handle {
	arena.mu.Lock()
	defer arena.mu.Unlock()
	arena.socks = append(arena.socks, s)
	return Handle(len(arena.socks) - 1)
}

func lookup(h Handle) (*sockio.Socket, error) {
	arena.mu.Lock()
	defer arena.mu.Unlock()
	if h < 0 || int(h) >= len(arena.socks) {
		return nil, fmt.Errorf("%w: %d", ErrBadHandle, h)
	}
	return arena.socks[h], nil
}

func checkName(name string) error {
	if name == "" {
		return ErrEmptyName
	}
	if len(name) > sockio.MaxNameLen {
		return fmt.Errorf("%w: %q", ErrNameTooLong, name[:32]+"...")
	}
	return nil
}

// fatalSetup funnels unrecoverable setup errors into process termination.
func fatalSetup(s *sockio.Socket, err error) {
	log.Fatal().
		Str("socket", s.Name()).
		Str("role", s.Role().String()).
		Err(err).
		Msg("socket setup failed")
}
