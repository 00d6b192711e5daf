//go:build linux || darwin

// Package sockio implements a loopback byte-stream engine for bridging a
// polling host process (typically a simulation harness driven once per
// cycle) with a remote peer over TCP.
//
// The engine is deliberately hybrid: single-byte and whole-block transfers
// never block the caller while no data is pending, but once a multi-byte
// block transfer has made partial progress it commits to a blocking
// completion phase so that a partial block is never surfaced.
//
// Sockets are managed at the file-descriptor level because the engine
// needs single-shot non-blocking reads and writes with EAGAIN visible to
// the caller, which net.Conn does not expose. A Socket is not safe for
// concurrent use; the model is a single polling caller per socket.
//
// No SIGPIPE handling is needed: the Go runtime ignores SIGPIPE for
// non-stdio descriptors, so a write to a closed peer surfaces as an
// EPIPE error and tears down the active connection.
package sockio

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"

	"github.com/simbridge/simbridge/internal/observability"
)

// Role selects listening (server) or connecting (client) behavior. Both
// roles share the same transfer engine.
type Role int

const (
	RoleServer Role = iota
	RoleClient
)

func (r Role) String() string {
	switch r {
	case RoleServer:
		return "server"
	case RoleClient:
		return "client"
	default:
		return "unknown"
	}
}

const unsetFD = -1

// DefaultWriteBudget bounds PutByteBlocking. Generous on purpose: the
// intended peers are slow simulators, not real-time consumers.
const DefaultWriteBudget = 1000 * time.Second

// ErrNoConn reports that no peer connection is established yet. It is the
// expected state while polling, not a failure.
var ErrNoConn = errors.New("sockio: no active connection")

// Socket is one loopback stream endpoint. The zero value is not usable;
// construct with New.
//
// listenFD holds the bound-and-listening socket for the server role and
// the connected outbound socket for the client role. connFD holds the
// live connection; for the client role it aliases listenFD.
type Socket struct {
	name string
	port int
	role Role

	listenFD int
	connFD   int

	portResolved bool
	everDialed   bool

	writeBudget time.Duration
}

// New allocates a Socket for the given role. The port acts as a default;
// the <name>_PORT environment variable overrides it at first use. Port 0
// asks the OS for an ephemeral port (server role only), readable via Port
// after Init.
func New(name string, port int, role Role) *Socket {
	s := &Socket{
		name:        name,
		port:        port,
		role:        role,
		listenFD:    unsetFD,
		connFD:      unsetFD,
		writeBudget: DefaultWriteBudget,
	}
	log.Debug().Str("socket", name).Str("role", role.String()).Msg("socket allocated")
	return s
}

// Name returns the socket's identifying name.
func (s *Socket) Name() string { return s.name }

// Port returns the configured port, or the effective port once Init has
// resolved overrides and any ephemeral binding.
func (s *Socket) Port() int { return s.port }

// Role returns the socket's role.
func (s *Socket) Role() Role { return s.role }

// Connected reports whether a live peer connection exists right now.
func (s *Socket) Connected() bool { return s.connFD != unsetFD }

// SetWriteBudget overrides the PutByteBlocking deadline. Zero or negative
// restores the default.
func (s *Socket) SetWriteBudget(d time.Duration) {
	if d <= 0 {
		d = DefaultWriteBudget
	}
	s.writeBudget = d
}

// Init lazily brings up the base socket: create, set SO_REUSEADDR,
// resolve the effective port, then bind+listen (server, backlog 1) or
// connect (client), and finally switch to non-blocking mode. Idempotent;
// a second call is a no-op. Every failure here is a setup error the
// caller is expected to treat as unrecoverable.
func (s *Socket) Init() error {
	if s.listenFD != unsetFD {
		return nil
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return fmt.Errorf("sockio: socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return fmt.Errorf("sockio: setsockopt SO_REUSEADDR: %w", err)
	}

	if !s.portResolved {
		port, err := ResolvePort(s.name, s.port)
		if err != nil {
			unix.Close(fd)
			return err
		}
		s.port = port
		s.portResolved = true
	}

	addr := &unix.SockaddrInet4{Port: s.port, Addr: [4]byte{127, 0, 0, 1}}

	switch s.role {
	case RoleServer:
		if err := unix.Bind(fd, addr); err != nil {
			unix.Close(fd)
			return fmt.Errorf("sockio: bind 127.0.0.1:%d: %w", s.port, err)
		}
		// Backlog of 1: a single pending connection may queue, matching
		// the one-connection-per-socket model.
		if err := unix.Listen(fd, 1); err != nil {
			unix.Close(fd)
			return fmt.Errorf("sockio: listen: %w", err)
		}
		if s.port == 0 {
			sa, err := unix.Getsockname(fd)
			if err != nil {
				unix.Close(fd)
				return fmt.Errorf("sockio: getsockname: %w", err)
			}
			if in4, ok := sa.(*unix.SockaddrInet4); ok {
				s.port = in4.Port
			}
		}
	case RoleClient:
		// Blocking connect: non-blocking mode is enabled only after the
		// handshake completes or fails.
		if err := unix.Connect(fd, addr); err != nil {
			unix.Close(fd)
			return fmt.Errorf("sockio: connect 127.0.0.1:%d: %w", s.port, err)
		}
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return fmt.Errorf("sockio: set nonblocking: %w", err)
	}

	s.listenFD = fd
	log.Info().
		Str("socket", s.name).
		Str("role", s.role.String()).
		Int("port", s.port).
		Msg("socket ready")
	return nil
}

// ensureConn lazily establishes the active connection. For the server
// role it attempts one non-blocking accept; no pending connection is the
// expected ErrNoConn state. For the client role the connected base socket
// becomes the active connection directly.
//
// After a torn-down client connection, Init is re-run to dial again; a
// failed re-dial is reported as ErrNoConn rather than a setup error, so a
// polling caller simply keeps trying. Only the first dial is fatal.
func (s *Socket) ensureConn() error {
	if s.connFD != unsetFD {
		return nil
	}
	if s.listenFD == unsetFD {
		if err := s.Init(); err != nil {
			if s.role == RoleClient && s.everDialed {
				log.Debug().Str("socket", s.name).Err(err).Msg("re-dial failed, will retry")
				return ErrNoConn
			}
			return err
		}
	}

	switch s.role {
	case RoleServer:
		nfd, _, err := unix.Accept(s.listenFD)
		if err != nil {
			if err != unix.EAGAIN && err != unix.EWOULDBLOCK {
				log.Debug().Str("socket", s.name).Err(err).Msg("accept failed")
			}
			return ErrNoConn
		}
		if err := unix.SetNonblock(nfd, true); err != nil {
			unix.Close(nfd)
			return fmt.Errorf("sockio: set accepted conn nonblocking: %w", err)
		}
		s.connFD = nfd
		observability.RecordConnection(s.name, s.role.String())
		log.Info().Str("socket", s.name).Msg("socket got a connection")
	case RoleClient:
		s.connFD = s.listenFD
		s.everDialed = true
		observability.RecordConnection(s.name, s.role.String())
	}
	return nil
}

// closeActive tears down the live connection after a hard I/O failure or
// an orderly peer close. The server keeps its listener and will accept
// again; the client clears the base descriptor too, so the next operation
// dials from scratch.
func (s *Socket) closeActive() {
	if s.connFD == unsetFD {
		return
	}
	unix.Close(s.connFD)
	if s.role == RoleClient {
		// connFD aliases listenFD for clients; one close covers both.
		s.listenFD = unsetFD
	}
	s.connFD = unsetFD
	observability.RecordDisconnect(s.name, s.role.String())
	log.Info().Str("socket", s.name).Str("role", s.role.String()).Msg("connection closed")
}

// wouldBlock reports the transient no-progress outcome of a non-blocking
// attempt.
func wouldBlock(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK
}

// pollWait blocks until fd is ready for the given events. timeout < 0
// waits indefinitely. Returns false on timeout. EINTR restarts the wait.
func pollWait(fd int, events int16, timeout time.Duration) (bool, error) {
	ms := -1
	if timeout >= 0 {
		ms = int(timeout.Milliseconds())
		if ms <= 0 {
			ms = 1
		}
	}
	for {
		fds := []unix.PollFd{{Fd: int32(fd), Events: events}}
		n, err := unix.Poll(fds, ms)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("sockio: poll: %w", err)
		}
		return n > 0, nil
	}
}
