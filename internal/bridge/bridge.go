package bridge

import (
	"github.com/rs/zerolog/log"

	"github.com/simbridge/simbridge/internal/sockio"
)

// Block-read status byte appended after the payload.
const (
	StatusValid       byte = 0x00
	StatusUnavailable byte = 0xFF
)

// NewServer allocates a listening-role socket and returns its handle.
func NewServer(name string, defaultPort int) (Handle, error) {
	if err := checkName(name); err != nil {
		return 0, err
	}
	return register(sockio.New(name, defaultPort, sockio.RoleServer)), nil
}

// NewServerNameless is NewServer for callers that cannot pass a string:
// the name comes from the SOCKET_PACKET_UTILS_DFLT_SOCKET_NAME override,
// else a fixed default.
func NewServerNameless(defaultPort int) Handle {
	name := sockio.ResolveName()
	if err := checkName(name); err != nil {
		log.Warn().Err(err).Msg("unusable socket name override, using default name")
		name = sockio.DefaultSocketName
	}
	h, err := NewServer(name, defaultPort)
	if err != nil {
		// name passed checkName (or is the fixed default) just above.
		panic("bridge: validated socket name rejected: " + err.Error())
	}
	return h
}

// NewClient allocates a connecting-role socket and returns its handle.
func NewClient(name string, defaultPort int) (Handle, error) {
	if err := checkName(name); err != nil {
		return 0, err
	}
	return register(sockio.New(name, defaultPort, sockio.RoleClient)), nil
}

// Init eagerly brings up the base socket. Optional: every transfer
// operation performs the same lazy initialization on first use.
func Init(h Handle) error {
	s, err := lookup(h)
	if err != nil {
		return err
	}
	if err := s.Init(); err != nil {
		fatalSetup(s, err)
	}
	return nil
}

// Port returns the socket's effective port (after Init has resolved the
// environment override and any ephemeral binding).
func Port(h Handle) (int, error) {
	s, err := lookup(h)
	if err != nil {
		return 0, err
	}
	return s.Port(), nil
}

// Name returns the socket's identifying name.
func Name(h Handle) (string, error) {
	s, err := lookup(h)
	if err != nil {
		return "", err
	}
	return s.Name(), nil
}

// Connected reports whether the socket currently has a live peer.
func Connected(h Handle) (bool, error) {
	s, err := lookup(h)
	if err != nil {
		return false, err
	}
	return s.Connected(), nil
}

// GetByte polls for one byte. ok=false means no peer, no data, or a
// connection torn down on this call.
func GetByte(h Handle) (byte, bool, error) {
	s, err := lookup(h)
	if err != nil {
		return 0, false, err
	}
	b, ok, err := s.GetByte()
	if err != nil {
		fatalSetup(s, err)
	}
	return b, ok, nil
}

// PutByte attempts one non-blocking byte write.
func PutByte(h Handle, b byte) (bool, error) {
	s, err := lookup(h)
	if err != nil {
		return false, err
	}
	ok, err := s.PutByte(b)
	if err != nil {
		fatalSetup(s, err)
	}
	return ok, nil
}

// PutByteBlocking writes one byte, waiting up to the socket's write
// budget for the peer to drain.
func PutByteBlocking(h Handle, b byte) (bool, error) {
	s, err := lookup(h)
	if err != nil {
		return false, err
	}
	ok, err := s.PutByteBlocking(b)
	if err != nil {
		fatalSetup(s, err)
	}
	return ok, nil
}

// GetBlock reads an n-byte block, returning n+1 bytes: the payload
// followed by a status byte (StatusValid when the payload is meaningful,
// StatusUnavailable when no data was pending or the connection is gone).
// The payload is all-or-nothing; a partially arrived block is completed
// before returning.
func GetBlock(h Handle, n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrNegativeSize
	}
	s, err := lookup(h)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n+1)
	ok, err := s.GetBlock(out[:n])
	if err != nil {
		fatalSetup(s, err)
	}
	if ok {
		out[n] = StatusValid
	} else {
		out[n] = StatusUnavailable
	}
	return out, nil
}

// PutBlock writes data as one atomic block: either nothing is sent
// (ok=false) or all of it is, completing a partial write with blocking
// I/O if needed.
func PutBlock(h Handle, data []byte) (bool, error) {
	s, err := lookup(h)
	if err != nil {
		return false, err
	}
	ok, err := s.PutBlock(data)
	if err != nil {
		fatalSetup(s, err)
	}
	return ok, nil
}
