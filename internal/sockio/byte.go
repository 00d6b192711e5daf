//go:build linux || darwin

package sockio

import (
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"

	"github.com/simbridge/simbridge/internal/observability"
)

// GetByte attempts a single non-blocking one-byte read. ok is false when
// no peer is connected or no data is pending; a hard failure or an
// orderly peer close tears down the active connection and also reports
// ok=false. The returned error is reserved for setup failures.
func (s *Socket) GetByte() (byte, bool, error) {
	if err := s.ensureConn(); err != nil {
		if err == ErrNoConn {
			return 0, false, nil
		}
		return 0, false, err
	}
	var buf [1]byte
	n, err := unix.Read(s.connFD, buf[:])
	if n == 1 {
		observability.RecordBytesRead(s.name, 1)
		return buf[0], true, nil
	}
	if !wouldBlock(err) {
		s.closeActive()
	}
	return 0, false, nil
}

// PutByte attempts a single non-blocking one-byte write, with the same
// three-way outcome as GetByte.
func (s *Socket) PutByte(b byte) (bool, error) {
	if err := s.ensureConn(); err != nil {
		if err == ErrNoConn {
			return false, nil
		}
		return false, err
	}
	buf := [1]byte{b}
	n, err := unix.Write(s.connFD, buf[:])
	if n == 1 {
		observability.RecordBytesWritten(s.name, 1)
		return true, nil
	}
	if !wouldBlock(err) {
		s.closeActive()
	}
	return false, nil
}

// PutByteBlocking writes one byte, waiting for writability up to the
// socket's write budget. Transient no-progress outcomes wait on POLLOUT
// against a monotonic deadline; a hard failure aborts early without
// closing the connection; deadline exhaustion reports failure and leaves
// the connection open.
func (s *Socket) PutByteBlocking(b byte) (bool, error) {
	if err := s.ensureConn(); err != nil {
		if err == ErrNoConn {
			return false, nil
		}
		return false, err
	}
	buf := [1]byte{b}
	deadline := time.Now().Add(s.writeBudget)
	for {
		n, err := unix.Write(s.connFD, buf[:])
		if n == 1 {
			observability.RecordBytesWritten(s.name, 1)
			return true, nil
		}
		if !wouldBlock(err) {
			return false, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		ready, perr := pollWait(s.connFD, unix.POLLOUT, remaining)
		if perr != nil {
			return false, perr
		}
		if !ready {
			break
		}
	}
	log.Warn().Str("socket", s.name).Dur("budget", s.writeBudget).Msg("blocking byte write gave up")
	return false, nil
}
