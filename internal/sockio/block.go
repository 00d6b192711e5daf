//go:build linux || darwin

package sockio

import (
	"golang.org/x/sys/unix"

	"github.com/simbridge/simbridge/internal/observability"
)

// GetBlock tries to fill p with exactly len(p) bytes. The first read is
// non-blocking: a full read returns ok=true immediately and a would-block
// outcome returns ok=false with the connection intact. A partial read
// commits the transfer, and the remainder is collected with
// readiness-waits and further reads until the block is complete; the
// caller never sees a partial block. A hard failure or orderly close on
// the first read tears down the active connection.
func (s *Socket) GetBlock(p []byte) (bool, error) {
	if err := s.ensureConn(); err != nil {
		if err == ErrNoConn {
			return false, nil
		}
		return false, err
	}

	count, err := unix.Read(s.connFD, p)
	if count == len(p) {
		observability.RecordBytesRead(s.name, count)
		return true, nil
	}
	if count > 0 {
		if err := s.finishRead(p, count); err != nil {
			return false, err
		}
		if !s.Connected() {
			return false, nil
		}
		observability.RecordBytesRead(s.name, len(p))
		return true, nil
	}
	if !wouldBlock(err) {
		s.closeActive()
	}
	return false, nil
}

// finishRead completes a committed block read. It waits without timeout:
// the contract is that a started block always finishes, however slowly
// the peer dribbles it. If the peer dies mid-block the connection is torn
// down and the partial data is discarded.
func (s *Socket) finishRead(p []byte, count int) error {
	for count < len(p) {
		if _, err := pollWait(s.connFD, unix.POLLIN, -1); err != nil {
			return err
		}
		n, err := unix.Read(s.connFD, p[count:])
		if n > 0 {
			count += n
			continue
		}
		if wouldBlock(err) {
			continue
		}
		// Peer vanished with the block half delivered; the partial data
		// can never become a full block, so tear down.
		s.closeActive()
		return nil
	}
	return nil
}

// PutBlock tries to send all of data. Mirror of GetBlock: full
// non-blocking write succeeds immediately, a would-block outcome reports
// ok=false without sending anything, and a partial write commits to a
// blocking completion phase.
func (s *Socket) PutBlock(data []byte) (bool, error) {
	if err := s.ensureConn(); err != nil {
		if err == ErrNoConn {
			return false, nil
		}
		return false, err
	}

	count, err := unix.Write(s.connFD, data)
	if count == len(data) {
		observability.RecordBytesWritten(s.name, count)
		return true, nil
	}
	if count > 0 {
		if err := s.finishWrite(data, count); err != nil {
			return false, err
		}
		if !s.Connected() {
			return false, nil
		}
		observability.RecordBytesWritten(s.name, len(data))
		return true, nil
	}
	if !wouldBlock(err) {
		s.closeActive()
	}
	return false, nil
}

func (s *Socket) finishWrite(data []byte, count int) error {
	for count < len(data) {
		if _, err := pollWait(s.connFD, unix.POLLOUT, -1); err != nil {
			return err
		}
		n, err := unix.Write(s.connFD, data[count:])
		if n > 0 {
			count += n
			continue
		}
		if wouldBlock(err) {
			continue
		}
		s.closeActive()
		return nil
	}
	return nil
}
