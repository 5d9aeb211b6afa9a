// Package signaling owns the serial connection to the external control
// device and exposes a single notify operation with bounded retry.
package signaling

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/edaniels/golog"
	ser "go.bug.st/serial"
	"go.viam.com/utils"
)

// DefaultPort is where the control device usually enumerates.
const DefaultPort = "COM11"

const (
	baudRate    = 9600
	readTimeout = time.Second
	maxAttempts = 3
)

// Delays around the serial line. Package variables so tests can shorten them.
var (
	// settleDelay gives the device time to reset after the port opens.
	settleDelay = 2 * time.Second
	// retryDelay is the wait between failed write attempts.
	retryDelay = time.Second
)

// Open attempts to open the serial device on the given path. It's a variable
// in case you need to override it during tests.
var Open = func(devicePath string) (io.ReadWriteCloser, error) {
	mode := &ser.Mode{
		BaudRate: baudRate,
	}
	device, err := ser.Open(devicePath, mode)
	if err != nil {
		return nil, err
	}
	if err := device.SetReadTimeout(readTimeout); err != nil {
		return nil, err
	}
	return device, nil
}

// Signaler writes signal bytes to the control device. A Signaler always
// exists; when the device could not be opened it degrades to a no-op.
type Signaler struct {
	mu     sync.Mutex
	device io.ReadWriteCloser
	closed bool
	logger golog.Logger
}

// Dial opens the device on the given port, best effort. Open failure is not
// an error: the device may simply be unplugged, and the pipeline runs fine
// without it.
func Dial(ctx context.Context, port string, logger golog.Logger) *Signaler {
	device, err := Open(port)
	if err != nil {
		logger.Warnw("signaling device unavailable", "port", port, "error", err)
		return &Signaler{logger: logger}
	}
	utils.SelectContextOrWait(ctx, settleDelay)
	logger.Infow("connected to signaling device", "port", port)
	return &Signaler{device: device, logger: logger}
}

// Available reports whether the device connection is open.
func (s *Signaler) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device != nil && !s.closed
}

// Notify writes the signal byte to the device, retrying on failure up to the
// attempt bound with a fixed delay in between. The first success stops the
// retries. Failure never propagates: a dropped notification is preferable to
// a stalled pipeline.
func (s *Signaler) Notify(ctx context.Context, signal byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device == nil || s.closed {
		s.logger.Debug("signaling device not available, dropping signal")
		return
	}
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		_, err := s.device.Write([]byte{signal})
		if err == nil {
			s.logger.Debugw("signal sent", "signal", string(signal))
			return
		}
		s.logger.Warnw("failed to send signal", "attempt", attempt, "error", err)
		if !utils.SelectContextOrWait(ctx, retryDelay) {
			return
		}
	}
	s.logger.Warnw("dropping signal after repeated failures", "attempts", maxAttempts)
}

// Close closes the device connection if it was ever open. Closing an
// unavailable or already-closed Signaler is a no-op.
func (s *Signaler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device == nil || s.closed {
		return nil
	}
	s.closed = true
	return s.device.Close()
}
