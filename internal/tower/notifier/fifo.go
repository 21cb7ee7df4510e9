// Package notifier adapts the named pipes shared with the violation
// processor to the ports of the dispatch coordinator.
package notifier

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/autopeer-io/airtraffic/internal/tower/dispatch"
	"github.com/autopeer-io/airtraffic/pkg/log"
	"github.com/autopeer-io/airtraffic/pkg/wire"
)

var (
	_ dispatch.ViolationSink   = (*FifoSink)(nil)
	_ dispatch.ClearanceSource = (*FifoSource)(nil)
)

// Resyncer drops whatever is buffered on a channel.
type Resyncer interface {
	Resync() (int, error)
}

// FifoSink writes violation records to the outbound pipe, one write per record.
type FifoSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewFifoSink(w io.Writer) *FifoSink {
	return &FifoSink{w: w}
}

// Send writes v in a single call. It does not retry: a failed or partial
// write loses the record.
func (s *FifoSink) Send(_ context.Context, v *wire.Violation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return wire.WriteRecord(s.w, v)
}

// ReadResyncer is the inbound side of a pipe.
type ReadResyncer interface {
	io.Reader
	Resyncer
}

// FifoSource reads clearance records from the inbound pipe.
type FifoSource struct {
	mu     sync.Mutex
	r      ReadResyncer
	logger log.Logger
}

func NewFifoSource(r ReadResyncer, logger log.Logger) *FifoSource {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &FifoSource{r: r, logger: logger}
}

// Receive returns the next clearance, or nil when the pipe is empty. A
// partial record drains the pipe so the next read starts on a record
// boundary, and the short read is returned as an error.
func (s *FifoSource) Receive(_ context.Context) (*wire.ViolationCleared, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rec wire.ViolationCleared
	ok, err := wire.ReadRecord(s.r, &rec)
	if errors.Is(err, wire.ErrShortRecord) {
		dropped, rerr := s.r.Resync()
		s.logger.Warn("Clearance channel resynchronized", "dropped", dropped)
		return nil, errors.Join(err, rerr)
	}
	if err != nil || !ok {
		return nil, err
	}
	return &rec, nil
}
