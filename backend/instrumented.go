package backend

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/wolfeidau/gnome-cache/telemetry"
)

// InstrumentedBackend wraps a Backend with metrics recording.
type InstrumentedBackend struct {
	backend Backend
	name    string
}

// NewInstrumentedBackend creates a new instrumented backend wrapper.
func NewInstrumentedBackend(b Backend, name string) *InstrumentedBackend {
	return &InstrumentedBackend{backend: b, name: name}
}

// Writer records the write when the returned writer is closed or aborted.
func (ib *InstrumentedBackend) Writer(ctx context.Context, key string) (io.WriteCloser, error) {
	start := time.Now()
	wc, err := ib.backend.Writer(ctx, key)
	if err != nil {
		telemetry.RecordBackendOp(ctx, ib.name, "write", outcomeFromError(err), time.Since(start), 0)
		return nil, err
	}
	return &instrumentedWriter{w: wc, ctx: ctx, name: ib.name, start: start}, nil
}

func (ib *InstrumentedBackend) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	start := time.Now()
	rc, err := ib.backend.Read(ctx, key)
	telemetry.RecordBackendOp(ctx, ib.name, "read", outcomeFromError(err), time.Since(start), 0)
	if err != nil {
		return nil, err
	}
	return rc, nil
}

func (ib *InstrumentedBackend) List(ctx context.Context, prefix string) ([]string, error) {
	start := time.Now()
	keys, err := ib.backend.List(ctx, prefix)
	telemetry.RecordBackendOp(ctx, ib.name, "list", outcomeFromError(err), time.Since(start), 0)
	return keys, err
}

func (ib *InstrumentedBackend) Location(key string) string {
	return ib.backend.Location(key)
}

func outcomeFromError(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

type instrumentedWriter struct {
	w     io.WriteCloser
	ctx   context.Context
	name  string
	start time.Time
	n     int64
	done  bool
}

func (iw *instrumentedWriter) Write(p []byte) (int, error) {
	n, err := iw.w.Write(p)
	iw.n += int64(n)
	return n, err
}

func (iw *instrumentedWriter) Close() error {
	err := iw.w.Close()
	iw.record(outcomeFromError(err))
	return err
}

func (iw *instrumentedWriter) Abort() error {
	Abort(iw.w)
	iw.record("aborted")
	return nil
}

func (iw *instrumentedWriter) record(outcome string) {
	if iw.done {
		return
	}
	iw.done = true
	telemetry.RecordBackendOp(iw.ctx, iw.name, "write", outcome, time.Since(iw.start), iw.n)
}

var (
	_ Backend = (*InstrumentedBackend)(nil)
	_ Aborter = (*instrumentedWriter)(nil)
)
