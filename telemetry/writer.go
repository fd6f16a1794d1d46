// telemetry/writer.go
// Copyright(c) 2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/mmp/guided/log"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// Writer drains an EventStream subscription into a zstd-compressed stream
// of msgpack-encoded events.
type Writer struct {
	sub *Subscription
	zw  *zstd.Encoder
	enc *msgpack.Encoder
	n   int
	lg  *log.Logger
}

func NewWriter(w io.Writer, stream *EventStream, lg *log.Logger) (*Writer, error) {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, err
	}
	return &Writer{
		sub: stream.Subscribe(),
		zw:  zw,
		enc: msgpack.NewEncoder(zw),
		lg:  lg,
	}, nil
}

// Drain writes all of the events posted since the last call.
func (w *Writer) Drain() error {
	for _, ev := range w.sub.Get() {
		if err := w.enc.Encode(ev); err != nil {
			return fmt.Errorf("%s: %w", ev.Type, err)
		}
		w.n++
	}
	return nil
}

// Run drains the subscription every period until ctx is canceled, then
// flushes and closes the compressed stream.
func (w *Writer) Run(ctx context.Context, period time.Duration) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return w.Close()
		case <-ticker.C:
			if err := w.Drain(); err != nil {
				w.lg.Error("telemetry write failed", slog.Any("error", err))
				return err
			}
		}
	}
}

// Close writes any pending events and finishes the compressed stream; the
// underlying io.Writer is not closed.
func (w *Writer) Close() error {
	err := w.Drain()
	w.sub.Unsubscribe()
	if cerr := w.zw.Close(); err == nil {
		err = cerr
	}
	w.lg.Info("telemetry closed", slog.Int("events", w.n))
	return err
}

// ReadLog decodes all of the events in a stream written by a Writer.
func ReadLog(r io.Reader) ([]Event, error) {
	zr, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(0))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	dec := msgpack.NewDecoder(zr)
	var events []Event
	for {
		var ev Event
		if err := dec.Decode(&ev); err != nil {
			if errors.Is(err, io.EOF) {
				return events, nil
			}
			return events, err
		}
		events = append(events, ev)
	}
}
