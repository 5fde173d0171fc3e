package logger

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"deal-watch/pkg/metrics"

	"go.uber.org/zap/zapcore"
)

type record struct {
	entry  zapcore.Entry
	fields []zapcore.Field
}

func (r record) same(o record) bool {
	if r.entry.Level != o.entry.Level || r.entry.LoggerName != o.entry.LoggerName || r.entry.Message != o.entry.Message {
		return false
	}
	if len(r.fields) != len(o.fields) {
		return false
	}
	for i := range r.fields {
		if !r.fields[i].Equals(o.fields[i]) {
			return false
		}
	}
	return true
}

type FunnelOptions struct {
	// Buffer is the channel capacity.
	Buffer int
	// SendTimeout bounds how long a writer waits on a full buffer before the
	// record is dropped.
	SendTimeout time.Duration
	// FlushDelay is how long a run of identical records may stay pending.
	FlushDelay time.Duration
}

// Funnel collects records from many goroutines onto one channel and writes
// them to dest from a single listener, in arrival order. Consecutive
// identical records are collapsed into one with a " (N)" suffix.
type Funnel struct {
	dest    zapcore.Core
	opts    FunnelOptions
	ch      chan record
	done    chan struct{}
	dropped atomic.Int64

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

func NewFunnel(dest zapcore.Core, opts FunnelOptions) *Funnel {
	if opts.Buffer <= 0 {
		opts.Buffer = 1024
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 50 * time.Millisecond
	}
	if opts.FlushDelay <= 0 {
		opts.FlushDelay = 2 * time.Second
	}
	f := &Funnel{
		dest: dest,
		opts: opts,
		ch:   make(chan record, opts.Buffer),
		done: make(chan struct{}),
	}
	go f.listen()
	return f
}

// Core returns a zapcore.Core feeding this funnel.
func (f *Funnel) Core() zapcore.Core {
	return &funnelCore{funnel: f}
}

func (f *Funnel) Dropped() int64 {
	return f.dropped.Load()
}

func (f *Funnel) send(r record) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		f.drop()
		return
	}

	select {
	case f.ch <- r:
		return
	default:
	}

	t := time.NewTimer(f.opts.SendTimeout)
	defer t.Stop()
	select {
	case f.ch <- r:
	case <-t.C:
		f.drop()
	}
}

func (f *Funnel) drop() {
	f.dropped.Add(1)
	metrics.DroppedLogs.Inc()
}

func (f *Funnel) listen() {
	defer close(f.done)

	var (
		pending record
		count   int
	)
	flush := func() {
		if count == 0 {
			return
		}
		r := pending
		if count > 1 {
			r.entry.Message = fmt.Sprintf("%s (%d)", r.entry.Message, count)
		}
		_ = f.dest.Write(r.entry, r.fields)
		count = 0
	}

	timer := time.NewTimer(f.opts.FlushDelay)
	defer timer.Stop()

	for {
		select {
		case r, ok := <-f.ch:
			if !ok {
				flush()
				return
			}
			if count > 0 && pending.same(r) {
				count++
				continue
			}
			flush()
			pending, count = r, 1
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(f.opts.FlushDelay)
		case <-timer.C:
			flush()
			timer.Reset(f.opts.FlushDelay)
		}
	}
}

// Close drains the channel, flushes any pending record and syncs dest.
func (f *Funnel) Close() error {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.closed = true
		close(f.ch)
		f.mu.Unlock()
	})
	<-f.done
	return f.dest.Sync()
}

type funnelCore struct {
	funnel *Funnel
	fields []zapcore.Field
}

func (c *funnelCore) Enabled(lvl zapcore.Level) bool {
	return c.funnel.dest.Enabled(lvl)
}

func (c *funnelCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &funnelCore{funnel: c.funnel, fields: merged}
}

func (c *funnelCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *funnelCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	all := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	all = append(all, c.fields...)
	all = append(all, fields...)
	c.funnel.send(record{entry: ent, fields: all})
	return nil
}

func (c *funnelCore) Sync() error {
	return nil
}
