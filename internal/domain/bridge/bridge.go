package bridge

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/vaughanknight/trex-sub003/internal/shared/id"
	"go.uber.org/zap"
)

var ErrClosed = errors.New("bridge closed")

// Sink receives flushed output batches for a session.
type Sink interface {
	SendOutput(sessionID id.SessionID, data []byte) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(sessionID id.SessionID, data []byte) error

func (f SinkFunc) SendOutput(sessionID id.SessionID, data []byte) error {
	return f(sessionID, data)
}

// Config tunes batching and input buffering.
type Config struct {
	Window     time.Duration
	MaxBatch   int
	InputQueue int
}

// DefaultConfig matches the server defaults.
func DefaultConfig() Config {
	return Config{
		Window:     20 * time.Millisecond,
		MaxBatch:   64 * 1024,
		InputQueue: 64,
	}
}

const readBufferSize = 32 * 1024

// Bridge moves bytes between a terminal and a Sink.
type Bridge struct {
	id     id.SessionID
	rw     io.ReadWriter
	sink   Sink
	cfg    Config
	logger *zap.Logger

	inbox chan []byte
	ctx   context.Context

	mu      sync.Mutex
	pending []byte
	timer   *time.Timer

	// flushMu keeps take-and-send atomic so batches cannot reorder.
	flushMu sync.Mutex

	// OnFlush, when set, observes the size of each delivered batch.
	OnFlush func(n int)

	onEnd   func(error)
	endOnce sync.Once

	outputDone chan struct{}
	wg         sync.WaitGroup
}

// New creates a bridge. Nothing moves until Start.
func New(sessionID id.SessionID, rw io.ReadWriter, sink Sink, cfg Config, logger *zap.Logger) *Bridge {
	def := DefaultConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = def.MaxBatch
	}
	if cfg.InputQueue <= 0 {
		cfg.InputQueue = def.InputQueue
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Bridge{
		id:         sessionID,
		rw:         rw,
		sink:       sink,
		cfg:        cfg,
		logger:     logger.With(zap.String("session_id", sessionID.String())),
		inbox:      make(chan []byte, cfg.InputQueue),
		outputDone: make(chan struct{}),
	}
}

// Start launches both pumps. onEnd is called at most once, with the error
// that stopped a pump (io.EOF style errors included). The input pump stops
// when ctx is cancelled; the output pump stops when reads fail, which the
// owner arranges by closing the terminal.
func (b *Bridge) Start(ctx context.Context, onEnd func(error)) {
	b.ctx = ctx
	b.onEnd = onEnd

	b.wg.Add(2)
	go b.pumpOutput()
	go b.pumpInput(ctx)
}

// Input queues data for the terminal, blocking while the inbox is full.
func (b *Bridge) Input(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	select {
	case <-b.ctx.Done():
		return ErrClosed
	default:
	}

	select {
	case b.inbox <- data:
		return nil
	case <-b.ctx.Done():
		return ErrClosed
	}
}

// Wait blocks until both pumps have returned.
func (b *Bridge) Wait() {
	b.wg.Wait()
}

// WaitTimeout is Wait with an upper bound. It reports whether the pumps
// finished in time.
func (b *Bridge) WaitTimeout(d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// OutputDone is closed once the output pump has delivered its final batch.
func (b *Bridge) OutputDone() <-chan struct{} {
	return b.outputDone
}

func (b *Bridge) pumpOutput() {
	defer b.wg.Done()
	defer close(b.outputDone)

	buf := make([]byte, readBufferSize)
	for {
		n, err := b.rw.Read(buf)
		if n > 0 {
			b.enqueue(buf[:n])
		}
		if err != nil {
			b.flush(true)
			b.end(err)
			return
		}
	}
}

func (b *Bridge) pumpInput(ctx context.Context) {
	defer b.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case data := <-b.inbox:
			if _, err := b.rw.Write(data); err != nil {
				b.logger.Debug("terminal write failed", zap.Error(err))
				b.end(err)
				return
			}
		}
	}
}

func (b *Bridge) end(err error) {
	b.endOnce.Do(func() {
		if b.onEnd != nil {
			b.onEnd(err)
		}
	})
}

func (b *Bridge) enqueue(p []byte) {
	b.mu.Lock()
	b.pending = append(b.pending, p...)
	full := len(b.pending) >= b.cfg.MaxBatch
	if !full && b.timer == nil {
		b.timer = time.AfterFunc(b.cfg.Window, func() { b.flush(false) })
	}
	b.mu.Unlock()

	if full {
		b.flush(false)
	}
}

// flush delivers the pending batch. Unless final, an incomplete trailing
// UTF-8 sequence stays pending for the next batch.
func (b *Bridge) flush(final bool) {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	data := b.pending
	keep := 0
	if !final {
		keep = incompleteTail(data)
	}
	out := data[:len(data)-keep]
	if keep > 0 {
		b.pending = append([]byte(nil), data[len(data)-keep:]...)
	} else {
		b.pending = nil
	}
	b.mu.Unlock()

	if len(out) == 0 {
		return
	}
	if err := b.sink.SendOutput(b.id, out); err != nil {
		b.logger.Debug("dropping output batch", zap.Int("bytes", len(out)), zap.Error(err))
		return
	}
	if b.OnFlush != nil {
		b.OnFlush(len(out))
	}
}

// incompleteTail returns how many trailing bytes of p form the start of a
// multi-byte UTF-8 sequence that has not been fully read yet.
func incompleteTail(p []byte) int {
	for i := 1; i <= utf8.UTFMax-1 && i <= len(p); i++ {
		start := len(p) - i
		if !utf8.RuneStart(p[start]) {
			continue
		}
		if utf8.FullRune(p[start:]) {
			return 0
		}
		return i
	}
	return 0
}
