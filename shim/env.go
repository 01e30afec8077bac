package shim

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/nostr-wasm/errors"
	"github.com/wippyai/nostr-wasm/memory"
)

// Channel is a file descriptor the module may write to.
type Channel uint32

const (
	ChannelInfo  Channel = 1 // stdout
	ChannelError Channel = 2 // stderr
)

// iovec is { uint8_t *buf; size_t len; } on wasm32.
const iovecSize = 8

// Default results of the file stubs, matching emscripten's headless fallbacks
// (ENOSYS for close, ESPIPE for seek).
const (
	DefaultFdCloseResult int32 = 52
	DefaultFdSeekResult  int32 = 70
)

// Env is the execution environment handed to one module instance.
type Env struct {
	logger    *zap.Logger
	heap      *memory.Heap
	label     string
	lastError string
	fdClose   int32
	fdSeek    int32
	mu        sync.Mutex
}

// Option configures an Env.
type Option func(*Env)

// WithLogger routes channel output to l.
func WithLogger(l *zap.Logger) Option {
	return func(e *Env) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithFileStubResults overrides the constant results of the seek and close stubs.
func WithFileStubResults(seek, closeResult int32) Option {
	return func(e *Env) {
		e.fdSeek = seek
		e.fdClose = closeResult
	}
}

// New creates an Env. label prefixes every diagnostic and error.
func New(label string, opts ...Option) *Env {
	e := &Env{
		label:   label,
		logger:  zap.NewNop(),
		fdClose: DefaultFdCloseResult,
		fdSeek:  DefaultFdSeekResult,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("module", label))
	return e
}

// Label returns the diagnostic tag.
func (e *Env) Label() string { return e.label }

// Bind binds the module memory and returns the heap. Call heap.Rebind if the
// module ever replaces its memory.
func (e *Env) Bind(r memory.Region) *memory.Heap {
	h := memory.Bind(r)

	e.mu.Lock()
	e.heap = h
	e.mu.Unlock()

	return h
}

// Heap returns the bound heap, or nil before Bind.
func (e *Env) Heap() *memory.Heap {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.heap
}

// LastError returns the most recent channel 2 text.
func (e *Env) LastError() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastError
}

func (e *Env) boundHeap() (*memory.Heap, error) {
	h := e.Heap()
	if h == nil {
		return nil, errors.NotInitialized(errors.PhaseHost, "module memory")
	}
	return h, nil
}

// Abort is called by the module on a fatal condition. It always fails.
func (e *Env) Abort() error {
	return errors.Aborted(e.label, e.LastError())
}

// Memcpy moves size bytes from src to dst within module memory. Overlap is allowed.
func (e *Env) Memcpy(dst, src, size uint32) error {
	h, err := e.boundHeap()
	if err != nil {
		return err
	}
	return h.CopyWithin(dst, src, size)
}

// Resize refuses every heap growth request.
func (e *Env) Resize(size uint32) error {
	return errors.OutOfMemory(e.label, size)
}

// FdSeek returns the constant seek result.
func (e *Env) FdSeek() int32 { return e.fdSeek }

// FdClose returns the constant close result.
func (e *Env) FdClose() int32 { return e.fdClose }

// Write gathers iovCount iovecs starting at iov, routes the text to channel fd
// and stores the number of bytes consumed at written. It returns 0 on success.
func (e *Env) Write(fd, iov, iovCount, written uint32) (uint32, error) {
	h, err := e.boundHeap()
	if err != nil {
		return 0, err
	}

	var out strings.Builder
	var total uint32

	for i := uint32(0); i < iovCount; i++ {
		start, err := h.U32(iov)
		if err != nil {
			return 0, err
		}
		length, err := h.U32(iov + 4)
		if err != nil {
			return 0, err
		}
		iov += iovecSize

		chunk, err := h.View(start, length)
		if err != nil {
			return 0, err
		}
		out.Write(chunk)
		total += length
	}

	if err := e.route(Channel(fd), out.String()); err != nil {
		return 0, err
	}

	if err := h.SetU32(written, total); err != nil {
		return 0, err
	}
	return 0, nil
}

func (e *Env) route(ch Channel, text string) error {
	// emscripten's printf path uses NUL where a line break was
	text = strings.ReplaceAll(text, "\x00", "\n")

	switch ch {
	case ChannelInfo:
		e.logger.Debug(text, zap.Uint32("fd", uint32(ch)))
	case ChannelError:
		e.mu.Lock()
		e.lastError = text
		e.mu.Unlock()
		e.logger.Error(text, zap.Uint32("fd", uint32(ch)))
	default:
		return errors.UnknownChannel(uint32(ch), text)
	}
	return nil
}
