package audit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/malbeclabs/rentreclaim/utils/pkg/logger"
)

// Operation is the kind of pipeline step an audit event records.
type Operation string

const (
	OpDiscover Operation = "discover"
	OpEvaluate Operation = "evaluate"
	OpReclaim  Operation = "reclaim"
	OpCycle    Operation = "cycle"
)

const (
	AllFile      = "all.log"
	ErrorsFile   = "errors.log"
	ReclaimsFile = "reclaims.log"
)

// Event is one audit record.
type Event struct {
	Op        Operation
	CycleID   string
	Account   string
	Amount    uint64
	Success   bool
	Signature string
	Error     string
	Time      time.Time
	Message   string
}

// Sink receives audit events. Implementations must not block the pipeline on
// slow storage for longer than a local write.
type Sink interface {
	Record(ctx context.Context, ev Event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Record(context.Context, Event) {}

// Writer fans events out to three append-only JSON line streams: every event,
// failures only, and reclaim attempts only.
type Writer struct {
	all      *slog.Logger
	errors   *slog.Logger
	reclaims *slog.Logger
	closers  []io.Closer
	mu       sync.Mutex
}

// NewWriter builds a Writer over the given streams.
func NewWriter(all, errs, reclaims io.Writer) *Writer {
	return &Writer{
		all:      newStream(all),
		errors:   newStream(errs),
		reclaims: newStream(reclaims),
	}
}

// Open creates dir if needed and opens the three stream files in append mode.
func Open(dir string) (*Writer, error) {
	if dir == "" {
		return nil, errors.New("audit directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}

	var files []*os.File
	for _, name := range []string{AllFile, ErrorsFile, ReclaimsFile} {
		f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			for _, opened := range files {
				_ = opened.Close()
			}
			return nil, fmt.Errorf("failed to open audit stream %s: %w", name, err)
		}
		files = append(files, f)
	}

	w := NewWriter(files[0], files[1], files[2])
	for _, f := range files {
		w.closers = append(w.closers, f)
	}
	return w, nil
}

func newStream(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       slog.LevelDebug,
		ReplaceAttr: logger.ReplaceAttr,
	}))
}

func (w *Writer) Record(ctx context.Context, ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	level := slog.LevelInfo
	if !ev.Success {
		level = slog.LevelError
	}
	msg := ev.Message
	if msg == "" {
		msg = string(ev.Op)
	}
	rec := slog.NewRecord(ev.Time, level, msg, 0)
	rec.AddAttrs(attrs(ev)...)

	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.all.Handler().Handle(ctx, rec.Clone())
	if !ev.Success {
		_ = w.errors.Handler().Handle(ctx, rec.Clone())
	}
	if ev.Op == OpReclaim {
		_ = w.reclaims.Handler().Handle(ctx, rec.Clone())
	}
}

// Close closes the underlying files opened by Open.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var errs []error
	for _, c := range w.closers {
		errs = append(errs, c.Close())
	}
	w.closers = nil
	return errors.Join(errs...)
}

func attrs(ev Event) []slog.Attr {
	out := []slog.Attr{
		slog.String("op", string(ev.Op)),
		slog.String("cycle_id", ev.CycleID),
		slog.String("account", ev.Account),
		slog.Uint64("amount", ev.Amount),
		slog.Bool("success", ev.Success),
	}
	if ev.Signature != "" {
		out = append(out, slog.String("signature", ev.Signature))
	}
	if ev.Error != "" {
		out = append(out, slog.String("error", ev.Error))
	}
	return out
}
