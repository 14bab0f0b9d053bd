package button

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/sweeney/bootkey/internal/gpio"
)

// ErrClosed is returned by Read on a session that has been closed.
var ErrClosed = errors.New("button: session closed")

// Device identity and line for the boot key.
const (
	DefaultName  = "BOOT_KEY"
	DefaultLine  = 7
	DefaultMajor = 64
	DefaultMinor = 0
)

// stagingSize holds one digit, a newline and a terminator.
const stagingSize = 3

// Config identifies the device and the line it watches.
type Config struct {
	Name  string
	Line  int
	Major uint32
	Minor uint32
}

// DefaultConfig returns the boot key configuration.
func DefaultConfig() Config {
	return Config{
		Name:  DefaultName,
		Line:  DefaultLine,
		Major: DefaultMajor,
		Minor: DefaultMinor,
	}
}

// Stats is a point-in-time view of device counters.
type Stats struct {
	Edges   uint64
	Dropped uint64
	Reads   uint64
	Level   Level // last sampled level, valid if Seen
	Seen    bool
	Open    bool
}

// Device owns the sample slot and edge source for one button. At most one
// Session may be open at a time.
type Device struct {
	cfg    Config
	chip   gpio.Acquirer
	logger *zap.SugaredLogger

	slot   Slot
	source *EdgeSource
	reads  atomic.Uint64

	mu      sync.Mutex
	session *Session
}

// New creates a Device that acquires its line from chip.
func New(cfg Config, chip gpio.Acquirer, logger *zap.SugaredLogger) *Device {
	d := &Device{
		cfg:    cfg,
		chip:   chip,
		logger: logger.With("device", cfg.Name),
	}
	d.source = NewEdgeSource(&d.slot)
	return d
}

// Open acquires the line, clears any pending sample and binds the edge
// source to both edges. Errors wrap gpio.ErrBusy or gpio.ErrUnavailable; on
// error nothing stays acquired.
func (d *Device) Open() (*Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session != nil {
		return nil, fmt.Errorf("open %s: %w: session already open", d.cfg.Name, gpio.ErrBusy)
	}

	d.logger.Infow("opening device", "major", d.cfg.Major, "minor", d.cfg.Minor, "line", d.cfg.Line)

	line, err := d.chip.Acquire(d.cfg.Line)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.cfg.Name, resourceErr(err))
	}

	d.slot.reset()

	if err := line.BindEdges(d.source.OnEdge); err != nil {
		if cerr := line.Close(); cerr != nil {
			d.logger.Warnw("release line after failed bind", "error", cerr)
		}
		return nil, fmt.Errorf("open %s: bind edges on line %d: %w", d.cfg.Name, d.cfg.Line, resourceErr(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.session = &Session{
		dev:    d,
		line:   line,
		ctx:    ctx,
		cancel: cancel,
	}
	return d.session, nil
}

// Close closes the open session, if any.
func (d *Device) Close() error {
	d.mu.Lock()
	s := d.session
	d.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.Close()
}

// Stats returns the current counters and last sample.
func (d *Device) Stats() Stats {
	level, seen := d.slot.Peek()
	d.mu.Lock()
	open := d.session != nil
	d.mu.Unlock()
	return Stats{
		Edges:   d.source.Edges(),
		Dropped: d.source.Dropped(),
		Reads:   d.reads.Load(),
		Level:   level,
		Seen:    seen,
		Open:    open,
	}
}

// resourceErr makes sure acquisition errors carry one of the gpio sentinels.
func resourceErr(err error) error {
	if errors.Is(err, gpio.ErrBusy) || errors.Is(err, gpio.ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", gpio.ErrUnavailable, err)
}

// Session is an open device: a bound line plus the caller's stream position.
type Session struct {
	dev    *Device
	line   gpio.Line
	ctx    context.Context // done once the session is closed
	cancel context.CancelFunc
	pos    atomic.Int64

	closeOnce sync.Once
	closeErr  error
}

// Read blocks until the next edge, claims its sample and writes it to sink as
// "<digit>\n", truncated to maxBytes. It returns the number of bytes written
// and advances the session offset by the same amount.
//
// A sink write error is logged and does not fail the read: the sample has
// already been consumed. If ctx is cancelled or the session closes while
// waiting, Read returns an error wrapping ErrInterrupted and writes nothing.
func (s *Session) Read(ctx context.Context, sink io.Writer, maxBytes int) (int, error) {
	if s.ctx.Err() != nil {
		return 0, ErrClosed
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	level, err := s.dev.slot.Wait(ctx)
	if err != nil {
		return 0, err
	}
	s.dev.reads.Inc()

	var staging [stagingSize]byte
	out := formatLevel(staging[:0], level)
	if maxBytes < len(out) {
		out = out[:max(maxBytes, 0)]
	}

	if _, err := sink.Write(out); err != nil {
		s.dev.logger.Warnw("could not copy sample to sink", "level", level, "error", err)
	}

	s.pos.Add(int64(len(out)))
	return len(out), nil
}

// Offset returns the number of bytes delivered by this session.
func (s *Session) Offset() int64 {
	return s.pos.Load()
}

// Close releases blocked readers, unbinds the edge handler and releases the
// line. Subsequent calls return the first result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()

		var err error
		if uerr := s.line.UnbindEdges(); uerr != nil {
			err = multierr.Append(err, fmt.Errorf("unbind edges: %w", uerr))
		}
		if cerr := s.line.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("release line: %w", cerr))
		}
		s.closeErr = err

		d := s.dev
		d.mu.Lock()
		if d.session == s {
			d.session = nil
		}
		d.mu.Unlock()

		d.logger.Infow("closed device", "major", d.cfg.Major, "minor", d.cfg.Minor, "offset", s.Offset())
	})
	return s.closeErr
}

// formatLevel appends the decimal digit and a newline to b. The result must
// leave room for a terminator in the staging buffer.
func formatLevel(b []byte, level Level) []byte {
	b = strconv.AppendInt(b, int64(level), 10)
	b = append(b, '\n')
	if len(b) >= stagingSize {
		panic(fmt.Sprintf("button: formatted level %q overflows staging buffer", b))
	}
	return b
}
