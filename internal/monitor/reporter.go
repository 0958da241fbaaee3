// Package monitor carries plate usage to an external monitor as plain text
// lines of the form "PLATE <id> USE <count>". Delivery is best effort: the
// kitchen never waits on the monitor.
package monitor

import (
	"context"
	"fmt"
	"net"
	"time"
)

// Logger matches logging.Logger's signature.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// FormatUsage renders one usage line without the trailing newline.
func FormatUsage(plateID, count int) string {
	return fmt.Sprintf("PLATE %d USE %d", plateID, count)
}

// Reporter queues usage lines and writes them over a lazily dialled TCP
// connection. Failures are logged and the line is dropped.
type Reporter struct {
	addr         string
	queue        chan string
	logger       Logger
	dialTimeout  time.Duration
	writeTimeout time.Duration
	maxBackoff   time.Duration
	dial         func(ctx context.Context, network, addr string) (net.Conn, error)
}

// ReporterOption customizes a Reporter.
type ReporterOption func(*Reporter)

// WithLogger overrides the reporter's logger.
func WithLogger(l Logger) ReporterOption {
	return func(r *Reporter) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithQueueSize bounds how many lines may wait for delivery.
func WithQueueSize(n int) ReporterOption {
	return func(r *Reporter) {
		if n > 0 {
			r.queue = make(chan string, n)
		}
	}
}

// WithTimeouts overrides the dial and write timeouts.
func WithTimeouts(dial, write time.Duration) ReporterOption {
	return func(r *Reporter) {
		if dial > 0 {
			r.dialTimeout = dial
		}
		if write > 0 {
			r.writeTimeout = write
		}
	}
}

// NewReporter targets addr (host:port). Nothing is dialled until Run.
func NewReporter(addr string, opts ...ReporterOption) *Reporter {
	r := &Reporter{
		addr:         addr,
		queue:        make(chan string, 64),
		logger:       nopLogger{},
		dialTimeout:  500 * time.Millisecond,
		writeTimeout: 500 * time.Millisecond,
		maxBackoff:   5 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.dial == nil {
		d := net.Dialer{Timeout: r.dialTimeout}
		r.dial = d.DialContext
	}
	return r
}

// ReportPlateUsage queues a usage line. It never blocks; a full queue drops
// the line.
func (r *Reporter) ReportPlateUsage(plateID, count int) {
	line := FormatUsage(plateID, count)
	select {
	case r.queue <- line:
	default:
		r.logger.Printf("monitor: queue full, dropped %q", line)
	}
}

// Run delivers queued lines until ctx is done.
func (r *Reporter) Run(ctx context.Context) error {
	var (
		conn    net.Conn
		backoff time.Duration
		retryAt time.Time
	)
	defer func() {
		if conn != nil {
			_ = conn.Close()
		}
	}()
	for {
		var line string
		select {
		case <-ctx.Done():
			return nil
		case line = <-r.queue:
		}
		if conn == nil {
			if time.Now().Before(retryAt) {
				r.logger.Printf("monitor: %s unreachable, dropped %q", r.addr, line)
				continue
			}
			dialCtx, cancel := context.WithTimeout(ctx, r.dialTimeout)
			c, err := r.dial(dialCtx, "tcp", r.addr)
			cancel()
			if err != nil {
				backoff = nextBackoff(backoff, r.maxBackoff)
				retryAt = time.Now().Add(backoff)
				r.logger.Printf("monitor: dial %s: %v (dropped %q, retry in %s)", r.addr, err, line, backoff)
				continue
			}
			conn, backoff = c, 0
		}
		_ = conn.SetWriteDeadline(time.Now().Add(r.writeTimeout))
		if _, err := conn.Write([]byte(line + "\n")); err != nil {
			r.logger.Printf("monitor: write %q: %v", line, err)
			_ = conn.Close()
			conn = nil
		}
	}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	if cur <= 0 {
		return 100 * time.Millisecond
	}
	cur *= 2
	if cur > max {
		cur = max
	}
	return cur
}
