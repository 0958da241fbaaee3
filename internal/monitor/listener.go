package monitor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
)

// Listener accepts monitor connections and hands every received line to a
// callback.
type Listener struct {
	ln     net.Listener
	logger Logger
}

// Listen binds addr.
func Listen(addr string, logger Logger) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("monitor: listen %s: %w", addr, err)
	}
	if logger == nil {
		logger = nopLogger{}
	}
	return &Listener{ln: ln, logger: logger}, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() string { return l.ln.Addr().String() }

// Serve accepts connections until ctx is done. fn may be called from several
// goroutines at once.
func (l *Listener) Serve(ctx context.Context, fn func(line string)) error {
	go func() {
		<-ctx.Done()
		_ = l.ln.Close()
	}()
	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("monitor: accept: %w", err)
		}
		l.logger.Printf("monitor: kitchen connected from %s", conn.RemoteAddr())
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer conn.Close()
			go func() {
				<-ctx.Done()
				_ = conn.Close()
			}()
			scanner := bufio.NewScanner(conn)
			for scanner.Scan() {
				if line := strings.TrimSpace(scanner.Text()); line != "" {
					fn(line)
				}
			}
		}()
	}
}

// ParseUsage decodes a "PLATE <id> USE <count>" line.
func ParseUsage(line string) (plateID, count int, err error) {
	if _, err := fmt.Sscanf(strings.TrimSpace(line), "PLATE %d USE %d", &plateID, &count); err != nil {
		return 0, 0, fmt.Errorf("monitor: malformed line %q: %w", line, err)
	}
	return plateID, count, nil
}
