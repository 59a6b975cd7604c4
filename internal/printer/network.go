package printer

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/orrn/printdispatch/internal/config"
)

const (
	defaultTCPPort          = "9100"
	defaultReadWriteTimeout = 10 * time.Second

	// DLE EOT 1 response bits.
	statusOffline = 0x08
)

var statusQuery = []byte{0x10, 0x04, 0x01}

// NetworkSpooler drives statically configured raw TCP printers. Connections
// are cached per printer and dropped on the first I/O error.
type NetworkSpooler struct {
	printers    []config.NetworkPrinter
	timeout     time.Duration
	dial        func(ctx context.Context, network, address string) (net.Conn, error)
	mu          sync.Mutex
	connections map[string]net.Conn
}

func NewNetworkSpooler(cfg config.PrintersConfig) *NetworkSpooler {
	timeout := cfg.ConnectionTimeout
	if timeout == 0 {
		timeout = defaultReadWriteTimeout
	}
	dialer := &net.Dialer{Timeout: timeout}
	return &NetworkSpooler{
		printers:    cfg.Network,
		timeout:     timeout,
		dial:        dialer.DialContext,
		connections: make(map[string]net.Conn),
	}
}

func (ns *NetworkSpooler) Printers(ctx context.Context) ([]Info, error) {
	printers := make([]Info, 0, len(ns.printers))
	for _, p := range ns.printers {
		printers = append(printers, Info{
			Name:    p.Name,
			Status:  ns.CheckStatus(ctx, p.Name),
			Default: p.Default,
			Source:  "network",
		})
	}
	return printers, nil
}

func (ns *NetworkSpooler) Default(ctx context.Context) (string, error) {
	for _, p := range ns.printers {
		if p.Default {
			return p.Name, nil
		}
	}
	return "", nil
}

// Owns reports whether name is one of the configured printers. It does no I/O.
func (ns *NetworkSpooler) Owns(name string) bool {
	_, ok := ns.address(name)
	return ok
}

func (ns *NetworkSpooler) address(name string) (string, bool) {
	for _, p := range ns.printers {
		if p.Name != name {
			continue
		}
		if _, _, err := net.SplitHostPort(p.Address); err != nil {
			return net.JoinHostPort(p.Address, defaultTCPPort), true
		}
		return p.Address, true
	}
	return "", false
}

func (ns *NetworkSpooler) connect(ctx context.Context, name string) (net.Conn, error) {
	addr, ok := ns.address(name)
	if !ok {
		return nil, ErrPrinterNotFound
	}

	ns.mu.Lock()
	if conn, ok := ns.connections[name]; ok {
		ns.mu.Unlock()
		return conn, nil
	}
	ns.mu.Unlock()

	conn, err := ns.dial(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	ns.mu.Lock()
	if existing, ok := ns.connections[name]; ok {
		ns.mu.Unlock()
		_ = conn.Close()
		return existing, nil
	}
	ns.connections[name] = conn
	ns.mu.Unlock()
	return conn, nil
}

func (ns *NetworkSpooler) disconnect(name string) {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	if conn, ok := ns.connections[name]; ok {
		_ = conn.Close()
		delete(ns.connections, name)
	}
}

// CheckStatus asks the printer for its real-time status. A printer that does
// not answer the query but accepts the connection is reported as unknown,
// which callers treat as usable.
func (ns *NetworkSpooler) CheckStatus(ctx context.Context, name string) Status {
	conn, err := ns.connect(ctx, name)
	if err != nil {
		return StatusDisconnected
	}

	_ = conn.SetDeadline(time.Now().Add(ns.timeout))
	if _, err := conn.Write(statusQuery); err != nil {
		ns.disconnect(name)
		return StatusDisconnected
	}

	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err != nil {
		return StatusUnknown
	}
	return parseStatusByte(buf[0])
}

func parseStatusByte(b byte) Status {
	if b&statusOffline != 0 {
		return StatusError
	}
	return StatusIdle
}

func (ns *NetworkSpooler) Write(ctx context.Context, name string, data []byte) error {
	conn, err := ns.connect(ctx, name)
	if err != nil {
		return err
	}

	_ = conn.SetDeadline(time.Now().Add(ns.timeout))
	if _, err := conn.Write(data); err != nil {
		ns.disconnect(name)
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	return nil
}

func (ns *NetworkSpooler) Close() error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	for name, conn := range ns.connections {
		_ = conn.Close()
		delete(ns.connections, name)
	}
	return nil
}
