package watchdog

import (
	"net"
	"os"
	"strings"
	"sync"
	"time"
)

// Watchdog receives liveness signals. Blocking operations must call Alive
// frequently so the supervisor does not consider the process hung.
type Watchdog interface {
	Alive()
}

// Nop ignores liveness signals.
type Nop struct{}

func (Nop) Alive() {}

// Notifier reports liveness to systemd over NOTIFY_SOCKET.
type Notifier struct {
	conn        *net.UnixConn
	minInterval time.Duration
	last        time.Time
	mu          sync.Mutex
}

// NewFromEnv returns a systemd notifier when NOTIFY_SOCKET is set and a Nop
// watchdog otherwise. Notifications are rate limited to one per minInterval.
func NewFromEnv(minInterval time.Duration) (Watchdog, error) {
	socket := os.Getenv("NOTIFY_SOCKET")
	if socket == "" {
		return Nop{}, nil
	}
	if strings.HasPrefix(socket, "@") {
		socket = "\x00" + socket[1:]
	}

	conn, err := net.DialUnix("unixgram", nil, &net.UnixAddr{Name: socket, Net: "unixgram"})
	if err != nil {
		return nil, err
	}
	return &Notifier{conn: conn, minInterval: minInterval}, nil
}

// Ready tells systemd that startup has finished.
func (n *Notifier) Ready() error {
	_, err := n.conn.Write([]byte("READY=1"))
	return err
}

// Alive pets the watchdog.
func (n *Notifier) Alive() {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := time.Now()
	if now.Sub(n.last) < n.minInterval {
		return
	}
	n.last = now
	_, _ = n.conn.Write([]byte("WATCHDOG=1"))
}

// Close releases the socket.
func (n *Notifier) Close() error {
	return n.conn.Close()
}
