// Package gate implements the local application endpoint of spec.md §4.5:
// a UDP-loopback or Unix-datagram socket that bridges raw application bytes
// to and from a named tunnel.
package gate

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/a7g4/warp/internal/accelerator"
	"github.com/a7g4/warp/internal/framelimit"
	"github.com/a7g4/warp/internal/logging"
	"github.com/a7g4/warp/internal/protocol"
	"github.com/a7g4/warp/internal/queue"
	"github.com/a7g4/warp/internal/watch"
)

// maxDatagramSize bounds a single read from the application socket.
const maxDatagramSize = 65_547

// globalTracer is the per-process, per-direction tracer counter spec.md §5
// requires to be strictly increasing across everything this process sends.
var globalTracer atomic.Uint64

func nextTracer() uint64 {
	return globalTracer.Add(1)
}

// LoopbackConfig binds the gate's application socket to UDP loopback. If
// FixedDestination is the zero value, the gate remembers the last source
// address it received a datagram from and replies there (spec.md §4.5).
type LoopbackConfig struct {
	Port             int
	FixedDestination net.Addr
}

// UnixConfig binds the gate's application socket to a Unix datagram path.
// Any pre-existing file at Path is unlinked at startup.
type UnixConfig struct {
	Path             string
	FixedDestination net.Addr
}

// Config describes one configured tunnel's gate. Exactly one of Loopback or
// Unix should be set. MTU of 0 means no cap is enforced.
type Config struct {
	TunnelID     protocol.TunnelID
	Loopback     *LoopbackConfig
	Unix         *UnixConfig
	SendDeadline time.Duration
	MTU          int
}

// Gate bridges one named tunnel's raw application bytes to and from the
// encrypted wire, per spec.md §3's Gate entity.
type Gate struct {
	tunnelID     protocol.TunnelID
	conn         net.PacketConn
	fixedDest    net.Addr
	dynamicDest  *watch.Watch[net.Addr]
	sendDeadline time.Duration

	egress  *queue.Unbounded[accelerator.Item]
	ingress *queue.Unbounded[[]byte]

	cap    framelimit.Cap
	hasCap bool

	logger logging.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// New binds cfg's application socket and spawns the gate's application
// listener and sender tasks. egress is the process-wide queue the warp
// accelerator drains.
func New(ctx context.Context, cfg Config, egress *queue.Unbounded[accelerator.Item], logger logging.Logger) (*Gate, error) {
	conn, fixedDest, err := bind(cfg)
	if err != nil {
		return nil, err
	}

	gateCtx, cancel := context.WithCancel(ctx)
	g := &Gate{
		tunnelID:     cfg.TunnelID,
		conn:         conn,
		fixedDest:    fixedDest,
		dynamicDest:  watch.New[net.Addr](nil),
		sendDeadline: cfg.SendDeadline,
		egress:       egress,
		ingress:      queue.NewUnbounded[[]byte](),
		logger:       logger,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	if cfg.MTU > 0 {
		cap, err := framelimit.NewCap(cfg.MTU)
		if err != nil {
			return nil, fmt.Errorf("gate: %w", err)
		}
		g.cap, g.hasCap = cap, true
	}

	go g.runApplicationListener(gateCtx)
	go func() {
		defer close(g.done)
		g.runApplicationSender(gateCtx)
	}()
	go func() {
		<-gateCtx.Done()
		g.ingress.Close()
		_ = conn.Close()
	}()

	return g, nil
}

func bind(cfg Config) (net.PacketConn, net.Addr, error) {
	switch {
	case cfg.Loopback != nil:
		conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: cfg.Loopback.Port})
		if err != nil {
			return nil, nil, fmt.Errorf("gate: bind loopback :%d: %w", cfg.Loopback.Port, err)
		}
		return conn, cfg.Loopback.FixedDestination, nil
	case cfg.Unix != nil:
		_ = os.Remove(cfg.Unix.Path)
		conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: cfg.Unix.Path, Net: "unixgram"})
		if err != nil {
			return nil, nil, fmt.Errorf("gate: bind unix socket %s: %w", cfg.Unix.Path, err)
		}
		return conn, cfg.Unix.FixedDestination, nil
	default:
		return nil, nil, fmt.Errorf("gate: config specifies neither Loopback nor Unix")
	}
}

// TunnelID returns the tunnel this gate is bound to.
func (g *Gate) TunnelID() protocol.TunnelID { return g.tunnelID }

// LocalAddr returns the address the gate's application socket is bound to.
func (g *Gate) LocalAddr() net.Addr { return g.conn.LocalAddr() }

// SendToApplication enqueues payload for delivery to the application
// without blocking; the sender task performs the actual I/O (spec.md §4.5).
func (g *Gate) SendToApplication(payload []byte) {
	g.ingress.Push(payload)
}

// Close cancels the gate's tasks and waits for the sender task to exit.
func (g *Gate) Close() {
	g.cancel()
	<-g.done
}

func (g *Gate) runApplicationListener(ctx context.Context) {
	buf := make([]byte, maxDatagramSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, from, err := g.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			g.logger.Warnf("gate %s: application recv: %v", g.tunnelID, err)
			continue
		}

		if g.fixedDest == nil {
			g.dynamicDest.Set(from)
		}

		if g.hasCap {
			if err := g.cap.ValidateLen(n); err != nil {
				g.logger.Warnf("gate %s: application datagram (%d bytes): %v", g.tunnelID, n, err)
				continue
			}
		}

		data := append([]byte(nil), buf[:n]...)
		payload := protocol.TunnelPayload{
			TunnelID:          g.tunnelID,
			Tracer:            nextTracer(),
			ReconstructionTag: protocol.Plain(),
			Data:              data,
		}
		g.egress.Push(accelerator.Item{Payload: payload, Deadline: time.Now().Add(g.sendDeadline)})
	}
}

func (g *Gate) runApplicationSender(ctx context.Context) {
	for {
		data, ok := g.ingress.Pop()
		if !ok {
			return
		}

		dest := g.fixedDest
		if dest == nil {
			dest = g.dynamicDest.Get()
		}
		if dest == nil {
			g.logger.Warnf("gate %s: no known application destination yet, dropping %d bytes", g.tunnelID, len(data))
			continue
		}

		n, err := g.conn.WriteTo(data, dest)
		if err != nil {
			g.logger.Warnf("gate %s: application send to %s: %v", g.tunnelID, dest, err)
			continue
		}
		if n != len(data) {
			g.logger.Warnf("gate %s: partial application send to %s (%d/%d bytes)", g.tunnelID, dest, n, len(data))
		}
	}
}
