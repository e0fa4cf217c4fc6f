package rendezvous

import (
	"context"
	"io"
	"net"
	"net/netip"
	"time"

	"github.com/a7g4/warp/internal/logging"
	"github.com/a7g4/warp/internal/protocol"
	"github.com/a7g4/warp/internal/wire"
	"github.com/a7g4/warp/internal/wirecrypto"
)

const (
	// maxDatagramSize bounds a single recv_from call, matching the teacher's
	// server-side UDP read buffer sizing.
	maxDatagramSize = 65_547

	// GCInterval is how often garbage_collect runs over the client store.
	GCInterval = 60 * time.Second
)

// Server is warp-map: the UDP rendezvous that lets peers discover each
// other's currently reachable addresses.
type Server struct {
	conn    *net.UDPConn
	self    wirecrypto.PrivateKey
	expiry  time.Duration
	logger  logging.Logger
	store   *ClientStore
	ciphers *cipherCache
	metrics *serverMetrics
}

// NewServer binds a UDP socket at bindAddr and constructs a rendezvous
// server around it. self is the rendezvous's own keypair, used to derive a
// per-peer cipher with every registering client. expiry is the
// client-expiry window get_addresses and garbage_collect apply.
func NewServer(bindAddr netip.AddrPort, self wirecrypto.PrivateKey, expiry time.Duration, logger logging.Logger) (*Server, error) {
	conn, err := net.ListenUDP("udp", net.UDPAddrFromAddrPort(bindAddr))
	if err != nil {
		return nil, err
	}
	store := NewClientStore()
	return &Server{
		conn:    conn,
		self:    self,
		expiry:  expiry,
		logger:  logger,
		store:   store,
		ciphers: newCipherCache(),
		metrics: newServerMetrics(store),
	}, nil
}

// LocalAddr returns the address the server's socket is bound to.
func (s *Server) LocalAddr() netip.AddrPort {
	return s.conn.LocalAddr().(*net.UDPAddr).AddrPort()
}

// WritePrometheus writes the server's metrics to w in Prometheus exposition
// format. cmd/warp-map does not serve them on any endpoint.
func (s *Server) WritePrometheus(w io.Writer) {
	s.metrics.WritePrometheus(w)
}

// Run drives the receive loop and the garbage-collection background task
// until ctx is cancelled or the socket errors out.
func (s *Server) Run(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.gcLoop(ctx)
	}()

	go func() {
		<-ctx.Done()
		_ = s.conn.Close()
	}()

	err := s.receiveLoop(ctx)
	<-done
	return err
}

func (s *Server) gcLoop(ctx context.Context) {
	ticker := time.NewTicker(GCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			evicted := s.store.GarbageCollect(time.Now(), s.expiry)
			if evicted > 0 {
				s.metrics.garbage_collect_evicted_total.Add(evicted)
				s.logger.Infof("garbage collected %d expired addresses", evicted)
			}
		}
	}
}

func (s *Server) receiveLoop(ctx context.Context) error {
	buf := make([]byte, maxDatagramSize)
	for {
		n, from, err := s.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			s.logger.Errorf("rendezvous recv: %v", err)
			return err
		}
		s.metrics.datagrams_received_total.Inc()
		s.handleDatagram(from, append([]byte(nil), buf[:n]...))
	}
}

// handleDatagram processes every stacked message in a single incoming
// datagram and, if any replies were produced, packs them into one outbound
// datagram (spec §4.2).
func (s *Server) handleDatagram(from netip.AddrPort, buf []byte) {
	msgs, err := wire.ParseAll(buf)
	if err != nil {
		s.metrics.datagrams_dropped_total.parse_error.Inc()
		s.logger.Warnf("rendezvous: malformed datagram from %s: %v", from, err)
		return
	}

	var reply []byte
	for _, wm := range msgs {
		resp, handled := s.handleMessage(from, wm)
		if handled && resp != nil {
			reply = wire.Append(reply, *resp)
		}
	}

	if len(reply) == 0 {
		return
	}
	if _, err := s.conn.WriteToUDPAddrPort(reply, from); err != nil {
		s.metrics.datagrams_dropped_total.send_error.Inc()
		s.logger.Warnf("rendezvous: send to %s failed: %v", from, err)
	}
}

func (s *Server) handleMessage(from netip.AddrPort, wm wire.WireMessage) (*wire.WireMessage, bool) {
	now := time.Now()

	pc, known := s.ciphers.get(from)
	if !known {
		peerPub, err := protocol.PeekRegisterRequestPubKey(wm.AssociatedData)
		if err != nil {
			s.metrics.datagrams_dropped_total.unknown_peer.Inc()
			s.logger.Warnf("rendezvous: first message from %s is not a register request: %v", from, err)
			return nil, false
		}
		aead, err := wirecrypto.DeriveCipher(s.self, peerPub)
		if err != nil {
			s.metrics.datagrams_dropped_total.unknown_peer.Inc()
			s.logger.Warnf("rendezvous: deriving cipher for %s: %v", from, err)
			return nil, false
		}
		pc = peerCipher{pubkey: peerPub, aead: aead}
		s.ciphers.put(from, pc)
	}

	dec, err := wire.Decrypt(pc.aead, wm)
	if err != nil {
		s.metrics.datagrams_dropped_total.decrypt_error.Inc()
		s.logger.Warnf("rendezvous: decrypting message from %s: %v", from, err)
		return nil, false
	}

	switch dec.ID {
	case protocol.IDRegisterRequest:
		return s.handleRegister(from, pc, dec, now)
	case protocol.IDMappingRequest:
		return s.handleMapping(pc, dec, now)
	case protocol.IDDeregisterRequest:
		return s.handleDeregister(from, pc, dec, now)
	default:
		s.logger.Warnf("rendezvous: unexpected message id %#x from %s", dec.ID, from)
		return nil, false
	}
}

func (s *Server) handleRegister(from netip.AddrPort, pc peerCipher, dec wire.Decrypted, now time.Time) (*wire.WireMessage, bool) {
	req, err := protocol.DecodeRegisterRequest(dec.Public, dec.Secret)
	if err != nil {
		s.logger.Warnf("rendezvous: decoding register request from %s: %v", from, err)
		return nil, false
	}
	s.metrics.requests_total.register.Inc()
	s.store.Register(pc.pubkey, from, now)

	resp := protocol.RegisterResponse{Address: from, Timestamp: protocol.TimestampFromTime(now), RequestTimestamp: req.Timestamp}
	wm, err := wire.Encrypt(pc.aead, resp)
	if err != nil {
		s.logger.Errorf("rendezvous: encrypting register response for %s: %v", from, err)
		return nil, false
	}
	return &wm, true
}

func (s *Server) handleMapping(pc peerCipher, dec wire.Decrypted, now time.Time) (*wire.WireMessage, bool) {
	req, err := protocol.DecodeMappingRequest(dec.Secret)
	if err != nil {
		s.logger.Warnf("rendezvous: decoding mapping request: %v", err)
		return nil, false
	}
	s.metrics.requests_total.mapping.Inc()
	endpoints := s.store.GetAddresses(req.PeerPubKey, now, s.expiry)

	resp := protocol.MappingResponse{PeerPubKey: req.PeerPubKey, Endpoints: endpoints, Timestamp: protocol.TimestampFromTime(now)}
	wm, err := wire.Encrypt(pc.aead, resp)
	if err != nil {
		s.logger.Errorf("rendezvous: encrypting mapping response: %v", err)
		return nil, false
	}
	return &wm, true
}

func (s *Server) handleDeregister(from netip.AddrPort, pc peerCipher, dec wire.Decrypted, now time.Time) (*wire.WireMessage, bool) {
	req, err := protocol.DecodeDeregisterRequest(dec.Public, dec.Secret)
	if err != nil {
		s.logger.Warnf("rendezvous: decoding deregister request from %s: %v", from, err)
		return nil, false
	}
	s.metrics.requests_total.deregister.Inc()
	s.store.Deregister(req.PubKey, from)

	resp := protocol.DeregisterResponse{Timestamp: protocol.TimestampFromTime(now), RequestTimestamp: req.Timestamp}
	wm, err := wire.Encrypt(pc.aead, resp)
	if err != nil {
		s.logger.Errorf("rendezvous: encrypting deregister response for %s: %v", from, err)
		return nil, false
	}
	return &wm, true
}
