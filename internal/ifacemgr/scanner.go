package ifacemgr

import (
	"context"
	"net"
	"net/netip"
	"regexp"
	"time"

	"github.com/a7g4/warp/internal/logging"
	"github.com/a7g4/warp/internal/queue"
	"github.com/a7g4/warp/internal/watch"
)

// DefaultScanInterval is how often the scanner re-enumerates local
// interfaces and reconciles against the live set.
const DefaultScanInterval = 15 * time.Second

// DefaultMaxConsecutiveFailures is the liveness threshold a Scanner applies
// to interfaces it did not construct with an explicit override.
const DefaultMaxConsecutiveFailures = 5

// Config bundles the parameters a Scanner needs to discover, filter, and
// construct interfaces.
type Config struct {
	ScanInterval           time.Duration
	MaxConsecutiveFailures int32
	Include                []*regexp.Regexp
	Exclude                []*regexp.Regexp
	BindToDevice           bool
	Registration           RegistrationConfig
}

// interfaceAddrs enumerates the host's IPv4 interfaces; overridden in tests.
type interfaceAddrs func() (map[string][]netip.Addr, error)

// Scanner periodically enumerates local IPv4 interfaces, filters them by an
// include-then-exclude regex pair, and reconciles the result against the
// currently live Interface set (spec.md §4.3).
type Scanner struct {
	cfg     Config
	ingress *queue.Unbounded[RecvItem]
	logger  logging.Logger
	list    *watch.Watch[[]*Interface]
	enum    interfaceAddrs

	live map[string]*Interface
}

// NewScanner constructs a Scanner. Call Run to start its periodic scan loop.
func NewScanner(cfg Config, ingress *queue.Unbounded[RecvItem], logger logging.Logger) *Scanner {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = DefaultScanInterval
	}
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = DefaultMaxConsecutiveFailures
	}
	return &Scanner{
		cfg:     cfg,
		ingress: ingress,
		logger:  logger,
		list:    watch.New[[]*Interface](nil),
		enum:    systemInterfaceAddrs,
		live:    map[string]*Interface{},
	}
}

// Interfaces is the watchable, reconciled interface list.
func (s *Scanner) Interfaces() *watch.Watch[[]*Interface] { return s.list }

// Run scans once immediately, then on cfg.ScanInterval, until ctx is
// cancelled. On cancellation every live interface is killed and its tasks
// awaited before Run returns.
func (s *Scanner) Run(ctx context.Context) {
	s.scan(ctx)

	ticker := time.NewTicker(s.cfg.ScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return
		case <-ticker.C:
			s.scan(ctx)
		}
	}
}

func (s *Scanner) shutdown() {
	for _, iface := range s.live {
		iface.Kill()
	}
	for _, iface := range s.live {
		iface.Wait()
	}
	s.live = map[string]*Interface{}
	s.list.Set(nil)
}

func (s *Scanner) scan(ctx context.Context) {
	discovered, err := s.enum()
	if err != nil {
		s.logger.Warnf("interface scan: enumerating local interfaces: %v", err)
		return
	}

	wanted := map[string]netip.Addr{}
	for name, addrs := range discovered {
		if !s.passesFilter(name) {
			continue
		}
		if len(addrs) == 0 {
			continue
		}
		wanted[name] = addrs[0]
	}

	for name, iface := range s.live {
		_, stillWanted := wanted[name]
		if !stillWanted || !iface.IsAlive() {
			iface.Kill()
			delete(s.live, name)
			continue
		}
	}

	for name, addr := range wanted {
		if _, exists := s.live[name]; exists {
			continue
		}
		bindDevice := ""
		if s.cfg.BindToDevice {
			bindDevice = name
		}
		iface, err := NewInterface(ctx, name, addr, bindDevice, s.cfg.MaxConsecutiveFailures, s.cfg.Registration, s.ingress, s.logger)
		if err != nil {
			s.logger.Warnf("interface scan: binding %s (%s): %v", name, addr, err)
			continue
		}
		s.live[name] = iface
	}

	snapshot := make([]*Interface, 0, len(s.live))
	for _, iface := range s.live {
		snapshot = append(snapshot, iface)
	}
	s.list.Set(snapshot)
}

func (s *Scanner) passesFilter(name string) bool {
	if len(s.cfg.Include) > 0 {
		matched := false
		for _, re := range s.cfg.Include {
			if re.MatchString(name) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	for _, re := range s.cfg.Exclude {
		if re.MatchString(name) {
			return false
		}
	}
	return true
}

// systemInterfaceAddrs enumerates the host's IPv4 interface addresses,
// keyed by interface name.
func systemInterfaceAddrs() (map[string][]netip.Addr, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	result := map[string][]netip.Addr{}
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipNet.IP.To4()
			if ip4 == nil {
				continue
			}
			addr, ok := netip.AddrFromSlice(ip4)
			if !ok {
				continue
			}
			result[iface.Name] = append(result[iface.Name], addr)
		}
	}
	return result, nil
}
