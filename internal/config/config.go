// Package config loads warp's single structured configuration document
// (spec.md §6): private key, interface-scanning policy, rendezvous address,
// far peer's public key, and the named tunnel set.
package config

import (
	"encoding/json"
	"fmt"
	"net/netip"
	"os"
	"regexp"

	"github.com/a7g4/warp/internal/protocol"
	"github.com/a7g4/warp/internal/wirecrypto"
)

// Config is the top-level configuration document.
type Config struct {
	PrivateKey wirecrypto.PrivateKey `json:"private_key"`
	Interfaces InterfacesConfig      `json:"interfaces"`
	WarpMap    WarpMapConfig         `json:"warp_map"`
	FarGate    FarGateConfig         `json:"far_gate"`
	Tunnels    map[string]TunnelConfig `json:"tunnels"`
}

// InterfacesConfig governs the interface scanner of spec.md §4.3.
type InterfacesConfig struct {
	ScanInterval               Duration `json:"interface_scan_interval"`
	HolepunchKeepAliveInterval Duration `json:"holepunch_keep_alive_interval"`
	BindToDevice               bool     `json:"bind_to_device"`
	InclusionPatterns          []string `json:"inclusion_patterns"`
	ExclusionPatterns          []string `json:"exclusion_patterns"`
	MaxConsecutiveFailures     int32    `json:"max_consecutive_failures"`
}

// WarpMapConfig names the rendezvous server.
type WarpMapConfig struct {
	Address   netip.AddrPort       `json:"address"`
	PublicKey wirecrypto.PublicKey `json:"public_key"`
}

// FarGateConfig names the far peer this process tunnels to.
type FarGateConfig struct {
	PublicKey wirecrypto.PublicKey `json:"public_key"`
}

// TunnelConfig is one named tunnel's gate and transport configuration. If
// TunnelID is nil, the tunnel's map key is used as its wire name instead
// (spec.md §6: "If tunnel_id is not set, its string name is used instead").
type TunnelConfig struct {
	TunnelID  *uint64         `json:"tunnel_id,omitempty"`
	Gate      GateConfig      `json:"gate"`
	Transport TransportConfig `json:"transport"`
}

// WireTunnelID resolves a tunnel's configured name and TunnelConfig into the
// protocol.TunnelID it is addressed by on the wire.
func WireTunnelID(name string, t TunnelConfig) protocol.TunnelID {
	if t.TunnelID != nil {
		return protocol.TunnelByID(*t.TunnelID)
	}
	return protocol.TunnelName(name)
}

// GateConfig is a union: exactly one of Loopback or Unix must be set.
type GateConfig struct {
	Loopback *LoopbackGateConfig `json:"loopback,omitempty"`
	Unix     *UnixGateConfig     `json:"unix,omitempty"`
}

// LoopbackGateConfig binds a gate's application socket to UDP loopback.
type LoopbackGateConfig struct {
	IPv4              bool    `json:"ipv4"`
	ApplicationToGate uint16  `json:"application_to_gate"`
	GateToApplication *uint16 `json:"gate_to_application,omitempty"`
}

// UnixGateConfig binds a gate's application socket to a Unix datagram path.
type UnixGateConfig struct {
	Path string `json:"path"`
}

// TransportConfig carries per-tunnel transport parameters. Redundancy is a
// reserved placeholder (spec.md §9): nothing reads it yet.
type TransportConfig struct {
	MTU          uint16           `json:"mtu"`
	Ordered      bool             `json:"ordered"`
	SendDeadline Duration         `json:"send_deadline"`
	Redundancy   RedundancyConfig `json:"redundancy"`
}

// RedundancyConfig is a reserved placeholder for the forward-error-correction
// scheme spec.md §9 leaves as an open question.
type RedundancyConfig struct {
	NumShards      uint8 `json:"num_shards"`
	RequiredShards uint8 `json:"required_shards"`
}

// Load reads and validates a configuration document from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse configuration %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration (%s): %w", path, err)
	}
	return &cfg, nil
}

// Validate checks the document for the startup-fatal configuration errors
// spec.md §7 lists: invalid regex, unresolvable address, malformed key, and
// this package's own gate-union/tunnel-id-collision invariants.
func (c *Config) Validate() error {
	if !c.WarpMap.Address.IsValid() {
		return fmt.Errorf("warp_map.address is not a valid address")
	}
	if c.WarpMap.PublicKey.IsZero() {
		return fmt.Errorf("warp_map.public_key is required")
	}
	if c.FarGate.PublicKey.IsZero() {
		return fmt.Errorf("far_gate.public_key is required")
	}

	if _, err := c.Interfaces.CompiledInclusionPatterns(); err != nil {
		return fmt.Errorf("interfaces.inclusion_patterns: %w", err)
	}
	if _, err := c.Interfaces.CompiledExclusionPatterns(); err != nil {
		return fmt.Errorf("interfaces.exclusion_patterns: %w", err)
	}

	seenIDs := map[uint64]string{}
	for name, t := range c.Tunnels {
		if (t.Gate.Loopback == nil) == (t.Gate.Unix == nil) {
			return fmt.Errorf("tunnel %q: gate must set exactly one of loopback or unix", name)
		}
		if t.TunnelID != nil {
			if other, ok := seenIDs[*t.TunnelID]; ok {
				return fmt.Errorf("tunnel %q and %q both use tunnel_id %d", name, other, *t.TunnelID)
			}
			seenIDs[*t.TunnelID] = name
		}
	}
	return nil
}

// CompiledInclusionPatterns compiles the configured inclusion regex set.
func (c InterfacesConfig) CompiledInclusionPatterns() ([]*regexp.Regexp, error) {
	return compilePatterns(c.InclusionPatterns)
}

// CompiledExclusionPatterns compiles the configured exclusion regex set.
func (c InterfacesConfig) CompiledExclusionPatterns() ([]*regexp.Regexp, error) {
	return compilePatterns(c.ExclusionPatterns)
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}
