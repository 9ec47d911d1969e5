package network

import (
	"context"
	"errors"
	"net/netip"
	"os/exec"
)

// ErrInvalidMask is returned for subnet masks that are not a contiguous prefix.
var ErrInvalidMask = errors.New("invalid subnet mask")

// Addressing is the set of addresses used when DHCP is off.
type Addressing struct {
	IP         netip.Addr
	Gateway    netip.Addr
	SubnetMask netip.Addr
	DNS        netip.Addr
}

// Settings describes how to join the wireless network.
type Settings struct {
	Hostname string
	SSID     string
	Password string
	UseDHCP  bool
	Static   Addressing
}

// AccessPoint is one entry of a wireless scan.
type AccessPoint struct {
	SSID   string
	Signal int // percent
}

// Info describes the addresses of the managed interface.
type Info struct {
	Name       string
	MACAddress string
	Addresses  []string
	Gateway    string
	DNS        []string
}

// Transport is the wireless link underneath the session.
type Transport interface {
	// IsConnected reports whether the link is associated and configured.
	IsConnected() bool
	// Connect requests association with the given settings. It returns once
	// the request is issued; callers poll IsConnected for the outcome.
	Connect(settings Settings) error
	// Disconnect drops the current association.
	Disconnect() error
	// Apply reconfigures addressing of the active link without a full reconnect.
	Apply(settings Settings) error
	Scan() ([]AccessPoint, error)
	Info() (Info, error)
	// SetHostname announces the device name to the local network.
	SetHostname(name string) error
}

// Runner executes an external command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// PrefixLength converts a dotted subnet mask into a prefix length.
func PrefixLength(mask netip.Addr) (int, error) {
	if !mask.Is4() {
		return 0, ErrInvalidMask
	}

	b := mask.As4()
	bits := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	ones := 0
	for bits&0x80000000 != 0 {
		ones++
		bits <<= 1
	}
	if bits != 0 {
		return 0, ErrInvalidMask
	}
	return ones, nil
}
