package network

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	psnet "github.com/shirou/gopsutil/net"
)

// NMCLITransport drives the wireless interface through NetworkManager.
type NMCLITransport struct {
	iface       string
	profileName string
	timeout     time.Duration
	run         Runner
}

// NewNMCLITransport creates a transport for the given interface. The agent
// owns a single connection profile named after profileName.
func NewNMCLITransport(iface, profileName string, timeout time.Duration, run Runner) *NMCLITransport {
	if run == nil {
		run = ExecRunner
	}
	return &NMCLITransport{
		iface:       iface,
		profileName: profileName,
		timeout:     timeout,
		run:         run,
	}
}

// secretProperties are profile properties whose values never appear in errors.
var secretProperties = map[string]bool{
	"wifi-sec.psk":                 true,
	"802-11-wireless-security.psk": true,
	"wifi-sec.wep-key0":            true,
}

func (t *NMCLITransport) nmcli(args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	out, err := t.run(ctx, "nmcli", args...)
	if err != nil {
		return out, fmt.Errorf("nmcli %s: %w: %s", strings.Join(redact(args), " "), err, bytes.TrimSpace(out))
	}
	return out, nil
}

// redact returns a copy of args with secret property values masked.
func redact(args []string) []string {
	masked := make([]string, len(args))
	copy(masked, args)
	for i := 0; i < len(masked)-1; i++ {
		if secretProperties[masked[i]] {
			masked[i+1] = "********"
			i++
		}
	}
	return masked
}

// IsConnected reports whether NetworkManager considers the interface connected.
func (t *NMCLITransport) IsConnected() bool {
	out, err := t.nmcli("-t", "-f", "DEVICE,STATE", "device", "status")
	if err != nil {
		return false
	}

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := splitTerse(scanner.Text())
		if len(fields) != 2 || fields[0] != t.iface {
			continue
		}
		return strings.HasPrefix(fields[1], "connected")
	}
	return false
}

// Connect replaces the agent's connection profile and activates it without
// waiting for the activation to finish.
func (t *NMCLITransport) Connect(settings Settings) error {
	// The profile may not exist on first boot.
	_, _ = t.nmcli("connection", "delete", t.profileName)

	args := []string{
		"connection", "add",
		"type", "wifi",
		"ifname", t.iface,
		"con-name", t.profileName,
		"ssid", settings.SSID,
		"connection.autoconnect", "no",
	}
	if settings.Password != "" {
		args = append(args, "wifi-sec.key-mgmt", "wpa-psk", "wifi-sec.psk", settings.Password)
	}
	ipArgs, err := ipv4Args(settings)
	if err != nil {
		return err
	}
	args = append(args, ipArgs...)

	if _, err := t.nmcli(args...); err != nil {
		return err
	}

	_, err = t.nmcli("--wait", "0", "connection", "up", t.profileName)
	return err
}

// Apply rewrites the addressing of the profile and re-activates it.
func (t *NMCLITransport) Apply(settings Settings) error {
	ipArgs, err := ipv4Args(settings)
	if err != nil {
		return err
	}

	args := append([]string{"connection", "modify", t.profileName}, ipArgs...)
	if _, err := t.nmcli(args...); err != nil {
		return err
	}

	_, err = t.nmcli("--wait", "0", "connection", "up", t.profileName)
	return err
}

// Disconnect drops the interface's current association.
func (t *NMCLITransport) Disconnect() error {
	_, err := t.nmcli("device", "disconnect", t.iface)
	return err
}

// Scan lists visible wireless networks.
func (t *NMCLITransport) Scan() ([]AccessPoint, error) {
	out, err := t.nmcli("-t", "-f", "SSID,SIGNAL", "device", "wifi", "list", "ifname", t.iface, "--rescan", "yes")
	if err != nil {
		return nil, err
	}
	return parseScan(out), nil
}

// Info reports the interface's hardware and IPv4 details.
func (t *NMCLITransport) Info() (Info, error) {
	info := Info{Name: t.iface}

	ifaces, err := psnet.Interfaces()
	if err != nil {
		return info, fmt.Errorf("failed to list interfaces: %w", err)
	}
	for _, iface := range ifaces {
		if iface.Name != t.iface {
			continue
		}
		info.MACAddress = iface.HardwareAddr
		for _, addr := range iface.Addrs {
			info.Addresses = append(info.Addresses, addr.Addr)
		}
	}

	out, err := t.nmcli("-t", "-f", "IP4.GATEWAY,IP4.DNS", "device", "show", t.iface)
	if err != nil {
		return info, err
	}
	info.Gateway, info.DNS = parseDeviceShow(out)
	return info, nil
}

// SetHostname sets the system hostname, which NetworkManager publishes
// through DHCP and the local name responder.
func (t *NMCLITransport) SetHostname(name string) error {
	_, err := t.nmcli("general", "hostname", name)
	return err
}

func ipv4Args(settings Settings) ([]string, error) {
	if settings.UseDHCP {
		return []string{
			"ipv4.method", "auto",
			"ipv4.addresses", "",
			"ipv4.gateway", "",
			"ipv4.dns", "",
			"ipv4.dhcp-hostname", settings.Hostname,
		}, nil
	}

	prefix, err := PrefixLength(settings.Static.SubnetMask)
	if err != nil {
		return nil, fmt.Errorf("subnet mask %s: %w", settings.Static.SubnetMask, err)
	}
	return []string{
		"ipv4.method", "manual",
		"ipv4.addresses", settings.Static.IP.String() + "/" + strconv.Itoa(prefix),
		"ipv4.gateway", settings.Static.Gateway.String(),
		"ipv4.dns", settings.Static.DNS.String(),
	}, nil
}

func parseScan(out []byte) []AccessPoint {
	var aps []AccessPoint
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := splitTerse(scanner.Text())
		if len(fields) != 2 || fields[0] == "" {
			continue
		}
		signal, err := strconv.Atoi(strings.TrimSpace(fields[1]))
		if err != nil {
			continue
		}
		aps = append(aps, AccessPoint{SSID: fields[0], Signal: signal})
	}
	return aps
}

func parseDeviceShow(out []byte) (string, []string) {
	var gateway string
	var dns []string

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok || value == "" || value == "--" {
			continue
		}
		switch {
		case key == "IP4.GATEWAY":
			gateway = value
		case strings.HasPrefix(key, "IP4.DNS"):
			dns = append(dns, value)
		}
	}
	return gateway, dns
}

// splitTerse splits a line of nmcli terse output on unescaped colons.
func splitTerse(line string) []string {
	var fields []string
	var current strings.Builder
	escaped := false

	for _, r := range line {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == ':':
			fields = append(fields, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	return append(fields, current.String())
}
