// Package wifi exposes the controller's network identity and radio link
// strength, both derived from the wireless interface.
package wifi

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

const wirelessPath = "/proc/net/wireless"

// noSignal is reported when the interface has no reading; it maps to a link
// quality of 0.
const noSignal = -100

// Quality maps a raw signal level in dBm onto the 0..100 link-quality scale:
// -100 dBm or below is 0, -50 dBm or above is 100, linear in between.
func Quality(dbm int) int {
	switch {
	case dbm <= -100:
		return 0
	case dbm >= -50:
		return 100
	default:
		return 2 * (dbm + 100)
	}
}

// Monitor samples the signal level of one wireless interface.
type Monitor struct {
	iface  string
	log    zerolog.Logger
	warned bool
}

// NewMonitor creates a monitor for the named interface (e.g. "wlan0").
func NewMonitor(iface string, log zerolog.Logger) *Monitor {
	return &Monitor{iface: iface, log: log}
}

// RSSI returns the current signal level in dBm. When the interface has no
// wireless stats (wired dev boxes, tests) it reports the no-signal floor and
// warns once.
func (m *Monitor) RSSI() int {
	f, err := os.Open(wirelessPath)
	if err != nil {
		m.warnOnce(err)
		return noSignal
	}
	defer f.Close()

	dbm, ok := parseWireless(f, m.iface)
	if !ok {
		m.warnOnce(fmt.Errorf("interface %s not listed in %s", m.iface, wirelessPath))
		return noSignal
	}
	return dbm
}

func (m *Monitor) warnOnce(err error) {
	if m.warned {
		return
	}
	m.warned = true
	m.log.Warn().Err(err).Str("interface", m.iface).
		Msg("No wireless signal reading available, reporting link quality 0")
}

// parseWireless extracts the signal level column for iface from
// /proc/net/wireless content. Lines look like:
//
//	wlan0: 0000   54.  -56.  -256        0      0      0      0      0        0
func parseWireless(r io.Reader, iface string) (int, bool) {
	scanner := bufio.NewScanner(r)
	prefix := iface + ":"
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 || fields[0] != prefix {
			continue
		}
		level, err := strconv.ParseFloat(strings.TrimSuffix(fields[3], "."), 64)
		if err != nil {
			return 0, false
		}
		return int(level), true
	}
	return 0, false
}

// DeviceID derives the stable device identity from the interface's hardware
// address, matching the identity the fixture announces on the broker.
func DeviceID(iface string) string {
	if ifc, err := net.InterfaceByName(iface); err == nil {
		if id, ok := idFromMAC(ifc.HardwareAddr); ok {
			return id
		}
	}
	// Interface missing (renamed, or a dev box): fall back to the first
	// interface that has a hardware address so the id stays deterministic.
	ifaces, err := net.Interfaces()
	if err == nil {
		for _, ifc := range ifaces {
			if id, ok := idFromMAC(ifc.HardwareAddr); ok {
				return id
			}
		}
	}
	return "poollight-000000"
}

func idFromMAC(mac net.HardwareAddr) (string, bool) {
	if len(mac) < 6 {
		return "", false
	}
	return fmt.Sprintf("poollight-%02x%02x%02x", mac[3], mac[4], mac[5]), true
}
