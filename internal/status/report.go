// Package status builds the outbound device status message.
package status

import (
	"encoding/json"
	"time"

	"poollight-controller/internal/core"
)

// Report is the wire shape of one status publish. Field names and types are
// fixed by the fixture's companion app.
type Report struct {
	Micros      uint64 `json:"micros"`
	Client      string `json:"client"`
	Power       string `json:"power"`
	RSSI        int    `json:"RSSI"`
	Programming string `json:"programming"`
	Color       string `json:"color"`
}

// Build assembles a report from a state snapshot. quality is the 0..100
// link-quality value, uptime the monotonic time since boot.
func Build(st core.State, client string, quality int, uptime time.Duration) Report {
	return Report{
		Micros:      uint64(uptime.Microseconds()),
		Client:      client,
		Power:       onOff(st.Power),
		RSSI:        quality,
		Programming: onOff(st.Programming),
		Color:       st.CurrentScene.Name(),
	}
}

// Encode renders the report as its JSON wire form.
func (r Report) Encode() []byte {
	b, _ := json.Marshal(r)
	return b
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
