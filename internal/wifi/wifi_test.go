package wifi

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Quality(t *testing.T) {
	tests := []struct {
		name string
		dbm  int
		want int
	}{
		{"floor", -100, 0},
		{"below floor", -120, 0},
		{"ceiling", -50, 100},
		{"above ceiling", -30, 100},
		{"midpoint", -75, 50},
		{"linear low", -90, 20},
		{"linear high", -60, 80},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.want, Quality(test.dbm))
		})
	}
}

const sampleWireless = `Inter-| sta-|   Quality        |   Discarded packets               | Missed | WE
 face | tus | link level noise |  nwid  crypt   frag  retry   misc | beacon | 22
 wlan0: 0000   54.  -56.  -256        0      0      0      0      0        0
 wlan1: 0000   30.  -82.  -256        0      0      0      0      0        0
`

func Test_parseWireless(t *testing.T) {
	dbm, ok := parseWireless(strings.NewReader(sampleWireless), "wlan0")
	require.True(t, ok)
	assert.Equal(t, -56, dbm)

	dbm, ok = parseWireless(strings.NewReader(sampleWireless), "wlan1")
	require.True(t, ok)
	assert.Equal(t, -82, dbm)

	_, ok = parseWireless(strings.NewReader(sampleWireless), "wlan2")
	assert.False(t, ok)

	_, ok = parseWireless(strings.NewReader(""), "wlan0")
	assert.False(t, ok)
}

func Test_idFromMAC(t *testing.T) {
	id, ok := idFromMAC([]byte{0xde, 0xad, 0xbe, 0xef, 0x01, 0x02})
	require.True(t, ok)
	assert.Equal(t, "poollight-ef0102", id)

	_, ok = idFromMAC(nil)
	assert.False(t, ok)
}
