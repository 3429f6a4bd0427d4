package status_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poollight-controller/internal/core"
	"poollight-controller/internal/fixture"
	"poollight-controller/internal/status"
)

func Test_Build_AfterBoot(t *testing.T) {
	st := core.State{Power: false, Programming: false}

	rep := status.Build(st, "poollight-ab12cd", 74, 1500*time.Microsecond)

	assert.Equal(t, uint64(1500), rep.Micros)
	assert.Equal(t, "poollight-ab12cd", rep.Client)
	assert.Equal(t, "off", rep.Power)
	assert.Equal(t, 74, rep.RSSI)
	assert.Equal(t, "off", rep.Programming)
	assert.Equal(t, "Unknown", rep.Color, "scene is unknown until a cycle completes")
}

func Test_Build_AfterProgramming(t *testing.T) {
	st := core.State{Power: true, CurrentScene: fixture.SceneBlue}

	rep := status.Build(st, "poollight-ab12cd", 100, time.Second)

	assert.Equal(t, "on", rep.Power)
	assert.Equal(t, "off", rep.Programming)
	assert.Equal(t, "Blue", rep.Color)
}

func Test_Encode_WireFormat(t *testing.T) {
	st := core.State{Power: true, Programming: true, CurrentScene: fixture.SceneRed}

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(status.Build(st, "c", 50, 0).Encode(), &decoded))

	// The companion app depends on these exact keys, including case.
	for _, key := range []string{"micros", "client", "power", "RSSI", "programming", "color"} {
		assert.Contains(t, decoded, key)
	}
	assert.Equal(t, "on", decoded["power"])
	assert.Equal(t, "on", decoded["programming"])
	assert.Equal(t, "Red", decoded["color"])
	assert.Equal(t, float64(50), decoded["RSSI"])
}
