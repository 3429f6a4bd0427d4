package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poollight-controller/internal/fixture"
)

func Test_ParseInbound_Power(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantOn  bool
	}{
		{"power on", `{"power":"on"}`, true},
		{"power off", `{"power":"off"}`, false},
		{"unknown fields ignored", `{"power":"on","ignored":42}`, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cmds, errs := ParseInbound([]byte(test.payload))
			require.Empty(t, errs)
			require.Len(t, cmds, 1)
			assert.Equal(t, CmdSetPower, cmds[0].Type)
			assert.Equal(t, test.wantOn, cmds[0].Payload["on"])
		})
	}
}

func Test_ParseInbound_Programming(t *testing.T) {
	cmds, errs := ParseInbound([]byte(`{"programming":["on","Blue"]}`))
	require.Empty(t, errs)
	require.Len(t, cmds, 1)
	assert.Equal(t, CmdStartProgramming, cmds[0].Type)
	assert.Equal(t, fixture.SceneBlue, cmds[0].Payload["scene"])

	cmds, errs = ParseInbound([]byte(`{"programming":["off"]}`))
	require.Empty(t, errs)
	require.Len(t, cmds, 1)
	assert.Equal(t, CmdStopProgramming, cmds[0].Type)
}

func Test_ParseInbound_InvalidScene(t *testing.T) {
	cmds, errs := ParseInbound([]byte(`{"programming":["on","Magenta"]}`))
	assert.Empty(t, cmds, "no state change on invalid scene")
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], fixture.ErrInvalidScene)
}

func Test_ParseInbound_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `power on`},
		{"no actionable fields", `{"other":1}`},
		{"bad power value", `{"power":"maybe"}`},
		{"empty programming", `{"programming":[]}`},
		{"programming on without scene", `{"programming":["on"]}`},
		{"bad programming verb", `{"programming":["toggle","Blue"]}`},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cmds, errs := ParseInbound([]byte(test.payload))
			assert.Empty(t, cmds)
			require.NotEmpty(t, errs)
			assert.ErrorIs(t, errs[0], ErrMalformedMessage)
		})
	}
}

func Test_ParseInbound_MixedFields(t *testing.T) {
	// A valid power field still applies when the programming field is bad.
	cmds, errs := ParseInbound([]byte(`{"power":"off","programming":["on","Nope"]}`))
	require.Len(t, cmds, 1)
	assert.Equal(t, CmdSetPower, cmds[0].Type)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], fixture.ErrInvalidScene)

	// Both valid: both commands, power first.
	cmds, errs = ParseInbound([]byte(`{"power":"on","programming":["on","Red"]}`))
	require.Empty(t, errs)
	require.Len(t, cmds, 2)
	assert.Equal(t, CmdSetPower, cmds[0].Type)
	assert.Equal(t, CmdStartProgramming, cmds[1].Type)
}
