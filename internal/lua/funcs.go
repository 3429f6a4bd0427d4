package lua

import (
	"context"
	"time"

	lua "github.com/yuin/gopher-lua"

	"poollight-controller/internal/core"
	"poollight-controller/internal/fixture"
)

// registerFunctions exposes the show API to the given Lua state. A show
// selects scenes and power; the agent loop applies them, so a scene change
// takes effect only after its pulse train completes (up to ~7.5s) and
// scripts should sleep accordingly.
func (e *Engine) registerFunctions(L *lua.LState, ctx context.Context) {
	L.SetGlobal("scene", L.NewFunction(e.luaScene))
	L.SetGlobal("set_power", L.NewFunction(e.luaSetPower))
	L.SetGlobal("print", L.NewFunction(e.luaPrint))
	L.SetGlobal("sleep", L.NewFunction(func(L *lua.LState) int {
		ms := L.ToInt(1)
		cancellableSleep(ctx, time.Duration(ms)*time.Millisecond)
		return 0
	}))
	L.SetGlobal("should_stop", L.NewFunction(func(L *lua.LState) int {
		select {
		case <-ctx.Done():
			L.Push(lua.LBool(true))
		default:
			L.Push(lua.LBool(false))
		}
		return 1
	}))
}

func (e *Engine) luaPrint(L *lua.LState) int {
	e.log.Info().Str("source", "show").Msg(L.ToString(1))
	return 0
}

func (e *Engine) luaScene(L *lua.LState) int {
	name := L.ToString(1)
	scene, err := fixture.SceneForName(name)
	if err != nil {
		e.log.Warn().Err(err).Str("scene", name).Msg("Show requested unknown scene")
		return 0
	}
	e.enqueue(core.Command{
		Type:    core.CmdStartProgramming,
		Payload: map[string]interface{}{"scene": scene},
	})
	return 0
}

func (e *Engine) luaSetPower(L *lua.LState) int {
	e.enqueue(core.Command{
		Type:    core.CmdSetPower,
		Payload: map[string]interface{}{"on": L.ToBool(1)},
	})
	return 0
}

func (e *Engine) enqueue(cmd core.Command) {
	select {
	case e.commands <- cmd:
	default:
		e.log.Warn().Str("type", string(cmd.Type)).Msg("Command queue full, dropping show command")
	}
}

// cancellableSleep sleeps for d but wakes immediately when the show is
// stopped.
func cancellableSleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return false
	case <-ctx.Done():
		return true
	}
}
