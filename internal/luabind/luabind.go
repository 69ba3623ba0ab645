// Package luabind exposes an engine to Lua scripts as the global "audio"
// table.
package luabind

import (
	"context"

	psgengine "github.com/cbegin/psgengine-go"
	lua "github.com/yuin/gopher-lua"
)

const tableName = "audio"

func luaRegister(l *lua.LState, tbl *lua.LTable, name string, f func(*lua.LState) int) {
	l.SetField(tbl, name, l.NewFunction(f))
}
func nilArg(l *lua.LState, argi int) bool {
	lv := l.Get(argi)
	return lua.LVIsFalse(lv) && lv != lua.LFalse
}
func strArg(l *lua.LState, argi int) string {
	if !lua.LVCanConvToString(l.Get(argi)) {
		l.RaiseError("\nArgument %v is not a string: %v\n", argi, l.Get(argi))
	}
	return l.ToString(argi)
}
func numArg(l *lua.LState, argi int) float64 {
	num, ok := l.Get(argi).(lua.LNumber)
	if !ok {
		l.RaiseError("\nArgument %v is not a number: %v\n", argi, l.Get(argi))
	}
	return float64(num)
}
func boolArg(l *lua.LState, argi int) bool {
	return l.ToBool(argi)
}
func handleArg(l *lua.LState, argi int) psgengine.Handle {
	return psgengine.Handle(numArg(l, argi))
}

func luaContext(l *lua.LState) context.Context {
	if ctx := l.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// pushResult returns true, or false and the error message, to Lua.
func pushResult(l *lua.LState, err error) int {
	if err != nil {
		l.Push(lua.LFalse)
		l.Push(lua.LString(err.Error()))
		return 2
	}
	l.Push(lua.LTrue)
	return 1
}

// Register installs the audio table into l. Foreground MML and sound calls
// wait through the engine, so a script blocks the same way a host program
// does; cancel the state's context to interrupt them.
func Register(l *lua.LState, e *psgengine.Engine) {
	tbl := l.NewTable()
	luaRegister(l, tbl, "open", func(l *lua.LState) int {
		path := strArg(l, 1)
		var h psgengine.Handle
		if !nilArg(l, 2) && boolArg(l, 2) {
			h = e.OpenStream(path)
		} else {
			h = e.Open(path)
		}
		l.Push(lua.LNumber(h))
		return 1
	})
	luaRegister(l, tbl, "openmem", func(l *lua.LState) int {
		l.Push(lua.LNumber(e.OpenMemory([]byte(strArg(l, 1)))))
		return 1
	})
	luaRegister(l, tbl, "close", func(l *lua.LState) int {
		e.Close(handleArg(l, 1))
		return 0
	})
	luaRegister(l, tbl, "play", func(l *lua.LState) int {
		l.Push(lua.LBool(e.Play(handleArg(l, 1))))
		return 1
	})
	luaRegister(l, tbl, "loop", func(l *lua.LState) int {
		l.Push(lua.LBool(e.PlayLooping(handleArg(l, 1))))
		return 1
	})
	luaRegister(l, tbl, "pause", func(l *lua.LState) int {
		e.Pause(handleArg(l, 1))
		return 0
	})
	luaRegister(l, tbl, "stop", func(l *lua.LState) int {
		e.Stop(handleArg(l, 1))
		return 0
	})
	luaRegister(l, tbl, "volume", func(l *lua.LState) int {
		h := handleArg(l, 1)
		if !nilArg(l, 2) {
			e.SetVolume(h, numArg(l, 2))
		}
		l.Push(lua.LNumber(e.Volume(h)))
		return 1
	})
	luaRegister(l, tbl, "pan", func(l *lua.LState) int {
		var y, z float64
		if !nilArg(l, 3) {
			y = numArg(l, 3)
		}
		if !nilArg(l, 4) {
			z = numArg(l, 4)
		}
		e.SetPan(handleArg(l, 1), numArg(l, 2), y, z)
		return 0
	})
	luaRegister(l, tbl, "playing", func(l *lua.LState) int {
		l.Push(lua.LBool(e.IsPlaying(handleArg(l, 1))))
		return 1
	})
	luaRegister(l, tbl, "paused", func(l *lua.LState) int {
		l.Push(lua.LBool(e.IsPaused(handleArg(l, 1))))
		return 1
	})
	// mml(text[, text2 ...]) plays one string per voice.
	luaRegister(l, tbl, "mml", func(l *lua.LState) int {
		texts := make([]string, 0, l.GetTop())
		for i := 1; i <= l.GetTop(); i++ {
			texts = append(texts, strArg(l, i))
		}
		return pushResult(l, e.PlayMMLVoices(luaContext(l), texts...))
	})
	luaRegister(l, tbl, "mmlon", func(l *lua.LState) int {
		return pushResult(l, e.PlayMMLOn(luaContext(l), handleArg(l, 1), strArg(l, 2)))
	})
	luaRegister(l, tbl, "newpsg", func(l *lua.LState) int {
		l.Push(lua.LNumber(e.NewPSG()))
		return 1
	})
	luaRegister(l, tbl, "sound", func(l *lua.LState) int {
		return pushResult(l, e.Sound(luaContext(l), numArg(l, 1), numArg(l, 2)))
	})
	luaRegister(l, tbl, "beep", func(l *lua.LState) int {
		return pushResult(l, e.Beep(luaContext(l)))
	})
	luaRegister(l, tbl, "newraw", func(l *lua.LState) int {
		l.Push(lua.LNumber(e.NewRawStream()))
		return 1
	})
	// rawpush(h, left[, right]) queues one frame; right defaults to left.
	luaRegister(l, tbl, "rawpush", func(l *lua.LState) int {
		left := numArg(l, 2)
		right := left
		if !nilArg(l, 3) {
			right = numArg(l, 3)
		}
		l.Push(lua.LBool(e.PushSample(handleArg(l, 1), float32(left), float32(right))))
		return 1
	})
	luaRegister(l, tbl, "drained", func(l *lua.LState) int {
		l.Push(lua.LBool(e.IsBufferDrained(handleArg(l, 1))))
		return 1
	})
	luaRegister(l, tbl, "len", func(l *lua.LState) int {
		l.Push(lua.LNumber(e.Length(handleArg(l, 1))))
		return 1
	})
	luaRegister(l, tbl, "pos", func(l *lua.LState) int {
		h := handleArg(l, 1)
		if !nilArg(l, 2) {
			e.SetPosition(h, numArg(l, 2))
		}
		l.Push(lua.LNumber(e.Position(h)))
		return 1
	})
	luaRegister(l, tbl, "update", func(l *lua.LState) int {
		e.Update()
		return 0
	})
	l.SetGlobal(tableName, tbl)
}
