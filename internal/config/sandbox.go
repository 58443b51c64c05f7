package config

import (
	lua "github.com/yuin/gopher-lua"
)

// newSandboxedVM creates a Lua VM that can only evaluate declarative
// configuration. Only the base, table, string and math libraries are
// opened, and the base functions that load or run external code are
// removed.
func newSandboxedVM() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}

	sandboxLuaVM(L)
	return L
}

// sandboxLuaVM removes everything that could execute commands, touch the
// filesystem, or load code from outside the config file.
func sandboxLuaVM(L *lua.LState) {
	for _, name := range []string{
		"os", "io", "debug", "package",
		"require", "dofile", "loadfile", "load", "loadstring",
		"collectgarbage",
	} {
		L.SetGlobal(name, lua.LNil)
	}
}
