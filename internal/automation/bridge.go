package automation

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	lua "github.com/yuin/gopher-lua"
)

// toLua converts a Go value to Lua through its JSON encoding. Objects
// become tables keyed by field name and arrays become 1-based sequences.
func toLua(L *lua.LState, v any) (lua.LValue, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return lua.LNil, fmt.Errorf("convert %T: %w", v, err)
	}
	return jsonToLua(L, gjson.ParseBytes(data)), nil
}

func jsonToLua(L *lua.LState, r gjson.Result) lua.LValue {
	switch {
	case r.IsArray():
		t := L.NewTable()
		i := 1
		r.ForEach(func(_, value gjson.Result) bool {
			t.RawSetInt(i, jsonToLua(L, value))
			i++
			return true
		})
		return t

	case r.IsObject():
		t := L.NewTable()
		r.ForEach(func(key, value gjson.Result) bool {
			t.RawSetString(key.String(), jsonToLua(L, value))
			return true
		})
		return t
	}

	switch r.Type {
	case gjson.True:
		return lua.LTrue
	case gjson.False:
		return lua.LFalse
	case gjson.Number:
		return lua.LNumber(r.Float())
	case gjson.String:
		return lua.LString(r.String())
	default:
		return lua.LNil
	}
}

// optBool reads an optional boolean field of an options table.
func optBool(t *lua.LTable, key string) bool {
	if t == nil {
		return false
	}
	return lua.LVAsBool(t.RawGetString(key))
}
