package luahost

import (
	"encoding/json"
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// goToLua and luaToGo are adapted from internal/lua/api.go's conversion
// helpers (same cases, same fallback-to-%v-string behavior for anything
// unexpected), reused here to bridge json.RawMessage argument/result
// values rather than internal/lua's goop.kv store values. Unlike that
// store, these values cross the wire as JSON, which cannot represent a
// cyclic table — luaToGo tracks the tables it's currently inside and
// collapses a cycle to a string marker instead of recursing forever.

const maxConvertDepth = 200

func goToLua(L *lua.LState, v interface{}) lua.LValue {
	if v == nil {
		return lua.LNil
	}
	switch val := v.(type) {
	case bool:
		return lua.LBool(val)
	case float64:
		return lua.LNumber(val)
	case int:
		return lua.LNumber(float64(val))
	case int64:
		return lua.LNumber(float64(val))
	case string:
		return lua.LString(val)
	case []interface{}:
		tbl := L.NewTable()
		for i, item := range val {
			tbl.RawSetInt(i+1, goToLua(L, item))
		}
		return tbl
	case map[string]interface{}:
		tbl := L.NewTable()
		for k, item := range val {
			tbl.RawSetString(k, goToLua(L, item))
		}
		return tbl
	default:
		return lua.LString(fmt.Sprintf("%v", val))
	}
}

func luaToGo(lv lua.LValue) interface{} {
	return luaToGoDepth(lv, make(map[*lua.LTable]bool), 0)
}

func luaToGoDepth(lv lua.LValue, seen map[*lua.LTable]bool, depth int) interface{} {
	switch v := lv.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		return float64(v)
	case lua.LString:
		return string(v)
	case *lua.LTable:
		if depth >= maxConvertDepth || seen[v] {
			return "<zipline: cyclic or too-deep table>"
		}
		seen[v] = true
		defer delete(seen, v)

		maxN := v.MaxN()
		if maxN > 0 {
			arr := make([]interface{}, 0, maxN)
			for i := 1; i <= maxN; i++ {
				arr = append(arr, luaToGoDepth(v.RawGetInt(i), seen, depth+1))
			}
			return arr
		}
		m := make(map[string]interface{})
		v.ForEach(func(key, val lua.LValue) {
			if ks, ok := key.(lua.LString); ok {
				m[string(ks)] = luaToGoDepth(val, seen, depth+1)
			} else {
				m[fmt.Sprintf("%v", key)] = luaToGoDepth(val, seen, depth+1)
			}
		})
		return m
	default:
		return fmt.Sprintf("%v", v)
	}
}

// argsToLua decodes each JSON argument and pushes it as a Lua value,
// returning the values in call order for use as varargs.
func argsToLua(L *lua.LState, args []json.RawMessage) ([]lua.LValue, error) {
	out := make([]lua.LValue, len(args))
	for i, raw := range args {
		var v interface{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, fmt.Errorf("decode argument %d: %w", i, err)
			}
		}
		out[i] = goToLua(L, v)
	}
	return out, nil
}

// resultToJSON converts a single Lua return value back to a JSON
// json.RawMessage ("null" for the no-value/nil case).
func resultToJSON(lv lua.LValue) (json.RawMessage, error) {
	if lv == nil || lv == lua.LNil {
		return json.RawMessage("null"), nil
	}
	b, err := json.Marshal(luaToGo(lv))
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}
