// Package automation runs Lua scripts against a debugger session.
//
// Scripts run in a sandboxed gopher-lua state with only the base, table,
// string and math libraries. The session is exposed as the global table
// dbg:
//
//	local bp = dbg.set_breakpoint("http://localhost:3000/app.js", 41)
//	print("breakpoint " .. bp.breakpointId)
//
//	local state = dbg.wait_paused(10)
//	local frame = state.callFrames[1]
//	for _, v in ipairs(dbg.scope_variables(frame.scopeChain[1].object.objectId)) do
//	    print(v.name, v.value)
//	end
//	dbg.resume()
//
// Values are handed to Lua as tables shaped like their JSON encoding, so
// field names match the protocol (scriptId, lineNumber, callFrames, ...).
// Lua arrays are 1-based; line and column numbers stay 0-based as in the
// protocol.
//
// Failed operations raise Lua errors; use pcall to handle them:
//
//	local ok, err = pcall(dbg.step_over)
//	if not ok then print("cannot step: " .. err) end
package automation
