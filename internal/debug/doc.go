// Package debug tracks the client-side state of a script debugging session
// held over the Chrome DevTools Protocol Debugger domain.
//
// A Session answers "which scripts exist, where are my breakpoints, am I
// paused and what does the paused stack look like" without querying the
// target for every call.
//
// # Architecture
//
//	┌─────────────────────────────────────────────────────────────────┐
//	│                           Session                               │
//	│  - Enable/Disable lifecycle, event subscriptions                │
//	│  - Execution control (resume, pause, step)                      │
//	│  - Derived operations (search, scope variables, evaluation)     │
//	└─────────────────────────────────────────────────────────────────┘
//	        │                     │                      │
//	        ▼                     ▼                      ▼
//	┌───────────────┐   ┌──────────────────┐   ┌──────────────────┐
//	│ScriptRegistry │   │BreakpointRegistry│   │   pause state    │
//	│ by id, by URL │   │ by protocol id   │   │ Running / Paused │
//	└───────────────┘   └──────────────────┘   └──────────────────┘
//	                              │
//	                              ▼
//	┌─────────────────────────────────────────────────────────────────┐
//	│                   Conn (cdp.Client in production)               │
//	│  - Send(method, params) round-trips                             │
//	│  - On/Off event subscriptions                                   │
//	└─────────────────────────────────────────────────────────────────┘
//
// # Pause States
//
// The pause state only changes when the target reports it:
//
//   - Running: initial state, and the state after every Debugger.resumed
//   - Paused: entered on Debugger.paused; holds reason, call frames and
//     the ids of the breakpoints that were hit
//
// Resume and the step commands require Paused. They ask the target to
// continue; the local state flips back to Running only when the resumed
// event arrives.
//
// # Usage
//
//	client := cdp.NewClient(transport)
//	session := debug.NewSession(debug.WithLogger(logger))
//
//	if err := session.Enable(ctx, client); err != nil {
//	    return err
//	}
//	defer session.Disable(ctx)
//
//	bp, err := session.SetBreakpoint(ctx, "https://example.com/app.js", 41, 0, "")
//
//	state, err := session.WaitForPause(ctx)
//	vars, err := session.ScopeVariables(ctx, state.CallFrames[0].ScopeChain[0].Object.ObjectID)
//	session.StepOver(ctx)
package debug
