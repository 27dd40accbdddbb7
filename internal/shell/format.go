package shell

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/dshills/cdpdebug/internal/debug"
)

const (
	defaultListLines = 10
	maxEventParams   = 120
)

// parseLocation splits "<url>:<line>[:<column>]" with 1-based numbers into
// a URL and 0-based line and column.
func parseLocation(loc string) (url string, line, column int, err error) {
	rest, last, ok := cutNumber(loc)
	if !ok {
		return "", 0, 0, fmt.Errorf("invalid location %q: want <url>:<line>[:<column>]", loc)
	}
	if head, n, ok := cutNumber(rest); ok {
		return head, n - 1, last - 1, nil
	}
	return rest, last - 1, 0, nil
}

// cutNumber splits a trailing ":<n>" with n >= 1 off s.
func cutNumber(s string) (string, int, bool) {
	i := strings.LastIndexByte(s, ':')
	if i <= 0 {
		return s, 0, false
	}
	n, err := strconv.Atoi(s[i+1:])
	if err != nil || n < 1 {
		return s, 0, false
	}
	return s[:i], n, true
}

// parseCondition reads an optional "if <expression>" tail.
func parseCondition(args []string) (string, error) {
	if len(args) == 0 {
		return "", nil
	}
	if args[0] != "if" || len(args) == 1 {
		return "", fmt.Errorf("unexpected %q: want if <condition>", strings.Join(args, " "))
	}
	return strings.Join(args[1:], " "), nil
}

func formatBreakpoint(bp debug.Breakpoint) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s at ", bp.ID)
	if bp.IsRegex() {
		fmt.Fprintf(&b, "/%s/", bp.URL)
	} else {
		b.WriteString(bp.URL)
	}
	fmt.Fprintf(&b, ":%d", bp.LineNumber+1)
	if bp.ColumnNumber > 0 {
		fmt.Fprintf(&b, ":%d", bp.ColumnNumber+1)
	}
	if bp.Condition != "" {
		fmt.Fprintf(&b, " if %s", bp.Condition)
	}
	switch n := len(bp.Locations); n {
	case 0:
		b.WriteString(" (pending)")
	case 1:
		b.WriteString(" (1 location)")
	default:
		fmt.Fprintf(&b, " (%d locations)", n)
	}
	return b.String()
}

func scriptName(s debug.Script) string {
	if s.URL != "" {
		return s.URL
	}
	return "(inline)"
}

// formatSource numbers the lines first..first+count-1 of src, 1-based. A
// count of 0 prints to the end. The line equal to current is marked.
func formatSource(src string, first, count, current int) string {
	lines := strings.Split(src, "\n")
	last := len(lines)
	if count > 0 && first-1+count < last {
		last = first - 1 + count
	}

	var b strings.Builder
	for n := first; n <= last; n++ {
		marker := "  "
		if n == current {
			marker = "=>"
		}
		fmt.Fprintf(&b, "%s%5d  %s\n", marker, n, lines[n-1])
	}
	return b.String()
}

func formatFrame(f debug.CallFrame) string {
	return fmt.Sprintf("%s at %s:%d:%d", f.FunctionName, firstNonEmpty(f.URL, f.Location.ScriptID),
		f.Location.LineNumber+1, f.Location.ColumnNumber+1)
}

func describePause(state debug.PausedState) string {
	if !state.IsPaused {
		return "running"
	}
	msg := "paused (" + state.Reason + ")"
	if top, ok := state.TopFrame(); ok {
		msg += " in " + formatFrame(top)
	}
	if len(state.HitBreakpoints) > 0 {
		msg += " [" + strings.Join(state.HitBreakpoints, ", ") + "]"
	}
	return msg
}

// formatValue renders a remote value the way a console would.
func formatValue(v debug.RemoteValue) string {
	switch {
	case v.Type == "undefined":
		return "undefined"
	case v.Value != nil:
		return formatAny(v.Value)
	case v.Subtype == "null":
		return "null"
	case v.Description != "":
		return v.Description
	default:
		return "[" + v.Type + "]"
	}
}

func formatAny(v any) string {
	switch x := v.(type) {
	case string:
		return strconv.Quote(x)
	case nil:
		return "null"
	case map[string]any, []any:
		raw, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(raw)
	default:
		return fmt.Sprint(x)
	}
}

// formatVariable quotes only string-typed values. Objects carry their
// description, which is printed as is.
func formatVariable(v debug.Variable) string {
	if s, ok := v.Value.(string); ok && v.Type != "string" {
		return s
	}
	return formatAny(v.Value)
}

func formatException(e *debug.ExceptionDetails) string {
	if e.Exception != nil && e.Exception.Description != "" {
		return e.Exception.Description
	}
	return e.Text
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
