package debug

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// BreakpointKind tells how a breakpoint's URL field is to be read.
type BreakpointKind int

const (
	// BreakpointByURL matches scripts whose URL equals Breakpoint.URL.
	BreakpointByURL BreakpointKind = iota
	// BreakpointByURLRegex matches scripts whose URL matches the regular
	// expression in Breakpoint.URL.
	BreakpointByURLRegex
)

// String returns a string representation of the breakpoint kind.
func (k BreakpointKind) String() string {
	switch k {
	case BreakpointByURL:
		return "url"
	case BreakpointByURLRegex:
		return "urlRegex"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind by name.
func (k BreakpointKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Breakpoint is a breakpoint created by this session.
type Breakpoint struct {
	// ID is the protocol-assigned identifier.
	ID string `json:"breakpointId"`

	// Kind says whether URL is a literal URL or a pattern.
	Kind BreakpointKind `json:"kind"`

	// URL is the literal URL or the URL regular expression.
	URL string `json:"url"`

	LineNumber   int    `json:"lineNumber"`
	ColumnNumber int    `json:"columnNumber"`
	Condition    string `json:"condition,omitempty"`

	// Locations are the positions the target resolved the breakpoint to.
	Locations []Location `json:"locations"`
}

// MarshalJSON writes Locations as an array even when it is nil.
func (b Breakpoint) MarshalJSON() ([]byte, error) {
	type plain Breakpoint
	if b.Locations == nil {
		b.Locations = []Location{}
	}
	return json.Marshal(plain(b))
}

// IsRegex reports whether the breakpoint targets a URL pattern.
func (b Breakpoint) IsRegex() bool {
	return b.Kind == BreakpointByURLRegex
}

// BreakpointRegistry tracks the breakpoints this session created, keyed by
// protocol id, in creation order.
type BreakpointRegistry struct {
	mu          sync.RWMutex
	breakpoints map[string]*Breakpoint
	order       []string
}

// NewBreakpointRegistry creates an empty registry.
func NewBreakpointRegistry() *BreakpointRegistry {
	return &BreakpointRegistry{
		breakpoints: make(map[string]*Breakpoint),
	}
}

// Add records a breakpoint, replacing one with the same id.
func (r *BreakpointRegistry) Add(bp Breakpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.breakpoints[bp.ID]; !ok {
		r.order = append(r.order, bp.ID)
	}
	locs := make([]Location, len(bp.Locations))
	copy(locs, bp.Locations)
	bp.Locations = locs
	r.breakpoints[bp.ID] = &bp
}

// AddLocation appends a resolved location to a known breakpoint. It reports
// false when the id is unknown. Duplicate locations are ignored.
func (r *BreakpointRegistry) AddLocation(id string, loc Location) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	bp, ok := r.breakpoints[id]
	if !ok {
		return false
	}
	for _, existing := range bp.Locations {
		if existing == loc {
			return true
		}
	}
	// Copy so snapshots handed out earlier stay unchanged.
	locs := make([]Location, len(bp.Locations), len(bp.Locations)+1)
	copy(locs, bp.Locations)
	bp.Locations = append(locs, loc)
	return true
}

// Remove deletes a breakpoint. Unknown ids are ignored.
func (r *BreakpointRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.breakpoints[id]; !ok {
		return
	}
	delete(r.breakpoints, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
}

// All returns every breakpoint.
func (r *BreakpointRegistry) All() []Breakpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Breakpoint, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.breakpoints[id])
	}
	return out
}

// IDs returns the ids of every breakpoint.
func (r *BreakpointRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// ByID returns the breakpoint with the given id.
func (r *BreakpointRegistry) ByID(id string) (Breakpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bp, ok := r.breakpoints[id]
	if !ok {
		return Breakpoint{}, false
	}
	return *bp, true
}

// Len returns the number of breakpoints.
func (r *BreakpointRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.breakpoints)
}

// Clear removes every breakpoint.
func (r *BreakpointRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.breakpoints = make(map[string]*Breakpoint)
	r.order = nil
}

type setBreakpointByURLParams struct {
	URL          string `json:"url,omitempty"`
	URLRegex     string `json:"urlRegex,omitempty"`
	LineNumber   int    `json:"lineNumber"`
	ColumnNumber int    `json:"columnNumber"`
	Condition    string `json:"condition,omitempty"`
}

type setBreakpointResult struct {
	BreakpointID string         `json:"breakpointId"`
	Locations    []wireLocation `json:"locations"`
}

// SetBreakpoint sets a breakpoint on every script whose URL equals url,
// including scripts loaded later. line and column are 0-based. An empty
// condition makes the breakpoint unconditional.
func (s *Session) SetBreakpoint(ctx context.Context, url string, line, column int, condition string) (Breakpoint, error) {
	return s.setBreakpoint(ctx, BreakpointByURL, url, line, column, condition)
}

// SetBreakpointByURLRegex sets a breakpoint on every script whose URL
// matches the regular expression pattern.
func (s *Session) SetBreakpointByURLRegex(ctx context.Context, pattern string, line, column int, condition string) (Breakpoint, error) {
	return s.setBreakpoint(ctx, BreakpointByURLRegex, pattern, line, column, condition)
}

func (s *Session) setBreakpoint(ctx context.Context, kind BreakpointKind, url string, line, column int, condition string) (Breakpoint, error) {
	conn, err := s.activeConn()
	if err != nil {
		return Breakpoint{}, err
	}

	params := setBreakpointByURLParams{
		LineNumber:   line,
		ColumnNumber: column,
		Condition:    condition,
	}
	if kind == BreakpointByURLRegex {
		params.URLRegex = url
	} else {
		params.URL = url
	}

	raw, err := conn.Send(ctx, "Debugger.setBreakpointByUrl", params)
	if err != nil {
		return Breakpoint{}, err
	}

	var res setBreakpointResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return Breakpoint{}, fmt.Errorf("decode setBreakpointByUrl result: %w", err)
	}

	bp := Breakpoint{
		ID:           res.BreakpointID,
		Kind:         kind,
		URL:          url,
		LineNumber:   line,
		ColumnNumber: column,
		Condition:    condition,
		Locations:    toLocations(res.Locations),
	}
	s.breakpoints.Add(bp)

	s.logger.Debug("breakpoint %s set at %s:%d (%d locations)", bp.ID, url, line, len(bp.Locations))
	return bp, nil
}

// RemoveBreakpoint removes a breakpoint from the target and, on success,
// from the registry. On failure the registry is left unchanged.
func (s *Session) RemoveBreakpoint(ctx context.Context, id string) error {
	conn, err := s.activeConn()
	if err != nil {
		return err
	}

	if _, err := conn.Send(ctx, "Debugger.removeBreakpoint", map[string]string{
		"breakpointId": id,
	}); err != nil {
		return err
	}

	s.breakpoints.Remove(id)
	return nil
}

// RemoveAllBreakpoints removes every known breakpoint. Individual failures
// are logged and skipped; those breakpoints stay registered.
func (s *Session) RemoveAllBreakpoints(ctx context.Context) error {
	if _, err := s.activeConn(); err != nil {
		return err
	}

	for _, id := range s.breakpoints.IDs() {
		if err := s.RemoveBreakpoint(ctx, id); err != nil {
			s.logger.Warn("remove breakpoint %s: %v", id, err)
		}
	}
	return nil
}

// Breakpoints returns the known breakpoints in the order they were set.
func (s *Session) Breakpoints() []Breakpoint {
	return s.breakpoints.All()
}

// BreakpointByID returns a breakpoint by id.
func (s *Session) BreakpointByID(id string) (Breakpoint, bool) {
	return s.breakpoints.ByID(id)
}
