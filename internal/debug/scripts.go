package debug

import (
	"strings"
	"sync"
)

// Script is a unit of source code reported by the target.
type Script struct {
	// ScriptID is the protocol-assigned identifier.
	ScriptID string `json:"scriptId"`

	// URL is empty for inline and eval scripts.
	URL string `json:"url"`

	StartLine   int `json:"startLine"`
	StartColumn int `json:"startColumn"`
	EndLine     int `json:"endLine"`
	EndColumn   int `json:"endColumn"`

	// Hash is the content hash computed by the target.
	Hash string `json:"hash,omitempty"`

	// SourceMapURL is the source map referenced by the script, if any.
	SourceMapURL string `json:"sourceMapURL,omitempty"`

	ExecutionContextID int  `json:"executionContextId,omitempty"`
	IsModule           bool `json:"isModule,omitempty"`
	Length             int  `json:"length,omitempty"`
}

// ScriptRegistry tracks every script parsed by the target, indexed by id and
// by URL. Scripts are listed in the order they were first reported.
type ScriptRegistry struct {
	mu      sync.RWMutex
	scripts map[string]Script
	order   []string
	byURL   map[string][]string
}

// NewScriptRegistry creates an empty registry.
func NewScriptRegistry() *ScriptRegistry {
	return &ScriptRegistry{
		scripts: make(map[string]Script),
		byURL:   make(map[string][]string),
	}
}

// Add inserts a script, replacing any earlier script with the same id.
func (r *ScriptRegistry) Add(s Script) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.scripts[s.ScriptID]; ok {
		if old.URL != s.URL {
			r.unindex(old.URL, old.ScriptID)
		}
	} else {
		r.order = append(r.order, s.ScriptID)
	}
	r.scripts[s.ScriptID] = s

	if s.URL == "" {
		return
	}
	ids := r.byURL[s.URL]
	for _, id := range ids {
		if id == s.ScriptID {
			return
		}
	}
	r.byURL[s.URL] = append(ids, s.ScriptID)
}

// unindex removes id from the URL index entry of url.
func (r *ScriptRegistry) unindex(url, id string) {
	ids := r.byURL[url]
	for i, existing := range ids {
		if existing == id {
			ids = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(r.byURL, url)
	} else {
		r.byURL[url] = ids
	}
}

// All returns every script.
func (r *ScriptRegistry) All() []Script {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Script, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.scripts[id])
	}
	return out
}

// ByURL returns the scripts whose URL equals url exactly.
func (r *ScriptRegistry) ByURL(url string) []Script {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byURL[url]
	out := make([]Script, 0, len(ids))
	for _, id := range ids {
		if s, ok := r.scripts[id]; ok {
			out = append(out, s)
		}
	}
	return out
}

// ByURLPattern returns the scripts whose URL contains pattern, ignoring case.
func (r *ScriptRegistry) ByURLPattern(pattern string) []Script {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lower := strings.ToLower(pattern)
	var out []Script
	for _, id := range r.order {
		s := r.scripts[id]
		if strings.Contains(strings.ToLower(s.URL), lower) {
			out = append(out, s)
		}
	}
	return out
}

// ByID returns the script with the given id.
func (r *ScriptRegistry) ByID(id string) (Script, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.scripts[id]
	return s, ok
}

// Len returns the number of scripts.
func (r *ScriptRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.scripts)
}

// URLCount returns the number of distinct indexed URLs.
func (r *ScriptRegistry) URLCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byURL)
}

// Clear removes every script and the URL index.
func (r *ScriptRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.scripts = make(map[string]Script)
	r.order = nil
	r.byURL = make(map[string][]string)
}

// Scripts returns every known script in the order it was first reported.
func (s *Session) Scripts() []Script {
	return s.scripts.All()
}

// ScriptsByURL returns the scripts whose URL equals url exactly.
func (s *Session) ScriptsByURL(url string) []Script {
	return s.scripts.ByURL(url)
}

// ScriptsByURLPattern returns the scripts whose URL contains pattern,
// ignoring case.
func (s *Session) ScriptsByURLPattern(pattern string) []Script {
	return s.scripts.ByURLPattern(pattern)
}

// ScriptByID returns a script by id.
func (s *Session) ScriptByID(id string) (Script, bool) {
	return s.scripts.ByID(id)
}
