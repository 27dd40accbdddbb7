package debug

import "encoding/json"

// AnonymousFunction is the function name reported for frames without one.
const AnonymousFunction = "<anonymous>"

// Location is a position inside a script. Lines and columns are 0-based.
type Location struct {
	ScriptID     string `json:"scriptId"`
	LineNumber   int    `json:"lineNumber"`
	ColumnNumber int    `json:"columnNumber"`
}

// RemoteValue summarizes a value living in the target.
type RemoteValue struct {
	Type        string `json:"type"`
	Subtype     string `json:"subtype,omitempty"`
	ClassName   string `json:"className,omitempty"`
	Value       any    `json:"value,omitempty"`
	Description string `json:"description,omitempty"`
	ObjectID    string `json:"objectId,omitempty"`
}

// Scope is one entry of a call frame's scope chain.
type Scope struct {
	Type          string      `json:"type"`
	Object        RemoteValue `json:"object"`
	Name          string      `json:"name,omitempty"`
	StartLocation *Location   `json:"startLocation,omitempty"`
	EndLocation   *Location   `json:"endLocation,omitempty"`
}

// CallFrame is a stack entry captured when execution paused.
type CallFrame struct {
	CallFrameID  string      `json:"callFrameId"`
	FunctionName string      `json:"functionName"`
	Location     Location    `json:"location"`
	URL          string      `json:"url"`
	ScopeChain   []Scope     `json:"scopeChain"`
	This         RemoteValue `json:"this"`
}

// ExceptionDetails describes an exception raised by an evaluation.
type ExceptionDetails struct {
	Text         string       `json:"text"`
	LineNumber   int          `json:"lineNumber"`
	ColumnNumber int          `json:"columnNumber"`
	Exception    *RemoteValue `json:"exception,omitempty"`
}

// Raw protocol payloads. Optional numbers are pointers so that absence can
// be told apart from zero.

type wireLocation struct {
	ScriptID     string `json:"scriptId"`
	LineNumber   int    `json:"lineNumber"`
	ColumnNumber *int   `json:"columnNumber"`
}

type wireRemoteObject struct {
	Type        string  `json:"type"`
	Subtype     string  `json:"subtype"`
	ClassName   string  `json:"className"`
	Value       any     `json:"value"`
	Description *string `json:"description"`
	ObjectID    string  `json:"objectId"`
}

func (w wireRemoteObject) description() string {
	if w.Description == nil {
		return ""
	}
	return *w.Description
}

type wireScope struct {
	Type          string           `json:"type"`
	Object        wireRemoteObject `json:"object"`
	Name          string           `json:"name"`
	StartLocation *wireLocation    `json:"startLocation"`
	EndLocation   *wireLocation    `json:"endLocation"`
}

type wireCallFrame struct {
	CallFrameID  string           `json:"callFrameId"`
	FunctionName string           `json:"functionName"`
	Location     wireLocation     `json:"location"`
	URL          string           `json:"url"`
	ScopeChain   []wireScope      `json:"scopeChain"`
	This         wireRemoteObject `json:"this"`
}

type wireExceptionDetails struct {
	Text         string            `json:"text"`
	LineNumber   int               `json:"lineNumber"`
	ColumnNumber int               `json:"columnNumber"`
	Exception    *wireRemoteObject `json:"exception"`
}

type scriptParsedEvent struct {
	ScriptID           string `json:"scriptId"`
	URL                string `json:"url"`
	StartLine          int    `json:"startLine"`
	StartColumn        int    `json:"startColumn"`
	EndLine            int    `json:"endLine"`
	EndColumn          int    `json:"endColumn"`
	ExecutionContextID int    `json:"executionContextId"`
	Hash               string `json:"hash"`
	SourceMapURL       string `json:"sourceMapURL"`
	IsModule           bool   `json:"isModule"`
	Length             int    `json:"length"`
}

type pausedEvent struct {
	CallFrames     []wireCallFrame `json:"callFrames"`
	Reason         string          `json:"reason"`
	Data           json.RawMessage `json:"data"`
	HitBreakpoints []string        `json:"hitBreakpoints"`
}

type breakpointResolvedEvent struct {
	BreakpointID string       `json:"breakpointId"`
	Location     wireLocation `json:"location"`
}

func toLocation(w wireLocation) Location {
	loc := Location{
		ScriptID:   w.ScriptID,
		LineNumber: w.LineNumber,
	}
	if w.ColumnNumber != nil {
		loc.ColumnNumber = *w.ColumnNumber
	}
	return loc
}

func toLocationPtr(w *wireLocation) *Location {
	if w == nil {
		return nil
	}
	loc := toLocation(*w)
	return &loc
}

func toLocations(ws []wireLocation) []Location {
	locs := make([]Location, 0, len(ws))
	for _, w := range ws {
		locs = append(locs, toLocation(w))
	}
	return locs
}

func toRemoteValue(w wireRemoteObject) RemoteValue {
	return RemoteValue{
		Type:        w.Type,
		Subtype:     w.Subtype,
		ClassName:   w.ClassName,
		Value:       w.Value,
		Description: w.description(),
		ObjectID:    w.ObjectID,
	}
}

func toScope(w wireScope) Scope {
	return Scope{
		Type:          w.Type,
		Object:        toRemoteValue(w.Object),
		Name:          w.Name,
		StartLocation: toLocationPtr(w.StartLocation),
		EndLocation:   toLocationPtr(w.EndLocation),
	}
}

func toCallFrame(w wireCallFrame) CallFrame {
	name := w.FunctionName
	if name == "" {
		name = AnonymousFunction
	}

	scopes := make([]Scope, 0, len(w.ScopeChain))
	for _, s := range w.ScopeChain {
		scopes = append(scopes, toScope(s))
	}

	return CallFrame{
		CallFrameID:  w.CallFrameID,
		FunctionName: name,
		Location:     toLocation(w.Location),
		URL:          w.URL,
		ScopeChain:   scopes,
		This:         toRemoteValue(w.This),
	}
}

func toCallFrames(ws []wireCallFrame) []CallFrame {
	frames := make([]CallFrame, 0, len(ws))
	for _, w := range ws {
		frames = append(frames, toCallFrame(w))
	}
	return frames
}

// toExceptionDetails keeps only type, value and description of the thrown
// value; the handle is not useful once evaluation is over.
func toExceptionDetails(w *wireExceptionDetails) *ExceptionDetails {
	if w == nil {
		return nil
	}

	details := &ExceptionDetails{
		Text:         w.Text,
		LineNumber:   w.LineNumber,
		ColumnNumber: w.ColumnNumber,
	}
	if w.Exception != nil {
		details.Exception = &RemoteValue{
			Type:        w.Exception.Type,
			Value:       w.Exception.Value,
			Description: w.Exception.description(),
		}
	}
	return details
}

func toScript(e scriptParsedEvent) Script {
	return Script{
		ScriptID:           e.ScriptID,
		URL:                e.URL,
		StartLine:          e.StartLine,
		StartColumn:        e.StartColumn,
		EndLine:            e.EndLine,
		EndColumn:          e.EndColumn,
		Hash:               e.Hash,
		SourceMapURL:       e.SourceMapURL,
		ExecutionContextID: e.ExecutionContextID,
		IsModule:           e.IsModule,
		Length:             e.Length,
	}
}
