package debug

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Variable is one own property of a scope object.
type Variable struct {
	Name string `json:"name"`
	Type string `json:"type"`

	// Value is the literal value if the target sent one, else the
	// description, else "[type]".
	Value any `json:"value"`

	Description string `json:"description,omitempty"`
}

type getPropertiesParams struct {
	ObjectID               string `json:"objectId"`
	OwnProperties          bool   `json:"ownProperties"`
	AccessorPropertiesOnly bool   `json:"accessorPropertiesOnly"`
	GeneratePreview        bool   `json:"generatePreview"`
}

type propertyDescriptor struct {
	Name  string            `json:"name"`
	Value *wireRemoteObject `json:"value"`
}

type getPropertiesResult struct {
	Result []propertyDescriptor `json:"result"`
}

// ScopeVariables lists the own properties of a scope object, usually
// Scope.Object.ObjectID of a frame in the current pause. Internal names
// (leading "__"), an explicit "this" and properties without a value are
// skipped.
func (s *Session) ScopeVariables(ctx context.Context, objectID string) ([]Variable, error) {
	conn, err := s.activeConn()
	if err != nil {
		return nil, err
	}

	raw, err := conn.Send(ctx, "Runtime.getProperties", getPropertiesParams{
		ObjectID:        objectID,
		OwnProperties:   true,
		GeneratePreview: true,
	})
	if err != nil {
		return nil, err
	}

	var res getPropertiesResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode getProperties result: %w", err)
	}

	vars := make([]Variable, 0, len(res.Result))
	for _, prop := range res.Result {
		if prop.Value == nil || hiddenProperty(prop.Name) {
			continue
		}
		vars = append(vars, Variable{
			Name:        prop.Name,
			Type:        prop.Value.Type,
			Value:       displayValue(*prop.Value),
			Description: prop.Value.description(),
		})
	}
	return vars, nil
}

func hiddenProperty(name string) bool {
	return name == "this" || strings.HasPrefix(name, "__")
}

func displayValue(v wireRemoteObject) any {
	switch {
	case v.Value != nil:
		return v.Value
	case v.Description != nil:
		return *v.Description
	default:
		return "[" + v.Type + "]"
	}
}

// EvalOptions controls EvaluateOnCallFrame.
type EvalOptions struct {
	// ReturnByValue asks for the result serialized as a JSON value rather
	// than an object handle.
	ReturnByValue bool

	// GeneratePreview asks for an abbreviated preview of object results.
	GeneratePreview bool
}

// DefaultEvalOptions returns the options used when none are given.
func DefaultEvalOptions() EvalOptions {
	return EvalOptions{GeneratePreview: true}
}

// EvaluationResult is the outcome of an evaluation. A thrown exception is a
// successful round-trip: it is reported in ExceptionDetails, not as an error.
type EvaluationResult struct {
	Result           RemoteValue       `json:"result"`
	ExceptionDetails *ExceptionDetails `json:"exceptionDetails,omitempty"`
}

type evaluateOnCallFrameParams struct {
	CallFrameID     string `json:"callFrameId"`
	Expression      string `json:"expression"`
	ReturnByValue   bool   `json:"returnByValue"`
	GeneratePreview bool   `json:"generatePreview"`
}

type evaluateOnCallFrameResult struct {
	Result           wireRemoteObject      `json:"result"`
	ExceptionDetails *wireExceptionDetails `json:"exceptionDetails"`
}

// EvaluateOnCallFrame evaluates expression in the context of a call frame of
// the current pause.
func (s *Session) EvaluateOnCallFrame(ctx context.Context, callFrameID, expression string, opts EvalOptions) (EvaluationResult, error) {
	conn, err := s.pausedConn()
	if err != nil {
		return EvaluationResult{}, err
	}

	raw, err := conn.Send(ctx, "Debugger.evaluateOnCallFrame", evaluateOnCallFrameParams{
		CallFrameID:     callFrameID,
		Expression:      expression,
		ReturnByValue:   opts.ReturnByValue,
		GeneratePreview: opts.GeneratePreview,
	})
	if err != nil {
		return EvaluationResult{}, err
	}

	var res evaluateOnCallFrameResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return EvaluationResult{}, fmt.Errorf("decode evaluateOnCallFrame result: %w", err)
	}

	return EvaluationResult{
		Result:           toRemoteValue(res.Result),
		ExceptionDetails: toExceptionDetails(res.ExceptionDetails),
	}, nil
}

// ScriptSource fetches the source text of a script.
func (s *Session) ScriptSource(ctx context.Context, scriptID string) (string, error) {
	conn, err := s.activeConn()
	if err != nil {
		return "", err
	}

	raw, err := conn.Send(ctx, "Debugger.getScriptSource", map[string]string{
		"scriptId": scriptID,
	})
	if err != nil {
		return "", err
	}

	var res struct {
		ScriptSource string `json:"scriptSource"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return "", fmt.Errorf("decode getScriptSource result: %w", err)
	}
	return res.ScriptSource, nil
}

// SearchOptions controls SearchInScripts.
type SearchOptions struct {
	CaseSensitive bool
	IsRegex       bool
}

// SearchMatch is one matching line.
type SearchMatch struct {
	ScriptID    string `json:"scriptId"`
	URL         string `json:"url"`
	LineNumber  int    `json:"lineNumber"`
	LineContent string `json:"lineContent"`
}

// SearchResult holds every match of a query across the known scripts.
type SearchResult struct {
	Query   string        `json:"query"`
	Matches []SearchMatch `json:"matches"`
}

type searchInContentParams struct {
	ScriptID      string `json:"scriptId"`
	Query         string `json:"query"`
	CaseSensitive bool   `json:"caseSensitive"`
	IsRegex       bool   `json:"isRegex"`
}

type searchInContentResult struct {
	Result []struct {
		LineNumber  int    `json:"lineNumber"`
		LineContent string `json:"lineContent"`
	} `json:"result"`
}

// SearchInScripts searches the content of every known script that has a
// URL or a content hash. Scripts are searched one at a time in registry order; a script whose
// search fails is skipped. Cancelling ctx stops the search and returns
// ctx.Err().
func (s *Session) SearchInScripts(ctx context.Context, query string, opts SearchOptions) (SearchResult, error) {
	conn, err := s.activeConn()
	if err != nil {
		return SearchResult{}, err
	}

	result := SearchResult{
		Query:   query,
		Matches: []SearchMatch{},
	}

	for _, script := range s.scripts.All() {
		if script.URL == "" && script.Hash == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return SearchResult{}, err
		}

		raw, err := conn.Send(ctx, "Debugger.searchInContent", searchInContentParams{
			ScriptID:      script.ScriptID,
			Query:         query,
			CaseSensitive: opts.CaseSensitive,
			IsRegex:       opts.IsRegex,
		})
		if err != nil {
			if ctx.Err() != nil {
				return SearchResult{}, ctx.Err()
			}
			s.logger.Debug("search in %s: %v", script.URL, err)
			continue
		}

		var res searchInContentResult
		if err := json.Unmarshal(raw, &res); err != nil {
			s.logger.Debug("search in %s: decode result: %v", script.URL, err)
			continue
		}

		for _, m := range res.Result {
			result.Matches = append(result.Matches, SearchMatch{
				ScriptID:    script.ScriptID,
				URL:         script.URL,
				LineNumber:  m.LineNumber,
				LineContent: m.LineContent,
			})
		}
	}

	return result, nil
}
