// Package protocol defines the request union accepted by the RPC and
// command front ends and dispatches decoded requests to a session.
//
// A request travels as an envelope:
//
//	{"type": "search", "payload": {"query": "token refresh", "filters": {"maxResults": 5}}}
//
// Decode checks the type tag, rejects unknown payload fields and validates
// the payload before anything runs.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dshills/codecontext/pkg/types"
)

// Type tags a request
type Type string

const (
	TypeStartIndexing  Type = "start_indexing"
	TypePauseIndexing  Type = "pause_indexing"
	TypeResumeIndexing Type = "resume_indexing"
	TypeFullReindex    Type = "full_reindex"
	TypeIndexState     Type = "index_state"
	TypeSearch         Type = "search"
	TypeSuggestions    Type = "suggestions"
	TypeHistory        Type = "history"
	TypeClearHistory   Type = "clear_history"
	TypeFilePreview    Type = "file_preview"
)

// Types lists every request type in a stable order
var Types = []Type{
	TypeStartIndexing, TypePauseIndexing, TypeResumeIndexing, TypeFullReindex,
	TypeIndexState, TypeSearch, TypeSuggestions, TypeHistory, TypeClearHistory,
	TypeFilePreview,
}

const (
	MaxSuggestionLimit = 50
	MaxHistoryLimit    = 1000
	MaxPreviewContext  = 200
)

var ErrUnknownType = errors.New("unknown request type")

// ValidationError reports an invalid request field
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid request: " + e.Reason
	}
	return fmt.Sprintf("invalid request: %s %s", e.Field, e.Reason)
}

// Request is one member of the closed request union
type Request interface {
	Type() Type
	Validate() error
	isRequest()
}

type StartIndexing struct{}
type PauseIndexing struct{}
type ResumeIndexing struct{}
type FullReindex struct{}
type IndexState struct{}
type ClearHistory struct{}

// Search runs a query
type Search struct {
	Query   string              `json:"query"`
	Filters types.SearchFilters `json:"filters"`
}

// Suggestions completes a partial query
type Suggestions struct {
	Partial string `json:"partial"`
	Limit   int    `json:"limit,omitempty"`
}

// History lists recent searches
type History struct {
	Limit int `json:"limit,omitempty"`
}

// FilePreview renders lines around Line of a workspace file
type FilePreview struct {
	Path         string `json:"path"`
	Line         int    `json:"line"`
	ContextLines int    `json:"contextLines,omitempty"`
}

func (StartIndexing) Type() Type  { return TypeStartIndexing }
func (PauseIndexing) Type() Type  { return TypePauseIndexing }
func (ResumeIndexing) Type() Type { return TypeResumeIndexing }
func (FullReindex) Type() Type    { return TypeFullReindex }
func (IndexState) Type() Type     { return TypeIndexState }
func (Search) Type() Type         { return TypeSearch }
func (Suggestions) Type() Type    { return TypeSuggestions }
func (History) Type() Type        { return TypeHistory }
func (ClearHistory) Type() Type   { return TypeClearHistory }
func (FilePreview) Type() Type    { return TypeFilePreview }

func (StartIndexing) isRequest()  {}
func (PauseIndexing) isRequest()  {}
func (ResumeIndexing) isRequest() {}
func (FullReindex) isRequest()    {}
func (IndexState) isRequest()     {}
func (Search) isRequest()         {}
func (Suggestions) isRequest()    {}
func (History) isRequest()        {}
func (ClearHistory) isRequest()   {}
func (FilePreview) isRequest()    {}

func (StartIndexing) Validate() error  { return nil }
func (PauseIndexing) Validate() error  { return nil }
func (ResumeIndexing) Validate() error { return nil }
func (FullReindex) Validate() error    { return nil }
func (IndexState) Validate() error     { return nil }
func (ClearHistory) Validate() error   { return nil }

func (r Search) Validate() error {
	f := r.Filters
	switch {
	case strings.TrimSpace(r.Query) == "":
		return &ValidationError{Field: "query", Reason: "must not be empty"}
	case f.MaxResults < 0 || f.MaxResults > 100:
		return &ValidationError{Field: "filters.maxResults", Reason: "must be within [0, 100]"}
	case f.MinSimilarity < 0 || f.MinSimilarity > 1:
		return &ValidationError{Field: "filters.minSimilarity", Reason: "must be within [0, 1]"}
	case f.DateFrom != nil && f.DateTo != nil && f.DateFrom.After(*f.DateTo):
		return &ValidationError{Field: "filters.dateFrom", Reason: "must not be after dateTo"}
	}
	return nil
}

func (r Suggestions) Validate() error {
	if r.Limit < 0 || r.Limit > MaxSuggestionLimit {
		return &ValidationError{Field: "limit", Reason: fmt.Sprintf("must be within [0, %d]", MaxSuggestionLimit)}
	}
	return nil
}

func (r History) Validate() error {
	if r.Limit < 0 || r.Limit > MaxHistoryLimit {
		return &ValidationError{Field: "limit", Reason: fmt.Sprintf("must be within [0, %d]", MaxHistoryLimit)}
	}
	return nil
}

func (r FilePreview) Validate() error {
	switch {
	case strings.TrimSpace(r.Path) == "":
		return &ValidationError{Field: "path", Reason: "must not be empty"}
	case r.Line < 1:
		return &ValidationError{Field: "line", Reason: "must be at least 1"}
	case r.ContextLines < 0 || r.ContextLines > MaxPreviewContext:
		return &ValidationError{Field: "contextLines", Reason: fmt.Sprintf("must be within [0, %d]", MaxPreviewContext)}
	}
	return nil
}

// Envelope is the wire form of a request
type Envelope struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Decode parses and validates an envelope
func Decode(data []byte) (Request, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &ValidationError{Reason: "malformed envelope: " + err.Error()}
	}
	return DecodePayload(env.Type, env.Payload)
}

// DecodePayload builds the request for typ from its JSON payload. An empty
// or null payload decodes to the zero request.
func DecodePayload(typ Type, payload json.RawMessage) (Request, error) {
	var req Request
	switch typ {
	case TypeStartIndexing, TypePauseIndexing, TypeResumeIndexing, TypeFullReindex, TypeIndexState, TypeClearHistory:
		if err := decodeStrict(payload, &struct{}{}); err != nil {
			return nil, err
		}
	}

	switch typ {
	case TypeStartIndexing:
		req = StartIndexing{}
	case TypePauseIndexing:
		req = PauseIndexing{}
	case TypeResumeIndexing:
		req = ResumeIndexing{}
	case TypeFullReindex:
		req = FullReindex{}
	case TypeIndexState:
		req = IndexState{}
	case TypeClearHistory:
		req = ClearHistory{}
	case TypeSearch:
		var r Search
		if err := decodeStrict(payload, &r); err != nil {
			return nil, err
		}
		req = r
	case TypeSuggestions:
		var r Suggestions
		if err := decodeStrict(payload, &r); err != nil {
			return nil, err
		}
		req = r
	case TypeHistory:
		var r History
		if err := decodeStrict(payload, &r); err != nil {
			return nil, err
		}
		req = r
	case TypeFilePreview:
		var r FilePreview
		if err := decodeStrict(payload, &r); err != nil {
			return nil, err
		}
		req = r
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownType, typ)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

// Encode produces the envelope for req
func Encode(req Request) ([]byte, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: req.Type(), Payload: payload})
}

func decodeStrict(payload json.RawMessage, v any) error {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &ValidationError{Field: "payload", Reason: err.Error()}
	}
	return nil
}
