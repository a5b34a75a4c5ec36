package jolokia

import (
	"encoding/json"
	"strings"
)

// Defaults for the request options passed through to the agent.
const (
	DefaultMaxDepth          = 7
	DefaultMaxCollectionSize = 50000
	DefaultUpdateRate        = 5000
	DefaultAutoRefresh       = false
)

// Request types understood by the agent.
const (
	TypeRead    = "read"
	TypeWrite   = "write"
	TypeExec    = "exec"
	TypeList    = "list"
	TypeSearch  = "search"
	TypeVersion = "version"
)

// Request is one Jolokia request.
type Request struct {
	Type      string         `json:"type"`
	MBean     string         `json:"mbean,omitempty"`
	Attribute interface{}    `json:"attribute,omitempty"`
	Value     interface{}    `json:"value,omitempty"`
	Operation string         `json:"operation,omitempty"`
	Arguments []interface{}  `json:"arguments,omitempty"`
	Path      string         `json:"path,omitempty"`
	Config    map[string]any `json:"config,omitempty"`
}

// Response is one Jolokia response. Value is left raw so that callers can
// decide which shape to decode.
type Response struct {
	Request    Request         `json:"request"`
	Value      json.RawMessage `json:"value,omitempty"`
	Status     int             `json:"status"`
	Timestamp  int64           `json:"timestamp,omitempty"`
	Error      string          `json:"error,omitempty"`
	ErrorType  string          `json:"error_type,omitempty"`
	Stacktrace string          `json:"stacktrace,omitempty"`
}

// IsError reports whether the agent answered with an error.
func (r *Response) IsError() bool {
	return r.Status != 200
}

// Err returns the protocol error carried by the response, or nil.
func (r *Response) Err() error {
	if !r.IsError() {
		return nil
	}
	return &ProtocolError{
		Status:    r.Status,
		ErrorType: r.ErrorType,
		Message:   r.Error,
		Request:   r.Request,
	}
}

// Options are passed through to the agent as processing parameters.
type Options struct {
	MaxDepth          int
	MaxCollectionSize int
	IgnoreErrors      bool
}

// DefaultOptions returns the agent defaults used by the console.
func DefaultOptions() Options {
	return Options{
		MaxDepth:          DefaultMaxDepth,
		MaxCollectionSize: DefaultMaxCollectionSize,
	}
}

// Config converts the options into the request config map.
func (o Options) Config() map[string]any {
	cfg := make(map[string]any)
	if o.MaxDepth > 0 {
		cfg["maxDepth"] = o.MaxDepth
	}
	if o.MaxCollectionSize > 0 {
		cfg["maxCollectionSize"] = o.MaxCollectionSize
	}
	if o.IgnoreErrors {
		cfg["ignoreErrors"] = true
	}
	return cfg
}

var pathEscaper = strings.NewReplacer("!", "!!", "/", "!/")

// EscapePath escapes one element of a list path.
func EscapePath(element string) string {
	return pathEscaper.Replace(element)
}

// JoinPath builds a list path from unescaped elements.
func JoinPath(elements ...string) string {
	escaped := make([]string, len(elements))
	for i, e := range elements {
		escaped[i] = EscapePath(e)
	}
	return strings.Join(escaped, "/")
}

// SplitPath splits a list path into unescaped elements.
func SplitPath(path string) []string {
	if path == "" {
		return nil
	}
	var elements []string
	var cur strings.Builder
	for i := 0; i < len(path); i++ {
		c := path[i]
		if c == '!' && i+1 < len(path) {
			i++
			cur.WriteByte(path[i])
			continue
		}
		if c == '/' {
			elements = append(elements, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteByte(c)
	}
	return append(elements, cur.String())
}
