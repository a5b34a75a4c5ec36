package jolokia

import (
	"errors"
	"fmt"
)

// ErrTransport is matched by every TransportError.
var ErrTransport = errors.New("transport failure")

// TransportError is a failure to exchange a request with the agent, as
// opposed to an error response from the agent itself.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}

// ProtocolError is an error response returned by the agent.
type ProtocolError struct {
	Status    int
	ErrorType string
	Message   string
	Request   Request
}

func (e *ProtocolError) Error() string {
	if e.ErrorType != "" {
		return fmt.Sprintf("jolokia error %d (%s): %s", e.Status, e.ErrorType, e.Message)
	}
	return fmt.Sprintf("jolokia error %d: %s", e.Status, e.Message)
}

// IsProtocolError reports whether err carries an agent error response.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
