package plant

import (
	"errors"
	"fmt"

	"github.com/rickgao/plantclient/internal/codec"
)

// Errors
var (
	ErrResponseTimeout       = errors.New("plant: response timeout")
	ErrInvalidRequest        = errors.New("plant: invalid request")
	ErrReconnectionExhausted = errors.New("plant: reconnection exhausted")
	ErrNotLoggedIn           = errors.New("plant: not logged in")
)

// InvalidRequestError is a caller-side contract violation, reported before
// anything is sent.
type InvalidRequestError struct {
	Op     string
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid request: %s: %s", e.Op, e.Reason)
}

// Unwrap makes errors.Is(err, ErrInvalidRequest) hold.
func (e *InvalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

// Invalid builds an InvalidRequestError.
func Invalid(op, format string, args ...any) error {
	return &InvalidRequestError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

// VenueError is a non-zero response code returned for a correlated request.
type VenueError struct {
	Template int32
	Code     string
	Text     string
}

func (e *VenueError) Error() string {
	if e.Text == "" {
		return fmt.Sprintf("venue error on template %d: code %s", e.Template, e.Code)
	}
	return fmt.Sprintf("venue error on template %d: code %s: %s", e.Template, e.Code, e.Text)
}

// ResponseError converts a frame's rp_code into an error. Success and "no
// data" are both nil.
func ResponseError(f codec.Frame) error {
	code, text := codec.ResponseCode(f)
	switch code {
	case "", codec.CodeSuccess, codec.CodeNoData:
		return nil
	}
	return &VenueError{Template: f.TemplateID, Code: code, Text: text}
}
