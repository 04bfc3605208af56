// ABOUTME: Error codes carried in reply envelopes
// ABOUTME: Maps sink sentinel errors to stable codes and back so errors.Is works remotely
package transport

import (
	"errors"

	"github.com/Resonate-Protocol/resonate-stream/pkg/sink"
)

var (
	// ErrTimeout is returned when a call gets no reply in time. It also
	// matches context.DeadlineExceeded.
	ErrTimeout = errors.New("call timed out")

	// ErrClosed is returned for calls on a closed session
	ErrClosed = errors.New("session closed")

	// ErrUnknownMethod is returned for a call the sink does not implement
	ErrUnknownMethod = errors.New("unknown method")

	// ErrBadRequest is returned for a call with malformed parameters
	ErrBadRequest = errors.New("bad request")

	// ErrQueueFull is returned when a session's send queue cannot take more
	ErrQueueFull = errors.New("send queue full")
)

var errorCodes = []struct {
	code string
	err  error
}{
	{"not_open", sink.ErrNotOpen},
	{"not_owner", sink.ErrNotOwner},
	{"already_open", sink.ErrAlreadyOpen},
	{"already_configured", sink.ErrAlreadyConfigured},
	{"not_configured", sink.ErrNotConfigured},
	{"configuration_rejected", sink.ErrConfigurationRejected},
	{"volume_out_of_range", sink.ErrVolumeOutOfRange},
	{"disabled", sink.ErrDisabled},
	{"unknown_method", ErrUnknownMethod},
	{"bad_request", ErrBadRequest},
}

// errorCode returns the wire code for err, or "failed"
func errorCode(err error) string {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return "failed"
}

// RemoteError is an error reported by the peer
type RemoteError struct {
	Code    string
	Message string
	err     error
}

func (e *RemoteError) Error() string { return e.Message }
func (e *RemoteError) Unwrap() error { return e.err }

func remoteError(code, message string) error {
	re := &RemoteError{Code: code, Message: message}
	for _, e := range errorCodes {
		if e.code == code {
			re.err = e.err
			break
		}
	}
	return re
}
