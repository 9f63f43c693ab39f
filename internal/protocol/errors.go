package protocol

import "errors"

var (
	ErrDecode    = errors.New("malformed message")
	ErrEncode    = errors.New("cannot encode message")
	ErrTransport = errors.New("daemon connection failed")
)

// Failure reported by the daemon in an [ErrorResult].
type RemoteError struct {
	Result ErrorResult // Error payload sent by the daemon.
}

func (e *RemoteError) Error() string {
	return "daemon: " + e.Result.Message
}
