package docker

import (
	"errors"
	"fmt"
)

var (
	// ErrRuntimeInvocation means the runtime binary could not be started.
	ErrRuntimeInvocation = errors.New("unable to invoke docker client")
	// ErrOutputNotDecodable means the runtime failed and its stderr was not
	// valid UTF-8.
	ErrOutputNotDecodable = errors.New("stderr of docker client is not decodable (contains non-utf8 signs)")
)

// ExecutionError is a non-zero exit of the runtime binary.
type ExecutionError struct {
	ExitCode int
	Stderr   string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("invocation of docker client terminated unsuccessfully with exit code %d: %s", e.ExitCode, e.Stderr)
}
