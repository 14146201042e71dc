package measure

import (
	"errors"
	"fmt"
)

var ErrOutputMismatch = errors.New("actual output differs from expected output")

// NonZeroExitError is a measured program that exited unsuccessfully. It keeps
// the run's output for diagnosis.
type NonZeroExitError struct {
	ExitStatus int32
	Stdout     string
	Stderr     string
}

func (e *NonZeroExitError) Error() string {
	return fmt.Sprintf("measurement run terminated with non-zero exit status! exit_status: %d\nstdout:\n%s\nstderr:\n%s",
		e.ExitStatus, fence(e.Stdout), fence(e.Stderr))
}

const rule = "--------------"

// fence frames program output between rules. The output is expected to end
// with its own newline.
func fence(s string) string {
	return rule + "\n" + s + rule
}
