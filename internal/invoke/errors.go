package invoke

import (
	"errors"
	"fmt"
)

var (
	ErrPortNotExposed = errors.New("unable to find public address of cds server, is the port exposed?")
	ErrCommunication  = errors.New("server issue")
	ErrResponseParse  = errors.New("server response could not be parsed")
	ErrPayloadDecode  = errors.New("payload is not valid base64")
)

// RemoteError is an error reported by the CDS server in place of a result.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("cds server reported an error: %s", e.Message)
}
