package invoke

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Request is the body of POST /run/<program>.
type Request struct {
	Stdin string `json:"stdin"`
}

// Response is the CDS server's answer. When Error is set the other fields
// carry no meaning.
type Response struct {
	Stdout     string  `json:"stdout"`
	Stderr     string  `json:"stderr"`
	ExitStatus int32   `json:"exit_status"`
	Duration   uint64  `json:"duration"`
	Error      *string `json:"error"`
}

// UnmarshalJSON requires every field but error, so a truncated reply is a
// parse failure rather than an empty successful run.
func (r *Response) UnmarshalJSON(data []byte) error {
	var wire struct {
		Stdout     *string `json:"stdout"`
		Stderr     *string `json:"stderr"`
		ExitStatus *int32  `json:"exit_status"`
		Duration   *uint64 `json:"duration"`
		Error      *string `json:"error"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	switch {
	case wire.Stdout == nil:
		return fmt.Errorf("missing field %q", "stdout")
	case wire.Stderr == nil:
		return fmt.Errorf("missing field %q", "stderr")
	case wire.ExitStatus == nil:
		return fmt.Errorf("missing field %q", "exit_status")
	case wire.Duration == nil:
		return fmt.Errorf("missing field %q", "duration")
	}

	*r = Response{
		Stdout:     *wire.Stdout,
		Stderr:     *wire.Stderr,
		ExitStatus: *wire.ExitStatus,
		Duration:   *wire.Duration,
		Error:      wire.Error,
	}
	return nil
}

func NewRequest(stdin []byte) Request {
	return Request{Stdin: base64.StdEncoding.EncodeToString(stdin)}
}

func decodePayload(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
