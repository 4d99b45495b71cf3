package messaging

import (
	"encoding/json"
	"fmt"
	"time"
)

// Result reports one processed image on the results queue.
type Result struct {
	FileName      string `json:"fileName"`
	Backend       string `json:"backend"`
	ElapsedMillis int64  `json:"elapsedMillis"`
}

// NewResult builds a result from a measured duration.
func NewResult(fileName, backend string, elapsed time.Duration) Result {
	return Result{FileName: fileName, Backend: backend, ElapsedMillis: elapsed.Milliseconds()}
}

// Elapsed returns the processing time as a duration.
func (r Result) Elapsed() time.Duration {
	return time.Duration(r.ElapsedMillis) * time.Millisecond
}

func EncodeResult(r Result) ([]byte, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return body, nil
}

func DecodeResult(body []byte) (Result, error) {
	var r Result
	if err := json.Unmarshal(body, &r); err != nil {
		return Result{}, fmt.Errorf("%w: malformed result: %v", ErrInvalidMessage, err)
	}
	if r.FileName == "" || r.Backend == "" {
		return Result{}, fmt.Errorf("%w: result needs fileName and backend", ErrInvalidMessage)
	}
	return r, nil
}
