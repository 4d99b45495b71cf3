package messaging

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// ErrInvalidMessage is matched by every decoding failure.
var ErrInvalidMessage = errors.New("invalid message")

// Job asks a worker to sharpen one image. ImageBytes, when present, carries
// the encoded image so the worker does not read it from the shared folder.
type Job struct {
	FileName   string `json:"fileName"`
	ImageBytes []byte `json:"imageBytes,omitempty"`
}

// Inline reports whether the job carries its own image data.
func (j Job) Inline() bool {
	return len(j.ImageBytes) > 0
}

// EncodeJob returns the wire form of j: the bare file name as text, or JSON
// when the image travels with the message.
func EncodeJob(j Job) ([]byte, string, error) {
	if err := ValidateFileName(j.FileName); err != nil {
		return nil, "", err
	}
	if !j.Inline() {
		return []byte(j.FileName), ContentTypeText, nil
	}
	body, err := json.Marshal(j)
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal job: %w", err)
	}
	return body, ContentTypeJSON, nil
}

// DecodeJob accepts both wire forms. JSON is recognised by content type or,
// when the content type is missing, by a leading '{'.
func DecodeJob(body []byte, contentType string) (Job, error) {
	var j Job

	trimmed := bytes.TrimSpace(body)
	if contentType == ContentTypeJSON || (contentType == "" && bytes.HasPrefix(trimmed, []byte("{"))) {
		if err := json.Unmarshal(trimmed, &j); err != nil {
			return Job{}, fmt.Errorf("%w: malformed job json: %v", ErrInvalidMessage, err)
		}
	} else {
		if !utf8.Valid(trimmed) {
			return Job{}, fmt.Errorf("%w: file name is not valid UTF-8", ErrInvalidMessage)
		}
		j.FileName = string(trimmed)
	}

	if err := ValidateFileName(j.FileName); err != nil {
		return Job{}, err
	}
	return j, nil
}

// ValidateFileName rejects names that could escape the image folder.
func ValidateFileName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty file name", ErrInvalidMessage)
	case name == "." || name == "..":
		return fmt.Errorf("%w: file name %q", ErrInvalidMessage, name)
	case strings.ContainsAny(name, `/\`) || filepath.Base(name) != name:
		return fmt.Errorf("%w: file name %q contains a path separator", ErrInvalidMessage, name)
	case strings.ContainsRune(name, 0):
		return fmt.Errorf("%w: file name contains NUL", ErrInvalidMessage)
	}
	return nil
}
