// SPDX-License-Identifier: MIT

package recog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrNoSession indicates the recognition service has no active session
// where the caller expected one.
var ErrNoSession = errors.New("no active session")

// APIError is returned for non-2xx responses from the recognition service.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("recognition service: %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("recognition service: unexpected status %d", e.Code)
}

func decodeError(res *http.Response) error {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	data, _ := io.ReadAll(io.LimitReader(res.Body, 8192))
	_ = json.Unmarshal(data, &body)
	msg := body.Error
	if msg == "" {
		msg = body.Message
	}
	return &APIError{Code: res.StatusCode, Message: msg}
}

func errOrDefault(msg, fallback string) error {
	if msg != "" {
		return errors.New(msg)
	}
	return errors.New(fallback)
}

// FailureMessage extracts the most specific human-readable failure message
// from an operation response: result error, then result reason, then the
// top-level error, then the session's last message, then fallback.
func FailureMessage(resp *OpResponse, fallback string) string {
	if resp != nil {
		if resp.Result != nil {
			if resp.Result.Error != "" {
				return resp.Result.Error
			}
			if resp.Result.Reason != "" {
				return resp.Result.Reason
			}
		}
		if resp.Error != "" {
			return resp.Error
		}
		if resp.Session != nil && resp.Session.LastMessage != "" {
			return resp.Session.LastMessage
		}
	}
	return fallback
}
