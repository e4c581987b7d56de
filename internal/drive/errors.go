package drive

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrNotFound indicates the requested file or folder does not exist.
var ErrNotFound = errors.New("drive: not found")

// APIError is a decoded Drive error envelope.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("drive: %s (http %d)", e.Message, e.Code)
}

// errorFromResponse maps a non-2xx response to an error. 404 yields
// ErrNotFound so callers can branch without string matching.
func errorFromResponse(resp *http.Response) error {
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("drive: request failed with status %d", resp.StatusCode)
	}

	var envelope struct {
		Error APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error.Code == 0 {
		return fmt.Errorf("drive: request failed with status %d", resp.StatusCode)
	}

	return &envelope.Error
}
