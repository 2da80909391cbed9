package providers

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
)

// VendorError is returned when the upstream answers with a status >= 400.
type VendorError struct {
	StatusCode int
	Message    string
}

func (e *VendorError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, e.Message)
}

// Detail is the client-facing error text.
func (e *VendorError) Detail() string {
	return "External: " + e.Message
}

// ConnectionError is returned when the upstream could not be reached or its
// response could not be read.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return "upstream connection error: " + e.Err.Error()
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ConnectionErrorDetail is the client-facing text for connection failures.
const ConnectionErrorDetail = "Server Connection Error"

// vendorErrorMessage extracts error.message from an upstream error body,
// falling back to the raw error value and then to the body itself.
func vendorErrorMessage(body []byte) string {
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := sonic.Unmarshal(body, &envelope); err != nil || len(envelope.Error) == 0 {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			return "empty response"
		}
		return msg
	}

	var detailed struct {
		Message *string `json:"message"`
	}
	if err := sonic.Unmarshal(envelope.Error, &detailed); err == nil && detailed.Message != nil {
		return *detailed.Message
	}

	var plain string
	if err := sonic.Unmarshal(envelope.Error, &plain); err == nil {
		return plain
	}
	return string(envelope.Error)
}
