package backend

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"
)

const (
	maxMessageBody = 1 << 20
	maxImageBody   = 10 << 20
)

// isJSON reports whether the Content-Type header names a JSON payload.
func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

// extractMessage normalizes a JSON or plain text body into one message.
// JSON bodies yield their "message" field, then "error", then the raw text.
func extractMessage(contentType string, body []byte) string {
	text := strings.TrimSpace(string(body))
	if isJSON(contentType) {
		var payload map[string]any
		if err := json.Unmarshal(body, &payload); err == nil {
			for _, key := range []string{"message", "error"} {
				if s, ok := payload[key].(string); ok && s != "" {
					return s
				}
			}
		} else {
			// JSON content-type with a string literal body.
			var s string
			if err := json.Unmarshal(body, &s); err == nil && s != "" {
				return s
			}
		}
	}
	return text
}

func readBody(resp *http.Response, limit int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(resp.Body, limit))
}

// checkStatus converts a non-2xx response into *Error. The body is consumed
// only in the failure case.
func checkStatus(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := readBody(resp, maxMessageBody)
	msg := extractMessage(resp.Header.Get("Content-Type"), body)
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &Error{Op: op, StatusCode: resp.StatusCode, Message: msg}
}

// readMessage returns the normalized success message of resp.
func readMessage(op string, resp *http.Response) (string, error) {
	if err := checkStatus(op, resp); err != nil {
		return "", err
	}
	body, err := readBody(resp, maxMessageBody)
	if err != nil {
		return "", &Error{Op: op, StatusCode: resp.StatusCode, Message: "read body: " + err.Error()}
	}
	return extractMessage(resp.Header.Get("Content-Type"), body), nil
}

// decodeJSON decodes a successful JSON response into v.
func decodeJSON(op string, resp *http.Response, v any) error {
	if err := checkStatus(op, resp); err != nil {
		return err
	}
	body, err := readBody(resp, maxMessageBody)
	if err != nil {
		return &Error{Op: op, StatusCode: resp.StatusCode, Message: "read body: " + err.Error()}
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &Error{Op: op, StatusCode: resp.StatusCode, Message: "invalid response: " + extractMessage("", body)}
	}
	return nil
}

var (
	verifiedWords = []string{"verified", "success"}
	rejectedWords = []string{"not ", "invalid", "expired", "fail", "incorrect", "wrong"}
)

// parseVerified reads the verify-otp answer. A JSON "verified" flag wins;
// otherwise the normalized message decides: a negative phrase means false,
// a confirmation means true, anything else is an invalid response.
func parseVerified(op string, status int, contentType string, body []byte) (bool, error) {
	if isJSON(contentType) {
		var result struct {
			Verified *bool `json:"verified"`
		}
		if err := json.Unmarshal(body, &result); err == nil && result.Verified != nil {
			return *result.Verified, nil
		}
	}

	msg := strings.ToLower(extractMessage(contentType, body))
	for _, w := range rejectedWords {
		if strings.Contains(msg, w) {
			return false, nil
		}
	}
	for _, w := range verifiedWords {
		if strings.Contains(msg, w) {
			return true, nil
		}
	}
	return false, &Error{Op: op, StatusCode: status, Message: "invalid response: " + extractMessage(contentType, body)}
}
