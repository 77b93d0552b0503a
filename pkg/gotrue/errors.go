package gotrue

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// apiError is GoTrue's error payload. Newer deployments carry a symbolic
// error_code; older ones only a message. The human-readable text is kept
// intact because the flow layer classifies errors by it.
type apiError struct {
	Status int `json:"-"`

	Code      int    `json:"code"`
	ErrorCode string `json:"error_code"`
	Msg       string `json:"msg"`
	Message   string `json:"message"`
	ErrorDesc string `json:"error_description"`
}

func (e *apiError) Error() string {
	text := e.Msg
	if text == "" {
		text = e.Message
	}
	if text == "" {
		text = e.ErrorDesc
	}

	switch {
	case e.ErrorCode != "" && text != "":
		return fmt.Sprintf("gotrue: %d %s: %s", e.Status, e.ErrorCode, text)
	case e.ErrorCode != "":
		return fmt.Sprintf("gotrue: %d %s", e.Status, e.ErrorCode)
	default:
		return fmt.Sprintf("gotrue: %d: %s", e.Status, text)
	}
}

func decodeAPIError(status int, body []byte) error {
	var ae apiError
	if err := json.Unmarshal(body, &ae); err == nil &&
		(ae.Msg != "" || ae.Message != "" || ae.ErrorDesc != "" || ae.ErrorCode != "") {
		ae.Status = status
		return &ae
	}
	return fmt.Errorf("gotrue: unexpected status %d: %s", status, bytes.TrimSpace(body))
}

// pgError is PostgREST's error payload. Unlike the auth API its code field
// is a string holding the PostgreSQL SQLSTATE, e.g. "23505" for a unique
// violation.
type pgError struct {
	Status int `json:"-"`

	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *pgError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("postgrest: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("postgrest: %d: %s", e.Status, e.Message)
}

func decodePGError(status int, body []byte) error {
	var pe pgError
	if err := json.Unmarshal(body, &pe); err == nil && (pe.Code != "" || pe.Message != "") {
		pe.Status = status
		return &pe
	}
	return fmt.Errorf("postgrest: unexpected status %d: %s", status, bytes.TrimSpace(body))
}
