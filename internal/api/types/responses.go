package types

// APIResponse is the envelope every endpoint writes. Success mirrors the
// HTTP status so clients can branch without parsing it.
type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

// APIError carries the stable service error code alongside the message.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
