package dto

// Response is the envelope of every JSON response
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// OK wraps data in a success envelope
func OK(data any) Response {
	return Response{Success: true, Data: data}
}

// Fail wraps a client facing message in an error envelope
func Fail(message string) Response {
	return Response{Success: false, Error: message}
}
