package http

import "net/http"

// AppError is reported to the client as {code, message, field} with Status
// as the HTTP status. The wrapped cause stays server side.
type AppError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	cause   error
}

func NewAppError(status int, code, message string) *AppError {
	return &AppError{Status: status, Code: code, Message: message}
}

func NotFoundError(message string) *AppError {
	return NewAppError(http.StatusNotFound, "ERR_NOT_FOUND", message)
}

// OnField names the request field the error is about.
func (e *AppError) OnField(name string) *AppError {
	e.Field = name
	return e
}

func (e *AppError) Wrap(cause error) *AppError {
	e.cause = cause
	return e
}

func (e *AppError) Error() string {
	msg := e.Code + ": " + e.Message
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *AppError) Unwrap() error { return e.cause }
