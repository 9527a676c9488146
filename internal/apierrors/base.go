package apierrors

import (
	"net/http"
)

const (
	InternalServerErr = "INTERNAL_SERVER_ERROR"
	JSONDecodeErr     = "JSON_DECODE_ERROR"
	ValidationErr     = "VALIDATION_ERROR"
	ParamsErr         = "PARAMS_ERROR"
)

// ErrorMessage is the body of every error response.
type ErrorMessage struct {
	Error DetailedError `json:"error"`
}

type DetailedError struct {
	Code      string  `json:"code"`
	Message   string  `json:"message"`
	Status    int     `json:"status"`
	RequestID *string `json:"requestId,omitempty"`
}

func InternalServerErrorMessage() ErrorMessage {
	return ErrorMessage{Error: DetailedError{
		Code:    InternalServerErr,
		Message: "Internal server error",
		Status:  http.StatusInternalServerError,
	}}
}

func JSONDecodeErrorMessage() ErrorMessage {
	return ErrorMessage{Error: DetailedError{
		Code:    JSONDecodeErr,
		Message: "Can't decode JSON body",
		Status:  http.StatusBadRequest,
	}}
}

func ParamsErrorMessage(message string) ErrorMessage {
	return ErrorMessage{Error: DetailedError{
		Code:    ParamsErr,
		Message: message,
		Status:  http.StatusBadRequest,
	}}
}
