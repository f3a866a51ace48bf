package response

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

type Response struct {
	ResponseError `json:"error,omitzero"`
}

type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

//Error Codes
type ErrCode string

var (
	FAILED_REQUEST    ErrCode = "REQUEST_FAILED"
	BAD_REQUEST       ErrCode = "FAILED_TO_DECODE"
	VALIDATION_FAILED ErrCode = "VALIDATION_FAILED"
	NOT_FOUND         ErrCode = "NOT_FOUND"
	LOCKED            ErrCode = "LOCKED"
	CONFLICT          ErrCode = "CONFLICT"
	BOOKING_DENIED    ErrCode = "BOOKING_DENIED"
	TERMINAL_STATE    ErrCode = "TERMINAL_STATE"
)

var (
	ErrBadRequest       = errors.New("bad request")
	ErrValidation       = errors.New("validation failed")
	ErrNotFound         = errors.New("resource not found")
	ErrLocked           = errors.New("resource is locked")
	ErrDenied           = errors.New("booking denied by conflict resolution")
	ErrTxConflict       = errors.New("transaction conflict")
	ErrTerminalState    = errors.New("booking is in a terminal state")
	ErrResourceInactive = errors.New("resource is inactive")
)

func Error(code, msg string) Response {
	return Response{
		ResponseError: ResponseError{
			Code:    code,
			Message: msg,
		},
	}
}

func ValidationError(errs validator.ValidationErrors) Response {
	var errMsg []string

	for _, err := range errs {
		switch err.ActualTag() {
		case "required":
			errMsg = append(errMsg, fmt.Sprintf("Field '%s' is required", err.Field()))
		case "min":
			errMsg = append(errMsg, fmt.Sprintf("Field '%s' is below the minimum", err.Field()))
		case "gte":
			errMsg = append(errMsg, fmt.Sprintf("Field '%s' is below the minimum", err.Field()))
		default:
			errMsg = append(errMsg, fmt.Sprintf("Field '%s' is invalid", err.Field()))
		}
	}

	return Response{
		ResponseError: ResponseError{
			Code:    string(VALIDATION_FAILED),
			Message: strings.Join(errMsg, ", "),
		},
	}
}
