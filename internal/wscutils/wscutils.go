// Package wscutils provides the standard JSON response envelope and
// struct-tag validation helpers httpapi's handlers use, adapted from
// alya's wscutils package. Request bodies bind directly to their target
// struct (Submission, BatchSubmission) rather than through a "data"-field
// envelope, matching the original service's plain-JSON-body contract, so
// alya's envelope-based Request/BindJSON are dropped along with the
// auth-specific RequestUser helper and the Optional[T] tri-state JSON
// type: this service has no request user concept and no API field needs
// to distinguish "absent" from "present but null" (see DESIGN.md).
package wscutils

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

const (
	SuccessStatus = "success"
	ErrorStatus   = "error"
)

// Response is the standard envelope every handler replies with.
type Response struct {
	Status   string         `json:"status"`
	Data     any            `json:"data"`
	Messages []ErrorMessage `json:"messages,omitempty"`
}

// ErrorMessage describes one validation or processing failure.
type ErrorMessage struct {
	MsgID   int      `json:"msgid"`
	ErrCode string   `json:"errcode"`
	Field   string   `json:"field,omitempty"`
	Vals    []string `json:"vals,omitempty"`
}

// WscValidate runs struct-tag validation over data and returns one
// ErrorMessage per failed field. getVals lets the caller attach
// request-specific values (e.g. the rejected value itself) to each message.
func WscValidate[T any](data T, getVals func(err validator.FieldError) []string) []ErrorMessage {
	var out []ErrorMessage

	if err := validatorInstance.Struct(data); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			for _, fieldErr := range validationErrs {
				msgID, ok := validationTagToMsgID[fieldErr.Tag()]
				if !ok {
					msgID = DefaultMsgID
				}
				errCode, ok := validationTagToErrCode[fieldErr.Tag()]
				if !ok {
					errCode = ErrcodeInvalidRequest
				}
				out = append(out, BuildErrorMessage(msgID, errCode, fieldErr.Field(), getVals(fieldErr)...))
			}
		}
	}
	return out
}

var validatorInstance = validator.New()

// BuildErrorMessage constructs one ErrorMessage.
func BuildErrorMessage(msgID int, errCode string, field string, vals ...string) ErrorMessage {
	return ErrorMessage{MsgID: msgID, ErrCode: errCode, Field: field, Vals: vals}
}

// NewResponse builds a Response from its parts.
func NewResponse(status string, data any, messages []ErrorMessage) *Response {
	return &Response{Status: status, Data: data, Messages: messages}
}

// NewErrorResponse builds a single-message error Response.
func NewErrorResponse(msgID int, errCode string) *Response {
	return NewResponse(ErrorStatus, nil, []ErrorMessage{BuildErrorMessage(msgID, errCode, "")})
}

// NewSuccessResponse builds a Response carrying data and no error messages.
func NewSuccessResponse(data any) *Response {
	return NewResponse(SuccessStatus, data, nil)
}

var validationTagToMsgID = map[string]int{
	"required": ErrMsgIDMissing,
	"min":      ErrMsgIDMissing,
}

var validationTagToErrCode = map[string]string{
	"required": ErrcodeMissing,
	"min":      ErrcodeMissing,
}
