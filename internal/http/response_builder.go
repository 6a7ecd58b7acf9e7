// Package http exposes the transaction API over JSON.
//
// This file implements the Builder Pattern for the response envelope every
// endpoint returns: {"status": bool, "message": ..., ...}. Keys are written
// in the order they are added so identical responses are byte-identical.

package http

import (
	"bytes"
	"encoding/json"
	"net/http"
)

const (
	msgListed          = "Successfully retrieved transactions"
	msgRetrieved       = "Successfully retrieved transaction"
	msgCreated         = "Successfully created transaction"
	msgUpdated         = "Successfully updated transaction"
	msgDeleted         = "Successfully deleted transaction"
	msgNotFound        = "Transaction not found"
	msgInternalError   = "Internal server error"
	msgTooLarge        = "The request body is too large."
	msgMalformedBody   = "The request body could not be parsed."
	msgTooManyRequests = "Too Many Attempts."
	msgRouteNotFound   = "Not found."
	msgMethodNotAllow  = "Method not allowed."
	msgUnauthenticated = "Unauthenticated."
)

type envelopeField struct {
	name  string
	value any
}

// JSONResponseBuilder provides a fluent API for building envelope responses.
type JSONResponseBuilder struct {
	statusCode int
	fields     []envelopeField
	headers    map[string]string
}

// NewJSONResponse creates a builder with a 200 status and the given
// status flag as the first key.
func NewJSONResponse(ok bool) *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		fields:     []envelopeField{{name: "status", value: ok}},
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Message sets the message key. It is a string for most responses and a
// field-to-messages map for validation failures.
func (b *JSONResponseBuilder) Message(msg any) *JSONResponseBuilder {
	return b.Field("message", msg)
}

// Data sets the data key.
func (b *JSONResponseBuilder) Data(data any) *JSONResponseBuilder {
	return b.Field("data", data)
}

// Field appends an arbitrary top-level key, replacing an earlier value for
// the same key in place.
func (b *JSONResponseBuilder) Field(name string, value any) *JSONResponseBuilder {
	for i := range b.fields {
		if b.fields[i].name == name {
			b.fields[i].value = value
			return b
		}
	}
	b.fields = append(b.fields, envelopeField{name: name, value: value})
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Bytes renders the envelope.
func (b *JSONResponseBuilder) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range b.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(f.value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	body, err := b.Bytes()
	if err != nil {
		body = []byte(`{"status":false,"message":"` + msgInternalError + `"}`)
		b.statusCode = http.StatusInternalServerError
	}

	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(body)
}

// SuccessResponse creates a status:true envelope with a message.
func SuccessResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse(true).Status(statusCode).Message(message)
}

// ErrorResponse creates a status:false envelope with a message.
func ErrorResponse(statusCode int, message any) *JSONResponseBuilder {
	return NewJSONResponse(false).Status(statusCode).Message(message)
}

// NotFoundError is returned both for missing and for foreign transactions.
// It is sent with 200, as clients of this API expect.
func NotFoundError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusOK, msgNotFound)
}

// ValidationError reports per-field messages with 200.
func ValidationError(fields map[string][]string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusOK, fields)
}

// InternalServerError never leaks the underlying error.
func InternalServerError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, msgInternalError)
}

// RequestTooLargeError creates a 413 response.
func RequestTooLargeError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusRequestEntityTooLarge, msgTooLarge)
}

// BadRequestError creates a 400 response.
func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

// TooManyRequestsError creates a 429 response.
func TooManyRequestsError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusTooManyRequests, msgTooManyRequests)
}

// MethodNotAllowedError creates a 405 response.
func MethodNotAllowedError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusMethodNotAllowed, msgMethodNotAllow)
}
