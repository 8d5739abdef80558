// Package errs provides the error types the node's web handlers return.
package errs

import (
	"errors"
	"net/http"
)

// Response is the body sent to the client when a request fails.
type Response struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Trusted is an error whose message is safe to show to the client, paired
// with the status code it is reported with.
type Trusted struct {
	Err    error
	Status int
}

// NewTrusted pairs the error with a status code.
func NewTrusted(err error, status int) error {
	return &Trusted{Err: err, Status: status}
}

// BadRequest reports the error to the client with a 400.
func BadRequest(err error) error {
	return NewTrusted(err, http.StatusBadRequest)
}

// NotFound reports the error to the client with a 404.
func NotFound(err error) error {
	return NewTrusted(err, http.StatusNotFound)
}

// Error implements the error interface.
func (te *Trusted) Error() string {
	return te.Err.Error()
}

// Unwrap gives errors.Is access to the chain's sentinel errors.
func (te *Trusted) Unwrap() error {
	return te.Err
}

// IsTrusted reports whether a Trusted error is in the chain.
func IsTrusted(err error) bool {
	var te *Trusted
	return errors.As(err, &te)
}

// GetTrusted returns the Trusted error in the chain or nil.
func GetTrusted(err error) *Trusted {
	var te *Trusted
	if !errors.As(err, &te) {
		return nil
	}
	return te
}
