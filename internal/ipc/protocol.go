package ipc

import "github.com/berrythewa/bandman/internal/types"

// ResponseCode classifies the outcome of a request
type ResponseCode string

const (
	CodeOK         ResponseCode = "OK"
	CodeError      ResponseCode = "ERROR"
	CodeServerExit ResponseCode = "SERVER_EXIT"
)

func (c ResponseCode) valid() bool {
	return c == CodeOK || c == CodeError || c == CodeServerExit
}

// Request represents a command sent from the console to the server.
type Request struct {
	Command  string          `json:"command"`        // canonical command name, e.g. "add"
	Argument string          `json:"argument"`       // string argument, "" when absent
	Form     *types.BandForm `json:"form,omitempty"` // record form, nil when absent
}

// IsEmpty reports whether the request carries neither a command, an
// argument nor a form. Empty requests are never sent.
func (r *Request) IsEmpty() bool {
	return r == nil || (r.Command == "" && r.Argument == "" && r.Form == nil)
}

// Response represents a reply from the server to the console.
type Response struct {
	Code ResponseCode `json:"code"`
	Body string       `json:"body"` // text shown to the operator
}

// OK builds a successful response
func OK(body string) Response {
	return Response{Code: CodeOK, Body: body}
}

// Failure builds an error response
func Failure(body string) Response {
	return Response{Code: CodeError, Body: body}
}
