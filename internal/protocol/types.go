// Package protocol defines the wire format exchanged between the main
// process and an extension host: newline-delimited JSON frames, each a
// complete call or reply, multiplexed over a single duplex channel.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Kind tags a frame as one of the known variants.
type Kind string

const (
	// KindCall is an outbound invocation of a method on a remote proxy.
	KindCall Kind = "call"
	// KindReply carries the result (or error) for a previously sent call.
	KindReply Kind = "reply"
)

// Error codes carried inside reply frames.
const (
	CodeUnknownIdentifier = "unknown-identifier"
	CodeMethodFailure     = "method-failure"
)

// Frame is one unit of the wire protocol. The Kind field selects which of
// the remaining fields are meaningful; Decode enforces the per-kind shape.
type Frame struct {
	Kind   Kind              `json:"kind"`
	ID     string            `json:"id"`
	Proxy  string            `json:"proxy,omitempty"`
	Method string            `json:"method,omitempty"`
	Args   []json.RawMessage `json:"args,omitempty"`
	Result json.RawMessage   `json:"result,omitempty"`
	Error  *RemoteError      `json:"error,omitempty"`
}

// RemoteError is the serializable error description returned in place of
// a result. It never wraps the originating error value: only the code and
// rendered message cross the channel.
type RemoteError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error (%s): %s", e.Code, e.Message)
}

// NewCall builds a call frame addressed to method on the proxy identifier.
func NewCall(id, proxy, method string, args []json.RawMessage) *Frame {
	return &Frame{
		Kind:   KindCall,
		ID:     id,
		Proxy:  proxy,
		Method: method,
		Args:   args,
	}
}

// NewReply builds a successful reply frame for correlation id.
func NewReply(id string, result json.RawMessage) *Frame {
	return &Frame{
		Kind:   KindReply,
		ID:     id,
		Result: result,
	}
}

// NewErrorReply builds a failed reply frame for correlation id.
func NewErrorReply(id, code, message string) *Frame {
	return &Frame{
		Kind:  KindReply,
		ID:    id,
		Error: &RemoteError{Code: code, Message: message},
	}
}

// IsError reports whether a reply frame carries an error branch.
func (f *Frame) IsError() bool {
	return f.Error != nil
}
