// Package protocol carries storage-provider messages between peers.
//
// A message is a type name plus JSON parameters. A handler answers with a
// positional result tuple or a coded error. Handlers register on a
// Router; Mux dispatches locally and Server exposes a Mux over HTTP.
package protocol

import (
	"context"
	"encoding/json"
)

// Message types of the storage-provider protocol.
const (
	MsgStoreChunkRequest          = "STORE_CHUNK_REQUEST"
	MsgStoreChunkSegments         = "STORE_CHUNK_SEGMENTS"
	MsgStoreChunkData             = "STORE_CHUNK_DATA"
	MsgStoreChunkSignatureRequest = "STORE_CHUNK_SIGNATURE_REQUEST"
	MsgGetChunk                   = "GET_CHUNK"
	MsgGetDecryptedChunk          = "GET_DECRYPTED_CHUNK"
)

// HandlerFunc answers one message. The returned tuple is sent to the
// peer as a JSON array.
type HandlerFunc func(ctx context.Context, params json.RawMessage) ([]any, error)

// Router registers message handlers.
type Router interface {
	Handle(msgType string, h HandlerFunc)
}

// Caller sends a message to one peer and decodes the result tuple
// positionally into results (extra tuple elements are ignored).
type Caller interface {
	Call(ctx context.Context, msgType string, params any, results ...any) error
}

// Envelope is the wire form of a reply.
type Envelope struct {
	Result []json.RawMessage `json:"result,omitempty"`
	Error  *Error            `json:"error,omitempty"`
}

// decodeTuple unmarshals tuple elements into results in order.
func decodeTuple(tuple []json.RawMessage, results []any) error {
	if len(tuple) < len(results) {
		return NewError(CodeBadResponse, "short result tuple")
	}
	for i, r := range results {
		if r == nil {
			continue
		}
		if err := json.Unmarshal(tuple[i], r); err != nil {
			return NewError(CodeBadResponse, "result "+itoa(i)+": "+err.Error())
		}
	}
	return nil
}

func itoa(i int) string {
	b, _ := json.Marshal(i)
	return string(b)
}
