// Package mcp implements the Model Context Protocol server for spiralmem.
// AI clients connect over stdio and query stored video memories through
// three tools: search_memories, add_video, and get_stats.
package mcp

import (
	"errors"
	"fmt"

	spiralerr "github.com/spiralmem/spiralmem/internal/errors"
)

// JSON-RPC error codes, standard plus spiralmem extensions.
const (
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603

	// ErrCodeNotFound indicates a memory, space, or resource does not exist.
	ErrCodeNotFound = -32001

	// ErrCodeEmbedderUnavailable indicates semantic search cannot run
	// because the embedding backend is down.
	ErrCodeEmbedderUnavailable = -32002

	// ErrCodePipelineFailed indicates video ingestion failed at a fatal step.
	ErrCodePipelineFailed = -32003
)

// ProtocolError is an MCP protocol error with a JSON-RPC code.
type ProtocolError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// NewInvalidParamsError creates an invalid-params protocol error.
func NewInvalidParamsError(msg string) *ProtocolError {
	return &ProtocolError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewMethodNotFoundError creates a method-not-found protocol error.
func NewMethodNotFoundError(name string) *ProtocolError {
	return &ProtocolError{Code: ErrCodeMethodNotFound, Message: "unknown tool: " + name}
}

// MapError converts internal errors to protocol errors so clients see a
// stable code space instead of raw Go error strings.
func MapError(err error) *ProtocolError {
	if err == nil {
		return nil
	}

	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe
	}

	var se *spiralerr.Error
	if errors.As(err, &se) {
		return &ProtocolError{Code: codeFor(se.Code), Message: se.Message}
	}

	return &ProtocolError{Code: ErrCodeInternalError, Message: err.Error()}
}

func codeFor(code string) int {
	switch code {
	case spiralerr.ErrCodeNotFound, spiralerr.ErrCodeFileNotFound:
		return ErrCodeNotFound
	case spiralerr.ErrCodeInvalidInput, spiralerr.ErrCodeInvalidURL, spiralerr.ErrCodeInvalidSpace, spiralerr.ErrCodeUnsupportedFile:
		return ErrCodeInvalidParams
	case spiralerr.ErrCodeEmbeddingFailed:
		return ErrCodeEmbedderUnavailable
	case spiralerr.ErrCodeTranscription, spiralerr.ErrCodeNoAudioStream, spiralerr.ErrCodeMediaTool, spiralerr.ErrCodeDownloadFailed:
		return ErrCodePipelineFailed
	default:
		return ErrCodeInternalError
	}
}
