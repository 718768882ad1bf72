package output

import (
	"encoding/json"
	"errors"
	"io"

	spiralerr "github.com/spiralmem/spiralmem/internal/errors"
)

// Envelope is the uniform JSON response shape. JSON-mode commands always
// exit 0; failures are reported inside the envelope.
type Envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// ErrorBody is the structured error surface for JSON consumers.
type ErrorBody struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
}

// JSONWriter emits envelopes to one stream.
type JSONWriter struct {
	out io.Writer
}

// NewJSON creates a JSON writer.
func NewJSON(out io.Writer) *JSONWriter {
	return &JSONWriter{out: out}
}

// OK emits a success envelope wrapping data.
func (w *JSONWriter) OK(data any) error {
	return w.emit(Envelope{Success: true, Data: data})
}

// Fail emits a failure envelope carrying the structured error.
func (w *JSONWriter) Fail(err error) error {
	body := &ErrorBody{
		Code:    spiralerr.GetCode(err),
		Message: err.Error(),
	}
	if body.Code == "" {
		body.Code = spiralerr.ErrCodeInternal
	}
	var se *spiralerr.Error
	if errors.As(err, &se) {
		body.Message = se.Message
		body.Details = se.Details
		body.Suggestion = se.Suggestion
	}
	return w.emit(Envelope{Success: false, Error: body})
}

func (w *JSONWriter) emit(env Envelope) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(env)
}
