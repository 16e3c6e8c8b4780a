package fixture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-openapi/strfmt"
	pkgerrors "github.com/pkg/errors"

	one "github.com/privaz/one-go"
)

// Exception kinds that are not client error kinds.
const (
	kindFault     = "fault"
	kindTransport = "transport"
)

// Context causes of a recorded exception.
const (
	contextDeadline = "deadline_exceeded"
	contextCanceled = "canceled"
)

// payloadDouble tags an outcome whose payload was a floating-point number.
const payloadDouble = "double"

// record is the content of one fixture file. Exactly one of Outcome and
// Exception is set.
type record struct {
	Method      string          `json:"method"`
	RecordedAt  strfmt.DateTime `json:"recorded_at"`
	Outcome     *one.Envelope   `json:"outcome,omitempty"`
	PayloadType string          `json:"payload_type,omitempty"`
	Exception   *exception      `json:"exception,omitempty"`
}

// exception describes an error raised by the transport while recording.
type exception struct {
	Kind      string   `json:"kind"`
	Code      int      `json:"code,omitempty"`
	Message   string   `json:"message"`
	Context   string   `json:"context,omitempty"`
	Traceback []string `json:"traceback,omitempty"`
}

func payloadType(v any) string {
	switch v.(type) {
	case float64, float32:
		return payloadDouble
	default:
		return ""
	}
}

type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

func captureException(err error) exception {
	exc := exception{Kind: kindTransport, Message: err.Error()}

	var fault *one.Fault
	var clientErr *one.Error
	switch {
	case errors.As(err, &fault):
		exc.Kind = kindFault
		exc.Code = fault.Code
		exc.Message = fault.Message
	case errors.As(err, &clientErr):
		exc.Kind = string(clientErr.Kind)
		exc.Code = clientErr.Code
		exc.Message = clientErr.Message
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		exc.Context = contextDeadline
	case errors.Is(err, context.Canceled):
		exc.Context = contextCanceled
	}

	var st stackTracer
	if errors.As(err, &st) {
		for _, f := range st.StackTrace() {
			exc.Traceback = append(exc.Traceback, fmt.Sprintf("%n (%v)", f, f))
		}
	}
	return exc
}

// reconstruct rebuilds an error of the recorded kind.
func reconstruct(exc exception) error {
	cause := contextCause(exc.Context)

	var err error
	switch exc.Kind {
	case kindFault:
		err = &one.Fault{Code: exc.Code, Message: exc.Message}
	case kindTransport:
		err = transportError(exc.Message, cause)
	default:
		kind, ok := one.ParseKind(exc.Kind)
		if !ok {
			err = transportError(exc.Message, cause)
			break
		}
		err = &one.Error{Kind: kind, Code: exc.Code, Message: exc.Message, Cause: cause}
	}
	return &ReplayedError{Err: err, Traceback: exc.Traceback}
}

func contextCause(name string) error {
	switch name {
	case contextDeadline:
		return context.DeadlineExceeded
	case contextCanceled:
		return context.Canceled
	default:
		return nil
	}
}

func transportError(msg string, cause error) error {
	if cause == nil {
		return errors.New(msg)
	}
	return &causedError{msg: msg, cause: cause}
}

// causedError keeps the recorded message and unwraps to a context error.
type causedError struct {
	msg   string
	cause error
}

func (e *causedError) Error() string {
	return e.msg
}

func (e *causedError) Unwrap() error {
	return e.cause
}

// ReplayedError is an error read back from a fixture. It unwraps to an error
// of the recorded kind and prints the recorded traceback with %+v.
type ReplayedError struct {
	Err       error
	Traceback []string
}

func (e *ReplayedError) Error() string {
	return e.Err.Error()
}

func (e *ReplayedError) Unwrap() error {
	return e.Err
}

// Format implements fmt.Formatter.
func (e *ReplayedError) Format(s fmt.State, verb rune) {
	_, _ = io.WriteString(s, e.Error())
	if verb == 'v' && s.Flag('+') {
		for _, line := range e.Traceback {
			_, _ = io.WriteString(s, "\n\t"+line)
		}
	}
}

// writeRecord stores rec at path through a temporary file in the same
// directory, so a crash never leaves a truncated fixture behind.
func writeRecord(path string, rec *record) (err error) {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".fixture-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func readRecord(path string) (*record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	dec := json.NewDecoder(f)
	dec.UseNumber()
	var rec record
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	if rec.Outcome != nil {
		rec.Outcome.Payload = restorePayload(rec.Outcome.Payload, rec.PayloadType)
	}
	return &rec, nil
}

func restorePayload(v any, typ string) any {
	if n, ok := v.(json.Number); ok && typ == payloadDouble {
		f, _ := n.Float64()
		return f
	}
	return fromJSON(v)
}

// fromJSON restores integer payloads as int64, the type the XML-RPC decoder
// produces, so replayed results compare equal to recorded ones.
func fromJSON(v any) any {
	switch tv := v.(type) {
	case json.Number:
		if i, err := tv.Int64(); err == nil {
			return i
		}
		f, _ := tv.Float64()
		return f
	case []any:
		for i, item := range tv {
			tv[i] = fromJSON(item)
		}
		return tv
	case map[string]any:
		for k, item := range tv {
			tv[k] = fromJSON(item)
		}
		return tv
	default:
		return v
	}
}
