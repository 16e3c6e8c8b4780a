package one

import (
	"fmt"
	"strings"

	"github.com/privaz/one-go/entity"
)

// Envelope is the response of every API method: a success flag, the
// payload and an error code.
//
// On success the payload is a scalar (id, boolean, string) or an XML
// document. On failure it is the server's error message and Code selects the
// error kind.
type Envelope struct {
	Success bool `json:"success"`
	Payload any  `json:"payload"`
	Code    int  `json:"code"`
}

// ParseEnvelope converts the raw XML-RPC array into an Envelope. Elements
// past the third are ignored.
func ParseEnvelope(raw []any) (Envelope, error) {
	if len(raw) < 3 {
		return Envelope{}, newError(KindGeneric,
			fmt.Sprintf("malformed response: expected 3 values, got %d", len(raw)), 0, nil)
	}
	ok, isBool := raw[0].(bool)
	if !isBool {
		return Envelope{}, newError(KindGeneric,
			fmt.Sprintf("malformed response: success flag is %T", raw[0]), 0, nil)
	}
	code, err := toInt(raw[2])
	if err != nil {
		return Envelope{}, newError(KindGeneric, "malformed response: error code", 0, err)
	}
	return Envelope{Success: ok, Payload: raw[1], Code: code}, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

// Interpret turns an envelope into a result or an error.
//
// A successful payload that is a string starting with '<' is bound into an
// [entity.Node]; any other payload is returned unchanged. A failed envelope
// yields an *[Error] whose kind is selected by the code and whose message is
// the payload.
func Interpret(env Envelope) (any, error) {
	if !env.Success {
		message, ok := env.Payload.(string)
		if !ok {
			message = fmt.Sprint(env.Payload)
		}
		return nil, newError(kindForCode(env.Code), message, env.Code, nil)
	}

	s, ok := env.Payload.(string)
	if !ok || !strings.HasPrefix(s, "<") {
		return env.Payload, nil
	}
	node, err := entity.Bind([]byte(s))
	if err != nil {
		return nil, newError(KindGeneric, "cannot bind response document", 0, err)
	}
	return node, nil
}
