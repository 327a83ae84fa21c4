package runnotify

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	jsoniter "github.com/json-iterator/go"
	pkgerrors "github.com/pkg/errors"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// RenderValue returns the display form of v, or RenderFailedPlaceholder if that
// fails. It never panics.
func RenderValue(v any, format ValueFormat) string {
	s, err := renderValue(v, format)
	if err != nil {
		return RenderFailedPlaceholder
	}
	return s
}

func renderValue(v any, format ValueFormat) (s string, err error) {
	defer func() {
		if r := recover(); r != nil {
			s, err = "", fmt.Errorf("render panicked: %v", r)
		}
	}()

	if format == ValueFormatJSON {
		b, err := jsonAPI.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	// fmt swallows panics from these methods into the output, so call them directly.
	switch x := v.(type) {
	case error:
		return x.Error(), nil
	case fmt.Stringer:
		return x.String(), nil
	default:
		return fmt.Sprintf("%v", v), nil
	}
}

// describeFailure renders the error (or panic value) as "<type>: <message>".
func describeFailure(v any) string {
	msg, err := renderValue(v, ValueFormatText)
	if err != nil {
		msg = RenderFailedPlaceholder
	}
	return fmt.Sprintf("%T: %s", v, msg)
}

// stackTracer is implemented by errors created with github.com/pkg/errors.
type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

// traceOf returns the most precise stack trace available for err: the innermost
// pkg/errors stack in the chain, or fallback.
func traceOf(err error, fallback []byte) string {
	var deepest stackTracer
	for e := err; e != nil; e = errors.Unwrap(e) {
		if st, ok := e.(stackTracer); ok {
			deepest = st
		}
	}
	if deepest != nil {
		return strings.TrimLeft(fmt.Sprintf("%+v", deepest.StackTrace()), "\n")
	}
	return string(fallback)
}

// captureStack records the calling goroutine's stack.
func captureStack() []byte {
	return debug.Stack()
}
