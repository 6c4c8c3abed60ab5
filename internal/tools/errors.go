package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrPermissionDenied is returned when a non-privileged caller requests
// a privileged tool.
var ErrPermissionDenied = errors.New("permission denied")

// ErrToolUnavailable is returned when a tool call targets a tool that
// is not present in the registry. The call is answered with a structured
// error result; it is never retried.
type ErrToolUnavailable struct {
	ToolName string
}

// Error implements the error interface.
func (e *ErrToolUnavailable) Error() string {
	return fmt.Sprintf("tool %q is not available in this context", e.ToolName)
}

// ErrorResult renders an execution failure as the structured tool result
// handed back to the model, e.g. {"error":"permission denied"}.
func ErrorResult(err error) string {
	msg := err.Error()
	var unavailable *ErrToolUnavailable
	switch {
	case errors.Is(err, ErrPermissionDenied):
		msg = ErrPermissionDenied.Error()
	case errors.As(err, &unavailable):
		msg = unavailable.Error()
	default:
		// Strip the "toolName: " prefix added by Execute.
		if i := strings.Index(msg, ": "); i > 0 && !strings.Contains(msg[:i], " ") {
			msg = msg[i+2:]
		}
	}
	b, _ := json.Marshal(map[string]string{"error": msg})
	return string(b)
}
