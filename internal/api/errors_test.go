package api

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCodeUnknownCI(t *testing.T) {
	code, status := ErrorCode(NewUnknownCIError("no-such-ci"))
	assert.Equal(t, "unknown_ci", code)
	assert.Equal(t, 404, status)
}

func TestErrorCodeNameTaken(t *testing.T) {
	code, status := ErrorCode(&NameTakenError{Name: "echo-ci"})
	assert.Equal(t, "name_taken", code)
	assert.Equal(t, 409, status)
}

func TestErrorCodeWrappedTransport(t *testing.T) {
	wrapped := &TransportError{CI: "claude-code", Err: errors.New("dial refused")}
	code, status := ErrorCode(wrapped)
	assert.Equal(t, "transport_failure", code)
	assert.Equal(t, 502, status)
	assert.ErrorContains(t, wrapped, "dial refused")
}

func TestExitCodeMapping(t *testing.T) {
	assert.Equal(t, ExitUnknownCI, ExitCode(NewUnknownCIError("x")))
	assert.Equal(t, ExitTransportFailure, ExitCode(&TransportError{CI: "x", Err: errors.New("e")}))
	assert.Equal(t, ExitTimeout, ExitCode(&TimeoutError{Operation: "send"}))
	assert.Equal(t, ExitRegistryInconsist, ExitCode(&PersistFailedError{Path: "p", Err: errors.New("e")}))
	assert.Equal(t, ExitUsageError, ExitCode(errors.New("misc")))
	assert.Equal(t, ExitSuccess, ExitCode(nil))
}

func TestIsNotFoundHelper(t *testing.T) {
	assert.True(t, IsNotFound(NewToolNotFoundError("claude")))
	assert.False(t, IsNotFound(errors.New("other")))
}
