package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorString(t *testing.T) {
	err := E(CodeAuth, "broker.Refresh", "token endpoint returned 401", nil)
	assert.Equal(t, "broker.Refresh: AUTH: token endpoint returned 401", err.Error())

	bare := E(CodeTransport, "", "", errors.New("connection refused"))
	assert.Equal(t, "TRANSPORT: connection refused", bare.Error())
}

func TestWrapPreservesExistingCode(t *testing.T) {
	inner := E(CodeGraphQL, "", "object not found", nil)
	wrapped := Wrap(CodeInternal, "tools.GetDocument", inner)

	code, ok := CodeFrom(wrapped)
	require.True(t, ok)
	assert.Equal(t, CodeGraphQL, code)
	assert.Equal(t, "tools.GetDocument", wrapped.Op)
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(CodeInternal, "op", nil))
}

func TestCodeFromContextErrors(t *testing.T) {
	code, ok := CodeFrom(fmt.Errorf("request: %w", context.DeadlineExceeded))
	require.True(t, ok)
	assert.Equal(t, CodeDeadlineExceeded, code)

	_, ok = CodeFrom(errors.New("plain"))
	assert.False(t, ok)
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := E(CodeTransport, "gateway.Execute", "", cause)
	assert.ErrorIs(t, err, cause)
}
