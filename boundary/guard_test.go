package boundary

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/f3rmion/thresh/channel"
	"github.com/f3rmion/thresh/protocol"
	"github.com/f3rmion/thresh/session"
)

func TestGuardRecoversPanic(t *testing.T) {
	tb, err := NewTable(Config{})
	require.NoError(t, err)

	call := func() (err error) {
		defer tb.guard("test", &err)
		panic("secret 0xdeadbeef")
	}
	err = call()
	require.Equal(t, CodeInternal, CodeOf(err))
	require.NotContains(t, err.Error(), "deadbeef")
}

func TestCodeOf(t *testing.T) {
	for _, tc := range []struct {
		err  error
		want Code
	}{
		{nil, OK},
		{protocol.Failf(protocol.KindInvalidShare, 2, "bad"), CodeInvalidShare},
		{fmt.Errorf("wrapped: %w", protocol.Failf(protocol.KindCorruptState, 0, "x")), CodeCorruptState},
		{channel.ErrAuthenticationFailed, CodeAuthenticationFailed},
		{channel.ErrKeySize, CodeInvalidBuffer},
		{session.ErrDestroyed, CodeInvalidHandle},
		{fail(CodeNotDone, "x"), CodeNotDone},
		{errors.New("other"), CodeInternal},
	} {
		require.Equal(t, tc.want, CodeOf(tc.err), "%v", tc.err)
	}
	require.Equal(t, "invalid handle", CodeInvalidHandle.String())
	require.Equal(t, "code(99)", Code(99).String())
}
