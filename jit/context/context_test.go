package context_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mna/corejit/jit/config"
	jitcontext "github.com/mna/corejit/jit/context"
)

func TestNewBuildsCacheFromOptions(t *testing.T) {
	ctx := jitcontext.New(config.Default())
	require.NotNil(t, ctx.Cache)
	require.NoError(t, ctx.Cache.FlushExec(0, 0))
}

func TestLockUnlockRoundTrips(t *testing.T) {
	ctx := jitcontext.New(config.Default())
	ctx.Lock()
	ctx.Unlock()

	acquired := make(chan struct{})
	go func() {
		ctx.Lock()
		defer ctx.Unlock()
		close(acquired)
	}()
	<-acquired
}
