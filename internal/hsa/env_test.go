package hsa_test

import (
	"sync"
	"testing"

	"github.com/fxnlabs/fuzzyhsa/internal/hsa"
	"github.com/fxnlabs/fuzzyhsa/internal/hsa/hsasim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countCalls(calls []string, op string) int {
	n := 0
	for _, c := range calls {
		if c == op {
			n++
		}
	}
	return n
}

func TestEnv_InitAndShutDownOnce(t *testing.T) {
	rt := hsasim.New()
	env := hsa.NewEnv(rt, nil)

	require.NoError(t, env.Acquire())
	require.NoError(t, env.Acquire())
	assert.Equal(t, 2, env.Refs())

	require.NoError(t, env.Release())
	assert.Equal(t, 0, countCalls(rt.Calls(), "hsa_shut_down"))
	require.NoError(t, env.Release())

	assert.Equal(t, 1, countCalls(rt.Calls(), "hsa_init"))
	assert.Equal(t, 1, countCalls(rt.Calls(), "hsa_shut_down"))
	assert.Zero(t, rt.Outstanding().Refs)

	assert.ErrorIs(t, env.Release(), hsa.ErrEnvReleased)
}

func TestEnv_InitFailure(t *testing.T) {
	rt := hsasim.New(hsasim.FailOn("hsa_init", hsa.StatusErrorOutOfResources))
	env := hsa.NewEnv(rt, nil)

	err := env.Acquire()
	require.Error(t, err)
	assert.True(t, hsa.IsFatal(err))
	assert.Equal(t, hsa.StatusErrorOutOfResources, hsa.StatusOf(err))
	assert.Zero(t, env.Refs())
}

func TestEnv_Concurrent(t *testing.T) {
	rt := hsasim.New()
	env := hsa.NewEnv(rt, nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, env.Acquire())
			assert.NoError(t, env.Release())
		}()
	}
	wg.Wait()

	calls := rt.Calls()
	assert.Equal(t, countCalls(calls, "hsa_init"), countCalls(calls, "hsa_shut_down"))
	assert.Zero(t, rt.Outstanding().Refs)
}
