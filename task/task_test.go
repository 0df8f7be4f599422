package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGo_DeliversOnceThenCloses(t *testing.T) {
	ch := Go(context.Background(), func(context.Context) (int, error) {
		return 42, nil
	})

	res, ok := <-ch
	require.True(t, ok)
	assert.Equal(t, 42, res.Value)
	require.NoError(t, res.Err)

	_, ok = <-ch
	assert.False(t, ok, "channel should be closed after one result")
}

func TestGo_Error(t *testing.T) {
	boom := errors.New("boom")
	res := <-Go(context.Background(), func(context.Context) (string, error) {
		return "", boom
	})
	require.ErrorIs(t, res.Err, boom)
}

func TestGo_RecoversPanic(t *testing.T) {
	res := <-Go(context.Background(), func(context.Context) ([]int, error) {
		panic("kaboom")
	})
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "kaboom")
	assert.Nil(t, res.Value)
}

func TestGo_DoesNotBlockWhenAbandoned(t *testing.T) {
	done := make(chan struct{})
	_ = Go(context.Background(), func(context.Context) (int, error) {
		defer close(done)
		return 1, nil
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task did not complete without a reader")
	}
}

func TestGo_PassesContext(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "v")
	res := <-Go(ctx, func(ctx context.Context) (any, error) {
		return ctx.Value(key{}), nil
	})
	assert.Equal(t, "v", res.Value)
}

func TestWait(t *testing.T) {
	v, err := Wait(context.Background(), Go(context.Background(), func(context.Context) (int, error) {
		return 7, nil
	}))
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	never := make(chan Result[int])
	_, err = Wait(ctx, never)
	require.ErrorIs(t, err, context.Canceled)
}
