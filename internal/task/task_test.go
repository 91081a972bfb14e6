package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGo(t *testing.T) {
	ctx := context.Background()

	v, err := Wait(ctx, Go(ctx, func(ctx context.Context) (string, error) {
		return "Macintosh HD", nil
	}))
	assert.NoError(t, err)
	assert.Equal(t, "Macintosh HD", v)

	boom := errors.New("boom")
	_, err = Wait(ctx, Go(ctx, func(ctx context.Context) (int, error) {
		return 0, boom
	}))
	assert.ErrorIs(t, err, boom)
}

func TestGo_Panic(t *testing.T) {
	ctx := context.Background()

	_, err := Wait(ctx, Go(ctx, func(ctx context.Context) (int, error) {
		panic("unexpected")
	}))

	assert.ErrorContains(t, err, "unexpected")
}

func TestGo_SingleOutcome(t *testing.T) {
	results := Go(context.Background(), func(ctx context.Context) (bool, error) { return true, nil })

	first := <-results
	assert.True(t, first.Value)
	_, open := <-results
	assert.False(t, open, "channel is closed after the outcome")
}

func TestWait_ContextEnds(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	block := make(chan struct{})
	defer close(block)

	_, err := Wait(ctx, Go(context.Background(), func(ctx context.Context) (int, error) {
		<-block
		return 1, nil
	}))

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
