package shutdown

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestController_RunCallback_Succeeds(t *testing.T) {
	c := New(nil, nil)
	var ran int32
	c.runCallback(context.Background(), Callback{
		Name: "ok",
		Fn: func(ctx context.Context) error {
			atomic.StoreInt32(&ran, 1)
			return nil
		},
	})
	assert.Equal(t, int32(1), atomic.LoadInt32(&ran))
}

func TestController_RunCallback_ToleratesError(t *testing.T) {
	c := New(nil, nil)
	assert.NotPanics(t, func() {
		c.runCallback(context.Background(), Callback{
			Name: "erroring",
			Fn:   func(ctx context.Context) error { return errors.New("boom") },
		})
	})
}

func TestController_RunCallback_ToleratesPanic(t *testing.T) {
	c := New(nil, nil)
	assert.NotPanics(t, func() {
		c.runCallback(context.Background(), Callback{
			Name: "panicking",
			Fn:   func(ctx context.Context) error { panic("oh no") },
		})
	})
}

func TestController_RunCallback_HonorsTimeout(t *testing.T) {
	c := New(nil, nil)
	start := time.Now()
	c.runCallback(context.Background(), Callback{
		Name:    "slow",
		Timeout: 10 * time.Millisecond,
		Fn: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestController_Register_AppendsInOrder(t *testing.T) {
	c := New(nil, nil)
	c.Register(Callback{Name: "first"})
	c.Register(Callback{Name: "second"})

	assert.Len(t, c.callbacks, 2)
	assert.Equal(t, "first", c.callbacks[0].Name)
	assert.Equal(t, "second", c.callbacks[1].Name)
}

func TestController_InProgress_DefaultsFalse(t *testing.T) {
	c := New(nil, nil)
	assert.False(t, c.InProgress())
}
