package clock

import (
	"context"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRealSleepCompletes(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		err := Real{}.Sleep(context.Background(), 10*time.Second)
		assert.NoError(t, err)
	})
}

func TestRealSleepCancelled(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := Real{}.Sleep(ctx, time.Minute)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestRealSleepInterruptedMidway(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- Real{}.Sleep(ctx, time.Minute)
		}()

		time.Sleep(time.Second)
		synctest.Wait()
		cancel()
		synctest.Wait()

		assert.ErrorIs(t, <-done, context.Canceled)
	})
}

func TestFakeAdvancesWithoutWaiting(t *testing.T) {
	start := time.Unix(1000, 0)
	c := NewFake(start)
	err := c.Sleep(context.Background(), 30*time.Second)
	assert.NoError(t, err)
	assert.Equal(t, start.Add(30*time.Second), c.Now())
}
