package latch_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ethersync/ethersync/libs/latch"
)

func TestLatchStartsReleased(t *testing.T) {
	l := latch.New()
	require.True(t, l.Wait(context.Background(), time.Second))
}

func TestLatchReleasesOnZero(t *testing.T) {
	l := latch.New()
	l.Arm(2)

	released := make(chan bool, 1)
	go func() {
		released <- l.Wait(context.Background(), 5*time.Second)
	}()

	l.CountDown()
	select {
	case <-released:
		t.Fatal("latch released after a single countdown of two")
	case <-time.After(20 * time.Millisecond):
	}

	l.CountDown()
	select {
	case ok := <-released:
		require.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("latch did not release")
	}
}

func TestLatchTimeout(t *testing.T) {
	l := latch.New()
	l.Arm(1)

	start := time.Now()
	require.False(t, l.Wait(context.Background(), 30*time.Millisecond))
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestLatchArmNonPositive(t *testing.T) {
	l := latch.New()
	l.Arm(0)
	require.True(t, l.Wait(context.Background(), time.Second))

	l.Arm(-3)
	require.True(t, l.Wait(context.Background(), time.Second))
}

func TestLatchLateCountDownIsNoop(t *testing.T) {
	l := latch.New()
	l.Arm(1)
	l.CountDown()
	// countdowns beyond zero must not affect the next arming
	l.CountDown()
	l.CountDown()

	l.Arm(1)
	require.False(t, l.Wait(context.Background(), 20*time.Millisecond))
	l.CountDown()
	require.True(t, l.Wait(context.Background(), time.Second))
}

func TestLatchReuse(t *testing.T) {
	l := latch.New()
	for i := 0; i < 5; i++ {
		l.Arm(1)
		go l.CountDown()
		require.True(t, l.Wait(context.Background(), time.Second))
	}
}

func TestLatchContextCancel(t *testing.T) {
	l := latch.New()
	l.Arm(1)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	require.False(t, l.Wait(ctx, 5*time.Second))
}
