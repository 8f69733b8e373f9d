package watch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueGetReturnsInitial(t *testing.T) {
	v := NewValue(42)
	assert.Equal(t, 42, v.Get())
}

func TestValueSetUpdatesCurrent(t *testing.T) {
	v := NewValue("observe")
	v.Set("takeover")
	assert.Equal(t, "takeover", v.Get())
}

func TestValueChangedWakesWaiter(t *testing.T) {
	v := NewValue(0)
	ch := v.Changed()

	done := make(chan struct{})
	go func() {
		<-ch
		close(done)
	}()

	v.Set(1)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken by Set")
	}
	assert.Equal(t, 1, v.Get())
}

func TestValueChangedIsFreshAfterEachSet(t *testing.T) {
	v := NewValue(0)
	first := v.Changed()
	v.Set(1)

	select {
	case <-first:
	default:
		t.Fatal("first Changed channel should already be closed")
	}

	second := v.Changed()
	require.NotEqual(t, first, second)

	select {
	case <-second:
		t.Fatal("new Changed channel should not yet be closed")
	default:
	}
}
