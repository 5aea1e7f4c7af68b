package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutbox_FIFO(t *testing.T) {
	o := NewOutbox(4)
	for _, f := range []string{"a", "b", "c"} {
		dropped, ok := o.Push([]byte(f))
		require.True(t, ok)
		require.False(t, dropped)
	}

	for _, want := range []string{"a", "b", "c"} {
		got, ok := o.Pop()
		require.True(t, ok)
		assert.Equal(t, want, string(got))
	}
	_, ok := o.Pop()
	assert.False(t, ok)
}

func TestOutbox_DropOldest(t *testing.T) {
	o := NewOutbox(3)
	var drops int
	for _, f := range []string{"1", "2", "3", "4", "5"} {
		dropped, ok := o.Push([]byte(f))
		require.True(t, ok)
		if dropped {
			drops++
		}
	}

	assert.Equal(t, 2, drops)
	assert.Equal(t, 3, o.Len())
	for _, want := range []string{"3", "4", "5"} {
		got, _ := o.Pop()
		assert.Equal(t, want, string(got))
	}
}

func TestOutbox_ReadySignal(t *testing.T) {
	o := NewOutbox(2)
	o.Push([]byte("x"))
	o.Push([]byte("y"))

	select {
	case <-o.Ready():
	default:
		t.Fatal("Ready() should fire after Push")
	}
	// one pending signal covers any number of pushes
	select {
	case <-o.Ready():
		t.Fatal("Ready() should coalesce signals")
	default:
	}
}

func TestOutbox_Close(t *testing.T) {
	o := NewOutbox(2)
	o.Push([]byte("queued"))
	o.Close()
	o.Close()

	select {
	case <-o.Done():
	default:
		t.Fatal("Done() should be closed")
	}

	_, ok := o.Push([]byte("late"))
	assert.False(t, ok)

	got, ok := o.Pop()
	require.True(t, ok)
	assert.Equal(t, "queued", string(got))
}

func TestOutbox_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultOutboxSize, NewOutbox(0).Cap())
}
