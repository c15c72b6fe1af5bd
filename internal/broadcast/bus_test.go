package broadcast

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestBus_FanOut(t *testing.T) {
	b := New[int](4, quietLogger)
	id1, ch1 := b.Subscribe()
	_, ch2 := b.Subscribe()
	require.NotEqual(t, id1, SubscriberID(""))

	assert.Equal(t, 2, b.Publish(7))
	assert.Equal(t, 7, <-ch1)
	assert.Equal(t, 7, <-ch2)
}

func TestBus_SubscriberIDsAreV7(t *testing.T) {
	b := New[int](1, quietLogger)
	id, _ := b.Subscribe()
	u, err := uuid.Parse(string(id))
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), u.Version())
}

func TestBus_DropsWhenFull(t *testing.T) {
	b := New[int](2, quietLogger)
	slow, ch := b.Subscribe()
	_, fast := b.Subscribe()

	var wg sync.WaitGroup
	wg.Add(1)
	got := 0
	go func() {
		defer wg.Done()
		for range fast {
			got++
		}
	}()

	for i := range 5 {
		b.Publish(i)
	}
	b.Unsubscribe(slow)
	var received []int
	for v := range ch {
		received = append(received, v)
	}
	assert.Equal(t, []int{0, 1}, received)

	st := b.Stats()
	assert.EqualValues(t, 5, st.Published)
	assert.GreaterOrEqual(t, st.Dropped, uint64(3))

	b.Close()
	wg.Wait()
	assert.LessOrEqual(t, got, 5)
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	b := New[string](0, quietLogger)
	id, ch := b.Subscribe()
	assert.True(t, b.Unsubscribe(id))
	assert.False(t, b.Unsubscribe(id))

	_, open := <-ch
	assert.False(t, open)
	assert.Zero(t, b.Len())
	assert.Zero(t, b.Publish("x"))
}

func TestBus_DefaultCapacity(t *testing.T) {
	b := New[int](0, nil)
	_, ch := b.Subscribe()
	for i := range DefaultCapacity + 10 {
		b.Publish(i)
	}
	assert.Len(t, ch, DefaultCapacity)
	assert.EqualValues(t, 10, b.Stats().Dropped)
}
