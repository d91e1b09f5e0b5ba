package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdleSendsImmediately(t *testing.T) {
	var sent []string
	s := NewSlot(func(v string) { sent = append(sent, v) })

	s.Update("a")

	assert.Equal(t, []string{"a"}, sent)
	assert.True(t, s.Busy())
}

func TestCoalescingDropsIntermediateValues(t *testing.T) {
	var sent []string
	s := NewSlot(func(v string) { sent = append(sent, v) })

	var dropped []string
	s.OnDrop = func(v string) { dropped = append(dropped, v) }

	s.Update("u1")
	s.Update("u2")
	s.Update("u3")

	// Exactly one send until the first ack.
	assert.Equal(t, []string{"u1"}, sent)

	s.Ack()

	// The ack releases the latest pending value; u2 was dropped.
	assert.Equal(t, []string{"u1", "u3"}, sent)
	assert.Equal(t, []string{"u2"}, dropped)

	s.Ack()
	assert.Equal(t, []string{"u1", "u3"}, sent)
	assert.False(t, s.Busy())
}

func TestAckWithNothingPendingGoesIdle(t *testing.T) {
	var sent []int
	s := NewSlot(func(v int) { sent = append(sent, v) })

	s.Update(1)
	s.Ack()

	assert.Equal(t, []int{1}, sent)
	assert.False(t, s.Busy())

	// Next update sends immediately again.
	s.Update(2)
	assert.Equal(t, []int{1, 2}, sent)
}

func TestSpuriousAckIsHarmless(t *testing.T) {
	var sent []int
	s := NewSlot(func(v int) { sent = append(sent, v) })

	s.Ack()
	assert.Empty(t, sent)
	assert.False(t, s.Busy())
}

func TestResetDiscardsPending(t *testing.T) {
	var sent []int
	s := NewSlot(func(v int) { sent = append(sent, v) })

	s.Update(1)
	s.Update(2)
	s.Reset()

	// A late ack after teardown releases nothing.
	s.Ack()
	assert.Equal(t, []int{1}, sent)
}
