package chat

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionForwardSingleStep(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusSending, StatusSent, true},
		{StatusSent, StatusDelivered, true},
		{StatusDelivered, StatusSeen, true},
		{StatusSending, StatusDelivered, false},
		{StatusSent, StatusSeen, false},
		{StatusDelivered, StatusSent, false},
		{StatusSeen, StatusDelivered, false},
		{StatusSeen, StatusSeen, false},
		{Status("bogus"), StatusSent, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			err := Transition(tt.from, tt.to)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			var te *TransitionError
			require.True(t, errors.As(err, &te))
			assert.Equal(t, tt.from, te.From)
			assert.Equal(t, tt.to, te.To)
		})
	}
}

func TestAdvanceIsMonotonic(t *testing.T) {
	m := Message{ID: "m1", Status: StatusSent}

	m, ok := Advance(m, StatusSeen)
	assert.False(t, ok, "skipping delivered must be rejected")
	assert.Equal(t, StatusSent, m.Status)

	walk := []Status{StatusDelivered, StatusSeen}
	prev := m.Status.Rank()
	for _, s := range walk {
		m, ok = Advance(m, s)
		require.True(t, ok)
		assert.Greater(t, m.Status.Rank(), prev)
		prev = m.Status.Rank()
	}

	m, ok = Advance(m, StatusDelivered)
	assert.False(t, ok)
	assert.Equal(t, StatusSeen, m.Status)
}

func TestPromoteOnlyTouchesMatchingSender(t *testing.T) {
	msgs := []Message{
		{ID: "1", SenderID: "alice", Status: StatusSent},
		{ID: "2", SenderID: "bob", Status: StatusSent},
		{ID: "3", SenderID: "alice", Status: StatusDelivered},
		{SenderID: "alice", Status: StatusSending, Temporary: true},
	}

	out, n := Promote(msgs, "alice", StatusSent, StatusDelivered)
	assert.Equal(t, 1, n)
	assert.Equal(t, StatusDelivered, out[0].Status)
	assert.Equal(t, StatusSent, out[1].Status)
	assert.Equal(t, StatusDelivered, out[2].Status)
	assert.Equal(t, StatusSent, msgs[0].Status, "input must not be mutated")

	_, n = Promote(msgs, "alice", StatusSent, StatusSeen)
	assert.Zero(t, n)
}

func TestStatusRank(t *testing.T) {
	assert.True(t, StatusSending.Rank() < StatusSent.Rank())
	assert.True(t, StatusSent.Rank() < StatusDelivered.Rank())
	assert.True(t, StatusDelivered.Rank() < StatusSeen.Rank())
	assert.Equal(t, -1, Status("x").Rank())
	assert.False(t, Status("x").Valid())
}
