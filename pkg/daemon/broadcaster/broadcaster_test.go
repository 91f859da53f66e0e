package broadcaster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleettune/fleettune/pkg/tune/types"
)

func TestSubscribeAndPublish(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe()
	require.NotNil(t, sub)
	assert.NotEmpty(t, sub.ID)
	assert.Equal(t, 1, b.SubscriberCount())

	b.PublishSnapshot(types.Snapshot{Running: true})

	msg := <-sub.Messages
	assert.Equal(t, KindSnapshot, msg.Kind)
	require.NotNil(t, msg.Snapshot)
	assert.True(t, msg.Snapshot.Running)
}

func TestPublishWarning(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe()
	b.PublishWarning(types.WarningEvent{ID: "psu1-load-danger", Level: types.LevelDanger})

	msg := <-sub.Messages
	assert.Equal(t, KindWarning, msg.Kind)
	require.NotNil(t, msg.Warning)
	assert.Equal(t, "psu1-load-danger", msg.Warning.ID)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe()
	b.Unsubscribe(sub.ID)
	assert.Equal(t, 0, b.SubscriberCount())

	_, open := <-sub.Messages
	assert.False(t, open)
}

func TestSlowSubscriberDropsMessages(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe()
	// Overfill the buffer; publish must not block.
	for i := 0; i < 200; i++ {
		b.PublishSnapshot(types.Snapshot{})
	}
	assert.LessOrEqual(t, len(sub.Messages), cap(sub.Messages))
}

func TestMultipleSubscribers(t *testing.T) {
	b := New()
	defer b.Close()

	sub1 := b.Subscribe()
	sub2 := b.Subscribe()
	b.PublishSnapshot(types.Snapshot{Running: true})

	for _, sub := range []*Subscriber{sub1, sub2} {
		msg := <-sub.Messages
		assert.Equal(t, KindSnapshot, msg.Kind)
	}
}

func TestClosedBroadcasterRefusesSubscribers(t *testing.T) {
	b := New()
	b.Close()

	assert.Nil(t, b.Subscribe())
	// Publishing after close must not panic.
	b.PublishSnapshot(types.Snapshot{})
	b.Close() // Double close is a no-op.
}
