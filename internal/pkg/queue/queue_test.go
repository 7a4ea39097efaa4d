package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return client, cleanup
}

func TestQueue_Push(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	q := NewQueue(client, "test_reminders")
	ctx := context.Background()

	msg := &ReminderMessage{
		ScheduleID: 1,
		ParentID:   10,
		To:         "parent@example.com",
		Subject:    "Payment reminder",
		Body:       "<p>$50.00 due</p>",
		Channel:    "email",
	}

	err := q.Push(ctx, msg)
	require.NoError(t, err)
	assert.False(t, msg.EnqueuedAt.IsZero())

	length, err := q.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), length)
}

func TestQueue_Pop(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()

	t.Run("pop returns pushed message", func(t *testing.T) {
		q := NewQueue(client, "test_pop_queue")

		err := q.Push(ctx, &ReminderMessage{
			ScheduleID: 42,
			ParentID:   7,
			To:         "parent@example.com",
			Subject:    "Reminder",
			Metadata:   map[string]string{"installment_ids": "1,2"},
		})
		require.NoError(t, err)

		result, err := q.Pop(ctx, time.Second)
		require.NoError(t, err)
		require.NotNil(t, result)

		assert.Equal(t, int64(42), result.ScheduleID)
		assert.Equal(t, int64(7), result.ParentID)
		assert.Equal(t, "parent@example.com", result.To)
		assert.Equal(t, "1,2", result.Metadata["installment_ids"])
	})

	t.Run("pop FIFO order", func(t *testing.T) {
		q := NewQueue(client, "test_fifo_queue")

		for i := 1; i <= 3; i++ {
			err := q.Push(ctx, &ReminderMessage{ScheduleID: int64(i)})
			require.NoError(t, err)
		}

		for i := 1; i <= 3; i++ {
			result, err := q.Pop(ctx, time.Second)
			require.NoError(t, err)
			require.NotNil(t, result)
			assert.Equal(t, int64(i), result.ScheduleID)
		}
	})

	t.Run("pop from empty queue times out", func(t *testing.T) {
		q := NewQueue(client, "test_empty_queue")

		result, err := q.Pop(ctx, 10*time.Millisecond)

		// miniredis doesn't support BRPop timeout properly, so check for nil or error
		if err == nil {
			assert.Nil(t, result)
		}
	})
}

func TestQueue_MultipleQueues(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()

	q1 := NewQueue(client, "queue_1")
	q2 := NewQueue(client, "queue_2")

	require.NoError(t, q1.Push(ctx, &ReminderMessage{ScheduleID: 1}))
	require.NoError(t, q2.Push(ctx, &ReminderMessage{ScheduleID: 2}))

	len1, _ := q1.Length(ctx)
	len2, _ := q2.Length(ctx)
	assert.Equal(t, int64(1), len1)
	assert.Equal(t, int64(1), len2)

	result1, _ := q1.Pop(ctx, time.Second)
	result2, _ := q2.Pop(ctx, time.Second)

	assert.Equal(t, int64(1), result1.ScheduleID)
	assert.Equal(t, int64(2), result2.ScheduleID)
}
