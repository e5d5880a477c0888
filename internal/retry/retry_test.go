package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fencepost-audio/scrobbled/internal/play"
	"github.com/fencepost-audio/scrobbled/internal/state"
)

type fakeQueue struct {
	pending  []state.PendingScrobble
	deleted  []int64
	attempts map[int64]string
}

func (q *fakeQueue) GetPendingScrobbles() ([]state.PendingScrobble, error) {
	return q.pending, nil
}

func (q *fakeQueue) DeletePendingScrobble(id int64) error {
	q.deleted = append(q.deleted, id)
	return nil
}

func (q *fakeQueue) UpdatePendingScrobbleAttempt(id int64, errMsg string) error {
	if q.attempts == nil {
		q.attempts = map[int64]string{}
	}
	q.attempts[id] = errMsg
	return nil
}

type fakeClient struct {
	name    string
	err     error
	scrobbl []play.Record
}

func (c *fakeClient) Name() string { return c.name }

func (c *fakeClient) Scrobble(ctx context.Context, r play.Record) error {
	c.scrobbl = append(c.scrobbl, r)
	return c.err
}

func TestRunOnceResubmitsAndDeletesSucceeded(t *testing.T) {
	queue := &fakeQueue{pending: []state.PendingScrobble{
		{ID: 1, Client: "lastfm-main", Artist: "Boards of Canada", Track: "Roygbiv"},
	}}
	client := &fakeClient{name: "lastfm-main"}
	loop := New(queue, []Client{client}, zerolog.Nop(), time.Minute)

	loop.runOnce(context.Background())

	assert.Len(t, client.scrobbl, 1)
	assert.Equal(t, "Roygbiv", client.scrobbl[0].Data.Track)
	assert.Equal(t, []int64{1}, queue.deleted)
}

func TestRunOnceRecordsAttemptOnFailure(t *testing.T) {
	queue := &fakeQueue{pending: []state.PendingScrobble{
		{ID: 2, Client: "lastfm-main", Track: "Dayvan Cowboy"},
	}}
	client := &fakeClient{name: "lastfm-main", err: errors.New("rate limited")}
	loop := New(queue, []Client{client}, zerolog.Nop(), time.Minute)

	loop.runOnce(context.Background())

	assert.Empty(t, queue.deleted)
	require.Contains(t, queue.attempts, int64(2))
	assert.Equal(t, "rate limited", queue.attempts[2])
}

func TestRunOnceSkipsEntriesAtMaxAttempts(t *testing.T) {
	queue := &fakeQueue{pending: []state.PendingScrobble{
		{ID: 3, Client: "lastfm-main", Attempts: maxAttempts},
	}}
	client := &fakeClient{name: "lastfm-main"}
	loop := New(queue, []Client{client}, zerolog.Nop(), time.Minute)

	loop.runOnce(context.Background())

	assert.Empty(t, client.scrobbl)
	assert.Empty(t, queue.deleted)
}

func TestRunOnceSkipsUnknownClient(t *testing.T) {
	queue := &fakeQueue{pending: []state.PendingScrobble{
		{ID: 4, Client: "not-configured"},
	}}
	loop := New(queue, nil, zerolog.Nop(), time.Minute)

	loop.runOnce(context.Background())

	assert.Empty(t, queue.deleted)
	assert.Empty(t, queue.attempts)
}

func TestRunStopsOnContextCancellation(t *testing.T) {
	queue := &fakeQueue{}
	loop := New(queue, nil, zerolog.Nop(), time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
