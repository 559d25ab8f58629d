package deals

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type clientStub struct {
	task *asynq.Task
	opts []asynq.Option
	err  error
}

func (c *clientStub) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	c.task = task
	c.opts = opts
	if c.err != nil {
		return nil, c.err
	}
	return &asynq.TaskInfo{ID: "task-1", Queue: QueueName}, nil
}

type writerStub struct {
	saved []SavedDeal
	err   error
}

func (w *writerStub) Insert(_ context.Context, d SavedDeal) error {
	if w.err != nil {
		return w.err
	}
	w.saved = append(w.saved, d)
	return nil
}

func samplePayload() ArchivePayload {
	return ArchivePayload{
		DealID:      uuid.New(),
		VIN:         "1HGCM82633A004352",
		UserID:      "user-1",
		Total:       decimal.RequireFromString("32019.25"),
		Snapshot:    json.RawMessage(`{"state":{}}`),
		RequestedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestEnqueueArchive(t *testing.T) {
	client := &clientStub{}
	id, err := Enqueuer{Client: client, MaxRetry: 5}.EnqueueArchive(context.Background(), samplePayload())
	require.NoError(t, err)
	require.Equal(t, "task-1", id)
	require.Equal(t, TypeArchive, client.task.Type())
	require.Len(t, client.opts, 3)

	var decoded ArchivePayload
	require.NoError(t, json.Unmarshal(client.task.Payload(), &decoded))
	require.Equal(t, "1HGCM82633A004352", decoded.VIN)
	require.Equal(t, "32019.25", decoded.Total.StringFixed(2))
}

func TestEnqueueArchiveAssignsDealID(t *testing.T) {
	client := &clientStub{}
	p := samplePayload()
	p.DealID = uuid.Nil
	_, err := Enqueuer{Client: client}.EnqueueArchive(context.Background(), p)
	require.NoError(t, err)

	var decoded ArchivePayload
	require.NoError(t, json.Unmarshal(client.task.Payload(), &decoded))
	require.NotEqual(t, uuid.Nil, decoded.DealID)
}

func TestEnqueueArchiveErrors(t *testing.T) {
	_, err := Enqueuer{}.EnqueueArchive(context.Background(), samplePayload())
	require.Error(t, err)

	p := samplePayload()
	p.Snapshot = nil
	_, err = Enqueuer{Client: &clientStub{}}.EnqueueArchive(context.Background(), p)
	require.Error(t, err)

	_, err = Enqueuer{Client: &clientStub{err: errors.New("redis down")}}.EnqueueArchive(context.Background(), samplePayload())
	require.ErrorContains(t, err, "redis down")
}

func TestArchiveHandlerStores(t *testing.T) {
	store := &writerStub{}
	p := samplePayload()
	task, err := NewArchiveTask(p)
	require.NoError(t, err)

	h := ArchiveHandler{Store: store, Logger: zerolog.Nop()}
	require.NoError(t, h.ProcessTask(context.Background(), task))
	require.Len(t, store.saved, 1)
	require.Equal(t, p.DealID, store.saved[0].ID)
	require.True(t, p.RequestedAt.Equal(store.saved[0].CreatedAt))
}

func TestArchiveHandlerDuplicateIsSuccess(t *testing.T) {
	task, err := NewArchiveTask(samplePayload())
	require.NoError(t, err)
	h := ArchiveHandler{Store: &writerStub{err: ErrDuplicate}, Logger: zerolog.Nop()}
	require.NoError(t, h.ProcessTask(context.Background(), task))
}

func TestArchiveHandlerSkipsRetryOnGarbage(t *testing.T) {
	h := ArchiveHandler{Store: &writerStub{}, Logger: zerolog.Nop()}
	err := h.ProcessTask(context.Background(), asynq.NewTask(TypeArchive, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestArchiveHandlerRetriesStoreFailure(t *testing.T) {
	task, err := NewArchiveTask(samplePayload())
	require.NoError(t, err)
	h := ArchiveHandler{Store: &writerStub{err: errors.New("db down")}, Logger: zerolog.Nop()}
	err = h.ProcessTask(context.Background(), task)
	require.Error(t, err)
	require.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestMigrateURL(t *testing.T) {
	require.Equal(t, "pgx5://u:p@db:5432/dealer", migrateURL("postgres://u:p@db:5432/dealer"))
	require.Equal(t, "pgx5://db/dealer", migrateURL("postgresql://db/dealer"))
	require.Equal(t, "pgx5://db/dealer", migrateURL("pgx5://db/dealer"))
}
