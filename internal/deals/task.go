package deals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-dealer/internal/obs"
)

// TypeArchive is the asynq task type for archiving a saved quote.
const TypeArchive = "deal:archive"

// QueueName is the asynq queue archive tasks are sent to.
const QueueName = "deals"

// ArchivePayload is the task body produced when a user saves a quote.
type ArchivePayload struct {
	DealID      uuid.UUID       `json:"dealId"`
	VIN         string          `json:"vin"`
	UserID      string          `json:"userId"`
	StoreID     string          `json:"storeId,omitempty"`
	Total       decimal.Decimal `json:"total"`
	Snapshot    json.RawMessage `json:"snapshot"`
	RequestedAt time.Time       `json:"requestedAt"`
}

// NewArchiveTask encodes p as an asynq task.
func NewArchiveTask(p ArchivePayload) (*asynq.Task, error) {
	if strings.TrimSpace(p.VIN) == "" {
		return nil, errors.New("deals: archive payload missing vin")
	}
	if len(p.Snapshot) == 0 {
		return nil, errors.New("deals: archive payload missing snapshot")
	}
	body, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeArchive, body), nil
}

type taskClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Enqueuer sends archive tasks to the worker.
type Enqueuer struct {
	Client    taskClient
	MaxRetry  int
	Retention time.Duration
	Deadline  time.Duration
}

// EnqueueArchive schedules p for archiving and returns the task id. The deal
// id doubles as the task id so a retried save cannot archive twice.
func (e Enqueuer) EnqueueArchive(ctx context.Context, p ArchivePayload) (string, error) {
	if e.Client == nil {
		return "", errors.New("deals: task client not configured")
	}
	if p.DealID == uuid.Nil {
		p.DealID = uuid.New()
	}
	task, err := NewArchiveTask(p)
	if err != nil {
		return "", err
	}
	opts := []asynq.Option{asynq.Queue(QueueName), asynq.TaskID(p.DealID.String())}
	if e.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(e.MaxRetry))
	}
	if e.Retention > 0 {
		opts = append(opts, asynq.Retention(e.Retention))
	}
	if e.Deadline > 0 {
		opts = append(opts, asynq.Timeout(e.Deadline))
	}
	info, err := e.Client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		if obs.DealArchiveTotal != nil {
			obs.DealArchiveTotal.WithLabelValues("enqueue_failed").Inc()
		}
		return "", fmt.Errorf("deals: enqueue archive: %w", err)
	}
	if obs.DealArchiveTotal != nil {
		obs.DealArchiveTotal.WithLabelValues("enqueued").Inc()
	}
	return info.ID, nil
}

// Writer is where archived deals land.
type Writer interface {
	Insert(ctx context.Context, d SavedDeal) error
}

// ArchiveHandler processes deal:archive tasks.
type ArchiveHandler struct {
	Store  Writer
	Logger zerolog.Logger
}

// ProcessTask implements asynq.Handler. Malformed payloads are not retried.
func (h ArchiveHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p ArchivePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		h.count("invalid")
		return fmt.Errorf("deals: decode archive payload: %v: %w", err, asynq.SkipRetry)
	}
	if p.DealID == uuid.Nil || strings.TrimSpace(p.VIN) == "" {
		h.count("invalid")
		return fmt.Errorf("deals: archive payload incomplete: %w", asynq.SkipRetry)
	}
	createdAt := p.RequestedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	err := h.Store.Insert(ctx, SavedDeal{
		ID:        p.DealID,
		VIN:       p.VIN,
		UserID:    p.UserID,
		StoreID:   p.StoreID,
		Total:     p.Total,
		Snapshot:  p.Snapshot,
		CreatedAt: createdAt,
	})
	switch {
	case errors.Is(err, ErrDuplicate):
		h.count("duplicate")
		h.Logger.Info().Str("deal_id", p.DealID.String()).Str("vin", p.VIN).Msg("saved deal already archived")
		return nil
	case err != nil:
		h.count("failed")
		h.Logger.Error().Err(err).Str("deal_id", p.DealID.String()).Str("vin", p.VIN).Msg("archive saved deal")
		return err
	}
	h.count("stored")
	h.Logger.Info().Str("deal_id", p.DealID.String()).Str("vin", p.VIN).Str("total", p.Total.StringFixed(2)).Msg("saved deal archived")
	return nil
}

func (h ArchiveHandler) count(result string) {
	if obs.DealArchiveTotal != nil {
		obs.DealArchiveTotal.WithLabelValues(result).Inc()
	}
}
