package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/backend-dealer/internal/deal"
	"github.com/noah-isme/backend-dealer/internal/deals"
	"github.com/noah-isme/backend-dealer/internal/inventory"
	"github.com/noah-isme/backend-dealer/internal/obs"
)

var (
	// ErrNotFound is returned when no quote is stored for a VIN.
	ErrNotFound = errors.New("quote: not found")
	// ErrInvalidVIN is returned for VINs that are empty or malformed.
	ErrInvalidVIN = errors.New("quote: invalid vin")
	// ErrArchiveUnavailable is returned by Save when no archiver is wired.
	ErrArchiveUnavailable = errors.New("quote: deal archive not configured")
)

// PriceLookup resolves the listed price of a vehicle in inventory.
type PriceLookup interface {
	ListedPrice(ctx context.Context, vin string) (decimal.Decimal, error)
}

// PriceRefresher is implemented by lookups that cache prices. Reset calls
// Forget so a reset quote picks up the current inventory price.
type PriceRefresher interface {
	Forget(ctx context.Context, vin string) error
}

// Locker serialises work on a key across processes.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Archiver hands a saved quote to the deal archive.
type Archiver interface {
	EnqueueArchive(ctx context.Context, p deals.ArchivePayload) (string, error)
}

// Service owns quote sessions keyed by VIN.
type Service struct {
	store    Store
	locker   Locker
	prices   PriceLookup
	archiver Archiver
	reducer  Reducer
	lockTTL  time.Duration
	logger   zerolog.Logger
	now      func() time.Time
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Store    Store
	Locker   Locker
	Prices   PriceLookup
	Archiver Archiver
	Defaults deal.Defaults
	LockTTL  time.Duration
	Logger   zerolog.Logger
	Now      func() time.Time
}

// NewService constructs a Service. A nil Store falls back to memory.
func NewService(cfg ServiceConfig) *Service {
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	defaults := cfg.Defaults
	if len(defaults.TermMonths) == 0 && len(defaults.DownPayments) == 0 {
		defaults = deal.StandardDefaults()
	}
	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = 5 * time.Second
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:    store,
		locker:   cfg.Locker,
		prices:   cfg.Prices,
		archiver: cfg.Archiver,
		reducer:  Reducer{Defaults: defaults},
		lockTTL:  lockTTL,
		logger:   cfg.Logger,
		now:      now,
	}
}

// Open returns the stored quote for vin, creating the default quote when none exists.
func (s *Service) Open(ctx context.Context, vin string) (Snapshot, error) {
	vin, err := checkVIN(vin)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	err = s.withLock(ctx, vin, func(ctx context.Context) error {
		state, found, err := s.load(ctx, vin)
		if err != nil {
			return err
		}
		res := Result{}
		if !found {
			state, res.Warnings, err = s.fresh(ctx, vin)
			if err != nil {
				return err
			}
			if err := s.save(ctx, state); err != nil {
				return err
			}
		}
		snap = s.snapshot(state, res)
		return nil
	})
	return snap, err
}

// Dispatch applies cmd to the quote for vin and persists the result.
func (s *Service) Dispatch(ctx context.Context, vin string, cmd Command) (Snapshot, error) {
	vin, err := checkVIN(vin)
	if err != nil {
		return Snapshot{}, err
	}
	if cmd == nil {
		return Snapshot{}, fmt.Errorf("%w: nil command", ErrUnknownCommand)
	}
	ctx, span := obs.StartSpan(ctx, "quote", "quote.dispatch",
		attribute.String("quote.vin", vin),
		attribute.String("quote.command", cmd.Kind()),
	)
	defer span.End()

	start := time.Now()
	var snap Snapshot
	err = s.withLock(ctx, vin, func(ctx context.Context) error {
		state, found, err := s.load(ctx, vin)
		if err != nil {
			return err
		}
		var opened []string
		if !found {
			state, opened, err = s.fresh(ctx, vin)
			if err != nil {
				return err
			}
		}
		next, res := s.reducer.Apply(state, cmd, s.now())
		if res.Outcome == OutcomeApplied || !found {
			if err := s.save(ctx, next); err != nil {
				return err
			}
		}
		res.Warnings = append(opened, res.Warnings...)
		snap = s.snapshot(next, res)
		return nil
	})
	outcome := string(snap.Outcome)
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("quote.outcome", outcome))
	if obs.QuoteCommandsTotal != nil {
		obs.QuoteCommandsTotal.WithLabelValues(cmd.Kind(), outcome).Inc()
	}
	if obs.QuoteDispatchLatency != nil {
		obs.QuoteDispatchLatency.WithLabelValues(outcome).Observe(obs.DurationMillis(time.Since(start)))
	}
	if _, ok := cmd.(AddTerm); ok && snap.Outcome == OutcomeRejected && obs.QuoteTermLimitTotal != nil {
		obs.QuoteTermLimitTotal.Inc()
	}
	if err != nil {
		return Snapshot{}, err
	}
	s.logger.Debug().
		Str("vin", vin).
		Str("command", cmd.Kind()).
		Str("outcome", outcome).
		Strs("warnings", snap.Warnings).
		Msg("quote command applied")
	return snap, nil
}

// Reset discards the stored quote for vin and starts over from defaults.
func (s *Service) Reset(ctx context.Context, vin string) (Snapshot, error) {
	vin, err := checkVIN(vin)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	err = s.withLock(ctx, vin, func(ctx context.Context) error {
		if err := s.store.Delete(ctx, Key(vin)); err != nil {
			return fmt.Errorf("quote: delete: %w", err)
		}
		if refresher, ok := s.prices.(PriceRefresher); ok {
			if err := refresher.Forget(ctx, vin); err != nil {
				s.logger.Warn().Err(err).Str("vin", vin).Msg("inventory cache invalidation failed")
			}
		}
		state, warnings, err := s.fresh(ctx, vin)
		if err != nil {
			return err
		}
		if err := s.save(ctx, state); err != nil {
			return err
		}
		snap = s.snapshot(state, Result{Warnings: warnings})
		return nil
	})
	return snap, err
}

// Sheet returns the print-ready quote for vin.
func (s *Service) Sheet(ctx context.Context, vin string) (Sheet, error) {
	vin, err := checkVIN(vin)
	if err != nil {
		return Sheet{}, err
	}
	state, found, err := s.load(ctx, vin)
	if err != nil {
		return Sheet{}, err
	}
	if !found {
		return Sheet{}, ErrNotFound
	}
	return NewSheet(state, s.now()), nil
}

// SaveReceipt acknowledges an archive request.
type SaveReceipt struct {
	DealID string          `json:"dealId"`
	TaskID string          `json:"taskId"`
	VIN    string          `json:"vin"`
	Total  decimal.Decimal `json:"total"`
}

// Save sends the current quote for vin to the deal archive.
func (s *Service) Save(ctx context.Context, vin, userID, storeID string) (SaveReceipt, error) {
	vin, err := checkVIN(vin)
	if err != nil {
		return SaveReceipt{}, err
	}
	if s.archiver == nil {
		return SaveReceipt{}, ErrArchiveUnavailable
	}
	state, found, err := s.load(ctx, vin)
	if err != nil {
		return SaveReceipt{}, err
	}
	if !found {
		return SaveReceipt{}, ErrNotFound
	}
	snap := NewSnapshot(state, Result{})
	body, err := json.Marshal(snap)
	if err != nil {
		return SaveReceipt{}, fmt.Errorf("quote: encode snapshot: %w", err)
	}
	dealID := uuid.New()
	taskID, err := s.archiver.EnqueueArchive(ctx, deals.ArchivePayload{
		DealID:      dealID,
		VIN:         vin,
		UserID:      userID,
		StoreID:     storeID,
		Total:       snap.Pricing.Total,
		Snapshot:    body,
		RequestedAt: s.now().UTC(),
	})
	if err != nil {
		return SaveReceipt{}, err
	}
	s.logger.Info().Str("vin", vin).Str("deal_id", dealID.String()).Str("user_id", userID).Msg("quote saved")
	return SaveReceipt{DealID: dealID.String(), TaskID: taskID, VIN: vin, Total: snap.Pricing.Total}, nil
}

func (s *Service) snapshot(state deal.State, res Result) Snapshot {
	snap := NewSnapshot(state, res)
	if obs.MatrixCellsTotal != nil {
		stats := snap.Matrix.Stats()
		obs.MatrixCellsTotal.WithLabelValues("computed").Add(float64(stats.Computed))
		obs.MatrixCellsTotal.WithLabelValues("invalid").Add(float64(stats.Invalid))
		obs.MatrixCellsTotal.WithLabelValues("skipped").Add(float64(stats.Skipped))
	}
	return snap
}

// fresh builds the default quote, seeding the listed price from inventory.
func (s *Service) fresh(ctx context.Context, vin string) (deal.State, []string, error) {
	var warnings []string
	price := decimal.Zero
	if s.prices != nil {
		p, err := s.prices.ListedPrice(ctx, vin)
		switch {
		case errors.Is(err, inventory.ErrVehicleNotFound):
			return deal.State{}, nil, err
		case err != nil:
			s.logger.Warn().Err(err).Str("vin", vin).Msg("inventory price lookup failed")
			warnings = append(warnings, "listed price unavailable from inventory; enter it manually")
		default:
			price = p
		}
	}
	return deal.NewState(vin, price, s.reducer.Defaults, s.now()), warnings, nil
}

func (s *Service) load(ctx context.Context, vin string) (deal.State, bool, error) {
	data, ok, err := s.store.Get(ctx, Key(vin))
	if err != nil {
		return deal.State{}, false, fmt.Errorf("quote: load: %w", err)
	}
	if !ok {
		return deal.State{}, false, nil
	}
	var state deal.State
	if err := json.Unmarshal(data, &state); err != nil {
		s.logger.Warn().Err(err).Str("vin", vin).Msg("discarding unreadable stored quote")
		return deal.State{}, false, nil
	}
	state.Normalize()
	if state.VIN == "" {
		state.VIN = vin
	}
	return state, true, nil
}

func (s *Service) save(ctx context.Context, state deal.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("quote: encode: %w", err)
	}
	if err := s.store.Set(ctx, Key(state.VIN), data); err != nil {
		return fmt.Errorf("quote: persist: %w", err)
	}
	return nil
}

func (s *Service) withLock(ctx context.Context, vin string, fn func(context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}
	return s.locker.WithLock(ctx, "lock:"+Key(vin), s.lockTTL, fn)
}

func checkVIN(vin string) (string, error) {
	vin = NormalizeVIN(vin)
	if vin == "" || len(vin) > 17 {
		return "", ErrInvalidVIN
	}
	for _, r := range vin {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", ErrInvalidVIN
		}
	}
	return vin, nil
}
