package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/orderflowhq/orderflow-backend/internal/inventory"
	"github.com/orderflowhq/orderflow-backend/pkg/config"
	dbpkg "github.com/orderflowhq/orderflow-backend/pkg/db"
	"github.com/orderflowhq/orderflow-backend/pkg/db/models"
	"github.com/orderflowhq/orderflow-backend/pkg/enums"
	pkgerrors "github.com/orderflowhq/orderflow-backend/pkg/errors"
	"github.com/orderflowhq/orderflow-backend/pkg/logger"
	"github.com/orderflowhq/orderflow-backend/pkg/metrics"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ReserveInput identifies a single hold request. One order may hold at most
// one reservation per inventory item.
type ReserveInput struct {
	InventoryID uuid.UUID
	OrderID     uuid.UUID
	Qty         int
}

// Release triggers, recorded in logs and metrics.
const (
	TriggerExpiry       = "expiry"
	TriggerCompensation = "compensation"
	TriggerManual       = "manual"
)

// Service owns the reservation lifecycle. All stock movement driven by
// reservations goes through the two atomic inventory primitives; no code
// path reads stock and writes it back.
type Service interface {
	Reserve(ctx context.Context, input ReserveInput) (*models.StockReservation, error)
	ReserveInTx(ctx context.Context, tx *gorm.DB, input ReserveInput, now time.Time) (*models.StockReservation, error)
	Confirm(ctx context.Context, reservationID uuid.UUID) (*models.StockReservation, error)
	ConfirmInTx(ctx context.Context, tx *gorm.DB, inventoryID, orderID uuid.UUID, now time.Time) (*models.StockReservation, error)
	Release(ctx context.Context, reservationID uuid.UUID) (*models.StockReservation, error)
	ReleaseInTx(ctx context.Context, tx *gorm.DB, reservationID uuid.UUID, now time.Time, trigger string) (*models.StockReservation, error)
	ReleaseHeldForOrderInTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, now time.Time, trigger string) (int, error)
	Get(ctx context.Context, reservationID uuid.UUID) (*models.StockReservation, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.StockReservation, error)
	ListExpiredHeld(ctx context.Context, now time.Time, limit int) ([]models.StockReservation, error)
}

type service struct {
	repo        Repository
	invRepo     inventory.Repository
	tx          txRunner
	logg        *logger.Logger
	metrics     *metrics.ReservationMetrics
	ttl         time.Duration
	maxAttempts int
}

// NewService wires the reservation service. Metrics may be nil in workers
// that do not expose a scrape endpoint.
func NewService(repo Repository, invRepo inventory.Repository, tx txRunner, cfg config.CheckoutConfig, logg *logger.Logger, m *metrics.ReservationMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("reservation repository required")
	}
	if invRepo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.ReservationTTL <= 0 {
		return nil, fmt.Errorf("reservation ttl must be positive")
	}
	attempts := cfg.ReserveMaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &service{
		repo:        repo,
		invRepo:     invRepo,
		tx:          tx,
		logg:        logg,
		metrics:     m,
		ttl:         cfg.ReservationTTL,
		maxAttempts: attempts,
	}, nil
}

// Reserve places a hold in its own transaction, retrying only on transient
// conflicts. Insufficient stock is a definitive outcome and returns
// immediately, never retried.
func (s *service) Reserve(ctx context.Context, input ReserveInput) (*models.StockReservation, error) {
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		var out *models.StockReservation
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			var txErr error
			out, txErr = s.ReserveInTx(ctx, tx, input, time.Now().UTC())
			return txErr
		})
		if err == nil {
			return out, nil
		}
		if !s.isTransient(err) {
			return nil, err
		}
		lastErr = err
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"attempt":      attempt,
			"inventory_id": input.InventoryID,
			"order_id":     input.OrderID,
		}), "transient conflict while reserving, retrying")
	}
	return nil, pkgerrors.Wrap(pkgerrors.CodeConcurrencyConflict, lastErr,
		fmt.Sprintf("reservation still conflicting after %d attempts", s.maxAttempts))
}

func (s *service) isTransient(err error) bool {
	return dbpkg.IsSerializationFailure(err) || pkgerrors.IsRetryable(err)
}

// ReserveInTx places a hold inside the caller's transaction. The decrement
// and the reservation insert succeed or fail together; if the insert fails
// the decrement is explicitly undone so a caller that keeps its transaction
// open observes consistent stock.
func (s *service) ReserveInTx(ctx context.Context, tx *gorm.DB, input ReserveInput, now time.Time) (*models.StockReservation, error) {
	if input.InventoryID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "inventory id is required")
	}
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if input.Qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	invRepo := s.invRepo.WithTx(tx)
	ok, err := invRepo.DecrementIfAvailable(ctx, input.InventoryID, input.Qty)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decrementing stock")
	}
	if !ok {
		s.metrics.IncDenied(input.InventoryID.String())
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock, "not enough stock to reserve").
			WithDetails(map[string]any{"inventory_id": input.InventoryID, "qty": input.Qty})
	}

	row := &models.StockReservation{
		ID:          uuid.New(),
		InventoryID: input.InventoryID,
		OrderID:     input.OrderID,
		ReservedQty: input.Qty,
		Status:      enums.ReservationStatusHeld,
		ReservedAt:  now,
		ExpiresAt:   now.Add(s.ttl),
	}
	if err := s.repo.WithTx(tx).Create(ctx, row); err != nil {
		if incErr := invRepo.Increment(ctx, input.InventoryID, input.Qty); incErr != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDataIntegrity, incErr,
				"restoring stock after failed reservation insert")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "inserting reservation")
	}

	s.metrics.IncGranted(input.InventoryID.String())
	return row, nil
}

func (s *service) Confirm(ctx context.Context, reservationID uuid.UUID) (*models.StockReservation, error) {
	var out *models.StockReservation
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		row, err := repo.FindByIDForUpdate(ctx, reservationID)
		if err != nil {
			return notFoundOrInternal(err, "reservation")
		}
		next, err := Confirm(*row, time.Now().UTC())
		if err != nil {
			return err
		}
		if err := repo.UpdateStatus(ctx, &next); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persisting confirmation")
		}
		out = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ConfirmInTx confirms the hold an order placed on one inventory item. It is
// the per-line step of payment and must run inside the payment transaction.
func (s *service) ConfirmInTx(ctx context.Context, tx *gorm.DB, inventoryID, orderID uuid.UUID, now time.Time) (*models.StockReservation, error) {
	repo := s.repo.WithTx(tx)
	row, err := repo.FindByInventoryAndOrderForUpdate(ctx, inventoryID, orderID)
	if err != nil {
		return nil, notFoundOrInternal(err, "reservation")
	}
	next, err := Confirm(*row, now)
	if err != nil {
		return nil, err
	}
	if err := repo.UpdateStatus(ctx, &next); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persisting confirmation")
	}
	return &next, nil
}

func (s *service) Release(ctx context.Context, reservationID uuid.UUID) (*models.StockReservation, error) {
	var out *models.StockReservation
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		out, txErr = s.ReleaseInTx(ctx, tx, reservationID, time.Now().UTC(), TriggerManual)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReleaseInTx releases one hold and returns its quantity to stock. Releasing
// a reservation that is not held is a state conflict; idempotent sweeps check
// the status before calling.
func (s *service) ReleaseInTx(ctx context.Context, tx *gorm.DB, reservationID uuid.UUID, now time.Time, trigger string) (*models.StockReservation, error) {
	repo := s.repo.WithTx(tx)
	row, err := repo.FindByIDForUpdate(ctx, reservationID)
	if err != nil {
		return nil, notFoundOrInternal(err, "reservation")
	}
	next, err := Release(*row, now)
	if err != nil {
		return nil, err
	}
	if err := repo.UpdateStatus(ctx, &next); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persisting release")
	}
	if err := s.invRepo.WithTx(tx).Increment(ctx, next.InventoryID, next.ReservedQty); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDataIntegrity, err, "returning released stock")
	}
	s.metrics.IncReleased(trigger)
	return &next, nil
}

// ReleaseHeldForOrderInTx releases every hold still active for the order and
// reports how many it touched. Reservations already confirmed or released are
// skipped, which makes the sweep safe to repeat.
func (s *service) ReleaseHeldForOrderInTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, now time.Time, trigger string) (int, error) {
	repo := s.repo.WithTx(tx)
	rows, err := repo.ListByOrder(ctx, orderID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing order reservations")
	}

	released := 0
	for _, row := range rows {
		if row.Status != enums.ReservationStatusHeld {
			continue
		}
		if _, err := s.ReleaseInTx(ctx, tx, row.ID, now, trigger); err != nil {
			// a concurrent sweep may have released it between list and lock
			if pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
				continue
			}
			return released, err
		}
		released++
	}
	return released, nil
}

func (s *service) Get(ctx context.Context, reservationID uuid.UUID) (*models.StockReservation, error) {
	row, err := s.repo.FindByID(ctx, reservationID)
	if err != nil {
		return nil, notFoundOrInternal(err, "reservation")
	}
	return row, nil
}

func (s *service) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.StockReservation, error) {
	return s.repo.ListByOrder(ctx, orderID)
}

func (s *service) ListExpiredHeld(ctx context.Context, now time.Time, limit int) ([]models.StockReservation, error) {
	return s.repo.ListExpiredHeld(ctx, now, limit)
}

func notFoundOrInternal(err error, entity string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, entity+" not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading "+entity)
}
