package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/orderflowhq/orderflow-backend/internal/reservation"
	pkgerrors "github.com/orderflowhq/orderflow-backend/pkg/errors"
	"github.com/orderflowhq/orderflow-backend/pkg/logger"
)

const reaperBatchSize = 200

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ReservationReaperJobParams configure the expired-hold sweep.
type ReservationReaperJobParams struct {
	Logger       *logger.Logger
	DB           txRunner
	Reservations reservation.Service
	BatchSize    int
}

// NewReservationReaperJob builds the job that returns expired holds to stock.
func NewReservationReaperJob(params ReservationReaperJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Reservations == nil {
		return nil, fmt.Errorf("reservation service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = reaperBatchSize
	}
	return &reservationReaperJob{
		logg:         params.Logger,
		db:           params.DB,
		reservations: params.Reservations,
		batchSize:    batch,
		now:          time.Now,
	}, nil
}

type reservationReaperJob struct {
	logg         *logger.Logger
	db           txRunner
	reservations reservation.Service
	batchSize    int
	now          func() time.Time
}

func (j *reservationReaperJob) Name() string { return "reservation-reaper" }

// Run releases every hold whose deadline passed. Each hold gets its own
// transaction so one poisoned row cannot block the rest of the sweep, and a
// hold that a payment confirms mid-sweep is simply skipped.
func (j *reservationReaperJob) Run(ctx context.Context) error {
	released := 0
	skipped := 0
	for {
		now := j.now().UTC()
		expired, err := j.reservations.ListExpiredHeld(ctx, now, j.batchSize)
		if err != nil {
			return fmt.Errorf("list expired holds: %w", err)
		}
		if len(expired) == 0 {
			break
		}
		for _, hold := range expired {
			err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
				_, relErr := j.reservations.ReleaseInTx(ctx, tx, hold.ID, now, reservation.TriggerExpiry)
				return relErr
			})
			switch {
			case err == nil:
				released++
			case pkgerrors.HasCode(err, pkgerrors.CodeStateConflict),
				pkgerrors.HasCode(err, pkgerrors.CodeNotFound):
				// confirmed or released by someone else between list and lock
				skipped++
			default:
				return fmt.Errorf("release hold %s: %w", hold.ID, err)
			}
		}
		if len(expired) < j.batchSize {
			break
		}
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"released": released,
		"skipped":  skipped,
	})
	j.logg.Info(logCtx, "expired hold sweep complete")
	return nil
}
