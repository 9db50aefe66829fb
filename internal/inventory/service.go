package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/orderflowhq/orderflow-backend/pkg/db/models"
	"github.com/orderflowhq/orderflow-backend/pkg/enums"
	pkgerrors "github.com/orderflowhq/orderflow-backend/pkg/errors"
	"github.com/orderflowhq/orderflow-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// StockBreakdown is the read model returned by stock queries. Available is
// the stock a new reservation can still claim; Total adds back what active
// holds have already taken.
type StockBreakdown struct {
	InventoryID uuid.UUID `json:"inventory_id"`
	SKU         string    `json:"sku"`
	Available   int       `json:"available"`
	Held        int       `json:"held"`
	Total       int       `json:"total"`
	SoldOut     bool      `json:"sold_out"`
}

// AdjustStockInput describes a manual stock correction.
type AdjustStockInput struct {
	InventoryID uuid.UUID
	ChangeType  enums.StockChangeType
	Amount      int
	Description string
}

// CreateItemInput registers a new SKU.
type CreateItemInput struct {
	SKU            string
	InitialStock   int
	UnitPriceCents int
}

// Service exposes inventory reads and manual adjustments. Reservation-driven
// stock movement lives in the reservation service, not here.
type Service interface {
	CreateItem(ctx context.Context, input CreateItemInput) (*models.InventoryItem, error)
	GetStock(ctx context.Context, inventoryID uuid.UUID) (*StockBreakdown, error)
	GetStockBySKU(ctx context.Context, sku string) (*StockBreakdown, error)
	AdjustStock(ctx context.Context, input AdjustStockInput) (*models.InventoryItem, error)
	ListHistory(ctx context.Context, inventoryID uuid.UUID) ([]models.StockHistory, error)
}

type service struct {
	repo Repository
	tx   txRunner
	logg *logger.Logger
}

// NewService wires the inventory service.
func NewService(repo Repository, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, tx: tx, logg: logg}, nil
}

func (s *service) CreateItem(ctx context.Context, input CreateItemInput) (*models.InventoryItem, error) {
	if input.SKU == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sku is required")
	}
	if input.InitialStock < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "initial stock must not be negative")
	}
	if input.UnitPriceCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unit price must not be negative")
	}

	item := &models.InventoryItem{
		ID:             uuid.New(),
		SKU:            input.SKU,
		PhysicalStock:  input.InitialStock,
		UnitPriceCents: input.UnitPriceCents,
	}
	if err := s.repo.Create(ctx, item); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating inventory item")
	}
	return item, nil
}

func (s *service) GetStock(ctx context.Context, inventoryID uuid.UUID) (*StockBreakdown, error) {
	if inventoryID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "inventory id is required")
	}
	item, err := s.repo.FindByID(ctx, inventoryID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "inventory item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading inventory item")
	}
	return s.breakdown(ctx, item)
}

func (s *service) GetStockBySKU(ctx context.Context, sku string) (*StockBreakdown, error) {
	if sku == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sku is required")
	}
	item, err := s.repo.FindBySKU(ctx, sku)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "inventory item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading inventory item")
	}
	return s.breakdown(ctx, item)
}

func (s *service) breakdown(ctx context.Context, item *models.InventoryItem) (*StockBreakdown, error) {
	held, err := s.repo.HeldQty(ctx, item.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "summing held reservations")
	}
	return &StockBreakdown{
		InventoryID: item.ID,
		SKU:         item.SKU,
		Available:   item.PhysicalStock,
		Held:        held,
		Total:       item.PhysicalStock + held,
		SoldOut:     item.PhysicalStock == 0,
	}, nil
}

// AdjustStock applies a manual correction and records it in the audit trail.
// Decreases use the same conditional primitive as reservations, so an
// adjustment can never push stock negative.
func (s *service) AdjustStock(ctx context.Context, input AdjustStockInput) (*models.InventoryItem, error) {
	if input.InventoryID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "inventory id is required")
	}
	if !input.ChangeType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid change type %q", input.ChangeType))
	}
	if input.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	var adjusted *models.InventoryItem
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		switch input.ChangeType {
		case enums.StockChangeIncrease:
			if err := repo.Increment(ctx, input.InventoryID, input.Amount); err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return pkgerrors.New(pkgerrors.CodeNotFound, "inventory item not found")
				}
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "incrementing stock")
			}
		case enums.StockChangeDecrease:
			ok, err := repo.DecrementIfAvailable(ctx, input.InventoryID, input.Amount)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decrementing stock")
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeInsufficientStock, "not enough stock for adjustment")
			}
		}

		item, err := repo.FindByID(ctx, input.InventoryID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "inventory item not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reloading inventory item")
		}

		record := &models.StockHistory{
			InventoryID: input.InventoryID,
			ChangeType:  input.ChangeType,
			Amount:      input.Amount,
			StockAfter:  item.PhysicalStock,
			Description: input.Description,
		}
		if err := repo.CreateHistory(ctx, record); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "recording stock history")
		}

		adjusted = item
		return nil
	})
	if err != nil {
		return nil, err
	}

	lctx := s.logg.WithInventoryID(ctx, input.InventoryID.String())
	s.logg.Info(s.logg.WithFields(lctx, map[string]any{
		"change_type": input.ChangeType,
		"amount":      input.Amount,
		"stock_after": adjusted.PhysicalStock,
	}), "stock adjusted")

	return adjusted, nil
}

func (s *service) ListHistory(ctx context.Context, inventoryID uuid.UUID) ([]models.StockHistory, error) {
	if inventoryID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "inventory id is required")
	}
	return s.repo.ListHistory(ctx, inventoryID)
}
