package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/orderflowhq/orderflow-backend/api/responses"
	"github.com/orderflowhq/orderflow-backend/api/validators"
	"github.com/orderflowhq/orderflow-backend/internal/inventory"
	"github.com/orderflowhq/orderflow-backend/pkg/db/models"
	"github.com/orderflowhq/orderflow-backend/pkg/enums"
	pkgerrors "github.com/orderflowhq/orderflow-backend/pkg/errors"
	"github.com/orderflowhq/orderflow-backend/pkg/logger"
)

type createInventoryRequest struct {
	SKU            string `json:"sku" validate:"required,max=64"`
	InitialStock   int    `json:"initial_stock" validate:"gte=0"`
	UnitPriceCents int    `json:"unit_price_cents" validate:"gte=0"`
}

type adjustStockRequest struct {
	ChangeType  string `json:"change_type" validate:"required,oneof=increase decrease"`
	Amount      int    `json:"amount" validate:"required,gt=0"`
	Description string `json:"description" validate:"max=500"`
}

type inventoryItemResponse struct {
	ID             uuid.UUID `json:"id"`
	SKU            string    `json:"sku"`
	PhysicalStock  int       `json:"physical_stock"`
	UnitPriceCents int       `json:"unit_price_cents"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type stockHistoryResponse struct {
	ID          uuid.UUID `json:"id"`
	ChangeType  string    `json:"change_type"`
	Amount      int       `json:"amount"`
	StockAfter  int       `json:"stock_after"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func newInventoryItemResponse(item *models.InventoryItem) inventoryItemResponse {
	return inventoryItemResponse{
		ID:             item.ID,
		SKU:            item.SKU,
		PhysicalStock:  item.PhysicalStock,
		UnitPriceCents: item.UnitPriceCents,
		UpdatedAt:      item.UpdatedAt,
	}
}

// CreateInventoryItem registers a new SKU with its opening stock.
func CreateInventoryItem(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		var payload createInventoryRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item, err := svc.CreateItem(r.Context(), inventory.CreateItemInput{
			SKU:            payload.SKU,
			InitialStock:   payload.InitialStock,
			UnitPriceCents: payload.UnitPriceCents,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newInventoryItemResponse(item))
	}
}

// GetStock returns the available/held/total breakdown for one item.
func GetStock(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		inventoryID, err := validators.ParseURLUUID(r, "inventoryID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		breakdown, err := svc.GetStock(r.Context(), inventoryID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, breakdown)
	}
}

// GetStockBySKU is the SKU-keyed variant of GetStock.
func GetStockBySKU(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		sku := strings.TrimSpace(chi.URLParam(r, "sku"))
		if sku == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "sku is required"))
			return
		}

		breakdown, err := svc.GetStockBySKU(r.Context(), sku)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, breakdown)
	}
}

// AdjustStock applies a manual correction and records it in the audit trail.
func AdjustStock(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		inventoryID, err := validators.ParseURLUUID(r, "inventoryID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload adjustStockRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item, err := svc.AdjustStock(r.Context(), inventory.AdjustStockInput{
			InventoryID: inventoryID,
			ChangeType:  enums.StockChangeType(payload.ChangeType),
			Amount:      payload.Amount,
			Description: payload.Description,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newInventoryItemResponse(item))
	}
}

// ListStockHistory returns the manual adjustment audit trail for one item.
func ListStockHistory(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		inventoryID, err := validators.ParseURLUUID(r, "inventoryID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		history, err := svc.ListHistory(r.Context(), inventoryID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entries := make([]stockHistoryResponse, 0, len(history))
		for _, record := range history {
			entries = append(entries, stockHistoryResponse{
				ID:          record.ID,
				ChangeType:  string(record.ChangeType),
				Amount:      record.Amount,
				StockAfter:  record.StockAfter,
				Description: record.Description,
				CreatedAt:   record.CreatedAt,
			})
		}

		responses.WriteSuccess(w, entries)
	}
}
