package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/orderflowhq/orderflow-backend/api/responses"
	"github.com/orderflowhq/orderflow-backend/api/validators"
	"github.com/orderflowhq/orderflow-backend/internal/checkout"
	"github.com/orderflowhq/orderflow-backend/internal/compensation"
	"github.com/orderflowhq/orderflow-backend/internal/orders"
	"github.com/orderflowhq/orderflow-backend/internal/payment"
	"github.com/orderflowhq/orderflow-backend/internal/reservation"
	"github.com/orderflowhq/orderflow-backend/pkg/db/models"
	pkgerrors "github.com/orderflowhq/orderflow-backend/pkg/errors"
	"github.com/orderflowhq/orderflow-backend/pkg/logger"
)

type checkoutRequest struct {
	UserID         uuid.UUID           `json:"user_id" validate:"required"`
	CouponID       *uuid.UUID          `json:"coupon_id,omitempty"`
	UsePointsCents int                 `json:"use_points_cents" validate:"gte=0"`
	Lines          []checkoutLineEntry `json:"lines" validate:"required,min=1,dive"`
}

type checkoutLineEntry struct {
	InventoryID uuid.UUID `json:"inventory_id" validate:"required"`
	Qty         int       `json:"qty" validate:"required,gt=0"`
}

type integrationFailureRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type orderItemResponse struct {
	ID             uuid.UUID `json:"id"`
	InventoryID    uuid.UUID `json:"inventory_id"`
	ReservationID  uuid.UUID `json:"reservation_id"`
	Qty            int       `json:"qty"`
	UnitPriceCents int       `json:"unit_price_cents"`
	SubtotalCents  int       `json:"subtotal_cents"`
	Status         string    `json:"status"`
}

type orderResponse struct {
	ID               uuid.UUID           `json:"id"`
	OrderNumber      string              `json:"order_number"`
	UserID           uuid.UUID           `json:"user_id"`
	CouponID         *uuid.UUID          `json:"coupon_id,omitempty"`
	TotalAmountCents int                 `json:"total_amount_cents"`
	DiscountCents    int                 `json:"discount_cents"`
	UsedPointsCents  int                 `json:"used_points_cents"`
	FinalAmountCents int                 `json:"final_amount_cents"`
	Status           string              `json:"status"`
	Items            []orderItemResponse `json:"items"`
	ExpiresAt        time.Time           `json:"expires_at"`
	CreatedAt        time.Time           `json:"created_at"`
}

type reservationResponse struct {
	ID          uuid.UUID `json:"id"`
	InventoryID uuid.UUID `json:"inventory_id"`
	OrderID     uuid.UUID `json:"order_id"`
	ReservedQty int       `json:"reserved_qty"`
	Status      string    `json:"status"`
	ReservedAt  time.Time `json:"reserved_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func newOrderResponse(order *models.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			ID:             item.ID,
			InventoryID:    item.InventoryID,
			ReservationID:  item.ReservationID,
			Qty:            item.Qty,
			UnitPriceCents: item.UnitPriceCents,
			SubtotalCents:  item.SubtotalCents,
			Status:         string(item.Status),
		})
	}
	return orderResponse{
		ID:               order.ID,
		OrderNumber:      order.OrderNumber,
		UserID:           order.UserID,
		CouponID:         order.CouponID,
		TotalAmountCents: order.TotalAmountCents,
		DiscountCents:    order.DiscountCents,
		UsedPointsCents:  order.UsedPointsCents,
		FinalAmountCents: order.FinalAmountCents,
		Status:           string(order.Status),
		Items:            items,
		ExpiresAt:        order.ExpiresAt,
		CreatedAt:        order.CreatedAt,
	}
}

func newReservationResponse(row models.StockReservation) reservationResponse {
	return reservationResponse{
		ID:          row.ID,
		InventoryID: row.InventoryID,
		OrderID:     row.OrderID,
		ReservedQty: row.ReservedQty,
		Status:      string(row.Status),
		ReservedAt:  row.ReservedAt,
		ExpiresAt:   row.ExpiresAt,
	}
}

// Checkout creates an order, holding stock for every line in one transaction.
func Checkout(saga *checkout.Saga, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if saga == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout unavailable"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		lines := make([]checkout.Line, 0, len(payload.Lines))
		for _, entry := range payload.Lines {
			lines = append(lines, checkout.Line{InventoryID: entry.InventoryID, Qty: entry.Qty})
		}

		order, err := saga.CreateOrder(r.Context(), checkout.CreateOrderInput{
			UserID:         payload.UserID,
			CouponID:       payload.CouponID,
			UsePointsCents: payload.UsePointsCents,
			Lines:          lines,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newOrderResponse(order))
	}
}

// OrderDetail returns one order with its lines.
func OrderDetail(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := validators.ParseURLUUID(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

// ListOrders returns a user's orders, newest first.
func ListOrders(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		rawUserID := r.URL.Query().Get("user_id")
		userID, err := uuid.Parse(rawUserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeValidation, "user_id query parameter must be a uuid"))
			return
		}

		list, err := svc.ListByUser(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]orderResponse, 0, len(list))
		for i := range list {
			out = append(out, newOrderResponse(&list[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

// PayOrder settles a pending order, confirming every held reservation.
func PayOrder(svc payment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		orderID, err := validators.ParseURLUUID(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Pay(r.Context(), payment.PayInput{OrderID: orderID})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

// CancelOrder undoes a pending order and returns its stock.
func CancelOrder(coord *compensation.Coordinator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if coord == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "compensation unavailable"))
			return
		}

		orderID, err := validators.ParseURLUUID(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := coord.Cancel(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

// ReportIntegrationFailure records a downstream failure for an order and
// queues the event that triggers compensation.
func ReportIntegrationFailure(svc payment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		orderID, err := validators.ParseURLUUID(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload integrationFailureRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.ReportIntegrationFailure(r.Context(), orderID, payload.Reason); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]string{"status": "reported"})
	}
}

// OrderReservations lists the stock holds taken for one order.
func OrderReservations(svc reservation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reservation service unavailable"))
			return
		}

		orderID, err := validators.ParseURLUUID(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.ListByOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]reservationResponse, 0, len(rows))
		for _, row := range rows {
			out = append(out, newReservationResponse(row))
		}
		responses.WriteSuccess(w, out)
	}
}

// GetReservation returns one reservation by id.
func GetReservation(svc reservation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reservation service unavailable"))
			return
		}

		reservationID, err := validators.ParseURLUUID(r, "reservationID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		row, err := svc.Get(r.Context(), reservationID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newReservationResponse(*row))
	}
}
