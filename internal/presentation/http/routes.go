package httppresentation

import (
	"net/http"
	"time"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application/cart"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/customer"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/failure"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/notification"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type orderResponse struct {
	ID          string          `json:"id"`
	CustomerID  string          `json:"customer_id"`
	ProductID   string          `json:"product_id"`
	MerchantID  string          `json:"merchant_id"`
	ProductName string          `json:"product_name"`
	Count       int             `json:"count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Paid        bool            `json:"paid"`
	Status      order.Status    `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func toOrderResponse(o *order.Order) orderResponse {
	return orderResponse{
		ID:          o.ID,
		CustomerID:  o.CustomerID,
		ProductID:   o.ProductID,
		MerchantID:  o.MerchantID,
		ProductName: o.ProductName,
		Count:       o.Count,
		TotalAmount: o.TotalAmount,
		Paid:        o.Paid,
		Status:      o.Status,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
}

func toOrderResponses(orders []*order.Order) []orderResponse {
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	return out
}

type checkoutResponse struct {
	Orders   []orderResponse `json:"orders"`
	Replayed bool            `json:"replayed"`
}

func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	id, err := customerID(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	res, err := h.svc.Orders.CreateOrdersFromCart(r.Context(), id, r.Header.Get(headerIdempotencyKey))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	status := http.StatusCreated
	if res.Replayed || len(res.Orders) == 0 {
		status = http.StatusOK
	}
	writeJSON(w, status, checkoutResponse{Orders: toOrderResponses(res.Orders), Replayed: res.Replayed})
}

func (h *Handler) handleListCustomerOrders(w http.ResponseWriter, r *http.Request) {
	id, err := customerID(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	orders, err := h.svc.Orders.ListForCustomer(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponses(orders))
}

func (h *Handler) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := customerID(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	o, err := h.svc.Orders.CancelOrder(r.Context(), id, chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) handleListMerchantOrders(w http.ResponseWriter, r *http.Request) {
	id, err := merchantID(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	orders, err := h.svc.Orders.ListForMerchant(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponses(orders))
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) handleUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := merchantID(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	var req updateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	o, err := h.svc.Orders.UpdateOrderStatus(r.Context(), id, chi.URLParam(r, "id"), req.Status)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type cartItemResponse struct {
	ID          string          `json:"id"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Count       int             `json:"count"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

func toCartItem(v cart.ItemView) cartItemResponse {
	return cartItemResponse{
		ID:          v.ID,
		ProductID:   v.ProductID,
		ProductName: v.ProductName,
		UnitPrice:   v.UnitPrice,
		Count:       v.Count,
		LineTotal:   v.LineTotal,
	}
}

type cartResponse struct {
	CartID string             `json:"cart_id,omitempty"`
	Items  []cartItemResponse `json:"items"`
	Total  decimal.Decimal    `json:"total"`
}

func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	id, err := customerID(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	view, err := h.svc.Carts.GetCart(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	resp := cartResponse{CartID: view.CartID, Items: make([]cartItemResponse, 0, len(view.Items)), Total: view.Total}
	for _, item := range view.Items {
		resp.Items = append(resp.Items, toCartItem(item))
	}
	writeJSON(w, http.StatusOK, resp)
}

type addCartItemRequest struct {
	ProductID string `json:"product_id"`
	Count     int    `json:"count"`
}

func (h *Handler) handleAddCartItem(w http.ResponseWriter, r *http.Request) {
	id, err := customerID(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	var req addCartItemRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if req.ProductID == "" {
		h.writeDomainError(w, r, failure.New(failure.CodeInvalidArgument, "product_id is required"))
		return
	}
	item, err := h.svc.Carts.AddToCart(r.Context(), id, req.ProductID, req.Count)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCartItem(*item))
}

func (h *Handler) handleRemoveCartItem(w http.ResponseWriter, r *http.Request) {
	id, err := customerID(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if err := h.svc.Carts.RemoveItem(r.Context(), id, chi.URLParam(r, "id")); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type profileResponse struct {
	ID      string          `json:"id"`
	UserID  string          `json:"user_id"`
	Balance decimal.Decimal `json:"balance"`
}

func toProfile(c *customer.Customer) profileResponse {
	return profileResponse{ID: c.ID, UserID: c.UserID, Balance: c.Balance}
}

func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	id, err := customerID(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	c, err := h.svc.Balances.Get(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfile(c))
}

type topUpRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (h *Handler) handleTopUp(w http.ResponseWriter, r *http.Request) {
	id, err := customerID(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	var req topUpRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	c, err := h.svc.Balances.Credit(r.Context(), id, req.Amount)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfile(c))
}

type notificationResponse struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id,omitempty"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *Handler) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Notifications.List(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out := make([]notificationResponse, 0, len(list))
	for _, n := range list {
		out = append(out, toNotification(n))
	}
	writeJSON(w, http.StatusOK, out)
}

func toNotification(n *notification.Notification) notificationResponse {
	return notificationResponse{ID: n.ID, OrderID: n.OrderID, Message: n.Message, Read: n.Read, CreatedAt: n.CreatedAt}
}

func (h *Handler) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Notifications.MarkRead(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type markAllReadResponse struct {
	Updated int `json:"updated"`
}

func (h *Handler) handleMarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Notifications.MarkAllRead(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, markAllReadResponse{Updated: n})
}
