package order

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/failure"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound               = failure.New(failure.CodeNotFound, "Order not found")
	ErrForbidden              = failure.New(failure.CodeForbidden, "You cannot update this order")
	ErrInvalidQuantity        = failure.New(failure.CodeInvalidArgument, "order: quantity must be greater than zero")
	ErrInvalidAmount          = failure.New(failure.CodeInvalidArgument, "order: amount must be zero or greater")
	ErrInvalidStatus          = failure.New(failure.CodeInvalidArgument, "order: unknown status")
	ErrInvalidStateTransition = failure.New(failure.CodeInvalidTransition, "order: invalid state transition")
	ErrConflict               = errors.New("order: conflict")
)

type Status string

const (
	StatusCreated          Status = "CREATED"
	StatusPaidFromBalance  Status = "PAID_FROM_BALANCE"
	StatusAccepted         Status = "ACCEPTED"
	StatusDelivered        Status = "DELIVERED"
	StatusRejectByCustomer Status = "REJECT_BY_CUSTOMER"
	StatusRejectByMerchant Status = "REJECT_BY_MERCHANT"
)

// ParseStatus accepts the canonical upper-case names, case-insensitively.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case StatusCreated, StatusPaidFromBalance, StatusAccepted, StatusDelivered,
		StatusRejectByCustomer, StatusRejectByMerchant:
		return st, nil
	}
	return "", failure.Newf(failure.CodeInvalidArgument, "order: unknown status %q", s)
}

func (s Status) Terminal() bool {
	switch s {
	case StatusDelivered, StatusRejectByCustomer, StatusRejectByMerchant:
		return true
	}
	return false
}

// Line is the cart snapshot an order is created from.
type Line struct {
	ProductID   string
	MerchantID  string
	ProductName string
	Count       int
	Total       decimal.Decimal
}

// Order is immutable after creation except for Status and UpdatedAt.
type Order struct {
	ID             string
	CustomerID     string
	ProductID      string
	MerchantID     string
	ProductName    string
	Count          int
	TotalAmount    decimal.Decimal
	Paid           bool
	IdempotencyKey string
	Status         Status
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewPaidFromBalance builds an order whose total has already been debited
// from the customer's balance.
func NewPaidFromBalance(id, customerID string, line Line, idempotencyKey string) (*Order, error) {
	if line.Count <= 0 {
		return nil, ErrInvalidQuantity
	}
	if line.Total.IsNegative() {
		return nil, ErrInvalidAmount
	}

	now := time.Now().UTC()
	return &Order{
		ID:             id,
		CustomerID:     customerID,
		ProductID:      line.ProductID,
		MerchantID:     line.MerchantID,
		ProductName:    line.ProductName,
		Count:          line.Count,
		TotalAmount:    line.Total.Round(2),
		Paid:           true,
		IdempotencyKey: idempotencyKey,
		Status:         StatusPaidFromBalance,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Accept moves an open order to ACCEPTED.
func (o *Order) Accept() error {
	return o.apply(func(s OrderState) (OrderState, error) { return s.OnAccept(o) })
}

// Deliver moves an accepted order to DELIVERED.
func (o *Order) Deliver() error {
	return o.apply(func(s OrderState) (OrderState, error) { return s.OnDeliver(o) })
}

// RejectByMerchant moves a non-terminal order to REJECT_BY_MERCHANT.
func (o *Order) RejectByMerchant() error {
	return o.apply(func(s OrderState) (OrderState, error) { return s.OnRejectByMerchant(o) })
}

// RejectByCustomer moves a non-terminal order to REJECT_BY_CUSTOMER.
func (o *Order) RejectByCustomer() error {
	return o.apply(func(s OrderState) (OrderState, error) { return s.OnRejectByCustomer(o) })
}

// TransitionTo dispatches a merchant-requested status to the matching event.
func (o *Order) TransitionTo(target Status) error {
	switch target {
	case StatusAccepted:
		return o.Accept()
	case StatusDelivered:
		return o.Deliver()
	case StatusRejectByMerchant:
		return o.RejectByMerchant()
	case StatusRejectByCustomer:
		return o.RejectByCustomer()
	default:
		return failure.Newf(failure.CodeInvalidTransition, "order: cannot move %s to %s", o.Status, target)
	}
}

// Refundable reports whether rejecting the order must credit the customer.
func (o *Order) Refundable() bool {
	return o.Paid && o.TotalAmount.IsPositive()
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	return &clone
}

func (o *Order) apply(event func(OrderState) (OrderState, error)) error {
	current, err := stateFor(o.Status)
	if err != nil {
		return err
	}
	next, err := event(current)
	if err != nil {
		return err
	}
	if next.Status() != o.Status {
		o.Status = next.Status()
		o.touch()
	}
	return nil
}

func (o *Order) touch() {
	o.UpdatedAt = time.Now().UTC()
}

func stateFor(s Status) (OrderState, error) {
	switch s {
	case StatusCreated, StatusPaidFromBalance:
		return openState{status: s}, nil
	case StatusAccepted:
		return acceptedState{}, nil
	case StatusDelivered, StatusRejectByCustomer, StatusRejectByMerchant:
		return terminalState{status: s}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}
