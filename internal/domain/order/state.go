package order

import "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/failure"

// OrderState implements the state pattern for order lifecycle transitions.
type OrderState interface {
	Status() Status
	OnAccept(o *Order) (OrderState, error)
	OnDeliver(o *Order) (OrderState, error)
	OnRejectByMerchant(o *Order) (OrderState, error)
	OnRejectByCustomer(o *Order) (OrderState, error)
}

// openState covers CREATED and PAID_FROM_BALANCE.
type openState struct{ status Status }

func (s openState) Status() Status { return s.status }

func (openState) OnAccept(*Order) (OrderState, error) {
	return acceptedState{}, nil
}

func (s openState) OnDeliver(*Order) (OrderState, error) {
	return nil, failure.Newf(failure.CodeInvalidTransition, "Order must be accepted before delivery (current status %s)", s.status)
}

func (openState) OnRejectByMerchant(*Order) (OrderState, error) {
	return terminalState{status: StatusRejectByMerchant}, nil
}

func (openState) OnRejectByCustomer(*Order) (OrderState, error) {
	return terminalState{status: StatusRejectByCustomer}, nil
}

type acceptedState struct{}

func (acceptedState) Status() Status { return StatusAccepted }

func (acceptedState) OnAccept(*Order) (OrderState, error) {
	return nil, failure.New(failure.CodeInvalidTransition, "Order is already accepted")
}

func (acceptedState) OnDeliver(*Order) (OrderState, error) {
	return terminalState{status: StatusDelivered}, nil
}

func (acceptedState) OnRejectByMerchant(*Order) (OrderState, error) {
	return terminalState{status: StatusRejectByMerchant}, nil
}

func (acceptedState) OnRejectByCustomer(*Order) (OrderState, error) {
	return terminalState{status: StatusRejectByCustomer}, nil
}

// terminalState rejects every event; no compensation may be applied twice.
type terminalState struct{ status Status }

func (s terminalState) Status() Status { return s.status }

func (s terminalState) OnAccept(*Order) (OrderState, error) { return nil, s.closed() }

func (s terminalState) OnDeliver(*Order) (OrderState, error) { return nil, s.closed() }

func (s terminalState) OnRejectByMerchant(*Order) (OrderState, error) { return nil, s.closed() }

func (s terminalState) OnRejectByCustomer(*Order) (OrderState, error) { return nil, s.closed() }

func (s terminalState) closed() error {
	switch s.status {
	case StatusRejectByMerchant:
		return failure.New(failure.CodeInvalidTransition, "This order is already rejected by merchant")
	case StatusRejectByCustomer:
		return failure.New(failure.CodeInvalidTransition, "This order is already cancelled by customer")
	default:
		return failure.New(failure.CodeInvalidTransition, "Delivered orders cannot be changed")
	}
}
