package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/failure"
)

var ErrNotFound = failure.New(failure.CodeNotFound, "Notification not found")

// Notification is an entry in the back-office feed. It is never deleted.
type Notification struct {
	ID        string
	OrderID   string
	Message   string
	Read      bool
	CreatedAt time.Time
}

// ForOrderCreated builds the unread feed entry for a freshly created order.
func ForOrderCreated(id, orderID, productName string) *Notification {
	if productName == "" {
		productName = "an item"
	}
	return &Notification{
		ID:        id,
		OrderID:   orderID,
		Message:   fmt.Sprintf("New order #%s created for %s", orderID, productName),
		CreatedAt: time.Now().UTC(),
	}
}

// MarkRead reports whether the notification changed.
func (n *Notification) MarkRead() bool {
	if n.Read {
		return false
	}
	n.Read = true
	return true
}

func (n *Notification) Clone() *Notification {
	if n == nil {
		return nil
	}
	clone := *n
	return &clone
}

type Repository interface {
	Insert(ctx context.Context, n *Notification) error
	Get(ctx context.Context, id string) (*Notification, error)
	Update(ctx context.Context, n *Notification) error
	// List returns unread entries first, newest first within each group.
	List(ctx context.Context) ([]*Notification, error)
	// MarkAllRead returns the number of entries that changed.
	MarkAllRead(ctx context.Context) (int, error)
}
