package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/failure"
	domain "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/notification"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	notificationService = "notification-service"
	useCaseList         = "notification.list"
	useCaseMarkRead     = "notification.mark_read"
	useCaseMarkAllRead  = "notification.mark_all_read"
)

var ErrRepository = errors.New("notification: repository failure")

// Service reads and acknowledges the back-office notification feed.
type Service struct {
	uow application.UnitOfWork
	ins *application.Instruments
}

func NewService(uow application.UnitOfWork, tel observability.Observability) *Service {
	return &Service{uow: uow, ins: application.NewInstruments(notificationService, tel)}
}

// List returns unread notifications first, newest first within each group.
func (s *Service) List(ctx context.Context) (_ []*domain.Notification, err error) {
	ctx, run := s.ins.Begin(ctx, useCaseList, "ListNotifications")
	defer func() { run.End(err) }()

	out := []*domain.Notification{}
	err = s.uow.Do(ctx, func(ctx context.Context, tx application.Tx) error {
		list, err := tx.Notifications().List(ctx)
		if err != nil {
			return wrapRepositoryError(err)
		}
		out = append(out, list...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	run.Field("notifications", len(out))
	return out, nil
}

// MarkRead flags one notification as read. Marking twice is a no-op.
func (s *Service) MarkRead(ctx context.Context, id string) (err error) {
	ctx, run := s.ins.Begin(ctx, useCaseMarkRead, "MarkRead",
		attribute.String("notification.id", id),
	)
	defer func() { run.End(err) }()

	return s.uow.Do(ctx, func(ctx context.Context, tx application.Tx) error {
		n, err := tx.Notifications().Get(ctx, id)
		if err != nil {
			return wrapRepositoryError(err)
		}
		if !n.MarkRead() {
			run.SetStatus("ALREADY_READ")
			return nil
		}
		return wrapRepositoryError(tx.Notifications().Update(ctx, n))
	})
}

// MarkAllRead returns how many notifications changed.
func (s *Service) MarkAllRead(ctx context.Context) (_ int, err error) {
	ctx, run := s.ins.Begin(ctx, useCaseMarkAllRead, "MarkAllRead")
	defer func() { run.End(err) }()

	var changed int
	err = s.uow.Do(ctx, func(ctx context.Context, tx application.Tx) error {
		n, err := tx.Notifications().MarkAllRead(ctx)
		changed = n
		return wrapRepositoryError(err)
	})
	if err != nil {
		return 0, err
	}
	run.Field("changed", changed)
	return changed, nil
}

func wrapRepositoryError(err error) error {
	if err == nil || failure.CodeOf(err) != "" {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrRepository, err)
}
