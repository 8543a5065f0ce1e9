package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/hemenye/internal/domain/auth"
)

// Transition is the outcome of ChangeStatus.
type Transition struct {
	From Status
	To   Status
	// Change is the recorded history entry, nil for a no-op.
	Change *StatusChange
}

// Changed reports whether the status actually moved.
func (t *Transition) Changed() bool {
	return t.Change != nil
}

// ChangeStatus moves order id to target on behalf of actor. The order row is
// locked for the duration, so concurrent requests serialize and each
// validates against the status the previous one committed.
//
// Authorization runs before the target is parsed or validated. Requesting
// the current status succeeds without writing history.
func (s *Service) ChangeStatus(ctx context.Context, actor auth.Actor, id int64, target string) (_ *Transition, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.ChangeStatus", trace.WithAttributes(
		attribute.Int64("order.id", id),
		attribute.String("order.target_status", target),
	))
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	var (
		tr     Transition
		locked *Order
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		if err := auth.Authorize(actor, auth.ActionChangeStatus, resourceOf(o)); err != nil {
			return err
		}

		to := Status(target)
		if err := ValidateTransition(o.Status, to); err != nil {
			return err
		}
		tr, locked = Transition{From: o.Status, To: to}, o
		if o.Status == to {
			return nil
		}

		if err := tx.SetStatus(ctx, id, to); err != nil {
			return errors.Wrap(err, "set status")
		}
		change := &StatusChange{
			OrderID:   id,
			OldStatus: o.Status,
			NewStatus: to,
			ChangedAt: s.now().UTC(),
			ChangedBy: actor.UserID,
		}
		if err := tx.AppendStatusChange(ctx, change); err != nil {
			return errors.Wrap(err, "append status history")
		}
		tr.Change = change
		return nil
	})
	if err != nil {
		return nil, err
	}

	if tr.Changed() {
		s.metrics.statusChanged(ctx, tr.To)
		zctx.From(ctx).Info("Order status changed",
			zap.Int64("order_id", id),
			zap.String("from", string(tr.From)),
			zap.String("to", string(tr.To)),
			zap.Int64("changed_by", actor.UserID),
		)
		s.publish(ctx, Event{
			Kind:         EventStatusChanged,
			OrderID:      id,
			UserID:       locked.UserID,
			RestaurantID: locked.RestaurantID,
			From:         tr.From,
			To:           tr.To,
			FinalAmount:  locked.FinalAmount,
			ActorID:      actor.UserID,
			At:           tr.Change.ChangedAt,
		})
	}
	return &tr, nil
}

func resourceOf(o *Order) auth.Resource {
	return auth.Resource{CustomerID: o.UserID, RestaurantOwnerID: o.RestaurantOwnerID}
}
