package order

import (
	"context"
	"strings"

	"github.com/go-faster/errors"

	"github.com/xenking/hemenye/internal/domain/auth"
)

const maxCommentLen = 2000

// Review records actor's rating of their delivered order. Each order can be
// reviewed once.
func (s *Service) Review(ctx context.Context, actor auth.Actor, orderID int64, rating int, comment string) (*Review, error) {
	var r *Review
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if err := auth.Authorize(actor, auth.ActionReviewOrder, resourceOf(o)); err != nil {
			return err
		}
		if o.Status != StatusDelivered {
			return ErrNotReviewable
		}
		if rating < 1 || rating > 5 {
			return ErrInvalidRating
		}

		exists, err := tx.ReviewExists(ctx, orderID)
		if err != nil {
			return errors.Wrap(err, "check review")
		}
		if exists {
			return ErrAlreadyReviewed
		}

		comment = strings.TrimSpace(comment)
		if runes := []rune(comment); len(runes) > maxCommentLen {
			comment = string(runes[:maxCommentLen])
		}
		r = &Review{
			OrderID:      orderID,
			UserID:       actor.UserID,
			RestaurantID: o.RestaurantID,
			Rating:       rating,
			Comment:      comment,
			CreatedAt:    s.now().UTC(),
		}
		if err := tx.CreateReview(ctx, r); err != nil {
			return errors.Wrap(err, "create review")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}
