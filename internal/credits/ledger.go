// Package credits implements the per-user credit ledger. Every analysis
// submission charges its catalog cost up front; refunds are optional and
// controlled by configuration.
package credits

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

// ErrInsufficient is returned when a debit would take the balance below zero.
var ErrInsufficient = errors.New("insufficient credits")

// Store is the minimal persistence surface the ledger needs. The full
// repository implements it.
type Store interface {
	DeductCredits(ctx context.Context, userID uint, amount int64) error
	AddCredits(ctx context.Context, userID uint, amount int64) error
}

// Ledger charges, refunds and grants credits against the Store.
type Ledger struct {
	store Store
}

func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

// Charge debits amount from the user's balance. The underlying store performs
// the balance check and the decrement atomically; on a short balance it
// returns ErrInsufficient and nothing is written.
func (l *Ledger) Charge(ctx context.Context, userID uint, amount int64) error {
	if l == nil || l.store == nil {
		return errors.New("ledger not initialised")
	}
	if amount < 0 {
		return errors.New("charge amount must not be negative")
	}
	if amount == 0 {
		return nil
	}

	if err := l.store.DeductCredits(ctx, userID, amount); err != nil {
		if errors.Is(err, ErrInsufficient) {
			logrus.WithFields(logrus.Fields{
				"user_id": userID,
				"amount":  amount,
			}).Info("credit charge rejected: insufficient balance")
		}
		return err
	}

	logrus.WithFields(logrus.Fields{
		"user_id": userID,
		"amount":  amount,
	}).Debug("credits charged")
	return nil
}

// Refund returns amount to the user's balance. Used when a paid analysis
// fails and refunds are enabled.
func (l *Ledger) Refund(ctx context.Context, userID uint, amount int64) error {
	if l == nil || l.store == nil {
		return errors.New("ledger not initialised")
	}
	if amount <= 0 {
		return nil
	}

	if err := l.store.AddCredits(ctx, userID, amount); err != nil {
		logrus.WithFields(logrus.Fields{
			"user_id": userID,
			"amount":  amount,
			"error":   err.Error(),
		}).Error("credit refund failed")
		return err
	}

	logrus.WithFields(logrus.Fields{
		"user_id": userID,
		"amount":  amount,
	}).Info("credits refunded")
	return nil
}

// Grant adds credits to a user's balance (signup bonus, admin top-up).
func (l *Ledger) Grant(ctx context.Context, userID uint, amount int64) error {
	if l == nil || l.store == nil {
		return errors.New("ledger not initialised")
	}
	if amount <= 0 {
		return errors.New("grant amount must be positive")
	}
	return l.store.AddCredits(ctx, userID, amount)
}
