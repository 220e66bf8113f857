package engine

import (
	"anonchat/backend/internal/config"
	"anonchat/backend/internal/models"
	"context"

	"github.com/rs/zerolog/log"
)

func containsPremium(interests []string) bool {
	for _, i := range interests {
		if i == config.PremiumInterest {
			return true
		}
	}
	return false
}

// ApplyReferral links userID to the referrer who invited them and credits
// the referrer ReferralReward. A user is referred at most once.
func (e *Engine) ApplyReferral(ctx context.Context, userID, referrerID string) error {
	var out outbox
	defer e.flush(ctx, &out)

	e.mu.Lock()
	defer e.mu.Unlock()

	if userID == referrerID {
		return ErrSelfReferral
	}
	u, err := e.user(ctx, userID)
	if err != nil {
		return err
	}
	if u.ReferredBy != nil {
		return ErrAlreadyReferred
	}
	ref, err := e.existingUser(ctx, referrerID)
	if err != nil {
		return err
	}

	nu := u.Clone()
	nu.ReferredBy = &referrerID
	nr := ref.Clone()
	nr.ReferralCount++
	nr.Balance += e.policy.ReferralReward
	if err := e.commitAll(ctx, nu, nr); err != nil {
		return err
	}

	log.Info().Str("module", "engine").Str("user_id", userID).Str("referrer_id", referrerID).Msg("referral applied")
	out.add(referrerID, models.Notice{Kind: models.NoticeReferralReward, Amount: e.policy.ReferralReward, Balance: nr.Balance, Count: nr.ReferralCount})
	return nil
}

// AdminCreditBalance adds amount to the user's balance and returns the new
// balance.
func (e *Engine) AdminCreditBalance(ctx context.Context, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	var out outbox
	defer e.flush(ctx, &out)

	e.mu.Lock()
	defer e.mu.Unlock()

	u, err := e.existingUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	next := u.Clone()
	next.Balance += amount
	if err := e.commit(ctx, next); err != nil {
		return u.Balance, err
	}
	out.add(userID, models.Notice{Kind: models.NoticeBalanceCredited, Amount: amount, Balance: next.Balance})
	return next.Balance, nil
}

// AdminDebitBalance takes amount from the user's balance. It never lets the
// balance go negative.
func (e *Engine) AdminDebitBalance(ctx context.Context, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	var out outbox
	defer e.flush(ctx, &out)

	e.mu.Lock()
	defer e.mu.Unlock()

	u, err := e.existingUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if u.Balance < amount {
		return u.Balance, &BalanceError{Required: amount, Balance: u.Balance}
	}
	next := u.Clone()
	next.Balance -= amount
	if err := e.commit(ctx, next); err != nil {
		return u.Balance, err
	}
	out.add(userID, models.Notice{Kind: models.NoticeBalanceDebited, Amount: amount, Balance: next.Balance})
	return next.Balance, nil
}
