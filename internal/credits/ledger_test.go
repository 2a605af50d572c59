package credits

import (
	"context"
	"errors"
	"testing"
)

type fakeStore struct {
	balance   int64
	deductErr error
	addErr    error
	deducts   []int64
	adds      []int64
}

func (s *fakeStore) DeductCredits(_ context.Context, _ uint, amount int64) error {
	if s.deductErr != nil {
		return s.deductErr
	}
	if s.balance < amount {
		return ErrInsufficient
	}
	s.balance -= amount
	s.deducts = append(s.deducts, amount)
	return nil
}

func (s *fakeStore) AddCredits(_ context.Context, _ uint, amount int64) error {
	if s.addErr != nil {
		return s.addErr
	}
	s.balance += amount
	s.adds = append(s.adds, amount)
	return nil
}

func TestChargeDeductsBalance(t *testing.T) {
	store := &fakeStore{balance: 100}
	ledger := NewLedger(store)

	if err := ledger.Charge(context.Background(), 1, 30); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.balance != 70 {
		t.Fatalf("expected balance 70, got %d", store.balance)
	}
}

func TestChargeInsufficientBalance(t *testing.T) {
	store := &fakeStore{balance: 10}
	ledger := NewLedger(store)

	err := ledger.Charge(context.Background(), 1, 30)
	if !errors.Is(err, ErrInsufficient) {
		t.Fatalf("expected ErrInsufficient, got %v", err)
	}
	if store.balance != 10 {
		t.Fatalf("balance must be untouched on rejection, got %d", store.balance)
	}
}

func TestChargeZeroIsNoop(t *testing.T) {
	store := &fakeStore{balance: 5}
	ledger := NewLedger(store)

	if err := ledger.Charge(context.Background(), 1, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.deducts) != 0 {
		t.Fatal("zero charge must not hit the store")
	}
}

func TestChargeRejectsNegativeAmount(t *testing.T) {
	ledger := NewLedger(&fakeStore{})
	if err := ledger.Charge(context.Background(), 1, -5); err == nil {
		t.Fatal("expected error for negative amount")
	}
}

func TestRefundAddsBalance(t *testing.T) {
	store := &fakeStore{balance: 0}
	ledger := NewLedger(store)

	if err := ledger.Refund(context.Background(), 1, 25); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.balance != 25 {
		t.Fatalf("expected balance 25, got %d", store.balance)
	}
}

func TestRefundZeroIsNoop(t *testing.T) {
	store := &fakeStore{}
	ledger := NewLedger(store)

	if err := ledger.Refund(context.Background(), 1, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.adds) != 0 {
		t.Fatal("zero refund must not hit the store")
	}
}

func TestGrantRequiresPositiveAmount(t *testing.T) {
	ledger := NewLedger(&fakeStore{})
	if err := ledger.Grant(context.Background(), 1, 0); err == nil {
		t.Fatal("expected error for zero grant")
	}
	if err := ledger.Grant(context.Background(), 1, -1); err == nil {
		t.Fatal("expected error for negative grant")
	}
}
