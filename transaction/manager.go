package transaction

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// epsilon absorbs float accumulation noise when comparing refund
// totals against the charged amount.
const epsilon = 0.005

// Store persists transactions and their refund legs.
type Store interface {
	SaveTransaction(txn *Transaction) error
	UpdateTransaction(txn *Transaction) error
	GetTransaction(id string) (*Transaction, error)
	GetTransactionByOrderID(orderID string) (*Transaction, error)
	SaveRefund(refund *Refund) error
	RefundsForTransaction(txnID string) ([]Refund, error)
}

// Manager serializes lifecycle mutations per transaction and enforces
// the state machine and refund accounting on top of a Store.
type Manager struct {
	store Store
	locks sync.Map // transaction ID -> *sync.Mutex
}

// NewManager builds a manager over the given store.
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

func (m *Manager) lockFor(id string) *sync.Mutex {
	mu, _ := m.locks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Create persists a new draft transaction.
func (m *Manager) Create(txn *Transaction) error {
	return m.store.SaveTransaction(txn)
}

// Get loads a transaction by ID.
func (m *Manager) Get(id string) (*Transaction, error) {
	return m.store.GetTransaction(id)
}

// GetByOrderID loads a transaction by its merchant order ID.
func (m *Manager) GetByOrderID(orderID string) (*Transaction, error) {
	return m.store.GetTransactionByOrderID(orderID)
}

// Mutate runs fn with the transaction's lock held, loading the current
// row first and persisting it after fn returns nil. Concurrent calls
// for the same transaction run one at a time; a callback replay and a
// refund can never interleave on the same row.
func (m *Manager) Mutate(id string, fn func(txn *Transaction) error) (*Transaction, error) {
	mu := m.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	txn, err := m.store.GetTransaction(id)
	if err != nil {
		return nil, err
	}
	if err := fn(txn); err != nil {
		return nil, err
	}
	txn.UpdatedAt = time.Now().UTC()
	if err := m.store.UpdateTransaction(txn); err != nil {
		return nil, err
	}
	return txn, nil
}

// Transition moves a transaction to a new state under its lock.
func (m *Manager) Transition(id string, to State) (*Transaction, error) {
	return m.Mutate(id, func(txn *Transaction) error {
		return applyTransition(txn, to)
	})
}

func applyTransition(txn *Transaction, to State) error {
	if !CanTransition(txn.State, to) {
		return &StateError{TransactionID: txn.ID, From: txn.State, To: to}
	}
	txn.State = to
	return nil
}

// CheckRefundable validates a refund amount against the transaction's
// state and remaining balance without mutating anything. Callers run
// this before talking to the bank so an over-refund never leaves the
// process.
func CheckRefundable(txn *Transaction, amount float64) error {
	if txn.State != StateSuccess && txn.State != StatePartialRefund {
		return &StateError{
			TransactionID: txn.ID,
			From:          txn.State,
			Reason:        fmt.Sprintf("refund not allowed from state %s", txn.State),
		}
	}
	if amount <= 0 {
		return &StateError{TransactionID: txn.ID, Reason: "refund amount must be positive"}
	}
	if amount > txn.RemainingRefundable()+epsilon {
		return &StateError{
			TransactionID: txn.ID,
			Reason: fmt.Sprintf("refund %.2f exceeds remaining refundable %.2f",
				amount, txn.RemainingRefundable()),
		}
	}
	return nil
}

// ApplyRefund books a confirmed refund amount onto a transaction the
// caller already holds inside a Mutate closure: the accumulated amount
// grows, and the state lands on refunded or partial_refund depending
// on whether the balance is exhausted.
func ApplyRefund(txn *Transaction, amount float64) error {
	if err := CheckRefundable(txn, amount); err != nil {
		return err
	}
	txn.RefundedAmount += amount
	next := StatePartialRefund
	if txn.RemainingRefundable() <= epsilon {
		txn.RefundedAmount = txn.Amount
		next = StateRefunded
	}
	return applyTransition(txn, next)
}

// RecordRefund books a confirmed refund leg under the transaction's
// lock and persists the refund row.
func (m *Manager) RecordRefund(id string, amount float64, hostRefNum string) (*Transaction, error) {
	txn, err := m.Mutate(id, func(txn *Transaction) error {
		return ApplyRefund(txn, amount)
	})
	if err != nil {
		return nil, err
	}
	if err := m.SaveSuccessfulRefund(id, amount, hostRefNum); err != nil {
		return txn, err
	}
	return txn, nil
}

// SaveSuccessfulRefund persists the refund row for an amount already
// applied to the transaction.
func (m *Manager) SaveSuccessfulRefund(id string, amount float64, hostRefNum string) error {
	return m.store.SaveRefund(&Refund{
		ID:            uuid.New().String(),
		TransactionID: id,
		Amount:        amount,
		State:         RefundSuccess,
		HostRefNum:    hostRefNum,
		CreatedAt:     time.Now().UTC(),
	})
}

// RecordFailedRefund books a refund attempt the bank declined. The
// transaction itself is untouched.
func (m *Manager) RecordFailedRefund(id string, amount float64, errorMessage string) error {
	return m.store.SaveRefund(&Refund{
		ID:            uuid.New().String(),
		TransactionID: id,
		Amount:        amount,
		State:         RefundFailed,
		ErrorMessage:  errorMessage,
		CreatedAt:     time.Now().UTC(),
	})
}

// ApplyCancel voids a successful transaction in place, inside a Mutate
// closure. Cancel reverses the whole charge, so it is only legal
// before any refund.
func ApplyCancel(txn *Transaction) error {
	if txn.State != StateSuccess {
		return &StateError{
			TransactionID: txn.ID,
			From:          txn.State,
			Reason:        fmt.Sprintf("cancel not allowed from state %s", txn.State),
		}
	}
	return applyTransition(txn, StateCancelled)
}

// RecordCancel voids a successful transaction under its lock.
func (m *Manager) RecordCancel(id string) (*Transaction, error) {
	return m.Mutate(id, func(txn *Transaction) error {
		return ApplyCancel(txn)
	})
}

// Refunds lists the refund legs booked against a transaction.
func (m *Manager) Refunds(id string) ([]Refund, error) {
	return m.store.RefundsForTransaction(id)
}
