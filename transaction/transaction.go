// Package transaction tracks payment lifecycle state: a transaction
// moves through a fixed state machine, refunds accumulate against it,
// and every mutation for a given transaction is serialized.
package transaction

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of a transaction.
type State string

const (
	StateDraft         State = "draft"
	StatePending       State = "pending"
	StateAwaiting3D    State = "awaiting_3d"
	StateSuccess       State = "success"
	StateFailed        State = "failed"
	StateCancelled     State = "cancelled"
	StateRefunded      State = "refunded"
	StatePartialRefund State = "partial_refund"
)

// ThreeDPhase tracks where a transaction sits inside the 3D flow while
// the state is awaiting_3d. Banks with a two-leg protocol pass through
// provision_pending between the callback and the provisioning call.
type ThreeDPhase string

const (
	PhaseNone             ThreeDPhase = ""
	PhaseRedirected       ThreeDPhase = "redirected"
	PhaseProvisionPending ThreeDPhase = "provision_pending"
	PhaseDone             ThreeDPhase = "done"
)

// transitions is the closed set of legal state moves.
var transitions = map[State][]State{
	StateDraft:         {StatePending, StateFailed},
	StatePending:       {StateAwaiting3D, StateSuccess, StateFailed},
	StateAwaiting3D:    {StateSuccess, StateFailed},
	StateSuccess:       {StateCancelled, StateRefunded, StatePartialRefund},
	StatePartialRefund: {StateRefunded, StatePartialRefund},
}

// CanTransition reports whether moving from one state to another is
// legal.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further state moves exist.
func IsTerminal(s State) bool {
	return len(transitions[s]) == 0
}

// Transaction is one payment attempt and its outcome.
type Transaction struct {
	ID             string      `json:"id"`
	OrderID        string      `json:"orderId"`
	BankCode       string      `json:"bankCode"`
	GatewayKind    string      `json:"gatewayKind"`
	Amount         float64     `json:"amount"`
	RefundedAmount float64     `json:"refundedAmount"`
	Currency       string      `json:"currency"`
	Installment    int         `json:"installment"`
	PaymentModel   string      `json:"paymentModel"`
	State          State       `json:"state"`
	ThreeDPhase    ThreeDPhase `json:"threeDPhase,omitempty"`
	CardMasked     string      `json:"cardMasked,omitempty"`
	CardBrand      string      `json:"cardBrand,omitempty"`
	AuthCode       string      `json:"authCode,omitempty"`
	HostRefNum     string      `json:"hostRefNum,omitempty"`
	BankTxnID      string      `json:"bankTxnId,omitempty"`
	ErrorCode      string      `json:"errorCode,omitempty"`
	ErrorMessage   string      `json:"errorMessage,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

// RemainingRefundable is the amount still open for refund.
func (t *Transaction) RemainingRefundable() float64 {
	remaining := t.Amount - t.RefundedAmount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RefundState is the outcome of one refund attempt.
type RefundState string

const (
	RefundPending RefundState = "pending"
	RefundSuccess RefundState = "success"
	RefundFailed  RefundState = "failed"
)

// Refund is one refund attempt against a transaction. Failed attempts
// stay on record; only successful ones count toward the accumulated
// refunded amount.
type Refund struct {
	ID            string      `json:"id"`
	TransactionID string      `json:"transactionId"`
	Amount        float64     `json:"amount"`
	State         RefundState `json:"state"`
	HostRefNum    string      `json:"hostRefNum,omitempty"`
	ErrorMessage  string      `json:"errorMessage,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
}

// New builds a draft transaction with a fresh ID.
func New(orderID, bankCode, gatewayKind string, amount float64, currency string, installment int) *Transaction {
	now := time.Now().UTC()
	return &Transaction{
		ID:          uuid.New().String(),
		OrderID:     orderID,
		BankCode:    bankCode,
		GatewayKind: gatewayKind,
		Amount:      amount,
		Currency:    currency,
		Installment: installment,
		State:       StateDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// StateError reports an illegal state move or refund amount.
type StateError struct {
	TransactionID string
	From          State
	To            State
	Reason        string
}

func (e *StateError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("transaction %s: %s", e.TransactionID, e.Reason)
	}
	return fmt.Sprintf("transaction %s: illegal transition %s -> %s", e.TransactionID, e.From, e.To)
}
