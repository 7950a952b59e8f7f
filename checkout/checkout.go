// Package checkout orchestrates payments end to end: it resolves the
// bank for a card, drives the right gateway adapter, owns the HTTP
// round-trips for single-leg protocols, and keeps the transaction
// state machine in step with what the bank answered.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mewspay/vpos/bank"
	"github.com/mewspay/vpos/gateway"
	"github.com/mewspay/vpos/infra/logger"
	"github.com/mewspay/vpos/infra/opensearch"
	"github.com/mewspay/vpos/installment"
	"github.com/mewspay/vpos/transaction"
)

// AuditLogger ships payment exchanges to the audit index. Nil disables
// shipping.
type AuditLogger interface {
	LogPaymentEvent(ctx context.Context, log opensearch.PaymentLog) error
}

// Service wires the bank directory, the gateway registry, the
// transaction manager and the installment engine together.
type Service struct {
	banks    bank.Directory
	registry *gateway.Registry
	txns     *transaction.Manager
	plans    *installment.Engine
	client   *gateway.HTTPClient
	audit    AuditLogger

	// baseCallbackURL is the externally reachable prefix the banks post
	// 3D results back to, e.g. "https://pay.example.com".
	baseCallbackURL string
}

// Option configures a Service.
type Option func(*Service)

// WithRegistry overrides the default gateway registry.
func WithRegistry(r *gateway.Registry) Option {
	return func(s *Service) { s.registry = r }
}

// WithHTTPClient overrides the bank-facing HTTP client.
func WithHTTPClient(c *gateway.HTTPClient) Option {
	return func(s *Service) { s.client = c }
}

// WithAuditLogger enables payment audit shipping.
func WithAuditLogger(a AuditLogger) Option {
	return func(s *Service) { s.audit = a }
}

// NewService builds the orchestration service. isProduction selects the
// TLS posture of the bank-facing client.
func NewService(banks bank.Directory, txns *transaction.Manager, plans *installment.Engine, baseCallbackURL string, isProduction bool, opts ...Option) *Service {
	s := &Service{
		banks:           banks,
		registry:        gateway.DefaultRegistry,
		txns:            txns,
		plans:           plans,
		client:          gateway.NewHTTPClient(gateway.CreateHTTPClientConfig(isProduction, 30*time.Second)),
		baseCallbackURL: strings.TrimRight(baseCallbackURL, "/"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PaymentRequest is the inbound start-payment DTO.
type PaymentRequest struct {
	OrderID     string  `json:"orderId" validate:"required"`
	BankCode    string  `json:"bankCode,omitempty"`
	Amount      float64 `json:"amount" validate:"required,gt=0"`
	Currency    string  `json:"currency,omitempty"`
	Installment int     `json:"installment,omitempty" validate:"gte=0"`
	Use3D       bool    `json:"use3D"`
	Category    string  `json:"category,omitempty"`

	CardNumber     string `json:"cardNumber" validate:"required,min=12,max=19"`
	CardHolderName string `json:"cardHolderName" validate:"required"`
	ExpireMonth    string `json:"expireMonth" validate:"required,len=2"`
	ExpireYear     string `json:"expireYear" validate:"required,len=2"`
	CVV            string `json:"cvv" validate:"required,min=3,max=4"`

	CustomerIP  string `json:"customerIp,omitempty"`
	Email       string `json:"email,omitempty" validate:"omitempty,email"`
	Lang        string `json:"lang,omitempty"`
	Description string `json:"description,omitempty"`
}

// PaymentOutcome is what StartPayment and HandleCallback hand back.
// For a 3D flow in progress, Redirect carries the browser leg and
// Result is nil; once the payment is final, Result is set.
type PaymentOutcome struct {
	TransactionID string                    `json:"transactionId"`
	State         transaction.State         `json:"state"`
	Redirect      *gateway.RedirectForm     `json:"redirect,omitempty"`
	RedirectURL   string                    `json:"redirectUrl,omitempty"`
	Result        *gateway.NormalizedResult `json:"result,omitempty"`
}

// resolveBank picks the bank profile for a request: explicit bank code
// wins, then the card BIN, then the configured default.
func (s *Service) resolveBank(bankCode, bin string) (*bank.Profile, error) {
	if bankCode != "" {
		return s.banks.BankByCode(bankCode)
	}
	if bin != "" {
		profile, err := s.banks.BankByPrefix(bin)
		if err == nil {
			return profile, nil
		}
		if !bank.IsNotFound(err) {
			return nil, err
		}
	}
	return s.banks.DefaultBank()
}

// resolveGateway validates the profile's credentials and initializes a
// fresh adapter. Validation runs before any network traffic.
func (s *Service) resolveGateway(profile *bank.Profile) (gateway.Gateway, error) {
	if !s.registry.Known(profile.Kind) {
		return nil, fmt.Errorf("bank %s references unknown gateway kind %q", profile.Code, profile.Kind)
	}
	gw, err := s.registry.New(profile.Kind)
	if err != nil {
		return nil, err
	}
	cfg := profile.GatewayConfig()
	if err := gw.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if err := gw.Initialize(cfg); err != nil {
		return nil, err
	}
	return gw, nil
}

func (s *Service) callbackURL(txnID string) string {
	return s.baseCallbackURL + "/v1/callback/" + txnID
}

// StartPayment begins a payment. Non-3D requests complete within the
// call; 3D requests return the browser redirect and leave the
// transaction awaiting the bank callback.
func (s *Service) StartPayment(ctx context.Context, req PaymentRequest) (*PaymentOutcome, error) {
	card := gateway.Card{
		Number:      req.CardNumber,
		Holder:      req.CardHolderName,
		ExpireMonth: req.ExpireMonth,
		ExpireYear:  req.ExpireYear,
		CVV:         req.CVV,
	}

	profile, err := s.resolveBank(req.BankCode, card.BIN())
	if err != nil {
		return nil, err
	}
	gw, err := s.resolveGateway(profile)
	if err != nil {
		return nil, err
	}

	currency := req.Currency
	if currency == "" {
		currency = "TRY"
	}
	installments := req.Installment
	if installments < 1 {
		installments = 1
	}

	txn := transaction.New(req.OrderID, profile.Code, string(profile.Kind), req.Amount, currency, installments)
	txn.PaymentModel = string(profile.PaymentModel)
	txn.CardMasked = card.Masked()
	txn.CardBrand = card.Brand()
	if err := s.txns.Create(txn); err != nil {
		return nil, err
	}

	order := gateway.Order{
		ID:          req.OrderID,
		Amount:      req.Amount,
		Currency:    currency,
		Installment: installments,
		SuccessURL:  s.callbackURL(txn.ID),
		FailURL:     s.callbackURL(txn.ID),
		CustomerIP:  req.CustomerIP,
		Email:       req.Email,
		Lang:        req.Lang,
		Description: req.Description,
	}

	if _, err := s.txns.Transition(txn.ID, transaction.StatePending); err != nil {
		return nil, err
	}

	if !req.Use3D {
		return s.directPayment(ctx, txn.ID, profile, gw, order, card)
	}
	return s.start3D(ctx, txn.ID, profile, gw, order, card)
}

func (s *Service) directPayment(ctx context.Context, txnID string, profile *bank.Profile, gw gateway.Gateway, order gateway.Order, card gateway.Card) (*PaymentOutcome, error) {
	started := time.Now()
	result, err := s.exchange(ctx, gw, func() (*gateway.Request, error) {
		return gw.PreparePayment(order, card)
	})
	s.ship(ctx, profile, txnID, order, "payment", result, err, time.Since(started))
	if err != nil {
		s.failTransaction(txnID, err)
		return nil, err
	}
	return s.finalize(txnID, result)
}

func (s *Service) start3D(ctx context.Context, txnID string, profile *bank.Profile, gw gateway.Gateway, order gateway.Order, card gateway.Card) (*PaymentOutcome, error) {
	session, err := gw.Prepare3D(ctx, order, card)
	if err != nil {
		s.failTransaction(txnID, err)
		return nil, err
	}

	txn, err := s.txns.Mutate(txnID, func(txn *transaction.Transaction) error {
		txn.State = transaction.StateAwaiting3D
		txn.ThreeDPhase = transaction.PhaseRedirected
		txn.BankTxnID = session.BankTxnID
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("3D redirect prepared", logger.LogContext{
		Bank:          profile.Code,
		TransactionID: txnID,
		Fields:        map[string]any{"order_id": order.ID},
	})

	return &PaymentOutcome{
		TransactionID: txn.ID,
		State:         txn.State,
		Redirect:      session.Form,
		RedirectURL:   session.RedirectURL,
	}, nil
}

// HandleCallback consumes the form fields the bank posted back after
// 3D authentication and finalizes the transaction. A replay of the
// callback after the transaction settled returns the stored outcome
// instead of re-processing.
func (s *Service) HandleCallback(ctx context.Context, txnID string, fields map[string]string) (*PaymentOutcome, error) {
	var result *gateway.Result

	txn, err := s.txns.Mutate(txnID, func(txn *transaction.Transaction) error {
		if txn.State != transaction.StateAwaiting3D {
			// Settled already; the caller gets the stored outcome below.
			return nil
		}

		profile, err := s.banks.BankByCode(txn.BankCode)
		if err != nil {
			return err
		}
		gw, err := s.resolveGateway(profile)
		if err != nil {
			return err
		}

		if txn.BankTxnID != "" {
			txn.ThreeDPhase = transaction.PhaseProvisionPending
			if fields["bankTxnId"] == "" {
				fields["bankTxnId"] = txn.BankTxnID
			}
		}

		started := time.Now()
		result, err = gw.Parse3DResponse(ctx, fields)
		elapsed := time.Since(started)

		var declined *gateway.DeclinedError
		switch {
		case err == nil:
		case errors.As(err, &declined):
			result = &gateway.Result{
				Approved:     false,
				OrderID:      txn.OrderID,
				ErrorCode:    declined.Code,
				ErrorMessage: declined.Message,
			}
		default:
			// Transport or protocol failure: leave the transaction
			// awaiting so the outcome can still be resolved.
			s.ship(ctx, profile, txnID, gateway.Order{ID: txn.OrderID, Amount: txn.Amount, Currency: txn.Currency}, "3d_callback", nil, err, elapsed)
			return err
		}

		s.ship(ctx, profile, txnID, gateway.Order{ID: txn.OrderID, Amount: txn.Amount, Currency: txn.Currency}, "3d_callback", result, nil, elapsed)

		txn.ThreeDPhase = transaction.PhaseDone
		applyResult(txn, result)
		return nil
	})
	if err != nil {
		return nil, err
	}

	outcome := &PaymentOutcome{
		TransactionID: txn.ID,
		State:         txn.State,
	}
	if result != nil {
		outcome.Result = gateway.Normalize(result)
	} else {
		outcome.Result = storedResult(txn)
	}
	return outcome, nil
}

// Cancel voids a successful payment. The state check, the bank
// exchange and the transition run under the transaction's lock so a
// concurrent refund or callback can never interleave with the void.
func (s *Service) Cancel(ctx context.Context, txnID string) (*PaymentOutcome, error) {
	var result *gateway.Result

	txn, err := s.txns.Mutate(txnID, func(txn *transaction.Transaction) error {
		if txn.State != transaction.StateSuccess {
			return &transaction.StateError{
				TransactionID: txnID,
				From:          txn.State,
				Reason:        fmt.Sprintf("cancel not allowed from state %s", txn.State),
			}
		}

		profile, gw, err := s.gatewayFor(txn)
		if err != nil {
			return err
		}

		order := orderFromTransaction(txn)
		started := time.Now()
		result, err = s.exchange(ctx, gw, func() (*gateway.Request, error) {
			return gw.PrepareCancel(order)
		})
		s.ship(ctx, profile, txnID, order, "cancel", result, err, time.Since(started))
		if err != nil {
			return err
		}
		if !result.Approved {
			return &gateway.DeclinedError{Gateway: profile.Kind, Code: result.ErrorCode, Message: result.ErrorMessage}
		}
		return transaction.ApplyCancel(txn)
	})
	if err != nil {
		return nil, err
	}
	return &PaymentOutcome{TransactionID: txnID, State: txn.State, Result: gateway.Normalize(result)}, nil
}

// Refund sends a partial or full refund. The balance check, the bank
// exchange and the booking all run under the transaction's lock: two
// concurrent refunds that jointly exceed the remaining balance cannot
// both reach the bank, because the second waits for the lock and then
// fails the balance check before any network call.
func (s *Service) Refund(ctx context.Context, txnID string, amount float64) (*PaymentOutcome, error) {
	var result *gateway.Result

	txn, err := s.txns.Mutate(txnID, func(txn *transaction.Transaction) error {
		if err := transaction.CheckRefundable(txn, amount); err != nil {
			return err
		}

		profile, gw, err := s.gatewayFor(txn)
		if err != nil {
			return err
		}

		order := orderFromTransaction(txn)
		started := time.Now()
		result, err = s.exchange(ctx, gw, func() (*gateway.Request, error) {
			return gw.PrepareRefund(order, amount)
		})
		s.ship(ctx, profile, txnID, order, "refund", result, err, time.Since(started))
		if err != nil {
			return err
		}
		if !result.Approved {
			if recErr := s.txns.RecordFailedRefund(txnID, amount, result.ErrorMessage); recErr != nil {
				logger.Warn("Failed to record declined refund", logger.LogContext{
					Bank:          profile.Code,
					TransactionID: txnID,
					Fields:        map[string]any{"error": recErr.Error()},
				})
			}
			return &gateway.DeclinedError{Gateway: profile.Kind, Code: result.ErrorCode, Message: result.ErrorMessage}
		}
		return transaction.ApplyRefund(txn, amount)
	})
	if err != nil {
		return nil, err
	}

	if err := s.txns.SaveSuccessfulRefund(txnID, amount, result.HostRefNum); err != nil {
		logger.Warn("Failed to record refund leg", logger.LogContext{
			TransactionID: txnID,
			Fields:        map[string]any{"error": err.Error()},
		})
	}
	return &PaymentOutcome{TransactionID: txnID, State: txn.State, Result: gateway.Normalize(result)}, nil
}

// Status queries the bank for the current standing of a transaction.
func (s *Service) Status(ctx context.Context, txnID string) (*gateway.NormalizedResult, error) {
	txn, err := s.txns.Get(txnID)
	if err != nil {
		return nil, err
	}
	profile, gw, err := s.gatewayFor(txn)
	if err != nil {
		return nil, err
	}

	order := orderFromTransaction(txn)
	started := time.Now()
	result, err := s.exchange(ctx, gw, func() (*gateway.Request, error) {
		return gw.PrepareStatus(order)
	})
	s.ship(ctx, profile, txnID, order, "status", result, err, time.Since(started))
	if err != nil {
		return nil, err
	}
	return gateway.Normalize(result), nil
}

// InstallmentRequest selects what to price.
type InstallmentRequest struct {
	BankCode string  `json:"bankCode,omitempty"`
	BIN      string  `json:"bin,omitempty" validate:"omitempty,len=6,numeric"`
	Amount   float64 `json:"amount" validate:"required,gt=0"`
	Category string  `json:"category,omitempty"`
}

// InstallmentOffer is the priced plan list for one bank.
type InstallmentOffer struct {
	BankCode string              `json:"bankCode"`
	BankName string              `json:"bankName"`
	Quotes   []installment.Quote `json:"quotes"`
}

// ListInstallments prices the installment options for a bank or a card
// prefix. An unknown prefix degrades to single payment on the default
// bank rather than failing the checkout.
func (s *Service) ListInstallments(req InstallmentRequest) (*InstallmentOffer, error) {
	if req.BankCode != "" {
		profile, err := s.banks.BankByCode(req.BankCode)
		if err != nil {
			return nil, err
		}
		quotes, err := s.plans.Quotes(profile.Code, req.Amount, req.Category)
		if err != nil {
			return nil, err
		}
		return &InstallmentOffer{BankCode: profile.Code, BankName: profile.Name, Quotes: quotes}, nil
	}

	profile, err := s.banks.BankByPrefix(req.BIN)
	if bank.IsNotFound(err) {
		fallback, derr := s.banks.DefaultBank()
		if derr != nil {
			return nil, derr
		}
		return &InstallmentOffer{
			BankCode: fallback.Code,
			BankName: fallback.Name,
			Quotes:   installment.SinglePaymentOnly(req.Amount),
		}, nil
	}
	if err != nil {
		return nil, err
	}
	quotes, err := s.plans.Quotes(profile.Code, req.Amount, req.Category)
	if err != nil {
		return nil, err
	}
	return &InstallmentOffer{BankCode: profile.Code, BankName: profile.Name, Quotes: quotes}, nil
}

// --- internals ---

func (s *Service) gatewayFor(txn *transaction.Transaction) (*bank.Profile, gateway.Gateway, error) {
	profile, err := s.banks.BankByCode(txn.BankCode)
	if err != nil {
		return nil, nil, err
	}
	gw, err := s.resolveGateway(profile)
	if err != nil {
		return nil, nil, err
	}
	return profile, gw, nil
}

// exchange runs one prepare-send-parse cycle for single-leg protocols.
func (s *Service) exchange(ctx context.Context, gw gateway.Gateway, prepare func() (*gateway.Request, error)) (*gateway.Result, error) {
	req, err := prepare()
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(ctx, gw.Kind(), req)
	if err != nil {
		return nil, err
	}
	return gw.ParsePaymentResponse(resp)
}

// finalize settles a direct payment from the parsed bank decision.
func (s *Service) finalize(txnID string, result *gateway.Result) (*PaymentOutcome, error) {
	txn, err := s.txns.Mutate(txnID, func(txn *transaction.Transaction) error {
		applyResult(txn, result)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &PaymentOutcome{
		TransactionID: txn.ID,
		State:         txn.State,
		Result:        gateway.Normalize(result),
	}, nil
}

func (s *Service) failTransaction(txnID string, cause error) {
	if _, err := s.txns.Mutate(txnID, func(txn *transaction.Transaction) error {
		if !transaction.CanTransition(txn.State, transaction.StateFailed) {
			return nil
		}
		txn.State = transaction.StateFailed
		txn.ErrorMessage = cause.Error()
		return nil
	}); err != nil {
		logger.Warn("Failed to mark transaction failed", logger.LogContext{
			TransactionID: txnID,
			Fields:        map[string]any{"error": err.Error()},
		})
	}
}

// applyResult copies a bank decision onto the transaction and moves
// its state.
func applyResult(txn *transaction.Transaction, result *gateway.Result) {
	txn.AuthCode = result.AuthCode
	txn.HostRefNum = result.HostRefNum
	if result.TransactionID != "" {
		txn.BankTxnID = result.TransactionID
	}
	if result.Approved {
		txn.State = transaction.StateSuccess
		txn.ErrorCode = ""
		txn.ErrorMessage = ""
	} else {
		txn.State = transaction.StateFailed
		txn.ErrorCode = result.ErrorCode
		txn.ErrorMessage = result.ErrorMessage
	}
}

func storedResult(txn *transaction.Transaction) *gateway.NormalizedResult {
	return &gateway.NormalizedResult{
		Approved:      txn.State == transaction.StateSuccess,
		OrderID:       txn.OrderID,
		TransactionID: txn.BankTxnID,
		AuthCode:      txn.AuthCode,
		HostRefNum:    txn.HostRefNum,
		ErrorCode:     txn.ErrorCode,
		ErrorMessage:  txn.ErrorMessage,
	}
}

func orderFromTransaction(txn *transaction.Transaction) gateway.Order {
	return gateway.Order{
		ID:          txn.OrderID,
		Amount:      txn.Amount,
		Currency:    txn.Currency,
		Installment: txn.Installment,
		HostRefNum:  txn.HostRefNum,
		AuthCode:    txn.AuthCode,
		BankTxnID:   txn.BankTxnID,
	}
}

// ship sends a best-effort audit record; failures are logged, never
// surfaced to the payment path.
func (s *Service) ship(ctx context.Context, profile *bank.Profile, txnID string, order gateway.Order, operation string, result *gateway.Result, exchErr error, elapsed time.Duration) {
	if s.audit == nil {
		return
	}

	entry := opensearch.PaymentLog{
		Timestamp:   time.Now().UTC(),
		BankCode:    profile.Code,
		GatewayKind: string(profile.Kind),
		Operation:   operation,
		Response: opensearch.ResponseLog{
			ProcessingTimeMs: elapsed.Milliseconds(),
		},
		PaymentInfo: opensearch.PaymentInfo{
			TransactionID: txnID,
			OrderID:       order.ID,
			Amount:        order.Amount,
			Currency:      order.Currency,
			Installment:   order.Installment,
			Use3D:         operation == "3d_callback",
		},
	}
	if result != nil {
		if result.Approved {
			entry.PaymentInfo.Status = "approved"
		} else {
			entry.PaymentInfo.Status = "declined"
			entry.Error = opensearch.ErrorInfo{Code: result.ErrorCode, Message: result.ErrorMessage}
		}
	}
	if exchErr != nil {
		entry.PaymentInfo.Status = "error"
		entry.Error = opensearch.ErrorInfo{Code: "EXCHANGE_ERROR", Message: exchErr.Error()}
	}

	if err := s.audit.LogPaymentEvent(ctx, entry); err != nil {
		logger.Warn("Failed to ship payment audit log", logger.LogContext{
			Bank:          profile.Code,
			TransactionID: txnID,
			Fields:        map[string]any{"error": err.Error()},
		})
	}
}
