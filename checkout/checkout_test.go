package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mewspay/vpos/bank"
	"github.com/mewspay/vpos/gateway"
	"github.com/mewspay/vpos/installment"
	"github.com/mewspay/vpos/transaction"
)

const kindFake gateway.Kind = "fakebank"

// fakeGateway speaks a one-field JSON protocol against an httptest
// endpoint and counts how often each operation is prepared.
type fakeGateway struct {
	apiURL string

	mu            sync.Mutex
	parse3DCalls  int
	refundCalls   int
	approve3D     bool
	approveDirect bool
	approveOps    bool
}

func (g *fakeGateway) Kind() gateway.Kind { return kindFake }

func (g *fakeGateway) Initialize(cfg gateway.Config) error {
	g.apiURL = cfg[gateway.CfgAPIURL]
	return nil
}

func (g *fakeGateway) RequiredConfig() []gateway.ConfigField {
	return []gateway.ConfigField{
		{Key: gateway.CfgMerchantID, Required: true},
		{Key: gateway.CfgEnvironment, Required: true},
	}
}

func (g *fakeGateway) ValidateConfig(cfg gateway.Config) error {
	return gateway.ValidateConfigFields(kindFake, cfg, g.RequiredConfig())
}

func (g *fakeGateway) request(op string, order gateway.Order) *gateway.Request {
	form := url.Values{}
	form.Set("op", op)
	form.Set("orderId", order.ID)
	return &gateway.Request{
		URL:         g.apiURL,
		Method:      http.MethodPost,
		ContentType: "application/x-www-form-urlencoded",
		Form:        form,
	}
}

func (g *fakeGateway) PreparePayment(order gateway.Order, card gateway.Card) (*gateway.Request, error) {
	return g.request("payment", order), nil
}

func (g *fakeGateway) Prepare3D(ctx context.Context, order gateway.Order, card gateway.Card) (*gateway.ThreeDSession, error) {
	return &gateway.ThreeDSession{
		Form: &gateway.RedirectForm{
			URL:    "https://3d.fakebank.example/auth",
			Method: http.MethodPost,
			Fields: map[string]string{"orderId": order.ID},
		},
		BankTxnID: "SESSION-" + order.ID,
	}, nil
}

func (g *fakeGateway) ParsePaymentResponse(resp *gateway.HTTPResponse) (*gateway.Result, error) {
	var payload struct {
		Approved bool   `json:"approved"`
		AuthCode string `json:"authCode"`
		HostRef  string `json:"hostRef"`
		Code     string `json:"code"`
		Message  string `json:"message"`
	}
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return nil, &gateway.ProtocolError{Gateway: kindFake, Reason: "bad json", Raw: resp.Body, Err: err}
	}
	return &gateway.Result{
		Approved:     payload.Approved,
		AuthCode:     payload.AuthCode,
		HostRefNum:   payload.HostRef,
		ErrorCode:    payload.Code,
		ErrorMessage: payload.Message,
	}, nil
}

func (g *fakeGateway) Parse3DResponse(ctx context.Context, fields map[string]string) (*gateway.Result, error) {
	g.mu.Lock()
	g.parse3DCalls++
	approve := g.approve3D
	g.mu.Unlock()
	if !approve {
		return &gateway.Result{Approved: false, MDStatus: "0", ErrorMessage: "3D authentication failed"}, nil
	}
	return &gateway.Result{
		Approved:   true,
		MDStatus:   "1",
		AuthCode:   "AUTH3D",
		HostRefNum: "HREF3D",
	}, nil
}

func (g *fakeGateway) PrepareCancel(order gateway.Order) (*gateway.Request, error) {
	return g.request("cancel", order), nil
}

func (g *fakeGateway) PrepareRefund(order gateway.Order, amount float64) (*gateway.Request, error) {
	g.mu.Lock()
	g.refundCalls++
	g.mu.Unlock()
	return g.request("refund", order), nil
}

func (g *fakeGateway) PrepareStatus(order gateway.Order) (*gateway.Request, error) {
	return g.request("status", order), nil
}

// memoryDirectory is an in-memory bank.Directory.
type memoryDirectory struct {
	banks       map[string]*bank.Profile
	bins        map[string]string
	defaultCode string
}

func (d *memoryDirectory) BankByCode(code string) (*bank.Profile, error) {
	if p, ok := d.banks[code]; ok {
		return p, nil
	}
	return nil, bank.NewNotFound("bank " + code)
}

func (d *memoryDirectory) BankByPrefix(prefix string) (*bank.Profile, error) {
	if code, ok := d.bins[prefix]; ok {
		return d.BankByCode(code)
	}
	return nil, bank.NewNotFound("bin " + prefix)
}

func (d *memoryDirectory) DefaultBank() (*bank.Profile, error) {
	if d.defaultCode == "" {
		return nil, bank.NewNotFound("default bank")
	}
	return d.BankByCode(d.defaultCode)
}

// memoryTxnStore is an in-memory transaction.Store.
type memoryTxnStore struct {
	mu      sync.Mutex
	txns    map[string]transaction.Transaction
	byOrder map[string]string
	refunds []transaction.Refund
}

func newMemoryTxnStore() *memoryTxnStore {
	return &memoryTxnStore{
		txns:    make(map[string]transaction.Transaction),
		byOrder: make(map[string]string),
	}
}

func (s *memoryTxnStore) SaveTransaction(txn *transaction.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txns[txn.ID] = *txn
	s.byOrder[txn.OrderID] = txn.ID
	return nil
}

func (s *memoryTxnStore) UpdateTransaction(txn *transaction.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txns[txn.ID]; !ok {
		return fmt.Errorf("transaction not found: %s", txn.ID)
	}
	s.txns[txn.ID] = *txn
	return nil
}

func (s *memoryTxnStore) GetTransaction(id string) (*transaction.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn, ok := s.txns[id]
	if !ok {
		return nil, fmt.Errorf("transaction not found: %s", id)
	}
	out := txn
	return &out, nil
}

func (s *memoryTxnStore) GetTransactionByOrderID(orderID string) (*transaction.Transaction, error) {
	s.mu.Lock()
	id, ok := s.byOrder[orderID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("transaction not found for order: %s", orderID)
	}
	return s.GetTransaction(id)
}

func (s *memoryTxnStore) SaveRefund(refund *transaction.Refund) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refunds = append(s.refunds, *refund)
	return nil
}

func (s *memoryTxnStore) RefundsForTransaction(txnID string) ([]transaction.Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []transaction.Refund
	for _, r := range s.refunds {
		if r.TransactionID == txnID {
			out = append(out, r)
		}
	}
	return out, nil
}

type stubPlanSource struct{ plans []installment.Plan }

func (s *stubPlanSource) PlansForBank(string) ([]installment.Plan, error) { return s.plans, nil }

// bankServer answers every operation with a fixed JSON decision.
func bankServer(t *testing.T, approved bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if approved {
			fmt.Fprint(w, `{"approved":true,"authCode":"AUTH1","hostRef":"HREF1"}`)
			return
		}
		fmt.Fprint(w, `{"approved":false,"code":"51","message":"insufficient funds"}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// slowBankServer approves every operation after a delay, widening the
// window in which concurrent requests could interleave.
func slowBankServer(t *testing.T, delay time.Duration) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(delay)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"approved":true,"authCode":"AUTH1","hostRef":"HREF1"}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

type fixture struct {
	service *Service
	gw      *fakeGateway
	store   *memoryTxnStore
	txns    *transaction.Manager
}

func newFixture(t *testing.T, apiURL string) *fixture {
	t.Helper()

	gw := &fakeGateway{approve3D: true, approveDirect: true, approveOps: true}
	registry := gateway.NewRegistry()
	registry.Register(kindFake, func() gateway.Gateway { return gw })

	dir := &memoryDirectory{
		banks: map[string]*bank.Profile{
			"fakebank": {
				Code:         "fakebank",
				Name:         "Fake Bank",
				Kind:         kindFake,
				PaymentModel: gateway.Model3DPay,
				MerchantID:   "M1",
				PaymentAPIURL: apiURL,
				Environment:  "test",
				Active:       true,
			},
		},
		bins:        map[string]string{"454360": "fakebank"},
		defaultCode: "fakebank",
	}
	// Profile config must pass the fake's validation and carry the URL.
	dir.banks["fakebank"].Environment = "test"

	store := newMemoryTxnStore()
	txns := transaction.NewManager(store)
	engine := installment.NewEngine(&stubPlanSource{plans: []installment.Plan{
		{BankCode: "fakebank", Count: 3, InterestRate: 1.5, Active: true},
	}}, nil)

	client := gateway.NewHTTPClient(gateway.CreateHTTPClientConfig(false, 5*time.Second))
	svc := NewService(dir, txns, engine, "https://pay.example.com", false,
		WithRegistry(registry), WithHTTPClient(client))

	return &fixture{service: svc, gw: gw, store: store, txns: txns}
}

func validRequest(use3D bool) PaymentRequest {
	return PaymentRequest{
		OrderID:        "ORD-100",
		BankCode:       "fakebank",
		Amount:         149.90,
		Currency:       "TRY",
		Installment:    1,
		Use3D:          use3D,
		CardNumber:     "4543600000007894",
		CardHolderName: "Ayse Yilmaz",
		ExpireMonth:    "12",
		ExpireYear:     "28",
		CVV:            "123",
		CustomerIP:     "10.1.2.3",
	}
}

func TestDirectPaymentApproved(t *testing.T) {
	srv := bankServer(t, true)
	f := newFixture(t, srv.URL)

	outcome, err := f.service.StartPayment(context.Background(), validRequest(false))
	require.NoError(t, err)
	assert.Equal(t, transaction.StateSuccess, outcome.State)
	require.NotNil(t, outcome.Result)
	assert.True(t, outcome.Result.Approved)
	assert.Equal(t, "AUTH1", outcome.Result.AuthCode)

	txn, err := f.txns.Get(outcome.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, "AUTH1", txn.AuthCode)
	assert.Equal(t, "HREF1", txn.HostRefNum)
	assert.Equal(t, "454360******7894", txn.CardMasked)
	assert.Equal(t, "visa", txn.CardBrand)
}

func TestDirectPaymentDeclined(t *testing.T) {
	srv := bankServer(t, false)
	f := newFixture(t, srv.URL)

	outcome, err := f.service.StartPayment(context.Background(), validRequest(false))
	require.NoError(t, err)
	assert.Equal(t, transaction.StateFailed, outcome.State)
	assert.False(t, outcome.Result.Approved)
	assert.Equal(t, "51", outcome.Result.ErrorCode)
}

func TestThreeDFlow(t *testing.T) {
	srv := bankServer(t, true)
	f := newFixture(t, srv.URL)

	outcome, err := f.service.StartPayment(context.Background(), validRequest(true))
	require.NoError(t, err)
	assert.Equal(t, transaction.StateAwaiting3D, outcome.State)
	require.NotNil(t, outcome.Redirect)
	assert.Nil(t, outcome.Result)

	txn, err := f.txns.Get(outcome.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, transaction.PhaseRedirected, txn.ThreeDPhase)
	assert.Equal(t, "SESSION-ORD-100", txn.BankTxnID)

	final, err := f.service.HandleCallback(context.Background(), outcome.TransactionID, map[string]string{"mdStatus": "1"})
	require.NoError(t, err)
	assert.Equal(t, transaction.StateSuccess, final.State)
	assert.True(t, final.Result.Approved)

	txn, _ = f.txns.Get(outcome.TransactionID)
	assert.Equal(t, transaction.PhaseDone, txn.ThreeDPhase)
	assert.Equal(t, "AUTH3D", txn.AuthCode)
}

func TestCallbackReplayReturnsStoredOutcome(t *testing.T) {
	srv := bankServer(t, true)
	f := newFixture(t, srv.URL)

	outcome, err := f.service.StartPayment(context.Background(), validRequest(true))
	require.NoError(t, err)

	fields := map[string]string{"mdStatus": "1"}
	_, err = f.service.HandleCallback(context.Background(), outcome.TransactionID, fields)
	require.NoError(t, err)

	replay, err := f.service.HandleCallback(context.Background(), outcome.TransactionID, fields)
	require.NoError(t, err)
	assert.Equal(t, transaction.StateSuccess, replay.State)
	assert.True(t, replay.Result.Approved)

	f.gw.mu.Lock()
	calls := f.gw.parse3DCalls
	f.gw.mu.Unlock()
	assert.Equal(t, 1, calls, "replays must not hit the gateway again")
}

func TestFailedThreeDAuthentication(t *testing.T) {
	srv := bankServer(t, true)
	f := newFixture(t, srv.URL)
	f.gw.approve3D = false

	outcome, err := f.service.StartPayment(context.Background(), validRequest(true))
	require.NoError(t, err)

	final, err := f.service.HandleCallback(context.Background(), outcome.TransactionID, map[string]string{"mdStatus": "0"})
	require.NoError(t, err)
	assert.Equal(t, transaction.StateFailed, final.State)
	assert.False(t, final.Result.Approved)
}

func TestRefundFlow(t *testing.T) {
	srv := bankServer(t, true)
	f := newFixture(t, srv.URL)

	outcome, err := f.service.StartPayment(context.Background(), validRequest(false))
	require.NoError(t, err)

	partial, err := f.service.Refund(context.Background(), outcome.TransactionID, 50)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatePartialRefund, partial.State)

	full, err := f.service.Refund(context.Background(), outcome.TransactionID, 99.90)
	require.NoError(t, err)
	assert.Equal(t, transaction.StateRefunded, full.State)
}

func TestOverRefundNeverReachesBank(t *testing.T) {
	srv := bankServer(t, true)
	f := newFixture(t, srv.URL)

	outcome, err := f.service.StartPayment(context.Background(), validRequest(false))
	require.NoError(t, err)

	_, err = f.service.Refund(context.Background(), outcome.TransactionID, 500)
	require.Error(t, err)

	f.gw.mu.Lock()
	calls := f.gw.refundCalls
	f.gw.mu.Unlock()
	assert.Equal(t, 0, calls, "rejected refund must not build a bank request")
}

func TestConcurrentRefundsNeverJointlyOverRefund(t *testing.T) {
	srv := slowBankServer(t, 50*time.Millisecond)
	f := newFixture(t, srv.URL)

	outcome, err := f.service.StartPayment(context.Background(), validRequest(false))
	require.NoError(t, err)
	require.Equal(t, transaction.StateSuccess, outcome.State)

	// Each refund alone fits the 149.90 balance; together they exceed
	// it, so only the first may reach the bank.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.service.Refund(context.Background(), outcome.TransactionID, 100)
		}(i)
	}
	wg.Wait()

	var failures int
	for _, err := range errs {
		if err == nil {
			continue
		}
		failures++
		var stateErr *transaction.StateError
		require.ErrorAs(t, err, &stateErr, "losing refund must be a balance rejection, got %v", err)
	}
	require.Equal(t, 1, failures, "exactly one refund must be rejected")

	f.gw.mu.Lock()
	calls := f.gw.refundCalls
	f.gw.mu.Unlock()
	assert.Equal(t, 1, calls, "the rejected refund must never build a bank request")

	txn, err := f.txns.Get(outcome.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatePartialRefund, txn.State)
	assert.Equal(t, 100.0, txn.RefundedAmount)
}

func TestConcurrentCancelAndRefundSerialize(t *testing.T) {
	srv := slowBankServer(t, 50*time.Millisecond)
	f := newFixture(t, srv.URL)

	outcome, err := f.service.StartPayment(context.Background(), validRequest(false))
	require.NoError(t, err)

	var wg sync.WaitGroup
	var cancelErr, refundErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, cancelErr = f.service.Cancel(context.Background(), outcome.TransactionID)
	}()
	go func() {
		defer wg.Done()
		_, refundErr = f.service.Refund(context.Background(), outcome.TransactionID, 149.90)
	}()
	wg.Wait()

	// One operation wins, the loser is rejected by the state check
	// before any bank call. Both succeeding would reverse the charge
	// twice.
	if cancelErr == nil && refundErr == nil {
		t.Fatal("cancel and refund both succeeded against the same charge")
	}
	if cancelErr != nil && refundErr != nil {
		t.Fatalf("both operations failed: cancel=%v refund=%v", cancelErr, refundErr)
	}
}

func TestCancelOnlyFromSuccess(t *testing.T) {
	srv := bankServer(t, true)
	f := newFixture(t, srv.URL)

	outcome, err := f.service.StartPayment(context.Background(), validRequest(false))
	require.NoError(t, err)

	cancelled, err := f.service.Cancel(context.Background(), outcome.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StateCancelled, cancelled.State)

	// Second cancel is illegal from cancelled.
	_, err = f.service.Cancel(context.Background(), outcome.TransactionID)
	require.Error(t, err)
}

func TestListInstallmentsByBIN(t *testing.T) {
	srv := bankServer(t, true)
	f := newFixture(t, srv.URL)

	offer, err := f.service.ListInstallments(InstallmentRequest{BIN: "454360", Amount: 300})
	require.NoError(t, err)
	assert.Equal(t, "fakebank", offer.BankCode)
	require.Len(t, offer.Quotes, 2)
	assert.Equal(t, 1, offer.Quotes[0].Count)
	assert.Equal(t, 3, offer.Quotes[1].Count)
}

func TestListInstallmentsUnknownBINFallsBack(t *testing.T) {
	srv := bankServer(t, true)
	f := newFixture(t, srv.URL)

	offer, err := f.service.ListInstallments(InstallmentRequest{BIN: "999999", Amount: 300})
	require.NoError(t, err)
	assert.Equal(t, "fakebank", offer.BankCode)
	require.Len(t, offer.Quotes, 1)
	assert.Equal(t, 1, offer.Quotes[0].Count)
	assert.Equal(t, 300.0, offer.Quotes[0].Total)
}

func TestUnknownGatewayKindRejected(t *testing.T) {
	srv := bankServer(t, true)
	f := newFixture(t, srv.URL)

	dir := &memoryDirectory{
		banks: map[string]*bank.Profile{
			"ghost": {Code: "ghost", Kind: gateway.Kind("ghostpos"), MerchantID: "M", Environment: "test", Active: true},
		},
	}
	f.service.banks = dir

	req := validRequest(false)
	req.BankCode = "ghost"
	_, err := f.service.StartPayment(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown gateway kind")
	_ = srv
}
