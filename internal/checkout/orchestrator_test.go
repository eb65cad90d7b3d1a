package checkout

import (
	"context"
	"errors"
	"testing"

	"storefront-orderflow/internal/cart"
	"storefront-orderflow/internal/client"
	"storefront-orderflow/internal/order"
	"storefront-orderflow/internal/payment"
	"storefront-orderflow/internal/transport"
	"storefront-orderflow/internal/voucher"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockAPI struct {
	mock.Mock
}

func (m *MockAPI) ApplyVoucher(ctx context.Context, code string, orderTotal int64) (*voucher.Evaluation, error) {
	args := m.Called(ctx, code, orderTotal)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*voucher.Evaluation), args.Error(1)
}

func (m *MockAPI) CreateOrder(ctx context.Context, req transport.CreateOrderRequest) (*transport.CreateOrderResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transport.CreateOrderResponse), args.Error(1)
}

func (m *MockAPI) UpdateStatus(ctx context.Context, id string, change order.Change) (*order.Order, error) {
	args := m.Called(ctx, id, change)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

type MockJoiner struct {
	mock.Mock
}

func (m *MockJoiner) Mount(ctx context.Context, orderID string) (*order.Order, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

var pricing = voucher.Pricing{ShippingFee: 30000, VATPercent: 10}

var address = order.Address{ReceiverName: "Lan", Phone: "0900000000", Line1: "1 Le Loi", Province: "HCM"}

func newCart(t *testing.T) *cart.Cart {
	t.Helper()
	c := cart.New()
	_, err := c.Add(cart.Line{ProductID: "p1", Quantity: 2, UnitPrice: 1000000})
	require.NoError(t, err)
	_, err = c.Add(cart.Line{ProductID: "p2", Quantity: 1, UnitPrice: 1000000})
	require.NoError(t, err)
	return c
}

func created(method order.PaymentMethod) *order.Order {
	return &order.Order{
		ID:            "ord-1",
		UserID:        "user-1",
		Status:        order.StatusPending,
		PaymentStatus: order.PaymentUnpaid,
		PaymentMethod: method,
		TotalAmount:   3330000,
		Version:       1,
	}
}

type fixture struct {
	api    *MockAPI
	joiner *MockJoiner
	orch   *Orchestrator
}

func newFixture() *fixture {
	api := new(MockAPI)
	joiner := new(MockJoiner)
	return &fixture{api: api, joiner: joiner, orch: NewOrchestrator(api, joiner, pricing, nil)}
}

func TestStart(t *testing.T) {
	f := newFixture()

	_, err := f.orch.Start(cart.New(), address, order.PaymentCOD)
	assert.ErrorIs(t, err, ErrEmptyCart)

	_, err = f.orch.Start(newCart(t), order.Address{}, order.PaymentCOD)
	assert.ErrorIs(t, err, ErrMissingAddress)

	noPhone := address
	noPhone.Phone = ""
	_, err = f.orch.Start(newCart(t), noPhone, order.PaymentCOD)
	assert.ErrorIs(t, err, ErrMissingAddress)

	noProvince := address
	noProvince.Province = "  "
	_, err = f.orch.Start(newCart(t), noProvince, order.PaymentCOD)
	assert.ErrorIs(t, err, ErrMissingAddress)

	_, err = f.orch.Start(newCart(t), address, "CRYPTO")
	assert.ErrorIs(t, err, ErrInvalidMethod)

	a, err := f.orch.Start(newCart(t), address, order.PaymentCOD)
	require.NoError(t, err)
	assert.Equal(t, StateDraft, a.State())
	assert.NotEmpty(t, a.ID())
}

func TestStart_CopiesCart(t *testing.T) {
	f := newFixture()
	c := newCart(t)

	a, err := f.orch.Start(c, address, order.PaymentCOD)
	require.NoError(t, err)

	require.NoError(t, c.Clear())
	assert.Len(t, a.Snapshot().Lines, 2)
}

func TestSubmit_COD(t *testing.T) {
	f := newFixture()
	a, err := f.orch.Start(newCart(t), address, order.PaymentCOD)
	require.NoError(t, err)

	// 3,000,000 + 10% VAT + 30,000 shipping
	f.api.On("CreateOrder", mock.Anything, mock.MatchedBy(func(req transport.CreateOrderRequest) bool {
		return req.TotalAmount == 3330000 && req.VoucherID == nil && len(req.Items) == 2 &&
			req.Items[0].UnitPrice == 1000000 && req.Address.ReceiverName == "Lan"
	})).Return(&transport.CreateOrderResponse{Order: created(order.PaymentCOD)}, nil)
	f.joiner.On("Mount", mock.Anything, "ord-1").Return(created(order.PaymentCOD), nil)

	res, err := f.orch.Submit(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, res.State)
	assert.Nil(t, res.Reference)
	assert.Equal(t, StateCompleted, a.State())

	f.api.AssertExpectations(t)
	f.joiner.AssertExpectations(t)
}

func TestSubmit_Bank(t *testing.T) {
	f := newFixture()
	a, err := f.orch.Start(newCart(t), address, order.PaymentBank)
	require.NoError(t, err)

	resp := &transport.CreateOrderResponse{
		Order:        created(order.PaymentBank),
		QRCodeURL:    "https://img.vietqr.io/image/VCB-123-compact2.png",
		BankInfo:     &payment.BankInfo{BankCode: "VCB", AccountNo: "123", Amount: 3330000},
		Instructions: []string{"Transfer"},
	}
	f.api.On("CreateOrder", mock.Anything, mock.Anything).Return(resp, nil)
	f.joiner.On("Mount", mock.Anything, "ord-1").Return(created(order.PaymentBank), nil)

	res, err := f.orch.Submit(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingPayment, res.State)
	require.NotNil(t, res.Reference)
	assert.Equal(t, resp.QRCodeURL, res.Reference.QRCodeURL)
	assert.Equal(t, int64(3330000), res.Reference.BankInfo.Amount)

	_, err = f.orch.Submit(context.Background(), a)
	assert.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, f.orch.ConfirmPaid(a))
	assert.Equal(t, StatePaidConfirmed, a.State())

	_, err = f.orch.Cancel(context.Background(), a)
	assert.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, f.orch.Complete(a))
	assert.Equal(t, StateCompleted, a.State())
}

func TestSubmit_TrackingFailureDoesNotFailCheckout(t *testing.T) {
	f := newFixture()
	a, _ := f.orch.Start(newCart(t), address, order.PaymentCOD)

	f.api.On("CreateOrder", mock.Anything, mock.Anything).Return(&transport.CreateOrderResponse{Order: created(order.PaymentCOD)}, nil)
	f.joiner.On("Mount", mock.Anything, "ord-1").Return(nil, client.ErrNetworkFailure)

	res, err := f.orch.Submit(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, res.State)
}

func TestApplyVoucher(t *testing.T) {
	f := newFixture()
	a, _ := f.orch.Start(newCart(t), address, order.PaymentCOD)
	ctx := context.Background()

	id := uuid.New()
	eval := &voucher.Evaluation{VoucherID: &id, Code: "SALE10", DiscountAmount: 200000, FinalTotal: 3130000}
	f.api.On("ApplyVoucher", ctx, "sale10", int64(3000000)).Return(eval, nil).Once()
	f.api.On("ApplyVoucher", ctx, "OLD", int64(3000000)).Return(nil, voucher.ErrOutOfWindow).Once()

	got, err := f.orch.ApplyVoucher(ctx, a, "sale10")
	require.NoError(t, err)
	assert.Equal(t, int64(200000), got.DiscountAmount)
	assert.Equal(t, StateVoucherEvaluated, a.State())

	// A rejected code is surfaced and the earlier voucher stays.
	_, err = f.orch.ApplyVoucher(ctx, a, "OLD")
	assert.ErrorIs(t, err, voucher.ErrOutOfWindow)
	snap := a.Snapshot()
	assert.Equal(t, StateVoucherEvaluated, snap.State)
	assert.Equal(t, "SALE10", snap.Evaluation.Code)
	assert.ErrorIs(t, snap.Err, voucher.ErrOutOfWindow)

	f.api.On("CreateOrder", mock.Anything, mock.MatchedBy(func(req transport.CreateOrderRequest) bool {
		return req.VoucherID != nil && *req.VoucherID == id && req.VoucherCode == "SALE10" && req.TotalAmount == 3130000
	})).Return(&transport.CreateOrderResponse{Order: created(order.PaymentCOD)}, nil)
	f.joiner.On("Mount", mock.Anything, "ord-1").Return(created(order.PaymentCOD), nil)

	_, err = f.orch.Submit(ctx, a)
	require.NoError(t, err)

	_, err = f.orch.ApplyVoucher(ctx, a, "sale10")
	assert.ErrorIs(t, err, ErrInvalidState)
	f.api.AssertExpectations(t)
}

func TestRemoveVoucher(t *testing.T) {
	f := newFixture()
	a, _ := f.orch.Start(newCart(t), address, order.PaymentCOD)

	assert.ErrorIs(t, f.orch.RemoveVoucher(a), ErrInvalidState)

	f.api.On("ApplyVoucher", mock.Anything, "SALE10", int64(3000000)).Return(&voucher.Evaluation{Code: "SALE10", FinalTotal: 1}, nil)
	_, err := f.orch.ApplyVoucher(context.Background(), a, "SALE10")
	require.NoError(t, err)

	require.NoError(t, f.orch.RemoveVoucher(a))
	assert.Equal(t, StateDraft, a.State())
	assert.Nil(t, a.Snapshot().Evaluation)
}

func TestSubmit_ExhaustedAtCommit(t *testing.T) {
	f := newFixture()
	a, _ := f.orch.Start(newCart(t), address, order.PaymentBank)
	ctx := context.Background()

	f.api.On("ApplyVoucher", ctx, "LAST1", int64(3000000)).Return(&voucher.Evaluation{Code: "LAST1", DiscountAmount: 100000, FinalTotal: 3230000}, nil)
	_, err := f.orch.ApplyVoucher(ctx, a, "LAST1")
	require.NoError(t, err)

	exhausted := &client.APIError{Status: 409, Code: "voucher_exhausted"}
	f.api.On("CreateOrder", ctx, mock.Anything).Return(nil, exhausted)

	_, err = f.orch.Submit(ctx, a)
	assert.ErrorIs(t, err, voucher.ErrExhausted)

	snap := a.Snapshot()
	assert.Equal(t, StateVoucherEvaluated, snap.State)
	assert.Equal(t, int64(100000), snap.Evaluation.DiscountAmount)
	assert.ErrorIs(t, snap.Err, voucher.ErrExhausted)
	assert.Nil(t, snap.Order)
	f.joiner.AssertNotCalled(t, "Mount", mock.Anything, mock.Anything)
}

func TestSubmit_OtherFailureRestoresState(t *testing.T) {
	f := newFixture()
	a, _ := f.orch.Start(newCart(t), address, order.PaymentCOD)

	f.api.On("CreateOrder", mock.Anything, mock.Anything).Return(nil, client.ErrNetworkFailure)

	_, err := f.orch.Submit(context.Background(), a)
	assert.ErrorIs(t, err, client.ErrNetworkFailure)
	assert.Equal(t, StateDraft, a.State())
}

func awaitingPayment(t *testing.T, f *fixture) *Attempt {
	t.Helper()
	a, err := f.orch.Start(newCart(t), address, order.PaymentBank)
	require.NoError(t, err)

	f.api.On("CreateOrder", mock.Anything, mock.Anything).Return(&transport.CreateOrderResponse{Order: created(order.PaymentBank)}, nil)
	f.joiner.On("Mount", mock.Anything, "ord-1").Return(created(order.PaymentBank), nil)

	_, err = f.orch.Submit(context.Background(), a)
	require.NoError(t, err)
	require.Equal(t, StateAwaitingPayment, a.State())
	return a
}

func TestCancel(t *testing.T) {
	f := newFixture()
	a := awaitingPayment(t, f)

	cancelled := created(order.PaymentBank)
	cancelled.Status = order.StatusCancelled
	cancelled.Version = 2

	status := order.StatusCancelled
	f.api.On("UpdateStatus", mock.Anything, "ord-1", order.Change{Status: &status}).Return(cancelled, nil)

	got, err := f.orch.Cancel(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, got.Status)
	assert.Equal(t, StateCancelled, a.State())

	_, err = f.orch.Cancel(context.Background(), a)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCancel_Errors(t *testing.T) {
	t.Run("from draft", func(t *testing.T) {
		f := newFixture()
		a, _ := f.orch.Start(newCart(t), address, order.PaymentBank)
		_, err := f.orch.Cancel(context.Background(), a)

		var se *StateError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, StateDraft, se.State)
	})

	t.Run("conflict is surfaced", func(t *testing.T) {
		f := newFixture()
		a := awaitingPayment(t, f)
		f.api.On("UpdateStatus", mock.Anything, "ord-1", mock.Anything).Return(nil, &client.APIError{Status: 409, Code: "conflict"})

		_, err := f.orch.Cancel(context.Background(), a)
		assert.ErrorIs(t, err, order.ErrConflict)
		assert.Equal(t, StateAwaitingPayment, a.State())
	})

	t.Run("after payment observed", func(t *testing.T) {
		f := newFixture()
		a := awaitingPayment(t, f)

		paid := created(order.PaymentBank)
		paid.PaymentStatus = order.PaymentPaid
		paid.Version = 2
		require.True(t, f.orch.Observe(a, paid))

		_, err := f.orch.Cancel(context.Background(), a)
		assert.ErrorIs(t, err, ErrInvalidState)
		f.api.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestObserve(t *testing.T) {
	f := newFixture()
	a := awaitingPayment(t, f)

	assert.False(t, f.orch.Observe(a, created(order.PaymentBank)), "same version")

	other := created(order.PaymentBank)
	other.ID = "ord-2"
	other.Version = 5
	assert.False(t, f.orch.Observe(a, other))

	failed := created(order.PaymentBank)
	failed.PaymentStatus = order.PaymentFailed
	failed.Version = 2
	assert.True(t, f.orch.Observe(a, failed))
	assert.Equal(t, StateAwaitingPayment, a.State())

	stale := created(order.PaymentBank)
	assert.False(t, f.orch.Observe(a, stale))

	adminCancel := created(order.PaymentBank)
	adminCancel.Status = order.StatusCancelled
	adminCancel.Version = 3
	assert.True(t, f.orch.Observe(a, adminCancel))
	assert.Equal(t, StateCancelled, a.State())
}

func TestConfirmPaidAndCompleteNeedOrder(t *testing.T) {
	f := newFixture()
	a, _ := f.orch.Start(newCart(t), address, order.PaymentBank)

	assert.ErrorIs(t, f.orch.ConfirmPaid(a), ErrInvalidState)
	assert.ErrorIs(t, f.orch.Complete(a), ErrInvalidState)
	assert.True(t, errors.Is(&StateError{Step: "x", State: StateDraft}, ErrInvalidState))
}
