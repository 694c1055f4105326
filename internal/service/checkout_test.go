package service

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/tentshop/storefront/pkg/errors"

	"github.com/tentshop/storefront/internal/auth"
	"github.com/tentshop/storefront/internal/domain"
	"github.com/tentshop/storefront/internal/gateway"
)

const (
	trekkerID  = "6f1c1b8e-3c1e-4a43-9a57-0f8d3f0b2a10"
	familyID   = "9a0a2c7e-5d7b-4f2f-8d2e-3b8b1e2c4d55"
	guestToken = "QUFBQUFBQUFBQUFBQUFBQUFBQUFBQUFBQUFBQUFBQUE"
	successURL = "https://shop.example.be/success?session_id={CHECKOUT_SESSION_ID}"
	cancelURL  = "https://shop.example.be/cancel?session_id={CHECKOUT_SESSION_ID}"
)

type checkoutFixture struct {
	products *mockProductRepository
	orders   *mockOrderRepository
	gateway  *mockGateway
	events   *mockPublisher
	svc      *CheckoutService
	logs     *bytes.Buffer
}

func trekker() *domain.Product {
	return &domain.Product{ID: trekkerID, Slug: "trekker-2p", Name: "Trekker 2P", PriceCents: 24900, Currency: "EUR", Stock: 3, Active: true}
}

func family() *domain.Product {
	return &domain.Product{ID: familyID, Slug: "family-4p", Name: "Family 4P", PriceCents: 45900, Currency: "EUR", Stock: 10, Active: true}
}

func newCheckoutFixture(t *testing.T, validator TokenValidator) *checkoutFixture {
	t.Helper()
	f := &checkoutFixture{
		products: new(mockProductRepository),
		orders:   new(mockOrderRepository),
		gateway:  new(mockGateway),
		events:   new(mockPublisher),
		logs:     &bytes.Buffer{},
	}
	cfg := CheckoutConfig{
		Currency:   "EUR",
		Shipping:   domain.NewShippingPolicy([]string{"BE"}, nil, 1500),
		SuccessURL: successURL,
		CancelURL:  cancelURL,
		Timeouts:   Timeouts{Gateway: time.Second, Store: time.Second},
	}
	logger := slog.New(slog.NewJSONHandler(f.logs, nil))
	f.svc = NewCheckoutService(f.products, f.orders, f.gateway, fixedTokens{token: guestToken}, validator, f.events, cfg, logger)
	return f
}

func openSession() *gateway.Session {
	return &gateway.Session{ID: "cs_test_1", URL: "https://checkout.stripe.com/c/pay/cs_test_1", Status: gateway.SessionOpen}
}

func guestInput(country string, items ...CheckoutItemInput) CheckoutInput {
	return CheckoutInput{Items: items, ShippingCountry: country, CustomerEmail: "camper@example.com"}
}

// --- Success paths ---

func TestCreateCheckout_GuestAbroad(t *testing.T) {
	f := newCheckoutFixture(t, nil)
	ctx := context.Background()

	f.products.On("ResolveProduct", mock.Anything, "trekker-2p").Return(trekker(), nil)
	f.products.On("ResolveProduct", mock.Anything, familyID).Return(family(), nil)

	var sessionInput *gateway.CreateSessionInput
	f.gateway.On("CreateSession", mock.Anything, mock.AnythingOfType("*gateway.CreateSessionInput")).
		Run(func(args mock.Arguments) { sessionInput = args.Get(1).(*gateway.CreateSessionInput) }).
		Return(openSession(), nil)

	var stored *domain.Order
	f.orders.On("Create", mock.Anything, mock.AnythingOfType("*domain.Order")).
		Run(func(args mock.Arguments) { stored = args.Get(1).(*domain.Order) }).
		Return(nil)
	f.events.On("PublishOrderCreated", ctx, mock.AnythingOfType("*domain.Order")).Return(nil)

	res, err := f.svc.CreateCheckout(ctx, guestInput("nl",
		CheckoutItemInput{ProductRef: "trekker-2p", Quantity: 2},
		CheckoutItemInput{ProductRef: familyID, Quantity: 1},
	))

	require.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", res.URL)
	assert.Equal(t, guestToken, res.GuestToken)

	require.NotNil(t, stored)
	assert.Equal(t, res.OrderID, stored.ID)
	assert.Equal(t, domain.OrderStatusPending, stored.Status)
	assert.Equal(t, "cs_test_1", stored.SessionID)
	assert.Equal(t, guestToken, stored.GuestAccessToken)
	assert.Nil(t, stored.UserID)
	assert.Equal(t, "camper@example.com", stored.CustomerEmail)
	assert.Equal(t, "NL", stored.ShippingCountry)
	assert.Equal(t, int64(1500), stored.ShippingCostCents)
	assert.Equal(t, int64(24900*2+45900+1500), stored.AmountCents)
	assert.Equal(t, stored.AmountCents, stored.SubtotalCents()+stored.ShippingCostCents)
	require.Len(t, stored.Items, 2)
	assert.Equal(t, int64(49800), stored.Items[0].TotalCents)
	assert.Equal(t, "Trekker 2P", stored.Items[0].ProductName)

	require.NotNil(t, sessionInput)
	assert.Equal(t, stored.ID, sessionInput.OrderID)
	assert.Equal(t, "EUR", sessionInput.Currency)
	assert.Equal(t, successURL, sessionInput.SuccessURL)
	assert.Equal(t, cancelURL, sessionInput.CancelURL)
	assert.Equal(t, map[string]string{"order_id": stored.ID}, sessionInput.Metadata)
	assert.NotContains(t, sessionInput.Metadata, "guest_token")
	require.Len(t, sessionInput.Items, 3)
	assert.Equal(t, gateway.LineItem{Name: "Shipping", UnitAmountCents: 1500, Quantity: 1}, sessionInput.Items[2])
	assert.Equal(t, stored.AmountCents, sessionInput.TotalCents())

	f.products.AssertExpectations(t)
	f.events.AssertExpectations(t)
}

func TestCreateCheckout_HomeCountryShipsFree(t *testing.T) {
	f := newCheckoutFixture(t, nil)

	f.products.On("ResolveProduct", mock.Anything, "trekker-2p").Return(trekker(), nil)
	f.gateway.On("CreateSession", mock.Anything, mock.MatchedBy(func(in *gateway.CreateSessionInput) bool {
		return len(in.Items) == 1 && in.Items[0].Name == "Trekker 2P"
	})).Return(openSession(), nil)
	f.orders.On("Create", mock.Anything, mock.MatchedBy(func(o *domain.Order) bool {
		return o.ShippingCostCents == 0 && o.AmountCents == 24900
	})).Return(nil)
	f.events.On("PublishOrderCreated", mock.Anything, mock.Anything).Return(nil)

	_, err := f.svc.CreateCheckout(context.Background(), guestInput("BE", CheckoutItemInput{ProductRef: "trekker-2p", Quantity: 1}))

	require.NoError(t, err)
	f.gateway.AssertExpectations(t)
	f.orders.AssertExpectations(t)
}

func TestCreateCheckout_SameProductTwiceKeepsBothLines(t *testing.T) {
	f := newCheckoutFixture(t, nil)

	f.products.On("ResolveProduct", mock.Anything, "trekker-2p").Return(trekker(), nil)
	f.gateway.On("CreateSession", mock.Anything, mock.Anything).Return(openSession(), nil)
	f.orders.On("Create", mock.Anything, mock.MatchedBy(func(o *domain.Order) bool {
		return len(o.Items) == 2 && o.Items[0].Quantity == 1 && o.Items[1].Quantity == 2
	})).Return(nil)
	f.events.On("PublishOrderCreated", mock.Anything, mock.Anything).Return(nil)

	_, err := f.svc.CreateCheckout(context.Background(), guestInput("BE",
		CheckoutItemInput{ProductRef: "trekker-2p", Quantity: 1},
		CheckoutItemInput{ProductRef: "trekker-2p", Quantity: 2},
	))

	require.NoError(t, err)
	f.orders.AssertExpectations(t)
}

func TestCreateCheckout_AuthenticatedBuyer(t *testing.T) {
	f := newCheckoutFixture(t, stubValidator{claims: &auth.Claims{UserID: "user-42", Email: "member@example.com"}})

	f.products.On("ResolveProduct", mock.Anything, "trekker-2p").Return(trekker(), nil)
	f.gateway.On("CreateSession", mock.Anything, mock.MatchedBy(func(in *gateway.CreateSessionInput) bool {
		return in.CustomerEmail == "member@example.com"
	})).Return(openSession(), nil)
	f.orders.On("Create", mock.Anything, mock.MatchedBy(func(o *domain.Order) bool {
		return o.UserID != nil && *o.UserID == "user-42" && o.CustomerEmail == "member@example.com"
	})).Return(nil)
	f.events.On("PublishOrderCreated", mock.Anything, mock.Anything).Return(nil)

	_, err := f.svc.CreateCheckout(context.Background(), CheckoutInput{
		Items:           []CheckoutItemInput{{ProductRef: "trekker-2p", Quantity: 1}},
		ShippingCountry: "BE",
		AuthToken:       "valid.jwt.token",
	})

	require.NoError(t, err)
	f.gateway.AssertExpectations(t)
	f.orders.AssertExpectations(t)
}

func TestCreateCheckout_InvalidTokenFallsBackToGuest(t *testing.T) {
	f := newCheckoutFixture(t, stubValidator{err: errors.New("token is expired")})

	f.products.On("ResolveProduct", mock.Anything, "trekker-2p").Return(trekker(), nil)
	f.gateway.On("CreateSession", mock.Anything, mock.Anything).Return(openSession(), nil)
	f.orders.On("Create", mock.Anything, mock.MatchedBy(func(o *domain.Order) bool {
		return o.UserID == nil && o.CustomerEmail == "camper@example.com"
	})).Return(nil)
	f.events.On("PublishOrderCreated", mock.Anything, mock.Anything).Return(nil)

	in := guestInput("BE", CheckoutItemInput{ProductRef: "trekker-2p", Quantity: 1})
	in.AuthToken = "expired.jwt.token"
	_, err := f.svc.CreateCheckout(context.Background(), in)

	require.NoError(t, err)
	f.orders.AssertExpectations(t)
}

func TestCreateCheckout_PublishFailureIsNotFatal(t *testing.T) {
	f := newCheckoutFixture(t, nil)

	f.products.On("ResolveProduct", mock.Anything, "trekker-2p").Return(trekker(), nil)
	f.gateway.On("CreateSession", mock.Anything, mock.Anything).Return(openSession(), nil)
	f.orders.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.events.On("PublishOrderCreated", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	res, err := f.svc.CreateCheckout(context.Background(), guestInput("BE", CheckoutItemInput{ProductRef: "trekker-2p", Quantity: 1}))

	require.NoError(t, err)
	assert.NotEmpty(t, res.OrderID)
	assert.Contains(t, f.logs.String(), "failed to publish order.created event")
}

// --- Validation failures: nothing reaches the gateway or the store ---

func TestCreateCheckout_ValidationErrors(t *testing.T) {
	inactive := trekker()
	inactive.Active = false
	dollars := trekker()
	dollars.Currency = "USD"

	tests := []struct {
		name    string
		setup   func(p *mockProductRepository)
		input   CheckoutInput
		wantMsg string
	}{
		{
			name:    "empty cart",
			setup:   func(*mockProductRepository) {},
			input:   guestInput("BE"),
			wantMsg: "cart is empty",
		},
		{
			name:    "bad country",
			setup:   func(*mockProductRepository) {},
			input:   guestInput("BEL", CheckoutItemInput{ProductRef: "trekker-2p", Quantity: 1}),
			wantMsg: "shipping_country",
		},
		{
			name:    "zero quantity",
			setup:   func(*mockProductRepository) {},
			input:   guestInput("BE", CheckoutItemInput{ProductRef: "trekker-2p", Quantity: 0}),
			wantMsg: "quantity must be at least 1",
		},
		{
			name: "unknown product",
			setup: func(p *mockProductRepository) {
				p.On("ResolveProduct", mock.Anything, "ghost-tent").Return(nil, apperrors.ErrNotFound)
			},
			input:   guestInput("BE", CheckoutItemInput{ProductRef: "ghost-tent", Quantity: 1}),
			wantMsg: `product "ghost-tent" does not exist`,
		},
		{
			name: "inactive product",
			setup: func(p *mockProductRepository) {
				p.On("ResolveProduct", mock.Anything, "trekker-2p").Return(inactive, nil)
			},
			input:   guestInput("BE", CheckoutItemInput{ProductRef: "trekker-2p", Quantity: 1}),
			wantMsg: "is not available",
		},
		{
			name: "currency mismatch",
			setup: func(p *mockProductRepository) {
				p.On("ResolveProduct", mock.Anything, "trekker-2p").Return(dollars, nil)
			},
			input:   guestInput("BE", CheckoutItemInput{ProductRef: "trekker-2p", Quantity: 1}),
			wantMsg: "is not sold in EUR",
		},
		{
			name: "stock aggregated across lines",
			setup: func(p *mockProductRepository) {
				p.On("ResolveProduct", mock.Anything, "trekker-2p").Return(trekker(), nil)
				p.On("ResolveProduct", mock.Anything, trekkerID).Return(trekker(), nil)
			},
			input: guestInput("BE",
				CheckoutItemInput{ProductRef: "trekker-2p", Quantity: 2},
				CheckoutItemInput{ProductRef: trekkerID, Quantity: 2},
			),
			wantMsg: `insufficient stock for "Trekker 2P"`,
		},
		{
			name: "guest without email",
			setup: func(p *mockProductRepository) {
				p.On("ResolveProduct", mock.Anything, "trekker-2p").Return(trekker(), nil)
			},
			input: CheckoutInput{
				Items:           []CheckoutItemInput{{ProductRef: "trekker-2p", Quantity: 1}},
				ShippingCountry: "BE",
			},
			wantMsg: "customer_email is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCheckoutFixture(t, nil)
			tt.setup(f.products)

			res, err := f.svc.CreateCheckout(context.Background(), tt.input)

			require.Error(t, err)
			assert.Nil(t, res)
			assert.Equal(t, http.StatusBadRequest, apperrors.HTTPStatus(err))
			assert.Contains(t, err.Error(), tt.wantMsg)
			f.gateway.AssertNotCalled(t, "CreateSession", mock.Anything, mock.Anything)
			f.orders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestCreateCheckout_ShippingAllowList(t *testing.T) {
	f := newCheckoutFixture(t, nil)
	f.svc.cfg.Shipping = domain.NewShippingPolicy([]string{"BE"}, []string{"NL"}, 1500)

	_, err := f.svc.CreateCheckout(context.Background(), guestInput("US", CheckoutItemInput{ProductRef: "trekker-2p", Quantity: 1}))

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	f.products.AssertNotCalled(t, "ResolveProduct", mock.Anything, mock.Anything)
}

// --- Dependency failures ---

func TestCreateCheckout_CatalogUnavailable(t *testing.T) {
	f := newCheckoutFixture(t, nil)
	f.products.On("ResolveProduct", mock.Anything, "trekker-2p").Return(nil, errors.New("connection refused"))

	_, err := f.svc.CreateCheckout(context.Background(), guestInput("BE", CheckoutItemInput{ProductRef: "trekker-2p", Quantity: 1}))

	require.Error(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, apperrors.HTTPStatus(err))
	f.gateway.AssertNotCalled(t, "CreateSession", mock.Anything, mock.Anything)
}

func TestCreateCheckout_GatewayFailureCreatesNoOrder(t *testing.T) {
	f := newCheckoutFixture(t, nil)
	f.products.On("ResolveProduct", mock.Anything, "trekker-2p").Return(trekker(), nil)
	f.gateway.On("CreateSession", mock.Anything, mock.Anything).
		Return(nil, apperrors.ServiceUnavailable(errors.New("stripe returned 503")))

	_, err := f.svc.CreateCheckout(context.Background(), guestInput("BE", CheckoutItemInput{ProductRef: "trekker-2p", Quantity: 1}))

	require.Error(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, apperrors.HTTPStatus(err))
	f.orders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	f.events.AssertNotCalled(t, "PublishOrderCreated", mock.Anything, mock.Anything)
}

func TestCreateCheckout_TokenGenerationFailure(t *testing.T) {
	f := newCheckoutFixture(t, nil)
	f.svc.tokens = fixedTokens{err: errors.New("entropy exhausted")}
	f.products.On("ResolveProduct", mock.Anything, "trekker-2p").Return(trekker(), nil)

	_, err := f.svc.CreateCheckout(context.Background(), guestInput("BE", CheckoutItemInput{ProductRef: "trekker-2p", Quantity: 1}))

	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, apperrors.HTTPStatus(err))
	f.gateway.AssertNotCalled(t, "CreateSession", mock.Anything, mock.Anything)
}

func TestCreateCheckout_PersistFailureIsConsistencyError(t *testing.T) {
	f := newCheckoutFixture(t, nil)
	before := testutil.ToFloat64(checkoutConsistencyErrors)

	f.products.On("ResolveProduct", mock.Anything, "trekker-2p").Return(trekker(), nil)
	f.gateway.On("CreateSession", mock.Anything, mock.Anything).Return(openSession(), nil)
	f.orders.On("Create", mock.Anything, mock.Anything).Return(errors.New("unique violation"))
	f.gateway.On("ExpireSession", mock.Anything, "cs_test_1").Return(nil)

	res, err := f.svc.CreateCheckout(context.Background(), guestInput("BE", CheckoutItemInput{ProductRef: "trekker-2p", Quantity: 1}))

	require.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, http.StatusInternalServerError, apperrors.HTTPStatus(err))

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "an internal error occurred", appErr.Message)

	assert.Equal(t, before+1, testutil.ToFloat64(checkoutConsistencyErrors))
	assert.Contains(t, f.logs.String(), "checkout consistency error")
	assert.Contains(t, f.logs.String(), `"session_id":"cs_test_1"`)
	f.gateway.AssertCalled(t, "ExpireSession", mock.Anything, "cs_test_1")
	f.events.AssertNotCalled(t, "PublishOrderCreated", mock.Anything, mock.Anything)
}

func TestCreateCheckout_PersistFailureExpireAlsoFails(t *testing.T) {
	f := newCheckoutFixture(t, nil)

	f.products.On("ResolveProduct", mock.Anything, "trekker-2p").Return(trekker(), nil)
	f.gateway.On("CreateSession", mock.Anything, mock.Anything).Return(openSession(), nil)
	f.orders.On("Create", mock.Anything, mock.Anything).Return(errors.New("connection reset"))
	f.gateway.On("ExpireSession", mock.Anything, "cs_test_1").Return(errors.New("stripe unavailable"))

	_, err := f.svc.CreateCheckout(context.Background(), guestInput("BE", CheckoutItemInput{ProductRef: "trekker-2p", Quantity: 1}))

	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, apperrors.HTTPStatus(err))
	assert.Contains(t, f.logs.String(), "failed to expire orphaned payment session")
}

func TestCreateCheckout_TotalsByCountry(t *testing.T) {
	tests := []struct {
		country   string
		wantTotal int64
	}{
		{"BE", 2000},
		{"FR", 3500},
	}

	for _, tt := range tests {
		t.Run(tt.country, func(t *testing.T) {
			f := newCheckoutFixture(t, nil)
			product := &domain.Product{ID: trekkerID, Slug: "product-a", Name: "Product A", PriceCents: 1000, Currency: "EUR", Stock: 5, Active: true}

			f.products.On("ResolveProduct", mock.Anything, "product-a").Return(product, nil)
			f.gateway.On("CreateSession", mock.Anything, mock.Anything).Return(openSession(), nil)
			var stored *domain.Order
			f.orders.On("Create", mock.Anything, mock.Anything).
				Run(func(args mock.Arguments) { stored = args.Get(1).(*domain.Order) }).
				Return(nil)
			f.events.On("PublishOrderCreated", mock.Anything, mock.Anything).Return(nil)

			_, err := f.svc.CreateCheckout(context.Background(), guestInput(tt.country, CheckoutItemInput{ProductRef: "product-a", Quantity: 2}))

			require.NoError(t, err)
			require.NotNil(t, stored)
			assert.Equal(t, tt.wantTotal, stored.AmountCents)
			require.Len(t, stored.Items, 1)
			assert.Equal(t, 2, stored.Items[0].Quantity)
			assert.Equal(t, int64(1000), stored.Items[0].UnitPriceCents)
			assert.Equal(t, int64(2000), stored.Items[0].TotalCents)
		})
	}
}
