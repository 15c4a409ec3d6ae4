package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/smallbiznis/payflow/internal/auth"
	checkoutservice "github.com/smallbiznis/payflow/internal/checkout/service"
	"github.com/smallbiznis/payflow/internal/config"
	creditdomain "github.com/smallbiznis/payflow/internal/credit/domain"
	creditrepository "github.com/smallbiznis/payflow/internal/credit/repository"
	orderdomain "github.com/smallbiznis/payflow/internal/order/domain"
	orderrepository "github.com/smallbiznis/payflow/internal/order/repository"
	"github.com/smallbiznis/payflow/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/payflow/internal/payment/domain"
	"github.com/smallbiznis/payflow/internal/pricing"
	subscriptiondomain "github.com/smallbiznis/payflow/internal/subscription/domain"
	subscriptionrepository "github.com/smallbiznis/payflow/internal/subscription/repository"
)

type stubAdapter struct {
	name string

	createSession *paymentdomain.Session
	createErr     error

	getSession *paymentdomain.Session
	getErr     error

	webhookEvent *paymentdomain.WebhookEvent
	webhookErr   error
}

func (a *stubAdapter) Name() string { return a.name }

func (a *stubAdapter) CreatePayment(ctx context.Context, req paymentdomain.CheckoutRequest) (*paymentdomain.Session, error) {
	return a.createSession, a.createErr
}

func (a *stubAdapter) GetSession(ctx context.Context, q paymentdomain.SessionQuery) (*paymentdomain.Session, error) {
	return a.getSession, a.getErr
}

func (a *stubAdapter) HandleWebhook(ctx context.Context, payload []byte, headers map[string]string) (*paymentdomain.WebhookEvent, error) {
	return a.webhookEvent, a.webhookErr
}

const testCatalog = `items:
  - product_id: credits-100
    product_name: 100 Credits
    amount: 990
    currency: usd
    credits: 100
    valid_days: 365
`

type testServer struct {
	engine   *gin.Engine
	db       *gorm.DB
	sessions *auth.Manager
	adapter  *stubAdapter
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Config{
		AppURL:        "https://app.example.test",
		DefaultLocale: "en",
		AuthJWTSecret: "test-secret",
	}

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	require.NoError(t, db.AutoMigrate(&orderdomain.Order{}, &subscriptiondomain.Subscription{}, &creditdomain.Credit{}))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pricing.yml"), []byte(testCatalog), 0o600))
	catalog, err := pricing.NewCatalog([]string{dir}, zap.NewNop())
	require.NoError(t, err)

	adapter := &stubAdapter{name: "stripe"}
	registry, err := adapters.NewRegistry("stripe", adapter)
	require.NoError(t, err)

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	sessions, err := auth.NewManager(cfg)
	require.NoError(t, err)

	svc := checkoutservice.NewService(checkoutservice.Params{
		DB:            db,
		Log:           zap.NewNop(),
		Cfg:           cfg,
		Node:          node,
		Catalog:       catalog,
		Adapters:      registry,
		Orders:        orderrepository.Provide(),
		Subscriptions: subscriptionrepository.Provide(),
		Credits:       creditrepository.Provide(),
	})

	engine := gin.New()
	engine.Use(auth.Middleware(sessions))
	engine.Use(ErrorHandlingMiddleware())

	NewServer(ServerParams{
		Gin:           engine,
		Cfg:           cfg,
		Log:           zap.NewNop(),
		DB:            db,
		Sessions:      sessions,
		CheckoutSvc:   svc,
		PaymentGws:    registry,
		Orders:        orderrepository.Provide(),
		Subscriptions: subscriptionrepository.Provide(),
	})

	return &testServer{engine: engine, db: db, sessions: sessions, adapter: adapter}
}

func (ts *testServer) do(t *testing.T, method, path string, body any, user *auth.User) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != nil {
		token, err := ts.sessions.Issue(*user, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)
	return w
}

var testUser = auth.User{ID: "user-1", Email: "buyer@example.test", Name: "Buyer"}

func TestCreateCheckoutReturnsSession(t *testing.T) {
	ts := newTestServer(t)
	ts.adapter.createSession = &paymentdomain.Session{
		ID:  "cs_1",
		URL: "https://pay.example.test/cs_1",
		Raw: []byte(`{}`),
	}

	w := ts.do(t, http.MethodPost, "/api/checkout", gin.H{"product_id": "credits-100"}, &testUser)
	require.Equal(t, http.StatusOK, w.Code)

	var resp checkoutResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "cs_1", resp.SessionID)
	require.Equal(t, "https://pay.example.test/cs_1", resp.CheckoutURL)
	require.NotEmpty(t, resp.OrderNo)
}

func TestCreateCheckoutRequiresAuth(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/checkout", gin.H{"product_id": "credits-100"}, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateCheckoutUnknownProduct(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/checkout", gin.H{"product_id": "nope"}, &testUser)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "invalid_request", resp.Error.Type)
}

func TestCheckoutCallbackRedirectsOnSuccess(t *testing.T) {
	ts := newTestServer(t)
	ts.adapter.createSession = &paymentdomain.Session{ID: "cs_ok", URL: "https://pay.example.test/cs_ok"}
	ts.adapter.getSession = &paymentdomain.Session{
		ID:     "cs_ok",
		Status: paymentdomain.StatusCompleted,
		Payment: &paymentdomain.PaymentInfo{
			Amount: 990, Currency: "usd", Email: testUser.Email, PaidAt: time.Now().UTC(),
		},
		Raw: []byte(`{"status":"complete"}`),
	}

	w := ts.do(t, http.MethodPost, "/api/checkout", gin.H{"product_id": "credits-100"}, &testUser)
	require.Equal(t, http.StatusOK, w.Code)
	var created checkoutResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = ts.do(t, http.MethodGet, "/api/checkout/callback?order_no="+created.OrderNo, nil, &testUser)
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "https://app.example.test/settings/payments", w.Header().Get("Location"))

	var order orderdomain.Order
	require.NoError(t, ts.db.Where("order_no = ?", created.OrderNo).First(&order).Error)
	require.Equal(t, orderdomain.StatusPaid, order.Status)
}

func TestCheckoutCallbackNeverErrorsToBrowser(t *testing.T) {
	ts := newTestServer(t)

	// Unknown order still lands on a page.
	w := ts.do(t, http.MethodGet, "/api/checkout/callback?order_no=123", nil, &testUser)
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "https://app.example.test/pricing", w.Header().Get("Location"))

	// So does a missing order_no.
	w = ts.do(t, http.MethodGet, "/api/checkout/callback", nil, nil)
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "https://app.example.test/pricing", w.Header().Get("Location"))
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	ts := newTestServer(t)
	ts.adapter.webhookErr = paymentdomain.ErrInvalidSignature

	w := ts.do(t, http.MethodPost, "/api/webhooks/stripe", gin.H{"id": "evt_1"}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "invalid_signature", resp.Error.Type)
}

func TestWebhookAcknowledgesIgnoredEvents(t *testing.T) {
	ts := newTestServer(t)
	ts.adapter.webhookErr = paymentdomain.ErrEventIgnored

	w := ts.do(t, http.MethodPost, "/api/webhooks/stripe", gin.H{"id": "evt_1"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestWebhookUnknownProvider(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/webhooks/adyen", gin.H{"id": "evt_1"}, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestWebhookReconcilesOrder(t *testing.T) {
	ts := newTestServer(t)
	ts.adapter.createSession = &paymentdomain.Session{ID: "cs_hooked", URL: "https://pay.example.test/cs_hooked"}
	ts.adapter.getSession = &paymentdomain.Session{
		ID:     "cs_hooked",
		Status: paymentdomain.StatusCompleted,
		Payment: &paymentdomain.PaymentInfo{
			Amount: 990, Currency: "usd", PaidAt: time.Now().UTC(),
		},
		Raw: []byte(`{"status":"complete"}`),
	}

	w := ts.do(t, http.MethodPost, "/api/checkout", gin.H{"product_id": "credits-100"}, &testUser)
	require.Equal(t, http.StatusOK, w.Code)
	var created checkoutResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	ts.adapter.webhookEvent = &paymentdomain.WebhookEvent{
		Provider:  "stripe",
		EventID:   "evt_hooked",
		Type:      "checkout.session.completed",
		SessionID: "cs_hooked",
		OrderNo:   created.OrderNo,
	}
	w = ts.do(t, http.MethodPost, "/api/webhooks/stripe", gin.H{"id": "evt_hooked"}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var order orderdomain.Order
	require.NoError(t, ts.db.Where("order_no = ?", created.OrderNo).First(&order).Error)
	require.Equal(t, orderdomain.StatusPaid, order.Status)
}

func TestListOrders(t *testing.T) {
	ts := newTestServer(t)
	ts.adapter.createSession = &paymentdomain.Session{ID: "cs_list", URL: "https://pay.example.test/cs_list"}

	w := ts.do(t, http.MethodPost, "/api/checkout", gin.H{"product_id": "credits-100"}, &testUser)
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/api/orders", nil, &testUser)
	require.Equal(t, http.StatusOK, w.Code)

	var resp listOrdersResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Orders, 1)
	require.Equal(t, testUser.ID, resp.Orders[0].UserID)

	// Another user sees nothing.
	other := auth.User{ID: "user-2", Email: "other@example.test"}
	w = ts.do(t, http.MethodGet, "/api/orders", nil, &other)
	require.Equal(t, http.StatusOK, w.Code)
	resp = listOrdersResponse{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Empty(t, resp.Orders)
}
