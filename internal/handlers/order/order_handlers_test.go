package order

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Skotchmaster/ebook_shop/internal/models"
	"github.com/Skotchmaster/ebook_shop/internal/service/fulfillment"
)

var testSecret = []byte("test_secret")

type testEnv struct {
	T  *testing.T
	E  *echo.Echo
	DB *gorm.DB
	O  *OrderHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.Book{},
		&models.Address{},
		&models.CartItem{},
		&models.Order{},
		&models.OrderItem{},
		&models.PurchaseItem{},
		&models.DownloadLink{},
		&models.DownloadLog{},
		&models.Payment{},
	))

	svc := &fulfillment.Service{
		DB: db,
		Cfg: fulfillment.Config{
			BaseURL: "http://localhost:8080",
			LinkTTL: 10 * time.Minute,
		},
	}

	return &testEnv{
		T:  t,
		E:  echo.New(),
		DB: db,
		O:  &OrderHandler{DB: db, Svc: svc, JWTSecret: testSecret},
	}
}

func accessCookie(t *testing.T, userID uint) *http.Cookie {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":  userID,
		"role": "user",
		"exp":  time.Now().Add(15 * time.Minute).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)
	return &http.Cookie{Name: "accessToken", Value: token, Path: "/"}
}

func (env *testEnv) doJSONRequest(method, path string, body interface{}, cookies ...*http.Cookie) (*httptest.ResponseRecorder, echo.Context) {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(env.T, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	c := env.E.NewContext(req, rec)
	return rec, c
}

func TestCheckout(t *testing.T) {
	env := newTestEnv(t)
	ck := accessCookie(t, 1)

	book := models.Book{Title: "test_title", Author: "a", Description: "d", Price: 9.99, IsPublished: true}
	require.NoError(t, env.DB.Create(&book).Error)
	require.NoError(t, env.DB.Create(&models.CartItem{
		UserID: 1, BookID: book.ID, Quantity: 2, UnitPrice: 9.99,
	}).Error)

	rec, c := env.doJSONRequest(http.MethodPost, "/api/checkout", map[string]any{}, ck)
	require.NoError(t, env.O.Checkout(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp fulfillment.CheckoutResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.InDelta(t, 19.98, resp.Order.TotalAmount, 0.0001)
	require.Equal(t, models.OrderStatusPaid, resp.Order.Status)
	require.Len(t, resp.Purchases, 1)
	require.Equal(t, uint(0), resp.Purchases[0].DownloadsUsed)

	var remaining int64
	require.NoError(t, env.DB.Model(&models.CartItem{}).Where("user_id = ?", 1).Count(&remaining).Error)
	require.Zero(t, remaining)
}

func TestCheckoutEmptyCart(t *testing.T) {
	env := newTestEnv(t)
	ck := accessCookie(t, 1)

	rec, c := env.doJSONRequest(http.MethodPost, "/api/checkout", map[string]any{}, ck)
	require.NoError(t, env.O.Checkout(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "Cart is empty.", resp["detail"])
}

func TestCheckoutWithBillingAddress(t *testing.T) {
	env := newTestEnv(t)
	ck := accessCookie(t, 1)

	addr := models.Address{UserID: 1, Line1: "street 1", IsDefault: true}
	require.NoError(t, env.DB.Create(&addr).Error)

	book := models.Book{Title: "t", Author: "a", Description: "d", Price: 5, IsPublished: true}
	require.NoError(t, env.DB.Create(&book).Error)
	require.NoError(t, env.DB.Create(&models.CartItem{
		UserID: 1, BookID: book.ID, Quantity: 1, UnitPrice: 5,
	}).Error)

	body := map[string]any{"billing_address_id": addr.ID, "payment_method": "stub"}
	rec, c := env.doJSONRequest(http.MethodPost, "/api/checkout", body, ck)
	require.NoError(t, env.O.Checkout(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp fulfillment.CheckoutResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Order.BillingAddressID)
	require.Equal(t, addr.ID, *resp.Order.BillingAddressID)
	require.Equal(t, "stub", resp.Order.PaymentMethod)
}

func TestListOrders(t *testing.T) {
	env := newTestEnv(t)
	ck := accessCookie(t, 1)

	require.NoError(t, env.DB.Create(&models.Order{
		UserID: 1, Number: "AAAA00000001", Status: models.OrderStatusPaid, TotalAmount: 5,
	}).Error)
	require.NoError(t, env.DB.Create(&models.Order{
		UserID: 2, Number: "AAAA00000002", Status: models.OrderStatusPaid, TotalAmount: 7,
	}).Error)

	rec, c := env.doJSONRequest(http.MethodGet, "/api/v1/orders", nil, ck)
	require.NoError(t, env.O.ListOrders(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp []models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	require.Equal(t, "AAAA00000001", resp[0].Number)
}

func TestGetOrderForeign(t *testing.T) {
	env := newTestEnv(t)
	ck := accessCookie(t, 1)

	require.NoError(t, env.DB.Create(&models.Order{
		UserID: 2, Number: "AAAA00000002", Status: models.OrderStatusPaid, TotalAmount: 7,
	}).Error)

	rec, c := env.doJSONRequest(http.MethodGet, "/api/v1/orders/1", nil, ck)
	c.SetParamNames("id")
	c.SetParamValues("1")
	require.NoError(t, env.O.GetOrder(c))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
