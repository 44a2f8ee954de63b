package cart

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
)

var testSecret = []byte("test_secret")

type testEnv struct {
	T  *testing.T
	E  *echo.Echo
	DB *gorm.DB
	C  *CartHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.Book{}, &models.CartItem{}))

	return &testEnv{
		T:  t,
		E:  echo.New(),
		DB: db,
		C:  &CartHandler{DB: db, JWTSecret: testSecret},
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

func seedBook(t *testing.T, db *gorm.DB, price float64, published bool) models.Book {
	t.Helper()
	book := models.Book{
		Title:       "test_title",
		Author:      "test_author",
		Description: "test_description",
		Price:       price,
		IsPublished: published,
	}
	require.NoError(t, db.Create(&book).Error)
	return book
}

func TestGetCart(t *testing.T) {
	env := newTestEnv(t)
	ck := accessCookie(t, 1)

	require.NoError(t, env.DB.Create(&models.CartItem{
		UserID: 1, BookID: 2, Quantity: 3, UnitPrice: 9.99,
	}).Error)

	rec, c := env.doJSONRequest(http.MethodGet, "/api/v1/cart", nil, ck)
	require.NoError(t, env.C.GetCart(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp []models.CartItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	require.Equal(t, uint(1), resp[0].UserID)
	require.Equal(t, uint(2), resp[0].BookID)
	require.Equal(t, uint(3), resp[0].Quantity)
}

func TestAddToCartSnapshotsPrice(t *testing.T) {
	env := newTestEnv(t)
	ck := accessCookie(t, 1)

	book := seedBook(t, env.DB, 9.99, true)

	load := map[string]uint{
		"quantity": 2,
		"book_id":  book.ID,
	}
	rec, c := env.doJSONRequest(http.MethodPost, "/api/v1/cart", load, ck)
	require.NoError(t, env.C.AddToCart(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.CartItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, uint(1), resp.UserID)
	require.Equal(t, uint(2), resp.Quantity)
	require.Equal(t, book.ID, resp.BookID)
	require.InDelta(t, 9.99, resp.UnitPrice, 0.0001)
}

func TestAddToCartMergesLines(t *testing.T) {
	env := newTestEnv(t)
	ck := accessCookie(t, 1)

	book := seedBook(t, env.DB, 5, true)

	load := map[string]uint{"quantity": 1, "book_id": book.ID}
	_, c := env.doJSONRequest(http.MethodPost, "/api/v1/cart", load, ck)
	require.NoError(t, env.C.AddToCart(c))

	// Re-adding the same book merges quantities and refreshes the price
	// snapshot to the current catalog price.
	require.NoError(t, env.DB.Model(&models.Book{}).Where("id = ?", book.ID).Update("price", 7).Error)

	rec, c := env.doJSONRequest(http.MethodPost, "/api/v1/cart", load, ck)
	require.NoError(t, env.C.AddToCart(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.CartItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, uint(2), resp.Quantity)
	require.InDelta(t, 7, resp.UnitPrice, 0.0001)

	var count int64
	require.NoError(t, env.DB.Model(&models.CartItem{}).Where("user_id = ?", 1).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestAddToCartUnpublishedBook(t *testing.T) {
	env := newTestEnv(t)
	ck := accessCookie(t, 1)

	book := seedBook(t, env.DB, 5, false)

	load := map[string]uint{"quantity": 1, "book_id": book.ID}
	rec, c := env.doJSONRequest(http.MethodPost, "/api/v1/cart", load, ck)
	require.NoError(t, env.C.AddToCart(c))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteOneFromCart(t *testing.T) {
	env := newTestEnv(t)
	ck := accessCookie(t, 1)

	require.NoError(t, env.DB.Create(&models.CartItem{
		UserID: 1, BookID: 1, Quantity: 2, UnitPrice: 5,
	}).Error)

	rec, c := env.doJSONRequest(http.MethodDelete, "/api/v1/cart/1", nil, ck)
	c.SetParamNames("id")
	c.SetParamValues("1")
	require.NoError(t, env.C.DeleteOneFromCart(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.CartItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, uint(1), resp.Quantity)
}

func TestDeleteAllFromCart(t *testing.T) {
	env := newTestEnv(t)
	ck := accessCookie(t, 1)

	require.NoError(t, env.DB.Create(&models.CartItem{
		UserID: 1, BookID: 1, Quantity: 10, UnitPrice: 5,
	}).Error)

	rec, c := env.doJSONRequest(http.MethodDelete, "/api/v1/cart/1/all", nil, ck)
	c.SetParamNames("id")
	c.SetParamValues("1")
	require.NoError(t, env.C.DeleteAllFromCart(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp []models.CartItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 0)
}
