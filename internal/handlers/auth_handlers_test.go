package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Skotchmaster/ebook_shop/internal/models"
)

var testSecret = []byte("test_secret")
var testRefreshSecret = []byte("test_refresh_secret")

type testEnv struct {
	T  *testing.T
	E  *echo.Echo
	DB *gorm.DB
	A  *AuthHandler
	AD *AddressHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.RefreshToken{},
		&models.Address{},
		&models.Book{},
	))

	return &testEnv{
		T:  t,
		E:  echo.New(),
		DB: db,
		A:  &AuthHandler{DB: db, JWTSecret: testSecret, RefreshSecret: testRefreshSecret},
		AD: &AddressHandler{DB: db, JWTSecret: testSecret},
	}
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

func login(t *testing.T, env *testEnv) *http.Cookie {
	t.Helper()

	loadmap := map[string]string{
		"username": "username",
		"password": "password",
	}
	rec_register, c_register := env.doJSONRequest(http.MethodPost, "/api/v1/register", loadmap)
	require.NoError(t, env.A.Register(c_register))
	require.Equal(t, http.StatusOK, rec_register.Code)

	rec_login, c_login := env.doJSONRequest(http.MethodPost, "/api/v1/login", loadmap)
	require.NoError(t, env.A.Login(c_login))
	require.Equal(t, http.StatusOK, rec_login.Code)

	var resp struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(rec_login.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)

	return &http.Cookie{Name: "accessToken", Value: resp.AccessToken, Path: "/"}
}

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)

	ck := login(t, env)
	require.NotEmpty(t, ck.Value)

	var user models.User
	require.NoError(t, env.DB.Where("username = ?", "username").First(&user).Error)
	require.Equal(t, "user", user.Role)
	require.NotEqual(t, "password", user.PasswordHash)
}

func TestRegisterDuplicate(t *testing.T) {
	env := newTestEnv(t)

	loadmap := map[string]string{"username": "username", "password": "password"}
	rec, c := env.doJSONRequest(http.MethodPost, "/api/v1/register", loadmap)
	require.NoError(t, env.A.Register(c))
	require.Equal(t, http.StatusOK, rec.Code)

	_, c = env.doJSONRequest(http.MethodPost, "/api/v1/register", loadmap)
	err := env.A.Register(c)
	require.Error(t, err)

	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusBadRequest, he.Code)
}

func TestLoginWrongPassword(t *testing.T) {
	env := newTestEnv(t)

	loadmap := map[string]string{"username": "username", "password": "password"}
	_, c := env.doJSONRequest(http.MethodPost, "/api/v1/register", loadmap)
	require.NoError(t, env.A.Register(c))

	bad := map[string]string{"username": "username", "password": "wrong"}
	_, c = env.doJSONRequest(http.MethodPost, "/api/v1/login", bad)
	err := env.A.Login(c)
	require.Error(t, err)

	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusUnauthorized, he.Code)
}

func TestCreateAddressDefaultUniqueness(t *testing.T) {
	env := newTestEnv(t)
	ck := login(t, env)

	first := map[string]any{"line1": "street 1", "is_default": true}
	rec, c := env.doJSONRequest(http.MethodPost, "/api/v1/addresses", first, ck)
	require.NoError(t, env.AD.CreateAddress(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	second := map[string]any{"line1": "street 2", "is_default": true}
	rec, c = env.doJSONRequest(http.MethodPost, "/api/v1/addresses", second, ck)
	require.NoError(t, env.AD.CreateAddress(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var defaults []models.Address
	require.NoError(t, env.DB.Where("user_id = ? AND is_default = ?", 1, true).Find(&defaults).Error)
	require.Len(t, defaults, 1)
	require.Equal(t, "street 2", defaults[0].Line1)
}

func TestPatchAddressDefault(t *testing.T) {
	env := newTestEnv(t)
	ck := login(t, env)

	require.NoError(t, env.DB.Create(&models.Address{UserID: 1, Line1: "street 1", IsDefault: true}).Error)
	require.NoError(t, env.DB.Create(&models.Address{UserID: 1, Line1: "street 2"}).Error)

	body := map[string]any{"is_default": true}
	rec, c := env.doJSONRequest(http.MethodPatch, "/api/v1/addresses/2", body, ck)
	c.SetParamNames("id")
	c.SetParamValues("2")
	require.NoError(t, env.AD.PatchAddress(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var defaults []models.Address
	require.NoError(t, env.DB.Where("user_id = ? AND is_default = ?", 1, true).Find(&defaults).Error)
	require.Len(t, defaults, 1)
	require.Equal(t, "street 2", defaults[0].Line1)
}

func TestDeleteForeignAddress(t *testing.T) {
	env := newTestEnv(t)
	ck := login(t, env)

	require.NoError(t, env.DB.Create(&models.Address{UserID: 2, Line1: "street 1"}).Error)

	rec, c := env.doJSONRequest(http.MethodDelete, "/api/v1/addresses/1", nil, ck)
	c.SetParamNames("id")
	c.SetParamValues("1")
	require.NoError(t, env.AD.DeleteAddress(c))
	require.Equal(t, http.StatusNoContent, rec.Code)

	// Someone else's address survives a delete aimed at its id.
	var count int64
	require.NoError(t, env.DB.Model(&models.Address{}).Where("user_id = ?", 2).Count(&count).Error)
	require.Equal(t, int64(1), count)
}
