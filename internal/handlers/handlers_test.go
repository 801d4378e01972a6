package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/alextreichler/storefront/internal/models"
	"github.com/alextreichler/storefront/internal/orders"
	"github.com/alextreichler/storefront/internal/reporting"
	"github.com/alextreichler/storefront/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type testApp struct {
	store     *store.Store
	server    *httptest.Server
	uploadDir string
}

func newTestApp(t *testing.T, csrfEnabled bool) *testApp {
	t.Helper()
	s, err := store.NewStore(store.DriverSQLite, ":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))

	uploadDir := t.TempDir()
	key := bytes.Repeat([]byte("s"), 32)
	rl := NewRateLimiter(1000)

	router := NewRouter(RouterConfig{
		Store:        s,
		Orders:       orders.NewService(s),
		Stats:        reporting.NewAggregator(s),
		SessionStore: NewSessionStore(key, false, ""),
		RateLimiter:  rl,
		UploadDir:    uploadDir,
		CSRFEnabled:  csrfEnabled,
		CSRFKey:      key,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		rl.Stop()
		_ = s.Close()
	})
	return &testApp{store: s, server: srv, uploadDir: uploadDir}
}

// seedUser inserts a user with a known password directly into the store.
func (a *testApp) seedUser(t *testing.T, email string, role models.Role) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)
	u := &models.User{Email: email, Password: string(hash), FirstName: "Test", LastName: "User", Role: role}
	require.NoError(t, a.store.CreateUser(context.Background(), u))
	return u
}

func (a *testApp) seedProduct(t *testing.T, name, price string, stock int) *models.Product {
	t.Helper()
	p := &models.Product{Name: name, Description: "A thing you can buy here", Price: decimal.RequireFromString(price), Category: "tools", Stock: stock}
	require.NoError(t, a.store.CreateProduct(context.Background(), p))
	return p
}

type client struct {
	t    *testing.T
	base string
	http *http.Client
}

func (a *testApp) client(t *testing.T) *client {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &client{t: t, base: a.server.URL, http: &http.Client{Jar: jar}}
}

func (a *testApp) login(t *testing.T, email string) *client {
	c := a.client(t)
	res := c.do(http.MethodPost, "/api/auth/login", map[string]string{"email": email, "password": "password123"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	return c
}

func (c *client) do(method, path string, body any) *http.Response {
	c.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(c.t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.base+path, r)
	require.NoError(c.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := c.http.Do(req)
	require.NoError(c.t, err)
	c.t.Cleanup(func() { res.Body.Close() })
	return res
}

func decode[T any](t *testing.T, res *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(res.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	app := newTestApp(t, false)
	res := app.client(t).do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "nosniff", res.Header.Get("X-Content-Type-Options"))
}

func TestAuthFlow(t *testing.T) {
	app := newTestApp(t, false)
	c := app.client(t)

	res := c.do(http.MethodPost, "/api/auth/register", map[string]string{
		"email": "New@Example.com", "password": "password123", "firstName": "New", "lastName": "Person",
	})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	u := decode[models.User](t, res)
	assert.Equal(t, "new@example.com", u.Email)
	assert.Equal(t, models.RoleUser, u.Role)

	body, err := json.Marshal(u)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "password")

	res = c.do(http.MethodPost, "/api/auth/register", map[string]string{
		"email": "new@example.com", "password": "password123", "firstName": "New", "lastName": "Person",
	})
	assert.Equal(t, http.StatusConflict, res.StatusCode)

	res = c.do(http.MethodGet, "/api/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res = c.do(http.MethodPost, "/api/auth/login", map[string]string{"email": "new@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res = c.do(http.MethodPost, "/api/auth/login", map[string]string{"email": "new@example.com", "password": "password123"})
	require.Equal(t, http.StatusOK, res.StatusCode)

	res = c.do(http.MethodGet, "/api/auth/me", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, u.ID, decode[models.User](t, res).ID)

	res = c.do(http.MethodPost, "/api/auth/logout", nil)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	res = c.do(http.MethodGet, "/api/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestRegister_Validation(t *testing.T) {
	app := newTestApp(t, false)
	res := app.client(t).do(http.MethodPost, "/api/auth/register", map[string]string{
		"email": "not-an-email", "password": "password123", "firstName": "A", "lastName": "B",
	})
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	e := decode[errorResponse](t, res)
	assert.Equal(t, "validation_failed", e.Error)
	assert.Contains(t, e.Message, "email")
}

func TestProducts_PublicAndAdmin(t *testing.T) {
	app := newTestApp(t, false)
	app.seedUser(t, "admin@example.com", models.RoleAdmin)
	app.seedUser(t, "user@example.com", models.RoleUser)
	app.seedProduct(t, "Hammer", "12.50", 3)
	app.seedProduct(t, "Empty Box", "1.00", 0)

	anon := app.client(t)
	res := anon.do(http.MethodGet, "/api/products?inStock=true", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	list := decode[[]models.Product](t, res)
	require.Len(t, list, 1)
	assert.Equal(t, "Hammer", list[0].Name)

	res = anon.do(http.MethodGet, "/api/products?q=box", nil)
	assert.Len(t, decode[[]models.Product](t, res), 1)

	res = anon.do(http.MethodGet, "/api/products/categories", nil)
	assert.Equal(t, []string{"tools"}, decode[[]string](t, res))

	newProduct := map[string]any{"name": "Wrench", "description": "Turns nuts and bolts", "price": "7.25", "category": "tools", "stock": 4}
	res = anon.do(http.MethodPost, "/api/products", newProduct)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res = app.login(t, "user@example.com").do(http.MethodPost, "/api/products", newProduct)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	admin := app.login(t, "admin@example.com")
	res = admin.do(http.MethodPost, "/api/products", newProduct)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	created := decode[models.Product](t, res)
	assert.Equal(t, "7.25", created.Price.StringFixed(2))

	res = admin.do(http.MethodPost, "/api/products", map[string]any{"name": "Wr", "description": "Turns nuts and bolts", "price": "1", "stock": 1})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	res = admin.do(http.MethodPost, "/api/products", map[string]any{"name": "Wrench", "description": "Turns nuts and bolts", "price": "-1", "stock": 1})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	// Length rules apply to the trimmed values.
	res = admin.do(http.MethodPost, "/api/products", map[string]any{"name": "  ab  ", "description": "Turns nuts and bolts", "price": "1", "stock": 1})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.True(t, strings.HasPrefix(decode[errorResponse](t, res).Message, "name:"))
	res = admin.do(http.MethodPost, "/api/products", map[string]any{"name": "Saw", "description": "   short    ", "price": "1", "stock": 1})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	res = admin.do(http.MethodPost, "/api/products", map[string]any{"name": "  Spanner  ", "description": "Turns nuts and bolts", "price": "1", "category": " tools ", "stock": 1})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	spanner := decode[models.Product](t, res)
	assert.Equal(t, "Spanner", spanner.Name)
	assert.Equal(t, "tools", spanner.Category)

	newProduct["price"] = "8.00"
	res = admin.do(http.MethodPut, "/api/products/"+itoa(created.ID), newProduct)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "8.00", decode[models.Product](t, res).Price.StringFixed(2))

	res = admin.do(http.MethodDelete, "/api/products/"+itoa(created.ID), nil)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	res = anon.do(http.MethodGet, "/api/products/"+itoa(created.ID), nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestOrders_EndToEnd(t *testing.T) {
	app := newTestApp(t, false)
	app.seedUser(t, "admin@example.com", models.RoleAdmin)
	buyer := app.seedUser(t, "buyer@example.com", models.RoleUser)
	other := app.seedUser(t, "other@example.com", models.RoleUser)
	hammer := app.seedProduct(t, "Hammer", "10.00", 5)

	c := app.login(t, "buyer@example.com")
	req := map[string]any{
		"items":           []map[string]any{{"productId": hammer.ID, "quantity": 3}},
		"shippingAddress": "1 Anvil Road",
	}
	res := c.do(http.MethodPost, "/api/orders", req)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	o := decode[models.Order](t, res)
	assert.Equal(t, buyer.ID, o.UserID)
	assert.Equal(t, "30.00", o.TotalAmount.StringFixed(2))
	assert.Equal(t, models.StatusPending, o.Status)
	require.Len(t, o.Items, 1)
	require.NotNil(t, o.Items[0].Product)
	assert.Equal(t, 2, o.Items[0].Product.Stock)

	// Not enough left.
	req["items"] = []map[string]any{{"productId": hammer.ID, "quantity": 5}}
	res = c.do(http.MethodPost, "/api/orders", req)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	e := decode[errorResponse](t, res)
	assert.Equal(t, "insufficient_stock", e.Error)
	assert.Contains(t, e.Message, "Hammer")

	req["items"] = []map[string]any{{"productId": 9999, "quantity": 1}}
	res = c.do(http.MethodPost, "/api/orders", req)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	req["items"] = []map[string]any{}
	res = c.do(http.MethodPost, "/api/orders", req)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	// Ordering on someone else's behalf needs admin.
	req["items"] = []map[string]any{{"productId": hammer.ID, "quantity": 1}}
	res = c.do(http.MethodPost, "/api/orders/user/"+itoa(other.ID), req)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res = c.do(http.MethodGet, "/api/orders/"+itoa(o.ID), nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, o.ID, decode[models.Order](t, res).ID)

	res = c.do(http.MethodGet, "/api/orders/user/"+itoa(buyer.ID), nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Len(t, decode[[]models.Order](t, res), 1)

	nosy := app.login(t, "other@example.com")
	res = nosy.do(http.MethodGet, "/api/orders/"+itoa(o.ID), nil)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	res = nosy.do(http.MethodGet, "/api/orders/user/"+itoa(buyer.ID), nil)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res = c.do(http.MethodPut, "/api/orders/"+itoa(o.ID)+"/status?status=SHIPPED", nil)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	res = c.do(http.MethodGet, "/api/orders/recent", nil)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	admin := app.login(t, "admin@example.com")
	res = admin.do(http.MethodPost, "/api/orders/user/"+itoa(other.ID), req)
	require.Equal(t, http.StatusCreated, res.StatusCode)

	res = admin.do(http.MethodPut, "/api/orders/"+itoa(o.ID)+"/status?status=shipped", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, models.StatusShipped, decode[models.Order](t, res).Status)

	res = admin.do(http.MethodPut, "/api/orders/"+itoa(o.ID)+"/status?status=LOST", nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	res = admin.do(http.MethodPut, "/api/orders/424242/status?status=DELIVERED", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res = admin.do(http.MethodGet, "/api/orders/status/SHIPPED", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Len(t, decode[[]models.Order](t, res), 1)

	res = admin.do(http.MethodGet, "/api/orders?userId="+itoa(other.ID), nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Len(t, decode[[]models.Order](t, res), 1)

	res = admin.do(http.MethodGet, "/api/orders/recent", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Len(t, decode[[]models.Order](t, res), 2)

	res = admin.do(http.MethodGet, "/api/admin/dashboard/stats", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	stats := decode[models.DashboardStats](t, res)
	assert.Equal(t, int64(2), stats.TotalOrders)
	assert.Equal(t, int64(1), stats.ShippedOrders)
	assert.Equal(t, int64(1), stats.PendingOrders)
	assert.Equal(t, "40.00", stats.TotalRevenue.StringFixed(2))

	// Referenced rows cannot be deleted.
	res = admin.do(http.MethodDelete, "/api/products/"+itoa(hammer.ID), nil)
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	res = admin.do(http.MethodDelete, "/api/users/"+itoa(buyer.ID), nil)
	assert.Equal(t, http.StatusConflict, res.StatusCode)
}

func TestUsers(t *testing.T) {
	app := newTestApp(t, false)
	app.seedUser(t, "admin@example.com", models.RoleAdmin)
	u := app.seedUser(t, "user@example.com", models.RoleUser)
	other := app.seedUser(t, "other@example.com", models.RoleUser)

	c := app.login(t, "user@example.com")
	update := map[string]string{"firstName": "Updated", "lastName": "Name", "city": "Lyon"}
	res := c.do(http.MethodPut, "/api/users/"+itoa(u.ID), update)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "Lyon", decode[models.User](t, res).City)

	update["role"] = "ADMIN"
	res = c.do(http.MethodPut, "/api/users/"+itoa(u.ID), update)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res = c.do(http.MethodGet, "/api/users/"+itoa(other.ID), nil)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	res = c.do(http.MethodGet, "/api/users", nil)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	admin := app.login(t, "admin@example.com")
	res = admin.do(http.MethodGet, "/api/users?role=user", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Len(t, decode[[]models.User](t, res), 2)

	res = admin.do(http.MethodGet, "/api/users?role=owner", nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res = admin.do(http.MethodPut, "/api/users/"+itoa(other.ID)+"/toggle-role", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, models.RoleAdmin, decode[models.User](t, res).Role)

	// Roles are re-read on every request, so the promotion applies at once.
	promoted := app.login(t, "other@example.com")
	res = promoted.do(http.MethodGet, "/api/users", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res = admin.do(http.MethodDelete, "/api/users/"+itoa(other.ID), nil)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	res = promoted.do(http.MethodGet, "/api/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestUploadImage(t *testing.T) {
	app := newTestApp(t, false)
	app.seedUser(t, "admin@example.com", models.RoleAdmin)
	p := app.seedProduct(t, "Hammer", "10.00", 5)
	admin := app.login(t, "admin@example.com")

	img := image.NewRGBA(image.Rect(0, 0, 1000, 20))
	for x := 0; x < 1000; x++ {
		img.Set(x, 10, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("image", "hammer.png")
	require.NoError(t, err)
	_, err = fw.Write(buf.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, admin.base+"/api/products/"+itoa(p.ID)+"/image", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	res, err := admin.http.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	updated := decode[models.Product](t, res)
	require.True(t, strings.HasPrefix(updated.Image, "/uploads/"))

	f, err := os.Open(filepath.Join(app.uploadDir, strings.TrimPrefix(updated.Image, "/uploads/")))
	require.NoError(t, err)
	defer f.Close()
	cfg, format, err := image.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, maxImageWidth, cfg.Width)

	got := app.client(t).do(http.MethodGet, updated.Image, nil)
	assert.Equal(t, http.StatusOK, got.StatusCode)
}

func TestCSRF(t *testing.T) {
	app := newTestApp(t, true)
	app.seedUser(t, "user@example.com", models.RoleUser)
	c := app.client(t)

	res := c.do(http.MethodPost, "/api/auth/login", map[string]string{"email": "user@example.com", "password": "password123"})
	require.Equal(t, http.StatusForbidden, res.StatusCode)
	assert.Equal(t, "csrf_invalid", decode[errorResponse](t, res).Error)

	res = c.do(http.MethodGet, "/api/auth/csrf", nil)
	require.Equal(t, http.StatusNoContent, res.StatusCode)
	token := res.Header.Get("X-CSRF-Token")
	require.NotEmpty(t, token)

	req, err := http.NewRequest(http.MethodPost, c.base+"/api/auth/login",
		strings.NewReader(`{"email":"user@example.com","password":"password123"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRF-Token", token)
	res, err = c.http.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2)
	defer rl.Stop()

	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "203.0.113.7:5555"
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)

	// Other clients have their own bucket.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.RemoteAddr = "198.51.100.1:5555"
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
