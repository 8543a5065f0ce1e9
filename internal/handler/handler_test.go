package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/hemenye/internal/domain/auth"
	"github.com/xenking/hemenye/internal/domain/cart"
	"github.com/xenking/hemenye/internal/domain/coupon"
	"github.com/xenking/hemenye/internal/domain/order"
	"github.com/xenking/hemenye/internal/domain/pricing"
	"github.com/xenking/hemenye/internal/domain/product"
	"github.com/xenking/hemenye/internal/domain/restaurant"
	"github.com/xenking/hemenye/internal/domain/shopping"
	"github.com/xenking/hemenye/internal/handler"
	"github.com/xenking/hemenye/internal/storage/memory"
)

var (
	customer   = auth.Actor{UserID: 1, Role: auth.RoleCustomer}
	owner      = auth.Actor{UserID: 10, Role: auth.RoleRestaurantOwner}
	otherOwner = auth.Actor{UserID: 11, Role: auth.RoleRestaurantOwner}
	admin      = auth.Actor{UserID: 99, Role: auth.RoleAdmin}
)

type env struct {
	t      *testing.T
	authn  *handler.Authenticator
	router http.Handler

	pide   product.Product
	ayran  product.Product
	closed product.Product
}

func newEnv(t *testing.T) *env {
	t.Helper()

	db := memory.New()
	rest := db.AddRestaurant(restaurant.Restaurant{OwnerID: owner.UserID, Name: "Pideci", Active: true})
	hood := int64(5)
	db.AddBranch(restaurant.Branch{RestaurantID: rest.ID, NeighborhoodID: &hood, Active: true})
	db.AddAddress(restaurant.Address{UserID: customer.UserID, NeighborhoodID: &hood, AddressLine: "Moda", IsDefault: true})
	db.AddRestaurant(restaurant.Restaurant{OwnerID: otherOwner.UserID, Name: "Burgerci", Active: true})
	closed := db.AddRestaurant(restaurant.Restaurant{OwnerID: otherOwner.UserID, Name: "Kapali"})

	e := &env{t: t, authn: handler.NewAuthenticator([]byte("test-secret"))}
	e.pide = db.AddProduct(product.Product{RestaurantID: rest.ID, Name: "Pide", Price: decimal.RequireFromString("50.00"), Active: true})
	e.ayran = db.AddProduct(product.Product{RestaurantID: rest.ID, Name: "Ayran", Price: decimal.RequireFromString("25.00"), Active: true})
	db.AddProduct(product.Product{RestaurantID: rest.ID, Name: "Retired", Price: decimal.RequireFromString("1.00")})
	e.closed = db.AddProduct(product.Product{RestaurantID: closed.ID, Name: "Kumpir", Price: decimal.RequireFromString("30.00"), Active: true})
	db.AddCoupon(coupon.Coupon{Code: "TEN", DiscountType: coupon.DiscountPercent, Value: decimal.NewFromInt(10), Active: true})

	engine := pricing.NewEngine(coupon.NewValidator(nil))
	carts := cart.NewMemoryStore(time.Hour)
	h := handler.NewHandler(
		e.authn,
		shopping.NewService(db.Catalog(), engine, carts),
		order.NewService(db.Orders(), engine, carts),
		product.NewService(db.Products()),
		db.Products(),
	)
	e.router = h.Router()
	return e
}

func (e *env) token(a auth.Actor) string {
	e.t.Helper()
	tok, err := e.authn.Issue(a, time.Hour)
	require.NoError(e.t, err)
	return tok
}

type response struct {
	code int
	body map[string]any
	list []any
}

// do sends a request as actor; a nil actor sends no Authorization header.
func (e *env) do(actor *auth.Actor, method, path, body string) response {
	e.t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if actor != nil {
		req.Header.Set("Authorization", "Bearer "+e.token(*actor))
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	require.Equal(e.t, "application/json", w.Header().Get("Content-Type"), "%s %s", method, path)
	r := response{code: w.Code}
	raw := w.Body.Bytes()
	if len(raw) > 0 && raw[0] == '[' {
		require.NoError(e.t, json.Unmarshal(raw, &r.list))
	} else {
		require.NoError(e.t, json.Unmarshal(raw, &r.body))
	}
	return r
}

func (e *env) fill(t *testing.T) {
	t.Helper()
	require.Equal(t, http.StatusOK, e.do(&customer, http.MethodPost, "/api/cart/items", `{"product_id":`+itoa(e.pide.ID)+`}`).code)
	require.Equal(t, http.StatusOK, e.do(&customer, http.MethodPost, "/api/cart/items", `{"product_id":`+itoa(e.ayran.ID)+`,"quantity":2}`).code)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func TestAuthentication(t *testing.T) {
	e := newEnv(t)

	expired, err := e.authn.Issue(customer, -time.Minute)
	require.NoError(t, err)
	foreign, err := handler.NewAuthenticator([]byte("other")).Issue(customer, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{name: "Missing"},
		{name: "WrongScheme", header: "Basic abc"},
		{name: "Garbage", header: "Bearer garbage"},
		{name: "Expired", header: "Bearer " + expired},
		{name: "ForeignSecret", header: "Bearer " + foreign},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			e.router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			var body map[string]any
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, float64(401), body["code"])
		})
	}

	t.Run("PublicRoutes", func(t *testing.T) {
		r := e.do(nil, http.MethodGet, "/api/products/"+itoa(e.pide.ID), "")
		assert.Equal(t, http.StatusOK, r.code)
		assert.Equal(t, "50.00", r.body["price"])

		menu := e.do(nil, http.MethodGet, "/api/restaurants/"+itoa(e.pide.RestaurantID)+"/products", "")
		assert.Equal(t, http.StatusOK, menu.code)
		assert.Len(t, menu.list, 2, "inactive products are hidden")

		menu = e.do(nil, http.MethodGet, "/api/restaurants/"+itoa(e.closed.RestaurantID)+"/products", "")
		assert.Equal(t, http.StatusOK, menu.code)
		assert.Empty(t, menu.list, "inactive restaurants list no products")
	})
}

func TestAuthenticator_RoundTrip(t *testing.T) {
	authn := handler.NewAuthenticator([]byte("s3cret"))
	tok, err := authn.Issue(owner, time.Minute)
	require.NoError(t, err)

	got, err := authn.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, owner, got)

	_, err = authn.Parse(tok + "x")
	assert.Error(t, err)
}

func TestCart(t *testing.T) {
	e := newEnv(t)
	e.fill(t)

	r := e.do(&customer, http.MethodGet, "/api/cart", "")
	require.Equal(t, http.StatusOK, r.code)
	assert.Len(t, r.body["items"], 2)
	assert.Equal(t, "100.00", r.body["subtotal"])
	assert.Equal(t, "0.00", r.body["discount"])

	r = e.do(&customer, http.MethodPost, "/api/cart/coupon", `{"code":" ten "}`)
	require.Equal(t, http.StatusOK, r.code)
	assert.Equal(t, "TEN", r.body["coupon_code"])
	assert.Equal(t, "10.00", r.body["discount"])
	assert.Equal(t, "90.00", r.body["total"])

	r = e.do(&customer, http.MethodPost, "/api/cart/coupon", `{"code":"NOPE"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, r.code)
	assert.Equal(t, coupon.ErrNotFound.Error(), r.body["message"])

	r = e.do(&customer, http.MethodGet, "/api/cart", "")
	assert.NotContains(t, r.body, "coupon_code", "rejected code replaces the stored one")
	assert.Equal(t, "100.00", r.body["total"])

	path := "/api/cart/items/" + itoa(e.pide.ID)
	r = e.do(&customer, http.MethodPost, path+"/increase", "")
	require.Equal(t, http.StatusOK, r.code)
	assert.Equal(t, "150.00", r.body["subtotal"])

	r = e.do(&customer, http.MethodPost, path+"/decrease", "")
	require.Equal(t, http.StatusOK, r.code)
	assert.Equal(t, "100.00", r.body["subtotal"])

	r = e.do(&customer, http.MethodDelete, "/api/cart/items/"+itoa(e.ayran.ID), "")
	require.Equal(t, http.StatusOK, r.code)
	assert.Len(t, r.body["items"], 1)
	assert.Equal(t, "50.00", r.body["subtotal"])

	r = e.do(&customer, http.MethodDelete, "/api/cart/coupon", "")
	assert.Equal(t, http.StatusOK, r.code)
}

func TestCart_Errors(t *testing.T) {
	e := newEnv(t)

	tests := []struct {
		name   string
		actor  auth.Actor
		method string
		path   string
		body   string
		code   int
	}{
		{"ZeroQuantity", customer, http.MethodPost, "/api/cart/items", `{"product_id":` + itoa(e.pide.ID) + `,"quantity":0}`, http.StatusBadRequest},
		{"HugeQuantity", customer, http.MethodPost, "/api/cart/items", `{"product_id":` + itoa(e.pide.ID) + `,"quantity":9223372036854775807}`, http.StatusBadRequest},
		{"MissingProduct", customer, http.MethodPost, "/api/cart/items", `{"quantity":1}`, http.StatusBadRequest},
		{"MalformedJSON", customer, http.MethodPost, "/api/cart/items", `{`, http.StatusBadRequest},
		{"UnknownProduct", customer, http.MethodPost, "/api/cart/items", `{"product_id":9999}`, http.StatusNotFound},
		{"NotInCart", customer, http.MethodPost, "/api/cart/items/" + itoa(e.ayran.ID) + "/increase", ``, http.StatusNotFound},
		{"BadPathID", customer, http.MethodDelete, "/api/cart/items/abc", ``, http.StatusBadRequest},
		{"EmptyCouponCode", customer, http.MethodPost, "/api/cart/coupon", `{"code":"  "}`, http.StatusBadRequest},
		{"OwnerHasNoCart", owner, http.MethodGet, "/api/cart", ``, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := e.do(&tt.actor, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.code, r.code)
			assert.Equal(t, float64(tt.code), r.body["code"])
			assert.NotEmpty(t, r.body["message"])
		})
	}
}

func TestOrderLifecycle(t *testing.T) {
	e := newEnv(t)
	e.fill(t)
	require.Equal(t, http.StatusOK, e.do(&customer, http.MethodPost, "/api/cart/coupon", `{"code":"TEN"}`).code)

	r := e.do(&customer, http.MethodPost, "/api/orders", ``)
	require.Equal(t, http.StatusCreated, r.code, r.body)
	assert.Equal(t, "pending", r.body["status"])
	assert.Equal(t, "100.00", r.body["total_amount"])
	assert.Equal(t, "10.00", r.body["discount"])
	assert.Equal(t, "90.00", r.body["final_amount"])
	assert.Len(t, r.body["items"], 2)
	id := itoa(int64(r.body["id"].(float64)))
	orderPath := "/api/orders/" + id

	r = e.do(&customer, http.MethodGet, "/api/cart", "")
	assert.Empty(t, r.body["items"], "checkout clears the cart")
	assert.Equal(t, http.StatusUnprocessableEntity, e.do(&customer, http.MethodPost, "/api/orders", `{}`).code)

	r = e.do(&owner, http.MethodGet, orderPath, "")
	require.Equal(t, http.StatusOK, r.code)
	assert.Equal(t, []any{"pending", "accepted", "canceled"}, r.body["next_statuses"])
	assert.Len(t, r.body["history"], 1)

	r = e.do(&customer, http.MethodGet, orderPath, "")
	require.Equal(t, http.StatusOK, r.code)
	assert.Empty(t, r.body["next_statuses"])

	assert.Equal(t, http.StatusForbidden, e.do(&otherOwner, http.MethodGet, orderPath, "").code)
	assert.Equal(t, http.StatusNotFound, e.do(&owner, http.MethodGet, "/api/orders/9999", "").code)

	statusPath := orderPath + "/status"
	assert.Equal(t, http.StatusForbidden, e.do(&customer, http.MethodPost, statusPath, `{"status":"accepted"}`).code)
	assert.Equal(t, http.StatusForbidden, e.do(&otherOwner, http.MethodPost, statusPath, `{"status":"bogus"}`).code,
		"authorization is checked before the target")
	assert.Equal(t, http.StatusBadRequest, e.do(&owner, http.MethodPost, statusPath, `{"status":"bogus"}`).code)
	assert.Equal(t, http.StatusUnprocessableEntity, e.do(&owner, http.MethodPost, statusPath, `{"status":"delivered"}`).code)

	r = e.do(&owner, http.MethodPost, statusPath, `{"status":"accepted"}`)
	require.Equal(t, http.StatusOK, r.code)
	assert.Equal(t, true, r.body["changed"])
	assert.Equal(t, "pending", r.body["from"])

	r = e.do(&owner, http.MethodPost, statusPath, `{"status":"accepted"}`)
	require.Equal(t, http.StatusOK, r.code)
	assert.Equal(t, false, r.body["changed"])

	reviewPath := orderPath + "/review"
	assert.Equal(t, http.StatusConflict, e.do(&customer, http.MethodPost, reviewPath, `{"rating":5}`).code)

	for _, s := range []string{"preparing", "on_the_way", "delivered"} {
		require.Equal(t, http.StatusOK, e.do(&admin, http.MethodPost, statusPath, `{"status":"`+s+`"}`).code, s)
	}

	assert.Equal(t, http.StatusBadRequest, e.do(&customer, http.MethodPost, reviewPath, `{"rating":6}`).code)
	r = e.do(&customer, http.MethodPost, reviewPath, `{"rating":5,"comment":"Hot and fast"}`)
	require.Equal(t, http.StatusCreated, r.code)
	assert.Equal(t, "Hot and fast", r.body["comment"])
	assert.Equal(t, http.StatusConflict, e.do(&customer, http.MethodPost, reviewPath, `{"rating":4}`).code)

	r = e.do(&customer, http.MethodGet, orderPath, "")
	assert.Equal(t, "delivered", r.body["status"])
	assert.Len(t, r.body["history"], 5)
}

func TestListOrders(t *testing.T) {
	e := newEnv(t)
	for range 2 {
		e.fill(t)
		require.Equal(t, http.StatusCreated, e.do(&customer, http.MethodPost, "/api/orders", `{"address_id":null}`).code)
	}

	r := e.do(&customer, http.MethodGet, "/api/orders", "")
	require.Equal(t, http.StatusOK, r.code)
	assert.Equal(t, float64(2), r.body["total"])
	assert.Equal(t, float64(1), r.body["page"])
	assert.Len(t, r.body["orders"], 2)

	r = e.do(&otherOwner, http.MethodGet, "/api/orders", "")
	require.Equal(t, http.StatusOK, r.code)
	assert.Equal(t, float64(0), r.body["total"])

	r = e.do(&admin, http.MethodGet, "/api/orders?status=pending&page=0", "")
	require.Equal(t, http.StatusOK, r.code)
	assert.Equal(t, float64(2), r.body["total"])
	assert.Equal(t, float64(1), r.body["page"])

	assert.Equal(t, http.StatusBadRequest, e.do(&admin, http.MethodGet, "/api/orders?page=abc", "").code)
	assert.Equal(t, http.StatusBadRequest, e.do(&admin, http.MethodGet, "/api/orders?page=9223372036854775807", "").code)
	assert.Equal(t, http.StatusBadRequest, e.do(&admin, http.MethodGet, "/api/orders?status=bogus", "").code)

	e.fill(t)
	assert.Equal(t, http.StatusNotFound,
		e.do(&customer, http.MethodPost, "/api/orders", `{"address_id":424242}`).code)
	r = e.do(&customer, http.MethodGet, "/api/cart", "")
	assert.Len(t, r.body["items"], 2, "failed checkout keeps the cart")
}

func TestUpdatePrice(t *testing.T) {
	e := newEnv(t)
	path := "/api/products/" + itoa(e.pide.ID)

	r := e.do(&owner, http.MethodPut, path+"/price", `{"price":"55.5"}`)
	require.Equal(t, http.StatusOK, r.code)
	assert.Equal(t, true, r.body["changed"])
	assert.Equal(t, "55.50", r.body["price"])

	r = e.do(&owner, http.MethodPut, path+"/price", `{"price":55.50}`)
	require.Equal(t, http.StatusOK, r.code)
	assert.Equal(t, false, r.body["changed"])

	assert.Equal(t, "55.50", e.do(nil, http.MethodGet, path, "").body["price"])

	tests := []struct {
		name  string
		actor auth.Actor
		body  string
		code  int
	}{
		{"OtherOwner", otherOwner, `{"price":"1.00"}`, http.StatusForbidden},
		{"Customer", customer, `{"price":"1.00"}`, http.StatusForbidden},
		{"Negative", owner, `{"price":"-1"}`, http.StatusBadRequest},
		{"SubCent", owner, `{"price":"1.001"}`, http.StatusBadRequest},
		{"Missing", owner, `{}`, http.StatusBadRequest},
		{"NotAmount", owner, `{"price":true}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, e.do(&tt.actor, http.MethodPut, path+"/price", tt.body).code)
		})
	}

	r = e.do(&owner, http.MethodGet, path+"/price-history", "")
	require.Equal(t, http.StatusOK, r.code)
	require.Len(t, r.list, 1)
	change := r.list[0].(map[string]any)
	assert.Equal(t, "50.00", change["old_price"])
	assert.Equal(t, "55.50", change["new_price"])

	assert.Equal(t, http.StatusForbidden, e.do(&customer, http.MethodGet, path+"/price-history", "").code)
	assert.Equal(t, http.StatusNotFound, e.do(&admin, http.MethodPut, "/api/products/9999/price", `{"price":"1"}`).code)
}

func TestSetProductActive(t *testing.T) {
	e := newEnv(t)
	e.fill(t)
	path := "/api/products/" + itoa(e.ayran.ID) + "/active"
	menuPath := "/api/restaurants/" + itoa(e.ayran.RestaurantID) + "/products"
	menuLen := len(e.do(nil, http.MethodGet, menuPath, "").list)

	r := e.do(&owner, http.MethodPut, path, `{"active":false}`)
	require.Equal(t, http.StatusOK, r.code)
	assert.Equal(t, true, r.body["changed"])
	assert.Equal(t, false, r.body["active"])

	r = e.do(&owner, http.MethodPut, path, `{"active":false}`)
	require.Equal(t, http.StatusOK, r.code)
	assert.Equal(t, false, r.body["changed"])

	assert.Len(t, e.do(nil, http.MethodGet, menuPath, "").list, menuLen-1)

	r = e.do(&customer, http.MethodGet, "/api/cart", "")
	require.Equal(t, http.StatusOK, r.code)
	assert.Len(t, r.body["items"], 1, "inactive product dropped from the cart")
	assert.Equal(t, "50.00", r.body["subtotal"])

	assert.Equal(t, http.StatusUnprocessableEntity,
		e.do(&customer, http.MethodPost, "/api/cart/items", `{"product_id":`+itoa(e.ayran.ID)+`}`).code)

	tests := []struct {
		name  string
		actor auth.Actor
		body  string
		code  int
	}{
		{"OtherOwner", otherOwner, `{"active":true}`, http.StatusForbidden},
		{"Customer", customer, `{"active":true}`, http.StatusForbidden},
		{"Missing", owner, `{}`, http.StatusBadRequest},
		{"NotBool", owner, `{"active":"yes"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, e.do(&tt.actor, http.MethodPut, path, tt.body).code)
		})
	}
	assert.Equal(t, http.StatusNotFound, e.do(&admin, http.MethodPut, "/api/products/9999/active", `{"active":true}`).code)

	r = e.do(&owner, http.MethodPut, path, `{"active":true}`)
	require.Equal(t, http.StatusOK, r.code)
	assert.Equal(t, true, r.body["changed"])
	assert.Len(t, e.do(nil, http.MethodGet, menuPath, "").list, menuLen)
}

func TestUnknownRoute(t *testing.T) {
	e := newEnv(t)
	r := e.do(nil, http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, r.code)
	assert.Equal(t, "not found", r.body["message"])
}
