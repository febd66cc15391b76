package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/yxshee/marketplace-storefront/internal/config"
	"github.com/yxshee/marketplace-storefront/internal/events"
	"github.com/yxshee/marketplace-storefront/internal/storage"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 32)...)

func testConfig(t *testing.T) config.Config {
	return config.Config{
		Port:                 "8080",
		Environment:          "test",
		JWTSecret:            "test-secret",
		JWTIssuer:            "marketplace-storefront",
		AccessTokenTTL:       testSeconds(900),
		RefreshTokenTTL:      testSeconds(3600),
		SuperAdminEmails:     "admin@example.com",
		SupportEmails:        "support@example.com",
		CatalogModEmails:     "moderator@example.com",
		RateLimitRPS:         1000,
		RateLimitBurst:       1000,
		LocalUploadDir:       t.TempDir(),
		LocalUploadURLPrefix: "/uploads",
		MaxUploadBytes:       1 << 20,
		MaxProductVariants:   50,
		DefaultCurrency:      "USD",
		DefaultCommission:    1000,
	}
}

func testSeconds(v int) time.Duration {
	return time.Duration(v) * time.Second
}

func mustRouter(t *testing.T) http.Handler {
	t.Helper()
	return mustRouterWith(t, Dependencies{})
}

func mustRouterWith(t *testing.T, deps Dependencies) http.Handler {
	t.Helper()
	r, err := New(testConfig(t), deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return r
}

func requestJSON(t *testing.T, r http.Handler, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			t.Fatalf("json.Marshal() error = %v", err)
		}
	}

	req := httptest.NewRequest(method, path, bytes.NewBuffer(payload))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

type formFile struct {
	field    string
	filename string
	content  []byte
}

func requestMultipart(t *testing.T, r http.Handler, path string, fields map[string]string, file *formFile, token string) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	if file != nil {
		part, err := writer.CreateFormFile(file.field, file.filename)
		require.NoError(t, err)
		_, err = part.Write(file.content)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("json.Unmarshal() error = %v body=%s", err, rr.Body.String())
	}
}

type authPayload struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	User         struct {
		ID       string  `json:"id"`
		Role     string  `json:"role"`
		VendorID *string `json:"vendor_id"`
	} `json:"user"`
}

type testVariant struct {
	SKU        string `json:"sku"`
	PriceCents int64  `json:"price_cents"`
	Quantity   int32  `json:"quantity"`
	ImageURL   string `json:"image_url"`
}

type testProduct struct {
	ID            string        `json:"id"`
	VendorID      string        `json:"vendor_id"`
	Status        string        `json:"status"`
	Variants      []testVariant `json:"variants"`
	PriceMinCents int64         `json:"price_min_cents"`
}

type editorPayload struct {
	Item       testProduct `json:"item"`
	Submission []struct {
		SKU string `json:"sku"`
	} `json:"submission"`
}

func (p testProduct) variant(t *testing.T, sku string) testVariant {
	t.Helper()
	for _, row := range p.Variants {
		if row.SKU == sku {
			return row
		}
	}
	t.Fatalf("variant %s not found in %+v", sku, p.Variants)
	return testVariant{}
}

func (p testProduct) skus() []string {
	codes := make([]string, 0, len(p.Variants))
	for _, row := range p.Variants {
		codes = append(codes, row.SKU)
	}
	return codes
}

func registerUser(t *testing.T, r http.Handler, email string) authPayload {
	t.Helper()
	rr := requestJSON(t, r, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email":    email,
		"password": "strong-password",
	}, "")
	if rr.Code != http.StatusCreated {
		t.Fatalf("register status=%d body=%s", rr.Code, rr.Body.String())
	}
	var payload authPayload
	decodeBody(t, rr, &payload)
	return payload
}

func loginUser(t *testing.T, r http.Handler, email string) authPayload {
	t.Helper()
	rr := requestJSON(t, r, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email":    email,
		"password": "strong-password",
	}, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("login status=%d body=%s", rr.Code, rr.Body.String())
	}
	var payload authPayload
	decodeBody(t, rr, &payload)
	return payload
}

type marketplace struct {
	router    http.Handler
	admin     authPayload
	moderator authPayload
}

func newMarketplace(t *testing.T, deps Dependencies) marketplace {
	t.Helper()
	r := mustRouterWith(t, deps)
	return marketplace{
		router:    r,
		admin:     registerUser(t, r, "admin@example.com"),
		moderator: registerUser(t, r, "moderator@example.com"),
	}
}

// verifiedVendor registers email as the owner of a verified shop and returns a
// token carrying the vendor id.
func (m marketplace) verifiedVendor(t *testing.T, email, slug string) (authPayload, string) {
	t.Helper()
	owner := registerUser(t, m.router, email)

	created := requestJSON(t, m.router, http.MethodPost, "/api/v1/vendors/register", map[string]string{
		"slug":         slug,
		"display_name": strings.ToUpper(slug),
	}, owner.AccessToken)
	if created.Code != http.StatusCreated {
		t.Fatalf("vendor register status=%d body=%s", created.Code, created.Body.String())
	}
	var vendorBody struct {
		ID string `json:"id"`
	}
	decodeBody(t, created, &vendorBody)

	verified := requestJSON(t, m.router, http.MethodPatch, "/api/v1/admin/vendors/"+vendorBody.ID+"/verification", map[string]string{
		"state":  "verified",
		"reason": "kyc complete",
	}, m.admin.AccessToken)
	if verified.Code != http.StatusOK {
		t.Fatalf("admin verify vendor status=%d body=%s", verified.Code, verified.Body.String())
	}

	return loginUser(t, m.router, email), vendorBody.ID
}

func (m marketplace) createProduct(t *testing.T, token string, body map[string]interface{}) testProduct {
	t.Helper()
	rr := requestJSON(t, m.router, http.MethodPost, "/api/v1/vendor/products", body, token)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create product status=%d body=%s", rr.Code, rr.Body.String())
	}
	var product testProduct
	decodeBody(t, rr, &product)
	return product
}

func (m marketplace) publish(t *testing.T, token, productID string) {
	t.Helper()
	submitted := requestJSON(t, m.router, http.MethodPost, "/api/v1/vendor/products/"+productID+"/submit-moderation", map[string]string{}, token)
	if submitted.Code != http.StatusOK {
		t.Fatalf("submit moderation status=%d body=%s", submitted.Code, submitted.Body.String())
	}
	approved := requestJSON(t, m.router, http.MethodPatch, "/api/v1/admin/moderation/products/"+productID, map[string]string{
		"decision": "approve",
	}, m.moderator.AccessToken)
	if approved.Code != http.StatusOK {
		t.Fatalf("approve moderation status=%d body=%s", approved.Code, approved.Body.String())
	}
}

func colorProduct() map[string]interface{} {
	return map[string]interface{}{
		"title":            "Canvas Tote",
		"description":      "Heavy *canvas* tote",
		"base_price_cents": 2000,
		"base_quantity":    5,
		"attributes": []map[string]interface{}{
			{"key_name": "color", "display_name": "Color", "values": []string{"Red", "Blue"}, "allow_multiple": true},
		},
	}
}

func TestAuthRegisterLoginMeAndRefreshRotation(t *testing.T) {
	r := mustRouter(t)
	registered := registerUser(t, r, "buyer@example.com")

	me := requestJSON(t, r, http.MethodGet, "/api/v1/auth/me", nil, registered.AccessToken)
	if me.Code != http.StatusOK {
		t.Fatalf("auth me status=%d body=%s", me.Code, me.Body.String())
	}

	refresh := requestJSON(t, r, http.MethodPost, "/api/v1/auth/refresh", map[string]string{
		"refresh_token": registered.RefreshToken,
	}, "")
	if refresh.Code != http.StatusOK {
		t.Fatalf("refresh status=%d body=%s", refresh.Code, refresh.Body.String())
	}

	var refreshed authPayload
	decodeBody(t, refresh, &refreshed)
	if refreshed.RefreshToken == registered.RefreshToken {
		t.Fatal("expected refresh token rotation")
	}

	secondRefresh := requestJSON(t, r, http.MethodPost, "/api/v1/auth/refresh", map[string]string{
		"refresh_token": registered.RefreshToken,
	}, "")
	if secondRefresh.Code != http.StatusUnauthorized {
		t.Fatalf("expected old refresh token to fail, got status=%d body=%s", secondRefresh.Code, secondRefresh.Body.String())
	}
}

func TestLogoutAllRevokesEverySession(t *testing.T) {
	r := mustRouter(t)
	registered := registerUser(t, r, "buyer@example.com")
	second := loginUser(t, r, "buyer@example.com")

	me := requestJSON(t, r, http.MethodGet, "/api/v1/auth/me", nil, second.AccessToken)
	if me.Code != http.StatusOK {
		t.Fatalf("auth me status=%d body=%s", me.Code, me.Body.String())
	}
	var account struct {
		Permissions []string `json:"permissions"`
	}
	decodeBody(t, me, &account)
	if len(account.Permissions) != 2 || account.Permissions[0] != "message_vendors" {
		t.Fatalf("unexpected buyer permissions %v", account.Permissions)
	}

	revoked := requestJSON(t, r, http.MethodPost, "/api/v1/auth/logout-all", map[string]string{}, second.AccessToken)
	if revoked.Code != http.StatusOK {
		t.Fatalf("logout-all status=%d body=%s", revoked.Code, revoked.Body.String())
	}
	var result struct {
		RevokedSessions int `json:"revoked_sessions"`
	}
	decodeBody(t, revoked, &result)
	if result.RevokedSessions != 2 {
		t.Fatalf("expected 2 revoked sessions, got %d", result.RevokedSessions)
	}

	for _, token := range []string{registered.RefreshToken, second.RefreshToken} {
		refresh := requestJSON(t, r, http.MethodPost, "/api/v1/auth/refresh", map[string]string{"refresh_token": token}, "")
		if refresh.Code != http.StatusUnauthorized {
			t.Fatalf("expected revoked refresh token to fail, got status=%d", refresh.Code)
		}
	}
}

func TestUnlistedProductPreview(t *testing.T) {
	m := newMarketplace(t, Dependencies{})
	owner, _ := m.verifiedVendor(t, "owner@example.com", "tote-shop")
	product := m.createProduct(t, owner.AccessToken, colorProduct())
	buyer := registerUser(t, m.router, "buyer@example.com")
	path := "/api/v1/catalog/products/" + product.ID

	cases := []struct {
		name  string
		token string
		want  int
	}{
		{name: "anonymous", token: "", want: http.StatusNotFound},
		{name: "other buyer", token: buyer.AccessToken, want: http.StatusNotFound},
		{name: "owner", token: owner.AccessToken, want: http.StatusOK},
		{name: "moderator", token: m.moderator.AccessToken, want: http.StatusOK},
		{name: "malformed token", token: "not-a-token", want: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := requestJSON(t, m.router, http.MethodGet, path, nil, tc.token)
			if rr.Code != tc.want {
				t.Fatalf("status=%d want=%d body=%s", rr.Code, tc.want, rr.Body.String())
			}
		})
	}
}

func TestRBACStaffSegmentation(t *testing.T) {
	r := mustRouter(t)

	support := registerUser(t, r, "support@example.com")
	moderator := registerUser(t, r, "moderator@example.com")
	buyer := registerUser(t, r, "buyer@example.com")

	supportCommission := requestJSON(t, r, http.MethodPatch, "/api/v1/admin/vendors/ven_missing/commission", map[string]int32{
		"commission_override_bps": 900,
	}, support.AccessToken)
	if supportCommission.Code != http.StatusForbidden {
		t.Fatalf("expected support to be forbidden for commission, got status=%d body=%s", supportCommission.Code, supportCommission.Body.String())
	}

	supportModeration := requestJSON(t, r, http.MethodPatch, "/api/v1/admin/moderation/products/prd_missing", map[string]string{
		"decision": "approve",
	}, support.AccessToken)
	if supportModeration.Code != http.StatusForbidden {
		t.Fatalf("expected support to be forbidden for moderation, got status=%d body=%s", supportModeration.Code, supportModeration.Body.String())
	}

	moderatorVendors := requestJSON(t, r, http.MethodGet, "/api/v1/admin/vendors", nil, moderator.AccessToken)
	assert.Equal(t, http.StatusForbidden, moderatorVendors.Code)

	buyerAttributes := requestJSON(t, r, http.MethodPut, "/api/v1/admin/attributes/size", map[string]interface{}{
		"display_name": "Size",
		"values":       []string{"S"},
	}, buyer.AccessToken)
	assert.Equal(t, http.StatusForbidden, buyerAttributes.Code)

	buyerProducts := requestJSON(t, r, http.MethodGet, "/api/v1/vendor/products", nil, buyer.AccessToken)
	assert.Equal(t, http.StatusForbidden, buyerProducts.Code)

	anonymous := requestJSON(t, r, http.MethodGet, "/api/v1/vendor/products", nil, "")
	assert.Equal(t, http.StatusUnauthorized, anonymous.Code)

	staffVendor := requestJSON(t, r, http.MethodPost, "/api/v1/vendors/register", map[string]string{
		"slug":         "staff-shop",
		"display_name": "Staff Shop",
	}, support.AccessToken)
	assert.Equal(t, http.StatusForbidden, staffVendor.Code)
}

func TestModerationWorkflow(t *testing.T) {
	m := newMarketplace(t, Dependencies{})
	vendorLogin, _ := m.verifiedVendor(t, "vendor-owner@example.com", "vendor-one")

	product := m.createProduct(t, vendorLogin.AccessToken, map[string]interface{}{
		"title":            "Notebook",
		"description":      "Thin notebook",
		"base_price_cents": 2499,
		"currency":         "usd",
	})
	assert.Equal(t, "draft", product.Status)

	hidden := requestJSON(t, m.router, http.MethodGet, "/api/v1/catalog/products/"+product.ID, nil, "")
	assert.Equal(t, http.StatusNotFound, hidden.Code)

	m.publish(t, vendorLogin.AccessToken, product.ID)

	listing := requestJSON(t, m.router, http.MethodGet, "/api/v1/catalog/products", nil, "")
	require.Equal(t, http.StatusOK, listing.Code)
	var listingBody struct {
		Total int `json:"total"`
	}
	decodeBody(t, listing, &listingBody)
	if listingBody.Total != 1 {
		t.Fatalf("expected 1 catalog item, got %d", listingBody.Total)
	}

	edited := requestJSON(t, m.router, http.MethodPatch, "/api/v1/vendor/products/"+product.ID, map[string]interface{}{
		"title": "Notebook, revised",
	}, vendorLogin.AccessToken)
	require.Equal(t, http.StatusOK, edited.Code, edited.Body.String())
	var editedBody testProduct
	decodeBody(t, edited, &editedBody)
	assert.Equal(t, "draft", editedBody.Status)

	pending := requestJSON(t, m.router, http.MethodGet, "/api/v1/admin/moderation/products?status=bogus", nil, m.moderator.AccessToken)
	assert.Equal(t, http.StatusBadRequest, pending.Code)

	audit := requestJSON(t, m.router, http.MethodGet, "/api/v1/admin/audit-logs?action=product.moderated", nil, m.admin.AccessToken)
	require.Equal(t, http.StatusOK, audit.Code)
	var auditBody struct {
		Total int `json:"total"`
	}
	decodeBody(t, audit, &auditBody)
	assert.Equal(t, 1, auditBody.Total)

	badSince := requestJSON(t, m.router, http.MethodGet, "/api/v1/admin/audit-logs?since=yesterday", nil, m.admin.AccessToken)
	assert.Equal(t, http.StatusBadRequest, badSince.Code)

	for _, query := range []string{"limit=0", "limit=201", "offset=-1", "limit=ten"} {
		rejected := requestJSON(t, m.router, http.MethodGet, "/api/v1/admin/audit-logs?"+query, nil, m.admin.AccessToken)
		assert.Equal(t, http.StatusBadRequest, rejected.Code, query)
	}
}

func TestUnverifiedVendorCannotSubmit(t *testing.T) {
	m := newMarketplace(t, Dependencies{})
	owner := registerUser(t, m.router, "pending@example.com")
	created := requestJSON(t, m.router, http.MethodPost, "/api/v1/vendors/register", map[string]string{
		"slug":         "pending-shop",
		"display_name": "Pending Shop",
	}, owner.AccessToken)
	require.Equal(t, http.StatusCreated, created.Code)

	vendorLogin := loginUser(t, m.router, "pending@example.com")
	product := m.createProduct(t, vendorLogin.AccessToken, map[string]interface{}{
		"title":            "Sketchbook",
		"base_price_cents": 1500,
	})

	submitted := requestJSON(t, m.router, http.MethodPost, "/api/v1/vendor/products/"+product.ID+"/submit-moderation", map[string]string{}, vendorLogin.AccessToken)
	assert.Equal(t, http.StatusForbidden, submitted.Code)
}

func TestVariantEditorThroughAPI(t *testing.T) {
	m := newMarketplace(t, Dependencies{})
	vendorLogin, _ := m.verifiedVendor(t, "tote@example.com", "tote-shop")
	token := vendorLogin.AccessToken

	sizeEntry := requestJSON(t, m.router, http.MethodPut, "/api/v1/admin/attributes/size", map[string]interface{}{
		"display_name":   "Size",
		"values":         []string{"S", "M"},
		"allow_multiple": true,
		"creatable":      true,
	}, m.moderator.AccessToken)
	require.Equal(t, http.StatusOK, sizeEntry.Code, sizeEntry.Body.String())

	product := m.createProduct(t, token, colorProduct())
	assert.Equal(t, []string{"SKU-RED", "SKU-BLUE"}, product.skus())
	base := "/api/v1/vendor/products/" + product.ID

	selected := requestJSON(t, m.router, http.MethodPost, base+"/attributes", map[string]string{"key_name": "size"}, token)
	require.Equal(t, http.StatusOK, selected.Code, selected.Body.String())
	var selectedBody struct {
		Added bool        `json:"added"`
		Item  testProduct `json:"item"`
	}
	decodeBody(t, selected, &selectedBody)
	assert.True(t, selectedBody.Added)
	assert.Len(t, selectedBody.Item.Variants, 2)

	values := requestJSON(t, m.router, http.MethodPut, base+"/attributes/size/values", map[string][]string{"values": {"S", "XL"}}, token)
	require.Equal(t, http.StatusOK, values.Code, values.Body.String())
	var valuesBody struct {
		Item  testProduct `json:"item"`
		AdHoc []string    `json:"ad_hoc"`
	}
	decodeBody(t, values, &valuesBody)
	assert.Equal(t, []string{"SKU-RED-S", "SKU-RED-XL", "SKU-BLUE-S", "SKU-BLUE-XL"}, valuesBody.Item.skus())
	assert.Equal(t, []string{"XL"}, valuesBody.AdHoc)

	attributeCatalog := requestJSON(t, m.router, http.MethodGet, "/api/v1/catalog/attributes", nil, "")
	require.Equal(t, http.StatusOK, attributeCatalog.Code)
	var catalogBody struct {
		Items []struct {
			KeyName string   `json:"key_name"`
			Values  []string `json:"values"`
		} `json:"items"`
	}
	decodeBody(t, attributeCatalog, &catalogBody)
	require.Len(t, catalogBody.Items, 1)
	assert.Equal(t, []string{"S", "M", "XL"}, catalogBody.Items[0].Values)

	bulk := requestJSON(t, m.router, http.MethodPost, base+"/variants/bulk", map[string]interface{}{
		"price_cents": 2500,
		"scope":       map[string]string{"key_name": "color", "value": "Blue"},
	}, token)
	require.Equal(t, http.StatusOK, bulk.Code, bulk.Body.String())
	var bulkBody editorPayload
	decodeBody(t, bulk, &bulkBody)
	assert.Equal(t, int64(2500), bulkBody.Item.variant(t, "SKU-BLUE-XL").PriceCents)
	assert.Equal(t, int64(2000), bulkBody.Item.variant(t, "SKU-RED-S").PriceCents)
	assert.Len(t, bulkBody.Submission, 4)

	negative := requestJSON(t, m.router, http.MethodPost, base+"/variants/bulk", map[string]interface{}{"quantity": -1}, token)
	assert.Equal(t, http.StatusBadRequest, negative.Code)
	empty := requestJSON(t, m.router, http.MethodPost, base+"/variants/bulk", map[string]interface{}{}, token)
	assert.Equal(t, http.StatusBadRequest, empty.Code)

	field := requestJSON(t, m.router, http.MethodPatch, base+"/variants/SKU-RED-S", map[string]string{"field": "quantity", "value": "9"}, token)
	require.Equal(t, http.StatusOK, field.Code, field.Body.String())
	var fieldBody editorPayload
	decodeBody(t, field, &fieldBody)
	assert.Equal(t, int32(9), fieldBody.Item.variant(t, "SKU-RED-S").Quantity)

	unknownSKU := requestJSON(t, m.router, http.MethodPatch, base+"/variants/SKU-NOPE", map[string]string{"field": "quantity", "value": "9"}, token)
	assert.Equal(t, http.StatusNotFound, unknownSKU.Code)
	unknownField := requestJSON(t, m.router, http.MethodPatch, base+"/variants/SKU-RED-S", map[string]string{"field": "weight", "value": "9"}, token)
	assert.Equal(t, http.StatusBadRequest, unknownField.Code)
	badNumber := requestJSON(t, m.router, http.MethodPatch, base+"/variants/SKU-RED-S", map[string]string{"field": "price", "value": "cheap"}, token)
	assert.Equal(t, http.StatusBadRequest, badNumber.Code)

	image := requestMultipart(t, m.router, base+"/variants/bulk", map[string]string{"scope_key": "color", "scope_value": "Red"}, &formFile{
		field:    "image",
		filename: "red.png",
		content:  pngBytes,
	}, token)
	require.Equal(t, http.StatusOK, image.Code, image.Body.String())
	var imageBody editorPayload
	decodeBody(t, image, &imageBody)
	redImage := imageBody.Item.variant(t, "SKU-RED-XL").ImageURL
	assert.True(t, strings.HasPrefix(redImage, "/uploads/"), redImage)
	assert.Equal(t, redImage, imageBody.Item.variant(t, "SKU-RED-S").ImageURL)
	assert.Empty(t, imageBody.Item.variant(t, "SKU-BLUE-S").ImageURL)

	served := httptest.NewRecorder()
	m.router.ServeHTTP(served, httptest.NewRequest(http.MethodGet, redImage, nil))
	assert.Equal(t, http.StatusOK, served.Code)
	assert.Equal(t, pngBytes, served.Body.Bytes())

	rowImage := requestMultipart(t, m.router, base+"/variants/SKU-BLUE-S/image", nil, &formFile{
		field:    "image",
		filename: "blue.png",
		content:  pngBytes,
	}, token)
	require.Equal(t, http.StatusOK, rowImage.Code, rowImage.Body.String())
	var rowBody editorPayload
	decodeBody(t, rowImage, &rowBody)
	assert.NotEmpty(t, rowBody.Item.variant(t, "SKU-BLUE-S").ImageURL)
	assert.Empty(t, rowBody.Item.variant(t, "SKU-BLUE-XL").ImageURL)

	textFile := requestMultipart(t, m.router, base+"/variants/SKU-BLUE-S/image", nil, &formFile{
		field:    "image",
		filename: "notes.txt",
		content:  []byte("hello"),
	}, token)
	assert.Equal(t, http.StatusUnsupportedMediaType, textFile.Code)

	removed := requestJSON(t, m.router, http.MethodDelete, base+"/attributes/size", nil, token)
	require.Equal(t, http.StatusOK, removed.Code, removed.Body.String())
	var removedBody editorPayload
	decodeBody(t, removed, &removedBody)
	assert.Equal(t, []string{"SKU-RED", "SKU-BLUE"}, removedBody.Item.skus())

	custom := requestJSON(t, m.router, http.MethodPost, base+"/attributes/custom", map[string]interface{}{
		"display_name":   "Strap Length",
		"allow_multiple": true,
		"values":         "Short; Long",
	}, token)
	require.Equal(t, http.StatusCreated, custom.Code, custom.Body.String())
	var customBody editorPayload
	decodeBody(t, custom, &customBody)
	assert.Equal(t, []string{"SKU-RED-SHORT", "SKU-RED-LONG", "SKU-BLUE-SHORT", "SKU-BLUE-LONG"}, customBody.Item.skus())

	duplicate := requestJSON(t, m.router, http.MethodPost, base+"/attributes/custom", map[string]interface{}{
		"display_name": "strap length",
		"values":       "Medium",
	}, token)
	assert.Equal(t, http.StatusConflict, duplicate.Code)
}

func TestVariantLimitRejectsOversizedProduct(t *testing.T) {
	m := newMarketplace(t, Dependencies{})
	vendorLogin, _ := m.verifiedVendor(t, "big@example.com", "big-shop")

	sizes := make([]string, 0, 51)
	for i := 0; i < 51; i++ {
		sizes = append(sizes, "Size"+string(rune('A'+i%26))+string(rune('a'+i/26)))
	}
	rr := requestJSON(t, m.router, http.MethodPost, "/api/v1/vendor/products", map[string]interface{}{
		"title":            "Everything Tee",
		"base_price_cents": 1000,
		"attributes": []map[string]interface{}{
			{"key_name": "size", "display_name": "Size", "values": sizes, "allow_multiple": true},
		},
	}, vendorLogin.AccessToken)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code, rr.Body.String())
}

type failingStorage struct{}

func (failingStorage) Put(context.Context, io.Reader, storage.PutInput) (storage.PutResult, error) {
	return storage.PutResult{}, errors.New("bucket unavailable")
}

func (failingStorage) Delete(context.Context, string) error {
	return errors.New("bucket unavailable")
}

func TestBulkImageUploadFailureLeavesVariantsUntouched(t *testing.T) {
	m := newMarketplace(t, Dependencies{Storage: failingStorage{}})
	vendorLogin, _ := m.verifiedVendor(t, "fail@example.com", "fail-shop")
	product := m.createProduct(t, vendorLogin.AccessToken, colorProduct())
	base := "/api/v1/vendor/products/" + product.ID

	rr := requestMultipart(t, m.router, base+"/variants/bulk", map[string]string{"price_cents": "999"}, &formFile{
		field:    "image",
		filename: "all.png",
		content:  pngBytes,
	}, vendorLogin.AccessToken)
	assert.Equal(t, http.StatusBadGateway, rr.Code, rr.Body.String())

	current := requestJSON(t, m.router, http.MethodGet, base, nil, vendorLogin.AccessToken)
	require.Equal(t, http.StatusOK, current.Code)
	var body editorPayload
	decodeBody(t, current, &body)
	for _, row := range body.Item.Variants {
		assert.Equal(t, int64(2000), row.PriceCents, row.SKU)
		assert.Empty(t, row.ImageURL, row.SKU)
	}
}

func TestVariantSpreadsheetRoundTrip(t *testing.T) {
	m := newMarketplace(t, Dependencies{})
	vendorLogin, _ := m.verifiedVendor(t, "sheet@example.com", "sheet-shop")
	product := m.createProduct(t, vendorLogin.AccessToken, colorProduct())
	base := "/api/v1/vendor/products/" + product.ID

	export := requestJSON(t, m.router, http.MethodGet, base+"/variants/export", nil, vendorLogin.AccessToken)
	require.Equal(t, http.StatusOK, export.Code, export.Body.String())
	assert.Equal(t, spreadsheetContentType, export.Header().Get("Content-Type"))
	assert.Contains(t, export.Header().Get("Content-Disposition"), product.ID)

	workbook, err := excelize.OpenReader(bytes.NewReader(export.Body.Bytes()))
	require.NoError(t, err)
	rows, err := workbook.GetRows("Variants")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"sku", "Color", "price_cents", "quantity"}, rows[0][:4])
	assert.Equal(t, "SKU-RED", rows[1][0])

	require.NoError(t, workbook.SetCellValue("Variants", "C2", 3100))
	require.NoError(t, workbook.SetSheetRow("Variants", "A4", &[]interface{}{"SKU-GHOST", "Green", 100, 1}))
	var edited bytes.Buffer
	_, err = workbook.WriteTo(&edited)
	require.NoError(t, err)
	require.NoError(t, workbook.Close())

	imported := requestMultipart(t, m.router, base+"/variants/import", nil, &formFile{
		field:    "file",
		filename: "variants.xlsx",
		content:  edited.Bytes(),
	}, vendorLogin.AccessToken)
	require.Equal(t, http.StatusOK, imported.Code, imported.Body.String())

	var body struct {
		Item   testProduct `json:"item"`
		Report struct {
			Updated     int      `json:"updated"`
			UnknownSKUs []string `json:"unknown_skus"`
		} `json:"report"`
	}
	decodeBody(t, imported, &body)
	assert.Equal(t, 1, body.Report.Updated)
	assert.Equal(t, []string{"SKU-GHOST"}, body.Report.UnknownSKUs)
	assert.Equal(t, int64(3100), body.Item.variant(t, "SKU-RED").PriceCents)
	assert.Equal(t, int64(2000), body.Item.variant(t, "SKU-BLUE").PriceCents)
	assert.Len(t, body.Item.Variants, 2)

	garbage := requestMultipart(t, m.router, base+"/variants/import", nil, &formFile{
		field:    "file",
		filename: "variants.xlsx",
		content:  []byte("not a workbook"),
	}, vendorLogin.AccessToken)
	assert.Equal(t, http.StatusBadRequest, garbage.Code)
}

func TestStorefrontAttributeFilter(t *testing.T) {
	m := newMarketplace(t, Dependencies{})
	vendorLogin, vendorID := m.verifiedVendor(t, "filter@example.com", "filter-shop")

	tote := m.createProduct(t, vendorLogin.AccessToken, colorProduct())
	plain := m.createProduct(t, vendorLogin.AccessToken, map[string]interface{}{
		"title":            "Plain Mug",
		"base_price_cents": 1200,
	})
	m.publish(t, vendorLogin.AccessToken, tote.ID)
	m.publish(t, vendorLogin.AccessToken, plain.ID)

	filtered := requestJSON(t, m.router, http.MethodGet, "/api/v1/catalog/products?attr.color=blue", nil, "")
	require.Equal(t, http.StatusOK, filtered.Code)
	var body struct {
		Items []testProduct `json:"items"`
		Total int           `json:"total"`
	}
	decodeBody(t, filtered, &body)
	require.Equal(t, 1, body.Total)
	assert.Equal(t, tote.ID, body.Items[0].ID)

	detail := requestJSON(t, m.router, http.MethodGet, "/api/v1/catalog/products/"+tote.ID, nil, "")
	require.Equal(t, http.StatusOK, detail.Code)
	var detailBody struct {
		Item struct {
			DescriptionHTML string `json:"description_html"`
		} `json:"item"`
	}
	decodeBody(t, detail, &detailBody)
	assert.Contains(t, detailBody.Item.DescriptionHTML, "<em>canvas</em>")

	profile := requestJSON(t, m.router, http.MethodGet, "/api/v1/vendors/filter-shop", nil, "")
	require.Equal(t, http.StatusOK, profile.Code)
	var profileBody struct {
		ID           string `json:"id"`
		ProductCount int    `json:"product_count"`
	}
	decodeBody(t, profile, &profileBody)
	assert.Equal(t, vendorID, profileBody.ID)
	assert.Equal(t, 2, profileBody.ProductCount)

	suspended := requestJSON(t, m.router, http.MethodPatch, "/api/v1/admin/vendors/"+vendorID+"/verification", map[string]string{
		"state": "suspended",
	}, m.admin.AccessToken)
	require.Equal(t, http.StatusOK, suspended.Code)

	reinstated := requestJSON(t, m.router, http.MethodPatch, "/api/v1/admin/vendors/"+vendorID+"/verification", map[string]string{
		"state": "pending",
	}, m.admin.AccessToken)
	assert.Equal(t, http.StatusConflict, reinstated.Code, "suspended shops cannot go back to pending")

	afterSuspension := requestJSON(t, m.router, http.MethodGet, "/api/v1/catalog/products", nil, "")
	decodeBody(t, afterSuspension, &body)
	assert.Equal(t, 0, body.Total)
}

func TestCategoryDeletionRefusedWhileInUse(t *testing.T) {
	m := newMarketplace(t, Dependencies{})
	vendorLogin, _ := m.verifiedVendor(t, "cat@example.com", "cat-shop")

	for _, slug := range []string{"prints", "posters"} {
		rr := requestJSON(t, m.router, http.MethodPut, "/api/v1/admin/categories/"+slug, map[string]string{"name": strings.ToUpper(slug)}, m.moderator.AccessToken)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	}
	m.createProduct(t, vendorLogin.AccessToken, map[string]interface{}{
		"title":            "Poster",
		"category_slug":    "prints",
		"base_price_cents": 4000,
	})

	inUse := requestJSON(t, m.router, http.MethodDelete, "/api/v1/admin/categories/prints", nil, m.moderator.AccessToken)
	assert.Equal(t, http.StatusConflict, inUse.Code)
	fallback := requestJSON(t, m.router, http.MethodDelete, "/api/v1/admin/categories/general", nil, m.moderator.AccessToken)
	assert.Equal(t, http.StatusConflict, fallback.Code)
	unused := requestJSON(t, m.router, http.MethodDelete, "/api/v1/admin/categories/posters", nil, m.moderator.AccessToken)
	assert.Equal(t, http.StatusNoContent, unused.Code)
	missing := requestJSON(t, m.router, http.MethodDelete, "/api/v1/admin/categories/posters", nil, m.moderator.AccessToken)
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestMessagingRestrictedToParticipants(t *testing.T) {
	m := newMarketplace(t, Dependencies{})
	vendorLogin, vendorID := m.verifiedVendor(t, "shop@example.com", "chat-shop")
	product := m.createProduct(t, vendorLogin.AccessToken, colorProduct())
	m.publish(t, vendorLogin.AccessToken, product.ID)

	buyer := registerUser(t, m.router, "buyer@example.com")
	stranger := registerUser(t, m.router, "stranger@example.com")

	started := requestJSON(t, m.router, http.MethodPost, "/api/v1/messages/threads", map[string]string{
		"product_id": product.ID,
		"subject":    "Strap length?",
		"body":       "How long is the strap?",
	}, buyer.AccessToken)
	require.Equal(t, http.StatusCreated, started.Code, started.Body.String())
	var thread struct {
		ID           string `json:"id"`
		VendorID     string `json:"vendor_id"`
		MessageCount int    `json:"message_count"`
	}
	decodeBody(t, started, &thread)
	assert.Equal(t, vendorID, thread.VendorID)
	assert.Equal(t, 1, thread.MessageCount)

	again := requestJSON(t, m.router, http.MethodPost, "/api/v1/messages/threads", map[string]string{"product_id": product.ID}, buyer.AccessToken)
	assert.Equal(t, http.StatusOK, again.Code)

	followUp := requestJSON(t, m.router, http.MethodPost, "/api/v1/messages/threads", map[string]string{
		"product_id": product.ID,
		"body":       "Also, is it vegan leather?",
	}, buyer.AccessToken)
	require.Equal(t, http.StatusOK, followUp.Code, followUp.Body.String())
	var reopened struct {
		ID           string `json:"id"`
		MessageCount int    `json:"message_count"`
	}
	decodeBody(t, followUp, &reopened)
	assert.Equal(t, thread.ID, reopened.ID)
	assert.Equal(t, 2, reopened.MessageCount)

	peek := requestJSON(t, m.router, http.MethodGet, "/api/v1/messages/threads/"+thread.ID, nil, stranger.AccessToken)
	assert.Equal(t, http.StatusForbidden, peek.Code)
	intrude := requestJSON(t, m.router, http.MethodPost, "/api/v1/messages/threads/"+thread.ID+"/messages", map[string]string{"body": "hi"}, stranger.AccessToken)
	assert.Equal(t, http.StatusForbidden, intrude.Code)

	inbox := requestJSON(t, m.router, http.MethodGet, "/api/v1/vendor/messages/threads", nil, vendorLogin.AccessToken)
	require.Equal(t, http.StatusOK, inbox.Code)
	var inboxBody struct {
		Total int `json:"total"`
	}
	decodeBody(t, inbox, &inboxBody)
	assert.Equal(t, 1, inboxBody.Total)

	reply := requestJSON(t, m.router, http.MethodPost, "/api/v1/vendor/messages/threads/"+thread.ID+"/messages", map[string]string{"body": "About 60 cm."}, vendorLogin.AccessToken)
	require.Equal(t, http.StatusCreated, reply.Code, reply.Body.String())

	conversation := requestJSON(t, m.router, http.MethodGet, "/api/v1/messages/threads/"+thread.ID, nil, buyer.AccessToken)
	require.Equal(t, http.StatusOK, conversation.Code)
	var conversationBody struct {
		Messages []struct {
			SenderSide string `json:"sender_side"`
			Body       string `json:"body"`
		} `json:"messages"`
	}
	decodeBody(t, conversation, &conversationBody)
	require.Len(t, conversationBody.Messages, 2)
	assert.Equal(t, "buyer", conversationBody.Messages[0].SenderSide)
	assert.Equal(t, "vendor", conversationBody.Messages[1].SenderSide)

	blank := requestJSON(t, m.router, http.MethodPost, "/api/v1/messages/threads/"+thread.ID+"/messages", map[string]string{"body": "  "}, buyer.AccessToken)
	assert.Equal(t, http.StatusBadRequest, blank.Code)
}

func TestAssetUploadAndDelete(t *testing.T) {
	m := newMarketplace(t, Dependencies{})
	vendorLogin, _ := m.verifiedVendor(t, "assets@example.com", "asset-shop")

	uploaded := requestMultipart(t, m.router, "/api/v1/vendor/assets", map[string]string{"resource_type": "image"}, &formFile{
		field:    "file",
		filename: "logo.png",
		content:  pngBytes,
	}, vendorLogin.AccessToken)
	require.Equal(t, http.StatusCreated, uploaded.Code, uploaded.Body.String())
	var asset struct {
		SecureURL string `json:"secure_url"`
		PublicID  string `json:"public_id"`
	}
	decodeBody(t, uploaded, &asset)
	assert.True(t, strings.HasSuffix(asset.SecureURL, asset.PublicID))

	badType := requestMultipart(t, m.router, "/api/v1/vendor/assets", map[string]string{"resource_type": "document"}, &formFile{
		field:    "file",
		filename: "logo.png",
		content:  pngBytes,
	}, vendorLogin.AccessToken)
	assert.Equal(t, http.StatusBadRequest, badType.Code)

	tooLarge := requestMultipart(t, m.router, "/api/v1/vendor/assets", nil, &formFile{
		field:    "file",
		filename: "huge.png",
		content:  append(append([]byte{}, pngBytes...), bytes.Repeat([]byte{1}, 2<<20)...),
	}, vendorLogin.AccessToken)
	assert.Equal(t, http.StatusRequestEntityTooLarge, tooLarge.Code)

	deleted := requestJSON(t, m.router, http.MethodDelete, "/api/v1/vendor/assets/"+asset.PublicID, nil, vendorLogin.AccessToken)
	assert.Equal(t, http.StatusNoContent, deleted.Code)
	again := requestJSON(t, m.router, http.MethodDelete, "/api/v1/vendor/assets/"+asset.PublicID, nil, vendorLogin.AccessToken)
	assert.Equal(t, http.StatusNotFound, again.Code)
}

func TestInventoryAndPlatformAnalytics(t *testing.T) {
	m := newMarketplace(t, Dependencies{})
	vendorLogin, vendorID := m.verifiedVendor(t, "stats@example.com", "stats-shop")
	product := m.createProduct(t, vendorLogin.AccessToken, colorProduct())

	soldOut := requestJSON(t, m.router, http.MethodPatch, "/api/v1/vendor/products/"+product.ID+"/variants/SKU-RED", map[string]string{
		"field": "quantity",
		"value": "0",
	}, vendorLogin.AccessToken)
	require.Equal(t, http.StatusOK, soldOut.Code, soldOut.Body.String())

	overview := requestJSON(t, m.router, http.MethodGet, "/api/v1/vendor/analytics/overview", nil, vendorLogin.AccessToken)
	require.Equal(t, http.StatusOK, overview.Code, overview.Body.String())
	var overviewBody struct {
		ProductCount     int            `json:"product_count"`
		ProductsByStatus map[string]int `json:"products_by_status"`
		Inventory        struct {
			VariantCount       int   `json:"variant_count"`
			UnitsInStock       int64 `json:"units_in_stock"`
			StockValueCents    int64 `json:"stock_value_cents"`
			OutOfStockVariants int   `json:"out_of_stock_variants"`
		} `json:"inventory"`
	}
	decodeBody(t, overview, &overviewBody)
	assert.Equal(t, 1, overviewBody.ProductCount)
	assert.Equal(t, 1, overviewBody.ProductsByStatus["draft"])
	assert.Equal(t, 2, overviewBody.Inventory.VariantCount)
	assert.Equal(t, int64(5), overviewBody.Inventory.UnitsInStock)
	assert.Equal(t, int64(10000), overviewBody.Inventory.StockValueCents)
	assert.Equal(t, 1, overviewBody.Inventory.OutOfStockVariants)

	lowStock := requestJSON(t, m.router, http.MethodGet, "/api/v1/vendor/analytics/low-stock?threshold=3", nil, vendorLogin.AccessToken)
	require.Equal(t, http.StatusOK, lowStock.Code)
	var lowStockBody struct {
		Items []struct {
			SKU string `json:"sku"`
		} `json:"items"`
	}
	decodeBody(t, lowStock, &lowStockBody)
	require.Len(t, lowStockBody.Items, 1)
	assert.Equal(t, "SKU-RED", lowStockBody.Items[0].SKU)

	defaultThreshold := requestJSON(t, m.router, http.MethodGet, "/api/v1/vendor/analytics/low-stock", nil, vendorLogin.AccessToken)
	require.Equal(t, http.StatusOK, defaultThreshold.Code)
	decodeBody(t, defaultThreshold, &lowStockBody)
	assert.Len(t, lowStockBody.Items, 2, "shop default threshold of 5 includes the blue variant")

	settings := requestJSON(t, m.router, http.MethodPatch, "/api/v1/vendor/settings", map[string]int{"low_stock_threshold": 0}, vendorLogin.AccessToken)
	require.Equal(t, http.StatusOK, settings.Code, settings.Body.String())
	onlySoldOut := requestJSON(t, m.router, http.MethodGet, "/api/v1/vendor/analytics/low-stock", nil, vendorLogin.AccessToken)
	require.Equal(t, http.StatusOK, onlySoldOut.Code)
	lowStockBody.Items = nil
	decodeBody(t, onlySoldOut, &lowStockBody)
	require.Len(t, lowStockBody.Items, 1)
	assert.Equal(t, "SKU-RED", lowStockBody.Items[0].SKU)

	forbidden := requestJSON(t, m.router, http.MethodGet, "/api/v1/admin/analytics/overview", nil, vendorLogin.AccessToken)
	assert.Equal(t, http.StatusForbidden, forbidden.Code)

	support := registerUser(t, m.router, "support@example.com")
	platform := requestJSON(t, m.router, http.MethodGet, "/api/v1/admin/analytics/overview", nil, support.AccessToken)
	require.Equal(t, http.StatusOK, platform.Code, platform.Body.String())
	var platformBody struct {
		VendorMetrics struct {
			TotalVendors int `json:"total_vendors"`
			Verified     int `json:"verified"`
		} `json:"vendor_metrics"`
		CatalogMetrics struct {
			VariantCount int `json:"variant_count"`
		} `json:"catalog_metrics"`
	}
	decodeBody(t, platform, &platformBody)
	assert.Equal(t, 1, platformBody.VendorMetrics.TotalVendors)
	assert.Equal(t, 1, platformBody.VendorMetrics.Verified)
	assert.Equal(t, 2, platformBody.CatalogMetrics.VariantCount)

	ranked := requestJSON(t, m.router, http.MethodGet, "/api/v1/admin/analytics/vendors", nil, support.AccessToken)
	require.Equal(t, http.StatusOK, ranked.Code)
	var rankedBody struct {
		Items []struct {
			VendorID     string `json:"vendor_id"`
			ProductCount int    `json:"product_count"`
			UnitsInStock int64  `json:"units_in_stock"`
		} `json:"items"`
	}
	decodeBody(t, ranked, &rankedBody)
	require.Len(t, rankedBody.Items, 1)
	assert.Equal(t, vendorID, rankedBody.Items[0].VendorID)
	assert.Equal(t, 1, rankedBody.Items[0].ProductCount)
	assert.Equal(t, int64(5), rankedBody.Items[0].UnitsInStock)
}

func TestDomainEventsPublished(t *testing.T) {
	recorder := &events.Recorder{}
	m := newMarketplace(t, Dependencies{Events: recorder})
	vendorLogin, vendorID := m.verifiedVendor(t, "events@example.com", "events-shop")

	status := requestJSON(t, m.router, http.MethodGet, "/api/v1/vendor/verification-status", nil, vendorLogin.AccessToken)
	require.Equal(t, http.StatusOK, status.Code, status.Body.String())
	var statusBody struct {
		VendorID string `json:"vendor_id"`
		CanSell  bool   `json:"can_sell"`
		History  []struct {
			From   string `json:"from"`
			To     string `json:"to"`
			Reason string `json:"reason"`
		} `json:"history"`
	}
	decodeBody(t, status, &statusBody)
	assert.Equal(t, vendorID, statusBody.VendorID)
	assert.True(t, statusBody.CanSell)
	require.Len(t, statusBody.History, 1)
	assert.Equal(t, "kyc complete", statusBody.History[0].Reason)

	product := m.createProduct(t, vendorLogin.AccessToken, colorProduct())
	m.publish(t, vendorLogin.AccessToken, product.ID)

	types := recorder.Types()
	assert.Contains(t, types, events.VendorVerificationChanged)
	assert.Contains(t, types, events.ProductSubmitted)
	assert.Contains(t, types, events.ProductApproved)
	for _, event := range recorder.Events() {
		if event.Type == events.VendorVerificationChanged {
			assert.Equal(t, vendorID, event.VendorID)
			assert.Equal(t, m.admin.User.ID, event.ActorID)
		}
	}
}
