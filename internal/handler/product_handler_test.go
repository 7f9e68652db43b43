package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/restockd/internal/model"
	"github.com/hitoshi/restockd/internal/shopee"
)

// mockProductRepo はProductRepositoryのテスト用実装。
type mockProductRepo struct {
	mu       sync.Mutex
	products map[string]*model.TrackedProduct
	order    []string
	err      error
}

func newMockProductRepo() *mockProductRepo {
	return &mockProductRepo{products: make(map[string]*model.TrackedProduct)}
}

func productKey(shopID, itemID string) string {
	return shopID + "." + itemID
}

func (m *mockProductRepo) Upsert(ctx context.Context, product *model.TrackedProduct) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	key := productKey(product.ShopID, product.ItemID)
	_, exists := m.products[key]
	if !exists {
		m.order = append(m.order, key)
		product.CreatedAt = time.Now()
	}
	product.UpdatedAt = time.Now()
	m.products[key] = product
	return !exists, nil
}

func (m *mockProductRepo) Remove(ctx context.Context, shopID, itemID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	key := productKey(shopID, itemID)
	if _, exists := m.products[key]; !exists {
		return false, nil
	}
	delete(m.products, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return true, nil
}

func (m *mockProductRepo) Find(ctx context.Context, shopID, itemID string) (*model.TrackedProduct, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.products[productKey(shopID, itemID)], nil
}

func (m *mockProductRepo) List(ctx context.Context) ([]*model.TrackedProduct, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	results := make([]*model.TrackedProduct, 0, len(m.order))
	for _, key := range m.order {
		results = append(results, m.products[key])
	}
	return results, nil
}

func (m *mockProductRepo) UpdateStatus(ctx context.Context, shopID, itemID string, status *model.ProductStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, exists := m.products[productKey(shopID, itemID)]
	if !exists {
		return false, nil
	}
	p.LastStatus = status
	return true, nil
}

func (m *mockProductRepo) UpdateAlias(ctx context.Context, shopID, itemID, alias string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	p, exists := m.products[productKey(shopID, itemID)]
	if !exists {
		return false, nil
	}
	p.Alias = alias
	return true, nil
}

// mockFetcher は固定のFetchOutcomeを返すテスト用フェッチャー。
type mockFetcher struct {
	outcome shopee.FetchOutcome
}

func (m *mockFetcher) Fetch(ctx context.Context, shopID, itemID string) shopee.FetchOutcome {
	return m.outcome
}

// mockValidator はURL検証のテスト用実装。
type mockValidator struct {
	err error
}

func (m *mockValidator) ValidateURL(rawURL string) error {
	return m.err
}

func okOutcome(name string, stock, price int) shopee.FetchOutcome {
	return shopee.FetchOutcome{
		Kind:       shopee.OutcomeOK,
		HTTPStatus: 200,
		Status: &model.ProductStatus{
			Name: name, Stock: stock, Price: price,
			Available: stock > 0, FetchedAt: time.Now(),
			Variants: []model.VariantStatus{{Stock: stock, Price: price, Available: stock > 0}},
		},
	}
}

func newTestHandler(repo *mockProductRepo, fetcher *mockFetcher) *ProductHandler {
	return NewProductHandler(repo, fetcher, &mockValidator{})
}

func doAddProduct(t *testing.T, h *ProductHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/products", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	h.AddProduct(w, req)
	return w
}

func TestAddProduct_CreatesWithImmediateFetch(t *testing.T) {
	repo := newMockProductRepo()
	h := newTestHandler(repo, &mockFetcher{outcome: okOutcome("Sepatu Lari Pria", 5, 150000)})

	w := doAddProduct(t, h, `{"url": "https://shopee.co.id/Sepatu-i.123.456"}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}

	var resp productResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v", err)
	}
	if resp.ShopID != "123" || resp.ItemID != "456" {
		t.Errorf("key = (%s, %s), want (123, 456)", resp.ShopID, resp.ItemID)
	}
	if resp.LastStatus == nil {
		t.Fatal("登録時の即時フェッチ結果が保存されていない")
	}
	if resp.LastStatus.Stock != 5 {
		t.Errorf("stock = %d, want 5", resp.LastStatus.Stock)
	}
	// 表示名未指定の場合は取得した商品名を使う
	if resp.Alias != "Sepatu Lari Pria" {
		t.Errorf("alias = %q, want %q", resp.Alias, "Sepatu Lari Pria")
	}
}

func TestAddProduct_ExplicitAliasWins(t *testing.T) {
	repo := newMockProductRepo()
	h := newTestHandler(repo, &mockFetcher{outcome: okOutcome("Sepatu Lari Pria", 5, 150000)})

	w := doAddProduct(t, h, `{"url": "https://shopee.co.id/Sepatu-i.123.456", "alias": "sepatu-gym"}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}
	var resp productResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Alias != "sepatu-gym" {
		t.Errorf("alias = %q, want %q", resp.Alias, "sepatu-gym")
	}
}

func TestAddProduct_SameKeyReturnsOK(t *testing.T) {
	repo := newMockProductRepo()
	h := newTestHandler(repo, &mockFetcher{outcome: okOutcome("Sepatu", 5, 150000)})

	doAddProduct(t, h, `{"url": "https://shopee.co.id/Sepatu-i.123.456"}`)
	w := doAddProduct(t, h, `{"url": "https://shopee.co.id/Sepatu-i.123.456"}`)

	if w.Code != http.StatusOK {
		t.Errorf("再登録のstatus = %d, want 200", w.Code)
	}
	products, _ := repo.List(context.Background())
	if len(products) != 1 {
		t.Errorf("len(products) = %d, want 1（重複してはならない）", len(products))
	}
}

func TestAddProduct_InvalidRequests(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"不正なJSON", `{invalid`, model.ErrCodeInvalidRequest},
		{"URLが空", `{"url": ""}`, model.ErrCodeInvalidURL},
		{"識別子のないURL", `{"url": "https://shopee.co.id/some-page"}`, model.ErrCodeInvalidURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockProductRepo()
			h := newTestHandler(repo, &mockFetcher{outcome: okOutcome("X", 1, 1)})

			w := doAddProduct(t, h, tt.body)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
			var resp apiErrorResponse
			json.Unmarshal(w.Body.Bytes(), &resp)
			if resp.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", resp.Code, tt.wantCode)
			}
		})
	}
}

func TestAddProduct_BlockedURLIsRejected(t *testing.T) {
	repo := newMockProductRepo()
	h := NewProductHandler(repo, &mockFetcher{outcome: okOutcome("X", 1, 1)},
		&mockValidator{err: errors.New("URL is blocked")})

	w := doAddProduct(t, h, `{"url": "https://shopee.co.id/Sepatu-i.123.456"}`)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if len(repo.order) != 0 {
		t.Error("拒否されたURLが登録されてはならない")
	}
}

func TestAddProduct_UpstreamFailures(t *testing.T) {
	tests := []struct {
		name       string
		outcome    shopee.FetchOutcome
		wantStatus int
		wantCode   string
	}{
		{
			"商品が存在しない",
			shopee.FetchOutcome{Kind: shopee.OutcomeNotFound, HTTPStatus: 404},
			http.StatusNotFound, model.ErrCodeFetchFailed,
		},
		{
			"アクセス拒否",
			shopee.FetchOutcome{Kind: shopee.OutcomeForbidden, HTTPStatus: 403},
			http.StatusBadGateway, model.ErrCodeAuthFailed,
		},
		{
			"不正レスポンス",
			shopee.FetchOutcome{Kind: shopee.OutcomeMalformed, HTTPStatus: 200, Snippet: "<html>"},
			http.StatusBadGateway, model.ErrCodeUpstreamError,
		},
		{
			"通信障害",
			shopee.FetchOutcome{Kind: shopee.OutcomeTransport, Err: errors.New("timeout")},
			http.StatusBadGateway, model.ErrCodeFetchFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockProductRepo()
			h := newTestHandler(repo, &mockFetcher{outcome: tt.outcome})

			w := doAddProduct(t, h, `{"url": "https://shopee.co.id/Sepatu-i.123.456"}`)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var resp apiErrorResponse
			json.Unmarshal(w.Body.Bytes(), &resp)
			if resp.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", resp.Code, tt.wantCode)
			}
			if len(repo.order) != 0 {
				t.Error("フェッチ失敗時に商品が登録されてはならない")
			}
		})
	}
}

func TestAddProduct_DegradedResultStillRegisters(t *testing.T) {
	repo := newMockProductRepo()
	degraded := &model.ProductStatus{
		Name: "ErrorCode-90309999", FetchedAt: time.Now(),
		Degraded: true, ErrorCode: 90309999,
		Variants: []model.VariantStatus{{}},
	}
	h := newTestHandler(repo, &mockFetcher{outcome: shopee.FetchOutcome{
		Kind: shopee.OutcomeDegraded, HTTPStatus: 200, Status: degraded, ErrorCode: 90309999,
	}})

	w := doAddProduct(t, h, `{"url": "https://shopee.co.id/Sepatu-i.123.456"}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}
	var resp productResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.LastStatus == nil || !resp.LastStatus.Degraded {
		t.Errorf("縮退状態が保存されていない: %+v", resp.LastStatus)
	}
}

func withURLParams(r *http.Request, shopID, itemID string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("shopID", shopID)
	rctx.URLParams.Add("itemID", itemID)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func seedProduct(t *testing.T, repo *mockProductRepo, shopID, itemID string) {
	t.Helper()
	_, err := repo.Upsert(context.Background(), &model.TrackedProduct{
		ID: "p-" + itemID, ShopID: shopID, ItemID: itemID,
		SourceURL: "https://shopee.co.id/Produk-i." + shopID + "." + itemID,
		Alias:     "produk-" + itemID,
	})
	if err != nil {
		t.Fatalf("テストデータの登録に失敗: %v", err)
	}
}

func TestListProducts_ReturnsInsertionOrder(t *testing.T) {
	repo := newMockProductRepo()
	seedProduct(t, repo, "3", "30")
	seedProduct(t, repo, "1", "10")
	h := newTestHandler(repo, &mockFetcher{})

	req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	w := httptest.NewRecorder()
	h.ListProducts(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp []productResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v", err)
	}
	if len(resp) != 2 {
		t.Fatalf("len(resp) = %d, want 2", len(resp))
	}
	if resp[0].ShopID != "3" || resp[1].ShopID != "1" {
		t.Errorf("登録順になっていない: %s, %s", resp[0].ShopID, resp[1].ShopID)
	}
}

func TestGetProduct_NotFoundReturns404(t *testing.T) {
	repo := newMockProductRepo()
	h := newTestHandler(repo, &mockFetcher{})

	req := withURLParams(httptest.NewRequest(http.MethodGet, "/api/products/9/9", nil), "9", "9")
	w := httptest.NewRecorder()
	h.GetProduct(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	var resp apiErrorResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Code != model.ErrCodeProductNotFound {
		t.Errorf("code = %q, want %q", resp.Code, model.ErrCodeProductNotFound)
	}
}

func TestGetProduct_ReturnsProduct(t *testing.T) {
	repo := newMockProductRepo()
	seedProduct(t, repo, "1", "10")
	h := newTestHandler(repo, &mockFetcher{})

	req := withURLParams(httptest.NewRequest(http.MethodGet, "/api/products/1/10", nil), "1", "10")
	w := httptest.NewRecorder()
	h.GetProduct(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp productResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.ItemID != "10" {
		t.Errorf("item_id = %q, want %q", resp.ItemID, "10")
	}
}

func TestUpdateAlias_UpdatesProduct(t *testing.T) {
	repo := newMockProductRepo()
	seedProduct(t, repo, "1", "10")
	h := newTestHandler(repo, &mockFetcher{})

	req := withURLParams(httptest.NewRequest(http.MethodPatch, "/api/products/1/10",
		bytes.NewBufferString(`{"alias": "nama-baru"}`)), "1", "10")
	w := httptest.NewRecorder()
	h.UpdateAlias(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	var resp productResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Alias != "nama-baru" {
		t.Errorf("alias = %q, want %q", resp.Alias, "nama-baru")
	}
}

func TestUpdateAlias_EmptyAliasIsRejected(t *testing.T) {
	repo := newMockProductRepo()
	seedProduct(t, repo, "1", "10")
	h := newTestHandler(repo, &mockFetcher{})

	req := withURLParams(httptest.NewRequest(http.MethodPatch, "/api/products/1/10",
		bytes.NewBufferString(`{"alias": ""}`)), "1", "10")
	w := httptest.NewRecorder()
	h.UpdateAlias(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestUpdateAlias_NotFoundReturns404(t *testing.T) {
	repo := newMockProductRepo()
	h := newTestHandler(repo, &mockFetcher{})

	req := withURLParams(httptest.NewRequest(http.MethodPatch, "/api/products/9/9",
		bytes.NewBufferString(`{"alias": "x"}`)), "9", "9")
	w := httptest.NewRecorder()
	h.UpdateAlias(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestRemoveProduct_RemovesAndReturns204(t *testing.T) {
	repo := newMockProductRepo()
	seedProduct(t, repo, "1", "10")
	h := newTestHandler(repo, &mockFetcher{})

	req := withURLParams(httptest.NewRequest(http.MethodDelete, "/api/products/1/10", nil), "1", "10")
	w := httptest.NewRecorder()
	h.RemoveProduct(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if len(repo.order) != 0 {
		t.Error("商品が削除されていない")
	}
}

func TestRemoveProduct_NotFoundReturns404(t *testing.T) {
	repo := newMockProductRepo()
	seedProduct(t, repo, "1", "10")
	h := newTestHandler(repo, &mockFetcher{})

	req := withURLParams(httptest.NewRequest(http.MethodDelete, "/api/products/9/9", nil), "9", "9")
	w := httptest.NewRecorder()
	h.RemoveProduct(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	// 既存の商品には影響しない
	if len(repo.order) != 1 {
		t.Errorf("len(products) = %d, want 1", len(repo.order))
	}
}

func TestRepositoryError_Returns500(t *testing.T) {
	repo := newMockProductRepo()
	repo.err = errors.New("db down")
	h := newTestHandler(repo, &mockFetcher{})

	req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	w := httptest.NewRecorder()
	h.ListProducts(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	var resp apiErrorResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Code != "INTERNAL_ERROR" {
		t.Errorf("code = %q, want INTERNAL_ERROR", resp.Code)
	}
}
