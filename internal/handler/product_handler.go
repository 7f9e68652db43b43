// Package handler はHTTP APIのハンドラーとルーティングを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/restockd/internal/model"
	"github.com/hitoshi/restockd/internal/repository"
	"github.com/hitoshi/restockd/internal/shopee"
)

// ProductFetcherInterface は商品登録時の即時フェッチに使うインターフェース。
type ProductFetcherInterface interface {
	Fetch(ctx context.Context, shopID, itemID string) shopee.FetchOutcome
}

// URLValidator は登録URLの事前検証インターフェース。
// 内部ネットワーク宛てのURLを拒否する。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// ProductHandler は監視対象商品管理のHTTPハンドラー。
type ProductHandler struct {
	productRepo repository.ProductRepository
	fetcher     ProductFetcherInterface
	validator   URLValidator
}

// NewProductHandler はProductHandlerを生成する。
func NewProductHandler(
	productRepo repository.ProductRepository,
	fetcher ProductFetcherInterface,
	validator URLValidator,
) *ProductHandler {
	return &ProductHandler{
		productRepo: productRepo,
		fetcher:     fetcher,
		validator:   validator,
	}
}

// addProductRequest は商品登録リクエストのボディ。
type addProductRequest struct {
	URL   string `json:"url"`
	Alias string `json:"alias"`
}

// updateAliasRequest は表示名更新リクエストのボディ。
type updateAliasRequest struct {
	Alias string `json:"alias"`
}

// variantResponse はバリアント状態のAPIレスポンス。
type variantResponse struct {
	Label     string `json:"label"`
	Stock     int    `json:"stock"`
	Price     int    `json:"price"`
	Available bool   `json:"available"`
}

// statusResponse は商品状態のAPIレスポンス。
type statusResponse struct {
	Name      string            `json:"name"`
	Stock     int               `json:"stock"`
	Price     int               `json:"price"`
	Available bool              `json:"available"`
	FetchedAt time.Time         `json:"fetched_at"`
	Variants  []variantResponse `json:"variants"`
	Degraded  bool              `json:"degraded,omitempty"`
	ErrorCode int               `json:"error_code,omitempty"`
}

// productResponse は監視対象商品のAPIレスポンス。
type productResponse struct {
	ID         string          `json:"id"`
	ShopID     string          `json:"shop_id"`
	ItemID     string          `json:"item_id"`
	SourceURL  string          `json:"source_url"`
	Alias      string          `json:"alias"`
	LastStatus *statusResponse `json:"last_status"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// AddProduct は商品URLから監視対象を登録する。
// 登録時に1回即時フェッチを行い、初回状態を保存する。
// POST /api/products
func (h *ProductHandler) AddProduct(w http.ResponseWriter, r *http.Request) {
	var req addProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     model.ErrCodeInvalidRequest,
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	if req.URL == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidURLError("URLが空です"))
		return
	}

	if err := h.validator.ValidateURL(req.URL); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidURLError(err.Error()))
		return
	}

	shopID, itemID, err := shopee.ParseListingURL(req.URL)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidURLError(err.Error()))
		return
	}

	outcome := h.fetcher.Fetch(r.Context(), shopID, itemID)
	switch outcome.Kind {
	case shopee.OutcomeOK, shopee.OutcomeDegraded:
		// 続行。縮退結果でも商品は登録し監視対象に含める。
	case shopee.OutcomeNotFound:
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewFetchFailedError("商品が存在しません"))
		return
	case shopee.OutcomeForbidden:
		writeAPIErrorResponse(w, http.StatusBadGateway, model.NewAuthFailedError())
		return
	case shopee.OutcomeMalformed:
		writeAPIErrorResponse(w, http.StatusBadGateway, model.NewUpstreamError("レスポンスを解析できません"))
		return
	default:
		reason := "通信に失敗しました"
		if outcome.Err != nil {
			reason = outcome.Err.Error()
		}
		writeAPIErrorResponse(w, http.StatusBadGateway, model.NewFetchFailedError(reason))
		return
	}

	alias := req.Alias
	if alias == "" && outcome.Status != nil {
		alias = outcome.Status.Name
	}

	product := &model.TrackedProduct{
		ShopID:     shopID,
		ItemID:     itemID,
		SourceURL:  req.URL,
		Alias:      alias,
		LastStatus: outcome.Status,
	}

	created, err := h.productRepo.Upsert(r.Context(), product)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	statusCode := http.StatusOK
	if created {
		statusCode = http.StatusCreated
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(toProductResponse(product))
}

// ListProducts は監視対象商品の一覧を登録順で返す。
// GET /api/products
func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.productRepo.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]productResponse, len(products))
	for i, p := range products {
		results[i] = toProductResponse(p)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}

// GetProduct は商品詳細を取得する。
// GET /api/products/{shopID}/{itemID}
func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	shopID := chi.URLParam(r, "shopID")
	itemID := chi.URLParam(r, "itemID")

	product, err := h.productRepo.Find(r.Context(), shopID, itemID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if product == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewProductNotFoundError(shopID, itemID))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toProductResponse(product))
}

// UpdateAlias は商品の表示名を更新する。
// PATCH /api/products/{shopID}/{itemID}
func (h *ProductHandler) UpdateAlias(w http.ResponseWriter, r *http.Request) {
	shopID := chi.URLParam(r, "shopID")
	itemID := chi.URLParam(r, "itemID")

	var req updateAliasRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     model.ErrCodeInvalidRequest,
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	if req.Alias == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     model.ErrCodeInvalidRequest,
			Message:  "表示名が空です。",
			Category: "validation",
			Action:   "aliasフィールドに表示名を指定してください。",
		})
		return
	}

	updated, err := h.productRepo.UpdateAlias(r.Context(), shopID, itemID, req.Alias)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if !updated {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewProductNotFoundError(shopID, itemID))
		return
	}

	product, err := h.productRepo.Find(r.Context(), shopID, itemID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if product == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewProductNotFoundError(shopID, itemID))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toProductResponse(product))
}

// RemoveProduct は商品を監視対象から削除する。
// DELETE /api/products/{shopID}/{itemID}
func (h *ProductHandler) RemoveProduct(w http.ResponseWriter, r *http.Request) {
	shopID := chi.URLParam(r, "shopID")
	itemID := chi.URLParam(r, "itemID")

	removed, err := h.productRepo.Remove(r.Context(), shopID, itemID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if !removed {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewProductNotFoundError(shopID, itemID))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// toProductResponse はドメインモデルをAPIレスポンスに変換する。
func toProductResponse(product *model.TrackedProduct) productResponse {
	resp := productResponse{
		ID:        product.ID,
		ShopID:    product.ShopID,
		ItemID:    product.ItemID,
		SourceURL: product.SourceURL,
		Alias:     product.Alias,
		CreatedAt: product.CreatedAt,
		UpdatedAt: product.UpdatedAt,
	}

	if product.LastStatus != nil {
		s := product.LastStatus
		variants := make([]variantResponse, len(s.Variants))
		for i, v := range s.Variants {
			variants[i] = variantResponse{
				Label:     v.Label,
				Stock:     v.Stock,
				Price:     v.Price,
				Available: v.Available,
			}
		}
		resp.LastStatus = &statusResponse{
			Name:      s.Name,
			Stock:     s.Stock,
			Price:     s.Price,
			Available: s.Available,
			FetchedAt: s.FetchedAt,
			Variants:  variants,
			Degraded:  s.Degraded,
			ErrorCode: s.ErrorCode,
		}
	}

	return resp
}

// writeAPIErrorResponse は統一エラーフォーマットでレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError は下位層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidURL, model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeProductNotFound:
		return http.StatusNotFound
	case model.ErrCodeFetchFailed, model.ErrCodeAuthFailed, model.ErrCodeUpstreamError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
