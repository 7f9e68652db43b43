// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, product, upstream, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidURL      = "INVALID_URL"
	ErrCodeInvalidRequest  = "INVALID_REQUEST"
	ErrCodeProductNotFound = "PRODUCT_NOT_FOUND"
	ErrCodeFetchFailed     = "FETCH_FAILED"
	ErrCodeAuthFailed      = "AUTH_FAILED"
	ErrCodeUpstreamError   = "UPSTREAM_ERROR"
)

// NewInvalidURLError は無効な商品URLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効な商品URLです: %s", reason),
		Category: "validation",
		Action:   "https://shopee.co.id/商品名-i.<shop_id>.<item_id> 形式のURLを入力してください。",
	}
}

// NewProductNotFoundError は商品未登録エラーを生成する。
func NewProductNotFoundError(shopID, itemID string) *APIError {
	return &APIError{
		Code:     ErrCodeProductNotFound,
		Message:  fmt.Sprintf("指定された商品が見つかりません: shop=%s item=%s", shopID, itemID),
		Category: "product",
		Action:   "商品一覧でshop_idとitem_idを確認してください。",
	}
}

// NewFetchFailedError は商品情報の取得失敗エラーを生成する。
func NewFetchFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeFetchFailed,
		Message:  fmt.Sprintf("商品情報の取得に失敗しました: %s", reason),
		Category: "upstream",
		Action:   "URLが正しいか確認し、しばらく待ってから再度お試しください。",
	}
}

// NewAuthFailedError は上流API認証失敗エラーを生成する。
func NewAuthFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthFailed,
		Message:  "上流APIへのアクセスが拒否されました（403）。",
		Category: "upstream",
		Action:   "curl.txtのセッション情報を更新してください。",
	}
}

// NewUpstreamError は上流APIの異常レスポンスエラーを生成する。
func NewUpstreamError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamError,
		Message:  fmt.Sprintf("上流APIが異常なレスポンスを返しました: %s", reason),
		Category: "upstream",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
