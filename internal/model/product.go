// Package model はドメインモデルを定義する。
package model

import "time"

// TrackedProduct は監視対象のマーケットプレイス商品を表す。
// (ShopID, ItemID) の組が一意キーであり、同一キーの再登録は上書き更新となる。
type TrackedProduct struct {
	ID        string
	ShopID    string
	ItemID    string
	SourceURL string
	// Alias は通知や一覧表示に使う表示名。未指定の場合は取得した商品名を使う。
	Alias      string
	LastStatus *ProductStatus // 初回フェッチ成功まではnil
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ProductStatus は1回のフェッチで正規化された商品状態のスナップショット。
type ProductStatus struct {
	Name string `json:"name"`
	// Stock は全バリアントの在庫合計（購入可能な総数）。
	Stock int `json:"stock"`
	// Price は表示価格（先頭バリアントの価格、通貨最小単位換算済み）。
	Price int `json:"price"`
	// Available は Stock > 0 と常に一致する。
	Available bool      `json:"available"`
	FetchedAt time.Time `json:"fetched_at"`
	// Variants は正規化後に必ず1件以上となる。
	// バリアント情報がない商品は商品レベルの値から暗黙の1バリアントを合成する。
	Variants []VariantStatus `json:"variants"`
	// Degraded は上流APIがデータの代わりにアプリケーションエラーコードを
	// 返した場合にtrueとなる。商品は監視対象に残したまま異常を示す。
	Degraded bool `json:"degraded,omitempty"`
	// ErrorCode はDegradedがtrueの場合の上流エラーコード。
	ErrorCode int `json:"error_code,omitempty"`
}

// VariantStatus は商品バリアント（サイズ/色などの購入単位）の状態を表す。
type VariantStatus struct {
	// Label はバリアント名。暗黙の単一バリアントの場合は空文字列。
	Label     string `json:"label"`
	Stock     int    `json:"stock"`
	Price     int    `json:"price"`
	Available bool   `json:"available"`
}

// Transition は前回状態と今回状態の比較結果の分類を表す。
type Transition string

const (
	// TransitionFirstSeen は前回状態が存在しない初回観測。
	TransitionFirstSeen Transition = "first_seen"
	// TransitionBecameAvailable は在庫切れから購入可能への遷移（restock）。
	TransitionBecameAvailable Transition = "became_available"
	// TransitionBecameUnavailable は購入可能から在庫切れへの遷移。
	TransitionBecameUnavailable Transition = "became_unavailable"
	// TransitionPriceChanged は可用性は同一だが価格のみ変化した遷移。
	TransitionPriceChanged Transition = "price_changed"
	// TransitionUnchanged は通知対象の変化がない遷移。
	TransitionUnchanged Transition = "unchanged"
)

// Notifiable はこの遷移が通知対象かどうかを返す。
// 初回観測・再入荷・価格変化が通知対象。在庫切れへの遷移と無変化は
// ストア更新のみで通知しない。
func (t Transition) Notifiable() bool {
	switch t {
	case TransitionFirstSeen, TransitionBecameAvailable, TransitionPriceChanged:
		return true
	default:
		return false
	}
}
