package shopee

import (
	"github.com/hitoshi/restockd/internal/model"
)

// OutcomeKind は商品フェッチ結果の分類。
// 呼び出し元は例外的な失敗を含むすべてのケースをこの分類で判別する。
type OutcomeKind int

const (
	// OutcomeOK はフェッチと正規化の成功。
	OutcomeOK OutcomeKind = iota
	// OutcomeNotFound は商品が存在しない（404）。
	OutcomeNotFound
	// OutcomeForbidden は上流APIによるアクセス拒否（403）。
	// 資格情報の失効を示すシグナルであり、監視対象からの削除理由にはしない。
	OutcomeForbidden
	// OutcomeMalformed はレスポンスボディが期待する構造でない。
	OutcomeMalformed
	// OutcomeDegraded は成功エンベロープ内に上流のアプリケーションエラーコードが
	// 含まれていた縮退結果。商品は追跡し続けつつ異常として扱う。
	OutcomeDegraded
	// OutcomeTransport はネットワーク障害・タイムアウト・403/404以外の非200。
	OutcomeTransport
)

// String はログ・メトリクスラベル用の分類名を返す。
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeForbidden:
		return "forbidden"
	case OutcomeMalformed:
		return "malformed_response"
	case OutcomeDegraded:
		return "degraded_result"
	case OutcomeTransport:
		return "transport_error"
	default:
		return "unknown"
	}
}

// FetchOutcome は1回の商品フェッチの結果。
// Kindに応じて有効なフィールドが決まるタグ付きバリアント。
// 失敗が成功へ暗黙に変換されることはない。
type FetchOutcome struct {
	Kind OutcomeKind
	// Status はOutcomeOKとOutcomeDegradedで非nil。
	Status *model.ProductStatus
	// HTTPStatus は上流のHTTPステータスコード（レスポンスを受信した場合のみ）。
	HTTPStatus int
	// ErrorCode はOutcomeDegradedの上流エラーコード。
	ErrorCode int
	// Snippet はOutcomeMalformedのレスポンス先頭断片（上限つき、全文は保持しない）。
	Snippet string
	// Err はOutcomeTransportの原因エラー。
	Err error
}

func okOutcome(status *model.ProductStatus, httpStatus int) FetchOutcome {
	return FetchOutcome{Kind: OutcomeOK, Status: status, HTTPStatus: httpStatus}
}

func notFoundOutcome(httpStatus int) FetchOutcome {
	return FetchOutcome{Kind: OutcomeNotFound, HTTPStatus: httpStatus}
}

func forbiddenOutcome(httpStatus int) FetchOutcome {
	return FetchOutcome{Kind: OutcomeForbidden, HTTPStatus: httpStatus}
}

func malformedOutcome(snippet string, httpStatus int) FetchOutcome {
	return FetchOutcome{Kind: OutcomeMalformed, Snippet: snippet, HTTPStatus: httpStatus}
}

func degradedOutcome(status *model.ProductStatus, errorCode, httpStatus int) FetchOutcome {
	return FetchOutcome{Kind: OutcomeDegraded, Status: status, ErrorCode: errorCode, HTTPStatus: httpStatus}
}

func transportOutcome(err error, httpStatus int) FetchOutcome {
	return FetchOutcome{Kind: OutcomeTransport, Err: err, HTTPStatus: httpStatus}
}
