// Package security はアプリケーションのセキュリティ機能を提供する。
//
// NameSanitizerService は上流APIから取得した商品名・バリアント名から
// マークアップを除去する。商品名は通知メッセージ（HTMLパースモード）や
// APIレスポンスにそのまま埋め込まれるため、上流データにタグが混入しても
// 注入が成立しないようにプレーンテキスト化する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// NameSanitizerService は商品名のサニタイズ機能のインターフェースを定義する。
// フェッチ結果の正規化時に使用される。
type NameSanitizerService interface {
	// Sanitize は入力からすべてのHTMLタグを除去したプレーンテキストを返す。
	// エンティティ参照はデコードし、前後の空白は取り除く。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// nameSanitizer はNameSanitizerServiceの実装。
// bluemondayのStrictPolicy（全タグ除去）を保持し、スレッドセーフに動作する。
type nameSanitizer struct {
	policy *bluemonday.Policy
}

// NewNameSanitizer はNameSanitizerServiceの新しいインスタンスを生成する。
func NewNameSanitizer() *nameSanitizer {
	return &nameSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は入力からすべてのHTMLタグを除去したプレーンテキストを返す。
func (s *nameSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	// StrictPolicyはテキストをエスケープ済みで返すため、
	// プレーンテキストとして扱えるようエンティティをデコードする。
	cleaned := s.policy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(cleaned))
}
