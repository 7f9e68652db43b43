// Package credential は上流APIへのアクセスに必要なセッション資格情報の読み込みを提供する。
// 資格情報はオペレーターがブラウザからエクスポートしたcurlコマンド形式のファイルで
// 管理され、外部でいつでも差し替えられる。
package credential

import (
	"os"
	"regexp"
	"strings"
)

// Bundle は上流APIリクエストに付与するヘッダーとクッキーの組。
type Bundle struct {
	Headers map[string]string
	Cookies map[string]string
}

// Empty はヘッダーもクッキーも存在しないかどうかを返す。
func (b Bundle) Empty() bool {
	return len(b.Headers) == 0 && len(b.Cookies) == 0
}

// Provider は現在の資格情報の取得インターフェース。
type Provider interface {
	// Current は最新の資格情報スナップショットを返す。
	// 呼び出しごとにソースを読み直し、結果をキャッシュしない。
	// ソースが存在しない・解析できない場合は空のBundleを返す（エラーにしない）。
	Current() Bundle
}

// ヘッダー宣言: -H 'Key: value' または --header 'Key: value'
var headerPattern = regexp.MustCompile(`(?:-H|--header)\s+'([^:']+):\s*([^']*)'`)

// クッキー宣言: -b '...' または --cookie '...'
var cookiePattern = regexp.MustCompile(`(?:-b|--cookie)\s+'([^']*)'`)

// FileProvider はcurlエクスポートファイルから資格情報を読み込むProvider実装。
// ファイルにクッキーが含まれない場合は環境変数（"a=1; b=2" 形式）にフォールバックする。
type FileProvider struct {
	curlFile     string
	cookieEnvVar string
}

// NewFileProvider はFileProviderを生成する。
func NewFileProvider(curlFile, cookieEnvVar string) *FileProvider {
	return &FileProvider{
		curlFile:     curlFile,
		cookieEnvVar: cookieEnvVar,
	}
}

// Current は最新の資格情報スナップショットを返す。
func (p *FileProvider) Current() Bundle {
	bundle := Bundle{
		Headers: make(map[string]string),
		Cookies: make(map[string]string),
	}

	data, err := os.ReadFile(p.curlFile)
	if err == nil {
		parseCurlText(string(data), &bundle)
	}

	// ファイルからクッキーが得られなかった場合は環境変数にフォールバック
	if len(bundle.Cookies) == 0 && p.cookieEnvVar != "" {
		parseCookieString(os.Getenv(p.cookieEnvVar), bundle.Cookies)
	}

	return bundle
}

// parseCurlText はcurlコマンド形式のテキストからヘッダーとクッキーを抽出する。
// "cookie" ヘッダーはヘッダーマップではなくクッキーマップに展開する。
func parseCurlText(text string, bundle *Bundle) {
	for _, m := range headerPattern.FindAllStringSubmatch(text, -1) {
		key := strings.TrimSpace(m[1])
		val := strings.TrimSpace(m[2])
		if strings.EqualFold(key, "cookie") {
			parseCookieString(val, bundle.Cookies)
		} else {
			bundle.Headers[key] = val
		}
	}

	for _, m := range cookiePattern.FindAllStringSubmatch(text, -1) {
		parseCookieString(m[1], bundle.Cookies)
	}
}

// parseCookieString は "a=1; b=2" 形式のクッキー文字列をマップに展開する。
// "=" を含まない断片は無視する。
func parseCookieString(raw string, cookies map[string]string) {
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, found := strings.Cut(part, "=")
		if !found {
			continue
		}
		cookies[strings.TrimSpace(k)] = v
	}
}
