// Package shopee はマーケットプレイス商品詳細APIのクライアントと、
// 異種レスポンス形状から正準な商品状態への正規化を提供する。
package shopee

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/restockd/internal/credential"
	"github.com/hitoshi/restockd/internal/model"
)

const (
	// tzOffsetMinutes は商品詳細APIに渡す固定のタイムゾーンオフセット（分）。
	tzOffsetMinutes = 420
	// detailLevel は商品詳細APIに渡す固定の詳細レベルフラグ。
	detailLevel = 0
	// priceDivisor はAPI内部の価格表現を表示通貨単位へ換算する除数。
	priceDivisor = 100000
	// snippetMaxLen は不正レスポンスのログに残す先頭断片の上限バイト数。
	// ログ肥大を防ぐため全文は決して保持しない。
	snippetMaxLen = 300
	// maxBodySize はレスポンスボディの読み取り上限。
	maxBodySize = 2 << 20
)

// NameSanitizer は上流から取得した表示名のサニタイズインターフェース。
type NameSanitizer interface {
	Sanitize(raw string) string
}

// Client は商品詳細APIのクライアント。
// 1商品につき1回のGETリクエストを発行し、レスポンスをFetchOutcomeに分類する。
// リトライは行わない。リトライ方針は呼び出し側（監視ループ）の責務。
type Client struct {
	httpClient *http.Client
	creds      credential.Provider
	sanitizer  NameSanitizer
	logger     *slog.Logger
	baseURL    string
}

// NewClient はClientの新しいインスタンスを生成する。
// httpClientにはタイムアウト設定済みのクライアントを渡すこと。
func NewClient(
	httpClient *http.Client,
	creds credential.Provider,
	sanitizer NameSanitizer,
	logger *slog.Logger,
	baseURL string,
) *Client {
	return &Client{
		httpClient: httpClient,
		creds:      creds,
		sanitizer:  sanitizer,
		logger:     logger,
		baseURL:    baseURL,
	}
}

// pdpEnvelope は商品詳細APIのトップレベルエンベロープ。
// 成功時はdataに本体が入り、上流エラー時はerrorにコードが入る。
type pdpEnvelope struct {
	Error *json.Number    `json:"error"`
	Data  json.RawMessage `json:"data"`
}

// pdpItem は商品本体。レスポンス世代によってdata直下とdata.item下の
// 2形状が存在するため、両方を同じ構造体で受ける。
type pdpItem struct {
	Item      *pdpItem    `json:"item"`
	Title     string      `json:"title"`
	Name      string      `json:"name"`
	Price     json.Number `json:"price"`
	Stock     json.Number `json:"stock"`
	Models    []pdpModel  `json:"models"`
	ModelList []pdpModel  `json:"model_list"`
}

// pdpModel は商品バリアント（tier variation）のエントリ。
type pdpModel struct {
	Name  string      `json:"name"`
	Price json.Number `json:"price"`
	Stock json.Number `json:"stock"`
}

// Fetch は指定商品の現在状態を取得しFetchOutcomeに分類して返す。
// 分類はトランスポート障害 → 403 → 404 → その他非200 → ボディ解析失敗 →
// data欠落（上流エラーコードがあれば縮退）→ 正規化成功 の順で判定する。
func (c *Client) Fetch(ctx context.Context, shopID, itemID string) FetchOutcome {
	reqURL := fmt.Sprintf(
		"%s/api/v4/pdp/get_pc?item_id=%s&shop_id=%s&tz_offset_minutes=%d&detail_level=%d",
		c.baseURL, itemID, shopID, tzOffsetMinutes, detailLevel,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return transportOutcome(fmt.Errorf("リクエスト作成に失敗: %w", err), 0)
	}

	c.applyHeaders(req, shopID, itemID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportOutcome(fmt.Errorf("HTTPリクエスト失敗: %w", err), 0)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden:
		return forbiddenOutcome(resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return notFoundOutcome(resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return transportOutcome(
			fmt.Errorf("上流APIがステータス %d を返しました", resp.StatusCode),
			resp.StatusCode,
		)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return transportOutcome(fmt.Errorf("レスポンス読み取り失敗: %w", err), resp.StatusCode)
	}

	var envelope pdpEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return malformedOutcome(snippet(body), resp.StatusCode)
	}

	// data本体の解析。nullや空オブジェクトはデータなしとして扱う。
	item := decodeItem(envelope.Data)
	if item == nil {
		// dataがなく、上流のアプリケーションエラーコードがある場合は縮退結果。
		// 商品を監視対象から外さずに済むよう、記録可能な状態を合成して返す。
		if code, ok := upstreamErrorCode(envelope.Error); ok {
			return degradedOutcome(degradedStatus(code, time.Now()), code, resp.StatusCode)
		}
		return malformedOutcome(snippet(body), resp.StatusCode)
	}

	return okOutcome(c.normalize(item, time.Now()), resp.StatusCode)
}

// applyHeaders はデフォルトのリクエストプロファイルを設定し、
// 資格情報プロバイダのヘッダーで上書きし、クッキーを付与する。
// 資格情報が空の場合でも最小限のプロファイルでリクエストは成立し、
// 上流が403で拒否することを想定する。
func (c *Client) applyHeaders(req *http.Request, shopID, itemID string) {
	defaults := map[string]string{
		"accept":           "application/json, text/plain, */*",
		"accept-language":  "id-ID,id;q=0.9,en-US;q=0.8,en;q=0.7",
		"user-agent":       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"referer":          fmt.Sprintf("%s/product-i.%s.%s", c.baseURL, shopID, itemID),
		"x-api-source":     "pc",
		"x-requested-with": "XMLHttpRequest",
		"sec-fetch-dest":   "empty",
		"sec-fetch-mode":   "cors",
		"sec-fetch-site":   "same-origin",
	}
	for k, v := range defaults {
		req.Header.Set(k, v)
	}

	bundle := c.creds.Current()
	for k, v := range bundle.Headers {
		req.Header.Set(k, v)
	}
	for k, v := range bundle.Cookies {
		req.AddCookie(&http.Cookie{Name: k, Value: v})
	}
}

// decodeItem はエンベロープのdataフィールドから商品本体を取り出す。
// data直下形状とdata.item形状の両方を受け付ける。
// 本体が判別できない場合はnilを返す。
func decodeItem(data json.RawMessage) *pdpItem {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}

	var item pdpItem
	if err := json.Unmarshal(data, &item); err != nil {
		return nil
	}

	if item.Item != nil {
		item = *item.Item
	}

	// タイトルもバリアントも在庫情報もない本体はデータなしとみなす
	if item.Title == "" && item.Name == "" &&
		len(item.Models) == 0 && len(item.ModelList) == 0 &&
		item.Price == "" && item.Stock == "" {
		return nil
	}

	return &item
}

// normalize は商品本体を正準なProductStatusへ変換する。
// バリアントリスト（models、なければmodel_list）が存在すればそこから、
// 存在しなければ商品レベルの価格・在庫から暗黙の1バリアントを合成する。
// 在庫合計・いずれかのバリアントの可用性・先頭バリアントの表示価格を集約する。
func (c *Client) normalize(item *pdpItem, fetchedAt time.Time) *model.ProductStatus {
	name := item.Title
	if name == "" {
		name = item.Name
	}
	name = c.sanitizer.Sanitize(name)
	if name == "" {
		name = "Unknown"
	}

	models := item.Models
	if len(models) == 0 {
		models = item.ModelList
	}

	var variants []model.VariantStatus
	if len(models) > 0 {
		variants = make([]model.VariantStatus, 0, len(models))
		for _, m := range models {
			stock := safeInt(m.Stock)
			variants = append(variants, model.VariantStatus{
				Label:     c.sanitizer.Sanitize(m.Name),
				Stock:     stock,
				Price:     safeInt(m.Price) / priceDivisor,
				Available: stock > 0,
			})
		}
	} else {
		stock := safeInt(item.Stock)
		variants = []model.VariantStatus{{
			Label:     "",
			Stock:     stock,
			Price:     safeInt(item.Price) / priceDivisor,
			Available: stock > 0,
		}}
	}

	totalStock := 0
	available := false
	for _, v := range variants {
		totalStock += v.Stock
		if v.Available {
			available = true
		}
	}

	return &model.ProductStatus{
		Name:      name,
		Stock:     totalStock,
		Price:     variants[0].Price,
		Available: available,
		FetchedAt: fetchedAt,
		Variants:  variants,
	}
}

// degradedStatus は上流エラーコードを受けた縮退状態を合成する。
// 在庫・価格はゼロ、名前でエラーコードを表示し、Degradedフラグで判別可能にする。
func degradedStatus(code int, fetchedAt time.Time) *model.ProductStatus {
	return &model.ProductStatus{
		Name:      fmt.Sprintf("ErrorCode-%d", code),
		Stock:     0,
		Price:     0,
		Available: false,
		FetchedAt: fetchedAt,
		Variants:  []model.VariantStatus{{}},
		Degraded:  true,
		ErrorCode: code,
	}
}

// upstreamErrorCode はエンベロープのerrorフィールドから非ゼロの
// アプリケーションエラーコードを取り出す。
func upstreamErrorCode(num *json.Number) (int, bool) {
	if num == nil {
		return 0, false
	}
	code, err := num.Int64()
	if err != nil || code == 0 {
		return 0, false
	}
	return int(code), true
}

// safeInt はjson.Numberを非負整数へ変換する。
// 欠落・解析不能・負値は0として扱い、決してエラーにしない。
func safeInt(num json.Number) int {
	if num == "" {
		return 0
	}
	v, err := num.Int64()
	if err != nil {
		// "12.0" のような浮動小数表現も救済する
		f, ferr := num.Float64()
		if ferr != nil {
			return 0
		}
		v = int64(f)
	}
	if v < 0 {
		return 0
	}
	return int(v)
}

// snippet はボディの先頭をsnippetMaxLenに丸めて返す。
func snippet(body []byte) string {
	if len(body) > snippetMaxLen {
		return string(body[:snippetMaxLen])
	}
	return string(body)
}
