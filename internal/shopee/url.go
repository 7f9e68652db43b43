package shopee

import (
	"fmt"
	"strings"
)

// ParseListingURL はマーケットプレイスの商品ページURLから (shopID, itemID) を抽出する。
// URLは "…-i.<shop_id>.<item_id>" 形式（先頭商品の場合は "i.<shop_id>.<item_id>"）を
// 想定し、クエリ文字列は無視する。
// 形式に合致しない場合はエラーを返す。
func ParseListingURL(rawURL string) (shopID, itemID string, err error) {
	var idsPart string

	// "-i." を優先し、なければ "i." で分割する
	if idx := strings.Index(rawURL, "-i."); idx >= 0 {
		idsPart = rawURL[idx+len("-i."):]
	} else if idx := strings.Index(rawURL, "i."); idx >= 0 {
		idsPart = rawURL[idx+len("i."):]
	} else {
		return "", "", fmt.Errorf("URLに商品識別子がありません (i.<shop_id>.<item_id> 形式): %s", rawURL)
	}

	// クエリ文字列・フラグメントを除去
	if idx := strings.IndexAny(idsPart, "?#"); idx >= 0 {
		idsPart = idsPart[:idx]
	}

	ids := strings.Split(idsPart, ".")
	if len(ids) < 2 {
		return "", "", fmt.Errorf("shop_idとitem_idの抽出に失敗しました: %s", rawURL)
	}

	shopID, itemID = ids[0], ids[1]
	if !isDigits(shopID) || !isDigits(itemID) {
		return "", "", fmt.Errorf("shop_idとitem_idは数値である必要があります: shop=%q item=%q", shopID, itemID)
	}

	return shopID, itemID, nil
}

// isDigits は文字列が1文字以上の数字のみで構成されるかを返す。
func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
