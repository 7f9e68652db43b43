// Package notify は在庫変化イベントの通知を行う。
package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/hitoshi/restockd/internal/model"
)

// Event は通知対象となった状態変化を表す。
type Event struct {
	Product    *model.TrackedProduct
	Transition model.Transition
	Previous   *model.ProductStatus
	Current    *model.ProductStatus
}

// Notifier は状態変化イベントの通知インターフェース。
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// FormatMessage はイベントをTelegram HTML形式のメッセージに整形する。
func FormatMessage(event Event) string {
	name := event.Product.Alias
	if name == "" && event.Current != nil {
		name = event.Current.Name
	}
	if name == "" {
		name = event.Product.ShopID + "." + event.Product.ItemID
	}

	var b strings.Builder
	switch event.Transition {
	case model.TransitionFirstSeen:
		b.WriteString("👀 監視開始: ")
	case model.TransitionBecameAvailable:
		b.WriteString("🔔 再入荷: ")
	case model.TransitionPriceChanged:
		b.WriteString("💰 価格変動: ")
	default:
		b.WriteString("ℹ️ 更新: ")
	}
	b.WriteString("<b>")
	b.WriteString(html.EscapeString(name))
	b.WriteString("</b>\n")

	if event.Current != nil {
		if event.Current.Available {
			fmt.Fprintf(&b, "在庫: %d\n", event.Current.Stock)
		} else {
			b.WriteString("在庫: なし\n")
		}
		fmt.Fprintf(&b, "価格: %d", event.Current.Price)
		if event.Transition == model.TransitionPriceChanged && event.Previous != nil {
			fmt.Fprintf(&b, " (前回: %d)", event.Previous.Price)
		}
		b.WriteString("\n")
	}

	if event.Product.SourceURL != "" {
		b.WriteString(html.EscapeString(event.Product.SourceURL))
	}

	return strings.TrimRight(b.String(), "\n")
}
