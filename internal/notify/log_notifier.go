package notify

import (
	"context"
	"log/slog"

	"github.com/hitoshi/restockd/internal/model"
)

// LogNotifier は通知をログに出力するだけの実装。
// Telegramの認証情報が未設定の環境で使用する。
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier はLogNotifierを生成する。
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify はイベント内容をログに記録する。常に成功する。
func (n *LogNotifier) Notify(ctx context.Context, event Event) error {
	attrs := []any{
		slog.String("shop_id", event.Product.ShopID),
		slog.String("item_id", event.Product.ItemID),
		slog.String("transition", string(event.Transition)),
	}
	if event.Current != nil {
		attrs = append(attrs,
			slog.Int("stock", event.Current.Stock),
			slog.Int("price", event.Current.Price),
			slog.Bool("available", event.Current.Available),
		)
	}
	if event.Transition == model.TransitionPriceChanged && event.Previous != nil {
		attrs = append(attrs, slog.Int("previous_price", event.Previous.Price))
	}

	n.logger.Info("状態変化を検知しました", attrs...)
	return nil
}
