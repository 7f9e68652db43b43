package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const defaultTelegramAPIBase = "https://api.telegram.org"

// TelegramNotifier はTelegram Bot API経由で通知を送信する。
type TelegramNotifier struct {
	httpClient *http.Client
	logger     *slog.Logger
	apiBase    string
	botToken   string
	chatID     string
}

// NewTelegramNotifier はTelegramNotifierを生成する。
func NewTelegramNotifier(botToken, chatID string, logger *slog.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		apiBase:    defaultTelegramAPIBase,
		botToken:   botToken,
		chatID:     chatID,
	}
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Notify はイベントをHTML形式のメッセージとして送信する。
func (n *TelegramNotifier) Notify(ctx context.Context, event Event) error {
	payload, err := json.Marshal(sendMessageRequest{
		ChatID:                n.chatID,
		Text:                  FormatMessage(event),
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("通知メッセージのエンコードに失敗しました: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("通知リクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("通知の送信に失敗しました: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return fmt.Errorf("通知レスポンスの読み取りに失敗しました: %w", err)
	}

	var result sendMessageResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("通知レスポンスのデコードに失敗しました (status=%d): %w", resp.StatusCode, err)
	}
	if !result.OK {
		return fmt.Errorf("通知APIがエラーを返しました (status=%d): %s", resp.StatusCode, result.Description)
	}

	n.logger.Debug("通知を送信しました",
		slog.String("shop_id", event.Product.ShopID),
		slog.String("item_id", event.Product.ItemID),
		slog.String("transition", string(event.Transition)),
	)
	return nil
}
