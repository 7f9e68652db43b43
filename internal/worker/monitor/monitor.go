package monitor

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/restockd/internal/metrics"
	"github.com/hitoshi/restockd/internal/model"
	"github.com/hitoshi/restockd/internal/notify"
	"github.com/hitoshi/restockd/internal/repository"
	"github.com/hitoshi/restockd/internal/shopee"
)

// ProductFetcher は商品状態取得の実行インターフェース。
type ProductFetcher interface {
	// Fetch は指定商品の現在状態を取得しFetchOutcomeに分類して返す。
	Fetch(ctx context.Context, shopID, itemID string) shopee.FetchOutcome
}

// Monitor は1商品単位のチェック処理を行う。
// フェッチ結果を分類し、状態を永続化し、通知対象の遷移で通知を送信する。
type Monitor struct {
	productRepo repository.ProductRepository
	fetcher     ProductFetcher
	notifier    notify.Notifier
	metrics     metrics.MetricsCollector
	limiter     *rate.Limiter
	logger      *slog.Logger
}

// NewMonitor はMonitorの新しいインスタンスを生成する。
// limiterは全商品チェックで共有する上流向けレートリミッタ。nilの場合は制限しない。
func NewMonitor(
	productRepo repository.ProductRepository,
	fetcher ProductFetcher,
	notifier notify.Notifier,
	collector metrics.MetricsCollector,
	limiter *rate.Limiter,
	logger *slog.Logger,
) *Monitor {
	return &Monitor{
		productRepo: productRepo,
		fetcher:     fetcher,
		notifier:    notifier,
		metrics:     collector,
		limiter:     limiter,
		logger:      logger,
	}
}

// Check は1商品のフェッチ・遷移分類・永続化・通知を実行する。
// 失敗分類（403/404/不正レスポンス/通信障害）では状態を更新せず、
// 商品を監視対象から外すこともしない。
func (m *Monitor) Check(ctx context.Context, product *model.TrackedProduct) error {
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	start := time.Now()
	outcome := m.fetcher.Fetch(ctx, product.ShopID, product.ItemID)
	m.metrics.RecordFetchLatency(time.Since(start))
	m.metrics.RecordFetchOutcome(outcome.Kind.String())
	if outcome.HTTPStatus != 0 {
		m.metrics.RecordUpstreamStatus(outcome.HTTPStatus)
	}

	attrs := []any{
		slog.String("shop_id", product.ShopID),
		slog.String("item_id", product.ItemID),
		slog.String("outcome", outcome.Kind.String()),
	}

	switch outcome.Kind {
	case shopee.OutcomeOK, shopee.OutcomeDegraded:
		return m.applyStatus(ctx, product, outcome, attrs)

	case shopee.OutcomeForbidden:
		// 資格情報の失効シグナル。curl.txtの更新が必要。
		m.logger.Warn("上流APIにアクセスを拒否されました。資格情報の更新が必要です", attrs...)
		return nil

	case shopee.OutcomeNotFound:
		m.logger.Warn("商品が見つかりません", attrs...)
		return nil

	case shopee.OutcomeMalformed:
		m.logger.Error("上流レスポンスの解析に失敗しました",
			append(attrs, slog.String("body_snippet", outcome.Snippet))...)
		return nil

	default:
		if outcome.Err != nil {
			attrs = append(attrs, slog.String("error", outcome.Err.Error()))
		}
		if outcome.HTTPStatus != 0 {
			attrs = append(attrs, slog.Int("http_status", outcome.HTTPStatus))
		}
		m.logger.Error("商品フェッチに失敗しました", attrs...)
		return nil
	}
}

// applyStatus は取得した状態の遷移分類・永続化・通知を行う。
func (m *Monitor) applyStatus(ctx context.Context, product *model.TrackedProduct, outcome shopee.FetchOutcome, attrs []any) error {
	prev := product.LastStatus
	curr := outcome.Status

	transition := Classify(prev, curr)
	m.metrics.RecordTransition(string(transition))

	updated, err := m.productRepo.UpdateStatus(ctx, product.ShopID, product.ItemID, curr)
	if err != nil {
		m.logger.Error("商品状態の永続化に失敗しました",
			append(attrs, slog.String("error", err.Error()))...)
		return err
	}
	if !updated {
		// チェック中に削除された場合。通知も行わない。
		m.logger.Info("チェック中に商品が削除されました", attrs...)
		return nil
	}

	attrs = append(attrs,
		slog.String("transition", string(transition)),
		slog.Int("stock", curr.Stock),
		slog.Int("price", curr.Price),
		slog.Bool("available", curr.Available),
	)
	if outcome.Kind == shopee.OutcomeDegraded {
		attrs = append(attrs, slog.Int("upstream_error_code", outcome.ErrorCode))
		m.logger.Warn("上流APIが縮退結果を返しました", attrs...)
	} else {
		m.logger.Info("商品チェックが完了しました", attrs...)
	}

	if !transition.Notifiable() {
		return nil
	}

	event := notify.Event{
		Product:    product,
		Transition: transition,
		Previous:   prev,
		Current:    curr,
	}
	if err := m.notifier.Notify(ctx, event); err != nil {
		m.metrics.RecordNotificationFailure()
		m.logger.Error("通知の送信に失敗しました",
			slog.String("shop_id", product.ShopID),
			slog.String("item_id", product.ItemID),
			slog.String("transition", string(transition)),
			slog.String("error", err.Error()),
		)
		// 通知失敗はチェック自体の失敗にしない。状態は永続化済み。
		return nil
	}
	m.metrics.RecordNotificationSent()

	return nil
}
