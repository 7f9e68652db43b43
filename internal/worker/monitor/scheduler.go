package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/restockd/internal/model"
	"github.com/hitoshi/restockd/internal/repository"
)

// ProductChecker は1商品チェックの実行インターフェース。
type ProductChecker interface {
	Check(ctx context.Context, product *model.TrackedProduct) error
}

// Scheduler は商品チェックのスケジューリングと並列制御を行う。
// 固定間隔のティッカーで全監視対象商品を取得し、
// semaphoreパターンで最大並列数を制御しながらチェックを実行する。
type Scheduler struct {
	productRepo    repository.ProductRepository
	checker        ProductChecker
	logger         *slog.Logger
	maxConcurrency int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値4を使用する。
func NewScheduler(
	productRepo repository.ProductRepository,
	checker ProductChecker,
	logger *slog.Logger,
	maxConcurrency int,
) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	return &Scheduler{
		productRepo:    productRepo,
		checker:        checker,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// Start は固定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("監視スケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("チェックサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("監視スケジューラを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("チェックサイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は全監視対象商品を1回取得し、並列でチェックを実行する。
// semaphoreパターンで最大並列数を制御する。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	products, err := s.productRepo.List(ctx)
	if err != nil {
		return err
	}

	if len(products) == 0 {
		s.logger.Info("監視対象の商品はありません")
		return nil
	}

	s.logger.Info("チェックサイクルを開始します",
		slog.Int("product_count", len(products)),
	)

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, product := range products {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(p *model.TrackedProduct) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			if err := s.checker.Check(ctx, p); err != nil {
				s.logger.Error("商品チェックに失敗しました",
					slog.String("shop_id", p.ShopID),
					slog.String("item_id", p.ItemID),
					slog.String("error", err.Error()),
				)
			}
		}(product)
	}

	wg.Wait()

	duration := time.Since(start)
	s.logger.Info("チェックサイクルが完了しました",
		slog.Int("product_count", len(products)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
