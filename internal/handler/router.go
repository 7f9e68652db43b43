package handler

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/restockd/internal/metrics"
	"github.com/hitoshi/restockd/internal/middleware"
	"github.com/hitoshi/restockd/internal/repository"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger      *slog.Logger
	RateLimiter *middleware.RateLimiter

	ProductRepo repository.ProductRepository
	Fetcher     ProductFetcherInterface
	Validator   URLValidator

	// DB はヘルスチェックでの死活確認に使う。nilの場合は確認しない。
	DB *sql.DB

	// Gatherer は/metricsで公開するレジストリ。nilの場合は公開しない。
	Gatherer prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RecoveryMiddleware → LoggingMiddleware → RateLimitMiddleware(GeneralMiddleware)
//
// /healthzと/metricsはレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	productHandler := NewProductHandler(deps.ProductRepo, deps.Fetcher, deps.Validator)

	// --- 運用エンドポイント（レート制限の外） ---

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if deps.DB != nil {
			if err := deps.DB.PingContext(req.Context()); err != nil {
				http.Error(w, "database unreachable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- 商品管理API ---

	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/api/products", func(r chi.Router) {
			// POST /api/products - 商品登録（登録専用レート制限を追加）
			r.With(deps.RateLimiter.AddMiddleware()).Post("/", productHandler.AddProduct)

			r.Get("/", productHandler.ListProducts)

			r.Route("/{shopID}/{itemID}", func(r chi.Router) {
				r.Get("/", productHandler.GetProduct)
				r.Patch("/", productHandler.UpdateAlias)
				r.Delete("/", productHandler.RemoveProduct)
			})
		})
	})

	return r
}
