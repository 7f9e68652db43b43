// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/restockd/internal/model"
)

// ProductRepository は監視対象商品の永続化インターフェース。
// (shop_id, item_id) の組をストア内の一意キーとして扱う。
// すべての変更操作は即時かつ原子的に永続化される。
type ProductRepository interface {
	// Upsert は商品を登録する。既存キーの場合は複製せず上書き更新する。
	// 戻り値は新規作成されたかどうか。
	Upsert(ctx context.Context, product *model.TrackedProduct) (created bool, err error)

	// Remove は指定キーの商品を削除する。冪等であり、
	// 存在しないキーに対しては副作用なしでfalseを返す。
	Remove(ctx context.Context, shopID, itemID string) (bool, error)

	// Find は指定キーの商品を取得する。見つからない場合はnilを返す。
	Find(ctx context.Context, shopID, itemID string) (*model.TrackedProduct, error)

	// List は全商品を登録順で返す。
	List(ctx context.Context) ([]*model.TrackedProduct, error)

	// UpdateStatus は指定キーの直近状態を原子的に更新する。
	// キーが存在しない場合はfalseを返す。
	UpdateStatus(ctx context.Context, shopID, itemID string, status *model.ProductStatus) (bool, error)

	// UpdateAlias は指定キーの表示名を更新する。
	// キーが存在しない場合はfalseを返す。
	UpdateAlias(ctx context.Context, shopID, itemID, alias string) (bool, error)
}
