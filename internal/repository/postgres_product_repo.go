package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/restockd/internal/model"
)

// PostgresProductRepo はPostgreSQLを使用した商品リポジトリ。
// 状態スナップショットはJSONBカラムに保存し、1行のUPDATEで
// whole-or-nothingの更新を保証する。
type PostgresProductRepo struct {
	db *sql.DB
}

// NewPostgresProductRepo はPostgresProductRepoを生成する。
func NewPostgresProductRepo(db *sql.DB) *PostgresProductRepo {
	return &PostgresProductRepo{db: db}
}

// Upsert は商品を登録する。既存キーの場合は複製せず上書き更新する。
func (r *PostgresProductRepo) Upsert(ctx context.Context, product *model.TrackedProduct) (bool, error) {
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	now := time.Now()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	statusJSON, fetchedAt, err := marshalStatus(product.LastStatus)
	if err != nil {
		return false, err
	}

	// xmax = 0 は新規挿入行でのみ成立するため、作成と更新を判別できる
	var created bool
	err = r.db.QueryRowContext(ctx,
		`INSERT INTO tracked_products
		    (id, shop_id, item_id, source_url, alias, last_status, status_fetched_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (shop_id, item_id) DO UPDATE SET
		    source_url = EXCLUDED.source_url,
		    alias = EXCLUDED.alias,
		    last_status = EXCLUDED.last_status,
		    status_fetched_at = EXCLUDED.status_fetched_at,
		    updated_at = EXCLUDED.updated_at
		 RETURNING (xmax = 0)`,
		product.ID, product.ShopID, product.ItemID, product.SourceURL, product.Alias,
		statusJSON, fetchedAt, product.CreatedAt, product.UpdatedAt,
	).Scan(&created)
	if err != nil {
		return false, fmt.Errorf("商品の登録に失敗しました: %w", err)
	}

	return created, nil
}

// Remove は指定キーの商品を削除する。存在しない場合は副作用なしでfalseを返す。
func (r *PostgresProductRepo) Remove(ctx context.Context, shopID, itemID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM tracked_products WHERE shop_id = $1 AND item_id = $2`,
		shopID, itemID,
	)
	if err != nil {
		return false, fmt.Errorf("商品の削除に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}

	return affected > 0, nil
}

// Find は指定キーの商品を取得する。見つからない場合はnilを返す。
func (r *PostgresProductRepo) Find(ctx context.Context, shopID, itemID string) (*model.TrackedProduct, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, shop_id, item_id, source_url, alias, last_status, created_at, updated_at
		 FROM tracked_products WHERE shop_id = $1 AND item_id = $2`,
		shopID, itemID,
	)

	product, err := scanProduct(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("商品の取得に失敗しました: %w", err)
	}

	return product, nil
}

// List は全商品を登録順で返す。
func (r *PostgresProductRepo) List(ctx context.Context) ([]*model.TrackedProduct, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, shop_id, item_id, source_url, alias, last_status, created_at, updated_at
		 FROM tracked_products ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("商品一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var products []*model.TrackedProduct
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("商品一覧の読み取りに失敗しました: %w", err)
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("商品一覧の走査に失敗しました: %w", err)
	}

	return products, nil
}

// UpdateStatus は指定キーの直近状態を原子的に更新する。
// 1行の単一UPDATE文で実行するため、部分的に書かれた状態は残らない。
func (r *PostgresProductRepo) UpdateStatus(ctx context.Context, shopID, itemID string, status *model.ProductStatus) (bool, error) {
	statusJSON, fetchedAt, err := marshalStatus(status)
	if err != nil {
		return false, err
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE tracked_products SET
		    last_status = $3, status_fetched_at = $4, updated_at = now()
		 WHERE shop_id = $1 AND item_id = $2`,
		shopID, itemID, statusJSON, fetchedAt,
	)
	if err != nil {
		return false, fmt.Errorf("商品状態の更新に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}

	return affected > 0, nil
}

// UpdateAlias は指定キーの表示名を更新する。
func (r *PostgresProductRepo) UpdateAlias(ctx context.Context, shopID, itemID, alias string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE tracked_products SET alias = $3, updated_at = now()
		 WHERE shop_id = $1 AND item_id = $2`,
		shopID, itemID, alias,
	)
	if err != nil {
		return false, fmt.Errorf("表示名の更新に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}

	return affected > 0, nil
}

// rowScanner は*sql.Rowと*sql.Rowsを共通に扱うためのインターフェース。
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanProduct は1行をTrackedProductへ読み取る。
func scanProduct(row rowScanner) (*model.TrackedProduct, error) {
	product := &model.TrackedProduct{}
	var statusJSON []byte

	err := row.Scan(
		&product.ID, &product.ShopID, &product.ItemID,
		&product.SourceURL, &product.Alias, &statusJSON,
		&product.CreatedAt, &product.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(statusJSON) > 0 {
		var status model.ProductStatus
		if err := json.Unmarshal(statusJSON, &status); err != nil {
			return nil, fmt.Errorf("商品状態のデコードに失敗しました: %w", err)
		}
		product.LastStatus = &status
	}

	return product, nil
}

// marshalStatus は状態スナップショットをJSONBカラム用に変換する。
// 状態未取得（nil）の場合はNULLを書き込む。
func marshalStatus(status *model.ProductStatus) ([]byte, sql.NullTime, error) {
	if status == nil {
		return nil, sql.NullTime{}, nil
	}

	data, err := json.Marshal(status)
	if err != nil {
		return nil, sql.NullTime{}, fmt.Errorf("商品状態のエンコードに失敗しました: %w", err)
	}

	return data, sql.NullTime{Time: status.FetchedAt, Valid: true}, nil
}
