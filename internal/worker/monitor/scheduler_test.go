package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/restockd/internal/model"
)

// mockChecker はチェック対象を記録するテスト用実装。
type mockChecker struct {
	mu      sync.Mutex
	checked []string
	err     error
	delay   time.Duration
	active  int
	maxSeen int
}

func (m *mockChecker) Check(ctx context.Context, product *model.TrackedProduct) error {
	m.mu.Lock()
	m.active++
	if m.active > m.maxSeen {
		m.maxSeen = m.active
	}
	m.mu.Unlock()

	if m.delay > 0 {
		time.Sleep(m.delay)
	}

	m.mu.Lock()
	m.active--
	m.checked = append(m.checked, product.ShopID+"."+product.ItemID)
	m.mu.Unlock()

	return m.err
}

func seedProducts(n int) []*model.TrackedProduct {
	products := make([]*model.TrackedProduct, 0, n)
	for i := 0; i < n; i++ {
		products = append(products, &model.TrackedProduct{
			ShopID: "shop",
			ItemID: string(rune('a' + i)),
		})
	}
	return products
}

func TestRunOnce_ChecksAllProducts(t *testing.T) {
	repo := &mockProductRepo{products: seedProducts(5)}
	checker := &mockChecker{}
	s := NewScheduler(repo, checker, testLogger(), 2)

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce returned error: %v", err)
	}

	if len(checker.checked) != 5 {
		t.Errorf("checked = %d products, want 5", len(checker.checked))
	}
}

func TestRunOnce_EmptyStoreIsNoop(t *testing.T) {
	repo := &mockProductRepo{}
	checker := &mockChecker{}
	s := NewScheduler(repo, checker, testLogger(), 2)

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce returned error: %v", err)
	}
	if len(checker.checked) != 0 {
		t.Errorf("空ストアでチェックしてはならない: %d", len(checker.checked))
	}
}

func TestRunOnce_ListErrorIsReturned(t *testing.T) {
	repo := &mockProductRepo{listErr: errors.New("db down")}
	checker := &mockChecker{}
	s := NewScheduler(repo, checker, testLogger(), 2)

	if err := s.RunOnce(context.Background()); err == nil {
		t.Error("一覧取得失敗時はerrorを返すべき")
	}
}

// 1商品のチェック失敗が他の商品のチェックを妨げないことを検証する。
func TestRunOnce_CheckFailureDoesNotStopCycle(t *testing.T) {
	repo := &mockProductRepo{products: seedProducts(3)}
	checker := &mockChecker{err: errors.New("check failed")}
	s := NewScheduler(repo, checker, testLogger(), 2)

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce returned error: %v", err)
	}
	if len(checker.checked) != 3 {
		t.Errorf("checked = %d products, want 3", len(checker.checked))
	}
}

// semaphoreにより並列数が上限を超えないことを検証する。
func TestRunOnce_RespectsMaxConcurrency(t *testing.T) {
	repo := &mockProductRepo{products: seedProducts(8)}
	checker := &mockChecker{delay: 20 * time.Millisecond}
	s := NewScheduler(repo, checker, testLogger(), 2)

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce returned error: %v", err)
	}

	if checker.maxSeen > 2 {
		t.Errorf("並列数 = %d, 上限は2", checker.maxSeen)
	}
	if len(checker.checked) != 8 {
		t.Errorf("checked = %d products, want 8", len(checker.checked))
	}
}

func TestNewScheduler_DefaultConcurrency(t *testing.T) {
	s := NewScheduler(&mockProductRepo{}, &mockChecker{}, testLogger(), 0)
	if s.maxConcurrency != 4 {
		t.Errorf("maxConcurrency = %d, want 4", s.maxConcurrency)
	}
}

// Startは起動直後に1回実行し、キャンセルで停止する。
func TestStart_RunsImmediatelyAndStopsOnCancel(t *testing.T) {
	repo := &mockProductRepo{products: seedProducts(2)}
	checker := &mockChecker{}
	s := NewScheduler(repo, checker, testLogger(), 2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx, time.Hour)
		close(done)
	}()

	// 起動直後の1回分が実行されるのを待つ
	deadline := time.After(2 * time.Second)
	for {
		checker.mu.Lock()
		n := len(checker.checked)
		checker.mu.Unlock()
		if n >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("起動直後のチェックサイクルが実行されていない")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("キャンセル後にStartが停止していない")
	}
}
