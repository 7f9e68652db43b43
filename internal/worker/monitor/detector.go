// Package monitor は監視対象商品の定期フェッチと状態変化の検知を行う。
// スケジューラ、1商品単位のチェック処理、遷移分類を含む。
package monitor

import "github.com/hitoshi/restockd/internal/model"

// Classify は前回状態と今回状態を比較して遷移を分類する。
// 可用性の変化が価格の変化より優先される。両方が同時に変化した場合、
// 分類は可用性側の遷移となり価格変化としては報告しない。
func Classify(prev, curr *model.ProductStatus) model.Transition {
	if prev == nil {
		return model.TransitionFirstSeen
	}

	switch {
	case !prev.Available && curr.Available:
		return model.TransitionBecameAvailable
	case prev.Available && !curr.Available:
		return model.TransitionBecameUnavailable
	case prev.Price != curr.Price:
		return model.TransitionPriceChanged
	default:
		return model.TransitionUnchanged
	}
}
