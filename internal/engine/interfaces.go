package engine

import "predex.com/internal/matching"

// OrderBook actor 持有的订单薄，只在 actor 协程里调用
type OrderBook interface {
	Add(req matching.OrderRequest, opts ...matching.AddOption) (matching.Result, error)
	Cancel(orderID string) bool
	Snapshot() matching.Depth
}

// EventSink 下游可能慢，所以只提供 TryPublish（非阻塞）
type EventSink interface {
	TryPublish(ev Event) bool
}

var _ OrderBook = (*matching.Book)(nil)
