package matching

type priceLevel struct {
	price int64   // tick
	head  *lvNode // 头部指针
	tail  *lvNode // 尾部指针
	size  int     // 订单数
	qty   int64   // 聚合剩余量，深度查询直接读
}

// 双向链表节点
type lvNode struct {
	prev  *lvNode
	next  *lvNode
	order *Order
	lv    *priceLevel // 所属的价格桶
}

// 同价位直接追加到队尾 => 天然满足 FIFO
func (l *priceLevel) pushBack(n *lvNode) {
	n.prev, n.next = l.tail, nil
	if l.tail != nil {
		l.tail.next = n
	} else {
		l.head = n
	}
	l.tail = n
	l.size++
	l.qty += n.order.Qty
}

func (l *priceLevel) remove(n *lvNode) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		// n 是 head
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		// n 是 tail
		l.tail = n.prev
	}
	// 断开节点指针，避免误用
	n.prev, n.next = nil, nil
	l.size--
	l.qty -= n.order.Qty
}

func (l *priceLevel) empty() bool {
	return l.size == 0
}

func (l *priceLevel) orderIDs() []string {
	ids := make([]string, 0, l.size)
	for n := l.head; n != nil; n = n.next {
		ids = append(ids, n.order.ID)
	}
	return ids
}
