package cache

// lruNode is a node of the idle list. It stores its key so eviction can
// delete the map entry in O(1).
type lruNode struct {
	key  string
	prev *lruNode
	next *lruNode
}

// lruList orders idle entries from most (head) to least (tail) recently
// released. The list is not thread-safe; the owning RefCache locks it.
type lruList struct {
	head *lruNode
	tail *lruNode
	len  int
}

func (l *lruList) Len() int { return l.len }

// PushFront adds key as the most recently idled entry.
func (l *lruList) PushFront(key string) *lruNode {
	n := &lruNode{key: key, next: l.head}
	if l.head != nil {
		l.head.prev = n
	} else {
		l.tail = n
	}
	l.head = n
	l.len++
	return n
}

// Remove unlinks n. A nil node is ignored.
func (l *lruList) Remove(n *lruNode) {
	if n == nil {
		return
	}
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev, n.next = nil, nil
	l.len--
}

// Oldest returns the least recently idled key.
func (l *lruList) Oldest() (string, bool) {
	if l.tail == nil {
		return "", false
	}
	return l.tail.key, true
}

func (l *lruList) Clear() {
	l.head, l.tail, l.len = nil, nil, 0
}
