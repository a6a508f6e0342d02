// Package queue provides a bounded max-heap for top-k nearest-neighbor
// selection over a linear scan.
package queue

// Item is a candidate held by the queue.
// Value-based storage, no pointer indirection.
type Item struct {
	Slot     int
	Distance float32
}

// TopK keeps the k items with the smallest distances seen so far.
// The root of the heap is the current worst retained candidate, so a new
// candidate either replaces the root or is skipped in O(1).
type TopK struct {
	k     int
	items []Item
}

// NewTopK creates a TopK selector for k results. k must be positive.
func NewTopK(k int) *TopK {
	return &TopK{k: k, items: make([]Item, 0, k)}
}

// Push offers a candidate to the selector.
func (q *TopK) Push(slot int, distance float32) {
	if len(q.items) < q.k {
		q.items = append(q.items, Item{Slot: slot, Distance: distance})
		q.siftUp(len(q.items) - 1)
		return
	}
	if distance >= q.items[0].Distance {
		return
	}
	q.items[0] = Item{Slot: slot, Distance: distance}
	q.siftDown(0)
}

// Len returns the number of retained candidates.
func (q *TopK) Len() int {
	return len(q.items)
}

// Sorted drains the heap and returns the retained candidates ordered by
// ascending distance. Ties keep ascending slot order so that results are
// stable for a given build. The queue must not be reused afterwards.
func (q *TopK) Sorted() []Item {
	out := q.items
	for n := len(out) - 1; n > 0; n-- {
		out[0], out[n] = out[n], out[0]
		q.items = out[:n]
		q.siftDown(0)
	}
	q.items = nil

	// Heap pop order breaks distance ties arbitrarily; normalize runs of
	// equal distances to ascending slot order.
	for i := 1; i < len(out); i++ {
		j := i
		for j > 0 && out[j-1].Distance == out[j].Distance && out[j-1].Slot > out[j].Slot {
			out[j-1], out[j] = out[j], out[j-1]
			j--
		}
	}
	return out
}

func (q *TopK) less(i, j int) bool {
	if q.items[i].Distance != q.items[j].Distance {
		return q.items[i].Distance > q.items[j].Distance
	}
	// Larger slot is "worse" so equal-distance candidates evict stably.
	return q.items[i].Slot > q.items[j].Slot
}

func (q *TopK) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !q.less(i, parent) {
			break
		}
		q.items[i], q.items[parent] = q.items[parent], q.items[i]
		i = parent
	}
}

func (q *TopK) siftDown(i int) {
	n := len(q.items)
	for {
		left := 2*i + 1
		if left >= n {
			break
		}
		largest := left
		if right := left + 1; right < n && q.less(right, left) {
			largest = right
		}
		if !q.less(largest, i) {
			break
		}
		q.items[i], q.items[largest] = q.items[largest], q.items[i]
		i = largest
	}
}
