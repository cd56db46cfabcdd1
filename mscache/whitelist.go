package mscache

import "container/list"

// whiteList is a capacity-bounded, LRU-ordered set of recently-refreshed
// rows. When enabled, a cache miss on a row absent from the white list is
// treated as a cold, one-off access and bypasses allocation entirely
// (spec.md §4.3's refresh-aware white-list, §9 open question 5): only rows
// MithrilTracker has actually asked the controller to refresh are worth
// caching, since those are the rows under RowHammer pressure and therefore
// likely to be revisited soon.
type whiteList struct {
	capacity int
	order    *list.List
	index    map[int64]*list.Element
}

func newWhiteList(capacity int) *whiteList {
	return &whiteList{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[int64]*list.Element, capacity),
	}
}

// Record marks row as recently refreshed, moving it to the MRU position
// and evicting the LRU row if the list is full.
func (w *whiteList) Record(row int64) {
	if e, ok := w.index[row]; ok {
		w.order.MoveToBack(e)
		return
	}

	if w.order.Len() >= w.capacity {
		front := w.order.Front()
		w.order.Remove(front)
		delete(w.index, front.Value.(int64))
	}

	w.index[row] = w.order.PushBack(row)
}

// Contains reports whether row was refreshed recently enough to still be
// resident in the white list. It does not itself affect LRU order: only a
// refresh renews a row's position.
func (w *whiteList) Contains(row int64) bool {
	_, ok := w.index[row]
	return ok
}
