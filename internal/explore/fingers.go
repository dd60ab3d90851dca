package explore

import "github.com/verte-zerg/touchx/internal/event"

// fingerSet maps finger id to last known location, keeping press order.
type fingerSet struct {
	ids  []int
	locs map[int]event.Point
}

func newFingerSet() *fingerSet {
	return &fingerSet{locs: map[int]event.Point{}}
}

func (f *fingerSet) press(id int, loc event.Point) {
	if _, ok := f.locs[id]; !ok {
		f.ids = append(f.ids, id)
	}
	f.locs[id] = loc
}

func (f *fingerSet) has(id int) bool {
	_, ok := f.locs[id]
	return ok
}

func (f *fingerSet) move(id int, loc event.Point) bool {
	if !f.has(id) {
		return false
	}
	f.locs[id] = loc
	return true
}

func (f *fingerSet) release(id int) bool {
	if !f.has(id) {
		return false
	}
	delete(f.locs, id)
	for i, v := range f.ids {
		if v == id {
			f.ids = append(f.ids[:i], f.ids[i+1:]...)
			break
		}
	}
	return true
}

func (f *fingerSet) location(id int) (event.Point, bool) {
	loc, ok := f.locs[id]
	return loc, ok
}

func (f *fingerSet) len() int {
	return len(f.ids)
}

func (f *fingerSet) list() []int {
	out := make([]int, len(f.ids))
	copy(out, f.ids)
	return out
}
