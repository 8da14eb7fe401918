package orderclient

import "sync"

// Queue holds mutating actions made while offline, oldest first.
type Queue struct {
	mu    sync.Mutex
	items []Action
}

func (q *Queue) Push(a Action) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, a)
}

func (q *Queue) Peek() (Action, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Action{}, false
	}
	return q.items[0], true
}

// Remove drops the action with the given key. It is called only once the server has
// answered definitively for it.
func (q *Queue) Remove(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, a := range q.items {
		if a.Key == key {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) Items() []Action {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Action, len(q.items))
	copy(out, q.items)
	return out
}
