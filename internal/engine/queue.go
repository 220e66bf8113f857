package engine

import (
	"anonchat/backend/internal/models"
	"time"
)

// SearchQueue holds the users currently waiting for a partner in arrival
// order. It is not safe for concurrent use; the engine guards it.
type SearchQueue struct {
	entries []models.QueueEntry
	index   map[string]struct{}
}

func NewSearchQueue() *SearchQueue {
	return &SearchQueue{index: make(map[string]struct{})}
}

// Enqueue appends an entry. A user can hold at most one entry.
func (q *SearchQueue) Enqueue(userID string, interests []string, at time.Time) error {
	if _, ok := q.index[userID]; ok {
		return ErrAlreadySearching
	}
	q.entries = append(q.entries, models.QueueEntry{
		UserID:     userID,
		Interests:  append([]string(nil), interests...),
		EnqueuedAt: at,
	})
	q.index[userID] = struct{}{}
	return nil
}

// Dequeue removes the user's entry. It reports whether there was one;
// removing an absent entry is not an error.
func (q *SearchQueue) Dequeue(userID string) bool {
	if _, ok := q.index[userID]; !ok {
		return false
	}
	delete(q.index, userID)
	for i, e := range q.entries {
		if e.UserID == userID {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			break
		}
	}
	return true
}

func (q *SearchQueue) Contains(userID string) bool {
	_, ok := q.index[userID]
	return ok
}

// Get returns a copy of the user's entry.
func (q *SearchQueue) Get(userID string) (models.QueueEntry, bool) {
	if !q.Contains(userID) {
		return models.QueueEntry{}, false
	}
	for _, e := range q.entries {
		if e.UserID == userID {
			return e, true
		}
	}
	return models.QueueEntry{}, false
}

// FindCandidate returns the oldest entry, other than userID's own, that is
// compatible with interests. An empty interest set means "any" on either side:
// a waiting "any" searcher also matches a caller with interests, and the
// other way round.
func (q *SearchQueue) FindCandidate(userID string, interests []string) (models.QueueEntry, bool) {
	for _, e := range q.entries {
		if e.UserID == userID {
			continue
		}
		if compatible(interests, e.Interests) {
			return e, true
		}
	}
	return models.QueueEntry{}, false
}

func (q *SearchQueue) Len() int { return len(q.entries) }

// Entries returns a copy of the queue in arrival order.
func (q *SearchQueue) Entries() []models.QueueEntry {
	return append([]models.QueueEntry(nil), q.entries...)
}

func compatible(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return true
	}
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
