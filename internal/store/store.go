// Package store holds the authoritative in-memory notification cache of one
// session. Every mutation is serialized behind a single mutex, so REST merges,
// live pushes and read-state changes are applied strictly in the order the
// store accepts them.
package store

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Anmolmahajn/money-tracker-notifier/internal/domain"
)

// Store is the NotificationStore. The zero value is not usable; call New.
type Store struct {
	mu    sync.Mutex
	items []domain.Notification // newest CreatedAt first
	now   func() time.Time

	// seq advances on every local write; touched records the seq of the last
	// write per id so a baseline can tell which records it predates.
	seq     uint64
	touched map[string]uint64
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for optimistic read stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{now: time.Now, touched: make(map[string]uint64)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Merge seeds the store from a REST baseline. Records are united by id with
// whatever was ingested live in the meantime: for ids present on both sides
// the more recent ReadAt wins, and the result is re-sorted.
func (s *Store) Merge(baseline []domain.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := make(map[string]domain.Notification, len(s.items)+len(baseline))
	for _, n := range s.items {
		merged[n.ID] = n
	}
	for _, n := range baseline {
		if n.ID == "" {
			continue
		}
		if cur, ok := merged[n.ID]; ok {
			merged[n.ID] = reconcile(cur, n)
			continue
		}
		merged[n.ID] = n.Clone()
	}

	items := make([]domain.Notification, 0, len(merged))
	for _, n := range merged {
		items = append(items, n)
	}
	slices.SortFunc(items, compare)
	s.items = items
}

// BeginFetch marks the point at which a baseline request is issued. Pass the
// result to Replace once the baseline arrives.
func (s *Store) BeginFetch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Replace merges an unread baseline fetched after mark and then drops unread
// records the baseline no longer lists, since those were read or deleted
// elsewhere. Records ingested, marked or restored after mark are kept. It
// returns the number of records dropped.
func (s *Store) Replace(baseline []domain.Notification, mark uint64) int {
	s.Merge(baseline)

	listed := make(map[string]struct{}, len(baseline))
	for _, n := range baseline {
		listed[n.ID] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.items[:0]
	dropped := 0
	for _, n := range s.items {
		_, ok := listed[n.ID]
		if !ok && !n.IsRead() && s.touched[n.ID] <= mark {
			delete(s.touched, n.ID)
			dropped++
			continue
		}
		kept = append(kept, n)
	}
	clear(s.items[len(kept):])
	s.items = kept
	return dropped
}

// Ingest upserts a pushed notification by id. inserted reports whether the id
// was new; changed reports whether a duplicate delivery moved the held
// record's read state. A duplicate never moves read state backwards and never
// counts twice.
func (s *Store) Ingest(n domain.Notification) (inserted, changed bool) {
	if n.ID == "" {
		return false, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.touch(n.ID)
	if i := s.indexOf(n.ID); i >= 0 {
		updated := reconcile(s.items[i], n)
		changed = !sameRead(s.items[i].ReadAt, updated.ReadAt)
		if updated.CreatedAt.Equal(s.items[i].CreatedAt) {
			s.items[i] = updated
			return false, changed
		}
		s.items = slices.Delete(s.items, i, i+1)
		s.insert(updated)
		return false, changed
	}

	s.insert(n.Clone())
	return true, false
}

// MarkReadLocal stamps ReadAt on every listed id that is present and unread,
// returning copies of the records as they were before. An empty result means
// nothing changed.
func (s *Store) MarkReadLocal(ids ...string) []domain.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var priors []domain.Notification
	for _, id := range ids {
		i := s.indexOf(id)
		if i < 0 || s.items[i].IsRead() {
			continue
		}
		priors = append(priors, s.markAt(i, now))
	}
	return priors
}

// MarkAllReadLocal is the batch form of MarkReadLocal over the whole unread
// subset, taken in one critical section.
func (s *Store) MarkAllReadLocal() []domain.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var priors []domain.Notification
	for i := range s.items {
		if s.items[i].IsRead() {
			continue
		}
		priors = append(priors, s.markAt(i, now))
	}
	return priors
}

// Restore reinstates records to the state captured before an optimistic
// update. Ids that are no longer held (for instance after Clear) are skipped.
// It returns the number of records reinstated.
func (s *Store) Restore(priors ...domain.Notification) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	restored := 0
	for _, p := range priors {
		i := s.indexOf(p.ID)
		if i < 0 {
			continue
		}
		s.items[i] = p.Clone()
		s.touch(p.ID)
		restored++
	}
	if restored > 0 {
		slices.SortFunc(s.items, compare)
	}
	return restored
}

// Snapshot returns a deep copy of the ordered list with its unread count.
func (s *Store) Snapshot() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Notification, len(s.items))
	for i, n := range s.items {
		out[i] = n.Clone()
	}
	return domain.Snapshot{Notifications: out, UnreadCount: s.unread()}
}

// UnreadCount returns the number of records without ReadAt.
func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread()
}

// Get returns a copy of the record with the given id.
func (s *Store) Get(id string) (domain.Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return domain.Notification{}, false
	}
	return s.items[i].Clone(), true
}

// Len returns the number of records held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Remove deletes the record with the given id and reports whether it existed.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	s.items = slices.Delete(s.items, i, i+1)
	delete(s.touched, id)
	return true
}

// Clear drops every record. Used on logout.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	clear(s.touched)
}

// --- internals (callers hold s.mu) ---

func (s *Store) indexOf(id string) int {
	return slices.IndexFunc(s.items, func(n domain.Notification) bool { return n.ID == id })
}

func (s *Store) insert(n domain.Notification) {
	pos := sort.Search(len(s.items), func(j int) bool { return compare(s.items[j], n) > 0 })
	s.items = slices.Insert(s.items, pos, n)
}

func (s *Store) markAt(i int, now time.Time) domain.Notification {
	prior := s.items[i].Clone()
	t := now
	s.items[i].ReadAt = &t
	s.touch(prior.ID)
	return prior
}

func (s *Store) touch(id string) {
	s.seq++
	s.touched[id] = s.seq
}

func (s *Store) unread() int {
	count := 0
	for _, n := range s.items {
		if !n.IsRead() {
			count++
		}
	}
	return count
}

// checkInvariants verifies unique ids and ordering.
func (s *Store) checkInvariants() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(s.items))
	for i, n := range s.items {
		if _, dup := seen[n.ID]; dup {
			return fmt.Errorf("duplicate id %q", n.ID)
		}
		seen[n.ID] = struct{}{}
		if i > 0 && compare(s.items[i-1], n) > 0 {
			return fmt.Errorf("order broken at index %d (%q after %q)", i, n.ID, s.items[i-1].ID)
		}
	}
	return nil
}

// compare orders newest CreatedAt first, ties by id descending.
func compare(a, b domain.Notification) int {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	}
	return strings.Compare(b.ID, a.ID)
}

// reconcile takes the incoming record but keeps the more recent read state.
func reconcile(existing, incoming domain.Notification) domain.Notification {
	out := incoming.Clone()
	if r := newerRead(existing.ReadAt, incoming.ReadAt); r != nil {
		t := *r
		out.ReadAt = &t
	}
	return out
}

func sameRead(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func newerRead(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case a.After(*b):
		return a
	default:
		return b
	}
}
