package presence

import (
	"sync"
	"time"

	"github.com/boxnet/boxd/pkg/boxid"
)

// DefaultStaleThreshold is the default interval (spec.md §4.5: two missed
// publishes at the default 60s publish interval) after which a record is
// considered stale.
const DefaultStaleThreshold = 120 * time.Second

// LocationIndex is a root resolver's in-memory mapping of NodeId to
// LocationRecord, plus a secondary UserId -> set<NodeId> index. Mutated
// only by Update; reads take a snapshot copy so callers never see a
// record mutate out from under them.
type LocationIndex struct {
	staleThreshold time.Duration

	mu     sync.RWMutex
	byNode map[boxid.ID]LocationRecord
	byUser map[boxid.ID]map[boxid.ID]struct{}

	// onUpdate, if set, is called with every record Update accepts, after
	// the in-memory index has been updated. cmd/boxd wires this to
	// pkg/presencedb so a root resolver's /whoswho index survives a
	// restart; a nil hook makes persistence purely in-memory.
	onUpdate func(LocationRecord)

	// for unit tests
	__clock func() time.Time
}

// SetPersistHook installs fn to be called after every accepted Update.
// Only one hook is supported; calling it again replaces the previous one.
func (idx *LocationIndex) SetPersistHook(fn func(LocationRecord)) {
	idx.mu.Lock()
	idx.onUpdate = fn
	idx.mu.Unlock()
}

// NewLocationIndex constructs an empty index. A staleThreshold of 0 uses
// DefaultStaleThreshold.
func NewLocationIndex(staleThreshold time.Duration) *LocationIndex {
	if staleThreshold <= 0 {
		staleThreshold = DefaultStaleThreshold
	}
	return &LocationIndex{
		staleThreshold: staleThreshold,
		byNode:         make(map[boxid.ID]LocationRecord),
		byUser:         make(map[boxid.ID]map[boxid.ID]struct{}),
	}
}

func (idx *LocationIndex) now() time.Time {
	if idx.__clock != nil {
		return idx.__clock()
	}
	return time.Now()
}

// Update records rec, keyed by rec.NodeID, and indexes it under rec.UserID.
// LastSeenMs is taken from rec as provided by the caller (the publisher
// stamps it); Update does not touch the clock itself, since a PUT may be
// processed slightly after it was stamped by the publishing node.
func (idx *LocationIndex) Update(rec LocationRecord) {
	idx.mu.Lock()

	if old, exists := idx.byNode[rec.NodeID]; exists && old.UserID != rec.UserID {
		if set := idx.byUser[old.UserID]; set != nil {
			delete(set, rec.NodeID)
			if len(set) == 0 {
				delete(idx.byUser, old.UserID)
			}
		}
	}

	idx.byNode[rec.NodeID] = rec

	set, ok := idx.byUser[rec.UserID]
	if !ok {
		set = make(map[boxid.ID]struct{})
		idx.byUser[rec.UserID] = set
	}
	set[rec.NodeID] = struct{}{}

	hook := idx.onUpdate
	idx.mu.Unlock()

	if hook != nil {
		hook(rec)
	}
}

// Get returns a copy of the record for node, and whether it exists.
func (idx *LocationIndex) Get(node boxid.ID) (LocationRecord, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	rec, ok := idx.byNode[node]
	return rec, ok
}

// GetByUser returns copies of the non-stale records published under user,
// per spec.md §4.5's LOCATE(user_uuid) contract.
func (idx *LocationIndex) GetByUser(user boxid.ID) []LocationRecord {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	set := idx.byUser[user]
	if len(set) == 0 {
		return nil
	}
	now := idx.now()
	out := make([]LocationRecord, 0, len(set))
	for node := range set {
		rec, ok := idx.byNode[node]
		if ok && idx.isActive(rec, now) {
			out = append(out, rec)
		}
	}
	return out
}

func (idx *LocationIndex) isActive(rec LocationRecord, now time.Time) bool {
	lastSeen := time.UnixMilli(rec.LastSeenMs)
	return now.Sub(lastSeen) <= idx.staleThreshold
}

// IsStale reports whether node's current record has not been refreshed
// within the stale threshold. Returns true if node is unknown.
func (idx *LocationIndex) IsStale(node boxid.ID) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	rec, ok := idx.byNode[node]
	if !ok {
		return true
	}
	return !idx.isActive(rec, idx.now())
}

// Summary is the admin location-summary payload (spec.md §6).
type Summary struct {
	TotalNodes  int        `json:"totalNodes"`
	ActiveNodes int        `json:"activeNodes"`
	TotalUsers  int        `json:"totalUsers"`
	StaleNodes  []boxid.ID `json:"staleNodes"`
	StaleUsers  []boxid.ID `json:"staleUsers"`
	ThresholdMs int64      `json:"threshold"`
}

// Snapshot computes a Summary on demand (spec.md §4.5: "computed on
// demand", no background sweep goroutine).
func (idx *LocationIndex) Snapshot() Summary {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	now := idx.now()
	s := Summary{
		TotalNodes:  len(idx.byNode),
		TotalUsers:  len(idx.byUser),
		ThresholdMs: idx.staleThreshold.Milliseconds(),
	}

	staleUserSet := make(map[boxid.ID]struct{})
	for node, rec := range idx.byNode {
		if idx.isActive(rec, now) {
			s.ActiveNodes++
		} else {
			s.StaleNodes = append(s.StaleNodes, node)
			staleUserSet[rec.UserID] = struct{}{}
		}
	}
	for user := range staleUserSet {
		// A user only counts as stale if none of its nodes are active.
		stale := true
		for node := range idx.byUser[user] {
			if rec, ok := idx.byNode[node]; ok && idx.isActive(rec, now) {
				stale = false
				break
			}
		}
		if stale {
			s.StaleUsers = append(s.StaleUsers, user)
		}
	}

	return s
}
