// Package queuestore implements Box's filesystem-backed queue store
// (spec.md §4.4): one subdirectory per queue, one JSON file per object,
// atomic temp-file-then-rename writes, and ephemeral-consume vs.
// permanent-peek GET semantics.
//
// The optional gzip-at-rest knob mirrors the teacher's
// pkg/storage/memstore.PdataStore compress flag, ported from an in-memory
// sync.Map to on-disk files since the store must survive a daemon restart.
package queuestore

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// ErrNotFound is returned by Get when a queue has no objects.
var ErrNotFound = errors.New("queuestore: not found")

// ErrTooLarge is returned by Put when payload exceeds the configured max.
var ErrTooLarge = errors.New("queuestore: payload too large")

var gzipMagic = []byte{0x1f, 0x8b}

// QueueObject is one stored message (spec.md §3's QueueObject).
type QueueObject struct {
	ContentType string `json:"content_type"`
	Payload     []byte `json:"payload"`
	DepositedAt int64  `json:"deposited_at"` // unix milliseconds
	Digest      string `json:"digest"`       // hex sha256 of Payload
}

// Store is a filesystem-backed queue store rooted at a single directory.
// Safe for concurrent use; queue directories are created lazily and all
// writes are atomic, so no in-process locking is required beyond what the
// filesystem already gives a rename.
type Store struct {
	root            string
	permanent       map[string]struct{}
	permanentPrefix []string
	compress        bool
}

// NewStore creates (if necessary) the root directory and returns a Store.
// permanentQueues are normalized queue paths (spec.md §4.4) that use
// peek-on-GET semantics instead of consume-on-GET; /INBOX and /whoswho are
// always implicitly permanent-eligible per the caller's configuration, not
// hardcoded here — the broker composition root supplies them.
//
// An entry ending in "/*" marks a whole subtree permanent instead of a
// single queue, for root resolvers that fan the presence queue out into
// one per-node child (/whoswho/<node-id>) rather than sharing a single
// queue: "/whoswho/*" makes every /whoswho/<anything> queue peek-on-GET
// without the caller having to pre-enumerate node IDs.
func NewStore(root string, permanentQueues []string, compress bool) (*Store, error) {
	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, fmt.Errorf("queuestore: create root: %w", err)
	}
	perm := make(map[string]struct{}, len(permanentQueues))
	var prefixes []string
	for _, q := range permanentQueues {
		if strings.HasSuffix(q, "/*") {
			n, err := Normalize(strings.TrimSuffix(q, "*"))
			if err != nil {
				return nil, fmt.Errorf("queuestore: permanent prefix %q: %w", q, err)
			}
			prefixes = append(prefixes, n+"/")
			continue
		}
		n, err := Normalize(q)
		if err != nil {
			return nil, fmt.Errorf("queuestore: permanent queue %q: %w", q, err)
		}
		perm[n] = struct{}{}
	}
	return &Store{root: root, permanent: perm, permanentPrefix: prefixes, compress: compress}, nil
}

func (s *Store) isPermanent(normalized string) bool {
	if _, ok := s.permanent[normalized]; ok {
		return true
	}
	for _, p := range s.permanentPrefix {
		if strings.HasPrefix(normalized, p) {
			return true
		}
	}
	return false
}

func (s *Store) queueDir(normalized string) string {
	return filepath.Join(s.root, dirName(normalized))
}

// Put validates and stores payload under queue, enforcing maxPayload (0
// means unlimited). Writing the same digest twice is idempotent.
func (s *Store) Put(queue, contentType string, payload []byte, maxPayload int) error {
	normalized, err := Normalize(queue)
	if err != nil {
		return err
	}
	if maxPayload > 0 && len(payload) > maxPayload {
		return ErrTooLarge
	}

	sum := sha256.Sum256(payload)
	digest := hex.EncodeToString(sum[:])

	obj := QueueObject{
		ContentType: contentType,
		Payload:     payload,
		DepositedAt: nowMillis(),
		Digest:      digest,
	}
	encoded, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("queuestore: encode object: %w", err)
	}
	if s.compress {
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(encoded); err != nil {
			return fmt.Errorf("queuestore: compress object: %w", err)
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("queuestore: compress object: %w", err)
		}
		encoded = buf.Bytes()
	}

	dir := s.queueDir(normalized)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("queuestore: create queue dir: %w", err)
	}

	final := filepath.Join(dir, digest+".json")
	if _, err := os.Stat(final); err == nil {
		// Same digest already stored; PUT is idempotent.
		return nil
	}

	return writeAtomic(dir, final, encoded)
}

// Get returns and, for ephemeral queues, removes the lexicographically
// smallest object in queue. Returns ErrNotFound if the queue is empty or
// does not exist.
func (s *Store) Get(queue string) (*QueueObject, error) {
	normalized, err := Normalize(queue)
	if err != nil {
		return nil, err
	}
	dir := s.queueDir(normalized)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("queuestore: list queue: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, ErrNotFound
	}
	sort.Strings(names)
	picked := filepath.Join(dir, names[0])

	raw, err := os.ReadFile(picked)
	if err != nil {
		if os.IsNotExist(err) {
			// Raced with another consumer; caller retries as NotFound.
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("queuestore: read object: %w", err)
	}

	if bytes.HasPrefix(raw, gzipMagic) {
		r, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("queuestore: decompress object: %w", err)
		}
		raw, err = io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("queuestore: decompress object: %w", err)
		}
	}

	var obj QueueObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("queuestore: decode object: %w", err)
	}

	if !s.isPermanent(normalized) {
		if err := os.Remove(picked); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("queuestore: consume object: %w", err)
		}
	}

	return &obj, nil
}

// Delete removes the lexicographically smallest object in queue
// unconditionally, including for permanent queues (unlike Get, which peeks
// rather than consumes a permanent queue's objects). Returns ErrNotFound if
// the queue is empty or does not exist.
func (s *Store) Delete(queue string) error {
	normalized, err := Normalize(queue)
	if err != nil {
		return err
	}
	dir := s.queueDir(normalized)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("queuestore: list queue: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return ErrNotFound
	}
	sort.Strings(names)
	picked := filepath.Join(dir, names[0])

	if err := os.Remove(picked); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("queuestore: delete object: %w", err)
	}
	return nil
}

// QueueCount returns the number of distinct queue directories that exist.
func (s *Store) QueueCount() (int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("queuestore: list root: %w", err)
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() {
			n++
		}
	}
	return n, nil
}

// ObjectCount returns the total number of stored objects across all queues.
// It scans the directory tree on every call, per spec.md §4.4's "computed
// lazily on request" metrics contract.
func (s *Store) ObjectCount() (int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("queuestore: list root: %w", err)
	}
	total := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		objs, err := os.ReadDir(filepath.Join(s.root, e.Name()))
		if err != nil {
			return 0, fmt.Errorf("queuestore: list queue %q: %w", e.Name(), err)
		}
		for _, o := range objs {
			if !o.IsDir() {
				total++
			}
		}
	}
	return total, nil
}
