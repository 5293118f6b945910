// Package registry owns the ordered bucket collection and every document in it.
// All methods are safe for concurrent use; a single lock serializes writers so
// the pipeline and user reorganization never mutate at the same time.
package registry

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/Floyce/OCR-Sorter/internal/core/domain"
)

type bucket struct {
	code        string
	displayName string
	documents   []domain.Document
	revision    uint64
}

type Registry struct {
	mu      sync.RWMutex
	nextID  domain.BucketID
	order   []domain.BucketID
	buckets map[domain.BucketID]*bucket
}

func New() *Registry {
	return &Registry{buckets: make(map[domain.BucketID]*bucket)}
}

// NewSeeded builds a registry with one empty bucket per subject, in order.
func NewSeeded(subjects []domain.Subject) (*Registry, error) {
	r := New()
	if err := r.Reset(subjects); err != nil {
		return nil, err
	}
	return r, nil
}

// Reset drops every bucket and document and re-creates the seed subjects.
// Bucket ids are never reused across resets.
func (r *Registry) Reset(subjects []domain.Subject) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.order = nil
	r.buckets = make(map[domain.BucketID]*bucket, len(subjects))
	for _, s := range subjects {
		if _, err := r.createLocked(s.Code, s.Name); err != nil {
			return fmt.Errorf("seed subject %q: %w", s.Code, err)
		}
	}
	return nil
}

func (r *Registry) CreateBucket(code, displayName string) (domain.BucketID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.createLocked(code, displayName)
}

// CreateUniqueBucket asks generate for candidates, starting at n = bucket count + 1,
// until one yields an unused code.
func (r *Registry) CreateUniqueBucket(generate func(n int) (code, displayName string)) domain.BucketID {
	r.mu.Lock()
	defer r.mu.Unlock()

	for n := len(r.order) + 1; ; n++ {
		code, name := generate(n)
		id, err := r.createLocked(code, name)
		if err == nil {
			return id
		}
	}
}

func (r *Registry) createLocked(code, displayName string) (domain.BucketID, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return 0, domain.WrapError(domain.ErrInvalidInput, "create bucket", errors.New("empty code"))
	}
	if _, ok := r.findLocked(code); ok {
		return 0, domain.WrapError(domain.ErrDuplicateCode, "create bucket", fmt.Errorf("code=%s", code))
	}
	r.nextID++
	id := r.nextID
	r.buckets[id] = &bucket{code: code, displayName: displayName}
	r.order = append(r.order, id)
	return id, nil
}

func (r *Registry) RenameBucket(id domain.BucketID, displayName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, err := r.getLocked(id, "rename bucket")
	if err != nil {
		return err
	}
	b.displayName = displayName
	return nil
}

// DeleteBucket removes an empty bucket. Buckets holding documents are kept.
func (r *Registry) DeleteBucket(id domain.BucketID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, err := r.getLocked(id, "delete bucket")
	if err != nil {
		return err
	}
	if len(b.documents) > 0 {
		return domain.WrapError(domain.ErrBucketNotEmpty, "delete bucket", fmt.Errorf("id=%s documents=%d", id, len(b.documents)))
	}
	delete(r.buckets, id)
	r.order = slices.DeleteFunc(r.order, func(v domain.BucketID) bool { return v == id })
	return nil
}

// FindBucketByCode matches codes case-insensitively.
func (r *Registry) FindBucketByCode(code string) (domain.BucketID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.findLocked(code)
}

func (r *Registry) findLocked(code string) (domain.BucketID, bool) {
	code = strings.TrimSpace(code)
	for _, id := range r.order {
		if strings.EqualFold(r.buckets[id].code, code) {
			return id, true
		}
	}
	return 0, false
}

func (r *Registry) Contains(id domain.BucketID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.buckets[id]
	return ok
}

// AddDocument inserts doc after every document with an equal or later year,
// which keeps the list sorted by year descending and stable among equal years.
func (r *Registry) AddDocument(id domain.BucketID, doc domain.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, err := r.getLocked(id, "add document")
	if err != nil {
		return err
	}
	b.insert(doc)
	b.revision++
	return nil
}

func (b *bucket) insert(doc domain.Document) {
	pos := len(b.documents)
	for i, existing := range b.documents {
		if existing.Year < doc.Year {
			pos = i
			break
		}
	}
	b.documents = slices.Insert(b.documents, pos, doc)
}

// RemoveDocuments removes every document for which match returns true and
// hands them back to the caller in their previous order.
func (r *Registry) RemoveDocuments(id domain.BucketID, match func(index int, doc domain.Document) bool) ([]domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, err := r.getLocked(id, "remove documents")
	if err != nil {
		return nil, err
	}
	return b.remove(match), nil
}

func (b *bucket) remove(match func(int, domain.Document) bool) []domain.Document {
	var removed []domain.Document
	kept := b.documents[:0:0]
	for i, doc := range b.documents {
		if match(i, doc) {
			removed = append(removed, doc)
			continue
		}
		kept = append(kept, doc)
	}
	if len(removed) > 0 {
		b.documents = kept
		b.revision++
	}
	return removed
}

// MoveDocuments transfers the documents with the given ids from one bucket to
// another. Both buckets are validated before anything is mutated.
func (r *Registry) MoveDocuments(from, to domain.BucketID, documentIDs []string) ([]domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	src, err := r.getLocked(from, "move documents")
	if err != nil {
		return nil, err
	}
	dst, err := r.getLocked(to, "move documents")
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]struct{}, len(documentIDs))
	for _, id := range documentIDs {
		wanted[id] = struct{}{}
	}
	moved := src.remove(func(_ int, doc domain.Document) bool {
		_, ok := wanted[doc.ID]
		return ok
	})
	for _, doc := range moved {
		dst.insert(doc)
	}
	if len(moved) > 0 {
		dst.revision++
	}
	return moved, nil
}

// Revision changes every time the bucket's document list changes.
func (r *Registry) Revision(id domain.BucketID) (uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, err := r.getLocked(id, "bucket revision")
	if err != nil {
		return 0, err
	}
	return b.revision, nil
}

// BucketAt returns the bucket together with the revision it was read at.
func (r *Registry) BucketAt(id domain.BucketID) (domain.Bucket, uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, err := r.getLocked(id, "get bucket")
	if err != nil {
		return domain.Bucket{}, 0, err
	}
	return b.view(id), b.revision, nil
}

func (r *Registry) Bucket(id domain.BucketID) (domain.Bucket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, err := r.getLocked(id, "get bucket")
	if err != nil {
		return domain.Bucket{}, err
	}
	return b.view(id), nil
}

// Snapshot returns a deep copy of every bucket in display order.
func (r *Registry) Snapshot() domain.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := domain.Snapshot{Buckets: make([]domain.Bucket, 0, len(r.order))}
	for _, id := range r.order {
		out.Buckets = append(out.Buckets, r.buckets[id].view(id))
	}
	return out
}

func (r *Registry) getLocked(id domain.BucketID, operation string) (*bucket, error) {
	b, ok := r.buckets[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrUnknownBucket, operation, fmt.Errorf("id=%s", id))
	}
	return b, nil
}

func (b *bucket) view(id domain.BucketID) domain.Bucket {
	docs := make([]domain.Document, len(b.documents))
	copy(docs, b.documents)
	return domain.Bucket{
		ID:          id,
		Code:        b.code,
		DisplayName: b.displayName,
		Documents:   docs,
	}
}
