package usecase

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/Floyce/OCR-Sorter/internal/core/domain"
	"github.com/Floyce/OCR-Sorter/internal/core/registry"
)

const manualBucketHint = "Click pencil to rename"

// selection is bound to one bucket revision; any change to the bucket's
// document list makes it stale.
type selection struct {
	bucket   domain.BucketID
	revision uint64
	docs     map[int]string
}

// ReorganizeUseCase applies user corrections to the registry. Operations are
// synchronous and only see documents the pipeline has already committed.
type ReorganizeUseCase struct {
	registry *registry.Registry
	logger   *slog.Logger

	mu        sync.Mutex
	viewed    domain.BucketID
	selection selection
}

func NewReorganizeUseCase(reg *registry.Registry, logger *slog.Logger) *ReorganizeUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReorganizeUseCase{registry: reg, logger: logger}
}

func (uc *ReorganizeUseCase) Snapshot() domain.Snapshot {
	return uc.registry.Snapshot()
}

func (uc *ReorganizeUseCase) CreateBucket(code, displayName string) (domain.Bucket, error) {
	id, err := uc.registry.CreateBucket(code, displayName)
	if err != nil {
		return domain.Bucket{}, err
	}
	return uc.registry.Bucket(id)
}

// CreateManualBucket adds a bucket with a generated "NEW <n>" code that is
// guaranteed to be unused.
func (uc *ReorganizeUseCase) CreateManualBucket() (domain.Bucket, error) {
	id := uc.registry.CreateUniqueBucket(func(n int) (string, string) {
		code := fmt.Sprintf("NEW %d", n)
		return code, code + " - " + manualBucketHint
	})
	bucket, err := uc.registry.Bucket(id)
	if err != nil {
		return domain.Bucket{}, err
	}
	uc.logger.Info("bucket_created", "bucket", bucket.Code, "manual", true)
	return bucket, nil
}

func (uc *ReorganizeUseCase) RenameBucket(id domain.BucketID, displayName string) error {
	return uc.registry.RenameBucket(id, displayName)
}

func (uc *ReorganizeUseCase) DeleteBucket(id domain.BucketID) error {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	if err := uc.registry.DeleteBucket(id); err != nil {
		return err
	}
	if uc.viewed == id {
		uc.viewed = 0
		uc.selection = selection{}
	}
	return nil
}

// ViewBucket switches the currently viewed bucket and clears the selection.
func (uc *ReorganizeUseCase) ViewBucket(id domain.BucketID) error {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return uc.viewLocked(id)
}

func (uc *ReorganizeUseCase) viewLocked(id domain.BucketID) error {
	if !uc.registry.Contains(id) {
		return domain.WrapError(domain.ErrUnknownBucket, "view bucket", fmt.Errorf("id=%s", id))
	}
	uc.viewed = id
	uc.selection = selection{}
	return nil
}

func (uc *ReorganizeUseCase) ViewedBucket() (domain.BucketID, bool) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	uc.dropVanishedViewLocked()
	return uc.viewed, uc.viewed != 0
}

// dropVanishedViewLocked forgets a viewed bucket that no longer exists, e.g.
// after the registry was reset to its seeds.
func (uc *ReorganizeUseCase) dropVanishedViewLocked() {
	if uc.viewed != 0 && !uc.registry.Contains(uc.viewed) {
		uc.viewed = 0
		uc.selection = selection{}
	}
}

// SelectDocuments adds indices of the bucket's current document list to the
// selection, switching the viewed bucket first when needed.
func (uc *ReorganizeUseCase) SelectDocuments(id domain.BucketID, indices []int) error {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return uc.selectLocked(id, indices, false)
}

// ToggleDocument flips one index in or out of the selection.
func (uc *ReorganizeUseCase) ToggleDocument(id domain.BucketID, index int) error {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return uc.selectLocked(id, []int{index}, true)
}

func (uc *ReorganizeUseCase) selectLocked(id domain.BucketID, indices []int, toggle bool) error {
	if uc.viewed != id {
		if err := uc.viewLocked(id); err != nil {
			return err
		}
	}
	bucket, revision, err := uc.registry.BucketAt(id)
	if err != nil {
		return err
	}
	for _, idx := range indices {
		if idx < 0 || idx >= len(bucket.Documents) {
			return domain.WrapError(domain.ErrInvalidInput, "select documents", fmt.Errorf("index %d out of range [0,%d)", idx, len(bucket.Documents)))
		}
	}

	if uc.selection.bucket != id || uc.selection.revision != revision {
		uc.selection = selection{bucket: id, revision: revision, docs: make(map[int]string)}
	}
	for _, idx := range indices {
		if _, ok := uc.selection.docs[idx]; ok && toggle {
			delete(uc.selection.docs, idx)
			continue
		}
		uc.selection.docs[idx] = bucket.Documents[idx].ID
	}
	return nil
}

func (uc *ReorganizeUseCase) DeselectAll() {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	uc.selection = selection{}
}

// Selection returns the selected indices of the viewed bucket, in ascending order.
func (uc *ReorganizeUseCase) Selection() (domain.BucketID, []int) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	uc.dropVanishedViewLocked()
	docs := uc.currentLocked(uc.selection.bucket)
	if len(docs) == 0 {
		return uc.viewed, []int{}
	}
	out := make([]int, 0, len(docs))
	for idx := range docs {
		out = append(out, idx)
	}
	slices.Sort(out)
	return uc.selection.bucket, out
}

// currentLocked returns the live selection for id, dropping it when the
// bucket's documents changed since it was made.
func (uc *ReorganizeUseCase) currentLocked(id domain.BucketID) map[int]string {
	if id == 0 || uc.selection.bucket != id || len(uc.selection.docs) == 0 {
		return nil
	}
	revision, err := uc.registry.Revision(id)
	if err != nil || revision != uc.selection.revision {
		uc.logger.Warn("selection_invalidated", "bucket_id", id)
		uc.selection = selection{}
		return nil
	}
	return uc.selection.docs
}

func (uc *ReorganizeUseCase) replaceSelectionLocked(id domain.BucketID, indices []int) error {
	if len(indices) == 0 {
		return nil
	}
	uc.selection = selection{}
	return uc.selectLocked(id, indices, false)
}

// DeleteSelected permanently removes the selected documents of a bucket.
// Explicit indices replace the current selection. Without a selection it is a no-op.
func (uc *ReorganizeUseCase) DeleteSelected(id domain.BucketID, indices ...int) ([]domain.Document, error) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	if err := uc.replaceSelectionLocked(id, indices); err != nil {
		return nil, err
	}
	docs := uc.currentLocked(id)
	if len(docs) == 0 {
		return nil, nil
	}
	wanted := selectedIDs(docs)
	removed, err := uc.registry.RemoveDocuments(id, func(_ int, doc domain.Document) bool {
		return slices.Contains(wanted, doc.ID)
	})
	if err != nil {
		return nil, err
	}
	uc.selection = selection{}
	uc.logger.Info("documents_deleted", "bucket_id", id, "count", len(removed))
	return removed, nil
}

// MoveSelected transfers the selected documents of a bucket to target.
func (uc *ReorganizeUseCase) MoveSelected(id, target domain.BucketID, indices ...int) ([]domain.Document, error) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	if target == id || !uc.registry.Contains(target) {
		return nil, domain.WrapError(domain.ErrInvalidTarget, "move documents", fmt.Errorf("from=%s to=%s", id, target))
	}
	if !uc.registry.Contains(id) {
		return nil, domain.WrapError(domain.ErrUnknownBucket, "move documents", fmt.Errorf("id=%s", id))
	}
	if err := uc.replaceSelectionLocked(id, indices); err != nil {
		return nil, err
	}
	docs := uc.currentLocked(id)
	if len(docs) == 0 {
		return nil, nil
	}
	moved, err := uc.registry.MoveDocuments(id, target, selectedIDs(docs))
	if err != nil {
		return nil, err
	}
	uc.selection = selection{}
	uc.logger.Info("documents_moved", "from_bucket_id", id, "to_bucket_id", target, "count", len(moved))
	return moved, nil
}

func selectedIDs(docs map[int]string) []string {
	out := make([]string, 0, len(docs))
	for _, id := range docs {
		out = append(out, id)
	}
	return out
}
