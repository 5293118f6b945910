package usecase

import (
	"testing"

	"github.com/Floyce/OCR-Sorter/internal/core/domain"
	"github.com/Floyce/OCR-Sorter/internal/core/registry"
)

func newReorganizeForTest(t *testing.T) (*ReorganizeUseCase, *registry.Registry, domain.BucketID, domain.BucketID) {
	t.Helper()
	reg, err := registry.NewSeeded([]domain.Subject{
		{Code: "CIT 417", Name: "CIT 417: Data Driven Websites"},
		{Code: "CIR 405", Name: "CIR 405: Distributed Systems"},
	})
	if err != nil {
		t.Fatalf("NewSeeded() error = %v", err)
	}
	src, _ := reg.FindBucketByCode("CIT 417")
	dst, _ := reg.FindBucketByCode("CIR 405")
	for _, doc := range []domain.Document{
		{ID: "d1", ImageRef: "a", Year: 2023},
		{ID: "d2", ImageRef: "b", Year: 2022},
		{ID: "d3", ImageRef: "c", Year: 2021},
	} {
		if err := reg.AddDocument(src, doc); err != nil {
			t.Fatalf("AddDocument() error = %v", err)
		}
	}
	if err := reg.AddDocument(dst, domain.Document{ID: "d4", ImageRef: "d", Year: 2022}); err != nil {
		t.Fatalf("AddDocument() error = %v", err)
	}
	return NewReorganizeUseCase(reg, nil), reg, src, dst
}

func docIDs(docs []domain.Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.ID)
	}
	return out
}

func TestCreateManualBucketGeneratesUnusedCode(t *testing.T) {
	uc, _, _, _ := newReorganizeForTest(t)

	first, err := uc.CreateManualBucket()
	if err != nil {
		t.Fatalf("CreateManualBucket() error = %v", err)
	}
	if first.Code != "NEW 3" || first.DisplayName != "NEW 3 - Click pencil to rename" {
		t.Fatalf("unexpected manual bucket %+v", first)
	}
	second, err := uc.CreateManualBucket()
	if err != nil {
		t.Fatalf("CreateManualBucket() error = %v", err)
	}
	if second.Code != "NEW 4" {
		t.Fatalf("expected NEW 4, got %q", second.Code)
	}
}

func TestCreateBucketRejectsDuplicateCode(t *testing.T) {
	uc, _, _, _ := newReorganizeForTest(t)

	if _, err := uc.CreateBucket("cit 417", "again"); !domain.IsKind(err, domain.ErrDuplicateCode) {
		t.Fatalf("expected ErrDuplicateCode, got %v", err)
	}
}

func TestMoveSelectedPreservesTotals(t *testing.T) {
	uc, reg, src, dst := newReorganizeForTest(t)
	before := reg.Snapshot().TotalDocuments()

	if err := uc.SelectDocuments(src, []int{0, 2}); err != nil {
		t.Fatalf("SelectDocuments() error = %v", err)
	}
	moved, err := uc.MoveSelected(src, dst)
	if err != nil {
		t.Fatalf("MoveSelected() error = %v", err)
	}
	if got := docIDs(moved); len(got) != 2 || got[0] != "d1" || got[1] != "d3" {
		t.Fatalf("unexpected moved documents %v", got)
	}

	if after := reg.Snapshot().TotalDocuments(); after != before {
		t.Fatalf("total changed: before=%d after=%d", before, after)
	}
	target, _ := reg.Bucket(dst)
	if got := docIDs(target.Documents); len(got) != 3 || got[0] != "d1" || got[1] != "d4" || got[2] != "d3" {
		t.Fatalf("expected year-descending d1,d4,d3; got %v", got)
	}
	source, _ := reg.Bucket(src)
	if got := docIDs(source.Documents); len(got) != 1 || got[0] != "d2" {
		t.Fatalf("unexpected source documents %v", got)
	}
	if _, sel := uc.Selection(); len(sel) != 0 {
		t.Fatalf("expected selection cleared, got %v", sel)
	}
}

func TestMoveSelectedRejectsInvalidTarget(t *testing.T) {
	uc, reg, src, _ := newReorganizeForTest(t)
	if err := uc.SelectDocuments(src, []int{0}); err != nil {
		t.Fatalf("SelectDocuments() error = %v", err)
	}

	for _, target := range []domain.BucketID{src, 999} {
		if _, err := uc.MoveSelected(src, target); !domain.IsKind(err, domain.ErrInvalidTarget) {
			t.Fatalf("target %s: expected ErrInvalidTarget, got %v", target, err)
		}
	}
	bucket, _ := reg.Bucket(src)
	if len(bucket.Documents) != 3 {
		t.Fatalf("expected no mutation, got %d documents", len(bucket.Documents))
	}
}

func TestDeleteSelectedWithExplicitIndices(t *testing.T) {
	uc, reg, src, _ := newReorganizeForTest(t)

	removed, err := uc.DeleteSelected(src, 1)
	if err != nil {
		t.Fatalf("DeleteSelected() error = %v", err)
	}
	if got := docIDs(removed); len(got) != 1 || got[0] != "d2" {
		t.Fatalf("unexpected removed documents %v", got)
	}
	bucket, _ := reg.Bucket(src)
	if got := docIDs(bucket.Documents); len(got) != 2 || got[0] != "d1" || got[1] != "d3" {
		t.Fatalf("unexpected remaining documents %v", got)
	}
}

func TestDeleteSelectedWithoutSelectionIsNoop(t *testing.T) {
	uc, reg, src, _ := newReorganizeForTest(t)

	removed, err := uc.DeleteSelected(src)
	if err != nil {
		t.Fatalf("DeleteSelected() error = %v", err)
	}
	if len(removed) != 0 {
		t.Fatalf("expected no-op, removed %v", removed)
	}
	if total := reg.Snapshot().TotalDocuments(); total != 4 {
		t.Fatalf("expected 4 documents, got %d", total)
	}
}

func TestSelectionInvalidatedWhenBucketChanges(t *testing.T) {
	uc, reg, src, _ := newReorganizeForTest(t)
	if err := uc.SelectDocuments(src, []int{0}); err != nil {
		t.Fatalf("SelectDocuments() error = %v", err)
	}
	if err := reg.AddDocument(src, domain.Document{ID: "late", Year: 2024}); err != nil {
		t.Fatalf("AddDocument() error = %v", err)
	}

	removed, err := uc.DeleteSelected(src)
	if err != nil {
		t.Fatalf("DeleteSelected() error = %v", err)
	}
	if len(removed) != 0 {
		t.Fatalf("stale selection must not delete, removed %v", docIDs(removed))
	}
	bucket, _ := reg.Bucket(src)
	if len(bucket.Documents) != 4 {
		t.Fatalf("expected 4 documents, got %d", len(bucket.Documents))
	}
}

func TestToggleAndViewSwitching(t *testing.T) {
	uc, _, src, dst := newReorganizeForTest(t)

	if err := uc.ToggleDocument(src, 1); err != nil {
		t.Fatalf("ToggleDocument() error = %v", err)
	}
	if err := uc.ToggleDocument(src, 2); err != nil {
		t.Fatalf("ToggleDocument() error = %v", err)
	}
	if err := uc.ToggleDocument(src, 1); err != nil {
		t.Fatalf("ToggleDocument() error = %v", err)
	}
	id, sel := uc.Selection()
	if id != src || len(sel) != 1 || sel[0] != 2 {
		t.Fatalf("unexpected selection %s %v", id, sel)
	}

	if err := uc.ViewBucket(dst); err != nil {
		t.Fatalf("ViewBucket() error = %v", err)
	}
	if viewed, ok := uc.ViewedBucket(); !ok || viewed != dst {
		t.Fatalf("expected viewed bucket %s, got %s", dst, viewed)
	}
	if _, sel := uc.Selection(); len(sel) != 0 {
		t.Fatalf("expected selection cleared on view switch, got %v", sel)
	}
}

func TestSelectDocumentsValidatesInput(t *testing.T) {
	uc, _, src, _ := newReorganizeForTest(t)

	if err := uc.SelectDocuments(src, []int{3}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if err := uc.SelectDocuments(999, []int{0}); !domain.IsKind(err, domain.ErrUnknownBucket) {
		t.Fatalf("expected ErrUnknownBucket, got %v", err)
	}
}

func TestDeleteBucketOnlyWhenEmpty(t *testing.T) {
	uc, _, src, _ := newReorganizeForTest(t)

	if err := uc.DeleteBucket(src); !domain.IsKind(err, domain.ErrBucketNotEmpty) {
		t.Fatalf("expected ErrBucketNotEmpty, got %v", err)
	}
	manual, err := uc.CreateManualBucket()
	if err != nil {
		t.Fatalf("CreateManualBucket() error = %v", err)
	}
	if err := uc.ViewBucket(manual.ID); err != nil {
		t.Fatalf("ViewBucket() error = %v", err)
	}
	if err := uc.DeleteBucket(manual.ID); err != nil {
		t.Fatalf("DeleteBucket() error = %v", err)
	}
	if _, ok := uc.ViewedBucket(); ok {
		t.Fatalf("expected no viewed bucket after deleting it")
	}
}

func TestRegistryResetClearsViewedBucket(t *testing.T) {
	uc, reg, src, _ := newReorganizeForTest(t)

	if err := uc.SelectDocuments(src, []int{0}); err != nil {
		t.Fatalf("SelectDocuments() error = %v", err)
	}
	if err := reg.Reset([]domain.Subject{{Code: "CIT 417", Name: "CIT 417: Data Driven Websites"}}); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}

	if viewed, ok := uc.ViewedBucket(); ok {
		t.Fatalf("expected viewed bucket to be dropped after reset, got %s", viewed)
	}
	if id, sel := uc.Selection(); id != 0 || len(sel) != 0 {
		t.Fatalf("expected empty selection after reset, got bucket=%s indices=%v", id, sel)
	}
}
