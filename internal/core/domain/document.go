package domain

import "strconv"

// BucketID is a stable arena key. The zero value never names a bucket.
type BucketID uint64

func (id BucketID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

func ParseBucketID(raw string) (BucketID, error) {
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || n == 0 {
		return 0, WrapError(ErrInvalidInput, "parse bucket id", strconv.ErrSyntax)
	}
	return BucketID(n), nil
}

// Document is one scanned page. ImageRef is owned by the acquisition side;
// the engine never reads image bytes through it.
type Document struct {
	ID          string `json:"id"`
	ImageRef    string `json:"image_ref"`
	DisplayName string `json:"display_name"`
	// Year is the sort key. Zero means unknown.
	Year int `json:"year"`
	// YearAssumed marks a Year filled from the cohort default rather than detected in text.
	YearAssumed bool `json:"year_assumed,omitempty"`
}

type Bucket struct {
	ID          BucketID   `json:"id"`
	Code        string     `json:"code"`
	DisplayName string     `json:"display_name"`
	Documents   []Document `json:"documents"`
}

// Subject seeds a bucket before any document is classified.
type Subject struct {
	Code string `json:"code" yaml:"code"`
	Name string `json:"name" yaml:"name"`
}

type Snapshot struct {
	Buckets []Bucket `json:"buckets"`
}

func (s Snapshot) TotalDocuments() int {
	total := 0
	for _, b := range s.Buckets {
		total += len(b.Documents)
	}
	return total
}

func (s Snapshot) Find(id BucketID) (Bucket, bool) {
	for _, b := range s.Buckets {
		if b.ID == id {
			return b, true
		}
	}
	return Bucket{}, false
}
