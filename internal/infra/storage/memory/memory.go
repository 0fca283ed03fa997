package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/vietddude/txgate/internal/infra/storage"
)

// Journal keeps submission records in process memory.
type Journal struct {
	mu      sync.RWMutex
	records []*storage.SubmissionRecord
	byID    map[string]*storage.SubmissionRecord
}

var _ storage.SubmissionJournal = (*Journal)(nil)

func NewJournal() *Journal {
	return &Journal{
		byID: make(map[string]*storage.SubmissionRecord),
	}
}

func (j *Journal) Append(ctx context.Context, rec *storage.SubmissionRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, exists := j.byID[rec.AttemptID]; exists {
		return fmt.Errorf("attempt %s already recorded", rec.AttemptID)
	}
	cp := *rec
	j.records = append(j.records, &cp)
	j.byID[rec.AttemptID] = &cp
	return nil
}

func (j *Journal) Get(ctx context.Context, attemptID string) (*storage.SubmissionRecord, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	rec, ok := j.byID[attemptID]
	if !ok {
		return nil, storage.ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

func (j *Journal) BySignature(ctx context.Context, signature string) ([]*storage.SubmissionRecord, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var out []*storage.SubmissionRecord
	for _, rec := range j.records {
		if rec.Signature == signature {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (j *Journal) Recent(ctx context.Context, limit int) ([]*storage.SubmissionRecord, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	n := min(limit, len(j.records))
	if limit <= 0 {
		n = len(j.records)
	}
	out := make([]*storage.SubmissionRecord, 0, n)
	for _, rec := range slices.Backward(j.records) {
		if len(out) == n {
			break
		}
		cp := *rec
		out = append(out, &cp)
	}
	return out, nil
}
