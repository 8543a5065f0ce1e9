package coupon

import (
	"context"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

const filterFPR = 0.001

// CodeFilter answers "does a coupon with this code possibly exist" without a
// database round trip. False positives fall through to the repository; false
// negatives never happen for codes passed to Reset or Add.
type CodeFilter struct {
	mu     sync.RWMutex
	filter *bloom.BloomFilter
}

// NewCodeFilter builds a filter sized for the given codes.
func NewCodeFilter(codes []string) *CodeFilter {
	f := &CodeFilter{}
	f.Reset(codes)
	return f
}

// Reset replaces the filter contents with codes.
func (f *CodeFilter) Reset(codes []string) {
	n := uint(len(codes))
	if n < 1024 {
		n = 1024
	}
	next := bloom.NewWithEstimates(n, filterFPR)
	for _, c := range codes {
		next.AddString(NormalizeCode(c))
	}

	f.mu.Lock()
	f.filter = next
	f.mu.Unlock()
}

// Add records a new code.
func (f *CodeFilter) Add(code string) {
	f.mu.Lock()
	f.filter.AddString(NormalizeCode(code))
	f.mu.Unlock()
}

// MayContain reports false only when code is certainly unknown.
func (f *CodeFilter) MayContain(code string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.filter.TestString(NormalizeCode(code))
}

// FilteredRepository short-circuits lookups of codes the filter rules out.
type FilteredRepository struct {
	Repository
	Filter *CodeFilter
}

func (r FilteredRepository) FindByCode(ctx context.Context, code string) (*Coupon, error) {
	if !r.Filter.MayContain(code) {
		return nil, ErrNotFound
	}
	return r.Repository.FindByCode(ctx, code)
}
