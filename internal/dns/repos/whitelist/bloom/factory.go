package bloom

import (
	bitsbloom "github.com/bits-and-blooms/bloom/v3"

	"github.com/haukened/exfil-watch/internal/dns/repos/whitelist"
)

// factory implements whitelist.BloomFactory using internal sizing formulas.
type factory struct {
	sizer whitelist.BloomSizer
}

// NewFactory returns a BloomFactory that sizes filters from capacity and FP rate.
func NewFactory() whitelist.BloomFactory { return factory{sizer: NewSizer()} }

// New constructs a filter sized for the given capacity and false-positive rate.
func (f factory) New(capacity uint64, fpRate float64) whitelist.BloomFilter {
	m, k := f.sizer.Size(capacity, fpRate)
	return &filter{bf: bitsbloom.New(uint(m), uint(k))}
}
