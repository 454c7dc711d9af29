package matcher

import (
	"bank-reconciliation-service/internal/models"
)

// Pool is the owned working set of internal records that are still available
// for matching. Records keep their input order; Take removes one by its
// current position without disturbing the order of the rest.
type Pool struct {
	records   []models.InternalRecord
	available []int
}

// NewPool copies the records into a new pool
func NewPool(records []models.InternalRecord) *Pool {
	p := &Pool{
		records:   make([]models.InternalRecord, len(records)),
		available: make([]int, len(records)),
	}
	copy(p.records, records)
	for i := range p.available {
		p.available[i] = i
	}
	return p
}

// Len returns the number of records still available
func (p *Pool) Len() int {
	return len(p.available)
}

// At returns the record at the given position in the current pool order
func (p *Pool) At(pos int) models.InternalRecord {
	return p.records[p.available[pos]]
}

// InputIndex returns the original input index of the record at pos
func (p *Pool) InputIndex(pos int) int {
	return p.available[pos]
}

// Take removes and returns the record at pos
func (p *Pool) Take(pos int) models.InternalRecord {
	rec := p.records[p.available[pos]]
	p.available = append(p.available[:pos], p.available[pos+1:]...)
	return rec
}

// Remaining returns the still-available records in pool order
func (p *Pool) Remaining() []models.InternalRecord {
	out := make([]models.InternalRecord, 0, len(p.available))
	for _, idx := range p.available {
		out = append(out, p.records[idx])
	}
	return out
}
