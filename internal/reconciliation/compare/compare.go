// Package compare finds divergences between two service-order record sets.
// It performs no I/O.
package compare

import (
	"ordersync_backend/internal/serviceorders/domain"

	"golang.org/x/sync/errgroup"
)

// Reason says why an order diverges.
type Reason string

const (
	ReasonMissingInB     Reason = "missing_in_b"
	ReasonMissingInA     Reason = "missing_in_a"
	ReasonStatusMismatch Reason = "status_mismatch"
)

// Valid reports whether r is a known reason.
func (r Reason) Valid() bool {
	switch r {
	case ReasonMissingInB, ReasonMissingInA, ReasonStatusMismatch:
		return true
	}
	return false
}

// Divergence is one order that is present in only one source, or present in
// both with a different status. Statuses are the originals, not normalized;
// the side the order is missing from is nil.
type Divergence struct {
	OrderNumber   string
	StatusSourceA *string
	StatusSourceB *string
	Reason        Reason
}

// Options tunes a comparison.
type Options struct {
	// Symmetric also reports orders present in B but absent from A.
	Symmetric bool
	// Shards > 1 splits A into contiguous chunks compared concurrently.
	Shards int
}

// Result holds the divergences in report order: A's order for MissingInB and
// StatusMismatch, followed by B's order for MissingInA.
type Result struct {
	Divergences []Divergence
	TotalA      int
	TotalB      int
}

// Missing returns the MissingInB divergences.
func (r Result) Missing() []Divergence { return r.filter(ReasonMissingInB) }

// StatusMismatches returns the StatusMismatch divergences.
func (r Result) StatusMismatches() []Divergence { return r.filter(ReasonStatusMismatch) }

// MissingInA returns the MissingInA divergences; empty unless Symmetric was set.
func (r Result) MissingInA() []Divergence { return r.filter(ReasonMissingInA) }

// Counts tallies divergences by reason.
func (r Result) Counts() map[Reason]int {
	counts := make(map[Reason]int, 3)
	for _, d := range r.Divergences {
		counts[d.Reason]++
	}
	return counts
}

func (r Result) filter(reason Reason) []Divergence {
	out := make([]Divergence, 0)
	for _, d := range r.Divergences {
		if d.Reason == reason {
			out = append(out, d)
		}
	}
	return out
}

// Compare checks every order of A against B by normalized order number.
// B is indexed first; when B repeats a key the last record wins. Orders with
// a blank number have no key and are ignored on both sides.
func Compare(a, b []domain.ServiceOrder, opts Options) Result {
	index := make(map[string]domain.ServiceOrder, len(b))
	for _, rec := range b {
		if key := rec.Key(); key != "" {
			index[key] = rec
		}
	}

	divergences := scan(a, index, opts.Shards)

	if opts.Symmetric {
		inA := make(map[string]struct{}, len(a))
		for _, rec := range a {
			inA[rec.Key()] = struct{}{}
		}
		reported := make(map[string]struct{})
		for _, rec := range b {
			key := rec.Key()
			if key == "" {
				continue
			}
			if _, ok := inA[key]; ok {
				continue
			}
			if _, dup := reported[key]; dup {
				continue
			}
			reported[key] = struct{}{}
			last := index[key]
			divergences = append(divergences, Divergence{
				OrderNumber:   last.OrderNumber,
				StatusSourceB: strPtr(last.Status),
				Reason:        ReasonMissingInA,
			})
		}
	}

	return Result{Divergences: divergences, TotalA: len(a), TotalB: len(b)}
}

func scan(a []domain.ServiceOrder, index map[string]domain.ServiceOrder, shards int) []Divergence {
	if shards <= 1 || len(a) < shards {
		return scanChunk(a, index)
	}

	size := (len(a) + shards - 1) / shards
	parts := make([][]Divergence, shards)

	var g errgroup.Group
	for i := 0; i < shards; i++ {
		start := i * size
		if start >= len(a) {
			break
		}
		end := start + size
		if end > len(a) {
			end = len(a)
		}
		i, chunk := i, a[start:end]
		g.Go(func() error {
			parts[i] = scanChunk(chunk, index)
			return nil
		})
	}
	_ = g.Wait()

	total := 0
	for _, p := range parts {
		total += len(p)
	}
	out := make([]Divergence, 0, total)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func scanChunk(a []domain.ServiceOrder, index map[string]domain.ServiceOrder) []Divergence {
	var out []Divergence
	for _, rec := range a {
		key := rec.Key()
		if key == "" {
			continue
		}
		other, ok := index[key]
		switch {
		case !ok:
			out = append(out, Divergence{
				OrderNumber:   rec.OrderNumber,
				StatusSourceA: strPtr(rec.Status),
				Reason:        ReasonMissingInB,
			})
		case !domain.SameStatus(rec.Status, other.Status):
			out = append(out, Divergence{
				OrderNumber:   rec.OrderNumber,
				StatusSourceA: strPtr(rec.Status),
				StatusSourceB: strPtr(other.Status),
				Reason:        ReasonStatusMismatch,
			})
		}
	}
	return out
}

func strPtr(s string) *string { return &s }
