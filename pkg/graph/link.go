package graph

import (
	"strings"
	"time"

	apperrors "github.com/stellar-expert/relgraph/pkg/errors"
	"github.com/stellar-expert/relgraph/pkg/relations"
)

// RelationKind is a set of relation kinds for one direction of a link.
type RelationKind uint8

// Relation kinds, matching the low bits of the raw type mask.
const (
	KindCreator          RelationKind = 1 << iota // Source created the target account
	KindMergeDestination                          // Source was merged into the target
	KindPayments                                  // Source sent payments to the target
	KindReserved
)

const (
	kindMask      = 0xf
	backwardShift = 16
)

// SplitMask decodes a raw relation type mask into its forward and backward
// kind sets.
func SplitMask(mask uint32) (forward, backward RelationKind) {
	return RelationKind(mask & kindMask), RelationKind((mask >> backwardShift) & kindMask)
}

// Has reports whether all kinds in k are present.
func (r RelationKind) Has(k RelationKind) bool { return r&k == k && k != 0 }

// String returns a comma separated list of kind names, e.g. "creator,payments".
func (r RelationKind) String() string {
	var parts []string
	for _, k := range []RelationKind{KindCreator, KindMergeDestination, KindPayments, KindReserved} {
		if r&k != 0 {
			parts = append(parts, k.name())
		}
	}
	return strings.Join(parts, ",")
}

func (r RelationKind) name() string {
	switch r {
	case KindCreator:
		return "creator"
	case KindMergeDestination:
		return "merge"
	case KindPayments:
		return "payments"
	default:
		return "reserved"
	}
}

// Direction tells whether a relation follows or reverses its link.
type Direction byte

const (
	Forward  Direction = 'f'
	Backward Direction = 'b'
)

// Relation is one directed relation carried by a link.
type Relation struct {
	ID        string // Link id for forward relations, "r"+id for backward ones
	Source    *Node
	Target    *Node
	Kinds     RelationKind
	Transfers int64 // Payment count in this direction
	Direction Direction
}

// Link is a relation record between two accounts.
// Links are immutable once registered.
type Link struct {
	id        string
	source    *Node
	target    *Node
	cursor    string
	mask      uint32
	forward   RelationKind
	backward  RelationKind
	transfers [2]int64
	created   time.Time
}

func newLink(rec relations.Record, source, target *Node) *Link {
	forward, backward := SplitMask(rec.Type)
	return &Link{
		id:        rec.ID,
		source:    source,
		target:    target,
		cursor:    rec.PagingToken,
		mask:      rec.Type,
		forward:   forward,
		backward:  backward,
		transfers: [2]int64{rec.Transfers[0], rec.Transfers[1]},
		created:   rec.CreatedAt(),
	}
}

func (l *Link) ID() string { return l.id }

// matches reports an error if rec carries l's id for another account pair.
func (l *Link) matches(rec relations.Record) error {
	a, b := rec.Accounts[0], rec.Accounts[1]
	s, t := l.source.id, l.target.id
	if (a == s && b == t) || (a == t && b == s) {
		return nil
	}
	return apperrors.New(apperrors.ErrCodeInvalidRecord, "relation %s links %s and %s, already registered between %s and %s", rec.ID, a, b, s, t)
}

// Source returns the first account of the record.
func (l *Link) Source() *Node { return l.source }

// Target returns the second account of the record.
func (l *Link) Target() *Node { return l.target }

// Cursor returns the paging token at which the record was observed.
func (l *Link) Cursor() string { return l.cursor }

// Type returns the raw relation bitmask.
func (l *Link) Type() uint32 { return l.mask }

// Forward returns the relation kinds from source to target.
func (l *Link) Forward() RelationKind { return l.forward }

// Backward returns the relation kinds from target to source.
func (l *Link) Backward() RelationKind { return l.backward }

// Transfers returns the payment counts as [forward, backward].
func (l *Link) Transfers() [2]int64 { return l.transfers }

// Created returns the time the relation was first observed.
func (l *Link) Created() time.Time { return l.created }

// Other returns the endpoint opposite to n, or nil if n is not an endpoint.
func (l *Link) Other(n *Node) *Node {
	switch n {
	case l.source:
		return l.target
	case l.target:
		return l.source
	}
	return nil
}

// Relations splits the link into directed relations. A link yields a forward
// relation if any forward kind is set and a backward relation (with swapped
// endpoints) if any backward kind is set, so the result has zero, one or two
// entries.
func (l *Link) Relations() []Relation {
	rels := make([]Relation, 0, 2)
	if l.forward != 0 {
		rels = append(rels, Relation{
			ID:        l.id,
			Source:    l.source,
			Target:    l.target,
			Kinds:     l.forward,
			Transfers: l.transfers[0],
			Direction: Forward,
		})
	}
	if l.backward != 0 {
		rels = append(rels, Relation{
			ID:        "r" + l.id,
			Source:    l.target,
			Target:    l.source,
			Kinds:     l.backward,
			Transfers: l.transfers[1],
			Direction: Backward,
		})
	}
	return rels
}

func (l *Link) record() relations.Record {
	return relations.Record{
		ID:          l.id,
		PagingToken: l.cursor,
		Type:        l.mask,
		Transfers:   []int64{l.transfers[0], l.transfers[1]},
		Created:     l.created.Unix(),
		Accounts:    []string{l.source.id, l.target.id},
	}
}
