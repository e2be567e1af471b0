package core

import (
	"context"
	"strings"
)

type (
	// Transactor runs fn as a single atomic unit of work on the credential store.
	// Repository calls made with the ctx handed to fn join the same transaction;
	// any error returned by fn rolls everything back. Nested calls join the outer transaction.
	Transactor interface {
		WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
	}

	// Store is the credential store collaborator with an explicit lifecycle.
	Store interface {
		Transactor
		Close() error
	}
)

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// FilterOrderings keeps the orderings whose Field is a key of allowed, renamed to the mapped column.
func FilterOrderings(orderings []DBOrdering, allowed map[string]string) []DBOrdering {
	filtered := make([]DBOrdering, 0, len(orderings))
	for _, ord := range orderings {
		if col, ok := allowed[strings.TrimSpace(ord.Field)]; ok {
			filtered = append(filtered, DBOrdering{Field: col, Ascending: ord.Ascending})
		}
	}
	return filtered
}
