// Package storage defines the persistence interface and its
// implementations. Every write uses insert-or-ignore semantics so a
// restarted process can replay work idempotently.
package storage

import (
	"context"

	"github.com/tkclough/salescrawler/internal/model"
	"github.com/tkclough/salescrawler/internal/rule"
)

// Storage is the interface for all persistence operations. The insert
// methods report whether a row was newly written; false means the row
// already existed.
type Storage interface {
	InsertListing(ctx context.Context, l *model.Listing) (bool, error)
	InsertParsedTitle(ctx context.Context, t *model.ParsedTitle) (bool, error)
	InsertRule(ctx context.Context, r *rule.Rule) (bool, error)
	InsertRuleMatch(ctx context.Context, ruleID, postID string) (bool, error)

	Close() error
}
