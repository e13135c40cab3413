package storage

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tkclough/salescrawler/internal/model"
	"github.com/tkclough/salescrawler/internal/rule"
)

func newTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func strPtr(s string) *string { return &s }

func sampleListing() *model.Listing {
	return &model.Listing{
		ID:            "1bcd100",
		CreatedUTC:    1724131200.0,
		Downs:         0.0,
		Ups:           12.0,
		LinkFlairText: strPtr("GPU"),
		Title:         "[GPU] ASUS RTX 4070 Ti $799.99",
		URL:           "https://example.com/sale",
	}
}

func TestInsertListing(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	l := sampleListing()

	inserted, err := s.InsertListing(ctx, l)
	if err != nil {
		t.Fatalf("insert listing: %v", err)
	}
	if !inserted {
		t.Error("first insert should report a new row")
	}

	inserted, err = s.InsertListing(ctx, l)
	if err != nil {
		t.Fatalf("insert duplicate listing: %v", err)
	}
	if inserted {
		t.Error("duplicate insert should report an existing row")
	}
}

func TestInsertListingNilFlair(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	l := sampleListing()
	l.LinkFlairText = nil

	if _, err := s.InsertListing(ctx, l); err != nil {
		t.Fatalf("insert listing without flair: %v", err)
	}
}

func TestInsertParsedTitle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	pt := &model.ParsedTitle{
		PostID:       "1bcd100",
		ProductType:  "GPU",
		Description:  "ASUS RTX 4070 Ti",
		PriceDollars: 799,
		PriceCents:   99,
		ExtraDetails: strPtr("FS"),
	}

	inserted, err := s.InsertParsedTitle(ctx, pt)
	if err != nil {
		t.Fatalf("insert parsed title: %v", err)
	}
	if !inserted {
		t.Error("first insert should report a new row")
	}

	inserted, err = s.InsertParsedTitle(ctx, pt)
	if err != nil {
		t.Fatalf("insert duplicate parsed title: %v", err)
	}
	if inserted {
		t.Error("duplicate insert should report an existing row")
	}
}

func TestInsertRule(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	set, err := rule.Parse([]byte(`[{"name": "r", "description_pattern": "nvidia", "price_max": 500}]`))
	if err != nil {
		t.Fatalf("parse rules: %v", err)
	}
	r := &set.Rules()[0]

	inserted, err := s.InsertRule(ctx, r)
	if err != nil {
		t.Fatalf("insert rule: %v", err)
	}
	if !inserted {
		t.Error("first insert should report a new row")
	}

	// Same semantic rule spelled differently must hit the same row.
	set2, err := rule.Parse([]byte(`[{"name": "r", "description_pattern": "  \"nvidia\"  ", "price_max": 500}]`))
	if err != nil {
		t.Fatalf("parse reformatted rules: %v", err)
	}
	inserted, err = s.InsertRule(ctx, &set2.Rules()[0])
	if err != nil {
		t.Fatalf("insert reformatted rule: %v", err)
	}
	if inserted {
		t.Error("reformatted rule should be a duplicate by fingerprint")
	}
}

func TestInsertRuleMatch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	inserted, err := s.InsertRuleMatch(ctx, "fingerprint-1", "1bcd100")
	if err != nil {
		t.Fatalf("insert rule match: %v", err)
	}
	if !inserted {
		t.Error("first insert should report a new row")
	}

	inserted, err = s.InsertRuleMatch(ctx, "fingerprint-1", "1bcd100")
	if err != nil {
		t.Fatalf("insert duplicate rule match: %v", err)
	}
	if inserted {
		t.Error("duplicate insert should report an existing row")
	}

	// Different rule for the same post is a distinct match record.
	inserted, err = s.InsertRuleMatch(ctx, "fingerprint-2", "1bcd100")
	if err != nil {
		t.Fatalf("insert second rule match: %v", err)
	}
	if diff := cmp.Diff(true, inserted); diff != "" {
		t.Errorf("insert mismatch (-want +got):\n%s", diff)
	}
}
