package store

import (
	"context"
	"testing"
	"time"
)

func TestAuditListFilteredFindsOlderEntries(t *testing.T) {
	db := setupStoreTestDB(t)
	ctx := context.Background()
	audits := NewAuditStore(db)
	if err := audits.Log(ctx, "alice@example.com", "user.create", "7|carol@example.com"); err != nil {
		t.Fatalf("log: %v", err)
	}
	for i := 0; i < 10; i++ {
		if err := audits.Log(ctx, "root@example.com", "auth.login", ""); err != nil {
			t.Fatalf("log: %v", err)
		}
	}
	items, err := audits.ListFiltered(ctx, AuditFilter{User: "Alice@Example.com", Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 || items[0].Action != "user.create" {
		t.Fatalf("expected the single alice entry, got %+v", items)
	}
	items, err = audits.ListFiltered(ctx, AuditFilter{Query: "carol", Limit: 1})
	if err != nil || len(items) != 1 {
		t.Fatalf("expected text match, got %+v %v", items, err)
	}
	items, err = audits.ListFiltered(ctx, AuditFilter{Section: "auth", Limit: 100})
	if err != nil || len(items) != 10 {
		t.Fatalf("expected 10 auth entries, got %d %v", len(items), err)
	}
}

func TestAuditListFilteredByTimeRange(t *testing.T) {
	db := setupStoreTestDB(t)
	ctx := context.Background()
	old := time.Now().UTC().Add(-48 * time.Hour)
	if _, err := db.ExecContext(ctx, `INSERT INTO audit_log(username, action, details, created_at) VALUES(?,?,?,?)`, "root@example.com", "user.delete", "", ts(old)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	audits := NewAuditStore(db)
	if err := audits.Log(ctx, "root@example.com", "user.update", ""); err != nil {
		t.Fatalf("log: %v", err)
	}
	recent, err := audits.ListFiltered(ctx, AuditFilter{Since: time.Now().Add(-time.Hour), Limit: 10})
	if err != nil || len(recent) != 1 || recent[0].Action != "user.update" {
		t.Fatalf("since filter: %+v %v", recent, err)
	}
	until := time.Now().Add(-24 * time.Hour)
	older, err := audits.ListFiltered(ctx, AuditFilter{Until: &until, Limit: 10})
	if err != nil || len(older) != 1 || older[0].Action != "user.delete" {
		t.Fatalf("until filter: %+v %v", older, err)
	}
}
