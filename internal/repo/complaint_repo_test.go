package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-complaint-triage/internal/domain"
)

func sampleInput(text string) NewComplaint {
	return NewComplaint{
		Text: text,
		Analysis: domain.Analysis{
			Category:      domain.CategoryShipping,
			Urgency:       domain.UrgencyHigh,
			PriorityScore: 8,
			Reasoning:     "late delivery",
		},
	}
}

func TestCreateComplaint_AssignsIdentityAndStatus(t *testing.T) {
	db := newTestDB(t, &domain.Complaint{})
	email := "a@b.com"
	in := sampleInput("My order is 2 weeks late")
	in.UserEmail = &email

	before := time.Now().UTC().Add(-time.Second)
	c, err := CreateComplaint(context.Background(), db, in)
	if err != nil {
		t.Fatalf("CreateComplaint: %v", err)
	}
	if c.ID == "" || c.Status != domain.StatusNew {
		t.Fatalf("unexpected identity/status: %+v", c)
	}
	if c.CreatedAt.Before(before) || c.CreatedAt.Location() != time.UTC {
		t.Fatalf("unexpected CreatedAt: %v", c.CreatedAt)
	}
	if c.Category != domain.CategoryShipping || c.Urgency != domain.UrgencyHigh || c.PriorityScore != 8 {
		t.Fatalf("analysis not copied: %+v", c)
	}

	got, err := GetComplaint(context.Background(), db, c.ID)
	if err != nil {
		t.Fatalf("GetComplaint: %v", err)
	}
	if got.ComplaintText != "My order is 2 weeks late" || got.UserEmail == nil || *got.UserEmail != email {
		t.Fatalf("unexpected readback: %+v", got)
	}
}

func TestCreateComplaint_DuplicateTextYieldsDistinctRows(t *testing.T) {
	db := newTestDB(t, &domain.Complaint{})
	a, err := CreateComplaint(context.Background(), db, sampleInput("same"))
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	b, err := CreateComplaint(context.Background(), db, sampleInput("same"))
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if a.ID == b.ID {
		t.Fatalf("expected distinct ids, both %q", a.ID)
	}
	n, err := CountComplaints(context.Background(), db)
	if err != nil || n != 2 {
		t.Fatalf("CountComplaints = %d, %v; want 2", n, err)
	}
}

func TestCreateComplaint_Error_NoTable(t *testing.T) {
	db := newTestDB(t)
	if _, err := CreateComplaint(context.Background(), db, sampleInput("x")); err == nil {
		t.Fatalf("expected error when table is missing")
	}
}

func TestCreateComplaint_RejectsOutOfRangePriority(t *testing.T) {
	db := newTestDB(t, &domain.Complaint{})
	in := sampleInput("x")
	in.Analysis.PriorityScore = 11
	if _, err := CreateComplaint(context.Background(), db, in); err == nil {
		t.Fatalf("expected CHECK violation")
	}
	if n, _ := CountComplaints(context.Background(), db); n != 0 {
		t.Fatalf("no row should persist on failure, got %d", n)
	}
}

func TestListComplaints_NewestFirst(t *testing.T) {
	db := newTestDB(t, &domain.Complaint{})

	empty, err := ListComplaints(context.Background(), db)
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil slice, got %v, %v", empty, err)
	}

	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	seedComplaint(t, db, "old", base)
	seedComplaint(t, db, "new", base.Add(2*time.Hour))
	seedComplaint(t, db, "mid", base.Add(time.Hour))

	out, err := ListComplaints(context.Background(), db)
	if err != nil {
		t.Fatalf("ListComplaints: %v", err)
	}
	want := []string{"new", "mid", "old"}
	if len(out) != len(want) {
		t.Fatalf("len = %d; want %d", len(out), len(want))
	}
	for i, id := range want {
		if out[i].ID != id {
			t.Fatalf("out[%d].ID = %q; want %q", i, out[i].ID, id)
		}
	}
}

func TestListComplaintsPage_CursorWalk(t *testing.T) {
	db := newTestDB(t, &domain.Complaint{})
	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	// Two rows share a timestamp; the id tiebreak orders them.
	seedComplaint(t, db, "a", base)
	seedComplaint(t, db, "b", base.Add(time.Minute))
	seedComplaint(t, db, "c", base.Add(time.Minute))
	seedComplaint(t, db, "d", base.Add(2*time.Minute))

	var seen []string
	var after *Cursor
	for i := 0; i < 10; i++ {
		page, err := ListComplaintsPage(context.Background(), db, after, 3)
		if err != nil {
			t.Fatalf("page %d: %v", i, err)
		}
		if len(page) == 0 {
			break
		}
		for _, c := range page {
			seen = append(seen, c.ID)
		}
		tok := CursorOf(page[len(page)-1]).Encode()
		cur, err := DecodeCursor(tok)
		if err != nil {
			t.Fatalf("DecodeCursor: %v", err)
		}
		after = &cur
	}
	want := []string{"d", "c", "b", "a"}
	if len(seen) != len(want) {
		t.Fatalf("seen %v; want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("seen %v; want %v", seen, want)
		}
	}
}

func TestListComplaintsPage_NoLimit(t *testing.T) {
	db := newTestDB(t, &domain.Complaint{})
	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		seedComplaint(t, db, id, base.Add(time.Duration(i)*time.Second))
	}
	out, err := ListComplaintsPage(context.Background(), db, nil, 0)
	if err != nil || len(out) != 3 {
		t.Fatalf("got %d rows, err=%v; want 3", len(out), err)
	}
}

func TestCursor_EncodeDecode(t *testing.T) {
	at := time.Date(2025, 6, 7, 8, 9, 10, 123456000, time.UTC)
	c := Cursor{CreatedAt: at, ID: "2b0c-uuid"}
	got, err := DecodeCursor(c.Encode())
	if err != nil {
		t.Fatalf("DecodeCursor: %v", err)
	}
	if !got.CreatedAt.Equal(at) || got.ID != c.ID {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, c)
	}

	for _, bad := range []string{"%%%", "", "bm9jb2xvbg", "YWJjOmlk"} {
		if _, err := DecodeCursor(bad); !errors.Is(err, ErrBadCursor) {
			t.Fatalf("DecodeCursor(%q) err = %v; want ErrBadCursor", bad, err)
		}
	}
}

func TestGetComplaint_NotFound(t *testing.T) {
	db := newTestDB(t, &domain.Complaint{})
	if _, err := GetComplaint(context.Background(), db, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
