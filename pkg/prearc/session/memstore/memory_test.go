package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vuiis/prearc/pkg/prearc/internalerr"
	"github.com/vuiis/prearc/pkg/prearc/session"
)

func sampleSession(project, studyTag string) session.Data {
	return session.Data{
		Project:     project,
		FolderName:  "Sess01",
		Name:        "Sess01",
		Timestamp:   session.MakeTimestamp(),
		StudyTag:    studyTag,
		Status:      session.StatusReceiving,
		LastBuiltAt: time.Now(),
	}
}

func TestGetOrCreate(t *testing.T) {
	ctx := context.Background()
	s := New()

	first := sampleSession("ABC", "1.2.3")
	res, err := s.GetOrCreate(ctx, first)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if !res.Created {
		t.Fatal("first call did not create")
	}

	// second object for the same study must land in the same session, and the
	// stored row wins over the new initial values
	second := sampleSession("ABC", "1.2.3")
	second.FolderName = "Other"
	res, err = s.GetOrCreate(ctx, second)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if res.Created {
		t.Fatal("second call created a duplicate")
	}
	if res.Session.FolderName != "Sess01" {
		t.Errorf("existing branch returned %q, want stored folder", res.Session.FolderName)
	}

	// same study tag in another project is a different session
	res, err = s.GetOrCreate(ctx, sampleSession("XYZ", "1.2.3"))
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if !res.Created {
		t.Error("distinct project reused another project's session")
	}
}

func TestTouchLastBuiltDebounce(t *testing.T) {
	ctx := context.Background()
	s := New()

	base := time.Now()
	s.Now = func() time.Time { return base }

	sess := sampleSession("ABC", "1.2.3")
	sess.LastBuiltAt = base
	if _, err := s.GetOrCreate(ctx, sess); err != nil {
		t.Fatal(err)
	}

	// inside the interval: no refresh
	s.Now = func() time.Time { return base.Add(5 * time.Second) }
	if err := s.TouchLastBuilt(ctx, sess); err != nil {
		t.Fatalf("TouchLastBuilt: %v", err)
	}
	got, _, err := s.Get(ctx, sess.Key())
	if err != nil {
		t.Fatal(err)
	}
	if !got.LastBuiltAt.Equal(base) {
		t.Errorf("timestamp refreshed inside debounce interval: %v", got.LastBuiltAt)
	}

	// past the interval: refresh
	later := base.Add(session.TouchInterval + time.Second)
	s.Now = func() time.Time { return later }
	if err := s.TouchLastBuilt(ctx, sess); err != nil {
		t.Fatalf("TouchLastBuilt: %v", err)
	}
	got, _, err = s.Get(ctx, sess.Key())
	if err != nil {
		t.Fatal(err)
	}
	if !got.LastBuiltAt.Equal(later) {
		t.Errorf("timestamp = %v, want %v", got.LastBuiltAt, later)
	}
}

func TestTouchLastBuiltMissing(t *testing.T) {
	s := New()
	err := s.TouchLastBuilt(context.Background(), sampleSession("ABC", "1.2.3"))
	if !errors.Is(err, internalerr.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s := New()

	sess := sampleSession("ABC", "1.2.3")
	if _, err := s.GetOrCreate(ctx, sess); err != nil {
		t.Fatal(err)
	}

	if err := s.Delete(ctx, sess.FolderName, sess.Timestamp, sess.Project); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, found, _ := s.Get(ctx, sess.Key()); found {
		t.Error("session still present after delete")
	}
	err := s.Delete(ctx, sess.FolderName, sess.Timestamp, sess.Project)
	if !errors.Is(err, internalerr.ErrNotFound) {
		t.Errorf("second delete = %v, want ErrNotFound", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := New()

	for _, tag := range []string{"1.1", "1.2", "1.3"} {
		if _, err := s.GetOrCreate(ctx, sampleSession("ABC", tag)); err != nil {
			t.Fatal(err)
		}
	}

	out, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("len = %d", len(out))
	}
	for i := 1; i < len(out); i++ {
		if out[i-1].Timestamp < out[i].Timestamp {
			t.Errorf("list not newest-first at %d: %s < %s", i, out[i-1].Timestamp, out[i].Timestamp)
		}
	}
}
