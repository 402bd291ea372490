package store

import (
	"context"
	"errors"
	"testing"
)

func TestLinkCreate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Put(ctx, PutParams{NS: "lab", Name: "generic", Source: armModel(t, "W")})
	s.Put(ctx, PutParams{NS: "lab", Name: "subject-01", Source: armModel(t, "W")})

	link, err := s.Link(ctx, LinkParams{
		FromNS: "lab", FromName: "subject-01",
		ToNS: "lab", ToName: "generic",
		Rel: "derived_from",
	})
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	if link.Rel != "derived_from" {
		t.Errorf("expected derived_from, got %s", link.Rel)
	}

	links, err := s.GetLinks(ctx, link.ToID)
	if err != nil {
		t.Fatalf("get links: %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("expected 1 link, got %d", len(links))
	}

	// Linking twice is a no-op
	s.Link(ctx, LinkParams{FromNS: "lab", FromName: "subject-01", ToNS: "lab", ToName: "generic", Rel: "derived_from"})
	if links, _ := s.GetLinks(ctx, link.FromID); len(links) != 1 {
		t.Errorf("expected 1 link after relinking, got %d", len(links))
	}
}

func TestLinkRemove(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Put(ctx, PutParams{NS: "lab", Name: "a", Source: armModel(t, "W")})
	s.Put(ctx, PutParams{NS: "lab", Name: "b", Source: armModel(t, "W")})

	link, _ := s.Link(ctx, LinkParams{
		FromNS: "lab", FromName: "a",
		ToNS: "lab", ToName: "b",
		Rel: "depends_on",
	})

	_, err := s.Link(ctx, LinkParams{
		FromNS: "lab", FromName: "a",
		ToNS: "lab", ToName: "b",
		Rel: "depends_on", Remove: true,
	})
	if err != nil {
		t.Fatalf("remove link: %v", err)
	}

	links, _ := s.GetLinks(ctx, link.FromID)
	if len(links) != 0 {
		t.Errorf("expected 0 links after remove, got %d", len(links))
	}
}

func TestLinkErrors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Put(ctx, PutParams{NS: "lab", Name: "a", Source: armModel(t, "W")})
	s.Put(ctx, PutParams{NS: "lab", Name: "b", Source: armModel(t, "W")})

	if _, err := s.Link(ctx, LinkParams{FromNS: "lab", FromName: "a", ToNS: "lab", ToName: "b", Rel: "relates_to"}); err == nil {
		t.Error("expected error for invalid relation")
	}
	if _, err := s.Link(ctx, LinkParams{FromNS: "lab", FromName: "a", ToNS: "lab", ToName: "missing", Rel: "refines"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing target, got %v", err)
	}
	if _, err := s.Link(ctx, LinkParams{FromNS: "lab", FromName: "a", ToNS: "lab", ToName: "a", Rel: "refines"}); err == nil {
		t.Error("expected error linking a record to itself")
	}
}
