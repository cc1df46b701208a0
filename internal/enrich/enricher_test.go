package enrich

import (
	"context"
	"errors"
	"testing"

	"github.com/MrSnakeDoc/sdsresolve/internal/domain"
)

type fakeFetcher struct {
	pages map[string]string
	calls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, u string) (string, error) {
	f.calls = append(f.calls, u)
	text, ok := f.pages[u]
	if !ok {
		return "", &domain.EnrichmentError{URL: u, Err: errors.New("http 404")}
	}
	return text, nil
}

func TestEnricher_RespectsPageBudget(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		"https://c.example": "Section 14: UN 1170",
	}}
	e := NewEnricher(f, 2, nil)

	res, fetched, err := e.Enrich(context.Background(), domain.FieldUNNumber,
		[]string{"https://a.example", "https://a.example", "https://b.example", "https://c.example"})
	if err != nil {
		t.Fatal(err)
	}
	if fetched != 2 || len(f.calls) != 2 {
		t.Errorf("expected 2 fetches, got %d (%v)", fetched, f.calls)
	}
	if res.Resolved() {
		t.Errorf("third page is over budget, got %+v", res)
	}
}

func TestEnricher_PatternStopsEarly(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		"https://a.example": "Transport: UN 1170, class 3",
		"https://b.example": "UN 1993",
	}}
	e := NewEnricher(f, 2, nil)

	res, fetched, err := e.Enrich(context.Background(), domain.FieldUNNumber,
		[]string{"https://a.example", "https://b.example"})
	if err != nil {
		t.Fatal(err)
	}
	if fetched != 1 {
		t.Errorf("expected early stop after a pattern match, fetched %d", fetched)
	}
	if res.Value != "1170" || res.Confidence != domain.ConfidencePageMatch || res.SourceURL != "https://a.example" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestEnricher_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := NewEnricher(&fakeFetcher{}, 2, nil)
	_, _, err := e.Enrich(ctx, domain.FieldUNNumber, []string{"https://a.example"})
	if !errors.Is(err, domain.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
}
