package app_test

import (
	"context"
	"testing"

	"forum-quiz-service/internal/app"
	"forum-quiz-service/internal/domain"
	"forum-quiz-service/internal/infra/memory"
)

func newSelectorFixture() (*app.QuestionSelector, *memory.Store) {
	store := memory.NewStore([]domain.Question{
		{ID: 1, Prompt: "Q1", Answer: "A1"},
		{ID: 2, Prompt: "Q2", Answer: "A2"},
		{ID: 3, Prompt: "Q3", Answer: "A3"},
	})
	return app.NewQuestionSelector(store, store), store
}

func TestNextSkipsExcludedAndUsed(t *testing.T) {
	ctx := context.Background()
	selector, store := newSelectorFixture()

	if err := store.RecordUsedMark(ctx, 7, 1); err != nil {
		t.Fatalf("record mark: %v", err)
	}

	for i := 0; i < 20; i++ {
		q, err := selector.Next(ctx, 7, []int64{2})
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if q == nil {
			t.Fatal("expected a question, got none")
		}
		if q.ID != 3 {
			t.Fatalf("expected only question 3 selectable, got %d", q.ID)
		}
	}
}

func TestNextReturnsNilWhenExhausted(t *testing.T) {
	ctx := context.Background()
	selector, store := newSelectorFixture()

	for _, id := range []int64{1, 2} {
		if err := store.RecordUsedMark(ctx, 7, id); err != nil {
			t.Fatalf("record mark: %v", err)
		}
	}

	q, err := selector.Next(ctx, 7, []int64{3})
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if q != nil {
		t.Fatalf("expected exhaustion, got question %d", q.ID)
	}
}

func TestUsedMarksAreConversationScoped(t *testing.T) {
	ctx := context.Background()
	selector, store := newSelectorFixture()

	for _, id := range []int64{1, 2, 3} {
		if err := store.RecordUsedMark(ctx, 7, id); err != nil {
			t.Fatalf("record mark: %v", err)
		}
	}

	q, err := selector.Next(ctx, 8, nil)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if q == nil {
		t.Fatal("marks for one conversation must not affect another")
	}
}

func TestResetMakesUsedQuestionsSelectableAgain(t *testing.T) {
	ctx := context.Background()
	selector, store := newSelectorFixture()

	// Use everything up, reset, then mark one question used after the reset.
	for _, id := range []int64{1, 2, 3} {
		if err := store.RecordUsedMark(ctx, 7, id); err != nil {
			t.Fatalf("record mark: %v", err)
		}
	}
	removed, err := store.DeleteUsedMarks(ctx, 7)
	if err != nil {
		t.Fatalf("delete marks: %v", err)
	}
	if removed != 3 {
		t.Fatalf("expected 3 marks removed, got %d", removed)
	}
	if err := store.RecordUsedMark(ctx, 7, 2); err != nil {
		t.Fatalf("record mark: %v", err)
	}

	// Pre-reset questions may come back; the post-reset mark may not.
	seen := make(map[int64]bool)
	for i := 0; i < 50; i++ {
		q, err := selector.Next(ctx, 7, nil)
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if q == nil {
			t.Fatal("expected questions after reset")
		}
		if q.ID == 2 {
			t.Fatal("question marked used after reset was selected")
		}
		seen[q.ID] = true
	}
	if !seen[1] && !seen[3] {
		t.Fatal("expected pre-reset questions to be selectable again")
	}
}
