package app_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"forum-quiz-service/internal/app"
	"forum-quiz-service/internal/domain"
	"forum-quiz-service/internal/infra/memory"
)

// recordingTransport captures announcements for assertions.
type recordingTransport struct {
	mu   sync.Mutex
	msgs []string
}

func (t *recordingTransport) Send(_ context.Context, _, _ int64, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.msgs = append(t.msgs, text)
	return nil
}

func (t *recordingTransport) snapshot() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.msgs...)
}

func (t *recordingTransport) contains(substr string) bool {
	for _, msg := range t.snapshot() {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestService(questions []domain.Question, cfg app.Config) (*app.QuizService, *memory.Store, *recordingTransport) {
	store := memory.NewStore(questions)
	transport := &recordingTransport{}
	service := app.NewQuizService(store, store, transport, cfg, zerolog.Nop())
	return service, store, transport
}

func TestStartAnswerFinalize(t *testing.T) {
	ctx := context.Background()
	service, _, transport := newTestService(
		[]domain.Question{{ID: 1, Prompt: "Longest river in Africa?", Answer: "Nile"}},
		app.Config{QuestionTimeout: time.Minute, QuestionBreak: time.Minute, TotalQuestions: 1},
	)

	if _, err := service.StartQuiz(ctx, 1, 2); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !transport.contains("Question 1/1") {
		t.Fatalf("expected question announcement, got %v", transport.snapshot())
	}
	if !transport.contains("one word (4 letters)") {
		t.Fatalf("expected hint in announcement, got %v", transport.snapshot())
	}

	handled, err := service.SubmitAnswer(ctx, 1, 2, "alice", "Nile")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !handled {
		t.Fatal("expected answer to be handled")
	}
	if !transport.contains("Correct!") {
		t.Fatalf("expected correctness announcement, got %v", transport.snapshot())
	}
	if !transport.contains("1. alice: 1 pts") {
		t.Fatalf("expected scoreboard, got %v", transport.snapshot())
	}

	if err := service.StopQuiz(ctx, 1, 2); err != domain.ErrNoActiveQuiz {
		t.Fatalf("expected ErrNoActiveQuiz after finalize, got %v", err)
	}
}

func TestStartWhileActiveConflicts(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newTestService(
		[]domain.Question{{ID: 1, Prompt: "Q", Answer: "A"}},
		app.Config{QuestionTimeout: time.Minute, QuestionBreak: time.Minute, TotalQuestions: 5},
	)

	if _, err := service.StartQuiz(ctx, 1, 2); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := service.StartQuiz(ctx, 1, 2); err != domain.ErrQuizAlreadyActive {
		t.Fatalf("expected ErrQuizAlreadyActive, got %v", err)
	}
	if err := service.StopQuiz(ctx, 1, 2); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestSubmitWithoutOutstandingQuestion(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newTestService(
		[]domain.Question{{ID: 1, Prompt: "Q", Answer: "A"}},
		app.Config{QuestionTimeout: time.Minute, QuestionBreak: time.Minute, TotalQuestions: 1},
	)

	handled, err := service.SubmitAnswer(ctx, 1, 2, "alice", "hello there")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if handled {
		t.Fatal("expected handled=false with no active session")
	}
}

func TestWrongAnswerScoresNothing(t *testing.T) {
	ctx := context.Background()
	service, _, transport := newTestService(
		[]domain.Question{{ID: 1, Prompt: "Longest river in Africa?", Answer: "Nile"}},
		app.Config{QuestionTimeout: time.Minute, QuestionBreak: time.Minute, TotalQuestions: 1},
	)

	if _, err := service.StartQuiz(ctx, 1, 2); err != nil {
		t.Fatalf("start: %v", err)
	}
	handled, err := service.SubmitAnswer(ctx, 1, 2, "alice", "Amazon")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !handled {
		t.Fatal("expected wrong answer still handled (a question is outstanding)")
	}
	if transport.contains("Correct") {
		t.Fatalf("wrong answer must not be announced correct: %v", transport.snapshot())
	}
	if err := service.StopQuiz(ctx, 1, 2); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if transport.contains("pts") {
		t.Fatalf("expected empty scoreboard, got %v", transport.snapshot())
	}
}

func TestCloseMatchAnnounced(t *testing.T) {
	ctx := context.Background()
	service, _, transport := newTestService(
		[]domain.Question{{ID: 1, Prompt: "Longest river in Africa?", Answer: "Nile"}},
		app.Config{QuestionTimeout: time.Minute, QuestionBreak: time.Minute, TotalQuestions: 1},
	)

	if _, err := service.StartQuiz(ctx, 1, 2); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := service.SubmitAnswer(ctx, 1, 2, "bob", "Nils"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !transport.contains("Correct (almost exact!)") {
		t.Fatalf("expected close-match suffix, got %v", transport.snapshot())
	}
}

func TestTimeoutAdvancesToNextQuestion(t *testing.T) {
	ctx := context.Background()
	service, _, transport := newTestService(
		[]domain.Question{
			{ID: 1, Prompt: "Q1", Answer: "A1"},
			{ID: 2, Prompt: "Q2", Answer: "A2"},
		},
		app.Config{QuestionTimeout: 30 * time.Millisecond, QuestionBreak: 10 * time.Millisecond, TotalQuestions: 2},
	)

	if _, err := service.StartQuiz(ctx, 1, 2); err != nil {
		t.Fatalf("start: %v", err)
	}

	waitFor(t, "timeout announcement", func() bool { return transport.contains("Time's up!") })
	waitFor(t, "second question", func() bool { return transport.contains("Question 2/2") })
	waitFor(t, "final scoreboard", func() bool { return transport.contains("Quiz finished") })

	if err := service.StopQuiz(ctx, 1, 2); err != domain.ErrNoActiveQuiz {
		t.Fatalf("expected session finalized by second timeout, got %v", err)
	}
}

func TestStaleTimeoutIsNoop(t *testing.T) {
	ctx := context.Background()
	service, _, transport := newTestService(
		[]domain.Question{{ID: 1, Prompt: "Longest river in Africa?", Answer: "Nile"}},
		app.Config{QuestionTimeout: 40 * time.Millisecond, QuestionBreak: time.Minute, TotalQuestions: 1},
	)

	if _, err := service.StartQuiz(ctx, 1, 2); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := service.SubmitAnswer(ctx, 1, 2, "alice", "Nile"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Even if the timeout survived the cancellation race, the instance check
	// must keep it from announcing anything.
	time.Sleep(120 * time.Millisecond)
	if transport.contains("Time's up!") {
		t.Fatalf("stale timeout acted on an answered question: %v", transport.snapshot())
	}
}

func TestExhaustionFinalizesSession(t *testing.T) {
	ctx := context.Background()
	service, _, transport := newTestService(
		[]domain.Question{{ID: 1, Prompt: "Q1", Answer: "alpha"}},
		app.Config{QuestionTimeout: time.Minute, QuestionBreak: 10 * time.Millisecond, TotalQuestions: 5},
	)

	if _, err := service.StartQuiz(ctx, 1, 2); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := service.SubmitAnswer(ctx, 1, 2, "alice", "alpha"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	waitFor(t, "exhaustion notice", func() bool { return transport.contains("No questions left!") })
	waitFor(t, "final scoreboard", func() bool { return transport.contains("Quiz finished") })

	if err := service.StopQuiz(ctx, 1, 2); err != domain.ErrNoActiveQuiz {
		t.Fatalf("expected finalized session, got %v", err)
	}
}

func TestStopCancelsPendingQuestion(t *testing.T) {
	ctx := context.Background()
	service, store, transport := newTestService(
		[]domain.Question{
			{ID: 1, Prompt: "Q1", Answer: "A1"},
			{ID: 2, Prompt: "Q2", Answer: "A2"},
		},
		app.Config{QuestionTimeout: 30 * time.Millisecond, QuestionBreak: time.Minute, TotalQuestions: 2},
	)

	if _, err := service.StartQuiz(ctx, 1, 2); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := service.StopQuiz(ctx, 1, 2); err != nil {
		t.Fatalf("stop: %v", err)
	}

	session, err := store.FindActiveSession(ctx, 1, 2)
	if err != nil {
		t.Fatalf("find active: %v", err)
	}
	if session != nil {
		t.Fatalf("expected no active session after stop, got %+v", session)
	}

	// The armed timeout lost its session; it must stay silent.
	time.Sleep(100 * time.Millisecond)
	if transport.contains("Time's up!") {
		t.Fatalf("timer fired after stop: %v", transport.snapshot())
	}
}

func TestResetUsedQuestions(t *testing.T) {
	ctx := context.Background()
	service, store, _ := newTestService(
		[]domain.Question{{ID: 1, Prompt: "Q1", Answer: "A1"}},
		app.Config{QuestionTimeout: time.Minute, QuestionBreak: time.Minute, TotalQuestions: 1},
	)

	if _, err := service.StartQuiz(ctx, 1, 2); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := service.StopQuiz(ctx, 1, 2); err != nil {
		t.Fatalf("stop: %v", err)
	}

	count, err := service.ResetUsedQuestions(ctx, 1)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 mark removed, got %d", count)
	}

	ids, err := store.UsedQuestionIDs(ctx, 1)
	if err != nil {
		t.Fatalf("used ids: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected no marks after reset, got %v", ids)
	}
}
