package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"forum-quiz-service/internal/domain"
)

// Store abstracts durable state: questions, sessions, and per-conversation
// used-question marks (in-memory, Postgres, etc). Each call is assumed atomic
// and consistent at read time.
type Store interface {
	GetQuestion(ctx context.Context, id int64) (domain.Question, error)
	UsedQuestionIDs(ctx context.Context, conversationID int64) ([]int64, error)
	RecordUsedMark(ctx context.Context, conversationID, questionID int64) error
	DeleteUsedMarks(ctx context.Context, conversationID int64) (int64, error)
	CreateSession(ctx context.Context, conversationID, topicID int64, totalQuestions int) (*domain.Session, error)
	SaveSession(ctx context.Context, session *domain.Session) error
	// FindActiveSession returns nil when the topic has no active session.
	FindActiveSession(ctx context.Context, conversationID, topicID int64) (*domain.Session, error)
}

// QuestionSource lists the question bank (from cache/backing store).
type QuestionSource interface {
	ListQuestions(ctx context.Context) ([]domain.Question, error)
}

// Transport sends text into a conversation topic. Delivery is best-effort
// from the engine's point of view; failures are logged and never abort a
// quiz step.
type Transport interface {
	Send(ctx context.Context, conversationID, topicID int64, text string) error
}

// Config carries the engine's tunables, supplied at startup.
type Config struct {
	QuestionTimeout time.Duration
	QuestionBreak   time.Duration
	TotalQuestions  int
}

// QuizService runs timed trivia rounds inside chat topics: it selects
// non-repeating questions, races the per-question timeout against incoming
// answers, scores fuzzy matches, and finalizes each session exactly once.
type QuizService struct {
	store     Store
	selector  *QuestionSelector
	timers    *TimerScheduler
	lifecycle *Lifecycle
	transport Transport
	cfg       Config
	now       func() time.Time
	log       zerolog.Logger
}

func NewQuizService(store Store, source QuestionSource, transport Transport, cfg Config, log zerolog.Logger) *QuizService {
	return &QuizService{
		store:     store,
		selector:  NewQuestionSelector(source, store),
		timers:    NewTimerScheduler(),
		lifecycle: NewLifecycle(store, log),
		transport: transport,
		cfg:       cfg,
		now:       time.Now,
		log:       log.With().Str("component", "quiz").Logger(),
	}
}

// StartQuiz begins a new session in the topic and asks the first question.
// Returns domain.ErrQuizAlreadyActive when one is already running.
func (s *QuizService) StartQuiz(ctx context.Context, conversationID, topicID int64) (*domain.Session, error) {
	session, err := s.lifecycle.Begin(ctx, conversationID, topicID, s.cfg.TotalQuestions)
	if err != nil {
		return nil, err
	}
	s.announce(ctx, session.Key(), "The quiz is starting! Get ready...")
	s.askNextQuestion(ctx, session)
	return session, nil
}

// StopQuiz cancels the topic's timers and finalizes its session, regardless
// of where the question/answer loop currently is. Returns
// domain.ErrNoActiveQuiz when nothing is running.
func (s *QuizService) StopQuiz(ctx context.Context, conversationID, topicID int64) error {
	key := domain.TopicKey{ConversationID: conversationID, TopicID: topicID}
	s.timers.CancelAll(key)

	session, err := s.store.FindActiveSession(ctx, conversationID, topicID)
	if err != nil {
		return err
	}
	if session == nil {
		return domain.ErrNoActiveQuiz
	}
	s.finish(ctx, session)
	return nil
}

// SubmitAnswer evaluates text as a candidate answer for the topic's
// outstanding question. It reports handled=false when no question is
// outstanding, so the caller can treat the message as ordinary chat.
func (s *QuizService) SubmitAnswer(ctx context.Context, conversationID, topicID int64, userID, text string) (bool, error) {
	session, err := s.store.FindActiveSession(ctx, conversationID, topicID)
	if err != nil {
		return false, err
	}
	if session == nil || session.CurrentQuestionID == nil {
		return false, nil
	}

	question, err := s.store.GetQuestion(ctx, *session.CurrentQuestionID)
	if err != nil {
		s.log.Error().Err(err).Int64("question_id", *session.CurrentQuestionID).Msg("load current question failed")
		return true, nil
	}

	decision := DecideAnswer(question.Answer, text)
	if !decision.Correct {
		return true, nil
	}

	// Stop the countdown before any other side effect so the timeout cannot
	// race the rest of this handler.
	key := session.Key()
	s.timers.CancelAll(key)

	session.AddScore(userID, 1)
	session.ClearCurrentQuestion()

	suffix := ""
	if decision.Close {
		suffix = " (almost exact!)"
	}
	s.announce(ctx, key, fmt.Sprintf("Correct%s! The answer was: %s", suffix, question.Answer))

	if session.QuestionsAsked >= session.TotalQuestions {
		s.finish(ctx, session)
		return true, nil
	}

	if err := s.store.SaveSession(ctx, session); err != nil {
		s.log.Error().Err(err).Msg("persist answered question failed")
		return true, nil
	}
	s.scheduleBreak(key)
	return true, nil
}

// ResetUsedQuestions deletes every used-question mark for the conversation
// and returns how many were removed. Administrative only; exhaustion during
// a session never triggers this.
func (s *QuizService) ResetUsedQuestions(ctx context.Context, conversationID int64) (int64, error) {
	return s.store.DeleteUsedMarks(ctx, conversationID)
}

// askNextQuestion picks, records, and announces the next question, then arms
// the timeout for this exact question instance. A persistence failure
// abandons the step with the session still active, so a later trigger (next
// answer, admin stop) can make progress.
func (s *QuizService) askNextQuestion(ctx context.Context, session *domain.Session) {
	key := session.Key()

	question, err := s.selector.Next(ctx, session.ConversationID, session.UsedQuestionIDs)
	if err != nil {
		s.log.Error().Err(err).Int64("conversation_id", key.ConversationID).Msg("select next question failed")
		return
	}
	if question == nil {
		s.announce(ctx, key, "No questions left!")
		s.finish(ctx, session)
		return
	}

	startedAt := s.now().UTC()
	session.CurrentQuestionID = &question.ID
	session.QuestionStartedAt = &startedAt
	session.AddUsedID(question.ID)
	session.QuestionsAsked++

	if err := s.store.RecordUsedMark(ctx, session.ConversationID, question.ID); err != nil {
		s.log.Error().Err(err).Int64("question_id", question.ID).Msg("record used question failed")
		return
	}
	if err := s.store.SaveSession(ctx, session); err != nil {
		s.log.Error().Err(err).Msg("persist current question failed")
		return
	}

	s.announce(ctx, key, fmt.Sprintf("Question %d/%d:\n%s\n\nHint: %s",
		session.QuestionsAsked, session.TotalQuestions, question.Prompt, AnswerHint(question.Answer)))

	q := *question
	s.timers.Schedule(key, SlotTimeout, s.cfg.QuestionTimeout, func() {
		s.handleTimeout(key, q, startedAt)
	})
}

// handleTimeout runs when a question's time runs out. Cancellation of a timer
// whose work already started is best-effort, so the callback re-checks that
// the session is still active and still on the question instance it was armed
// for; a stale timer stands down silently.
func (s *QuizService) handleTimeout(key domain.TopicKey, question domain.Question, startedAt time.Time) {
	ctx := context.Background()

	session, err := s.store.FindActiveSession(ctx, key.ConversationID, key.TopicID)
	if err != nil {
		s.log.Error().Err(err).Int64("conversation_id", key.ConversationID).Msg("load session on timeout failed")
		return
	}
	if session == nil {
		return
	}
	if session.QuestionStartedAt == nil || !session.QuestionStartedAt.Equal(startedAt) {
		return
	}

	s.announce(ctx, key, "Time's up! The correct answer was: "+question.Answer)

	if session.QuestionsAsked >= session.TotalQuestions {
		s.finish(ctx, session)
		return
	}
	s.scheduleBreak(key)
}

// scheduleBreak arms the inter-question pause, after which the loop asks the
// next question if the session is still active.
func (s *QuizService) scheduleBreak(key domain.TopicKey) {
	s.timers.Schedule(key, SlotGrace, s.cfg.QuestionBreak, func() {
		ctx := context.Background()
		session, err := s.store.FindActiveSession(ctx, key.ConversationID, key.TopicID)
		if err != nil {
			s.log.Error().Err(err).Int64("conversation_id", key.ConversationID).Msg("load session after break failed")
			return
		}
		if session == nil {
			return
		}
		s.askNextQuestion(ctx, session)
	})
}

func (s *QuizService) finish(ctx context.Context, session *domain.Session) {
	s.timers.CancelAll(session.Key())
	s.lifecycle.Finalize(ctx, session, s.notifyResults)
}

// notifyResults delivers the final scoreboard. Invoked by Finalize under the
// exactly-once guard.
func (s *QuizService) notifyResults(ctx context.Context, session *domain.Session) error {
	return s.transport.Send(ctx, session.ConversationID, session.TopicID, formatScoreboard(session))
}

func formatScoreboard(session *domain.Session) string {
	if len(session.Scores) == 0 {
		return "Quiz finished! Nobody scored this time."
	}

	type entry struct {
		userID string
		points int
	}
	entries := make([]entry, 0, len(session.Scores))
	for userID, points := range session.Scores {
		entries = append(entries, entry{userID: userID, points: points})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].points != entries[j].points {
			return entries[i].points > entries[j].points
		}
		return entries[i].userID < entries[j].userID
	})

	lines := []string{"Quiz finished! Final scores:"}
	for rank, e := range entries {
		lines = append(lines, fmt.Sprintf("%d. %s: %d pts", rank+1, e.userID, e.points))
	}
	return strings.Join(lines, "\n")
}

func (s *QuizService) announce(ctx context.Context, key domain.TopicKey, text string) {
	if err := s.transport.Send(ctx, key.ConversationID, key.TopicID, text); err != nil {
		s.log.Error().Err(err).
			Int64("conversation_id", key.ConversationID).
			Int64("topic_id", key.TopicID).
			Msg("announcement failed")
	}
}
