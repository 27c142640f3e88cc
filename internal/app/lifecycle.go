package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"forum-quiz-service/internal/domain"
)

// Lifecycle creates and closes quiz sessions. It owns the process-wide
// finishing set that makes Finalize exactly-once: a question timeout and a
// correct-answer handler can both decide "this was the last question" for the
// same session, and only one of them may close it.
type Lifecycle struct {
	store Store
	now   func() time.Time
	log   zerolog.Logger

	mu        sync.Mutex
	finishing map[domain.TopicKey]struct{}
}

func NewLifecycle(store Store, log zerolog.Logger) *Lifecycle {
	return &Lifecycle{
		store:     store,
		now:       time.Now,
		log:       log.With().Str("component", "lifecycle").Logger(),
		finishing: make(map[domain.TopicKey]struct{}),
	}
}

// Begin creates a new session for the topic. Fails with ErrQuizAlreadyActive
// when one is already running there.
func (l *Lifecycle) Begin(ctx context.Context, conversationID, topicID int64, totalQuestions int) (*domain.Session, error) {
	existing, err := l.store.FindActiveSession(ctx, conversationID, topicID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrQuizAlreadyActive
	}
	return l.store.CreateSession(ctx, conversationID, topicID, totalQuestions)
}

// Finalize closes the session and invokes notify with the closed session.
// Concurrent calls for the same topic collapse into one: the second returns
// immediately without side effects. Persistence and notification failures are
// logged, never propagated; the guard is released in all cases so a later
// trigger can retry.
func (l *Lifecycle) Finalize(ctx context.Context, session *domain.Session, notify func(context.Context, *domain.Session) error) {
	key := session.Key()

	l.mu.Lock()
	if _, busy := l.finishing[key]; busy {
		l.mu.Unlock()
		return
	}
	l.finishing[key] = struct{}{}
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.finishing, key)
		l.mu.Unlock()
	}()

	session.Close(l.now().UTC())
	if err := l.store.SaveSession(ctx, session); err != nil {
		l.log.Error().Err(err).
			Int64("conversation_id", key.ConversationID).
			Int64("topic_id", key.TopicID).
			Msg("persist session close failed")
		return
	}
	if notify != nil {
		if err := notify(ctx, session); err != nil {
			l.log.Error().Err(err).
				Int64("conversation_id", key.ConversationID).
				Int64("topic_id", key.TopicID).
				Msg("final scoreboard notification failed")
		}
	}
}
