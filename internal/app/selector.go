package app

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"forum-quiz-service/internal/domain"
)

// QuestionSelector picks the next question for a conversation: uniformly at
// random among questions neither in the caller's exclude list nor marked used
// for the conversation. The bank itself is read through a QuestionSource so
// it can be served from a cache; used marks always go to the store so an
// administrative reset is visible immediately.
type QuestionSelector struct {
	source QuestionSource
	store  Store

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuestionSelector(source QuestionSource, store Store) *QuestionSelector {
	return &QuestionSelector{
		source: source,
		store:  store,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns nil when every question has been used; the caller's policy is
// to end the session, never to reset the used history on its own.
func (s *QuestionSelector) Next(ctx context.Context, conversationID int64, excludeIDs []int64) (*domain.Question, error) {
	questions, err := s.source.ListQuestions(ctx)
	if err != nil {
		return nil, err
	}
	usedIDs, err := s.store.UsedQuestionIDs(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	skip := make(map[int64]struct{}, len(excludeIDs)+len(usedIDs))
	for _, id := range excludeIDs {
		skip[id] = struct{}{}
	}
	for _, id := range usedIDs {
		skip[id] = struct{}{}
	}

	candidates := questions[:0:0]
	for _, q := range questions {
		if _, ok := skip[q.ID]; !ok {
			candidates = append(candidates, q)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	pick := candidates[s.rnd.Intn(len(candidates))]
	s.mu.Unlock()
	return &pick, nil
}
