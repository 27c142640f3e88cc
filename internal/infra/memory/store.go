package memory

import (
	"context"
	"sync"
	"time"

	"forum-quiz-service/internal/domain"
)

// Store is an in-memory implementation of app.Store. Sessions are stored and
// returned as deep copies so callers observe persisted state only, the way a
// database-backed store behaves; this is what the engine's race checks rely
// on in tests.
type Store struct {
	mu        sync.RWMutex
	questions map[int64]domain.Question
	sessions  map[int64]*domain.Session
	used      []domain.UsedQuestion
	nextID    int64
}

func NewStore(questions []domain.Question) *Store {
	s := &Store{
		questions: make(map[int64]domain.Question, len(questions)),
		sessions:  make(map[int64]*domain.Session),
		nextID:    1,
	}
	for _, q := range questions {
		s.questions[q.ID] = q
	}
	return s
}

func (s *Store) GetQuestion(_ context.Context, id int64) (domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.questions[id]
	if !ok {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return q, nil
}

// ListQuestions implements app.QuestionSource directly so the store can serve
// as its own question bank when no cache layer is configured.
func (s *Store) ListQuestions(_ context.Context) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Question, 0, len(s.questions))
	for _, q := range s.questions {
		out = append(out, q)
	}
	return out, nil
}

func (s *Store) UsedQuestionIDs(_ context.Context, conversationID int64) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []int64
	for _, mark := range s.used {
		if mark.ConversationID == conversationID {
			ids = append(ids, mark.QuestionID)
		}
	}
	return ids, nil
}

func (s *Store) RecordUsedMark(_ context.Context, conversationID, questionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.used = append(s.used, domain.UsedQuestion{
		ID:             s.nextID,
		ConversationID: conversationID,
		QuestionID:     questionID,
		UsedAt:         time.Now().UTC(),
	})
	s.nextID++
	return nil
}

func (s *Store) DeleteUsedMarks(_ context.Context, conversationID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.used[:0]
	var removed int64
	for _, mark := range s.used {
		if mark.ConversationID == conversationID {
			removed++
			continue
		}
		kept = append(kept, mark)
	}
	s.used = kept
	return removed, nil
}

func (s *Store) CreateSession(_ context.Context, conversationID, topicID int64, totalQuestions int) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session := &domain.Session{
		ID:             s.nextID,
		ConversationID: conversationID,
		TopicID:        topicID,
		Active:         true,
		StartedAt:      time.Now().UTC(),
		Scores:         make(map[string]int),
		TotalQuestions: totalQuestions,
	}
	s.nextID++
	s.sessions[session.ID] = session.Clone()
	return session, nil
}

func (s *Store) SaveSession(_ context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session.Clone()
	return nil
}

func (s *Store) FindActiveSession(_ context.Context, conversationID, topicID int64) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, session := range s.sessions {
		if session.Active && session.ConversationID == conversationID && session.TopicID == topicID {
			return session.Clone(), nil
		}
	}
	return nil, nil
}
