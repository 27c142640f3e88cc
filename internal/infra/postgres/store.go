package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"forum-quiz-service/internal/domain"
)

// Store is the Postgres implementation of app.Store. Session used-question
// IDs and scores are kept as JSONB columns; question rows are read-only here.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) GetQuestion(ctx context.Context, id int64) (domain.Question, error) {
	var q domain.Question
	err := s.pool.QueryRow(ctx,
		`SELECT id, prompt, answer, COALESCE(hint, ''), COALESCE(category, ''), created_at
		 FROM quiz_questions WHERE id = $1`, id,
	).Scan(&q.ID, &q.Prompt, &q.Answer, &q.Hint, &q.Category, &q.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	if err != nil {
		return domain.Question{}, fmt.Errorf("get question: %w", err)
	}
	return q, nil
}

// LoadQuestions lists the whole question bank; cache layers
// (memory/redis QuestionBank) sit in front of this.
func (s *Store) LoadQuestions(ctx context.Context) ([]domain.Question, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, prompt, answer, COALESCE(hint, ''), COALESCE(category, ''), created_at
		 FROM quiz_questions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		var q domain.Question
		if err := rows.Scan(&q.ID, &q.Prompt, &q.Answer, &q.Hint, &q.Category, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

func (s *Store) UsedQuestionIDs(ctx context.Context, conversationID int64) ([]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT question_id FROM quiz_used_questions WHERE conversation_id = $1`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("used question ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan used question id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) RecordUsedMark(ctx context.Context, conversationID, questionID int64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO quiz_used_questions (conversation_id, question_id) VALUES ($1, $2)`,
		conversationID, questionID)
	if err != nil {
		return fmt.Errorf("record used question: %w", err)
	}
	return nil
}

func (s *Store) DeleteUsedMarks(ctx context.Context, conversationID int64) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM quiz_used_questions WHERE conversation_id = $1`, conversationID)
	if err != nil {
		return 0, fmt.Errorf("delete used questions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) CreateSession(ctx context.Context, conversationID, topicID int64, totalQuestions int) (*domain.Session, error) {
	session := &domain.Session{
		ConversationID: conversationID,
		TopicID:        topicID,
		Active:         true,
		Scores:         make(map[string]int),
		TotalQuestions: totalQuestions,
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO quiz_sessions (conversation_id, topic_id, active, total_questions)
		 VALUES ($1, $2, TRUE, $3)
		 RETURNING id, started_at`,
		conversationID, topicID, totalQuestions,
	).Scan(&session.ID, &session.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

func (s *Store) SaveSession(ctx context.Context, session *domain.Session) error {
	usedIDs, err := json.Marshal(session.UsedQuestionIDs)
	if err != nil {
		return fmt.Errorf("marshal used question ids: %w", err)
	}
	scores, err := json.Marshal(session.Scores)
	if err != nil {
		return fmt.Errorf("marshal scores: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`UPDATE quiz_sessions
		 SET active = $2,
		     ended_at = $3,
		     current_question_id = $4,
		     question_started_at = $5,
		     used_question_ids = $6,
		     scores = $7,
		     questions_asked = $8
		 WHERE id = $1`,
		session.ID, session.Active, session.EndedAt, session.CurrentQuestionID,
		session.QuestionStartedAt, string(usedIDs), string(scores), session.QuestionsAsked)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *Store) FindActiveSession(ctx context.Context, conversationID, topicID int64) (*domain.Session, error) {
	session := &domain.Session{}
	var (
		usedIDs []byte
		scores  []byte
		endedAt *time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, conversation_id, topic_id, active, started_at, ended_at,
		        current_question_id, question_started_at, used_question_ids,
		        scores, total_questions, questions_asked
		 FROM quiz_sessions
		 WHERE conversation_id = $1 AND topic_id = $2 AND active
		 LIMIT 1`, conversationID, topicID,
	).Scan(&session.ID, &session.ConversationID, &session.TopicID, &session.Active,
		&session.StartedAt, &endedAt, &session.CurrentQuestionID, &session.QuestionStartedAt,
		&usedIDs, &scores, &session.TotalQuestions, &session.QuestionsAsked)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active session: %w", err)
	}
	session.EndedAt = endedAt
	if err := json.Unmarshal(usedIDs, &session.UsedQuestionIDs); err != nil {
		return nil, fmt.Errorf("unmarshal used question ids: %w", err)
	}
	if err := json.Unmarshal(scores, &session.Scores); err != nil {
		return nil, fmt.Errorf("unmarshal scores: %w", err)
	}
	if session.Scores == nil {
		session.Scores = make(map[string]int)
	}
	return session, nil
}
