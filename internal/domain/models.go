package domain

import "time"

// TopicKey identifies where a quiz runs: a conversation and a topic within it.
type TopicKey struct {
	ConversationID int64
	TopicID        int64
}

// Question is a stored trivia question. Questions are never deleted by the
// engine; repeats are prevented with UsedQuestion marks instead.
type Question struct {
	ID        int64
	Prompt    string
	Answer    string
	Hint      string
	Category  string
	CreatedAt time.Time
}

// UsedQuestion records that a question was already asked in a conversation.
// Append-only; the only bulk mutation is the administrative reset.
type UsedQuestion struct {
	ID             int64
	ConversationID int64
	QuestionID     int64
	UsedAt         time.Time
}

// Session tracks one quiz run in a chat topic. At most one active session
// exists per TopicKey at a time.
type Session struct {
	ID             int64
	ConversationID int64
	TopicID        int64
	Active         bool
	StartedAt      time.Time
	EndedAt        *time.Time
	// CurrentQuestionID is set while a question is outstanding.
	CurrentQuestionID *int64
	// QuestionStartedAt identifies which instance of the current question a
	// pending timeout refers to; a timer that captured an older value must
	// stand down.
	QuestionStartedAt *time.Time
	UsedQuestionIDs   []int64
	Scores            map[string]int
	TotalQuestions    int
	QuestionsAsked    int
}

// Key returns the session's TopicKey.
func (s *Session) Key() TopicKey {
	return TopicKey{ConversationID: s.ConversationID, TopicID: s.TopicID}
}

// AddUsedID appends a question ID to the in-session used list if absent.
func (s *Session) AddUsedID(questionID int64) {
	for _, id := range s.UsedQuestionIDs {
		if id == questionID {
			return
		}
	}
	s.UsedQuestionIDs = append(s.UsedQuestionIDs, questionID)
}

// AddScore adds points to a participant's total.
func (s *Session) AddScore(userID string, points int) {
	if s.Scores == nil {
		s.Scores = make(map[string]int)
	}
	s.Scores[userID] += points
}

// ClearCurrentQuestion drops the outstanding question instance.
func (s *Session) ClearCurrentQuestion() {
	s.CurrentQuestionID = nil
	s.QuestionStartedAt = nil
}

// Close marks the session finished. Question rows are never touched here;
// used-question marks already record what was asked.
func (s *Session) Close(now time.Time) {
	s.Active = false
	s.EndedAt = &now
	s.ClearCurrentQuestion()
}

// Clone returns a deep copy so stored sessions behave like database rows:
// callers mutate their copy and persist it explicitly.
func (s *Session) Clone() *Session {
	c := *s
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	if s.CurrentQuestionID != nil {
		id := *s.CurrentQuestionID
		c.CurrentQuestionID = &id
	}
	if s.QuestionStartedAt != nil {
		t := *s.QuestionStartedAt
		c.QuestionStartedAt = &t
	}
	c.UsedQuestionIDs = append([]int64(nil), s.UsedQuestionIDs...)
	c.Scores = make(map[string]int, len(s.Scores))
	for k, v := range s.Scores {
		c.Scores[k] = v
	}
	return &c
}
