package domain

import "errors"

var (
	// ErrQuizAlreadyActive is returned when starting a quiz in a topic that
	// already has an active session.
	ErrQuizAlreadyActive = errors.New("a quiz is already running in this topic")
	// ErrNoActiveQuiz is returned when stopping a topic with no active session.
	ErrNoActiveQuiz = errors.New("no active quiz in this topic")
	// ErrQuestionNotFound indicates a referenced question ID does not exist.
	ErrQuestionNotFound = errors.New("question not found")
)
