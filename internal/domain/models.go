package domain

import (
	"encoding/json"
	"time"
)

// QuestionType discriminates how a question is answered and scored.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "MCQ"
	QuestionTrueFalse      QuestionType = "TF"
)

// SessionStatus is the lifecycle state of a quiz session.
type SessionStatus string

const (
	SessionPending SessionStatus = "PENDING"
	SessionActive  SessionStatus = "ACTIVE"
	SessionEnded   SessionStatus = "ENDED"
)

// CanTransition reports whether moving from s to next is a legal lifecycle
// step. The machine is Pending -> Active -> Ended; Ended is terminal.
func (s SessionStatus) CanTransition(next SessionStatus) bool {
	switch s {
	case SessionPending:
		return next == SessionActive || next == SessionEnded
	case SessionActive:
		return next == SessionEnded
	default:
		return false
	}
}

// Choice is one selectable option of a multiple-choice question.
type Choice struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// AnswerKey is the canonical correct answer of a question. Which field is
// meaningful depends on the question type: ChoiceID for multiple choice,
// Value for true/false.
type AnswerKey struct {
	ChoiceID string `json:"id,omitempty"`
	Value    *bool  `json:"value,omitempty"`
}

// Question belongs to exactly one quiz. Immutable once a session
// referencing its quiz is active.
type Question struct {
	ID           string       `json:"id"`
	QuizID       string       `json:"quizId"`
	Index        int          `json:"index"`
	Text         string       `json:"text"`
	Type         QuestionType `json:"type"`
	Choices      []Choice     `json:"choices,omitempty"`
	Answer       AnswerKey    `json:"correctAnswer"`
	TimeLimitSec int          `json:"timeLimitSec"`
	Points       int          `json:"points"`
}

// Quiz is an authored set of questions, ordered by Index.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	CreatedBy string     `json:"createdBy,omitempty"`
	Questions []Question `json:"questions"`
}

// QuestionByID returns the question with the given id, if present.
func (q Quiz) QuestionByID(id string) (Question, bool) {
	for i := range q.Questions {
		if q.Questions[i].ID == id {
			return q.Questions[i], true
		}
	}
	return Question{}, false
}

// Session is one live run of a quiz, joinable by code.
type Session struct {
	ID        string        `json:"id"`
	Code      string        `json:"code"`
	QuizID    string        `json:"quizId"`
	Status    SessionStatus `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
	EndedAt   *time.Time    `json:"endedAt,omitempty"`
}

// Team is a participant joined to exactly one session. Name is unique
// within the session.
type Team struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Name      string    `json:"name"`
	JoinedAt  time.Time `json:"joinedAt"`
}

// Answer is the immutable record of one team's submission for one question
// in one session. At most one exists per (session, question, team).
type Answer struct {
	ID            string          `json:"id"`
	SessionID     string          `json:"sessionId"`
	QuestionID    string          `json:"questionId"`
	TeamID        string          `json:"teamId"`
	Payload       json.RawMessage `json:"payload"`
	IsCorrect     bool            `json:"isCorrect"`
	PointsAwarded int             `json:"pointsAwarded"`
	AnsweredAt    time.Time       `json:"answeredAt"`
}

// AnswerResult is returned synchronously to the submitting team.
type AnswerResult struct {
	AnswerID      string    `json:"answerId"`
	IsCorrect     bool      `json:"isCorrect"`
	PointsAwarded int       `json:"pointsAwarded"`
	SubmittedAt   time.Time `json:"submittedAt"`
	Message       string    `json:"message"`
}

// LeaderboardEntry is one ranked row of a session scoreboard.
type LeaderboardEntry struct {
	TeamName string `json:"teamName"`
	Score    int    `json:"score"`
	Rank     int    `json:"rank"`
}

// User is an organizer account allowed to create and drive sessions.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}
