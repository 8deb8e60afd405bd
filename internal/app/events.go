package app

import "github.com/ardaongl/hsdarena-backend/internal/domain"

// Outbound room event names.
const (
	EventJoinSuccess   = "join_success"
	EventQuestionStart = "question_start"
	EventScoreUpdate   = "score_update"
	EventQuizEnd       = "quiz_end"
	EventError         = "error"
)

// JoinSuccessPayload confirms room membership to the joining client.
type JoinSuccessPayload struct {
	SessionCode string `json:"sessionCode"`
}

// QuestionStartPayload is the broadcast question, without the canonical
// answer.
type QuestionStartPayload struct {
	ID        string              `json:"id"`
	Text      string              `json:"text"`
	Type      domain.QuestionType `json:"type"`
	Choices   []domain.Choice     `json:"choices,omitempty"`
	TimeLimit int                 `json:"timeLimit"`
	Points    int                 `json:"points"`
}

// ScoreUpdatePayload carries the refreshed leaderboard after an accepted
// answer.
type ScoreUpdatePayload struct {
	Leaderboard []domain.LeaderboardEntry `json:"leaderboard"`
	QuestionID  string                    `json:"questionId"`
}

// QuizEndPayload is the final snapshot broadcast when a session ends.
type QuizEndPayload struct {
	FinalLeaderboard []domain.LeaderboardEntry `json:"finalLeaderboard"`
	TotalQuestions   int                       `json:"totalQuestions"`
	SessionDuration  float64                   `json:"sessionDuration"`
}

// ErrorPayload reports a failure to a single client.
type ErrorPayload struct {
	Message string `json:"message"`
}
