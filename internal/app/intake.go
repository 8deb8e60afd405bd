package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/ardaongl/hsdarena-backend/internal/domain"
)

// SubmitRequest is one team's answer to one question of a live session.
type SubmitRequest struct {
	SessionID  string          `json:"sessionId"`
	QuestionID string          `json:"questionId"`
	Payload    json.RawMessage `json:"answerPayload"`
}

// Intake validates, de-duplicates, scores, and persists inbound answer
// submissions. The checks run in a fixed order and the first failure wins.
type Intake struct {
	store Store
	coord *Coordinator
	clock clockwork.Clock
}

func NewIntake(store Store, coord *Coordinator, clock clockwork.Clock) *Intake {
	return &Intake{store: store, coord: coord, clock: clock}
}

// Submit records exactly one answer per (session, question, team). The
// pre-check on the triple is only an optimization; the storage uniqueness
// constraint is authoritative, and a violation there surfaces as the same
// conflict, covering concurrent submissions for the same triple.
func (in *Intake) Submit(ctx context.Context, teamID string, req SubmitRequest) (domain.AnswerResult, error) {
	if _, exists, err := in.store.AnswerByTriple(ctx, req.SessionID, req.QuestionID, teamID); err != nil {
		return domain.AnswerResult{}, domain.Internalf(err, "check existing answer")
	} else if exists {
		return domain.AnswerResult{}, domain.ErrDuplicateAnswer
	}

	session, ok, err := in.store.SessionByID(ctx, req.SessionID)
	if err != nil {
		return domain.AnswerResult{}, domain.Internalf(err, "load session")
	}
	if !ok {
		return domain.AnswerResult{}, domain.NotFoundf("quiz session %q not found", req.SessionID)
	}

	question, ok, err := in.store.QuestionByID(ctx, req.QuestionID)
	if err != nil {
		return domain.AnswerResult{}, domain.Internalf(err, "load question")
	}
	if !ok {
		return domain.AnswerResult{}, domain.NotFoundf("question %q not found", req.QuestionID)
	}
	if question.QuizID != session.QuizID {
		return domain.AnswerResult{}, domain.Forbiddenf("question does not belong to this quiz session")
	}

	if session.Status != domain.SessionActive {
		return domain.AnswerResult{}, domain.Forbiddenf("quiz session %q is not active", session.Code)
	}

	correct, points, err := in.coord.ScoreSubmission(ctx, session, question, req.Payload)
	if err != nil {
		return domain.AnswerResult{}, err
	}

	answer := domain.Answer{
		ID:            uuid.NewString(),
		SessionID:     session.ID,
		QuestionID:    question.ID,
		TeamID:        teamID,
		Payload:       req.Payload,
		IsCorrect:     correct,
		PointsAwarded: points,
		AnsweredAt:    in.clock.Now().UTC(),
	}
	if err := in.store.CreateAnswer(ctx, answer); err != nil {
		if errors.Is(err, domain.ErrDuplicateAnswer) {
			return domain.AnswerResult{}, domain.ErrDuplicateAnswer
		}
		return domain.AnswerResult{}, domain.Internalf(err, "persist answer")
	}
	log.Debug().Str("session", session.Code).Str("question", question.ID).Str("team", teamID).
		Bool("correct", correct).Int("points", points).Msg("answer recorded")

	in.coord.AnnounceScore(ctx, session, question.ID)

	return domain.AnswerResult{
		AnswerID:      answer.ID,
		IsCorrect:     answer.IsCorrect,
		PointsAwarded: answer.PointsAwarded,
		SubmittedAt:   answer.AnsweredAt,
		Message:       resultMessage(correct, points, question.Points),
	}, nil
}

func resultMessage(correct bool, awarded, full int) string {
	if !correct {
		return "Incorrect answer."
	}
	if awarded < full {
		return fmt.Sprintf("Correct answer! You earned %d points (reduced due to answer timing).", awarded)
	}
	return "Correct answer!"
}
