package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ardaongl/hsdarena-backend/internal/app"
	"github.com/ardaongl/hsdarena-backend/internal/domain"
)

func submit(e *env, team domain.Team, questionID, payload string) (domain.AnswerResult, error) {
	return e.intake.Submit(context.Background(), team.ID, app.SubmitRequest{
		SessionID:  team.SessionID,
		QuestionID: questionID,
		Payload:    json.RawMessage(payload),
	})
}

func TestSubmitScenario(t *testing.T) {
	e := newEnv(t)
	e.addSession(t, "sess-1", "ABC123", domain.SessionActive)
	teamX := e.addTeam(t, "team-x", "sess-1", "X")
	teamY := e.addTeam(t, "team-y", "sess-1", "Y")
	teamZ := e.addTeam(t, "team-z", "sess-1", "Z")

	// First correct answer earns full points.
	result, err := submit(e, teamX, "q1", `{"id":"B"}`)
	if err != nil {
		t.Fatalf("team X submit: %v", err)
	}
	if !result.IsCorrect || result.PointsAwarded != 100 {
		t.Fatalf("expected 100 points, got %+v", result)
	}
	if result.Message != "Correct answer!" {
		t.Fatalf("unexpected message %q", result.Message)
	}

	// Seven seconds later the award decays one step.
	e.clock.Advance(7 * time.Second)
	result, err = submit(e, teamY, "q1", `{"id":"B"}`)
	if err != nil {
		t.Fatalf("team Y submit: %v", err)
	}
	if !result.IsCorrect || result.PointsAwarded != 90 {
		t.Fatalf("expected decayed 90 points, got %+v", result)
	}

	// Wrong answers record zero points.
	result, err = submit(e, teamZ, "q1", `{"id":"A"}`)
	if err != nil {
		t.Fatalf("team Z submit: %v", err)
	}
	if result.IsCorrect || result.PointsAwarded != 0 {
		t.Fatalf("expected zero points, got %+v", result)
	}
	if result.Message != "Incorrect answer." {
		t.Fatalf("unexpected message %q", result.Message)
	}

	// Resubmitting the same question is rejected.
	if _, err := submit(e, teamX, "q1", `{"id":"A"}`); !errors.Is(err, domain.ErrDuplicateAnswer) {
		t.Fatalf("expected duplicate answer rejection, got %v", err)
	}

	// The stored record for X still carries the original award.
	stored, found, err := e.store.AnswerByTriple(context.Background(), "sess-1", "q1", "team-x")
	if err != nil || !found {
		t.Fatalf("answer lookup: found=%v err=%v", found, err)
	}
	if stored.PointsAwarded != 100 {
		t.Fatalf("duplicate must not overwrite, got %d points", stored.PointsAwarded)
	}
}

func TestSubmitRejectsInactiveSessions(t *testing.T) {
	e := newEnv(t)
	e.addSession(t, "sess-p", "PEND42", domain.SessionPending)
	e.addSession(t, "sess-e", "ENDD42", domain.SessionEnded)
	pending := e.addTeam(t, "team-p", "sess-p", "P")
	ended := e.addTeam(t, "team-e", "sess-e", "E")

	if _, err := submit(e, pending, "q1", `{"id":"B"}`); domain.KindOf(err) != domain.KindForbidden {
		t.Fatalf("pending session: expected forbidden, got %v", err)
	}
	if _, err := submit(e, ended, "q1", `{"id":"B"}`); domain.KindOf(err) != domain.KindForbidden {
		t.Fatalf("ended session: expected forbidden, got %v", err)
	}
}

func TestSubmitUnknownSession(t *testing.T) {
	e := newEnv(t)
	team := domain.Team{ID: "team-x", SessionID: "missing", Name: "X"}
	if _, err := submit(e, team, "q1", `{"id":"B"}`); domain.KindOf(err) != domain.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSubmitUnknownQuestion(t *testing.T) {
	e := newEnv(t)
	e.addSession(t, "sess-1", "ABC123", domain.SessionActive)
	team := e.addTeam(t, "team-x", "sess-1", "X")

	if _, err := submit(e, team, "q-missing", `{"id":"B"}`); domain.KindOf(err) != domain.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSubmitQuestionFromAnotherQuiz(t *testing.T) {
	e := newEnv(t)
	other := domain.Quiz{
		ID:    "quiz-2",
		Title: "Other",
		Questions: []domain.Question{{
			ID: "q-other", QuizID: "quiz-2", Index: 1, Text: "?",
			Type:   domain.QuestionMultipleChoice,
			Choices: []domain.Choice{{ID: "A", Text: "a"}},
			Answer: domain.AnswerKey{ChoiceID: "A"}, TimeLimitSec: 10, Points: 10,
		}},
	}
	e.store.PutQuiz(other)
	e.addSession(t, "sess-1", "ABC123", domain.SessionActive)
	team := e.addTeam(t, "team-x", "sess-1", "X")

	if _, err := submit(e, team, "q-other", `{"id":"A"}`); domain.KindOf(err) != domain.KindForbidden {
		t.Fatalf("expected forbidden for cross-quiz question, got %v", err)
	}
}

func TestSubmitMalformedPayload(t *testing.T) {
	e := newEnv(t)
	e.addSession(t, "sess-1", "ABC123", domain.SessionActive)
	team := e.addTeam(t, "team-x", "sess-1", "X")

	// q2 is true/false: a string value does not coerce.
	if _, err := submit(e, team, "q2", `{"value":"true"}`); domain.KindOf(err) != domain.KindBadRequest {
		t.Fatalf("expected bad request, got %v", err)
	}

	// A rejected payload must not consume the team's single attempt.
	result, err := submit(e, team, "q2", `{"value":true}`)
	if err != nil {
		t.Fatalf("valid retry after malformed payload: %v", err)
	}
	if !result.IsCorrect {
		t.Fatalf("expected correct, got %+v", result)
	}
}

func TestSubmitBroadcastsScoreUpdate(t *testing.T) {
	e := newEnv(t)
	e.addSession(t, "sess-1", "ABC123", domain.SessionActive)
	team := e.addTeam(t, "team-x", "sess-1", "X")

	conn := &fakeConn{}
	e.rooms.Join("ABC123", conn)

	if _, err := submit(e, team, "q1", `{"id":"B"}`); err != nil {
		t.Fatalf("submit: %v", err)
	}

	ev := conn.last(t)
	if ev.name != app.EventScoreUpdate {
		t.Fatalf("expected %s, got %s", app.EventScoreUpdate, ev.name)
	}
	payload, ok := ev.payload.(app.ScoreUpdatePayload)
	if !ok {
		t.Fatalf("unexpected payload type %T", ev.payload)
	}
	if payload.QuestionID != "q1" {
		t.Fatalf("unexpected question %q", payload.QuestionID)
	}
	if len(payload.Leaderboard) != 1 || payload.Leaderboard[0].Score != 100 {
		t.Fatalf("unexpected leaderboard %+v", payload.Leaderboard)
	}
}

func TestSubmitConcurrentExactlyOnce(t *testing.T) {
	e := newEnv(t)
	e.addSession(t, "sess-1", "ABC123", domain.SessionActive)
	team := e.addTeam(t, "team-x", "sess-1", "X")

	const attempts = 20
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = submit(e, team, "q1", `{"id":"B"}`)
		}(i)
	}
	wg.Wait()

	accepted := 0
	for i, err := range errs {
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, domain.ErrDuplicateAnswer):
		default:
			t.Fatalf("attempt %d: unexpected error %v", i, err)
		}
	}
	if accepted != 1 {
		t.Fatalf("expected exactly one accepted submission, got %d", accepted)
	}

	answers, err := e.store.AnswersBySession(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("answers: %v", err)
	}
	if len(answers) != 1 {
		t.Fatalf("expected a single stored answer, got %d", len(answers))
	}
}

func TestSubmitDistinctTeamsAndQuestions(t *testing.T) {
	e := newEnv(t)
	e.addSession(t, "sess-1", "ABC123", domain.SessionActive)

	for i := 0; i < 3; i++ {
		team := e.addTeam(t, fmt.Sprintf("team-%d", i), "sess-1", fmt.Sprintf("Team %d", i))
		if _, err := submit(e, team, "q1", `{"id":"B"}`); err != nil {
			t.Fatalf("team %d q1: %v", i, err)
		}
		if _, err := submit(e, team, "q2", `{"value":true}`); err != nil {
			t.Fatalf("team %d q2: %v", i, err)
		}
	}

	answers, err := e.store.AnswersBySession(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("answers: %v", err)
	}
	if len(answers) != 6 {
		t.Fatalf("expected 6 answers, got %d", len(answers))
	}
}
