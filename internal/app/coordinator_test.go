package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ardaongl/hsdarena-backend/internal/app"
	"github.com/ardaongl/hsdarena-backend/internal/domain"
	"github.com/ardaongl/hsdarena-backend/internal/infra/memory"
)

// fakeConn records every event delivered to it.
type fakeConn struct {
	mu     sync.Mutex
	events []fakeEvent
}

type fakeEvent struct {
	name    string
	payload any
}

func (c *fakeConn) SendEvent(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, fakeEvent{name: event, payload: payload})
	return nil
}

func (c *fakeConn) last(t *testing.T) fakeEvent {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) == 0 {
		t.Fatalf("expected at least one event")
	}
	return c.events[len(c.events)-1]
}

type env struct {
	store  *memory.Store
	clock  interface {
		clockwork.Clock
		Advance(time.Duration)
	}
	rooms  *app.Registry
	coord  *app.Coordinator
	intake *app.Intake
}

func newEnv(t *testing.T) *env {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	store := memory.NewStore()
	store.PutQuiz(testQuiz())

	rooms := app.NewRegistry()
	coord := app.NewCoordinator(store, memory.NewQuizCache(store, time.Minute), rooms, clock)
	return &env{
		store:  store,
		clock:  clock,
		rooms:  rooms,
		coord:  coord,
		intake: app.NewIntake(store, coord, clock),
	}
}

func testQuiz() domain.Quiz {
	isTrue := true
	return domain.Quiz{
		ID:    "quiz-1",
		Title: "Demo Quiz",
		Questions: []domain.Question{
			{
				ID:     "q1",
				QuizID: "quiz-1",
				Index:  1,
				Text:   "2+2=?",
				Type:   domain.QuestionMultipleChoice,
				Choices: []domain.Choice{
					{ID: "A", Text: "3"},
					{ID: "B", Text: "4"},
				},
				Answer:       domain.AnswerKey{ChoiceID: "B"},
				TimeLimitSec: 20,
				Points:       100,
			},
			{
				ID:           "q2",
				QuizID:       "quiz-1",
				Index:        2,
				Text:         "The sky is blue.",
				Type:         domain.QuestionTrueFalse,
				Answer:       domain.AnswerKey{Value: &isTrue},
				TimeLimitSec: 15,
				Points:       50,
			},
		},
	}
}

func (e *env) addSession(t *testing.T, id, code string, status domain.SessionStatus) domain.Session {
	t.Helper()
	session := domain.Session{
		ID:        id,
		Code:      code,
		QuizID:    "quiz-1",
		Status:    status,
		CreatedAt: e.clock.Now(),
	}
	if err := e.store.CreateSession(context.Background(), session); err != nil {
		t.Fatalf("create session: %v", err)
	}
	return session
}

func (e *env) addTeam(t *testing.T, id, sessionID, name string) domain.Team {
	t.Helper()
	team := domain.Team{ID: id, SessionID: sessionID, Name: name, JoinedAt: e.clock.Now()}
	if err := e.store.CreateTeam(context.Background(), team); err != nil {
		t.Fatalf("create team: %v", err)
	}
	return team
}

func TestCreateSessionGeneratesUniqueCode(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	first, err := e.coord.CreateSession(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	second, err := e.coord.CreateSession(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	if len(first.Code) != domain.SessionCodeLength {
		t.Fatalf("expected %d-char code, got %q", domain.SessionCodeLength, first.Code)
	}
	if first.Code == second.Code {
		t.Fatalf("expected distinct codes, both %q", first.Code)
	}
	if first.Status != domain.SessionPending {
		t.Fatalf("new session must be pending, got %s", first.Status)
	}
}

func TestCreateSessionUnknownQuiz(t *testing.T) {
	e := newEnv(t)
	_, err := e.coord.CreateSession(context.Background(), "quiz-404")
	if domain.KindOf(err) != domain.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSessionLifecycleTransitions(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.addSession(t, "sess-1", "ABC123", domain.SessionPending)

	session, err := e.coord.StartSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if session.Status != domain.SessionActive {
		t.Fatalf("expected active, got %s", session.Status)
	}

	if _, err := e.coord.StartSession(ctx, "sess-1"); domain.KindOf(err) != domain.KindForbidden {
		t.Fatalf("starting an active session must be forbidden, got %v", err)
	}

	session, err = e.coord.EndSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if session.Status != domain.SessionEnded || session.EndedAt == nil {
		t.Fatalf("expected ended with timestamp, got %+v", session)
	}

	// Ended is terminal: no regression, no re-ending.
	if _, err := e.coord.StartSession(ctx, "sess-1"); domain.KindOf(err) != domain.KindForbidden {
		t.Fatalf("expected forbidden on ended->active, got %v", err)
	}
	if _, err := e.coord.EndSession(ctx, "sess-1"); domain.KindOf(err) != domain.KindForbidden {
		t.Fatalf("expected forbidden on ended->ended, got %v", err)
	}
}

func TestStartSessionNotFound(t *testing.T) {
	e := newEnv(t)
	if _, err := e.coord.StartSession(context.Background(), "missing"); domain.KindOf(err) != domain.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStartQuestionBroadcastsWithoutAnswer(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.addSession(t, "sess-1", "ABC123", domain.SessionActive)

	conn := &fakeConn{}
	e.rooms.Join("ABC123", conn)

	if err := e.coord.StartQuestion(ctx, "sess-1", "q1"); err != nil {
		t.Fatalf("start question: %v", err)
	}

	ev := conn.last(t)
	if ev.name != app.EventQuestionStart {
		t.Fatalf("expected %s, got %s", app.EventQuestionStart, ev.name)
	}
	payload, ok := ev.payload.(app.QuestionStartPayload)
	if !ok {
		t.Fatalf("unexpected payload type %T", ev.payload)
	}
	if payload.ID != "q1" || payload.Points != 100 || payload.TimeLimit != 20 {
		t.Fatalf("unexpected payload %+v", payload)
	}
	// The canonical answer must never leave the server.
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	var leaked map[string]any
	_ = json.Unmarshal(raw, &leaked)
	if _, found := leaked["correctAnswer"]; found {
		t.Fatalf("broadcast payload leaks the canonical answer: %s", raw)
	}
}

func TestStartQuestionRequiresActiveSession(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.addSession(t, "sess-1", "ABC123", domain.SessionPending)

	if err := e.coord.StartQuestion(ctx, "sess-1", "q1"); domain.KindOf(err) != domain.KindForbidden {
		t.Fatalf("expected forbidden for pending session, got %v", err)
	}
}

func TestScoreSubmissionUsesPersistedBaseline(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	session := e.addSession(t, "sess-1", "ABC123", domain.SessionActive)
	quiz := testQuiz()
	question := quiz.Questions[0]

	// No correct answer on record: full credit.
	correct, points, err := e.coord.ScoreSubmission(ctx, session, question, json.RawMessage(`{"id":"B"}`))
	if err != nil || !correct || points != 100 {
		t.Fatalf("expected full credit, got correct=%v points=%d err=%v", correct, points, err)
	}

	// Record the first correct answer, then advance 7 seconds.
	first := domain.Answer{
		ID: "a1", SessionID: "sess-1", QuestionID: "q1", TeamID: "team-x",
		Payload: json.RawMessage(`{"id":"B"}`), IsCorrect: true, PointsAwarded: 100,
		AnsweredAt: e.clock.Now(),
	}
	if err := e.store.CreateAnswer(ctx, first); err != nil {
		t.Fatalf("create answer: %v", err)
	}
	e.clock.Advance(7 * time.Second)

	correct, points, err = e.coord.ScoreSubmission(ctx, session, question, json.RawMessage(`{"id":"B"}`))
	if err != nil || !correct || points != 90 {
		t.Fatalf("expected decayed 90, got correct=%v points=%d err=%v", correct, points, err)
	}
}

func TestLeaderboardRanksAndBreaksTies(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.addSession(t, "sess-1", "ABC123", domain.SessionActive)
	e.addTeam(t, "team-a", "sess-1", "Alpha")
	e.addTeam(t, "team-b", "sess-1", "Bravo")
	e.addTeam(t, "team-c", "sess-1", "Charlie")

	base := e.clock.Now()
	answers := []domain.Answer{
		{ID: "a1", SessionID: "sess-1", QuestionID: "q1", TeamID: "team-b", IsCorrect: true, PointsAwarded: 100, AnsweredAt: base},
		{ID: "a2", SessionID: "sess-1", QuestionID: "q1", TeamID: "team-a", IsCorrect: true, PointsAwarded: 90, AnsweredAt: base.Add(7 * time.Second)},
		{ID: "a3", SessionID: "sess-1", QuestionID: "q2", TeamID: "team-a", IsCorrect: true, PointsAwarded: 10, AnsweredAt: base.Add(20 * time.Second)},
		// Charlie reaches 100 later than Bravo did: tie broken by time.
		{ID: "a4", SessionID: "sess-1", QuestionID: "q2", TeamID: "team-c", IsCorrect: true, PointsAwarded: 100, AnsweredAt: base.Add(30 * time.Second)},
	}
	for _, a := range answers {
		a.Payload = json.RawMessage(`{}`)
		if err := e.store.CreateAnswer(ctx, a); err != nil {
			t.Fatalf("create answer: %v", err)
		}
	}

	leaderboard, err := e.coord.Leaderboard(ctx, "sess-1")
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	want := []domain.LeaderboardEntry{
		{TeamName: "Bravo", Score: 100, Rank: 1},
		{TeamName: "Alpha", Score: 100, Rank: 2},
		{TeamName: "Charlie", Score: 100, Rank: 3},
	}
	if len(leaderboard) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(leaderboard))
	}
	for i := range want {
		if leaderboard[i] != want[i] {
			t.Fatalf("entry %d: expected %+v, got %+v", i, want[i], leaderboard[i])
		}
	}
}

func TestEndSessionBroadcastsFinalLeaderboard(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.addSession(t, "sess-1", "ABC123", domain.SessionActive)
	e.addTeam(t, "team-a", "sess-1", "Alpha")

	conn := &fakeConn{}
	e.rooms.Join("ABC123", conn)

	e.clock.Advance(90 * time.Second)
	if _, err := e.coord.EndSession(ctx, "sess-1"); err != nil {
		t.Fatalf("end session: %v", err)
	}

	ev := conn.last(t)
	if ev.name != app.EventQuizEnd {
		t.Fatalf("expected %s, got %s", app.EventQuizEnd, ev.name)
	}
	payload, ok := ev.payload.(app.QuizEndPayload)
	if !ok {
		t.Fatalf("unexpected payload type %T", ev.payload)
	}
	if payload.TotalQuestions != 2 {
		t.Fatalf("expected 2 questions, got %d", payload.TotalQuestions)
	}
	if payload.SessionDuration != 90 {
		t.Fatalf("expected 90s duration, got %v", payload.SessionDuration)
	}
	if len(payload.FinalLeaderboard) != 1 || payload.FinalLeaderboard[0].Rank != 1 {
		t.Fatalf("unexpected final leaderboard %+v", payload.FinalLeaderboard)
	}
}

func TestRegisterTeam(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.addSession(t, "sess-1", "ABC123", domain.SessionPending)

	team, err := e.coord.RegisterTeam(ctx, "ABC123", "Alpha")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if team.SessionID != "sess-1" || team.Name != "Alpha" {
		t.Fatalf("unexpected team %+v", team)
	}

	// Duplicate name in the same session is a conflict, not an overwrite.
	if _, err := e.coord.RegisterTeam(ctx, "ABC123", "Alpha"); !errors.Is(err, domain.ErrDuplicateTeam) {
		t.Fatalf("expected duplicate team conflict, got %v", err)
	}

	if _, err := e.coord.RegisterTeam(ctx, "NOSUCH", "Bravo"); domain.KindOf(err) != domain.KindNotFound {
		t.Fatalf("expected not found for unknown code, got %v", err)
	}
}

func TestRegisterTeamEndedSession(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.addSession(t, "sess-1", "ABC123", domain.SessionEnded)

	if _, err := e.coord.RegisterTeam(ctx, "ABC123", "Alpha"); domain.KindOf(err) != domain.KindForbidden {
		t.Fatalf("expected forbidden for ended session, got %v", err)
	}
}
