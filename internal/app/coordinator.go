package app

import (
	"context"
	"encoding/json"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/ardaongl/hsdarena-backend/internal/domain"
)

// Coordinator drives the session lifecycle and is the only component that
// establishes the first-correct-answer baseline for scoring. It keeps no
// per-session state in memory: the baseline is re-read from the persisted
// answers on every scoring call, so a restart or a second instance cannot
// disagree about who answered first.
type Coordinator struct {
	store   Store
	quizzes QuizRepository
	rooms   *Registry
	clock   clockwork.Clock

	codeMu sync.Mutex
	rnd    *rand.Rand
}

func NewCoordinator(store Store, quizzes QuizRepository, rooms *Registry, clock clockwork.Clock) *Coordinator {
	return &Coordinator{
		store:   store,
		quizzes: quizzes,
		rooms:   rooms,
		clock:   clock,
		rnd:     rand.New(rand.NewSource(clock.Now().UnixNano())),
	}
}

// CreateSession opens a new pending session for the quiz under a fresh join
// code.
func (c *Coordinator) CreateSession(ctx context.Context, quizID string) (domain.Session, error) {
	if _, err := c.quizzes.GetQuiz(ctx, quizID); err != nil {
		return domain.Session{}, err
	}

	code, err := c.uniqueCode(ctx)
	if err != nil {
		return domain.Session{}, err
	}

	session := domain.Session{
		ID:        uuid.NewString(),
		Code:      code,
		QuizID:    quizID,
		Status:    domain.SessionPending,
		CreatedAt: c.clock.Now().UTC(),
	}
	if err := c.store.CreateSession(ctx, session); err != nil {
		return domain.Session{}, domain.Internalf(err, "create session")
	}
	log.Info().Str("session", session.ID).Str("code", session.Code).Msg("session created")
	return session, nil
}

// StartSession moves the session to Active. The question set is frozen from
// here on.
func (c *Coordinator) StartSession(ctx context.Context, sessionID string) (domain.Session, error) {
	return c.transition(ctx, sessionID, domain.SessionActive)
}

// StartQuestion broadcasts the question (without its canonical answer) to
// the session's room. Rejected unless the session is Active.
func (c *Coordinator) StartQuestion(ctx context.Context, sessionID, questionID string) error {
	session, ok, err := c.store.SessionByID(ctx, sessionID)
	if err != nil {
		return domain.Internalf(err, "load session")
	}
	if !ok {
		return domain.NotFoundf("quiz session %q not found", sessionID)
	}
	if session.Status != domain.SessionActive {
		return domain.Forbiddenf("quiz session %q is not active", session.Code)
	}

	quiz, err := c.quizzes.GetQuiz(ctx, session.QuizID)
	if err != nil {
		return err
	}
	question, ok := quiz.QuestionByID(questionID)
	if !ok {
		return domain.NotFoundf("question %q not found", questionID)
	}

	c.rooms.Broadcast(session.Code, EventQuestionStart, QuestionStartPayload{
		ID:        question.ID,
		Text:      question.Text,
		Type:      question.Type,
		Choices:   question.Choices,
		TimeLimit: question.TimeLimitSec,
		Points:    question.Points,
	})
	log.Debug().Str("session", session.Code).Str("question", question.ID).Msg("question started")
	return nil
}

// EndSession moves the session to Ended and broadcasts the final ranked
// leaderboard with aggregate stats.
func (c *Coordinator) EndSession(ctx context.Context, sessionID string) (domain.Session, error) {
	session, err := c.transition(ctx, sessionID, domain.SessionEnded)
	if err != nil {
		return domain.Session{}, err
	}

	leaderboard, err := c.Leaderboard(ctx, session.ID)
	if err != nil {
		return domain.Session{}, err
	}
	totalQuestions := 0
	if quiz, qerr := c.quizzes.GetQuiz(ctx, session.QuizID); qerr == nil {
		totalQuestions = len(quiz.Questions)
	}
	duration := 0.0
	if session.EndedAt != nil {
		duration = session.EndedAt.Sub(session.CreatedAt).Seconds()
	}

	c.rooms.Broadcast(session.Code, EventQuizEnd, QuizEndPayload{
		FinalLeaderboard: leaderboard,
		TotalQuestions:   totalQuestions,
		SessionDuration:  duration,
	})
	log.Info().Str("session", session.Code).Int("teams", len(leaderboard)).Msg("session ended")
	return session, nil
}

// ScoreSubmission validates and scores one payload for an Active session.
// The decay baseline is the earliest persisted correct answer for the
// question, queried fresh on every call.
func (c *Coordinator) ScoreSubmission(ctx context.Context, session domain.Session, question domain.Question, payload json.RawMessage) (bool, int, error) {
	correct, err := Evaluate(question, payload)
	if err != nil {
		return false, 0, err
	}
	if !correct {
		return false, 0, nil
	}

	first, found, err := c.store.FirstCorrectAnswer(ctx, session.ID, question.ID)
	if err != nil {
		return false, 0, domain.Internalf(err, "load first correct answer")
	}
	if !found {
		return true, AwardPoints(question.Points, true, 0), nil
	}
	return true, AwardPoints(question.Points, false, c.clock.Now().Sub(first.AnsweredAt)), nil
}

// AnnounceScore broadcasts the refreshed leaderboard after an accepted
// answer. Broadcast problems never fail the submission that triggered them.
func (c *Coordinator) AnnounceScore(ctx context.Context, session domain.Session, questionID string) {
	leaderboard, err := c.Leaderboard(ctx, session.ID)
	if err != nil {
		log.Warn().Err(err).Str("session", session.Code).Msg("skipping score broadcast")
		return
	}
	c.rooms.Broadcast(session.Code, EventScoreUpdate, ScoreUpdatePayload{
		Leaderboard: leaderboard,
		QuestionID:  questionID,
	})
}

// Leaderboard ranks the session's teams by cumulative points, ties broken
// by whoever reached their total first, then by name for stability.
func (c *Coordinator) Leaderboard(ctx context.Context, sessionID string) ([]domain.LeaderboardEntry, error) {
	teams, err := c.store.TeamsBySession(ctx, sessionID)
	if err != nil {
		return nil, domain.Internalf(err, "load teams")
	}
	answers, err := c.store.AnswersBySession(ctx, sessionID)
	if err != nil {
		return nil, domain.Internalf(err, "load answers")
	}

	scores := make(map[string]int, len(teams))
	reachedAt := make(map[string]time.Time, len(teams))
	for _, a := range answers {
		if a.PointsAwarded <= 0 {
			continue
		}
		scores[a.TeamID] += a.PointsAwarded
		if a.AnsweredAt.After(reachedAt[a.TeamID]) {
			reachedAt[a.TeamID] = a.AnsweredAt
		}
	}

	type row struct {
		name      string
		score     int
		reachedAt time.Time
	}
	rows := make([]row, 0, len(teams))
	for _, team := range teams {
		rows = append(rows, row{name: team.Name, score: scores[team.ID], reachedAt: reachedAt[team.ID]})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].score != rows[j].score {
			return rows[i].score > rows[j].score
		}
		if !rows[i].reachedAt.Equal(rows[j].reachedAt) {
			return rows[i].reachedAt.Before(rows[j].reachedAt)
		}
		return rows[i].name < rows[j].name
	})

	entries := make([]domain.LeaderboardEntry, len(rows))
	for i, r := range rows {
		entries[i] = domain.LeaderboardEntry{TeamName: r.name, Score: r.score, Rank: i + 1}
	}
	return entries, nil
}

// RegisterTeam joins a team to the session identified by code. The name is
// unique within the session; a duplicate is a conflict, not an overwrite.
func (c *Coordinator) RegisterTeam(ctx context.Context, sessionCode, teamName string) (domain.Team, error) {
	session, ok, err := c.store.SessionByCode(ctx, sessionCode)
	if err != nil {
		return domain.Team{}, domain.Internalf(err, "load session")
	}
	if !ok {
		return domain.Team{}, domain.NotFoundf("session with code %q not found", sessionCode)
	}
	if session.Status == domain.SessionEnded {
		return domain.Team{}, domain.Forbiddenf("quiz session %q has already ended", session.Code)
	}

	team := domain.Team{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		Name:      teamName,
		JoinedAt:  c.clock.Now().UTC(),
	}
	if err := c.store.CreateTeam(ctx, team); err != nil {
		return domain.Team{}, err
	}
	return team, nil
}

// SessionByCode resolves a join code for transport-layer room checks.
func (c *Coordinator) SessionByCode(ctx context.Context, code string) (domain.Session, error) {
	session, ok, err := c.store.SessionByCode(ctx, code)
	if err != nil {
		return domain.Session{}, domain.Internalf(err, "load session")
	}
	if !ok {
		return domain.Session{}, domain.NotFoundf("session with code %q not found", code)
	}
	return session, nil
}

func (c *Coordinator) transition(ctx context.Context, sessionID string, next domain.SessionStatus) (domain.Session, error) {
	session, ok, err := c.store.SessionByID(ctx, sessionID)
	if err != nil {
		return domain.Session{}, domain.Internalf(err, "load session")
	}
	if !ok {
		return domain.Session{}, domain.NotFoundf("quiz session %q not found", sessionID)
	}
	if !session.Status.CanTransition(next) {
		return domain.Session{}, domain.Forbiddenf("quiz session %q cannot move from %s to %s", session.Code, session.Status, next)
	}

	var endedAt *time.Time
	if next == domain.SessionEnded {
		now := c.clock.Now().UTC()
		endedAt = &now
	}
	if err := c.store.UpdateSessionStatus(ctx, session.ID, next, endedAt); err != nil {
		return domain.Session{}, domain.Internalf(err, "update session status")
	}
	session.Status = next
	session.EndedAt = endedAt
	return session, nil
}

func (c *Coordinator) uniqueCode(ctx context.Context) (string, error) {
	for {
		c.codeMu.Lock()
		code := domain.NewSessionCode(c.rnd)
		c.codeMu.Unlock()

		_, taken, err := c.store.SessionByCode(ctx, code)
		if err != nil {
			return "", domain.Internalf(err, "check session code")
		}
		if !taken {
			return code, nil
		}
	}
}
