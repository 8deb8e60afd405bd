package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ardaongl/hsdarena-backend/internal/domain"
)

// Store is an in-memory implementation of app.Store, used for tests and
// for running the server without Postgres. It enforces the same uniqueness
// constraints the SQL schema does, including the (session, question, team)
// answer constraint under concurrent writes.
type Store struct {
	mu             sync.RWMutex
	quizzes        map[string]domain.Quiz
	questions      map[string]domain.Question
	sessions       map[string]domain.Session
	sessionsByCode map[string]string
	teams          map[string]domain.Team
	teamNames      map[string]struct{}
	answers        map[string]domain.Answer
	users          map[string]domain.User
}

func NewStore() *Store {
	return &Store{
		quizzes:        make(map[string]domain.Quiz),
		questions:      make(map[string]domain.Question),
		sessions:       make(map[string]domain.Session),
		sessionsByCode: make(map[string]string),
		teams:          make(map[string]domain.Team),
		teamNames:      make(map[string]struct{}),
		answers:        make(map[string]domain.Answer),
		users:          make(map[string]domain.User),
	}
}

// PutQuiz stores a quiz and indexes its questions. Used by seeding and
// tests.
func (s *Store) PutQuiz(quiz domain.Quiz) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quizzes[quiz.ID] = quiz
	for _, q := range quiz.Questions {
		s.questions[q.ID] = q
	}
}

// PutUser stores an organizer account.
func (s *Store) PutUser(user domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[strings.ToLower(user.Email)] = user
}

func (s *Store) QuizByID(_ context.Context, quizID string) (domain.Quiz, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quiz, ok := s.quizzes[quizID]
	return quiz, ok, nil
}

func (s *Store) CreateSession(_ context.Context, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.sessionsByCode[session.Code]; taken {
		return domain.Conflictf("session code %q already in use", session.Code)
	}
	s.sessions[session.ID] = session
	s.sessionsByCode[session.Code] = session.ID
	return nil
}

func (s *Store) SessionByID(_ context.Context, sessionID string) (domain.Session, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	return session, ok, nil
}

func (s *Store) SessionByCode(_ context.Context, code string) (domain.Session, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.sessionsByCode[code]
	if !ok {
		return domain.Session{}, false, nil
	}
	session, ok := s.sessions[id]
	return session, ok, nil
}

func (s *Store) UpdateSessionStatus(_ context.Context, sessionID string, status domain.SessionStatus, endedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.NotFoundf("quiz session %q not found", sessionID)
	}
	session.Status = status
	session.EndedAt = endedAt
	s.sessions[sessionID] = session
	return nil
}

func (s *Store) CreateTeam(_ context.Context, team domain.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := team.SessionID + "\x00" + team.Name
	if _, taken := s.teamNames[key]; taken {
		return domain.ErrDuplicateTeam
	}
	s.teamNames[key] = struct{}{}
	s.teams[team.ID] = team
	return nil
}

func (s *Store) TeamsBySession(_ context.Context, sessionID string) ([]domain.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	teams := make([]domain.Team, 0)
	for _, team := range s.teams {
		if team.SessionID == sessionID {
			teams = append(teams, team)
		}
	}
	sort.Slice(teams, func(i, j int) bool { return teams[i].JoinedAt.Before(teams[j].JoinedAt) })
	return teams, nil
}

func (s *Store) QuestionByID(_ context.Context, questionID string) (domain.Question, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	question, ok := s.questions[questionID]
	return question, ok, nil
}

func (s *Store) CreateAnswer(_ context.Context, answer domain.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := tripleKey(answer.SessionID, answer.QuestionID, answer.TeamID)
	if _, taken := s.answers[key]; taken {
		return domain.ErrDuplicateAnswer
	}
	s.answers[key] = answer
	return nil
}

func (s *Store) AnswerByTriple(_ context.Context, sessionID, questionID, teamID string) (domain.Answer, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	answer, ok := s.answers[tripleKey(sessionID, questionID, teamID)]
	return answer, ok, nil
}

func (s *Store) FirstCorrectAnswer(_ context.Context, sessionID, questionID string) (domain.Answer, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var first domain.Answer
	found := false
	for _, answer := range s.answers {
		if answer.SessionID != sessionID || answer.QuestionID != questionID || !answer.IsCorrect {
			continue
		}
		if !found || answer.AnsweredAt.Before(first.AnsweredAt) {
			first = answer
			found = true
		}
	}
	return first, found, nil
}

func (s *Store) AnswersBySession(_ context.Context, sessionID string) ([]domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	answers := make([]domain.Answer, 0)
	for _, answer := range s.answers {
		if answer.SessionID == sessionID {
			answers = append(answers, answer)
		}
	}
	sort.Slice(answers, func(i, j int) bool { return answers[i].AnsweredAt.Before(answers[j].AnsweredAt) })
	return answers, nil
}

func (s *Store) UserByEmail(_ context.Context, email string) (domain.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[strings.ToLower(email)]
	return user, ok, nil
}

func tripleKey(sessionID, questionID, teamID string) string {
	return sessionID + "\x00" + questionID + "\x00" + teamID
}
