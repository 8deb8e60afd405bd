package app

import (
	"context"
	"time"

	"github.com/ardaongl/hsdarena-backend/internal/domain"
)

// Store is the persistence collaborator for the session engine. Finds
// report absence via the bool, reserving errors for real failures. Creates
// must enforce the documented uniqueness constraints and signal violations
// with the matching domain sentinel; that storage-level guarantee, not the
// application pre-check, is what makes answer submission exactly-once.
type Store interface {
	QuizByID(ctx context.Context, quizID string) (domain.Quiz, bool, error)

	CreateSession(ctx context.Context, session domain.Session) error
	SessionByID(ctx context.Context, sessionID string) (domain.Session, bool, error)
	SessionByCode(ctx context.Context, code string) (domain.Session, bool, error)
	UpdateSessionStatus(ctx context.Context, sessionID string, status domain.SessionStatus, endedAt *time.Time) error

	// CreateTeam returns domain.ErrDuplicateTeam when the (session, name)
	// pair already exists.
	CreateTeam(ctx context.Context, team domain.Team) error
	TeamsBySession(ctx context.Context, sessionID string) ([]domain.Team, error)

	QuestionByID(ctx context.Context, questionID string) (domain.Question, bool, error)

	// CreateAnswer returns domain.ErrDuplicateAnswer when the (session,
	// question, team) triple already exists.
	CreateAnswer(ctx context.Context, answer domain.Answer) error
	AnswerByTriple(ctx context.Context, sessionID, questionID, teamID string) (domain.Answer, bool, error)
	// FirstCorrectAnswer returns the earliest correct answer recorded for
	// the question in the session, the authoritative decay baseline.
	FirstCorrectAnswer(ctx context.Context, sessionID, questionID string) (domain.Answer, bool, error)
	AnswersBySession(ctx context.Context, sessionID string) ([]domain.Answer, error)
}

// QuizRepository loads quiz content, typically through a cache in front of
// the Store.
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// UserStore resolves organizer accounts for the credential collaborator.
type UserStore interface {
	UserByEmail(ctx context.Context, email string) (domain.User, bool, error)
}
