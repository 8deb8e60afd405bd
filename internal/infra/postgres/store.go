package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/ardaongl/hsdarena-backend/internal/domain"
)

// uniqueViolation is the Postgres error code for a violated unique
// constraint; it is the authoritative exactly-once signal for answers.
const uniqueViolation = "23505"

// Store implements app.Store on Postgres. The (session_id, question_id,
// team_id) unique index on answers and the (session_id, name) index on
// teams enforce the constraints the engine relies on, so concurrent writers
// on different connections cannot both succeed.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) QuizByID(ctx context.Context, quizID string) (domain.Quiz, bool, error) {
	var quiz domain.Quiz
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, COALESCE(created_by, '') FROM quizzes WHERE id=$1`, quizID).
		Scan(&quiz.ID, &quiz.Title, &quiz.CreatedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, false, nil
	}
	if err != nil {
		return domain.Quiz{}, false, fmt.Errorf("load quiz: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, quiz_id, index_in_quiz, text, type, choices, correct_answer, time_limit_sec, points
		 FROM questions WHERE quiz_id=$1 ORDER BY index_in_quiz ASC`, quizID)
	if err != nil {
		return domain.Quiz{}, false, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return domain.Quiz{}, false, err
		}
		quiz.Questions = append(quiz.Questions, q)
	}
	if err := rows.Err(); err != nil {
		return domain.Quiz{}, false, fmt.Errorf("load questions: %w", err)
	}
	return quiz, true, nil
}

func (s *Store) CreateSession(ctx context.Context, session domain.Session) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (id, code, quiz_id, status, created_at) VALUES ($1,$2,$3,$4,$5)`,
		session.ID, session.Code, session.QuizID, string(session.Status), session.CreatedAt)
	if isUniqueViolation(err) {
		return domain.Conflictf("session code %q already in use", session.Code)
	}
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *Store) SessionByID(ctx context.Context, sessionID string) (domain.Session, bool, error) {
	return s.sessionBy(ctx, `WHERE id=$1`, sessionID)
}

func (s *Store) SessionByCode(ctx context.Context, code string) (domain.Session, bool, error) {
	return s.sessionBy(ctx, `WHERE code=$1`, code)
}

func (s *Store) sessionBy(ctx context.Context, where, arg string) (domain.Session, bool, error) {
	var (
		session domain.Session
		status  string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, code, quiz_id, status, created_at, ended_at FROM sessions `+where, arg).
		Scan(&session.ID, &session.Code, &session.QuizID, &status, &session.CreatedAt, &session.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Session{}, false, nil
	}
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("load session: %w", err)
	}
	session.Status = domain.SessionStatus(status)
	return session, true, nil
}

func (s *Store) UpdateSessionStatus(ctx context.Context, sessionID string, status domain.SessionStatus, endedAt *time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET status=$2, ended_at=$3 WHERE id=$1`,
		sessionID, string(status), endedAt)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFoundf("quiz session %q not found", sessionID)
	}
	return nil
}

func (s *Store) CreateTeam(ctx context.Context, team domain.Team) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO teams (id, session_id, name, joined_at) VALUES ($1,$2,$3,$4)`,
		team.ID, team.SessionID, team.Name, team.JoinedAt)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateTeam
	}
	if err != nil {
		return fmt.Errorf("insert team: %w", err)
	}
	return nil
}

func (s *Store) TeamsBySession(ctx context.Context, sessionID string) ([]domain.Team, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, name, joined_at FROM teams WHERE session_id=$1 ORDER BY joined_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load teams: %w", err)
	}
	defer rows.Close()
	var teams []domain.Team
	for rows.Next() {
		var team domain.Team
		if err := rows.Scan(&team.ID, &team.SessionID, &team.Name, &team.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		teams = append(teams, team)
	}
	return teams, rows.Err()
}

func (s *Store) QuestionByID(ctx context.Context, questionID string) (domain.Question, bool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, quiz_id, index_in_quiz, text, type, choices, correct_answer, time_limit_sec, points
		 FROM questions WHERE id=$1`, questionID)
	q, err := scanQuestion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Question{}, false, nil
	}
	if err != nil {
		return domain.Question{}, false, err
	}
	return q, true, nil
}

func (s *Store) CreateAnswer(ctx context.Context, answer domain.Answer) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO answers (id, session_id, question_id, team_id, payload, is_correct, points_awarded, answered_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		answer.ID, answer.SessionID, answer.QuestionID, answer.TeamID,
		[]byte(answer.Payload), answer.IsCorrect, answer.PointsAwarded, answer.AnsweredAt)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateAnswer
	}
	if err != nil {
		return fmt.Errorf("insert answer: %w", err)
	}
	return nil
}

func (s *Store) AnswerByTriple(ctx context.Context, sessionID, questionID, teamID string) (domain.Answer, bool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, session_id, question_id, team_id, payload, is_correct, points_awarded, answered_at
		 FROM answers WHERE session_id=$1 AND question_id=$2 AND team_id=$3`,
		sessionID, questionID, teamID)
	return scanAnswerRow(row)
}

func (s *Store) FirstCorrectAnswer(ctx context.Context, sessionID, questionID string) (domain.Answer, bool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, session_id, question_id, team_id, payload, is_correct, points_awarded, answered_at
		 FROM answers WHERE session_id=$1 AND question_id=$2 AND is_correct
		 ORDER BY answered_at ASC LIMIT 1`,
		sessionID, questionID)
	return scanAnswerRow(row)
}

func (s *Store) AnswersBySession(ctx context.Context, sessionID string) ([]domain.Answer, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, question_id, team_id, payload, is_correct, points_awarded, answered_at
		 FROM answers WHERE session_id=$1 ORDER BY answered_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}
	defer rows.Close()
	var answers []domain.Answer
	for rows.Next() {
		var a domain.Answer
		var payload []byte
		if err := rows.Scan(&a.ID, &a.SessionID, &a.QuestionID, &a.TeamID, &payload, &a.IsCorrect, &a.PointsAwarded, &a.AnsweredAt); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		a.Payload = payload
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

func (s *Store) UserByEmail(ctx context.Context, email string) (domain.User, bool, error) {
	var user domain.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE lower(email)=lower($1)`, email).
		Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, false, nil
	}
	if err != nil {
		return domain.User{}, false, fmt.Errorf("load user: %w", err)
	}
	return user, true, nil
}

// CreateUser inserts an organizer account. Used by the seed command.
func (s *Store) CreateUser(ctx context.Context, user domain.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES ($1,$2,$3,$4)
		 ON CONFLICT (email) DO NOTHING`,
		user.ID, user.Email, user.PasswordHash, user.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// CreateQuiz inserts a quiz with its questions. Used by the seed command.
func (s *Store) CreateQuiz(ctx context.Context, quiz domain.Quiz) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO quizzes (id, title, created_by) VALUES ($1,$2,NULLIF($3,''))`,
		quiz.ID, quiz.Title, quiz.CreatedBy); err != nil {
		return fmt.Errorf("insert quiz: %w", err)
	}
	for _, q := range quiz.Questions {
		choices, err := json.Marshal(q.Choices)
		if err != nil {
			return fmt.Errorf("marshal choices: %w", err)
		}
		answer, err := json.Marshal(q.Answer)
		if err != nil {
			return fmt.Errorf("marshal answer: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO questions (id, quiz_id, index_in_quiz, text, type, choices, correct_answer, time_limit_sec, points)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			q.ID, quiz.ID, q.Index, q.Text, string(q.Type), choices, answer, q.TimeLimitSec, q.Points); err != nil {
			return fmt.Errorf("insert question: %w", err)
		}
	}
	return tx.Commit(ctx)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanQuestion(row rowScanner) (domain.Question, error) {
	var (
		q       domain.Question
		qtype   string
		choices []byte
		answer  []byte
	)
	if err := row.Scan(&q.ID, &q.QuizID, &q.Index, &q.Text, &qtype, &choices, &answer, &q.TimeLimitSec, &q.Points); err != nil {
		return domain.Question{}, err
	}
	q.Type = domain.QuestionType(qtype)
	if len(choices) > 0 {
		if err := json.Unmarshal(choices, &q.Choices); err != nil {
			return domain.Question{}, fmt.Errorf("unmarshal choices: %w", err)
		}
	}
	if len(answer) > 0 {
		if err := json.Unmarshal(answer, &q.Answer); err != nil {
			return domain.Question{}, fmt.Errorf("unmarshal correct answer: %w", err)
		}
	}
	return q, nil
}

func scanAnswerRow(row rowScanner) (domain.Answer, bool, error) {
	var (
		a       domain.Answer
		payload []byte
	)
	err := row.Scan(&a.ID, &a.SessionID, &a.QuestionID, &a.TeamID, &payload, &a.IsCorrect, &a.PointsAwarded, &a.AnsweredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Answer{}, false, nil
	}
	if err != nil {
		return domain.Answer{}, false, fmt.Errorf("scan answer: %w", err)
	}
	a.Payload = payload
	return a, true, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
