package cli

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/ardaongl/hsdarena-backend/internal/config"
	"github.com/ardaongl/hsdarena-backend/internal/domain"
	"github.com/ardaongl/hsdarena-backend/internal/infra/memory"
	pgstore "github.com/ardaongl/hsdarena-backend/internal/infra/postgres"
)

const (
	demoAdminEmail    = "admin@example.com"
	demoAdminPassword = "Admin123!"
)

// NewSeedCmd inserts the demo organizer and quiz.
func NewSeedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed the database with a demo organizer and quiz",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			return runSeed(cmd.Context(), cfg)
		},
	}
}

func runSeed(ctx context.Context, cfg config.Config) error {
	if err := runMigrationsWithConfig(ctx, cfg); err != nil {
		return err
	}
	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer pool.Close()
	st := pgstore.NewStore(pool)

	admin, quiz, err := demoData()
	if err != nil {
		return err
	}
	if err := st.CreateUser(ctx, admin); err != nil {
		return err
	}
	if err := st.CreateQuiz(ctx, quiz); err != nil {
		return err
	}
	log.Info().Str("admin", admin.Email).Str("quiz", quiz.Title).Msg("seeded demo data")
	return nil
}

// seedMemory loads the demo content into the in-memory store for running
// without Postgres.
func seedMemory(st *memory.Store) {
	admin, quiz, err := demoData()
	if err != nil {
		log.Error().Err(err).Msg("seed demo data")
		return
	}
	st.PutUser(admin)
	st.PutQuiz(quiz)
}

func demoData() (domain.User, domain.Quiz, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(demoAdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, domain.Quiz{}, err
	}
	admin := domain.User{
		ID:           uuid.NewString(),
		Email:        demoAdminEmail,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}

	quizID := uuid.NewString()
	isFalse := false
	quiz := domain.Quiz{
		ID:        quizID,
		Title:     "Demo Quiz",
		CreatedBy: admin.ID,
		Questions: []domain.Question{
			{
				ID:     uuid.NewString(),
				QuizID: quizID,
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
				ID:           uuid.NewString(),
				QuizID:       quizID,
				Index:        2,
				Text:         "The capital of Australia is Sydney.",
				Type:         domain.QuestionTrueFalse,
				Answer:       domain.AnswerKey{Value: &isFalse},
				TimeLimitSec: 15,
				Points:       50,
			},
		},
	}
	return admin, quiz, nil
}
