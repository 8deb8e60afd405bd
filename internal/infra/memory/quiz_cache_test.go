package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ardaongl/hsdarena-backend/internal/domain"
)

type countingSource struct {
	loads int64
	quiz  domain.Quiz
}

func (s *countingSource) QuizByID(_ context.Context, quizID string) (domain.Quiz, bool, error) {
	atomic.AddInt64(&s.loads, 1)
	if quizID != s.quiz.ID {
		return domain.Quiz{}, false, nil
	}
	return s.quiz, true, nil
}

func TestQuizCacheServesFromCache(t *testing.T) {
	ctx := context.Background()
	source := &countingSource{quiz: domain.Quiz{ID: "quiz-1", Title: "Demo"}}
	cache := NewQuizCache(source, time.Minute)

	for i := 0; i < 5; i++ {
		quiz, err := cache.GetQuiz(ctx, "quiz-1")
		if err != nil {
			t.Fatalf("get %d: %v", i, err)
		}
		if quiz.Title != "Demo" {
			t.Fatalf("unexpected quiz %+v", quiz)
		}
	}
	if n := atomic.LoadInt64(&source.loads); n != 1 {
		t.Fatalf("expected a single source load, got %d", n)
	}
}

func TestQuizCacheExpires(t *testing.T) {
	ctx := context.Background()
	source := &countingSource{quiz: domain.Quiz{ID: "quiz-1"}}
	cache := NewQuizCache(source, time.Minute)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cache.clock = func() time.Time { return now }

	if _, err := cache.GetQuiz(ctx, "quiz-1"); err != nil {
		t.Fatalf("warm: %v", err)
	}
	// Jitter extends the TTL by at most 10%.
	now = now.Add(2 * time.Minute)
	if _, err := cache.GetQuiz(ctx, "quiz-1"); err != nil {
		t.Fatalf("after expiry: %v", err)
	}
	if n := atomic.LoadInt64(&source.loads); n != 2 {
		t.Fatalf("expected reload after expiry, got %d loads", n)
	}
}

func TestQuizCacheMiss(t *testing.T) {
	cache := NewQuizCache(&countingSource{quiz: domain.Quiz{ID: "quiz-1"}}, time.Minute)
	_, err := cache.GetQuiz(context.Background(), "quiz-404")
	if domain.KindOf(err) != domain.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestQuizCacheSingleflight(t *testing.T) {
	ctx := context.Background()
	source := &countingSource{quiz: domain.Quiz{ID: "quiz-1"}}
	cache := NewQuizCache(source, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.GetQuiz(ctx, "quiz-1"); err != nil {
				t.Errorf("get: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := atomic.LoadInt64(&source.loads); n > 2 {
		t.Fatalf("expected coalesced loads, got %d", n)
	}
}
