package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/ardaongl/hsdarena-backend/internal/domain"
	"github.com/ardaongl/hsdarena-backend/internal/infra/memory"
)

// QuizCache caches whole quizzes as JSON in Redis and falls back to the
// backing store on a miss. Unlike the in-process cache this survives
// restarts and is shared between instances.
// Layout: SET quiz:{quizID} {json} EX ttl
type QuizCache struct {
	client *redis.Client
	source memory.QuizSource
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewQuizCache(client *redis.Client, source memory.QuizSource, ttl time.Duration) *QuizCache {
	return &QuizCache{
		client: client,
		source: source,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuizCache) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	key := c.key(quizID)

	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var quiz domain.Quiz
		if err := json.Unmarshal(raw, &quiz); err == nil {
			return quiz, nil
		}
		// fall through on a corrupt entry and refill below
	}

	result, err, _ := c.sf.Do(quizID, func() (interface{}, error) {
		// Re-check in case another goroutine filled the key.
		if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
			var quiz domain.Quiz
			if err := json.Unmarshal(raw, &quiz); err == nil {
				return quiz, nil
			}
		}

		quiz, ok, err := c.source.QuizByID(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, domain.Internalf(err, "load quiz")
		}
		if !ok {
			return domain.Quiz{}, domain.NotFoundf("quiz %q not found", quizID)
		}

		if raw, err := json.Marshal(quiz); err == nil {
			// best-effort: a failed cache write must not fail the read
			_ = c.client.Set(ctx, key, raw, c.ttlWithJitter()).Err()
		}
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func (c *QuizCache) key(quizID string) string {
	return "quiz:" + quizID
}

func (c *QuizCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
