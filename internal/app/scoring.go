package app

import (
	"encoding/json"
	"math"
	"time"

	"github.com/ardaongl/hsdarena-backend/internal/domain"
)

// decayStep is how long each 10% reduction bucket lasts after the first
// correct answer.
const decayStep = 5 * time.Second

// decayFloor guarantees a late correct answer still earns 10% of the
// question's value.
const decayFloor = 0.1

// Score validates payload against the question type, decides correctness,
// and computes the time-decayed award. It is pure: the first-correct
// baseline is supplied by the caller, which is the only place allowed to
// establish it. A malformed payload yields a BadRequest error and must be
// rejected before anything is recorded; it is never scored as incorrect.
func Score(q domain.Question, payload json.RawMessage, firstCorrect bool, sinceFirst time.Duration) (bool, int, error) {
	correct, err := Evaluate(q, payload)
	if err != nil {
		return false, 0, err
	}
	if !correct {
		return false, 0, nil
	}
	return true, AwardPoints(q.Points, firstCorrect, sinceFirst), nil
}

// Evaluate checks payload shape and correctness without awarding points.
// Unsupported question types score as incorrect without error so that new
// types can ship before this engine learns to grade them.
func Evaluate(q domain.Question, payload json.RawMessage) (bool, error) {
	switch q.Type {
	case domain.QuestionMultipleChoice:
		submitted, err := decodeChoicePayload(payload)
		if err != nil {
			return false, err
		}
		if q.Answer.ChoiceID == "" {
			return false, domain.Internalf(nil, "question %s has no canonical choice", q.ID)
		}
		return submitted == q.Answer.ChoiceID, nil
	case domain.QuestionTrueFalse:
		submitted, err := decodeBoolPayload(payload)
		if err != nil {
			return false, err
		}
		if q.Answer.Value == nil {
			return false, domain.Internalf(nil, "question %s has no canonical value", q.ID)
		}
		return submitted == *q.Answer.Value, nil
	default:
		return false, nil
	}
}

// AwardPoints applies the step decay: full value for the first correct
// answer, then 10% off per elapsed 5-second bucket since that first answer,
// floored at 10% and rounded to the nearest point.
func AwardPoints(points int, firstCorrect bool, sinceFirst time.Duration) int {
	if firstCorrect {
		return points
	}
	factor := 1 - math.Floor(sinceFirst.Seconds()/decayStep.Seconds())*0.1
	if factor < decayFloor {
		factor = decayFloor
	}
	if factor > 1 {
		factor = 1
	}
	return int(math.Round(float64(points) * factor))
}

func decodeChoicePayload(payload json.RawMessage) (string, error) {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(payload, &body); err != nil {
		return "", domain.BadRequestf("answer payload must be a valid object")
	}
	raw, ok := body["id"]
	if !ok {
		return "", badPayload(`{"id": "string"}`)
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return "", badPayload(`{"id": "string"}`)
	}
	return id, nil
}

func decodeBoolPayload(payload json.RawMessage) (bool, error) {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(payload, &body); err != nil {
		return false, domain.BadRequestf("answer payload must be a valid object")
	}
	raw, ok := body["value"]
	if !ok {
		return false, badPayload(`{"value": boolean}`)
	}
	var value bool
	if err := json.Unmarshal(raw, &value); err != nil {
		return false, badPayload(`{"value": boolean}`)
	}
	return value, nil
}

func badPayload(shape string) error {
	return domain.BadRequestf("invalid answer payload, expecting %s", shape)
}
