// Package judge defines the scoring capability a room delegates to at the end
// of a round, the concrete judges behind it, and the fallback rankings used
// whenever a judge cannot produce a valid evaluation.
package judge

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	ModelOpenAI = "openai"
	ModelRandom = "random"
)

const (
	MinScore = 0
	MaxScore = 100
)

var (
	ErrMissingCredentials = errors.New("judge credentials are not configured")
	ErrUnknownModel       = errors.New("unknown judge model")
	ErrNoSubmissions      = errors.New("no submissions to evaluate")
	ErrInvalidImage       = errors.New("drawing is not a usable image")
)

type Submission struct {
	PlayerID  string    `json:"playerId"`
	ImageData string    `json:"-"`
	Timestamp time.Time `json:"timestamp"`
}

type Ranking struct {
	Rank     int    `json:"rank"`
	PlayerID string `json:"playerId"`
	Score    int    `json:"score"`
}

type Comment struct {
	PlayerID string `json:"playerId"`
	Text     string `json:"text"`
}

type Evaluation struct {
	Rankings []Ranking `json:"rankings"`
	Comments []Comment `json:"comments"`
	Summary  string    `json:"summary,omitempty"`
	Criteria string    `json:"criteria,omitempty"`
	Fallback bool      `json:"fallback"`
}

// Judge ranks one round of drawings against the round's keyword.
type Judge interface {
	Evaluate(ctx context.Context, submissions []Submission, keyword string) (Evaluation, error)
}

// JudgeFunc adapts a plain function to Judge.
type JudgeFunc func(ctx context.Context, submissions []Submission, keyword string) (Evaluation, error)

func (f JudgeFunc) Evaluate(ctx context.Context, submissions []Submission, keyword string) (Evaluation, error) {
	return f(ctx, submissions, keyword)
}

// Validate checks an evaluation against the submissions it was produced for:
// one ranking and one comment per player, no duplicates, ranks 1..N in order
// and scores non-increasing within 0..100.
func Validate(eval Evaluation, submissions []Submission) error {
	if len(submissions) == 0 {
		return ErrNoSubmissions
	}
	if len(eval.Rankings) != len(submissions) {
		return fmt.Errorf("expected %d rankings, got %d", len(submissions), len(eval.Rankings))
	}
	if len(eval.Comments) != len(submissions) {
		return fmt.Errorf("expected %d comments, got %d", len(submissions), len(eval.Comments))
	}
	expected := make(map[string]struct{}, len(submissions))
	for _, sub := range submissions {
		expected[sub.PlayerID] = struct{}{}
	}

	ranked := make(map[string]struct{}, len(eval.Rankings))
	for i, ranking := range eval.Rankings {
		if _, ok := expected[ranking.PlayerID]; !ok {
			return fmt.Errorf("ranking for unknown player %q", ranking.PlayerID)
		}
		if _, dup := ranked[ranking.PlayerID]; dup {
			return fmt.Errorf("duplicate ranking for player %q", ranking.PlayerID)
		}
		ranked[ranking.PlayerID] = struct{}{}
		if ranking.Rank != i+1 {
			return fmt.Errorf("rank %d at position %d", ranking.Rank, i+1)
		}
		if ranking.Score < MinScore || ranking.Score > MaxScore {
			return fmt.Errorf("score %d out of range for player %q", ranking.Score, ranking.PlayerID)
		}
		if i > 0 && ranking.Score > eval.Rankings[i-1].Score {
			return fmt.Errorf("rank %d scores higher than rank %d", ranking.Rank, ranking.Rank-1)
		}
	}

	commented := make(map[string]struct{}, len(eval.Comments))
	for _, comment := range eval.Comments {
		if _, ok := expected[comment.PlayerID]; !ok {
			return fmt.Errorf("comment for unknown player %q", comment.PlayerID)
		}
		if _, dup := commented[comment.PlayerID]; dup {
			return fmt.Errorf("duplicate comment for player %q", comment.PlayerID)
		}
		commented[comment.PlayerID] = struct{}{}
	}
	return nil
}

// CommentFor returns the judge's remark for a player, if any.
func (e Evaluation) CommentFor(playerID string) string {
	for _, comment := range e.Comments {
		if comment.PlayerID == playerID {
			return comment.Text
		}
	}
	return ""
}
