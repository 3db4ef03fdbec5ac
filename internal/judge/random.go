package judge

import (
	"context"
	"math/rand/v2"
	"sort"
	"sync"
)

// Random scores drawings with a seeded pseudo-random source. It never fails
// and is the judge of choice for local play without credentials.
type Random struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandom(seed uint64) *Random {
	return &Random{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (r *Random) Evaluate(ctx context.Context, submissions []Submission, keyword string) (Evaluation, error) {
	if len(submissions) == 0 {
		return Evaluation{}, ErrNoSubmissions
	}
	if err := ctx.Err(); err != nil {
		return Evaluation{}, err
	}

	r.mu.Lock()
	rankings := make([]Ranking, 0, len(submissions))
	comments := make([]Comment, 0, len(submissions))
	for _, sub := range submissions {
		rankings = append(rankings, Ranking{PlayerID: sub.PlayerID, Score: 20 + r.rng.IntN(81)})
		comments = append(comments, Comment{
			PlayerID: sub.PlayerID,
			Text:     fallbackComments[r.rng.IntN(len(fallbackComments))],
		})
	}
	r.mu.Unlock()

	sort.SliceStable(rankings, func(i, j int) bool {
		return rankings[i].Score > rankings[j].Score
	})
	for i := range rankings {
		rankings[i].Rank = i + 1
	}
	return Evaluation{
		Rankings: rankings,
		Comments: comments,
		Summary:  "Scores were drawn at random for the keyword \"" + keyword + "\".",
		Criteria: "random",
	}, nil
}
