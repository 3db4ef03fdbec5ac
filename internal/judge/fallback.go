package judge

import (
	"hash/fnv"
	"math/rand/v2"
	"sort"
)

const (
	FallbackMinScore = 50
	FallbackMaxScore = 90

	fallbackSummary    = "The judge was unavailable, so this round was scored automatically."
	fallbackCriteria   = "automatic"
	placeholderStart   = 30
	placeholderStep    = 5
	placeholderComment = "No drawing detected."
)

var fallbackComments = []string{
	"Bold lines and a confident take on the prompt.",
	"A creative interpretation, nicely done.",
	"Clear shapes that make the idea easy to read.",
	"Great energy in this one.",
	"A charming attempt with a lot of personality.",
	"Nice use of the canvas.",
}

// Fallback ranks submissions without a judge. The result depends only on the
// keyword and the set of player ids, so repeated calls for the same round
// agree with each other. Scores stay within [FallbackMinScore, FallbackMaxScore]
// and strictly decrease by rank for up to 41 players.
func Fallback(submissions []Submission, keyword string) Evaluation {
	ids := make([]string, 0, len(submissions))
	for _, sub := range submissions {
		ids = append(ids, sub.PlayerID)
	}
	sort.Strings(ids)

	h := fnv.New64a()
	_, _ = h.Write([]byte(keyword))
	for _, id := range ids {
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(id))
	}
	seed := h.Sum64()
	rng := rand.New(rand.NewPCG(seed, seed>>1|1))
	rng.Shuffle(len(ids), func(i, j int) {
		ids[i], ids[j] = ids[j], ids[i]
	})

	eval := Evaluation{
		Rankings: make([]Ranking, 0, len(ids)),
		Comments: make([]Comment, 0, len(ids)),
		Summary:  fallbackSummary,
		Criteria: fallbackCriteria,
		Fallback: true,
	}
	step := fallbackStep(len(ids))
	headroom := FallbackMaxScore - FallbackMinScore - step*(len(ids)-1)
	headroom = max(0, min(headroom, 20))
	score := FallbackMaxScore - rng.IntN(headroom+1)
	for i, id := range ids {
		if i > 0 {
			score -= step
		}
		if score < FallbackMinScore {
			score = FallbackMinScore
		}
		eval.Rankings = append(eval.Rankings, Ranking{Rank: i + 1, PlayerID: id, Score: score})
		eval.Comments = append(eval.Comments, Comment{
			PlayerID: id,
			Text:     fallbackComments[rng.IntN(len(fallbackComments))],
		})
	}
	return eval
}

// fallbackStep is the gap between neighbouring fallback scores. It is the
// widest gap, capped at 3, that fits n distinct scores into the fallback range.
// Past FallbackMaxScore-FallbackMinScore+1 players the lowest ranks share
// FallbackMinScore.
func fallbackStep(n int) int {
	if n <= 1 {
		return 0
	}
	step := (FallbackMaxScore - FallbackMinScore) / (n - 1)
	if step > 3 {
		step = 3
	}
	if step < 1 {
		step = 1
	}
	return step
}

// Placeholder is the flat ranking used when no submission carried enough
// content to be worth judging. Players keep their submission order.
func Placeholder(submissions []Submission) Evaluation {
	eval := Evaluation{
		Rankings: make([]Ranking, 0, len(submissions)),
		Comments: make([]Comment, 0, len(submissions)),
		Summary:  "Nobody drew anything this round.",
		Criteria: "placeholder",
		Fallback: true,
	}
	for i, sub := range submissions {
		score := placeholderStart - placeholderStep*i
		if score < 0 {
			score = 0
		}
		eval.Rankings = append(eval.Rankings, Ranking{Rank: i + 1, PlayerID: sub.PlayerID, Score: score})
		eval.Comments = append(eval.Comments, Comment{PlayerID: sub.PlayerID, Text: placeholderComment})
	}
	return eval
}

// RankUnjudged appends submissions that were kept away from the judge to the
// end of eval. Each gets a zero score and the placeholder comment. eval is not
// modified.
func RankUnjudged(eval Evaluation, unjudged []Submission) Evaluation {
	if len(unjudged) == 0 {
		return eval
	}
	out := eval
	out.Rankings = make([]Ranking, 0, len(eval.Rankings)+len(unjudged))
	out.Rankings = append(out.Rankings, eval.Rankings...)
	out.Comments = make([]Comment, 0, len(eval.Comments)+len(unjudged))
	out.Comments = append(out.Comments, eval.Comments...)
	next := len(eval.Rankings) + 1
	for i, sub := range unjudged {
		out.Rankings = append(out.Rankings, Ranking{Rank: next + i, PlayerID: sub.PlayerID, Score: MinScore})
		out.Comments = append(out.Comments, Comment{PlayerID: sub.PlayerID, Text: placeholderComment})
	}
	return out
}
