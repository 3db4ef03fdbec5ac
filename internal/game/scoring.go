package game

import (
	"context"

	"doodle-duel/internal/judge"

	"go.uber.org/zap"
)

// beginScoringIfCompleteLocked moves a playing room to scoring once every
// remaining player has submitted. It returns the round to score, or zero.
func (m *Manager) beginScoringIfCompleteLocked(sess *session) (int, error) {
	room, err := m.roomLocked(sess)
	if err != nil {
		return 0, err
	}
	if room.Status != StatusPlaying {
		return 0, nil
	}
	players := m.store.PlayersInRoom(room.ID)
	if len(players) == 0 {
		return 0, nil
	}
	for _, player := range players {
		if !player.HasSubmitted {
			return 0, nil
		}
	}
	return m.beginScoringLocked(sess, reasonAllSubmitted)
}

func (m *Manager) beginScoringLocked(sess *session, reason string) (int, error) {
	room, err := m.store.UpdateRoom(sess.roomID, transition(StatusScoring, nil))
	if err != nil {
		return 0, err
	}
	sess.stopTimer()
	m.events.Append(room.ID, EventEvaluationStarted, &EventPayload{Reason: reason, RoundNumber: room.RoundNumber})
	m.logger.Info("round scoring started",
		zap.String("room_id", room.ID),
		zap.Int("round", room.RoundNumber),
		zap.String("reason", reason))
	return room.RoundNumber, nil
}

// scoreRound gathers the round's drawings under the room lock, evaluates them
// without it, then re-takes the lock and applies the scores only if the room
// is still scoring the same round.
func (m *Manager) scoreRound(ctx context.Context, sess *session, round int) (RoundResult, error) {
	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		return RoundResult{}, ErrRoomNotFound
	}
	room, err := m.roomLocked(sess)
	if err != nil {
		sess.mu.Unlock()
		return RoundResult{}, err
	}
	if room.Status != StatusScoring || room.RoundNumber != round {
		sess.mu.Unlock()
		return RoundResult{}, errRoundSuperseded
	}
	drawings := m.store.DrawingsForRound(room.ID, round)
	sess.mu.Unlock()

	keyword := room.CurrentKeyword
	if len(drawings) > 0 {
		keyword = drawings[0].Keyword
	}
	eval, source, outcome := m.evaluate(ctx, room.JudgeModel, drawings, keyword)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return RoundResult{}, ErrRoomNotFound
	}
	room, err = m.roomLocked(sess)
	if err != nil {
		return RoundResult{}, err
	}
	if room.Status != StatusScoring || room.RoundNumber != round {
		return RoundResult{}, errRoundSuperseded
	}

	scores := m.applyScoresLocked(room, drawings, eval)
	if outcome.Fallback {
		m.events.Append(room.ID, EventEvaluationFailed, &EventPayload{Reason: outcome.Reason, RoundNumber: round})
	}
	room, err = m.store.UpdateRoom(room.ID, transition(StatusFinished, nil))
	if err != nil {
		return RoundResult{}, err
	}

	result := RoundResult{
		RoundNumber: round,
		Keyword:     keyword,
		Source:      source,
		Scores:      scores,
		Evaluation:  &eval,
	}
	if len(scores) > 0 {
		result.Winner = &Standing{PlayerID: scores[0].PlayerID, Nickname: scores[0].Nickname, Score: scores[0].Score}
	}
	sess.result = &result

	m.events.Append(room.ID, EventRoundCompleted, &EventPayload{
		RoundNumber: round,
		Scores:      scores,
		Winner:      result.Winner,
		Evaluation:  result.Evaluation,
	})
	m.metrics.RoundsCompleted.WithLabelValues(source).Inc()
	m.logger.Info("round completed",
		zap.String("room_id", room.ID),
		zap.Int("round", round),
		zap.String("source", source),
		zap.Int("drawings", len(drawings)))
	return result, nil
}

// evaluate picks how the round is ranked. Drawings shorter than the minimum
// canvas length never reach the judge: they are ranked after every judged
// drawing with a zero score. Rounds where every drawing is that short skip the
// judge entirely.
func (m *Manager) evaluate(ctx context.Context, model string, drawings []Drawing, keyword string) (judge.Evaluation, string, judge.Outcome) {
	outcome := judge.Outcome{Model: model}
	if len(drawings) == 0 {
		return judge.Evaluation{Summary: "No drawings were submitted this round."}, scoreSourceNoSubmissions, outcome
	}

	judged := make([]judge.Submission, 0, len(drawings))
	var blank []judge.Submission
	for _, drawing := range drawings {
		sub := judge.Submission{
			PlayerID:  drawing.PlayerID,
			ImageData: drawing.CanvasData,
			Timestamp: drawing.CreatedAt,
		}
		if len(drawing.CanvasData) >= m.opts.MinCanvasLength {
			judged = append(judged, sub)
		} else {
			blank = append(blank, sub)
		}
	}
	if len(judged) == 0 {
		return judge.Placeholder(blank), scoreSourcePlaceholder, outcome
	}

	eval, outcome := m.evaluator.Evaluate(ctx, model, judged, keyword)
	eval = judge.RankUnjudged(eval, blank)
	if outcome.Fallback {
		return eval, scoreSourceFallback, outcome
	}
	return eval, scoreSourceJudge, outcome
}

// applyScoresLocked records each drawing's score once and adds it to the
// player's cumulative score. Players who left mid-scoring are skipped.
func (m *Manager) applyScoresLocked(room Room, drawings []Drawing, eval judge.Evaluation) []RoundScore {
	byPlayer := make(map[string]Drawing, len(drawings))
	for _, drawing := range drawings {
		byPlayer[drawing.PlayerID] = drawing
	}

	scores := make([]RoundScore, 0, len(eval.Rankings))
	for _, ranking := range eval.Rankings {
		drawing, ok := byPlayer[ranking.PlayerID]
		if !ok {
			continue
		}
		if err := m.store.SetDrawingScore(drawing.ID, ranking.Score); err != nil {
			m.logger.Warn("drawing score not recorded",
				zap.String("room_id", room.ID),
				zap.Int64("drawing_id", drawing.ID),
				zap.Error(err))
			continue
		}
		player, err := m.store.UpdatePlayer(ranking.PlayerID, func(p *Player) error {
			if p.RoomID != room.ID {
				return ErrPlayerNotFound
			}
			p.Score += ranking.Score
			return nil
		})
		if err != nil {
			continue
		}
		scores = append(scores, RoundScore{
			PlayerID: player.ID,
			Nickname: player.Nickname,
			Rank:     ranking.Rank,
			Score:    ranking.Score,
			Total:    player.Score,
			Comment:  eval.CommentFor(player.ID),
		})
	}
	return scores
}
