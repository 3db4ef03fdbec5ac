package game

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"doodle-duel/internal/judge"
	"doodle-duel/internal/metrics"

	"go.uber.org/zap"
)

const maxRoomCodeAttempts = 10

var errRoundSuperseded = errors.New("round no longer being scored")

// Evaluator ranks a round's submissions. It always produces a ranking and
// reports through the outcome whether the fallback was used.
type Evaluator interface {
	Evaluate(ctx context.Context, model string, submissions []judge.Submission, keyword string) (judge.Evaluation, judge.Outcome)
}

type Options struct {
	RoundSeconds    int
	TickInterval    time.Duration
	MinCanvasLength int
	Keywords        *Vocabulary
	Judges          *judge.Registry
	Evaluator       Evaluator
	Recorder        Recorder
	Logger          *zap.Logger
	Metrics         *metrics.Metrics
	Clock           func() time.Time
}

type session struct {
	mu     sync.Mutex
	roomID string
	closed bool
	timer  *roundTimer
	result *RoundResult
}

func (s *session) stopTimer() {
	if s.timer != nil {
		s.timer.cancel()
		s.timer = nil
	}
}

// Manager owns every room. Each room has its own lock; operations on one room
// are serialized and operations on different rooms run in parallel. The lock
// is never held while the judge runs.
type Manager struct {
	store     *Store
	events    *EventLog
	opts      Options
	judges    *judge.Registry
	evaluator Evaluator
	keywords  *Vocabulary
	logger    *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*session
}

func NewManager(opts Options) *Manager {
	if opts.RoundSeconds <= 0 {
		opts.RoundSeconds = 60
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.MinCanvasLength < 0 {
		opts.MinCanvasLength = 0
	}
	if opts.Keywords == nil {
		opts.Keywords = DefaultVocabulary()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(nil)
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}
	if opts.Judges == nil {
		opts.Judges = judge.NewRegistry(judge.ModelRandom)
		opts.Judges.Register(judge.ModelRandom, judge.NewRandom(uint64(time.Now().UnixNano())))
	}
	if opts.Evaluator == nil {
		opts.Evaluator = judge.NewEvaluator(opts.Judges, judge.EvaluatorConfig{}, opts.Logger, opts.Metrics)
	}

	events := NewEventLog(opts.Recorder)
	events.now = opts.Clock
	events.onAppend = func(eventType string) {
		opts.Metrics.EventsAppended.WithLabelValues(eventType).Inc()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		store:     NewStore(),
		events:    events,
		opts:      opts,
		judges:    opts.Judges,
		evaluator: opts.Evaluator,
		keywords:  opts.Keywords,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		now:       opts.Clock,
		ctx:       ctx,
		cancel:    cancel,
		sessions:  make(map[string]*session),
	}
}

// Close stops every round timer and waits for timers and background scoring
// to finish. In-flight judge calls are cancelled and fall back.
func (m *Manager) Close() {
	m.cancel()
	m.mu.Lock()
	sessions := make([]*session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sessions = append(sessions, sess)
	}
	m.mu.Unlock()
	for _, sess := range sessions {
		sess.mu.Lock()
		sess.stopTimer()
		sess.mu.Unlock()
	}
	m.wg.Wait()
}

func (m *Manager) Store() *Store {
	return m.store
}

func (m *Manager) Events() *EventLog {
	return m.events
}

func normalizeRoomID(roomID string) string {
	return strings.ToUpper(strings.TrimSpace(roomID))
}

// lockRoom returns the room's session with its lock held.
func (m *Manager) lockRoom(roomID string) (*session, error) {
	m.mu.Lock()
	sess, ok := m.sessions[normalizeRoomID(roomID)]
	m.mu.Unlock()
	if !ok {
		return nil, ErrRoomNotFound
	}
	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		return nil, ErrRoomNotFound
	}
	return sess, nil
}

func (m *Manager) roomLocked(sess *session) (Room, error) {
	room, ok := m.store.Room(sess.roomID)
	if !ok {
		return Room{}, ErrRoomNotFound
	}
	return room, nil
}

func (m *Manager) playerInRoomLocked(sess *session, playerID string) (Player, error) {
	player, ok := m.store.Player(playerID)
	if !ok || player.RoomID != sess.roomID {
		return Player{}, ErrPlayerNotFound
	}
	return player, nil
}

func (m *Manager) snapshotLocked(sess *session) (Snapshot, error) {
	room, err := m.roomLocked(sess)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Room: room, Players: m.store.PlayersInRoom(room.ID)}, nil
}

func (m *Manager) CreateRoom(hostID, nickname, judgeModel string) (Snapshot, error) {
	hostID = strings.TrimSpace(hostID)
	nickname = strings.TrimSpace(nickname)
	if hostID == "" {
		return Snapshot{}, invalidInput("host id is required")
	}
	if nickname == "" {
		return Snapshot{}, invalidInput("nickname is required")
	}
	model, ok := m.judges.Resolve(judgeModel)
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrUnknownJudge, judgeModel)
	}
	if _, exists := m.store.Player(hostID); exists {
		return Snapshot{}, ErrPlayerExists
	}

	now := m.now()
	m.mu.Lock()
	var sess *session
	for attempt := 0; attempt < maxRoomCodeAttempts && sess == nil; attempt++ {
		code := newRoomCode()
		if _, taken := m.sessions[code]; taken {
			continue
		}
		room := Room{
			ID:          code,
			HostID:      hostID,
			Status:      StatusWaiting,
			RoundNumber: 1,
			TimeLeft:    m.opts.RoundSeconds,
			JudgeModel:  model,
			CreatedAt:   now,
		}
		if !m.store.InsertRoom(room) {
			continue
		}
		sess = &session{roomID: code}
		sess.mu.Lock()
		m.sessions[code] = sess
	}
	m.mu.Unlock()
	if sess == nil {
		return Snapshot{}, errors.New("could not allocate a room code")
	}
	defer sess.mu.Unlock()

	host, err := m.store.InsertPlayer(Player{
		ID:         hostID,
		RoomID:     sess.roomID,
		Nickname:   nickname,
		IsHost:     true,
		JoinedAt:   now,
		LastActive: now,
	})
	if err != nil {
		m.destroyLocked(sess, reasonCreateFailed)
		return Snapshot{}, err
	}

	m.metrics.RoomsActive.Inc()
	m.events.Append(sess.roomID, EventRoomCreated, &EventPayload{
		HostID:     host.ID,
		Nickname:   host.Nickname,
		JudgeModel: model,
		Roster:     []Player{host},
	})
	m.logger.Info("room created",
		zap.String("room_id", sess.roomID),
		zap.String("host_id", host.ID),
		zap.String("judge_model", model))
	return m.snapshotLocked(sess)
}

func (m *Manager) JoinRoom(roomID, playerID, nickname string) (JoinResult, error) {
	playerID = strings.TrimSpace(playerID)
	nickname = strings.TrimSpace(nickname)
	if playerID == "" {
		return JoinResult{}, invalidInput("player id is required")
	}
	if nickname == "" {
		return JoinResult{}, invalidInput("nickname is required")
	}

	sess, err := m.lockRoom(roomID)
	if err != nil {
		return JoinResult{}, err
	}
	defer sess.mu.Unlock()

	room, err := m.roomLocked(sess)
	if err != nil {
		return JoinResult{}, err
	}
	if room.Status != StatusWaiting {
		return JoinResult{}, ErrNotWaiting
	}
	for _, existing := range m.store.PlayersInRoom(room.ID) {
		if existing.Nickname == nickname {
			return JoinResult{}, ErrNicknameTaken
		}
	}

	now := m.now()
	player, err := m.store.InsertPlayer(Player{
		ID:         playerID,
		RoomID:     room.ID,
		Nickname:   nickname,
		JoinedAt:   now,
		LastActive: now,
	})
	if err != nil {
		return JoinResult{}, err
	}

	roster := m.store.PlayersInRoom(room.ID)
	m.events.Append(room.ID, EventPlayerJoined, &EventPayload{
		PlayerID: player.ID,
		Nickname: player.Nickname,
		Roster:   roster,
	})
	m.logger.Info("player joined",
		zap.String("room_id", room.ID),
		zap.String("player_id", player.ID),
		zap.Int("players", len(roster)))
	return JoinResult{Snapshot: Snapshot{Room: room, Players: roster}, IsHost: player.IsHost}, nil
}

// LeaveRoom removes a player. A departing host hands the room to the earliest
// remaining joiner first; the last player out closes the room.
func (m *Manager) LeaveRoom(roomID, playerID string) (LeaveResult, error) {
	sess, err := m.lockRoom(roomID)
	if err != nil {
		return LeaveResult{}, err
	}
	player, err := m.playerInRoomLocked(sess, playerID)
	if err != nil {
		sess.mu.Unlock()
		return LeaveResult{}, err
	}
	result, round, err := m.leaveLocked(sess, player, reasonLeft)
	sess.mu.Unlock()
	if err != nil {
		return LeaveResult{}, err
	}
	if round > 0 {
		m.scoreAsync(sess, round)
	}
	return result, nil
}

// leaveLocked returns the round number when the departure completed the
// round's submissions and scoring must run.
func (m *Manager) leaveLocked(sess *session, player Player, reason string) (LeaveResult, int, error) {
	result := LeaveResult{WasHost: player.IsHost}
	players := m.store.PlayersInRoom(sess.roomID)
	if len(players) <= 1 {
		m.destroyLocked(sess, reason)
		result.RoomClosed = true
		return result, 0, nil
	}
	if player.IsHost {
		next, ok := findNewHost(players, player.ID)
		if !ok {
			return result, 0, &InvariantError{RoomID: sess.roomID, Hosts: 1, Detail: "no successor for departing host"}
		}
		if err := m.transferHostLocked(sess, next.ID); err != nil {
			return result, 0, err
		}
		result.NewHostID = next.ID
	}
	if err := m.removePlayerLocked(sess, player.ID, reason); err != nil {
		return result, 0, err
	}
	round, err := m.beginScoringIfCompleteLocked(sess)
	if err != nil {
		return result, 0, err
	}
	return result, round, nil
}

// RemovePlayer deletes a player without choosing a new host. Removing the host
// of a room that still has other players is refused; transfer the host first.
func (m *Manager) RemovePlayer(roomID, playerID string) (LeaveResult, error) {
	sess, err := m.lockRoom(roomID)
	if err != nil {
		return LeaveResult{}, err
	}
	player, err := m.playerInRoomLocked(sess, playerID)
	if err != nil {
		sess.mu.Unlock()
		return LeaveResult{}, err
	}
	closing := len(m.store.PlayersInRoom(sess.roomID)) == 1
	if err := m.removePlayerLocked(sess, player.ID, reasonLeft); err != nil {
		sess.mu.Unlock()
		return LeaveResult{}, err
	}
	round, err := m.beginScoringIfCompleteLocked(sess)
	sess.mu.Unlock()
	if err != nil && !errors.Is(err, ErrRoomNotFound) {
		return LeaveResult{}, err
	}
	if round > 0 {
		m.scoreAsync(sess, round)
	}
	return LeaveResult{WasHost: player.IsHost, RoomClosed: closing}, nil
}

func (m *Manager) removePlayerLocked(sess *session, playerID, reason string) error {
	player, err := m.playerInRoomLocked(sess, playerID)
	if err != nil {
		return err
	}
	players := m.store.PlayersInRoom(sess.roomID)
	if len(players) == 1 {
		m.destroyLocked(sess, reason)
		return nil
	}
	if player.IsHost {
		return fmt.Errorf("%w: transfer the host before removing it", ErrInvalidState)
	}
	m.store.DeletePlayer(player.ID)
	roster := m.store.PlayersInRoom(sess.roomID)
	m.events.Append(sess.roomID, EventPlayerLeft, &EventPayload{
		PlayerID: player.ID,
		Nickname: player.Nickname,
		Reason:   reason,
		Roster:   roster,
	})
	m.logger.Info("player left",
		zap.String("room_id", sess.roomID),
		zap.String("player_id", player.ID),
		zap.String("reason", reason),
		zap.Int("players", len(roster)))
	return nil
}

// destroyLocked deletes the room with its players, drawings, events and timer.
func (m *Manager) destroyLocked(sess *session, reason string) {
	sess.stopTimer()
	sess.closed = true
	m.store.DeleteRoom(sess.roomID)
	m.events.DeleteRoom(sess.roomID)
	m.mu.Lock()
	if current, ok := m.sessions[sess.roomID]; ok && current == sess {
		delete(m.sessions, sess.roomID)
	}
	m.mu.Unlock()
	if reason != reasonCreateFailed {
		m.metrics.RoomsActive.Dec()
	}
	m.logger.Info("room closed", zap.String("room_id", sess.roomID), zap.String("reason", reason))
}

func (m *Manager) StartGame(roomID, hostID string) (RoundStart, error) {
	return m.startRound(roomID, hostID, StatusWaiting, EventGameStarted)
}

func (m *Manager) NextRound(roomID, hostID string) (RoundStart, error) {
	return m.startRound(roomID, hostID, StatusFinished, EventNextRoundStarted)
}

func (m *Manager) startRound(roomID, hostID string, from RoomStatus, eventType string) (RoundStart, error) {
	sess, err := m.lockRoom(roomID)
	if err != nil {
		return RoundStart{}, err
	}
	defer sess.mu.Unlock()

	room, err := m.roomLocked(sess)
	if err != nil {
		return RoundStart{}, err
	}
	if room.HostID != hostID {
		return RoundStart{}, ErrNotHost
	}
	if room.Status != from {
		return RoundStart{}, ErrInvalidState
	}

	keyword := m.keywords.Pick()
	room, err = m.store.UpdateRoom(room.ID, transition(StatusPlaying, func(r *Room) {
		if eventType == EventNextRoundStarted {
			r.RoundNumber++
		}
		r.CurrentKeyword = keyword
		r.TimeLeft = m.opts.RoundSeconds
	}))
	if err != nil {
		return RoundStart{}, err
	}
	m.store.UpdatePlayersInRoom(room.ID, func(p *Player) {
		p.HasSubmitted = false
	})
	m.startTimerLocked(sess, room.RoundNumber)

	m.events.Append(room.ID, eventType, &EventPayload{Keyword: keyword, RoundNumber: room.RoundNumber})
	m.metrics.RoundsStarted.Inc()
	m.logger.Info("round started",
		zap.String("room_id", room.ID),
		zap.Int("round", room.RoundNumber),
		zap.String("keyword", keyword))
	return RoundStart{Keyword: keyword, RoundNumber: room.RoundNumber, TimeLeft: room.TimeLeft}, nil
}

// SubmitDrawing records a player's drawing for the current round. The
// submission that completes the round runs scoring before returning.
func (m *Manager) SubmitDrawing(roomID, playerID, canvasData string) (SubmitResult, error) {
	sess, err := m.lockRoom(roomID)
	if err != nil {
		return SubmitResult{}, err
	}
	room, err := m.roomLocked(sess)
	if err != nil {
		sess.mu.Unlock()
		return SubmitResult{}, err
	}
	if room.Status != StatusPlaying {
		sess.mu.Unlock()
		return SubmitResult{}, ErrInvalidState
	}
	player, err := m.playerInRoomLocked(sess, playerID)
	if err != nil {
		sess.mu.Unlock()
		return SubmitResult{}, err
	}
	if player.HasSubmitted {
		sess.mu.Unlock()
		return SubmitResult{}, ErrAlreadySubmitted
	}

	now := m.now()
	m.store.InsertDrawing(Drawing{
		PlayerID:    player.ID,
		RoomID:      room.ID,
		RoundNumber: room.RoundNumber,
		CanvasData:  canvasData,
		Keyword:     room.CurrentKeyword,
		CreatedAt:   now,
	})
	if _, err := m.store.UpdatePlayer(player.ID, func(p *Player) error {
		p.HasSubmitted = true
		p.LastActive = now
		return nil
	}); err != nil {
		sess.mu.Unlock()
		return SubmitResult{}, err
	}
	m.events.Append(room.ID, EventDrawingSubmitted, &EventPayload{PlayerID: player.ID, RoundNumber: room.RoundNumber})

	round, err := m.beginScoringIfCompleteLocked(sess)
	sess.mu.Unlock()
	if err != nil {
		return SubmitResult{}, err
	}
	if round == 0 {
		return SubmitResult{}, nil
	}

	result, err := m.scoreRound(m.ctx, sess, round)
	if errors.Is(err, errRoundSuperseded) || errors.Is(err, ErrRoomNotFound) {
		return SubmitResult{AllSubmitted: true}, nil
	}
	if err != nil {
		return SubmitResult{AllSubmitted: true}, err
	}
	return SubmitResult{AllSubmitted: true, Result: &result}, nil
}

func (m *Manager) Heartbeat(roomID, playerID string) error {
	sess, err := m.lockRoom(roomID)
	if err != nil {
		return err
	}
	defer sess.mu.Unlock()
	if _, err := m.playerInRoomLocked(sess, playerID); err != nil {
		return err
	}
	now := m.now()
	_, err = m.store.UpdatePlayer(playerID, func(p *Player) error {
		p.LastActive = now
		return nil
	})
	return err
}

func (m *Manager) Snapshot(roomID string) (Snapshot, error) {
	sess, err := m.lockRoom(roomID)
	if err != nil {
		return Snapshot{}, err
	}
	defer sess.mu.Unlock()
	return m.snapshotLocked(sess)
}

// Results returns the players ranked by cumulative score together with the
// most recently completed round.
func (m *Manager) Results(roomID string) (Results, error) {
	sess, err := m.lockRoom(roomID)
	if err != nil {
		return Results{}, err
	}
	defer sess.mu.Unlock()

	snapshot, err := m.snapshotLocked(sess)
	if err != nil {
		return Results{}, err
	}
	results := Results{Room: snapshot.Room, Players: rankByScore(snapshot.Players), Scores: []RoundScore{}}
	if winner, ok := leader(snapshot.Players); ok {
		results.Winner = &winner
	}
	if sess.result != nil {
		results.Scores = append(results.Scores, sess.result.Scores...)
		results.Evaluation = sess.result.Evaluation
	}
	return results, nil
}

// Winner returns the player with the highest cumulative score. Ties go to the
// player who joined first.
func (m *Manager) Winner(roomID string) (Standing, error) {
	sess, err := m.lockRoom(roomID)
	if err != nil {
		return Standing{}, err
	}
	defer sess.mu.Unlock()
	winner, ok := leader(m.store.PlayersInRoom(sess.roomID))
	if !ok {
		return Standing{}, ErrPlayerNotFound
	}
	return winner, nil
}

// CatchUp returns the room state and the events after afterID, read under the
// room lock so both describe the same moment.
func (m *Manager) CatchUp(roomID string, afterID int64) (CatchUp, error) {
	sess, err := m.lockRoom(roomID)
	if err != nil {
		return CatchUp{}, err
	}
	defer sess.mu.Unlock()

	snapshot, err := m.snapshotLocked(sess)
	if err != nil {
		return CatchUp{}, err
	}
	if afterID < 0 {
		afterID = 0
	}
	events := m.events.Since(sess.roomID, afterID)
	lastID := afterID
	if len(events) > 0 {
		lastID = events[len(events)-1].ID
	}
	return CatchUp{
		Room:        snapshot.Room,
		Players:     snapshot.Players,
		Events:      events,
		LastEventID: lastID,
	}, nil
}

// Subscribe wakes the caller whenever the room gets new events. The
// subscription ends when the room closes.
func (m *Manager) Subscribe(roomID string) (*Subscription, error) {
	sess, err := m.lockRoom(roomID)
	if err != nil {
		return nil, err
	}
	defer sess.mu.Unlock()
	return m.events.Subscribe(sess.roomID), nil
}

func (m *Manager) RoomIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *Manager) scoreAsync(sess *session, round int) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if _, err := m.scoreRound(m.ctx, sess, round); err != nil &&
			!errors.Is(err, errRoundSuperseded) && !errors.Is(err, ErrRoomNotFound) {
			m.logger.Error("round scoring failed",
				zap.String("room_id", sess.roomID),
				zap.Int("round", round),
				zap.Error(err))
		}
	}()
}

func leader(players []Player) (Standing, bool) {
	var best *Player
	for i := range players {
		if best == nil || players[i].Score > best.Score {
			best = &players[i]
		}
	}
	if best == nil {
		return Standing{}, false
	}
	return Standing{PlayerID: best.ID, Nickname: best.Nickname, Score: best.Score}, true
}

// rankByScore expects players in join order and keeps it among equal scores.
func rankByScore(players []Player) []Player {
	out := make([]Player, len(players))
	copy(out, players)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}
