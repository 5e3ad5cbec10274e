package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"playguard/internal/model"
	"playguard/internal/repository"
)

// ContentSource supplies the achievements defined for a game.
type ContentSource interface {
	AchievementsFor(gameID string) []model.Achievement
}

// activeSession is a running session plus the bookkeeping needed to build
// aggregate state. The mutex keeps event processing in arrival order.
type activeSession struct {
	mu         sync.Mutex
	session    model.GameSession
	startScore int
	ended      bool
}

// SessionManager owns the lifecycle of play sessions: NoSession → Active →
// Ended. It is the single entry point for gameplay events, fanning them
// out to the reward dispatcher and achievement engine in arrival order.
type SessionManager struct {
	gate         *ApprovalGate
	achievements *AchievementEngine
	rewards      *RewardDispatcher
	content      ContentSource
	gw           repository.Gateway
	queue        Enqueuer
	now          func() time.Time

	// crossGame enables feeding cross-game play counts into criteria
	// evaluation. Off by default: without the data, multi-game criteria
	// simply never match.
	crossGame bool

	mu     sync.Mutex
	active map[string]*activeSession // keyed by gameID+"\x00"+childID
	byID   map[uuid.UUID]*activeSession
}

// NewSessionManager creates a session manager. queue may be nil.
func NewSessionManager(
	gate *ApprovalGate,
	achievements *AchievementEngine,
	rewards *RewardDispatcher,
	contentSource ContentSource,
	gw repository.Gateway,
	queue Enqueuer,
) *SessionManager {
	return &SessionManager{
		gate:         gate,
		achievements: achievements,
		rewards:      rewards,
		content:      contentSource,
		gw:           gw,
		queue:        queue,
		now:          time.Now,
		active:       make(map[string]*activeSession),
		byID:         make(map[uuid.UUID]*activeSession),
	}
}

// EnableCrossGameCounts makes the manager query the store for the child's
// distinct played games on each event, feeding multi-game criteria.
func (m *SessionManager) EnableCrossGameCounts() {
	m.crossGame = true
}

func pairKey(gameID, childID string) string {
	return gameID + "\x00" + childID
}

// Start begins a session for (game, child). It fails with ErrAlreadyActive
// when a session for the pair is running, ErrNotApproved when the guardian
// has not approved the game, and ErrOutsideAllowedTime when a time
// restriction blocks play right now. On success the child's persisted game
// data seeds the session state.
func (m *SessionManager) Start(ctx context.Context, gameID, childID string) (model.GameSession, error) {
	if gameID == "" || childID == "" {
		return model.GameSession{}, fmt.Errorf("%w: game id and child id are required", ErrValidation)
	}

	m.mu.Lock()
	_, running := m.active[pairKey(gameID, childID)]
	m.mu.Unlock()
	if running {
		return model.GameSession{}, ErrAlreadyActive
	}

	allowed, denial, err := m.gate.CanPlayNow(ctx, gameID, childID)
	if err != nil {
		return model.GameSession{}, err
	}
	if !allowed {
		if denial == DenialNotApproved {
			return model.GameSession{}, ErrNotApproved
		}
		return model.GameSession{}, fmt.Errorf("%w: %s", ErrOutsideAllowedTime, denial)
	}

	data, err := m.gw.LoadGameData(ctx, gameID, childID)
	if err != nil {
		return model.GameSession{}, fmt.Errorf("failed to load game data: %w", err)
	}

	sess := &activeSession{
		session: model.GameSession{
			ID:        uuid.New(),
			GameID:    gameID,
			ChildID:   childID,
			StartedAt: m.now(),
			Data:      data,
		},
		startScore: data.Score,
	}

	m.mu.Lock()
	if _, running := m.active[pairKey(gameID, childID)]; running {
		m.mu.Unlock()
		return model.GameSession{}, ErrAlreadyActive
	}
	m.active[pairKey(gameID, childID)] = sess
	m.byID[sess.session.ID] = sess
	m.mu.Unlock()

	log.Info().
		Str("game_id", gameID).
		Str("child_id", childID).
		Str("session_id", sess.session.ID.String()).
		Msg("session started")
	return sess.session, nil
}

// RecordEvent appends the event to the session, merges its payload into
// the game data bag (last-writer-wins per field), and runs it through the
// reward dispatcher and achievement engine. Events within one session are
// processed strictly in arrival order.
func (m *SessionManager) RecordEvent(ctx context.Context, sessionID uuid.UUID, event model.GameEvent) error {
	sess, err := m.lookup(sessionID)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.ended {
		return ErrNoSuchSession
	}

	s := &sess.session
	if event.GameID == "" {
		event.GameID = s.GameID
	}
	if event.ChildID == "" {
		event.ChildID = s.ChildID
	}
	if event.SessionID == uuid.Nil {
		event.SessionID = s.ID
	}
	if event.GameID != s.GameID || event.ChildID != s.ChildID || event.SessionID != s.ID {
		return fmt.Errorf("%w: event does not belong to session", ErrValidation)
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = m.now()
	}

	s.Events = append(s.Events, event)
	m.mergeEvent(s, event)
	m.process(ctx, sess, event)
	return nil
}

// End finishes the session: it synthesizes a SessionCompletion event from
// the accumulated game data, runs it through the normal event path, and
// releases the session. With persist=false the game data is discarded
// without writing. Persistence failures are retried through the sync
// queue; once the session is active, ending it always succeeds.
func (m *SessionManager) End(ctx context.Context, sessionID uuid.UUID, persist bool) (model.GameEvent, error) {
	sess, err := m.lookup(sessionID)
	if err != nil {
		return model.GameEvent{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.ended {
		return model.GameEvent{}, ErrNoSuchSession
	}

	s := &sess.session
	now := m.now()
	elapsed := now.Sub(s.StartedAt)
	minutes := int(elapsed / time.Minute)

	if persist {
		m.rollDailyStreak(s, now)
		s.Data.TotalPlayMinutes += minutes
		s.Data.SessionsPlayed++
		if s.Data.Completed {
			s.Data.WinStreak++
		} else {
			s.Data.WinStreak = 0
		}
	}

	completion := model.NewSessionCompletion(s.GameID, s.ChildID, s.ID, s.Data.Score, s.Data.Level, elapsed, s.Data.Completed)
	s.Events = append(s.Events, completion)
	m.process(ctx, sess, completion)

	if persist {
		if err := m.gw.SaveGameData(ctx, s.GameID, s.ChildID, s.Data); err != nil {
			log.Warn().Err(err).
				Str("game_id", s.GameID).
				Str("child_id", s.ChildID).
				Msg("failed to save game data, deferring to sync queue")
			m.enqueueGameData(ctx, s)
		}
		if minutes > 0 {
			if err := m.gw.AddPlayMinutes(ctx, s.ChildID, now, minutes); err != nil {
				log.Warn().Err(err).Str("child_id", s.ChildID).Msg("failed to record play minutes")
			}
		}
		if err := m.gw.SetLastPlayDay(ctx, s.ChildID, repository.DayKey(now)); err != nil {
			log.Warn().Err(err).Str("child_id", s.ChildID).Msg("failed to record play day")
		}
	}

	sess.ended = true
	m.mu.Lock()
	delete(m.active, pairKey(s.GameID, s.ChildID))
	delete(m.byID, s.ID)
	m.mu.Unlock()

	log.Info().
		Str("session_id", s.ID.String()).
		Dur("play_time", elapsed).
		Bool("persisted", persist).
		Msg("session ended")
	return completion, nil
}

// Active reports whether a session is running for (game, child).
func (m *SessionManager) Active(gameID, childID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, running := m.active[pairKey(gameID, childID)]
	return running
}

func (m *SessionManager) lookup(sessionID uuid.UUID) (*activeSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.byID[sessionID]
	if !ok {
		return nil, ErrNoSuchSession
	}
	return sess, nil
}

// mergeEvent folds the event payload into the game data bag. Fields are
// overwritten last-writer-wins; there is no merge step.
func (m *SessionManager) mergeEvent(s *model.GameSession, event model.GameEvent) {
	switch event.Kind {
	case model.EventScoreUpdate:
		s.Data.Score = event.Score
		if event.Perfect {
			if s.Data.Flags == nil {
				s.Data.Flags = make(map[string]bool)
			}
			s.Data.Flags["perfect_score"] = true
		}
	case model.EventLevelProgress:
		s.Data.Level = event.Level
	case model.EventSessionCompletion:
		if event.Completed {
			s.Data.Completed = true
		}
	}
}

// process runs one event through the reward dispatcher and achievement
// engine. Newly unlocked achievements synthesize AchievementUnlocked
// events (recorded and synced, but not re-dispatched) and trigger their
// currency rewards.
func (m *SessionManager) process(ctx context.Context, sess *activeSession, event model.GameEvent) {
	s := &sess.session
	agg := m.aggregate(ctx, sess)

	m.rewards.OnEvent(ctx, event, agg)

	candidates := m.content.AchievementsFor(s.GameID)
	newly, err := m.achievements.OnEvent(ctx, s.GameID, s.ChildID, event, agg, candidates)
	if err != nil {
		log.Warn().Err(err).Str("session_id", s.ID.String()).Msg("achievement evaluation failed")
	}
	for _, achievement := range newly {
		m.rewards.OnAchievementUnlocked(ctx, s.GameID, s.ChildID, achievement)
		unlockEvent := model.NewAchievementUnlocked(s.GameID, s.ChildID, s.ID, achievement.ID)
		s.Events = append(s.Events, unlockEvent)
		m.enqueueEvent(ctx, unlockEvent)
	}

	m.enqueueEvent(ctx, event)
}

// aggregate builds the criteria evaluation snapshot from persisted game
// data plus the live session.
func (m *SessionManager) aggregate(ctx context.Context, sess *activeSession) model.AggregateState {
	s := &sess.session
	elapsed := m.now().Sub(s.StartedAt)

	agg := model.AggregateState{
		Score:           s.Data.Score,
		Level:           s.Data.Level,
		PlayTimeMinutes: s.Data.TotalPlayMinutes + int(elapsed/time.Minute),
		SessionsPlayed:  s.Data.SessionsPlayed,
		WinStreak:       s.Data.WinStreak,
		DailyPlayStreak: s.Data.DailyPlayStreak,
		Completed:       s.Data.Completed,
		SessionScore:    s.Data.Score - sess.startScore,
		SessionDuration: elapsed,
	}

	if m.crossGame {
		count, err := m.gw.GamesPlayed(ctx, s.ChildID)
		if err != nil {
			log.Warn().Err(err).Str("child_id", s.ChildID).Msg("failed to count games played")
		} else {
			agg.GamesPlayed = count
			agg.HasCrossGameData = true
		}
	}
	return agg
}

// rollDailyStreak updates the consecutive-days counter: same day keeps it,
// yesterday extends it, anything older restarts it.
func (m *SessionManager) rollDailyStreak(s *model.GameSession, now time.Time) {
	today := repository.DayKey(now)
	yesterday := repository.DayKey(now.AddDate(0, 0, -1))
	switch s.Data.LastPlayDay {
	case today:
		if s.Data.DailyPlayStreak == 0 {
			s.Data.DailyPlayStreak = 1
		}
	case yesterday:
		s.Data.DailyPlayStreak++
	default:
		s.Data.DailyPlayStreak = 1
	}
	s.Data.LastPlayDay = today
}

func (m *SessionManager) enqueueEvent(ctx context.Context, event model.GameEvent) {
	if m.queue == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("event_id", event.ID.String()).Msg("failed to encode event for sync")
		return
	}
	item := model.NewSyncItem(model.SyncEvent, event.ID.String(), payload)
	if err := m.queue.Enqueue(ctx, item); err != nil {
		log.Warn().Err(err).Str("event_id", event.ID.String()).Msg("failed to enqueue event for sync")
	}
}

type gameDataSnapshot struct {
	GameID  string         `json:"game_id"`
	ChildID string         `json:"child_id"`
	Data    model.GameData `json:"data"`
}

func (m *SessionManager) enqueueGameData(ctx context.Context, s *model.GameSession) {
	if m.queue == nil {
		return
	}
	payload, err := json.Marshal(gameDataSnapshot{GameID: s.GameID, ChildID: s.ChildID, Data: s.Data})
	if err != nil {
		log.Error().Err(err).Str("session_id", s.ID.String()).Msg("failed to encode game data for sync")
		return
	}
	key := "gamedata:" + s.GameID + ":" + s.ChildID + ":" + s.ID.String()
	item := model.NewSyncItem(model.SyncGameData, key, payload)
	if err := m.queue.Enqueue(ctx, item); err != nil {
		log.Warn().Err(err).Str("session_id", s.ID.String()).Msg("failed to enqueue game data for sync")
	}
}
