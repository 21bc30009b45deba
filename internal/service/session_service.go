package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"haven/internal/domain"
	"haven/internal/events"
	"haven/internal/models"
	"haven/internal/repository"
	"haven/internal/reward"
)

const (
	maxGroupParticipants = 20
	maxTopicLength       = 255
)

// CreateParams are the caller-supplied session attributes.
type CreateParams struct {
	SessionType     string
	Language        string
	Topic           string
	MaxParticipants int
	// set by the matcher
	MatchedBy    string
	Currency     string
	ExchangeRate float64
}

// EndResult reports an End call. AlreadyEnded is true when this call found the
// session terminal and only re-ran finalize.
type EndResult struct {
	Session      *models.ChatSession `json:"session"`
	Reward       *FinalizeResult     `json:"reward,omitempty"`
	AlreadyEnded bool                `json:"already_ended"`
}

// SessionService owns the waiting -> active -> ended state machine. It is the
// only writer of the volunteer capacity counter.
type SessionService struct {
	users    *repository.UserRepository
	sessions *repository.SessionRepository
	rewards  *RewardService
	bus      events.Publisher
	grace    time.Duration
	now      func() time.Time
}

func NewSessionService(users *repository.UserRepository, sessions *repository.SessionRepository, rewards *RewardService,
	bus events.Publisher, continueGrace time.Duration) *SessionService {
	if bus == nil {
		bus = events.Nop{}
	}
	return &SessionService{users: users, sessions: sessions, rewards: rewards, bus: bus, grace: continueGrace, now: time.Now}
}

func normalizeParams(p CreateParams) (CreateParams, error) {
	p.SessionType = strings.TrimSpace(p.SessionType)
	if p.SessionType == "" {
		p.SessionType = domain.SessionTypeOneOnOne
	}
	if !domain.IsValidSessionType(p.SessionType) {
		return p, invalid("session_type must be one of %s, %s", domain.SessionTypeOneOnOne, domain.SessionTypeGroup)
	}
	switch p.SessionType {
	case domain.SessionTypeOneOnOne:
		if p.MaxParticipants == 0 {
			p.MaxParticipants = 2
		}
		if p.MaxParticipants != 2 {
			return p, invalid("max_participants must be 2 for %s sessions", domain.SessionTypeOneOnOne)
		}
	case domain.SessionTypeGroup:
		if p.MaxParticipants == 0 {
			p.MaxParticipants = 6
		}
		if p.MaxParticipants < 3 || p.MaxParticipants > maxGroupParticipants {
			return p, invalid("max_participants must be between 3 and %d for group sessions", maxGroupParticipants)
		}
	}
	p.Language = strings.ToLower(strings.TrimSpace(p.Language))
	if len(p.Language) > 10 {
		return p, invalid("language must be an ISO code")
	}
	p.Topic = strings.TrimSpace(p.Topic)
	if len(p.Topic) > maxTopicLength {
		return p, invalid("topic must be at most %d characters", maxTopicLength)
	}
	if p.Currency == "" || p.ExchangeRate <= 0 {
		p.Currency, p.ExchangeRate = domain.DefaultCurrency, 1
	}
	return p, nil
}

// Create opens a session for the calling seeker. With a volunteer it starts
// active and claims one unit of that volunteer's capacity atomically.
func (s *SessionService) Create(ctx context.Context, p Principal, volunteerID *uint, params CreateParams) (*models.ChatSession, error) {
	caller, err := loadCaller(ctx, s.users, p)
	if err != nil {
		return nil, err
	}
	if !caller.IsSeeker() {
		return nil, ErrForbidden
	}
	params, err = normalizeParams(params)
	if err != nil {
		return nil, err
	}
	if volunteerID != nil {
		if err := s.checkVolunteer(ctx, *volunteerID); err != nil {
			return nil, err
		}
	}

	sess := &models.ChatSession{
		SeekerID:        caller.ID,
		SessionType:     params.SessionType,
		Language:        params.Language,
		Topic:           params.Topic,
		MaxParticipants: params.MaxParticipants,
		MatchedBy:       params.MatchedBy,
		Currency:        params.Currency,
		ExchangeRate:    params.ExchangeRate,
	}
	if err := s.sessions.Create(ctx, sess, volunteerID, s.now()); err != nil {
		return nil, mapRepoErr(err)
	}
	log.Printf("[Session] created id=%d seeker=%d status=%s matched_by=%s", sess.ID, sess.SeekerID, sess.Status, sess.MatchedBy)
	s.publish(events.SessionCreated, sess, nil)
	return sess, nil
}

// ensureNoOpenSession fails fast before matching work when the seeker already
// holds a waiting or active session. Create still enforces it atomically.
func (s *SessionService) ensureNoOpenSession(ctx context.Context, seekerID uint) error {
	_, err := s.sessions.OpenSessionFor(ctx, seekerID)
	switch {
	case err == nil:
		return ErrActiveSessionExists
	case errors.Is(err, repository.ErrNotFound):
		return nil
	}
	return err
}

func (s *SessionService) checkVolunteer(ctx context.Context, volunteerID uint) error {
	v, err := s.users.GetByID(ctx, volunteerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if !v.IsVolunteer() || !v.IsActive {
		return invalid("user %d is not an active volunteer", volunteerID)
	}
	return nil
}

// AssignVolunteer moves a waiting session to active. Volunteers may only
// assign themselves; admins may assign anyone.
func (s *SessionService) AssignVolunteer(ctx context.Context, p Principal, sessionID uint, volunteerID uint) (*models.ChatSession, error) {
	caller, err := loadCaller(ctx, s.users, p)
	if err != nil {
		return nil, err
	}
	switch {
	case caller.IsAdmin():
		if volunteerID == 0 {
			return nil, invalid("volunteer_id is required")
		}
	case caller.IsVolunteer():
		if volunteerID == 0 {
			volunteerID = caller.ID
		}
		if volunteerID != caller.ID {
			return nil, ErrForbidden
		}
	default:
		return nil, ErrForbidden
	}
	if err := s.checkVolunteer(ctx, volunteerID); err != nil {
		return nil, err
	}
	existing, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if existing.IsEnded() {
		return nil, ErrSessionEnded
	}

	sess, err := s.sessions.Assign(ctx, sessionID, volunteerID, domain.MatchedByManual, s.now())
	if err != nil {
		return nil, mapRepoErr(err)
	}
	log.Printf("[Session] assigned id=%d volunteer=%d by=%d", sess.ID, volunteerID, caller.ID)
	s.publish(events.VolunteerAssigned, sess, nil)
	return sess, nil
}

// End ends the session on behalf of its seeker, its volunteer or an admin.
// Ending an ended session is not an error; finalize simply runs again.
func (s *SessionService) End(ctx context.Context, p Principal, sessionID uint) (*EndResult, error) {
	caller, err := loadCaller(ctx, s.users, p)
	if err != nil {
		return nil, err
	}
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if !canAccess(caller, sess) {
		return nil, ErrForbidden
	}
	return s.end(ctx, sessionID, false)
}

// AutoTerminate ends a session whose free tier ran out without a continue.
func (s *SessionService) AutoTerminate(ctx context.Context, sessionID uint) (*EndResult, error) {
	return s.end(ctx, sessionID, true)
}

func (s *SessionService) end(ctx context.Context, sessionID uint, auto bool) (*EndResult, error) {
	sess, ended, err := s.sessions.End(ctx, sessionID, auto, s.now())
	if err != nil {
		return nil, mapRepoErr(err)
	}
	res := &EndResult{Session: sess, AlreadyEnded: !ended}
	fin, err := s.rewards.FinalizeSession(ctx, sess)
	if err != nil {
		// the session stays ended; a repeated End re-runs finalize
		log.Printf("[Session] end id=%d: finalize failed: %v", sessionID, err)
		return nil, err
	}
	res.Reward = fin
	if ended {
		sess.RewardPoints = fin.Totals.Points
		sess.RewardAmount = fin.Totals.Amount
		sess.SessionDuration = fin.Totals.DurationSeconds
		log.Printf("[Session] ended id=%d auto=%t points=%d", sessionID, auto, fin.Totals.Points)
		s.publish(events.SessionEnded, sess, map[string]interface{}{
			"auto_terminated": sess.AutoTerminated,
			"reward_points":   fin.Totals.Points,
			"reward_amount":   fin.Totals.Amount,
		})
	}
	return res, nil
}

// Continue lets the assigned volunteer keep an active session going past the
// free tier at the continuation rate.
func (s *SessionService) Continue(ctx context.Context, p Principal, sessionID uint) (*models.ChatSession, error) {
	caller, err := loadCaller(ctx, s.users, p)
	if err != nil {
		return nil, err
	}
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if !caller.IsVolunteer() || !sess.HasVolunteer(caller.ID) {
		return nil, ErrForbidden
	}
	if !sess.IsActive() {
		return nil, ErrSessionNotActive
	}
	if err := s.sessions.Continue(ctx, sessionID, caller.ID); err != nil {
		return nil, mapRepoErr(err)
	}
	log.Printf("[Session] continued id=%d volunteer=%d", sessionID, caller.ID)
	return s.sessions.GetByID(ctx, sessionID)
}

// MarkLimitReached flags the session as due for termination.
func (s *SessionService) MarkLimitReached(ctx context.Context, sessionID uint) error {
	return s.sessions.MarkLimitReached(ctx, sessionID)
}

// Rewards returns the live reward snapshot. Once the free tier is used up the
// session is flagged, and after the grace period it is auto-terminated.
func (s *SessionService) Rewards(ctx context.Context, p Principal, sessionID uint) (*Snapshot, error) {
	sess, err := s.Get(ctx, p, sessionID)
	if err != nil {
		return nil, err
	}
	st := s.rewards.Settings(ctx)
	now := s.now()
	if reward.ShouldAutoTerminate(sess, st, now) {
		if !now.Before(reward.LimitAt(sess, st).Add(s.grace)) {
			log.Printf("[Session] auto-terminating id=%d after grace", sess.ID)
			res, err := s.AutoTerminate(ctx, sess.ID)
			if err != nil {
				return nil, err
			}
			sess = res.Session
		} else if !sess.AutoTerminated {
			if err := s.sessions.MarkLimitReached(ctx, sess.ID); err != nil {
				return nil, err
			}
			sess.AutoTerminated = true
		}
	}
	return s.rewards.Snapshot(sess, st, now), nil
}

// RewardAction applies "continue" or "finalize" from the rewards endpoint.
// Finalize on a live session ends it first.
func (s *SessionService) RewardAction(ctx context.Context, p Principal, sessionID uint, action string) (*Snapshot, *FinalizeResult, error) {
	switch action {
	case "continue":
		sess, err := s.Continue(ctx, p, sessionID)
		if err != nil {
			return nil, nil, err
		}
		return s.rewards.Snapshot(sess, s.rewards.Settings(ctx), s.now()), nil, nil
	case "finalize":
		res, err := s.End(ctx, p, sessionID)
		if err != nil {
			return nil, nil, err
		}
		return s.rewards.Snapshot(res.Session, s.rewards.Settings(ctx), s.now()), res.Reward, nil
	default:
		return nil, nil, invalid("action must be continue or finalize")
	}
}

// Get returns a session visible to the caller. Volunteers may also read
// waiting sessions they could pick up.
func (s *SessionService) Get(ctx context.Context, p Principal, sessionID uint) (*models.ChatSession, error) {
	caller, err := loadCaller(ctx, s.users, p)
	if err != nil {
		return nil, err
	}
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if canAccess(caller, sess) {
		return sess, nil
	}
	if caller.IsVolunteer() && sess.Status == domain.SessionStatusWaiting {
		return sess, nil
	}
	return nil, ErrForbidden
}

// ListFilter is the caller-facing session query.
type ListFilter struct {
	Status      string
	SessionType string
	// UserID narrows an admin listing to sessions where that user is the
	// seeker or the volunteer. Ignored for other roles.
	UserID uint
	Limit  int
	Offset int
}

// List is role-scoped: seekers see their own sessions, volunteers see sessions
// they are assigned to (or the waiting queue when asking for status=waiting),
// admins see everything.
func (s *SessionService) List(ctx context.Context, p Principal, f ListFilter) ([]models.ChatSession, int64, error) {
	caller, err := loadCaller(ctx, s.users, p)
	if err != nil {
		return nil, 0, err
	}
	rf := repository.SessionFilter{Limit: f.Limit, Offset: f.Offset}
	if f.Status != "" {
		if !domain.IsValidSessionStatus(f.Status) {
			return nil, 0, invalid("status must be waiting, active or ended")
		}
		rf.Status = []string{f.Status}
	}
	if f.SessionType != "" {
		if !domain.IsValidSessionType(f.SessionType) {
			return nil, 0, invalid("session_type must be one of %s, %s", domain.SessionTypeOneOnOne, domain.SessionTypeGroup)
		}
		rf.SessionType = f.SessionType
	}
	switch {
	case caller.IsAdmin():
		if f.UserID != 0 {
			rf.ParticipantID = &f.UserID
		}
	case caller.IsVolunteer():
		if f.Status != domain.SessionStatusWaiting {
			rf.VolunteerID = &caller.ID
		}
	default:
		rf.SeekerID = &caller.ID
	}
	return s.sessions.List(ctx, rf)
}

func canAccess(u *models.User, sess *models.ChatSession) bool {
	return u.IsAdmin() || sess.SeekerID == u.ID || sess.HasVolunteer(u.ID)
}

func (s *SessionService) publish(typ string, sess *models.ChatSession, data map[string]interface{}) {
	s.bus.Publish(events.Event{
		Type:        typ,
		SessionID:   sess.ID,
		SeekerID:    sess.SeekerID,
		VolunteerID: sess.VolunteerID,
		Status:      sess.Status,
		Data:        data,
	})
}

func mapRepoErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrOpenSessionExists):
		return ErrActiveSessionExists
	case errors.Is(err, repository.ErrVolunteerUnavailable):
		return ErrVolunteerUnavailable
	case errors.Is(err, repository.ErrSessionNotWaiting):
		return ErrSessionNotWaiting
	case errors.Is(err, repository.ErrSessionNotActive):
		return ErrSessionNotActive
	}
	return err
}
