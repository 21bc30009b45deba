package service

import (
	"context"
	"errors"
	"log"
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"haven/config"
	"haven/internal/domain"
	"haven/internal/models"
	"haven/internal/repository"
)

const NoVolunteersMessage = "No volunteers currently available. Please try again shortly."

// MatchRequest is a seeker's matching preferences.
type MatchRequest struct {
	SeekerCountry      string
	PreferredCountries []string
	Languages          []string
	// RadiusKm of 0 means global.
	RadiusKm        int
	SessionType     string
	Topic           string
	MaxParticipants int
}

func (r MatchRequest) global() bool {
	return r.RadiusKm == 0 || len(r.PreferredCountries) == 0
}

// MatchedVolunteer is one ranked candidate.
type MatchedVolunteer struct {
	VolunteerID           uint     `json:"volunteer_id"`
	Username              string   `json:"username"`
	CountryCode           string   `json:"country_code"`
	Languages             []string `json:"languages"`
	ServesGlobal          bool     `json:"serves_global"`
	CurrentActiveSessions int      `json:"current_active_sessions"`
	MaxConcurrentSessions int      `json:"max_concurrent_sessions"`
	MatchedBy             string   `json:"matched_by"`
	LanguageMatch         bool     `json:"language_match"`
}

// MatchResult is either a match or the no-match outcome with retry guidance.
type MatchResult struct {
	Matched          bool                `json:"matched"`
	Volunteer        *MatchedVolunteer   `json:"matched_volunteer"`
	Alternates       []MatchedVolunteer  `json:"alternates,omitempty"`
	Session          *models.ChatSession `json:"session,omitempty"`
	Message          string              `json:"message,omitempty"`
	RetrySuggestions []string            `json:"retry_suggestions,omitempty"`
}

type MatchService struct {
	users      *repository.UserRepository
	candidates *repository.CandidateRepository
	sessions   *SessionService
	currency   *CurrencyService
	cfg        config.MatchingConfig
	shuffle    func(n int, swap func(i, j int))
	now        func() time.Time
}

func NewMatchService(users *repository.UserRepository, candidates *repository.CandidateRepository, sessions *SessionService,
	currency *CurrencyService, cfg config.MatchingConfig) *MatchService {
	if cfg.CandidatePool <= 0 {
		cfg.CandidatePool = 50
	}
	if cfg.MaxAlternates <= 0 || cfg.MaxAlternates > 10 {
		cfg.MaxAlternates = 10
	}
	return &MatchService{
		users:      users,
		candidates: candidates,
		sessions:   sessions,
		currency:   currency,
		cfg:        cfg,
		shuffle:    rand.Shuffle,
		now:        time.Now,
	}
}

// Rank returns eligible volunteers best first. The first entry is the pick;
// at most MaxAlternates follow it.
func (m *MatchService) Rank(ctx context.Context, req MatchRequest) ([]MatchedVolunteer, error) {
	req = normalizeRequest(req)
	q := repository.CandidateQuery{
		SeekerCountry:      req.SeekerCountry,
		PreferredCountries: req.PreferredCountries,
		Global:             req.global(),
		Limit:              m.cfg.CandidatePool,
	}
	if m.cfg.HeartbeatStaleAfter > 0 {
		q.StaleBefore = m.now().Add(-m.cfg.HeartbeatStaleAfter)
	}
	cands, err := m.candidates.Find(ctx, q)
	if err != nil {
		return nil, err
	}
	ranked := m.rank(cands, req)
	picked := filterByLanguage(ranked, req.Languages)
	if len(picked) > m.cfg.MaxAlternates+1 {
		picked = picked[:m.cfg.MaxAlternates+1]
	}
	return picked, nil
}

// Match is the explicit "find a match" flow: it creates an active session with
// the best volunteer, or reports no match without creating anything.
func (m *MatchService) Match(ctx context.Context, p Principal, req MatchRequest) (*MatchResult, error) {
	req, err := m.prepare(ctx, p, req)
	if err != nil {
		return nil, err
	}
	ranked, err := m.Rank(ctx, req)
	if err != nil {
		return nil, err
	}
	res, err := m.createWithFirstAvailable(ctx, p, req, ranked)
	if err != nil || res.Matched {
		return res, err
	}
	log.Printf("[Match] no volunteer for seeker=%d country=%s", p.UserID, req.SeekerCountry)
	return noMatch(req), nil
}

// StartSession is the instant-chat flow: it matches when it can and otherwise
// opens a waiting session for later assignment.
func (m *MatchService) StartSession(ctx context.Context, p Principal, req MatchRequest) (*MatchResult, error) {
	req, err := m.prepare(ctx, p, req)
	if err != nil {
		return nil, err
	}
	ranked, err := m.Rank(ctx, req)
	if err != nil {
		return nil, err
	}
	res, err := m.createWithFirstAvailable(ctx, p, req, ranked)
	if err != nil || res.Matched {
		return res, err
	}
	sess, err := m.sessions.Create(ctx, p, nil, m.params(ctx, req, ""))
	if err != nil {
		return nil, err
	}
	out := noMatch(req)
	out.Session = sess
	out.Message = "No volunteer is free right now. Your session is waiting for the next available volunteer."
	return out, nil
}

// prepare checks the caller and fills request defaults from the seeker profile.
func (m *MatchService) prepare(ctx context.Context, p Principal, req MatchRequest) (MatchRequest, error) {
	caller, err := loadCaller(ctx, m.users, p)
	if err != nil {
		return req, err
	}
	if !caller.IsSeeker() {
		return req, ErrForbidden
	}
	if err := m.sessions.ensureNoOpenSession(ctx, caller.ID); err != nil {
		return req, err
	}
	if req.RadiusKm < 0 {
		return req, invalid("volunteer_radius_km must not be negative")
	}
	if req.SessionType != "" && !domain.IsValidSessionType(req.SessionType) {
		return req, invalid("session_type must be one of %s, %s", domain.SessionTypeOneOnOne, domain.SessionTypeGroup)
	}
	if strings.TrimSpace(req.SeekerCountry) == "" {
		req.SeekerCountry = caller.CountryCode
	}
	if len(req.Languages) == 0 {
		req.Languages = caller.LanguageList()
	}
	return normalizeRequest(req), nil
}

// createWithFirstAvailable walks the ranking until a capacity claim succeeds.
func (m *MatchService) createWithFirstAvailable(ctx context.Context, p Principal, req MatchRequest, ranked []MatchedVolunteer) (*MatchResult, error) {
	for i := range ranked {
		v := ranked[i]
		sess, err := m.sessions.Create(ctx, p, &v.VolunteerID, m.params(ctx, req, v.MatchedBy))
		if errors.Is(err, ErrVolunteerUnavailable) {
			log.Printf("[Match] volunteer=%d lost capacity race, trying next", v.VolunteerID)
			continue
		}
		if err != nil {
			return nil, err
		}
		log.Printf("[Match] seeker=%d volunteer=%d matched_by=%s session=%d", p.UserID, v.VolunteerID, v.MatchedBy, sess.ID)
		return &MatchResult{
			Matched:    true,
			Volunteer:  &v,
			Alternates: append([]MatchedVolunteer(nil), ranked[i+1:]...),
			Session:    sess,
		}, nil
	}
	return &MatchResult{}, nil
}

func (m *MatchService) params(ctx context.Context, req MatchRequest, matchedBy string) CreateParams {
	currency, rate := m.currency.Resolve(ctx, req.SeekerCountry)
	var lang string
	if len(req.Languages) > 0 {
		lang = req.Languages[0]
	}
	return CreateParams{
		SessionType:     req.SessionType,
		Language:        lang,
		Topic:           req.Topic,
		MaxParticipants: req.MaxParticipants,
		MatchedBy:       matchedBy,
		Currency:        currency,
		ExchangeRate:    rate,
	}
}

func noMatch(req MatchRequest) *MatchResult {
	suggestions := []string{"Try again in a few minutes; volunteers come online throughout the day."}
	if !req.global() {
		suggestions = append(suggestions, "Set volunteer_radius_km to 0 to search volunteers in every country.")
	}
	if len(req.PreferredCountries) > 0 {
		suggestions = append(suggestions, "Add more countries to preferred_volunteer_countries.")
	}
	suggestions = append(suggestions, "Start an instant chat to wait in the queue for the next available volunteer.")
	return &MatchResult{Matched: false, Message: NoVolunteersMessage, RetrySuggestions: suggestions}
}

func normalizeRequest(req MatchRequest) MatchRequest {
	req.SeekerCountry = strings.ToUpper(strings.TrimSpace(req.SeekerCountry))
	req.PreferredCountries = models.NormalizeCodes(req.PreferredCountries, strings.ToUpper)
	req.Languages = models.NormalizeCodes(req.Languages, strings.ToLower)
	return req
}

type rankKey struct {
	sameCountry int
	preferred   int
	active      int
}

func (a rankKey) less(b rankKey) bool {
	if a.sameCountry != b.sameCountry {
		return a.sameCountry < b.sameCountry
	}
	if a.preferred != b.preferred {
		return a.preferred < b.preferred
	}
	return a.active < b.active
}

// rank orders candidates by same country, then preferred country, then load.
// Equal keys are left in shuffled order.
func (m *MatchService) rank(cands []repository.Candidate, req MatchRequest) []MatchedVolunteer {
	prefs := make(map[string]struct{}, len(req.PreferredCountries))
	for _, c := range req.PreferredCountries {
		prefs[c] = struct{}{}
	}
	out := make([]MatchedVolunteer, len(cands))
	keys := make([]rankKey, len(cands))
	for i, c := range cands {
		out[i] = MatchedVolunteer{
			VolunteerID:           c.VolunteerID,
			Username:              c.Username,
			CountryCode:           c.CountryCode,
			Languages:             models.SplitCodes(c.Languages),
			ServesGlobal:          c.ServesGlobal,
			CurrentActiveSessions: c.CurrentActiveSessions,
			MaxConcurrentSessions: c.MaxConcurrentSessions,
			MatchedBy:             matchedBy(c, req, prefs),
		}
		keys[i] = rankKey{active: c.CurrentActiveSessions, sameCountry: 1, preferred: 1}
		if req.SeekerCountry != "" && c.CountryCode == req.SeekerCountry {
			keys[i].sameCountry = 0
		}
		if _, ok := prefs[c.CountryCode]; ok {
			keys[i].preferred = 0
		}
	}
	m.shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
		keys[i], keys[j] = keys[j], keys[i]
	})
	idx := make([]int, len(out))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return keys[idx[a]].less(keys[idx[b]]) })
	sorted := make([]MatchedVolunteer, len(out))
	for i, j := range idx {
		sorted[i] = out[j]
	}
	return sorted
}

func matchedBy(c repository.Candidate, req MatchRequest, prefs map[string]struct{}) string {
	if req.global() {
		return domain.MatchedByGlobal
	}
	if c.CountryCode == req.SeekerCountry {
		return domain.MatchedBySameCountry
	}
	if _, ok := prefs[c.CountryCode]; ok {
		return domain.MatchedByPreferredCountry
	}
	for _, r := range c.Regions {
		if _, ok := prefs[r]; ok {
			return domain.MatchedByPreferredRegion
		}
	}
	if c.ServesGlobal {
		return domain.MatchedByServesGlobal
	}
	return domain.MatchedByGlobal
}

// filterByLanguage keeps candidates sharing a language with the seeker. When
// none do, the best-ranked candidate is kept with the rest as alternates.
func filterByLanguage(ranked []MatchedVolunteer, langs []string) []MatchedVolunteer {
	if len(ranked) == 0 || len(langs) == 0 {
		return ranked
	}
	want := make(map[string]struct{}, len(langs))
	for _, l := range langs {
		want[l] = struct{}{}
	}
	var kept []MatchedVolunteer
	for _, v := range ranked {
		for _, l := range v.Languages {
			if _, ok := want[l]; ok {
				v.LanguageMatch = true
				kept = append(kept, v)
				break
			}
		}
	}
	if len(kept) == 0 {
		return ranked
	}
	return kept
}
