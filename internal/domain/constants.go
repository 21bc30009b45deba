package domain

const (
	RoleSeeker    = "SEEKER"
	RoleVolunteer = "VOLUNTEER"
	RoleAdmin     = "ADMIN"
)

// Participant roles inside a session roster.
const (
	ParticipantSeeker    = "seeker"
	ParticipantVolunteer = "volunteer"
)

const (
	SessionStatusWaiting = "waiting"
	SessionStatusActive  = "active"
	SessionStatusEnded   = "ended"
)

const (
	SessionTypeOneOnOne = "one_on_one"
	SessionTypeGroup    = "group"
)

// How a volunteer qualified for a match.
const (
	MatchedByGlobal           = "global"
	MatchedBySameCountry      = "same_country"
	MatchedByPreferredCountry = "preferred_country"
	MatchedByPreferredRegion  = "preferred_region"
	MatchedByServesGlobal     = "serves_global"
	MatchedByManual           = "manual"
)

const (
	PaymentStatusPending = "PENDING"
	PaymentStatusPaid    = "PAID"
)

const (
	NotificationSessionCreated    = "SESSION_CREATED"
	NotificationVolunteerAssigned = "VOLUNTEER_ASSIGNED"
	NotificationSessionEnded      = "SESSION_ENDED"
)

const DefaultCurrency = "USD"

func IsValidSessionType(t string) bool {
	return t == SessionTypeOneOnOne || t == SessionTypeGroup
}

func IsValidSessionStatus(s string) bool {
	return s == SessionStatusWaiting || s == SessionStatusActive || s == SessionStatusEnded
}
