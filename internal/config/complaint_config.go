package config

import "time"

const (
	// Matchmaking
	DefaultSearchTimeout = 2 * time.Minute
	DefaultChatDuration  = 10 * time.Minute
	DefaultRevealWindow  = time.Minute

	// Moderation
	DefaultMaxWarnings = 3
	DefaultUnbanCost   = 100

	// Economy
	DefaultPremiumCost    = 50
	DefaultPhotoCost      = 50
	DefaultReferralReward = 10

	// PremiumInterest is the interest label that has to be unlocked once.
	PremiumInterest = "18+"

	// CriticalComplaintWeight is the weight at which a complaint turns into a warning.
	CriticalComplaintWeight = 50
)

// AvailableInterests are the labels offered on the search keyboard.
var AvailableInterests = []string{"music", "games", "movies", "travel", "talk", PremiumInterest}

var ComplaintWeights = map[string]int{
	"Low":      5,
	"Medium":   50,
	"Critical": 250,
}
