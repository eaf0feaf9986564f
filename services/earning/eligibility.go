package earning

import "creatorpay/services/user"

// Monetization thresholds. Deliberately constants rather than settings:
// changing them is a product decision, not an ops toggle.
const (
	MinSubscribers      = 1000
	MinWatchTimeMinutes = 240000
	MinShortViews       = 10000000
)

// Eligibility is the requirements-met breakdown shown on the creator
// dashboard.
type Eligibility struct {
	Eligible            bool  `json:"eligible"`
	SubscriberCount     int64 `json:"subscriberCount"`
	SubscribersMet      bool  `json:"subscribersMet"`
	WatchTimeMinutes    int64 `json:"watchTimeMinutes"`
	WatchTimeMet        bool  `json:"watchTimeMet"`
	ShortViews          int64 `json:"shortViews"`
	ShortViewsMet       bool  `json:"shortViewsMet"`
	MinSubscribers      int64 `json:"minSubscribers"`
	MinWatchTimeMinutes int64 `json:"minWatchTimeMinutes"`
	MinShortViews       int64 `json:"minShortViews"`
}

// Evaluate applies the fixed thresholds: enough subscribers AND (enough
// watch time OR enough short views).
func Evaluate(u *user.User) Eligibility {
	e := Eligibility{
		SubscriberCount:     u.SubscriberCount,
		WatchTimeMinutes:    u.TotalWatchTimeMinutes,
		ShortViews:          u.TotalShortViews,
		MinSubscribers:      MinSubscribers,
		MinWatchTimeMinutes: MinWatchTimeMinutes,
		MinShortViews:       MinShortViews,
	}
	e.SubscribersMet = e.SubscriberCount >= MinSubscribers
	e.WatchTimeMet = e.WatchTimeMinutes >= MinWatchTimeMinutes
	e.ShortViewsMet = e.ShortViews >= MinShortViews
	e.Eligible = e.SubscribersMet && (e.WatchTimeMet || e.ShortViewsMet)
	return e
}

// IsEligible is the bare threshold test.
func IsEligible(subscribers, watchTimeMinutes, shortViews int64) bool {
	return subscribers >= MinSubscribers &&
		(watchTimeMinutes >= MinWatchTimeMinutes || shortViews >= MinShortViews)
}
