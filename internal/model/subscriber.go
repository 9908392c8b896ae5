package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // subscriber zones must resolve on hosts without a zoneinfo database
)

// ErrValidation marks a malformed inbound subscription or preference update
var ErrValidation = errors.New("validation failed")

// DateKeyLayout is the layout of local calendar date keys ("YYYY-MM-DD")
const DateKeyLayout = "2006-01-02"

// Life expectancy bounds and defaults, in years
const (
	MinLifeExpectancy     = 1
	MaxLifeExpectancy     = 120
	DefaultLifeExpectancy = 80
)

// Gender selects the life expectancy category
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderCustom Gender = "custom"
)

// ParseGender maps client values (including the French labels "homme" and "femme") to a Gender
func ParseGender(s string) Gender {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "female", "femme", "f":
		return GenderFemale
	case "custom":
		return GenderCustom
	default:
		return GenderMale
	}
}

// WebPushKeys are the client keys of a browser PushSubscription
type WebPushKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// PushCredentials is the delivery address used by the push transports.
// At least one of Keys or FCMToken is required.
type PushCredentials struct {
	Keys     *WebPushKeys `json:"keys,omitempty"`
	FCMToken string       `json:"fcmToken,omitempty"`
}

// HasWebPush reports whether Web Push keys are present
func (c PushCredentials) HasWebPush() bool {
	return c.Keys != nil && c.Keys.P256dh != "" && c.Keys.Auth != ""
}

// HasFCM reports whether an FCM registration token is present
func (c PushCredentials) HasFCM() bool {
	return c.FCMToken != ""
}

// Preferences personalize the daily notification
type Preferences struct {
	DateOfBirth               string `json:"dateOfBirth,omitempty"`
	Gender                    Gender `json:"gender,omitempty"`
	CustomLifeExpectancyYears int    `json:"customLifeExpectancyYears,omitempty"`
}

// BirthDate parses DateOfBirth; ok is false when it is missing or malformed
func (p *Preferences) BirthDate() (time.Time, bool) {
	if p == nil || p.DateOfBirth == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(DateKeyLayout, p.DateOfBirth)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Subscriber is one push destination with its timezone and preferences
type Subscriber struct {
	Endpoint          string          `json:"endpoint" gorm:"primaryKey;size:2048"`
	Credentials       PushCredentials `json:"credentials" gorm:"serializer:json;not null"`
	Timezone          string          `json:"timezone" gorm:"size:64;not null"`
	Preferences       *Preferences    `json:"preferences,omitempty" gorm:"serializer:json"`
	LastSentLocalDate *string         `json:"lastSentLocalDate" gorm:"size:10"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// Clone returns a deep copy so callers never share pointers with the store
func (s Subscriber) Clone() Subscriber {
	out := s
	if s.Credentials.Keys != nil {
		keys := *s.Credentials.Keys
		out.Credentials.Keys = &keys
	}
	if s.Preferences != nil {
		prefs := *s.Preferences
		out.Preferences = &prefs
	}
	if s.LastSentLocalDate != nil {
		d := *s.LastSentLocalDate
		out.LastSentLocalDate = &d
	}
	return out
}

// Location resolves the subscriber's timezone, falling back when it is unusable
func (s Subscriber) Location(fallback *time.Location) *time.Location {
	if loc, ok := LoadLocation(s.Timezone); ok {
		return loc
	}
	return fallback
}

// LoadLocation resolves an IANA zone name. Empty and "Local" are rejected so
// the host zone never leaks into a subscriber's schedule.
func LoadLocation(name string) (*time.Location, bool) {
	name = strings.TrimSpace(name)
	if name == "" || name == "Local" {
		return nil, false
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, false
	}
	return loc, true
}

// NormalizeTimezone returns name if it resolves, otherwise fallback
func NormalizeTimezone(name, fallback string) string {
	if _, ok := LoadLocation(name); ok {
		return strings.TrimSpace(name)
	}
	return fallback
}

// ClampLifeExpectancy bounds years to [MinLifeExpectancy, MaxLifeExpectancy]
func ClampLifeExpectancy(years int) int {
	if years < MinLifeExpectancy {
		return MinLifeExpectancy
	}
	if years > MaxLifeExpectancy {
		return MaxLifeExpectancy
	}
	return years
}

// FlexibleYears decodes a life expectancy sent either as a JSON number or as a
// string. Non-numeric input decodes to DefaultLifeExpectancy; numbers are
// clamped.
type FlexibleYears int

func (f *FlexibleYears) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return nil
	}

	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*f = DefaultLifeExpectancy
			return nil
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			*f = DefaultLifeExpectancy
			return nil
		}
		n = parsed
	}
	// clamp before converting so huge values cannot overflow int
	n = math.Max(MinLifeExpectancy, math.Min(MaxLifeExpectancy, n))
	*f = FlexibleYears(int(n))
	return nil
}

// PreferencesPatch is a partial preferences update; nil fields are left untouched
type PreferencesPatch struct {
	DateOfBirth               *string
	Gender                    *Gender
	CustomLifeExpectancyYears *int
	Timezone                  *string
}

// Empty reports whether the patch changes nothing
func (p PreferencesPatch) Empty() bool {
	return p.DateOfBirth == nil && p.Gender == nil && p.CustomLifeExpectancyYears == nil && p.Timezone == nil
}

// Apply merges the patch into sub in place
func (p PreferencesPatch) Apply(sub *Subscriber) {
	if p.Timezone != nil {
		sub.Timezone = *p.Timezone
	}
	if p.DateOfBirth == nil && p.Gender == nil && p.CustomLifeExpectancyYears == nil {
		return
	}
	if sub.Preferences == nil {
		sub.Preferences = &Preferences{}
	}
	if p.DateOfBirth != nil {
		sub.Preferences.DateOfBirth = *p.DateOfBirth
	}
	if p.Gender != nil {
		sub.Preferences.Gender = *p.Gender
	}
	if p.CustomLifeExpectancyYears != nil {
		sub.Preferences.CustomLifeExpectancyYears = ClampLifeExpectancy(*p.CustomLifeExpectancyYears)
	}
}

// NewSubscriber validates a subscribe request and builds the record to upsert
func NewSubscriber(req SubscribeRequest, fallbackTZ string, now time.Time) (*Subscriber, error) {
	if req.Subscription == nil {
		return nil, fmt.Errorf("%w: subscription is required", ErrValidation)
	}
	endpoint := strings.TrimSpace(req.Subscription.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("%w: subscription endpoint is required", ErrValidation)
	}

	creds := PushCredentials{FCMToken: strings.TrimSpace(req.Subscription.FCMToken)}
	if k := req.Subscription.Keys; k != nil && k.P256dh != "" && k.Auth != "" {
		creds.Keys = &WebPushKeys{P256dh: k.P256dh, Auth: k.Auth}
	}
	if !creds.HasWebPush() && !creds.HasFCM() {
		return nil, fmt.Errorf("%w: subscription keys are required", ErrValidation)
	}

	return &Subscriber{
		Endpoint:    endpoint,
		Credentials: creds,
		Timezone:    NormalizeTimezone(req.Timezone, fallbackTZ),
		CreatedAt:   now.UTC(),
	}, nil
}

// Patch validates a preferences request and converts it to a PreferencesPatch
func (r UpdatePreferencesRequest) Patch(fallbackTZ string) (string, PreferencesPatch, error) {
	endpoint := strings.TrimSpace(r.Endpoint)
	if endpoint == "" {
		return "", PreferencesPatch{}, fmt.Errorf("%w: endpoint is required", ErrValidation)
	}

	var patch PreferencesPatch

	dob := r.DateOfBirth
	if dob == nil {
		dob = r.LegacyDOB
	}
	if dob != nil {
		value := strings.TrimSpace(*dob)
		if value != "" {
			if _, err := time.Parse(DateKeyLayout, value); err != nil {
				return "", PreferencesPatch{}, fmt.Errorf("%w: dateOfBirth must be YYYY-MM-DD", ErrValidation)
			}
		}
		patch.DateOfBirth = &value
	}

	if r.Gender != nil {
		g := ParseGender(*r.Gender)
		patch.Gender = &g
	}

	years := r.CustomLifeExpectancyYears
	if years == nil {
		years = r.LegacyCustomLifeExpectancy
	}
	if years != nil {
		n := int(*years)
		patch.CustomLifeExpectancyYears = &n
	}

	if r.Timezone != nil {
		tz := NormalizeTimezone(*r.Timezone, fallbackTZ)
		patch.Timezone = &tz
	}

	return endpoint, patch, nil
}
