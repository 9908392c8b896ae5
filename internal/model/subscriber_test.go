package model

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 14, 8, 30, 0, 0, time.UTC)

func validSubscribe() SubscribeRequest {
	return SubscribeRequest{
		Subscription: &PushSubscriptionObject{
			Endpoint: "https://push.example.com/abc",
			Keys:     &WebPushKeys{P256dh: "p256", Auth: "auth"},
		},
		Timezone: "America/New_York",
	}
}

func TestNewSubscriber(t *testing.T) {
	t.Run("valid web push subscription", func(t *testing.T) {
		sub, err := NewSubscriber(validSubscribe(), "Europe/Paris", testNow)
		require.NoError(t, err)

		assert.Equal(t, "https://push.example.com/abc", sub.Endpoint)
		assert.Equal(t, "America/New_York", sub.Timezone)
		assert.True(t, sub.Credentials.HasWebPush())
		assert.False(t, sub.Credentials.HasFCM())
		assert.Nil(t, sub.Preferences)
		assert.Nil(t, sub.LastSentLocalDate)
		assert.Equal(t, testNow, sub.CreatedAt)
	})

	t.Run("fcm token only", func(t *testing.T) {
		req := SubscribeRequest{Subscription: &PushSubscriptionObject{Endpoint: "fcm-1", FCMToken: "token"}}
		sub, err := NewSubscriber(req, "Europe/Paris", testNow)
		require.NoError(t, err)
		assert.True(t, sub.Credentials.HasFCM())
	})

	t.Run("invalid timezone falls back", func(t *testing.T) {
		req := validSubscribe()
		req.Timezone = "Mars/Olympus_Mons"
		sub, err := NewSubscriber(req, "Europe/Paris", testNow)
		require.NoError(t, err)
		assert.Equal(t, "Europe/Paris", sub.Timezone)
	})

	t.Run("missing timezone falls back", func(t *testing.T) {
		req := validSubscribe()
		req.Timezone = ""
		sub, err := NewSubscriber(req, "Europe/Paris", testNow)
		require.NoError(t, err)
		assert.Equal(t, "Europe/Paris", sub.Timezone)
	})

	rejects := map[string]SubscribeRequest{
		"no subscription": {},
		"no endpoint":     {Subscription: &PushSubscriptionObject{Keys: &WebPushKeys{P256dh: "p", Auth: "a"}}},
		"no credentials":  {Subscription: &PushSubscriptionObject{Endpoint: "https://push.example.com/x"}},
		"partial keys":    {Subscription: &PushSubscriptionObject{Endpoint: "https://push.example.com/x", Keys: &WebPushKeys{P256dh: "p"}}},
	}
	for name, req := range rejects {
		t.Run("rejects "+name, func(t *testing.T) {
			_, err := NewSubscriber(req, "Europe/Paris", testNow)
			assert.True(t, errors.Is(err, ErrValidation), "got %v", err)
		})
	}
}

func TestFlexibleYears(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{`90`, 90},
		{`"75"`, 75},
		{`0`, 1},
		{`121`, 120},
		{`-5`, 1},
		{`"abc"`, DefaultLifeExpectancy},
		{`true`, DefaultLifeExpectancy},
		{`"  100 "`, 100},
		{`1e20`, 120},
		{`-1e20`, 1},
		{`"1e300"`, 120},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			var req UpdatePreferencesRequest
			require.NoError(t, json.Unmarshal([]byte(`{"endpoint":"e","customLifeExpectancyYears":`+tt.raw+`}`), &req))
			require.NotNil(t, req.CustomLifeExpectancyYears)
			assert.Equal(t, tt.want, int(*req.CustomLifeExpectancyYears))
		})
	}
}

func TestUpdatePreferencesRequestPatch(t *testing.T) {
	t.Run("legacy field names", func(t *testing.T) {
		var req UpdatePreferencesRequest
		body := `{"endpoint":" e1 ","dob":"1990-05-01","gender":"femme","customLifeExpectancy":"95","timezone":"Asia/Tokyo"}`
		require.NoError(t, json.Unmarshal([]byte(body), &req))

		endpoint, patch, err := req.Patch("Europe/Paris")
		require.NoError(t, err)
		assert.Equal(t, "e1", endpoint)
		assert.Equal(t, "1990-05-01", *patch.DateOfBirth)
		assert.Equal(t, GenderFemale, *patch.Gender)
		assert.Equal(t, 95, *patch.CustomLifeExpectancyYears)
		assert.Equal(t, "Asia/Tokyo", *patch.Timezone)
	})

	t.Run("only provided fields are set", func(t *testing.T) {
		var req UpdatePreferencesRequest
		require.NoError(t, json.Unmarshal([]byte(`{"endpoint":"e1","gender":"custom"}`), &req))

		_, patch, err := req.Patch("Europe/Paris")
		require.NoError(t, err)
		assert.Nil(t, patch.DateOfBirth)
		assert.Nil(t, patch.CustomLifeExpectancyYears)
		assert.Nil(t, patch.Timezone)
		assert.Equal(t, GenderCustom, *patch.Gender)
	})

	t.Run("bad date rejected", func(t *testing.T) {
		dob := "01/05/1990"
		req := UpdatePreferencesRequest{Endpoint: "e1", DateOfBirth: &dob}
		_, _, err := req.Patch("Europe/Paris")
		assert.True(t, errors.Is(err, ErrValidation))
	})

	t.Run("missing endpoint rejected", func(t *testing.T) {
		_, _, err := UpdatePreferencesRequest{}.Patch("Europe/Paris")
		assert.True(t, errors.Is(err, ErrValidation))
	})
}

func TestPreferencesPatchApplyMerges(t *testing.T) {
	sub := &Subscriber{
		Endpoint:    "e1",
		Timezone:    "Europe/Paris",
		Preferences: &Preferences{DateOfBirth: "1980-01-01", Gender: GenderMale},
	}

	years := 500
	PreferencesPatch{CustomLifeExpectancyYears: &years}.Apply(sub)

	require.NotNil(t, sub.Preferences)
	assert.Equal(t, "1980-01-01", sub.Preferences.DateOfBirth, "unset fields survive")
	assert.Equal(t, GenderMale, sub.Preferences.Gender)
	assert.Equal(t, MaxLifeExpectancy, sub.Preferences.CustomLifeExpectancyYears)
	assert.Equal(t, "Europe/Paris", sub.Timezone)

	tz := "UTC"
	PreferencesPatch{Timezone: &tz}.Apply(sub)
	assert.Equal(t, "UTC", sub.Timezone)
}

func TestSubscriberClone(t *testing.T) {
	day := "2026-03-14"
	sub := Subscriber{
		Endpoint:          "e1",
		Credentials:       PushCredentials{Keys: &WebPushKeys{P256dh: "p", Auth: "a"}},
		Preferences:       &Preferences{DateOfBirth: "1980-01-01"},
		LastSentLocalDate: &day,
	}

	cp := sub.Clone()
	cp.Credentials.Keys.Auth = "changed"
	cp.Preferences.DateOfBirth = "2000-01-01"
	*cp.LastSentLocalDate = "2026-03-15"

	assert.Equal(t, "a", sub.Credentials.Keys.Auth)
	assert.Equal(t, "1980-01-01", sub.Preferences.DateOfBirth)
	assert.Equal(t, "2026-03-14", *sub.LastSentLocalDate)
}

func TestLoadLocation(t *testing.T) {
	_, ok := LoadLocation("Europe/Paris")
	assert.True(t, ok)

	for _, name := range []string{"", "Local", "Nowhere/City"} {
		_, ok := LoadLocation(name)
		assert.False(t, ok, name)
	}

	fallback := time.UTC
	assert.Equal(t, fallback, Subscriber{Timezone: "bogus"}.Location(fallback))
}

func TestShortEndpoint(t *testing.T) {
	short := "https://push.example.com/a"
	assert.Equal(t, short, ShortEndpoint(short))

	long := "https://fcm.googleapis.com/fcm/send/" + strings.Repeat("x", 100)
	got := ShortEndpoint(long)
	assert.True(t, strings.HasPrefix(long, strings.TrimSuffix(got, "…")))
	assert.Less(t, len(got), len(long))
}

func TestParseGender(t *testing.T) {
	assert.Equal(t, GenderMale, ParseGender("homme"))
	assert.Equal(t, GenderFemale, ParseGender("Femme"))
	assert.Equal(t, GenderFemale, ParseGender("female"))
	assert.Equal(t, GenderCustom, ParseGender("custom"))
	assert.Equal(t, GenderMale, ParseGender(""))
}
