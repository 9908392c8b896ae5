package model

// ========== Push API DTOs ==========

// PushSubscriptionObject mirrors the browser PushSubscription JSON
type PushSubscriptionObject struct {
	Endpoint       string       `json:"endpoint"`
	ExpirationTime *int64       `json:"expirationTime,omitempty"`
	Keys           *WebPushKeys `json:"keys,omitempty"`
	FCMToken       string       `json:"fcmToken,omitempty"`
}

type SubscribeRequest struct {
	Subscription *PushSubscriptionObject `json:"subscription"`
	Timezone     string                  `json:"timezone"`
}

// UpdatePreferencesRequest accepts both the current field names and the ones
// sent by the first web client (dob, customLifeExpectancy).
type UpdatePreferencesRequest struct {
	Endpoint                   string         `json:"endpoint"`
	DateOfBirth                *string        `json:"dateOfBirth"`
	LegacyDOB                  *string        `json:"dob"`
	Gender                     *string        `json:"gender"`
	CustomLifeExpectancyYears  *FlexibleYears `json:"customLifeExpectancyYears"`
	LegacyCustomLifeExpectancy *FlexibleYears `json:"customLifeExpectancy"`
	Timezone                   *string        `json:"timezone"`
}

type EndpointRequest struct {
	Endpoint string `json:"endpoint" form:"endpoint"`
}

type SendTestRequest struct {
	Endpoint string `json:"endpoint"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	URL      string `json:"url"`
}

type PublicKeyResponse struct {
	PublicKey string `json:"publicKey"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}

type SentResponse struct {
	OK   bool `json:"ok"`
	Sent int  `json:"sent"`
}

type PreviewResponse struct {
	PercentRemaining *float64 `json:"percentRemaining"`
	TotalWeeks       int      `json:"totalWeeks"`
	PastWeeks        int      `json:"pastWeeks"`
}

// ========== Common ==========

type ErrorResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
