package notify

import (
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/quocanhngo/memento/internal/model"
	"github.com/stretchr/testify/assert"
)

var now = time.Date(2026, 10, 15, 7, 0, 0, 0, time.UTC)

func TestComposeWithPreferences(t *testing.T) {
	c := NewComposerWithRand(rand.New(rand.NewPCG(1, 2)), []string{"Carpe diem."})
	sub := model.Subscriber{
		Endpoint: "e1",
		Preferences: &model.Preferences{
			DateOfBirth: now.Format(model.DateKeyLayout),
			Gender:      model.GenderMale,
		},
	}

	p := c.Compose(sub, now)

	assert.Equal(t, DefaultTitle, p.Title)
	assert.Equal(t, DefaultURL, p.URL)
	assert.Equal(t, "About 100.0% of your life remains. Carpe diem.", p.Body)
}

func TestComposeWithoutPreferences(t *testing.T) {
	c := NewComposerWithRand(rand.New(rand.NewPCG(1, 2)), []string{"Carpe diem."})

	p := c.Compose(model.Subscriber{Endpoint: "e1"}, now)
	assert.Equal(t, "Remember that you will die. Carpe diem.", p.Body)

	noDOB := model.Subscriber{Endpoint: "e1", Preferences: &model.Preferences{Gender: model.GenderFemale}}
	p = c.Compose(noDOB, now)
	assert.Equal(t, "Remember that you will die. Carpe diem.", p.Body)
}

func TestComposeDrawsFromPool(t *testing.T) {
	c := NewComposer()
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		body := c.Compose(model.Subscriber{}, now).Body
		msg := strings.TrimPrefix(body, "Remember that you will die. ")
		assert.Contains(t, Messages, msg)
		seen[msg] = true
	}
	assert.Greater(t, len(seen), 1, "messages rotate")
}

func TestWithOverrides(t *testing.T) {
	base := model.Payload{Title: DefaultTitle, Body: "composed", URL: DefaultURL}

	assert.Equal(t, base, WithOverrides(base, "", "", ""))

	got := WithOverrides(base, "Test", "", "/settings")
	assert.Equal(t, model.Payload{Title: "Test", Body: "composed", URL: "/settings"}, got)
}
