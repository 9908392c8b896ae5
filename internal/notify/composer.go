package notify

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/quocanhngo/memento/internal/lifespan"
	"github.com/quocanhngo/memento/internal/model"
)

const (
	DefaultTitle = "Memento Mori"
	DefaultURL   = "/"
)

// Messages is the rotating pool appended to every reminder
var Messages = []string{
	"You could leave life right now. Let that determine what you do and say and think.",
	"It is not that we have a short time to live, but that we waste a lot of it.",
	"Do not act as if you had ten thousand years to live.",
	"Begin at once to live, and count each separate day as a separate life.",
	"The whole future lies in uncertainty: live immediately.",
	"Life is long, if you know how to use it.",
	"What we do now echoes in eternity.",
	"Make this week one worth counting.",
	"Every dot on the grid was once a Monday like this one.",
	"Time is the one thing you cannot buy back. Spend today deliberately.",
}

// Composer builds notification payloads from subscriber state
type Composer struct {
	mu       sync.Mutex
	rng      *rand.Rand
	messages []string
}

// NewComposer creates a composer drawing from Messages with a random seed
func NewComposer() *Composer {
	return NewComposerWithRand(rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())), Messages)
}

// NewComposerWithRand lets tests pin the random source and the pool
func NewComposerWithRand(rng *rand.Rand, messages []string) *Composer {
	if len(messages) == 0 {
		messages = Messages
	}
	return &Composer{rng: rng, messages: messages}
}

// Compose builds the daily reminder for sub. The body embeds the remaining
// life percentage when the subscriber's preferences allow computing it.
func (c *Composer) Compose(sub model.Subscriber, now time.Time) model.Payload {
	message := c.pick()

	body := "Remember that you will die. " + message
	if pct, ok := lifespan.RemainingPercent(sub.Preferences, now); ok {
		body = fmt.Sprintf("About %.1f%% of your life remains. %s", pct, message)
	}

	return model.Payload{
		Title: DefaultTitle,
		Body:  body,
		URL:   DefaultURL,
	}
}

// WithOverrides replaces any non-empty field of p by the caller's value
func WithOverrides(p model.Payload, title, body, url string) model.Payload {
	if title != "" {
		p.Title = title
	}
	if body != "" {
		p.Body = body
	}
	if url != "" {
		p.URL = url
	}
	return p
}

func (c *Composer) pick() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messages[c.rng.IntN(len(c.messages))]
}
