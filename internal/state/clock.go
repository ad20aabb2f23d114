package state

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Clock hands out action ids for one participant. Ids look like
// "<clientID>-<unixMillis>-<counter>" and are never reused within a session.
type Clock struct {
	clientID string
	counter  atomic.Uint64
	now      func() time.Time
}

// NewClock returns a clock for clientID. An empty clientID gets a random
// site id so two anonymous peers never collide.
func NewClock(clientID string) *Clock {
	if clientID == "" {
		clientID = "local-" + uuid.NewString()[:8]
	}
	return &Clock{clientID: clientID, now: time.Now}
}

func (c *Clock) ClientID() string { return c.clientID }

// NextID returns a fresh action id.
func (c *Clock) NextID() string {
	n := c.counter.Add(1)
	return fmt.Sprintf("%s-%d-%d", c.clientID, c.now().UnixMilli(), n)
}

// PrefixedID builds the id a relay assigns to a message that arrived
// without one, e.g. "stroke-k3j9x2-lq2w8f1".
func PrefixedID(prefix string) string {
	if prefix == "" {
		prefix = "action"
	}
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	r := make([]byte, 6)
	for i := range r {
		r[i] = alphabet[rand.IntN(len(alphabet))]
	}
	return prefix + "-" + string(r) + "-" + strconv.FormatInt(time.Now().UnixMilli(), 36)
}
