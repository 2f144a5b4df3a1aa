package strategy

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/trading-bot/internal/models"
)

// IDGenerator hands out identifiers for records created during a tick
type IDGenerator interface {
	NewID() uuid.UUID
}

// RandomIDs generates random version 4 identifiers
type RandomIDs struct{}

// NewID returns a random identifier
func (RandomIDs) NewID() uuid.UUID {
	return uuid.New()
}

// DeterministicIDs derives identifiers from a namespace, the current day and
// a per-day sequence number. Two runs over the same days yield the same ids.
type DeterministicIDs struct {
	mu        sync.Mutex
	namespace uuid.UUID
	day       time.Time
	seq       int
}

// NewDeterministicIDs creates a generator scoped to namespace
func NewDeterministicIDs(namespace uuid.UUID) *DeterministicIDs {
	return &DeterministicIDs{namespace: namespace}
}

// SetDay moves the generator to day and restarts the sequence
func (g *DeterministicIDs) SetDay(day time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.day = models.Day(day)
	g.seq = 0
}

// NewID returns the next identifier of the current day
func (g *DeterministicIDs) NewID() uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	name := fmt.Sprintf("%s/%d", g.day.Format("2006-01-02"), g.seq)
	return uuid.NewSHA1(g.namespace, []byte(name))
}
