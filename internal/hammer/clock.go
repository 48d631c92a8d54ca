package hammer

import (
	"time"

	"github.com/google/uuid"
)

// Clock abstracts time retrieval so the engine is deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator abstracts unique-suffix generation for timestamp-collision
// disambiguation, so tests are deterministic.
type IDGenerator interface {
	New() string
}

// UUIDGenerator produces short disambiguating suffixes from random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.New().String()[:8] }
