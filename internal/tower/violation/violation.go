// Package violation issues airspace violation notices and tracks them until
// the violation processor reports them cleared.
package violation

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"k8s.io/utils/clock"

	"github.com/autopeer-io/airtraffic/internal/tower/phase"
	"github.com/autopeer-io/airtraffic/pkg/apis/atc/v1alpha1"
	"github.com/autopeer-io/airtraffic/pkg/log"
	"github.com/autopeer-io/airtraffic/pkg/wire"
)

const (
	CargoBaseFine    = 700000
	StandardBaseFine = 500000

	// FineSurcharge is applied on top of the base fine.
	FineSurcharge = 1.15

	// DueAfter is the payment window of a notice.
	DueAfter = 3 * 24 * time.Hour

	idPrefix = "AVN-"

	defaultRecentClearances = 256
	recentClearanceTTL      = time.Hour
)

var (
	ErrUnknownViolation = errors.New("unknown violation")
	ErrAlreadyCleared   = errors.New("violation already cleared")
)

// BaseFine returns the fine before surcharge for a flight type.
func BaseFine(t v1alpha1.FlightType) float64 {
	if t == v1alpha1.FlightTypeCargo {
		return CargoBaseFine
	}
	return StandardBaseFine
}

// Fine returns the amount charged for a violation by a flight of type t.
func Fine(t v1alpha1.FlightType) float64 {
	return BaseFine(t) * FineSurcharge
}

// Subject identifies the flight a notice is issued against.
type Subject struct {
	FlightNumber string
	AircraftID   string
	Airline      string
	Type         v1alpha1.FlightType
}

// Notice is an issued violation notice.
type Notice struct {
	ID string
	Subject

	Phase            v1alpha1.Phase
	Speed            float64
	PermissibleSpeed float64
	Reason           string

	IssuedAt      time.Time
	DueDate       time.Time
	Fine          float64
	PaymentStatus string
}

// ToWire converts n to its wire record.
func (n *Notice) ToWire() *wire.Violation {
	return &wire.Violation{
		ViolationID:      n.ID,
		Airline:          n.Airline,
		FlightNumber:     n.FlightNumber,
		FlightType:       n.Type,
		SpeedRecorded:    float32(n.Speed),
		PermissibleSpeed: float32(n.PermissibleSpeed),
		IssuedAt:         n.IssuedAt,
		FineAmount:       n.Fine,
		PaymentStatus:    n.PaymentStatus,
		DueDate:          n.DueDate,
	}
}

// Tracker issues notices and holds the active ones. Recently cleared ids are
// remembered so a repeated clearance is told apart from a bogus one.
type Tracker struct {
	clock  clock.PassiveClock
	logger log.Logger

	mu      sync.Mutex
	seq     uint64
	issued  int
	active  map[string]*Notice
	cleared *expirable.LRU[string, *Notice]
}

func NewTracker(clk clock.PassiveClock, logger log.Logger) *Tracker {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Tracker{
		clock:   clk,
		logger:  logger,
		active:  make(map[string]*Notice),
		cleared: expirable.NewLRU[string, *Notice](defaultRecentClearances, nil, recentClearanceTTL),
	}
}

// Issue creates a notice for v against s and marks it active.
func (t *Tracker) Issue(s Subject, v phase.Violation) *Notice {
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	n := &Notice{
		ID:               fmt.Sprintf("%s%d-%d", idPrefix, now.Unix(), t.seq),
		Subject:          s,
		Phase:            v.Phase,
		Speed:            v.Speed,
		PermissibleSpeed: v.PermissibleSpeed,
		Reason:           v.Reason,
		IssuedAt:         now,
		DueDate:          now.Add(DueAfter),
		Fine:             Fine(s.Type),
		PaymentStatus:    wire.PaymentStatusUnpaid,
	}
	t.active[n.ID] = n
	t.issued++

	t.logger.Warn("Violation notice issued", "violation", n.ID, "flight", s.FlightNumber, "aircraft", s.AircraftID,
		"airline", s.Airline, "phase", v.Phase, "speed", v.Speed, "permissible", v.PermissibleSpeed, "fine", n.Fine)
	return n
}

// Clear removes the notice named by c from the active set and returns it.
func (t *Tracker) Clear(c wire.ViolationCleared) (*Notice, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.active[c.ViolationID]
	if !ok {
		if _, seen := t.cleared.Get(c.ViolationID); seen {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyCleared, c.ViolationID)
		}
		return nil, fmt.Errorf("%w: %s (flight %s)", ErrUnknownViolation, c.ViolationID, c.FlightNumber)
	}
	if c.FlightNumber != "" && c.FlightNumber != n.FlightNumber {
		t.logger.Warn("Clearance flight does not match notice", "violation", n.ID, "notice", n.FlightNumber, "clearance", c.FlightNumber)
	}

	delete(t.active, n.ID)
	n.PaymentStatus = wire.PaymentStatusPaid
	t.cleared.Add(n.ID, n)
	return n, nil
}

// Active returns the active notices ordered by id.
func (t *Tracker) Active() []Notice {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Notice, 0, len(t.active))
	for _, n := range t.active {
		out = append(out, *n)
	}
	slices.SortFunc(out, func(a, b Notice) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Counts returns the number of notices issued and still active.
func (t *Tracker) Counts() (issued, active int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.issued, len(t.active)
}
