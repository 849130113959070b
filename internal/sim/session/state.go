package session

// StageNames indexes the business tiers. Stage only ever increases.
var StageNames = []string{"Cart in town", "Market stall", "Small storefront"}

// SeasonNames indexes the four-season cycle derived from the day count.
var SeasonNames = []string{"Spring", "Summer", "Autumn", "Winter"}

// Notice severities.
const (
	SeverityInfo = "info"
	SeverityWarn = "warn"
)

// State is the single mutable aggregate for one playthrough. It is
// mutated only by the session goroutine: through the action dispatcher
// and the hourly/daily systems. Everything here serializes to a SaveV1.
type State struct {
	RoleKey string
	SaveID  string

	Money      int
	Debt       int
	Reputation int
	Stage      int

	Demand float64

	Seconds   uint64
	Hours     uint64
	DayCount  uint64
	HourOfDay int

	RNGSeed  uint32
	RNGState uint32

	// Daily demand shock, memoized per day so repeated reads within one
	// day return the same value.
	ShockDay   uint64
	ShockValue float64
	ShockSet   bool

	Unlocked map[string]bool

	Item      *Item
	Shipments []Shipment

	// 1.0 means no rival pressure; drifts down once the competitor opens.
	CompetitorPressure float64

	// Consecutive customer-less hours; raises arrival odds slightly
	// (soft streak protection, not a guarantee).
	DryStreak int

	Helper       bool
	RepGainBonus int

	Served     int
	GoodServed int
	BadServed  int

	// Days in a row the overhead left the till negative.
	OverdueDays int

	LogLines    []string
	Notice      Notice
	PendingTalk *TalkEvent

	GameOver       bool
	GameOverReason string
}

// Item is the stocked good. Stock never goes negative; Discount is a
// one-shot price cut consumed by the next sale.
type Item struct {
	ID       string
	Name     string
	UnitCost int
	Price    int
	Stock    int
	Discount int
}

// Shipment is restock in transit; it lands when Hours reaches ArrivesHours.
type Shipment struct {
	Qty          int
	ArrivesHours uint64
}

type Notice struct {
	Text     string
	Severity string
}

// TalkEvent is a pending customer conversation: the player picks an
// option on a later `talk` action. It expires as soon as more time
// passes.
type TalkEvent struct {
	Prompt    string
	Options   []string
	RepDeltas []int
}

// NewState builds the engine-level defaults for a fresh playthrough.
// Role-specific fields (starting money, reputation) come from the role's
// Init hook.
func NewState(roleKey, saveID string, seed uint32) *State {
	if seed == 0 {
		seed = 1
	}
	return &State{
		RoleKey:            roleKey,
		SaveID:             saveID,
		Demand:             1.0,
		CompetitorPressure: 1.0,
		RNGSeed:            seed,
		RNGState:           seed,
		Unlocked:           map[string]bool{"cart": true},
		LogLines:           []string{},
	}
}

// StageName returns the display name for the current stage.
func (st *State) StageName() string {
	if st.Stage < 0 || st.Stage >= len(StageNames) {
		return StageNames[len(StageNames)-1]
	}
	return StageNames[st.Stage]
}

// HasStock reports whether there is anything on the shelf to sell.
func (st *State) HasStock() bool {
	return st.Item != nil && st.Item.Stock > 0
}
