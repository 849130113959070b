package generalstore

import (
	"fmt"
	"strings"
	"testing"

	"towntrade.dev/internal/protocol"
	"towntrade.dev/internal/sim/catalogs"
	"towntrade.dev/internal/sim/session"
	"towntrade.dev/internal/sim/tuning"
)

// fakeAPI scripts the random stream so arrival and band outcomes are
// exact. Everything else mirrors the real capability surface.
type fakeAPI struct {
	st    *session.State
	tune  tuning.Tuning
	items catalogs.RoleCatalog

	rolls    []float64
	i        int
	logs     []string
	failCode string
}

func newFakeAPI(st *session.State, rolls ...float64) *fakeAPI {
	def := catalogs.ItemDef{
		ID: "cloth", Name: "Cloth", BuyIn: 60, UnitCost: 2, StartStock: 12,
		Bands: catalogs.Bands{Low: 2, FairMin: 3, FairMax: 5, High: 8},
	}
	return &fakeAPI{
		st:   st,
		tune: tuning.Defaults(),
		items: catalogs.RoleCatalog{
			Items: []catalogs.ItemDef{def},
			ByID:  map[string]catalogs.ItemDef{def.ID: def},
		},
		rolls: rolls,
	}
}

func (f *fakeAPI) Rand() float64 {
	if len(f.rolls) == 0 {
		return 0.5
	}
	v := f.rolls[f.i%len(f.rolls)]
	f.i++
	return v
}
func (f *fakeAPI) Roll(p float64) bool { return f.Rand() < p }
func (f *fakeAPI) RandRange(lo, hi float64) float64 {
	return lo + f.Rand()*(hi-lo)
}
func (f *fakeAPI) RandIntn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(f.Rand() * float64(n))
}

func (f *fakeAPI) ChangeReputation(delta int) {
	r := f.st.Reputation + delta
	if r < f.tune.RepMin {
		r = f.tune.RepMin
	}
	if r > f.tune.RepMax {
		r = f.tune.RepMax
	}
	f.st.Reputation = r
}
func (f *fakeAPI) ChangeDemand(delta float64) {
	d := f.st.Demand + delta
	if d < f.tune.DemandMin {
		d = f.tune.DemandMin
	}
	if d > f.tune.DemandMax {
		d = f.tune.DemandMax
	}
	f.st.Demand = d
}
func (f *fakeAPI) ApplyCost(amount int) bool {
	if amount < 0 || f.st.Money < amount {
		return false
	}
	f.st.Money -= amount
	return true
}
func (f *fakeAPI) Unlock(key string) { f.st.Unlocked[key] = true }

func (f *fakeAPI) IsUnlocked(key string) bool { return f.st.Unlocked[key] }

func (f *fakeAPI) Log(format string, args ...any) {
	f.logs = append(f.logs, fmt.Sprintf(format, args...))
}
func (f *fakeAPI) SetNotice(text, severity string) {
	f.st.Notice = session.Notice{Text: text, Severity: severity}
}
func (f *fakeAPI) Fail(code, text string) {
	f.SetNotice(text, session.SeverityWarn)
	f.failCode = code
}
func (f *fakeAPI) PassHours(n int) { f.st.Hours += uint64(n) }
func (f *fakeAPI) Save()           {}

func (f *fakeAPI) Tuning() tuning.Tuning { return f.tune }

func (f *fakeAPI) Items() catalogs.RoleCatalog { return f.items }

func (f *fakeAPI) DemandShock() float64 { return 1.0 }

func (f *fakeAPI) TrafficMultiplier() float64 { return 1.0 }

func (f *fakeAPI) Season() int { return 0 }

func (f *fakeAPI) TakeLoan() bool {
	if !f.st.Unlocked["bank"] {
		return false
	}
	f.st.Money += f.tune.LoanAmount
	f.st.Debt += f.tune.LoanAmount
	return true
}
func (f *fakeAPI) RepayDebt() bool {
	pay := f.tune.RepayChunk
	if pay > f.st.Debt {
		pay = f.st.Debt
	}
	if f.st.Debt <= 0 || f.st.Money < pay {
		return false
	}
	f.st.Money -= pay
	f.st.Debt -= pay
	return true
}

func (f *fakeAPI) logged(substr string) bool {
	for _, l := range f.logs {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

func freshState() *session.State {
	st := session.NewState("general_store", "t1", 1)
	Store{}.Init(st)
	return st
}

func TestChooseItemChargesBuyInAndGrantsStock(t *testing.T) {
	st := freshState()
	api := newFakeAPI(st)

	Store{}.Handle("choose_item", st, api, session.ActionInput{Item: "cloth"})

	if st.Money != 140 {
		t.Fatalf("money after buy-in: got %d, want 140", st.Money)
	}
	if st.Item == nil || st.Item.Stock != 12 {
		t.Fatalf("starting stock wrong: %+v", st.Item)
	}
	if st.Item.Price != 5 {
		t.Fatalf("default price should land on fairMax: got %d", st.Item.Price)
	}
}

func TestChooseItemUnaffordableIsNoOp(t *testing.T) {
	st := freshState()
	st.Money = 10
	api := newFakeAPI(st)

	Store{}.Handle("choose_item", st, api, session.ActionInput{Item: "cloth"})

	if st.Money != 10 || st.Item != nil {
		t.Fatalf("unaffordable buy-in mutated state: money %d item %+v", st.Money, st.Item)
	}
}

func TestFairBandSale(t *testing.T) {
	st := freshState()
	// arrival roll 0.1 (< 0.35 -> customer), rep gain roll 0.9 (-> +1),
	// talk-event roll 0.9 (-> no event).
	api := newFakeAPI(st, 0.1, 0.9, 0.9)
	Store{}.Handle("choose_item", st, api, session.ActionInput{Item: "cloth"})

	Store{}.Handle("serve", st, api, session.ActionInput{})

	if st.Money != 145 {
		t.Fatalf("money after fair sale: got %d, want 145", st.Money)
	}
	if st.Item.Stock != 11 {
		t.Fatalf("stock after sale: got %d, want 11", st.Item.Stock)
	}
	if st.Reputation < 0 || st.Reputation > 3 {
		t.Fatalf("fair-band rep delta out of range: %d", st.Reputation)
	}
	if st.Served != 1 || st.GoodServed != 1 {
		t.Fatalf("counters: served %d good %d", st.Served, st.GoodServed)
	}
}

func TestOutrageousPriceLosesSaleAndRep(t *testing.T) {
	st := freshState()
	api := newFakeAPI(st, 0.1)
	Store{}.Handle("choose_item", st, api, session.ActionInput{Item: "cloth"})
	st.Item.Price = 8

	Store{}.Handle("serve", st, api, session.ActionInput{})

	if st.Money != 140 || st.Item.Stock != 12 {
		t.Fatalf("lost sale still transacted: money %d stock %d", st.Money, st.Item.Stock)
	}
	if st.Reputation != -2 {
		t.Fatalf("rep after scoff: got %d, want -2", st.Reputation)
	}
	if st.BadServed != 1 {
		t.Fatalf("badServed: got %d", st.BadServed)
	}
}

func TestServeOutOfStockIsDistinctNoOp(t *testing.T) {
	st := freshState()
	api := newFakeAPI(st)
	Store{}.Handle("choose_item", st, api, session.ActionInput{Item: "cloth"})
	st.Item.Stock = 0
	money := st.Money

	Store{}.Handle("serve", st, api, session.ActionInput{})

	if st.Money != money || st.Item.Stock != 0 {
		t.Fatalf("out-of-stock serve mutated state: money %d stock %d", st.Money, st.Item.Stock)
	}
	if !api.logged("bare") {
		t.Fatalf("no out-of-stock log line: %v", api.logs)
	}
}

func TestZeroCustomerHourLogsDistinctly(t *testing.T) {
	st := freshState()
	api := newFakeAPI(st, 0.99)
	Store{}.Handle("choose_item", st, api, session.ActionInput{Item: "cloth"})

	Store{}.Handle("serve", st, api, session.ActionInput{})

	if st.DryStreak != 1 {
		t.Fatalf("dry streak not counted: %d", st.DryStreak)
	}
	if !api.logged("Nobody stops by") {
		t.Fatalf("no zero-customer log line: %v", api.logs)
	}
}

func TestDiscountIsOneShot(t *testing.T) {
	st := freshState()
	// Two serve hours, each with one arriving customer taking the fair
	// branch without a talk event.
	api := newFakeAPI(st, 0.1, 0.9, 0.9)
	Store{}.Handle("choose_item", st, api, session.ActionInput{Item: "cloth"})

	Store{}.Handle("discount", st, api, session.ActionInput{Amount: 2})
	if st.Item.Discount != 2 {
		t.Fatalf("discount not set: %+v", st.Item)
	}

	Store{}.Handle("serve", st, api, session.ActionInput{})
	if st.Money != 143 {
		t.Fatalf("discounted sale: money got %d, want 143", st.Money)
	}
	if st.Item.Discount != 0 {
		t.Fatal("discount not consumed")
	}

	Store{}.Handle("serve", st, api, session.ActionInput{})
	if st.Money != 148 {
		t.Fatalf("second sale should be full price: money got %d, want 148", st.Money)
	}
}

func TestRestockOrdersShipmentNotInstantStock(t *testing.T) {
	st := freshState()
	api := newFakeAPI(st)
	Store{}.Handle("choose_item", st, api, session.ActionInput{Item: "cloth"})
	money := st.Money

	Store{}.Handle("restock", st, api, session.ActionInput{Qty: 10})

	if st.Money != money-20 {
		t.Fatalf("restock cost: money got %d, want %d", st.Money, money-20)
	}
	if st.Item.Stock != 12 {
		t.Fatalf("restock landed instantly: stock %d", st.Item.Stock)
	}
	if len(st.Shipments) != 1 || st.Shipments[0].Qty != 10 {
		t.Fatalf("shipment not ordered: %+v", st.Shipments)
	}
	if got, want := st.Shipments[0].ArrivesHours, st.Hours+uint64(api.tune.ShipmentHours); got != want {
		t.Fatalf("shipment eta: got %d, want %d", got, want)
	}
}

func TestRestockUnaffordableIsNoOp(t *testing.T) {
	st := freshState()
	api := newFakeAPI(st)
	Store{}.Handle("choose_item", st, api, session.ActionInput{Item: "cloth"})
	st.Money = 5

	Store{}.Handle("restock", st, api, session.ActionInput{Qty: 100})

	if st.Money != 5 || len(st.Shipments) != 0 {
		t.Fatalf("unaffordable restock mutated state: money %d shipments %v", st.Money, st.Shipments)
	}
	if api.failCode != protocol.ErrNoResource {
		t.Fatalf("failure code = %q, want %q", api.failCode, protocol.ErrNoResource)
	}
}

func TestUpgradeStallUnaffordableLeavesStage(t *testing.T) {
	st := freshState()
	st.Money = 50
	st.Unlocked["stall"] = true
	api := newFakeAPI(st)

	Store{}.Handle("upgrade_stall", st, api, session.ActionInput{})

	if st.Stage != 0 || st.Money != 50 {
		t.Fatalf("unaffordable upgrade mutated state: stage %d money %d", st.Stage, st.Money)
	}
}

func TestUpgradeStallWhenAffordable(t *testing.T) {
	st := freshState()
	st.Money = 200
	st.Unlocked["stall"] = true
	api := newFakeAPI(st)

	Store{}.Handle("upgrade_stall", st, api, session.ActionInput{})

	if st.Stage != 1 {
		t.Fatalf("stage after upgrade: got %d, want 1", st.Stage)
	}
	if st.Money != 200-api.tune.StallCost {
		t.Fatalf("money after upgrade: got %d", st.Money)
	}
}

func TestTalkResolvesPendingEvent(t *testing.T) {
	st := freshState()
	api := newFakeAPI(st)
	st.PendingTalk = &session.TalkEvent{
		Prompt:    "A regular lingers.",
		Options:   []string{"Chat warmly", "Keep it short"},
		RepDeltas: []int{3, 0},
	}

	Store{}.Handle("talk", st, api, session.ActionInput{Option: 0})

	if st.Reputation != 3 {
		t.Fatalf("talk rep delta: got %d, want 3", st.Reputation)
	}
	if st.PendingTalk != nil {
		t.Fatal("pending talk not cleared")
	}
}

func TestTalkBadOptionKeepsEventPending(t *testing.T) {
	st := freshState()
	api := newFakeAPI(st)
	st.PendingTalk = &session.TalkEvent{
		Prompt:    "hm",
		Options:   []string{"a"},
		RepDeltas: []int{1},
	}

	Store{}.Handle("talk", st, api, session.ActionInput{Option: 5})

	if st.PendingTalk == nil || st.Reputation != 0 {
		t.Fatalf("invalid option resolved the event: rep %d", st.Reputation)
	}
}

func TestMigrateResetsTownButKeepsStage(t *testing.T) {
	st := freshState()
	st.Money = 500
	st.Stage = 1
	st.Reputation = 40
	st.Demand = 1.2
	st.CompetitorPressure = 0.8
	st.DryStreak = 4
	st.Unlocked["migrate"] = true
	api := newFakeAPI(st)

	Store{}.Handle("migrate", st, api, session.ActionInput{})

	if st.Reputation != 20 {
		t.Fatalf("rep after migrate: got %d, want 20", st.Reputation)
	}
	if st.Demand != 1.0 || st.CompetitorPressure != 1.0 || st.DryStreak != 0 {
		t.Fatalf("town not reset: demand %v pressure %v streak %d",
			st.Demand, st.CompetitorPressure, st.DryStreak)
	}
	if st.Stage != 1 {
		t.Fatalf("migrate changed stage: %d", st.Stage)
	}
	if st.Money != 500-api.tune.MigrateCost {
		t.Fatalf("migrate cost: money %d", st.Money)
	}
}

func TestUnhandledActionReportsFalse(t *testing.T) {
	st := freshState()
	api := newFakeAPI(st)
	if (Store{}).Handle("juggle", st, api, session.ActionInput{}) {
		t.Fatal("unknown id reported handled")
	}
}
