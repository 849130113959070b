// Package blacksmith implements the smithy: fewer walk-ins than the
// store, fatter margins, and stock forged at the anvil instead of
// ordered by wagon.
package blacksmith

import (
	"towntrade.dev/internal/protocol"
	"towntrade.dev/internal/sim/session"
)

type Smith struct{}

func New() *Smith { return &Smith{} }

func (Smith) Key() string  { return "blacksmith" }
func (Smith) Name() string { return "Blacksmith" }
func (Smith) Intro() string {
	return "You inherit a cold forge and a box of tools. Iron is cheap; skill is what they pay for."
}

func (Smith) Init(st *session.State) {
	st.Money = 150
	st.Reputation = 5
	st.Stage = 0
}

func (Smith) Start(st *session.State, api session.API) {
	api.Log("You light the forge. $%d in the coin box.", st.Money)
	api.SetNotice("Pick what to smith before you can trade.", session.SeverityInfo)
}

func (Smith) Actions(st *session.State) []session.ActionSpec {
	if st.Item == nil {
		return []session.ActionSpec{
			{ID: "choose_item", Label: "Pick what to smith", Hours: 0, Enabled: true,
				Tooltip: "Pay the buy-in for materials and patterns."},
		}
	}
	return []session.ActionSpec{
		{ID: "serve", Label: "Open the smithy", Hours: 1, Enabled: true},
		{ID: "forge", Label: "Forge a batch", Hours: 1, Enabled: true,
			Tooltip: "Pay material cost per piece, stock lands immediately."},
		{ID: "set_price", Label: "Set price", Hours: 0, Enabled: true},
		{ID: "talk", Label: "Talk to the customer", Hours: 0, Enabled: st.PendingTalk != nil},
		{ID: "loan", Label: "Take a bank loan", Hours: 0, Enabled: st.Unlocked["bank"]},
		{ID: "repay", Label: "Repay debt", Hours: 0, Enabled: st.Debt > 0},
		{ID: "upgrade_stall", Label: "Build a covered forge", Hours: 1,
			Enabled: st.Unlocked["stall"] && st.Stage == 0},
		{ID: "upgrade_storefront", Label: "Open a proper smithy", Hours: 1,
			Enabled: st.Unlocked["storefront"] && st.Stage == 1},
		{ID: "migrate", Label: "Move to another town", Hours: 2,
			Enabled: st.Unlocked["migrate"]},
	}
}

func (r Smith) Handle(id string, st *session.State, api session.API, in session.ActionInput) bool {
	switch id {
	case "choose_item":
		r.chooseItem(st, api, in)
	case "serve":
		r.serve(st, api)
	case "forge":
		r.forge(st, api, in)
	case "set_price":
		r.setPrice(st, api, in)
	case "talk":
		r.talk(st, api, in)
	case "loan":
		api.TakeLoan()
	case "repay":
		api.RepayDebt()
	case "upgrade_stall":
		r.upgrade(st, api, 0, api.Tuning().StallCost, "You raise a roof over the forge. Work goes on, rain or shine.")
	case "upgrade_storefront":
		r.upgrade(st, api, 1, api.Tuning().StorefrontCost, "You open a proper smithy with a sign and a door.")
	case "migrate":
		r.migrate(st, api)
	default:
		return false
	}
	return true
}

func (Smith) chooseItem(st *session.State, api session.API, in session.ActionInput) {
	if st.Item != nil {
		api.Log("You already smith %s.", st.Item.Name)
		return
	}
	def, ok := api.Items().ByID[in.Item]
	if !ok {
		api.Fail(protocol.ErrBadRequest, "No patterns for that.")
		api.Log("You have no pattern for '%s'.", in.Item)
		return
	}
	if !api.ApplyCost(def.BuyIn) {
		api.Fail(protocol.ErrNoResource, "You can't afford those materials.")
		api.Log("%s would cost $%d to set up. Not yet.", def.Name, def.BuyIn)
		return
	}
	st.Item = &session.Item{
		ID:       def.ID,
		Name:     def.Name,
		UnitCost: def.UnitCost,
		Price:    def.Bands.FairMax,
		Stock:    def.StartStock,
	}
	api.Log("You lay in iron for %s: $%d spent, %d pieces ready.", def.Name, def.BuyIn, def.StartStock)
	api.Save()
}

// Fewer customers than the store; the early forge serves one at a time.
var stageCaps = []int{1, 1, 2}

func (Smith) serve(st *session.State, api session.API) {
	if st.Item == nil {
		api.Log("The forge is cold and the racks are empty.")
		return
	}
	if !st.HasStock() {
		api.Fail(protocol.ErrNoStock, "Nothing finished to sell. Forge a batch.")
		api.Log("A customer looks over the empty racks and leaves.")
		return
	}

	limit := stageCaps[len(stageCaps)-1]
	if st.Stage < len(stageCaps) {
		limit = stageCaps[st.Stage]
	}
	chance := 0.30 + 0.05*float64(st.Stage) + float64(st.Reputation)/350.0
	chance *= st.Demand * api.TrafficMultiplier()
	streak := 0.05 * float64(st.DryStreak)
	if streak > 0.25 {
		streak = 0.25
	}
	chance += streak
	if chance < 0.05 {
		chance = 0.05
	}
	if chance > 0.95 {
		chance = 0.95
	}

	customers := 0
	for i := 0; i < limit; i++ {
		if api.Roll(chance) {
			customers++
		}
	}
	if customers == 0 {
		st.DryStreak++
		api.Log("The anvil rings for no one this hour.")
		return
	}
	st.DryStreak = 0
	for i := 0; i < customers && st.HasStock(); i++ {
		sellOne(st, api)
	}
}

func sellOne(st *session.State, api session.API) {
	it := st.Item
	bands := api.Items().ByID[it.ID].Bands
	price := it.Price

	switch {
	case price >= bands.High:
		st.BadServed++
		api.ChangeReputation(-2)
		api.Log("\"%d dollars? For %s?\" The customer leaves shaking their head.", price, it.Name)
		return
	case price > bands.FairMax:
		if api.Roll(0.5) {
			api.ChangeReputation(-1)
		}
		api.Log("A customer haggles, loses, and pays $%d.", price)
	case price >= bands.FairMin:
		api.ChangeReputation(api.RandIntn(2))
		st.GoodServed++
		api.Log("Good work at a fair price: %s for $%d.", it.Name, price)
	default:
		api.ChangeReputation(2)
		st.GoodServed++
		api.Log("You practically give the %s away at $%d. They'll be back.", it.Name, price)
	}

	it.Stock--
	st.Money += price
	st.Served++
}

// forge turns money into stock on the spot; a smith needs no wagon.
func (Smith) forge(st *session.State, api session.API, in session.ActionInput) {
	if st.Item == nil {
		api.Log("Nothing chosen to smith.")
		return
	}
	qty := in.Qty
	if qty <= 0 {
		qty = 1
	}
	cost := qty * st.Item.UnitCost
	if !api.ApplyCost(cost) {
		api.Fail(protocol.ErrNoResource, "Not enough money for materials.")
		api.Log("%d pieces would take $%d in iron. The box is light.", qty, cost)
		return
	}
	st.Item.Stock += qty
	api.Log("You forge %d %s. The racks fill.", qty, st.Item.Name)
}

func (Smith) setPrice(st *session.State, api session.API, in session.ActionInput) {
	if st.Item == nil {
		api.Log("Nothing to price yet.")
		return
	}
	if in.Price < 1 {
		api.Fail(protocol.ErrBadRequest, "That price makes no sense.")
		return
	}
	st.Item.Price = in.Price
	api.Log("%s now goes for $%d.", st.Item.Name, in.Price)
}

func (Smith) talk(st *session.State, api session.API, in session.ActionInput) {
	ev := st.PendingTalk
	if ev == nil {
		api.Log("No one is waiting to chat.")
		return
	}
	if in.Option < 0 || in.Option >= len(ev.Options) {
		api.Fail(protocol.ErrBadRequest, "Pick one of the offered replies.")
		return
	}
	api.ChangeReputation(ev.RepDeltas[in.Option])
	st.PendingTalk = nil
	api.Log("\"%s.\"", ev.Options[in.Option])
}

func (Smith) upgrade(st *session.State, api session.API, fromStage, cost int, done string) {
	if st.Stage != fromStage {
		api.Fail(protocol.ErrLocked, "That upgrade isn't where you are.")
		return
	}
	if !api.ApplyCost(cost) {
		api.Fail(protocol.ErrNoResource, "You can't afford that yet.")
		api.Log("It would cost $%d. Keep hammering.", cost)
		return
	}
	st.Stage = fromStage + 1
	api.Log("%s", done)
	api.Save()
}

func (Smith) migrate(st *session.State, api session.API) {
	cost := api.Tuning().MigrateCost
	if !api.ApplyCost(cost) {
		api.Fail(protocol.ErrNoResource, "You can't afford the move.")
		return
	}
	st.Reputation /= 2
	st.Demand = 1.0
	st.CompetitorPressure = 1.0
	st.DryStreak = 0
	st.PendingTalk = nil
	api.Log("You cart the anvil to a new town. It is very heavy.")
	api.Save()
}

func (Smith) OnHour(st *session.State, api session.API) {
	api.ChangeDemand(float64(st.Reputation) / 3000.0)
}

func (Smith) Story(st *session.State) string {
	switch {
	case st.GameOver:
		return "The forge has gone cold for good."
	case st.Item == nil:
		return "A cold forge waits for its first commission."
	case st.Stage == 0:
		return "You work an open-air forge at the edge of the market."
	case st.Stage == 1:
		return "Your covered forge draws steady custom."
	default:
		return "The smithy bears your mark, and the town's horses bear your shoes."
	}
}

func (Smith) Ascii(st *session.State) (string, string) {
	return anvilArt, "The anvil, mid-shift."
}

const anvilArt = `   ____
  /    \___
  \____/---\
   |  |
  _|__|_`

var _ interface {
	session.Role
	session.HourHook
	session.AsciiHook
} = Smith{}
