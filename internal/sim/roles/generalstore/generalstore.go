// Package generalstore implements the general store business: walk-in
// customers judge the listed price against per-item tolerance bands, and
// the player balances stock, price, reputation and time.
package generalstore

import (
	"towntrade.dev/internal/protocol"
	"towntrade.dev/internal/sim/session"
)

type Store struct{}

func New() *Store { return &Store{} }

func (Store) Key() string  { return "general_store" }
func (Store) Name() string { return "General Store" }
func (Store) Intro() string {
	return "You arrive in town with a cart, a little money, and a plan: buy cheap, sell fair, and maybe one day own a storefront."
}

func (Store) Init(st *session.State) {
	st.Money = 200
	st.Reputation = 0
	st.Stage = 0
}

func (Store) Start(st *session.State, api session.API) {
	api.Log("You roll your cart into the town square with $%d.", st.Money)
	api.SetNotice("Pick an item to stock before you can trade.", session.SeverityInfo)
}

func (Store) Actions(st *session.State) []session.ActionSpec {
	if st.Item == nil {
		return []session.ActionSpec{
			{ID: "choose_item", Label: "Choose an item to stock", Hours: 0, Enabled: true,
				Tooltip: "Pay the buy-in, get the starting stock."},
		}
	}
	return []session.ActionSpec{
		{ID: "serve", Label: "Open up and serve", Hours: 1, Enabled: true,
			Tooltip: "Spend an hour selling to whoever stops by."},
		{ID: "restock", Label: "Order restock", Hours: 1, Enabled: true,
			Tooltip: "Pay unit cost per piece; the wagon takes a while."},
		{ID: "set_price", Label: "Set price", Hours: 0, Enabled: true},
		{ID: "discount", Label: "Offer a discount", Hours: 0, Enabled: true,
			Tooltip: "One-shot price cut for the next customer."},
		{ID: "talk", Label: "Talk to the customer", Hours: 0, Enabled: st.PendingTalk != nil},
		{ID: "loan", Label: "Take a bank loan", Hours: 0, Enabled: st.Unlocked["bank"]},
		{ID: "repay", Label: "Repay debt", Hours: 0, Enabled: st.Debt > 0},
		{ID: "upgrade_stall", Label: "Upgrade to a stall", Hours: 1,
			Enabled: st.Unlocked["stall"] && st.Stage == 0},
		{ID: "upgrade_storefront", Label: "Rent the storefront", Hours: 1,
			Enabled: st.Unlocked["storefront"] && st.Stage == 1},
		{ID: "upgrade_helper", Label: "Hire a helper", Hours: 1,
			Enabled: st.Stage >= 1 && !st.Helper},
		{ID: "upgrade_newspaper", Label: "Buy a Gazette feature", Hours: 1,
			Enabled: st.Unlocked["newspaper"] && st.RepGainBonus == 0},
		{ID: "advertise", Label: "Advertise in the Gazette", Hours: 1,
			Enabled: st.Unlocked["newspaper"]},
		{ID: "migrate", Label: "Move to another town", Hours: 2,
			Enabled: st.Unlocked["migrate"]},
	}
}

func (r Store) Handle(id string, st *session.State, api session.API, in session.ActionInput) bool {
	switch id {
	case "choose_item":
		r.chooseItem(st, api, in)
	case "serve":
		r.serve(st, api)
	case "restock":
		r.restock(st, api, in)
	case "set_price":
		r.setPrice(st, api, in)
	case "discount":
		r.discount(st, api, in)
	case "talk":
		r.talk(st, api, in)
	case "loan":
		api.TakeLoan()
	case "repay":
		api.RepayDebt()
	case "upgrade_stall":
		r.upgradeStall(st, api)
	case "upgrade_storefront":
		r.upgradeStorefront(st, api)
	case "upgrade_helper":
		r.upgradeHelper(st, api)
	case "upgrade_newspaper":
		r.upgradeNewspaper(st, api)
	case "advertise":
		r.advertise(st, api)
	case "migrate":
		r.migrate(st, api)
	default:
		return false
	}
	return true
}

func (Store) chooseItem(st *session.State, api session.API, in session.ActionInput) {
	if st.Item != nil {
		api.Log("You already stock %s.", st.Item.Name)
		return
	}
	def, ok := api.Items().ByID[in.Item]
	if !ok {
		api.Fail(protocol.ErrBadRequest, "Nobody in town sells that.")
		api.Log("You ask around for '%s'. Blank stares.", in.Item)
		return
	}
	if !api.ApplyCost(def.BuyIn) {
		api.Fail(protocol.ErrNoResource, "You can't afford that buy-in.")
		api.Log("The %s buy-in is $%d. Your purse says no.", def.Name, def.BuyIn)
		return
	}
	st.Item = &session.Item{
		ID:       def.ID,
		Name:     def.Name,
		UnitCost: def.UnitCost,
		Price:    def.Bands.FairMax,
		Stock:    def.StartStock,
	}
	api.Log("You buy into %s for $%d. %d units on the cart, priced at $%d.",
		def.Name, def.BuyIn, def.StartStock, st.Item.Price)
	api.SetNotice("Stocked and ready. Open up and serve.", session.SeverityInfo)
	api.Save()
}

// stageCaps is the maximum walk-ins a single serve hour can bring per
// business stage.
var stageCaps = []int{1, 2, 3}

func (r Store) serve(st *session.State, api session.API) {
	if st.Item == nil {
		api.Log("Nothing to sell yet.")
		return
	}
	if !st.HasStock() {
		api.Fail(protocol.ErrNoStock, "Out of stock. Order a restock.")
		api.Log("Customers come by, but your shelf is bare.")
		return
	}

	customers := r.customersThisHour(st, api)
	if customers == 0 {
		st.DryStreak++
		api.Log("An hour passes. Nobody stops by.")
		return
	}
	st.DryStreak = 0

	for i := 0; i < customers && st.HasStock(); i++ {
		r.sellOne(st, api)
	}
}

func (Store) customersThisHour(st *session.State, api session.API) int {
	limit := stageCaps[len(stageCaps)-1]
	if st.Stage < len(stageCaps) {
		limit = stageCaps[st.Stage]
	}

	chance := 0.35 + 0.05*float64(st.Stage) + float64(st.Reputation)/400.0
	chance *= st.Demand * api.TrafficMultiplier()
	if st.Helper {
		chance += 0.10
	}
	// Bad-luck buffer: dry hours make the next arrival a bit more likely.
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

	count := 0
	for i := 0; i < limit; i++ {
		if api.Roll(chance) {
			count++
		}
	}
	return count
}

// sellOne runs one customer through the price-reaction bands. Revenue is
// the full listed price; the unit cost was already paid at restock.
func (Store) sellOne(st *session.State, api session.API) {
	it := st.Item
	def := api.Items().ByID[it.ID]
	bands := def.Bands

	price := it.Price
	if it.Discount > 0 {
		price -= it.Discount
		if price < 1 {
			price = 1
		}
		it.Discount = 0
		api.Log("Your discount sign does its work: $%d today only.", price)
	}

	switch {
	case price >= bands.High:
		st.BadServed++
		api.ChangeReputation(-2)
		api.Log("A customer scoffs at $%d for %s and walks off.", price, it.Name)
		return
	case price > bands.FairMax:
		if api.Roll(0.5) {
			api.ChangeReputation(-1)
			api.Log("A customer grumbles about the price but pays $%d.", price)
		} else {
			api.Log("A customer eyes the price, shrugs, and pays $%d.", price)
		}
	case price >= bands.FairMin:
		gain := api.RandIntn(2)
		if gain > 0 {
			gain += st.RepGainBonus
		}
		api.ChangeReputation(gain)
		st.GoodServed++
		api.Log("A customer buys %s for $%d. Fair deal.", it.Name, price)
		maybeTalkEvent(st, api)
	default:
		api.ChangeReputation(2)
		st.GoodServed++
		api.Log("A customer can't believe the price. $%d! They'll tell their friends.", price)
	}

	it.Stock--
	st.Money += price
	st.Served++
}

var talkEvents = []session.TalkEvent{
	{
		Prompt:    "A regular lingers by the cart: \"Business treating you fair?\"",
		Options:   []string{"Chat warmly about the town", "Keep it short, there's work", "Complain about the rent"},
		RepDeltas: []int{3, 0, -2},
	},
	{
		Prompt:    "A farmer asks if you'd put in a good word with the miller.",
		Options:   []string{"Promise to vouch for them", "Stay out of it"},
		RepDeltas: []int{2, -1},
	},
	{
		Prompt:    "A child counts out coppers one by one, two short of the price.",
		Options:   []string{"Let it slide", "Price is the price"},
		RepDeltas: []int{3, -1},
	},
}

func maybeTalkEvent(st *session.State, api session.API) {
	if st.PendingTalk != nil || !api.Roll(0.15) {
		return
	}
	ev := talkEvents[api.RandIntn(len(talkEvents))]
	st.PendingTalk = &session.TalkEvent{
		Prompt:    ev.Prompt,
		Options:   append([]string{}, ev.Options...),
		RepDeltas: append([]int{}, ev.RepDeltas...),
	}
	api.Log("%s", ev.Prompt)
	api.SetNotice("A customer wants a word. Talk before the moment passes.", session.SeverityInfo)
}

func (Store) talk(st *session.State, api session.API, in session.ActionInput) {
	ev := st.PendingTalk
	if ev == nil {
		api.Log("No one is waiting to chat.")
		return
	}
	if in.Option < 0 || in.Option >= len(ev.Options) {
		api.Fail(protocol.ErrBadRequest, "Pick one of the offered replies.")
		return
	}
	delta := ev.RepDeltas[in.Option]
	api.ChangeReputation(delta)
	st.PendingTalk = nil
	switch {
	case delta > 0:
		api.Log("\"%s.\" The word gets around. (+%d rep)", ev.Options[in.Option], delta)
	case delta < 0:
		api.Log("\"%s.\" That lands badly. (%d rep)", ev.Options[in.Option], delta)
	default:
		api.Log("\"%s.\" The moment passes politely.", ev.Options[in.Option])
	}
}

func (Store) restock(st *session.State, api session.API, in session.ActionInput) {
	if st.Item == nil {
		api.Log("Nothing to restock yet.")
		return
	}
	qty := in.Qty
	if qty <= 0 {
		api.Fail(protocol.ErrBadRequest, "Order at least one unit.")
		return
	}
	cost := qty * st.Item.UnitCost
	if !api.ApplyCost(cost) {
		api.Fail(protocol.ErrNoResource, "Not enough money for that order.")
		api.Log("%d units of %s would cost $%d. Too rich today.", qty, st.Item.Name, cost)
		return
	}
	arrives := st.Hours + uint64(api.Tuning().ShipmentHours)
	st.Shipments = append(st.Shipments, session.Shipment{Qty: qty, ArrivesHours: arrives})
	api.Log("You order %d %s for $%d. The wagon should arrive in about %d hours.",
		qty, st.Item.Name, cost, api.Tuning().ShipmentHours)
	api.SetNotice("Restock ordered. It travels by wagon, not by wish.", session.SeverityInfo)
}

func (Store) setPrice(st *session.State, api session.API, in session.ActionInput) {
	if st.Item == nil {
		api.Log("Nothing to price yet.")
		return
	}
	if in.Price < 1 {
		api.Fail(protocol.ErrBadRequest, "That price makes no sense.")
		return
	}
	st.Item.Price = in.Price
	api.Log("You chalk up a new price: %s at $%d.", st.Item.Name, in.Price)
}

func (Store) discount(st *session.State, api session.API, in session.ActionInput) {
	if st.Item == nil {
		api.Log("Nothing to discount yet.")
		return
	}
	if in.Amount < 1 || in.Amount >= st.Item.Price {
		api.Fail(protocol.ErrBadRequest, "A discount has to leave a price standing.")
		return
	}
	st.Item.Discount = in.Amount
	api.Log("You paint a sign: $%d off for the next customer.", in.Amount)
}

func (Store) upgradeStall(st *session.State, api session.API) {
	if st.Stage != 0 || !api.IsUnlocked("stall") {
		api.Fail(protocol.ErrLocked, "The stall spot isn't yours to take.")
		return
	}
	cost := api.Tuning().StallCost
	if !api.ApplyCost(cost) {
		api.Fail(protocol.ErrNoResource, "You can't afford the stall yet.")
		api.Log("The stall costs $%d. Keep trading.", cost)
		return
	}
	st.Stage = 1
	api.Log("You trade the cart for a proper market stall. More shade, more customers, more rent.")
	api.SetNotice("Upgraded: Market stall.", session.SeverityInfo)
	api.Save()
}

func (Store) upgradeStorefront(st *session.State, api session.API) {
	if st.Stage != 1 || !api.IsUnlocked("storefront") {
		api.Fail(protocol.ErrLocked, "The storefront isn't within reach.")
		return
	}
	cost := api.Tuning().StorefrontCost
	if !api.ApplyCost(cost) {
		api.Fail(protocol.ErrNoResource, "You can't afford the storefront yet.")
		api.Log("The storefront rents at $%d up front. Not today.", cost)
		return
	}
	st.Stage = 2
	api.Log("You hang your name above a real storefront. The town notices.")
	api.SetNotice("Upgraded: Small storefront.", session.SeverityInfo)
	api.Save()
}

func (Store) upgradeHelper(st *session.State, api session.API) {
	if st.Helper {
		api.Log("Your helper is already sweeping the step.")
		return
	}
	if st.Stage < 1 {
		api.Fail(protocol.ErrLocked, "A cart has no room for a helper.")
		return
	}
	cost := api.Tuning().HelperCost
	if !api.ApplyCost(cost) {
		api.Fail(protocol.ErrNoResource, "You can't afford a helper's wages.")
		return
	}
	st.Helper = true
	api.Log("You hire a helper. Customers get greeted even when you're busy.")
	api.SetNotice("Helper hired: more customers per hour.", session.SeverityInfo)
}

func (Store) upgradeNewspaper(st *session.State, api session.API) {
	if st.RepGainBonus > 0 {
		api.Log("The Gazette already ran your story.")
		return
	}
	cost := api.Tuning().NewspaperCost
	if !api.ApplyCost(cost) {
		api.Fail(protocol.ErrNoResource, "The Gazette's rates are beyond you today.")
		return
	}
	st.RepGainBonus = 1
	api.Log("The Town Gazette runs a flattering piece about your shop.")
	api.SetNotice("Featured in the Gazette: goodwill comes easier now.", session.SeverityInfo)
}

func (Store) advertise(st *session.State, api session.API) {
	cost := api.Tuning().AdvertiseBase
	if !api.ApplyCost(cost) {
		api.Fail(protocol.ErrNoResource, "No budget for advertising this week.")
		return
	}
	api.ChangeDemand(0.05)
	if st.CompetitorPressure < 1.0 {
		st.CompetitorPressure += 0.05
		if st.CompetitorPressure > 1.0 {
			st.CompetitorPressure = 1.0
		}
	}
	api.ChangeReputation(1)
	api.Log("Your advert runs in the Gazette. A few new faces drift by.")
}

// migrate re-rolls the town: reputation halved toward zero, demand and
// rival pressure reset. Stage and unlocks travel with the wagon.
func (Store) migrate(st *session.State, api session.API) {
	cost := api.Tuning().MigrateCost
	if !api.ApplyCost(cost) {
		api.Fail(protocol.ErrNoResource, "You can't afford the move.")
		api.Log("Moving town costs $%d. You stay put.", cost)
		return
	}
	st.Reputation /= 2
	st.Demand = 1.0
	st.CompetitorPressure = 1.0
	st.DryStreak = 0
	st.PendingTalk = nil
	api.Log("You pack the wagon and move upriver. New town, clean slate, same debts.")
	api.SetNotice("Welcome to a new town. Nobody knows you yet.", session.SeverityInfo)
	api.Save()
}

// OnHour drifts demand slightly toward the crowd's opinion of you.
func (Store) OnHour(st *session.State, api session.API) {
	api.ChangeDemand(float64(st.Reputation) / 2500.0)
}

func (Store) OnNewDay(st *session.State, api session.API) {
	days := api.Tuning().SeasonLengthDays
	if days > 0 && st.DayCount%uint64(days) == 0 {
		api.Log("%s settles over the town.", session.SeasonNames[api.Season()%len(session.SeasonNames)])
	}
}

func (Store) Story(st *session.State) string {
	switch {
	case st.GameOver:
		return "The shutters are down. Every trader has a last day; this was yours."
	case st.Item == nil:
		return "A cart, a square, and a decision: what will you trade?"
	case st.Stage == 0:
		return "You hawk " + st.Item.Name + " from a cart in the square, watching the foot traffic."
	case st.Stage == 1:
		return "Your stall has regulars now. The storefront across the way is still for rent."
	default:
		return "Your name is painted above the door. The town counts on your shelves."
	}
}

func (Store) Ascii(st *session.State) (string, string) {
	switch st.Stage {
	case 0:
		return cartArt, "A trader's cart in the square."
	case 1:
		return stallArt, "A market stall with a canvas roof."
	default:
		return storeArt, "A small storefront with your name on it."
	}
}

const cartArt = `   __
  /  \__
 | o  o |
  \____/
   o  o`

const stallArt = `  _______
 /_______\
 |  | |  |
 |__|_|__|`

const storeArt = `  _________
 | GENERAL |
 |  STORE  |
 |  _   _  |
 |_|_|_|_|_|`

var _ interface {
	session.Role
	session.HourHook
	session.DayHook
	session.AsciiHook
} = Store{}
