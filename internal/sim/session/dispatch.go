package session

import (
	"github.com/agnivade/levenshtein"

	"towntrade.dev/internal/protocol"
)

type DispatchResult struct {
	Accepted bool
	Code     string
	Message  string
}

// Dispatch routes one player action. The hour cost is charged before the
// handler runs, so a failed attempt still spends the player's time;
// there is no rollback. Handler panics are recovered and surfaced as a
// generic failure notice.
func (s *Session) Dispatch(action string, in ActionInput) DispatchResult {
	st := s.st

	if st.GameOver && action != "restart" {
		s.SetNotice("The business is finished. Only a restart remains.", SeverityWarn)
		return DispatchResult{Code: protocol.ErrGameOver, Message: st.GameOverReason}
	}

	switch action {
	case "wait":
		s.passHours(1)
		s.Log("You wait. The hour drags by.")
		s.checkUnlocks()
		return DispatchResult{Accepted: true}
	case "restart":
		s.restart()
		return DispatchResult{Accepted: true}
	}

	specs := s.role.Actions(st)
	var spec *ActionSpec
	for i := range specs {
		if specs[i].ID == action {
			spec = &specs[i]
			break
		}
	}
	if spec == nil {
		msg := "Nothing here answers to that."
		if sugg := suggestAction(action, specs); sugg != "" {
			msg = "Nothing here answers to that. Perhaps you meant '" + sugg + "'."
		}
		s.Log("%s", msg)
		return DispatchResult{Code: protocol.ErrUnknownAction, Message: msg}
	}

	s.passHours(spec.Hours)

	s.failCode = ""
	res := DispatchResult{Accepted: true}
	func() {
		defer func() {
			if r := recover(); r != nil {
				if s.logger != nil {
					s.logger.Printf("session %s: action %s panicked: %v", s.ID, action, r)
				}
				s.Log("Something went wrong. The hour is lost.")
				s.SetNotice("Something went wrong.", SeverityWarn)
				res = DispatchResult{Code: protocol.ErrInternal}
			}
		}()
		if !s.role.Handle(spec.ID, st, s, in) {
			s.Log("Nothing comes of it.")
		}
	}()
	// The hours stay charged either way; the code tells the client the
	// action itself did nothing.
	if res.Accepted && s.failCode != "" {
		res = DispatchResult{Code: s.failCode, Message: st.Notice.Text}
	}

	s.checkUnlocks()
	return res
}

// suggestAction finds a close action id for a typo'd request, close
// meaning an edit distance of two or less.
func suggestAction(action string, specs []ActionSpec) string {
	best := ""
	bestDist := 3
	try := func(id string) {
		if d := levenshtein.ComputeDistance(action, id); d < bestDist {
			best, bestDist = id, d
		}
	}
	for _, sp := range specs {
		try(sp.ID)
	}
	try("wait")
	try("restart")
	return best
}

// checkUnlocks reveals town features once their thresholds are crossed.
// Flags are monotonic; a crossed threshold never re-locks.
func (s *Session) checkUnlocks() {
	st := s.st
	u := s.tune.Unlocks

	if !st.Unlocked["stall"] && (st.Money >= u.StallMoney || st.Served >= u.StallServed) {
		s.Unlock("stall")
		s.Log("You notice a better spot in town. Maybe you can upgrade into a stall.")
		s.SetNotice("NEW UPGRADE AVAILABLE: Cart -> Stall", SeverityInfo)
	}
	if !st.Unlocked["storefront"] && (st.Money >= u.StorefrontMoney || st.Reputation >= u.StorefrontRep) {
		s.Unlock("storefront")
		s.Log("A small storefront is up for rent. That would change everything.")
		s.SetNotice("NEW UPGRADE AVAILABLE: Stall -> Storefront", SeverityInfo)
	}
	if !st.Unlocked["newspaper"] && (st.Reputation >= u.NewspaperRep || st.GoodServed >= u.NewspaperGood) {
		s.Unlock("newspaper")
		s.Log("The Town Gazette offers to feature you, for a price.")
		s.SetNotice("NEW OPTION: support the Town Gazette (advertising).", SeverityInfo)
	}
	if !st.Unlocked["bank"] && (st.Money >= u.BankMoney || st.Stage >= u.BankStage) {
		s.Unlock("bank")
		s.Log("The bank clerk offers you a loan. Be careful.")
		s.SetNotice("NEW RISK: bank loans unlocked. Debt gains interest.", SeverityWarn)
	}
	if !st.Unlocked["migrate"] && (st.Reputation <= u.MigrateRep || (st.Unlocked["rival"] && st.CompetitorPressure <= 0.8)) {
		s.Unlock("migrate")
		s.Log("A wagon driver mentions a town upriver that could use a trader.")
		s.SetNotice("NEW OPTION: migrate to another town.", SeverityInfo)
	}
}
