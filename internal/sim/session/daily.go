package session

// applyDaily runs the engine-level day-boundary systems in fixed order:
// overhead, debt interest, reputation decay, demand shock, competitor
// drift, then the ruin check. Overhead is the one flow allowed to drive
// money negative.
func (s *Session) applyDaily() {
	st := s.st
	t := s.tune

	overhead := t.Overhead(st.Stage)
	st.Money -= overhead
	s.Log("Day %d. Overhead: -$%d.", st.DayCount+1, overhead)
	if st.Money < 0 {
		st.OverdueDays++
		s.Log("You cannot cover today's costs (%d day(s) behind).", st.OverdueDays)
		s.SetNotice("You are behind on rent. The landlord is counting.", SeverityWarn)
	} else {
		st.OverdueDays = 0
	}

	if st.Debt > 0 {
		interest := int(float64(st.Debt) * t.InterestRate)
		if interest < 1 {
			interest = 1
		}
		st.Debt += interest
		s.Log("Bank interest adds $%d to your debt.", interest)
		if st.Debt >= t.DebtDanger {
			s.SetNotice("WARNING: your debt is getting dangerous.", SeverityWarn)
		}
	}

	if st.Reputation > 0 {
		st.Reputation = clampInt(st.Reputation-t.RepDecayPerDay, 0, t.RepMax)
	} else if st.Reputation < 0 {
		st.Reputation = clampInt(st.Reputation+t.RepDecayPerDay, t.RepMin, 0)
	}

	st.ShockDay = st.DayCount
	st.ShockValue = s.RandRange(t.ShockMin, t.ShockMax)
	st.ShockSet = true

	s.tickCompetitor()
	s.checkRuin()
}

func (s *Session) tickCompetitor() {
	st := s.st
	if st.DayCount < uint64(s.tune.CompetitorArrivesDay) {
		return
	}
	if !st.Unlocked["rival"] {
		s.Unlock("rival")
		s.Log("A rival trader sets up across the square.")
		s.SetNotice("Competition has arrived. Expect fewer customers.", SeverityWarn)
	}
	drift := -0.03
	if s.Roll(0.5) {
		drift = 0.02
	}
	st.CompetitorPressure = clampFloat(st.CompetitorPressure+drift, 0.75, 1.0)
}

// checkRuin flips the terminal flag. Once set, every mutating action is
// a no-op except restart.
func (s *Session) checkRuin() {
	st := s.st
	if st.GameOver {
		return
	}
	t := s.tune
	switch {
	case st.OverdueDays >= t.MaxOverdueDays:
		s.endGame("You missed the rent once too often. The town moves on without you.")
	case st.Debt >= t.DebtRuin:
		s.endGame("The bank calls in your debt. There is nothing left to seize but pride.")
	case st.Money <= 0 && st.Item != nil && st.Item.Stock == 0 && len(st.Shipments) == 0:
		s.endGame("No cash, no stock, nothing inbound. The shutters come down.")
	}
}

func (s *Session) endGame(reason string) {
	st := s.st
	st.GameOver = true
	st.GameOverReason = reason
	s.Log("GAME OVER: %s", reason)
	s.SetNotice(reason, SeverityWarn)
}
