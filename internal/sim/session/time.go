package session

// passHours advances simulated time hour by hour, keeping
// hourOfDay == hours mod HoursPerDay and dayCount == hours / HoursPerDay
// after every step. Each elapsed hour lands shipments and runs the
// role's hourly hook; each day boundary runs the engine daily systems
// and then the role's daily hook. Hooks are recovered, never propagated:
// a buggy role must not corrupt the time loop.
func (s *Session) passHours(n int) {
	if n <= 0 {
		return
	}
	st := s.st

	// A pending conversation does not survive time passing.
	if st.PendingTalk != nil {
		st.PendingTalk = nil
		s.Log("The chatty customer drifts off before you find a moment.")
	}

	hpd := uint64(s.tune.HoursPerDay)
	for i := 0; i < n; i++ {
		st.Hours++
		st.HourOfDay = int(st.Hours % hpd)
		prevDay := st.DayCount
		st.DayCount = st.Hours / hpd

		s.arriveShipments()
		if h, ok := s.role.(HourHook); ok {
			s.safeHook("onHour", func() { h.OnHour(st, s) })
		}

		if st.DayCount != prevDay {
			s.applyDaily()
			if d, ok := s.role.(DayHook); ok {
				s.safeHook("onNewDay", func() { d.OnNewDay(st, s) })
			}
		}
	}
}

func (s *Session) arriveShipments() {
	st := s.st
	if len(st.Shipments) == 0 {
		return
	}
	rest := st.Shipments[:0]
	for _, sh := range st.Shipments {
		if sh.ArrivesHours <= st.Hours && st.Item != nil {
			st.Item.Stock += sh.Qty
			s.Log("A shipment of %d %s arrives.", sh.Qty, st.Item.Name)
			s.SetNotice("Shipment arrived: shelves restocked.", SeverityInfo)
			continue
		}
		rest = append(rest, sh)
	}
	st.Shipments = rest
}

func (s *Session) safeHook(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			if s.logger != nil {
				s.logger.Printf("session %s: role hook %s panicked: %v", s.ID, name, r)
			}
			s.Log("Something odd happens, but the town moves on.")
		}
	}()
	fn()
}
