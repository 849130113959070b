package session

import "towntrade.dev/internal/protocol"

// BuildView projects the state into the wire view. Pure read; the
// client renders from this and nothing else.
func (s *Session) BuildView() protocol.View {
	st := s.st
	season := s.Season()

	v := protocol.View{
		Role:      st.RoleKey,
		Money:     st.Money,
		Debt:      st.Debt,
		Rep:       st.Reputation,
		Stage:     st.Stage,
		StageName: st.StageName(),

		Demand:     st.Demand,
		Shock:      st.ShockValue,
		Season:     season,
		SeasonName: SeasonNames[season%len(SeasonNames)],

		Seconds:   st.Seconds,
		Hours:     st.Hours,
		DayCount:  st.DayCount,
		HourOfDay: st.HourOfDay,

		Served:     st.Served,
		GoodServed: st.GoodServed,
		BadServed:  st.BadServed,

		CompetitorOpen:     st.Unlocked["rival"],
		CompetitorPressure: st.CompetitorPressure,

		LogLines: st.LogLines,
		Story:    s.role.Story(st),
		GameOver: st.GameOver,
	}

	v.Unlocked = make(map[string]bool, len(st.Unlocked))
	for k, ok := range st.Unlocked {
		v.Unlocked[k] = ok
	}

	if st.Item != nil {
		v.Item = &protocol.ItemView{
			ID:       st.Item.ID,
			Name:     st.Item.Name,
			UnitCost: st.Item.UnitCost,
			Price:    st.Item.Price,
			Stock:    st.Item.Stock,
			Discount: st.Item.Discount,
		}
	}
	for _, sh := range st.Shipments {
		v.Shipments = append(v.Shipments, protocol.ShipmentView{Qty: sh.Qty, ArrivesHours: sh.ArrivesHours})
	}

	if st.Notice.Text != "" {
		v.Notice = &protocol.NoticeView{Text: st.Notice.Text, Severity: st.Notice.Severity}
	}
	if st.PendingTalk != nil {
		v.PendingTalk = &protocol.TalkView{
			Prompt:  st.PendingTalk.Prompt,
			Options: append([]string{}, st.PendingTalk.Options...),
		}
	}

	for _, spec := range s.role.Actions(st) {
		v.Actions = append(v.Actions, protocol.ActionView{
			ID:      spec.ID,
			Label:   spec.Label,
			Hours:   spec.Hours,
			Enabled: spec.Enabled,
			Tooltip: spec.Tooltip,
		})
	}
	v.Actions = append(v.Actions,
		protocol.ActionView{ID: "wait", Label: "Wait an hour", Hours: 1, Enabled: !st.GameOver},
		protocol.ActionView{ID: "restart", Label: "Start over", Hours: 0, Enabled: true},
	)

	if a, ok := s.role.(AsciiHook); ok {
		art, caption := a.Ascii(st)
		if art != "" {
			v.Ascii = &protocol.AsciiView{Art: art, Caption: caption}
		}
	}
	return v
}
