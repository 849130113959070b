package session

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"towntrade.dev/internal/persistence/save"
)

// ExportSave snapshots the current state into a SaveV1. Everything is
// copied; the blob shares no memory with the live state, so the save
// writer can serialize it on another goroutine.
func (s *Session) ExportSave() save.SaveV1 {
	st := s.st
	out := save.SaveV1{
		Header: save.Header{
			Version: save.CurrentVersion,
			SaveID:  st.SaveID,
			Hours:   st.Hours,
		},
		RoleKey:    st.RoleKey,
		Money:      st.Money,
		Debt:       st.Debt,
		Reputation: st.Reputation,
		Stage:      st.Stage,
		Demand:     st.Demand,

		Seconds:   st.Seconds,
		Hours:     st.Hours,
		DayCount:  st.DayCount,
		HourOfDay: st.HourOfDay,

		RNGSeed:  st.RNGSeed,
		RNGState: st.RNGState,

		ShockDay:   st.ShockDay,
		ShockValue: st.ShockValue,
		ShockSet:   st.ShockSet,

		CompetitorPressure: st.CompetitorPressure,
		DryStreak:          st.DryStreak,
		Helper:             st.Helper,
		RepGainBonus:       st.RepGainBonus,

		Served:     st.Served,
		GoodServed: st.GoodServed,
		BadServed:  st.BadServed,

		OverdueDays: st.OverdueDays,

		Notice: save.NoticeV1{Text: st.Notice.Text, Severity: st.Notice.Severity},

		GameOver:       st.GameOver,
		GameOverReason: st.GameOverReason,
	}

	out.Unlocked = make(map[string]bool, len(st.Unlocked))
	for k, v := range st.Unlocked {
		out.Unlocked[k] = v
	}

	if st.Item != nil {
		out.Item = &save.ItemV1{
			ID:       st.Item.ID,
			Name:     st.Item.Name,
			UnitCost: st.Item.UnitCost,
			Price:    st.Item.Price,
			Stock:    st.Item.Stock,
			Discount: st.Item.Discount,
		}
	}
	for _, sh := range st.Shipments {
		out.Shipments = append(out.Shipments, save.ShipmentV1{Qty: sh.Qty, ArrivesHours: sh.ArrivesHours})
	}

	out.LogLines = append([]string{}, st.LogLines...)

	if st.PendingTalk != nil {
		out.Talk = &save.TalkV1{
			Prompt:    st.PendingTalk.Prompt,
			Options:   append([]string{}, st.PendingTalk.Options...),
			RepDeltas: append([]int{}, st.PendingTalk.RepDeltas...),
		}
	}
	return out
}

// importState is ExportSave's inverse; the blob is assumed migrated.
func importState(b save.SaveV1) *State {
	st := &State{
		RoleKey:    b.RoleKey,
		SaveID:     b.Header.SaveID,
		Money:      b.Money,
		Debt:       b.Debt,
		Reputation: b.Reputation,
		Stage:      b.Stage,
		Demand:     b.Demand,

		Seconds:   b.Seconds,
		Hours:     b.Hours,
		DayCount:  b.DayCount,
		HourOfDay: b.HourOfDay,

		RNGSeed:  b.RNGSeed,
		RNGState: b.RNGState,

		ShockDay:   b.ShockDay,
		ShockValue: b.ShockValue,
		ShockSet:   b.ShockSet,

		CompetitorPressure: b.CompetitorPressure,
		DryStreak:          b.DryStreak,
		Helper:             b.Helper,
		RepGainBonus:       b.RepGainBonus,

		Served:     b.Served,
		GoodServed: b.GoodServed,
		BadServed:  b.BadServed,

		OverdueDays: b.OverdueDays,

		Notice: Notice{Text: b.Notice.Text, Severity: b.Notice.Severity},

		GameOver:       b.GameOver,
		GameOverReason: b.GameOverReason,
	}

	st.Unlocked = make(map[string]bool, len(b.Unlocked))
	for k, v := range b.Unlocked {
		st.Unlocked[k] = v
	}

	if b.Item != nil {
		st.Item = &Item{
			ID:       b.Item.ID,
			Name:     b.Item.Name,
			UnitCost: b.Item.UnitCost,
			Price:    b.Item.Price,
			Stock:    b.Item.Stock,
			Discount: b.Item.Discount,
		}
	}
	for _, sh := range b.Shipments {
		st.Shipments = append(st.Shipments, Shipment{Qty: sh.Qty, ArrivesHours: sh.ArrivesHours})
	}

	st.LogLines = append([]string{}, b.LogLines...)

	if b.Talk != nil {
		st.PendingTalk = &TalkEvent{
			Prompt:    b.Talk.Prompt,
			Options:   append([]string{}, b.Talk.Options...),
			RepDeltas: append([]int{}, b.Talk.RepDeltas...),
		}
	}
	return st
}

// Digest is a stable fingerprint of the full game state, used by the
// determinism tests and the replay verifier. JSON map keys marshal
// sorted, so equal states digest equal.
func (s *Session) Digest() string {
	b, err := json.Marshal(s.ExportSave())
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
