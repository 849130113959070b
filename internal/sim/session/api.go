package session

import (
	"fmt"

	"towntrade.dev/internal/protocol"
	"towntrade.dev/internal/sim/catalogs"
	"towntrade.dev/internal/sim/tuning"
)

// API is the capability surface handed to every role call: randomness,
// state mutation helpers, logging, time control, and the persistence
// trigger. Roles never touch rendering or storage directly; this is the
// seam that keeps them decoupled from the outside world.
type API interface {
	Rand() float64
	Roll(p float64) bool
	RandRange(lo, hi float64) float64
	RandIntn(n int) int

	ChangeReputation(delta int)
	ChangeDemand(delta float64)
	ApplyCost(amount int) bool
	Unlock(key string)
	IsUnlocked(key string) bool

	Log(format string, args ...any)
	SetNotice(text, severity string)
	// Fail marks the current action as having done nothing: warn notice
	// for the player, protocol code for the client's ACK. Charged hours
	// are not refunded.
	Fail(code, text string)
	PassHours(n int)
	Save()

	Tuning() tuning.Tuning
	Items() catalogs.RoleCatalog

	// DemandShock is the day's demand modifier; stable within a day.
	DemandShock() float64
	// TrafficMultiplier folds shock, season and competitor pressure into
	// one arrival multiplier.
	TrafficMultiplier() float64
	Season() int

	TakeLoan() bool
	RepayDebt() bool
}

func (s *Session) Rand() float64 {
	v := s.rnd.Float64()
	s.st.RNGState = s.rnd.State
	return v
}

func (s *Session) Roll(p float64) bool {
	return s.Rand() < p
}

func (s *Session) RandRange(lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + s.Rand()*(hi-lo)
}

func (s *Session) RandIntn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(s.Rand() * float64(n))
}

func (s *Session) ChangeReputation(delta int) {
	st := s.st
	st.Reputation = clampInt(st.Reputation+delta, s.tune.RepMin, s.tune.RepMax)
}

func (s *Session) ChangeDemand(delta float64) {
	st := s.st
	st.Demand = clampFloat(st.Demand+delta, s.tune.DemandMin, s.tune.DemandMax)
}

// ApplyCost deducts amount when affordable and reports whether it did.
// It never drives money negative; daily overhead is the only flow that
// may do that.
func (s *Session) ApplyCost(amount int) bool {
	if amount < 0 {
		return false
	}
	if s.st.Money < amount {
		return false
	}
	s.st.Money -= amount
	return true
}

// Unlock flips a feature flag on. Flags are one-way; there is no relock.
func (s *Session) Unlock(key string) {
	s.st.Unlocked[key] = true
}

func (s *Session) IsUnlocked(key string) bool {
	return s.st.Unlocked[key]
}

// Log prepends a line to the bounded event log, newest first, stamped
// with in-game time so replays stay deterministic.
func (s *Session) Log(format string, args ...any) {
	st := s.st
	line := fmt.Sprintf("[d%d h%02d] ", st.DayCount+1, st.HourOfDay) + fmt.Sprintf(format, args...)
	st.LogLines = append([]string{line}, st.LogLines...)
	if limit := s.tune.LogCap; len(st.LogLines) > limit {
		st.LogLines = st.LogLines[:limit]
	}
}

func (s *Session) SetNotice(text, severity string) {
	s.st.Notice = Notice{Text: text, Severity: severity}
}

func (s *Session) Fail(code, text string) {
	s.SetNotice(text, SeverityWarn)
	s.failCode = code
}

func (s *Session) PassHours(n int) {
	s.passHours(n)
}

// Save queues a savepoint; fire and forget. Game logic never waits on
// storage, and a full sink just drops the point (the next one wins).
func (s *Session) Save() {
	s.requestSave()
}

func (s *Session) Tuning() tuning.Tuning { return s.tune }

func (s *Session) Items() catalogs.RoleCatalog { return s.items }

func (s *Session) DemandShock() float64 {
	st := s.st
	if !st.ShockSet || st.ShockDay != st.DayCount {
		st.ShockDay = st.DayCount
		st.ShockValue = s.RandRange(s.tune.ShockMin, s.tune.ShockMax)
		st.ShockSet = true
	}
	return st.ShockValue
}

func (s *Session) TrafficMultiplier() float64 {
	return s.DemandShock() * s.tune.SeasonMultiplier(s.Season()) * s.st.CompetitorPressure
}

func (s *Session) Season() int {
	return int(s.st.DayCount / uint64(s.tune.SeasonLengthDays) % 4)
}

func (s *Session) TakeLoan() bool {
	st := s.st
	if !st.Unlocked["bank"] {
		s.Fail(protocol.ErrLocked, "No bank will lend to you yet.")
		s.Log("No bank available yet.")
		return false
	}
	st.Money += s.tune.LoanAmount
	st.Debt += s.tune.LoanAmount
	s.Log("You took a bank loan: +$%d. Debt grows with interest.", s.tune.LoanAmount)
	s.SetNotice("Loan taken. Remember: debt gains interest daily.", SeverityWarn)
	return true
}

func (s *Session) RepayDebt() bool {
	st := s.st
	if st.Debt <= 0 {
		s.Fail(protocol.ErrNoResource, "No debt to repay.")
		s.Log("You have no debt.")
		return false
	}
	pay := s.tune.RepayChunk
	if pay > st.Debt {
		pay = st.Debt
	}
	if st.Money < pay {
		s.Fail(protocol.ErrNoResource, "Not enough money to repay debt.")
		s.Log("You don't have enough money to repay right now.")
		return false
	}
	st.Money -= pay
	st.Debt -= pay
	s.Log("You repaid $%d of your debt.", pay)
	s.SetNotice("Debt reduced.", SeverityInfo)
	return true
}

func clampInt(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

func clampFloat(n, lo, hi float64) float64 {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
