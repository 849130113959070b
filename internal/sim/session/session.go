package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"towntrade.dev/internal/persistence/save"
	"towntrade.dev/internal/protocol"
	"towntrade.dev/internal/sim/catalogs"
	"towntrade.dev/internal/sim/rng"
	"towntrade.dev/internal/sim/tuning"
)

// Session owns one playthrough: one GameState, the active role, and the
// deterministic random stream. All mutation happens on the session
// goroutine; the transport only exchanges messages through channels.
type Session struct {
	ID          string
	resumeToken string

	logger *log.Logger
	tune   tuning.Tuning
	cats   *catalogs.Catalogs
	items  catalogs.RoleCatalog
	role   Role
	st     *State
	rnd    *rng.Source

	inbox  chan ActionEnvelope
	attach chan AttachRequest
	detach chan struct{}
	stop   chan struct{}

	out chan []byte

	saveSink chan<- save.SaveV1
	audit    AuditLogger
	auditSeq uint64

	// Failure code reported by the current handler via Fail; cleared by
	// Dispatch before every handler run.
	failCode string

	hoursGauge atomic.Uint64
	moneyGauge atomic.Int64
	overGauge  atomic.Bool

	attached atomic.Bool
	lastSeen atomic.Int64
}

type Config struct {
	ID       string
	RoleKey  string
	SaveID   string
	Seed     uint32
	Tuning   tuning.Tuning
	Catalogs *catalogs.Catalogs
	Logger   *log.Logger
}

// ActionEnvelope is one player action queued for the session goroutine.
type ActionEnvelope struct {
	MsgID  string
	Action string
	Input  ActionInput
}

// AttachRequest connects (or reconnects) the single client channel.
type AttachRequest struct {
	Out  chan []byte
	Resp chan AttachResponse
}

type AttachResponse struct {
	Welcome protocol.WelcomeMsg
	Catalog protocol.CatalogMsg
}

// AuditEntry records one dispatched action for the journal and index.
// Seed is the stream the playthrough ran on after the action; a restart
// entry therefore carries the seed it switched to, which is what makes
// the journal sufficient to replay a restarted game.
type AuditEntry struct {
	SaveID   string      `json:"save_id"`
	Seq      uint64      `json:"seq"`
	Hours    uint64      `json:"hours"`
	Action   string      `json:"action"`
	Input    ActionInput `json:"params"`
	Seed     uint32      `json:"seed,omitempty"`
	Accepted bool        `json:"accepted"`
	Code     string      `json:"code,omitempty"`
	MsgID    string      `json:"msg_id,omitempty"`
}

type AuditLogger interface {
	WriteAudit(AuditEntry) error
}

// New creates a fresh playthrough: engine defaults, the role's Init and
// Start hooks, seed derived by the caller.
func New(cfg Config) (*Session, error) {
	s, err := build(cfg)
	if err != nil {
		return nil, err
	}
	s.st = NewState(cfg.RoleKey, cfg.SaveID, cfg.Seed)
	s.rnd = rng.Resume(s.st.RNGSeed, s.st.RNGState)
	s.role.Init(s.st)
	s.role.Start(s.st, s)
	s.checkUnlocks()
	s.updateGauges()
	return s, nil
}

// Resume rebuilds a session from a migrated save blob. The role's Start
// hook is not re-run; the save already carries the started world.
func Resume(cfg Config, blob save.SaveV1) (*Session, error) {
	if blob.RoleKey != "" {
		cfg.RoleKey = blob.RoleKey
	}
	s, err := build(cfg)
	if err != nil {
		return nil, err
	}
	s.st = importState(blob)
	s.st.SaveID = cfg.SaveID
	s.rnd = rng.Resume(s.st.RNGSeed, s.st.RNGState)
	s.Log("Loaded save.")
	s.updateGauges()
	return s, nil
}

func build(cfg Config) (*Session, error) {
	role, ok := LookupRole(cfg.RoleKey)
	if !ok {
		return nil, fmt.Errorf("unknown role %q", cfg.RoleKey)
	}
	items, ok := cfg.Catalogs.Role(cfg.RoleKey)
	if !ok {
		return nil, fmt.Errorf("no item catalog for role %q", cfg.RoleKey)
	}
	if cfg.ID == "" {
		cfg.ID = cfg.SaveID
	}
	s := &Session{
		ID:          cfg.ID,
		resumeToken: fmt.Sprintf("resume_%s_%d", cfg.ID, time.Now().UnixNano()),
		logger:      cfg.Logger,
		tune:        cfg.Tuning,
		cats:        cfg.Catalogs,
		items:       items,
		role:        role,
		inbox:       make(chan ActionEnvelope, 64),
		attach:      make(chan AttachRequest, 4),
		detach:      make(chan struct{}, 4),
		stop:        make(chan struct{}),
	}
	s.lastSeen.Store(time.Now().Unix())
	return s, nil
}

func (s *Session) SetSaveSink(ch chan<- save.SaveV1) { s.saveSink = ch }
func (s *Session) SetAuditLogger(l AuditLogger)      { s.audit = l }

func (s *Session) Inbox() chan<- ActionEnvelope { return s.inbox }
func (s *Session) Attach() chan<- AttachRequest { return s.attach }
func (s *Session) Detach() chan<- struct{}      { return s.detach }
func (s *Session) ResumeToken() string          { return s.resumeToken }
func (s *Session) RoleKey() string              { return s.role.Key() }

// Attached reports whether a client channel is currently connected.
// Safe from any goroutine.
func (s *Session) Attached() bool { return s.attached.Load() }

// LastSeen is the wall-clock time of the last attach, detach or action.
// Safe from any goroutine; the idle reaper reads it.
func (s *Session) LastSeen() time.Time { return time.Unix(s.lastSeen.Load(), 0) }

// Run is the session's only mutator loop: one real second per tick,
// actions handled in arrival order, run-to-completion.
func (s *Session) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	s.pushState()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stop:
			return nil
		case req := <-s.attach:
			s.handleAttach(req)
		case <-s.detach:
			s.handleDetach()
		case env := <-s.inbox:
			s.handleAct(env)
		case <-ticker.C:
			s.tickSecond()
		}
	}
}

func (s *Session) Stop() { close(s.stop) }

func (s *Session) handleDetach() {
	s.out = nil
	s.attached.Store(false)
	s.lastSeen.Store(time.Now().Unix())
}

func (s *Session) handleAttach(req AttachRequest) {
	s.out = req.Out
	s.attached.Store(true)
	s.lastSeen.Store(time.Now().Unix())
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       s.ID,
		ResumeToken:     s.resumeToken,
		Params: protocol.SessionParams{
			Role:        s.role.Key(),
			SaveID:      s.st.SaveID,
			HoursPerDay: s.tune.HoursPerDay,
			Seed:        s.st.RNGSeed,
			Resumed:     s.st.Seconds > 0,
		},
		CatalogDigest: s.cats.Digest,
	}
	catalog := protocol.CatalogMsg{
		Type:            protocol.TypeCatalog,
		ProtocolVersion: protocol.Version,
		Name:            "items/" + s.role.Key(),
		Digest:          s.cats.Digest,
		Data:            s.items.Items,
	}
	if req.Resp != nil {
		req.Resp <- AttachResponse{Welcome: welcome, Catalog: catalog}
	}
	s.pushState()
}

func (s *Session) handleAct(env ActionEnvelope) {
	res := s.Dispatch(env.Action, env.Input)

	s.auditSeq++
	if s.audit != nil {
		_ = s.audit.WriteAudit(AuditEntry{
			SaveID:   s.st.SaveID,
			Seq:      s.auditSeq,
			Hours:    s.st.Hours,
			Action:   env.Action,
			Input:    env.Input,
			Seed:     s.st.RNGSeed,
			Accepted: res.Accepted,
			Code:     res.Code,
			MsgID:    env.MsgID,
		})
	}
	s.lastSeen.Store(time.Now().Unix())

	s.requestSave()
	s.pushAck(env.MsgID, res)
	s.pushState()
	s.updateGauges()
}

func (s *Session) tickSecond() {
	st := s.st
	st.Seconds++

	if t, ok := s.role.(TickHook); ok {
		s.safeHook("tick", func() { t.Tick(st, s) })
	}
	s.checkUnlocks()

	if n := s.tune.AutosaveSeconds; n > 0 && st.Seconds%uint64(n) == 0 {
		s.requestSave()
	}
	s.pushState()
	s.updateGauges()
}

// restart clears the playthrough and begins a fresh one on a new seed.
// The derivation mixes wall-clock ticks, so the seed itself is recorded
// in the restart's audit entry; verifiers adopt it rather than re-derive.
func (s *Session) restart() {
	seed := rng.SeedFromString(fmt.Sprintf("%s|%s|restart|%d|%d", s.st.RoleKey, s.st.SaveID, s.st.Seconds, s.auditSeq))
	s.st = NewState(s.role.Key(), s.st.SaveID, seed)
	s.rnd = rng.Resume(s.st.RNGSeed, s.st.RNGState)
	s.role.Init(s.st)
	s.role.Start(s.st, s)
	s.checkUnlocks()
	s.requestSave()
}

func (s *Session) requestSave() {
	if s.saveSink == nil {
		return
	}
	select {
	case s.saveSink <- s.ExportSave():
	default:
		// Writer is behind; the next savepoint supersedes this one.
	}
}

func (s *Session) pushAck(msgID string, res DispatchResult) {
	if s.out == nil {
		return
	}
	b, err := json.Marshal(protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          msgID,
		Accepted:        res.Accepted,
		Code:            res.Code,
		Message:         res.Message,
		Hours:           s.st.Hours,
	})
	if err != nil {
		return
	}
	s.send(b)
}

func (s *Session) pushState() {
	if s.out == nil {
		return
	}
	b, err := json.Marshal(protocol.StateMsg{
		Type:            protocol.TypeState,
		ProtocolVersion: protocol.Version,
		View:            s.BuildView(),
	})
	if err != nil {
		return
	}
	s.send(b)
}

func (s *Session) send(b []byte) {
	select {
	case s.out <- b:
	default:
		// Slow client; drop the frame rather than stall the sim.
	}
}

func (s *Session) updateGauges() {
	s.hoursGauge.Store(s.st.Hours)
	s.moneyGauge.Store(int64(s.st.Money))
	s.overGauge.Store(s.st.GameOver)
}

// Metrics is safe to read from any goroutine.
type Metrics struct {
	Hours    uint64
	Money    int64
	GameOver bool
}

func (s *Session) Metrics() Metrics {
	return Metrics{
		Hours:    s.hoursGauge.Load(),
		Money:    s.moneyGauge.Load(),
		GameOver: s.overGauge.Load(),
	}
}
