package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"towntrade.dev/internal/config"
	persistlog "towntrade.dev/internal/persistence/log"
	"towntrade.dev/internal/persistence/save"
	"towntrade.dev/internal/sim/catalogs"
	"towntrade.dev/internal/sim/rng"
	"towntrade.dev/internal/sim/roles"
	"towntrade.dev/internal/sim/session"
	"towntrade.dev/internal/sim/tuning"
	"towntrade.dev/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite save/audit index")
		idleAfter  = flag.Duration("session_idle", 30*time.Minute, "evict detached sessions idle this long")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	if cfg.Addr != "" {
		*addr = cfg.Addr
	}
	if cfg.DataDir != "" {
		*dataDir = cfg.DataDir
	}
	if cfg.ConfigDir != "" {
		*configDir = cfg.ConfigDir
	}

	roles.RegisterAll()

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("tuning not found (%s); using defaults", tp)
			tune = tuning.Defaults()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}

	_ = os.MkdirAll(filepath.Join(*dataDir, "saves"), 0o755)

	idx, err := openRuntimeIndex(*dataDir, *disableDB, logger)
	if err != nil {
		logger.Fatalf("open index: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalogs(cats, tune); err != nil {
			logger.Printf("index: upsert catalogs: %v", err)
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	// Save writer: one goroutine drains every session's savepoints.
	saveCh := make(chan save.SaveV1, 64)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case blob := <-saveCh:
				path := save.PathFor(*dataDir, blob.Header.SaveID, blob.Hours)
				if err := save.Write(path, blob); err != nil {
					logger.Printf("save write: %v", err)
					continue
				}
				if idx != nil {
					idx.RecordSave(path, blob)
				}
			}
		}
	}()

	hub := &sessionHub{
		ctx:     ctx,
		logger:  logger,
		tune:    tune,
		cats:    cats,
		dataDir: *dataDir,
		saveCh:  saveCh,
		idx:     idx,
	}
	defer hub.Close()

	wsSrv, err := ws.NewServer(hub, logger)
	if err != nil {
		logger.Fatalf("ws server: %v", err)
	}
	hub.onEvict = wsSrv.Forget
	go hub.reapLoop(ctx, *idleAfter)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		hub.writeMetrics(rw)
		if idx != nil {
			fmt.Fprintf(rw, "# HELP towntrade_index_queue_depth Pending index writes.\n")
			fmt.Fprintf(rw, "# TYPE towntrade_index_queue_depth gauge\n")
			fmt.Fprintf(rw, "towntrade_index_queue_depth %d\n", idx.QueueDepth())
		}
	})
	if cfg.AdminEnabled || !cfg.IsProd() {
		mux.HandleFunc("/admin/v1/sessions", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(hub.snapshot())
		})
	} else {
		logger.Printf("admin endpoints disabled")
	}
	mux.HandleFunc("/v1/ws", wsSrv.Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (env=%s)", *addr, cfg.Env)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

// sessionHub opens sessions for the websocket layer and tracks them for
// metrics and shutdown.
type sessionHub struct {
	ctx     context.Context
	logger  *log.Logger
	tune    tuning.Tuning
	cats    *catalogs.Catalogs
	dataDir string
	saveCh  chan save.SaveV1
	idx     auditIndex

	// Called with every resume token of an evicted session so the
	// transport stops honoring it.
	onEvict func(token string)

	mu       sync.Mutex
	sessions map[string]*session.Session
	journals map[string]*persistlog.AuditLogger
}

type auditIndex interface {
	session.AuditLogger
	QueueDepth() int
}

func (h *sessionHub) Open(playerName, roleKey string) (*session.Session, error) {
	saveID := sanitizeSaveID(playerName)
	saveDir := filepath.Join(h.dataDir, "saves", saveID)

	h.mu.Lock()
	if sess, ok := h.sessions[saveID]; ok {
		h.mu.Unlock()
		return sess, nil
	}
	h.mu.Unlock()

	var sess *session.Session
	var err error
	cfg := session.Config{
		ID:       saveID,
		RoleKey:  roleKey,
		SaveID:   saveID,
		Tuning:   h.tune,
		Catalogs: h.cats,
		Logger:   h.logger,
	}
	if latest := save.Latest(saveDir); latest != "" {
		blob, rerr := save.Read(latest, h.tune.HoursPerDay)
		if rerr != nil {
			return nil, fmt.Errorf("read save %s: %w", latest, rerr)
		}
		sess, err = session.Resume(cfg, blob)
		if err == nil {
			h.logger.Printf("resumed %s from %s (hours=%d)", saveID, filepath.Base(latest), blob.Hours)
		}
	} else {
		cfg.Seed = rng.SeedFromString(roleKey + "|" + saveID + "|" + time.Now().UTC().Format("2006-01-02"))
		sess, err = session.New(cfg)
	}
	if err != nil {
		return nil, err
	}

	journal := persistlog.NewAuditLogger(saveDir)
	sess.SetSaveSink(h.saveCh)
	sess.SetAuditLogger(multiAuditLogger{a: journal, b: h.idx})

	h.mu.Lock()
	if h.sessions == nil {
		h.sessions = map[string]*session.Session{}
		h.journals = map[string]*persistlog.AuditLogger{}
	}
	h.sessions[saveID] = sess
	h.journals[saveID] = journal
	h.mu.Unlock()

	go func() {
		if err := sess.Run(h.ctx); err != nil && err != context.Canceled {
			h.logger.Printf("session %s stopped: %v", saveID, err)
		}
	}()
	return sess, nil
}

func (h *sessionHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, j := range h.journals {
		_ = j.Close()
	}
}

func (h *sessionHub) reapLoop(ctx context.Context, idle time.Duration) {
	if idle <= 0 {
		return
	}
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.reapIdle(idle)
		}
	}
}

// reapIdle stops and drops every session that has no client attached
// and has been idle for at least the given duration. The save on disk
// is the durable copy; the next HELLO resumes from it.
func (h *sessionHub) reapIdle(idle time.Duration) {
	now := time.Now()

	h.mu.Lock()
	var evict []string
	for id, sess := range h.sessions {
		if !sess.Attached() && now.Sub(sess.LastSeen()) >= idle {
			evict = append(evict, id)
		}
	}
	h.mu.Unlock()

	for _, id := range evict {
		h.mu.Lock()
		sess := h.sessions[id]
		if sess == nil || sess.Attached() {
			// A client came back between the scan and now.
			h.mu.Unlock()
			continue
		}
		journal := h.journals[id]
		delete(h.sessions, id)
		delete(h.journals, id)
		h.mu.Unlock()
		sess.Stop()
		if h.onEvict != nil {
			h.onEvict(sess.ResumeToken())
		}
		if journal != nil {
			_ = journal.Close()
		}
		h.logger.Printf("evicted idle session %s", id)
	}
}

func (h *sessionHub) writeMetrics(rw http.ResponseWriter) {
	h.mu.Lock()
	defer h.mu.Unlock()

	fmt.Fprintf(rw, "# HELP towntrade_sessions Open game sessions.\n")
	fmt.Fprintf(rw, "# TYPE towntrade_sessions gauge\n")
	fmt.Fprintf(rw, "towntrade_sessions %d\n", len(h.sessions))

	fmt.Fprintf(rw, "# HELP towntrade_session_hours Simulated hours elapsed.\n")
	fmt.Fprintf(rw, "# TYPE towntrade_session_hours gauge\n")
	fmt.Fprintf(rw, "# HELP towntrade_session_money Current money.\n")
	fmt.Fprintf(rw, "# TYPE towntrade_session_money gauge\n")
	fmt.Fprintf(rw, "# HELP towntrade_session_game_over Whether the session has ended.\n")
	fmt.Fprintf(rw, "# TYPE towntrade_session_game_over gauge\n")
	for id, sess := range h.sessions {
		m := sess.Metrics()
		over := 0
		if m.GameOver {
			over = 1
		}
		fmt.Fprintf(rw, "towntrade_session_hours{save=%q} %d\n", id, m.Hours)
		fmt.Fprintf(rw, "towntrade_session_money{save=%q} %d\n", id, m.Money)
		fmt.Fprintf(rw, "towntrade_session_game_over{save=%q} %d\n", id, over)
	}
}

type sessionSummary struct {
	SaveID   string `json:"save_id"`
	Role     string `json:"role"`
	Hours    uint64 `json:"hours"`
	Money    int64  `json:"money"`
	GameOver bool   `json:"game_over"`
}

func (h *sessionHub) snapshot() []sessionSummary {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]sessionSummary, 0, len(h.sessions))
	for id, sess := range h.sessions {
		m := sess.Metrics()
		out = append(out, sessionSummary{
			SaveID:   id,
			Role:     sess.RoleKey(),
			Hours:    m.Hours,
			Money:    m.Money,
			GameOver: m.GameOver,
		})
	}
	return out
}

type multiAuditLogger struct {
	a session.AuditLogger
	b auditIndex
}

func (m multiAuditLogger) WriteAudit(entry session.AuditEntry) error {
	if m.a != nil {
		_ = m.a.WriteAudit(entry)
	}
	if m.b != nil {
		_ = m.b.WriteAudit(entry)
	}
	return nil
}

func sanitizeSaveID(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	if b.Len() == 0 {
		return "trader"
	}
	return b.String()
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
