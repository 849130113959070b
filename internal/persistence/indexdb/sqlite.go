// Package indexdb maintains a sqlite read model over saves and action
// audits. It is strictly secondary: the save blobs and the audit
// journal are the source of truth, and a dropped index write never
// affects the simulation.
package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"towntrade.dev/internal/persistence/save"
	"towntrade.dev/internal/sim/catalogs"
	"towntrade.dev/internal/sim/session"
	"towntrade.dev/internal/sim/tuning"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type reqKind int

const (
	reqSave reqKind = iota + 1
	reqAudit
	reqSync
)

type req struct {
	kind  reqKind
	save  SaveRow
	audit session.AuditEntry
	done  chan struct{}
}

// SaveRow is the queryable summary of one written save blob.
type SaveRow struct {
	SaveID     string
	Hours      uint64
	Day        uint64
	Money      int
	Reputation int
	Stage      int
	Path       string
	CreatedAt  string
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// Large buffer: audit writes are per-action and bursty.
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads; NORMAL durability
	// is enough for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS saves (
			save_id TEXT NOT NULL,
			hours INTEGER NOT NULL,
			day INTEGER NOT NULL,
			money INTEGER NOT NULL,
			reputation INTEGER NOT NULL,
			stage INTEGER NOT NULL,
			path TEXT NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (save_id, hours)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_saves_day ON saves(save_id, day);`,
		`CREATE TABLE IF NOT EXISTS audits (
			save_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			hours INTEGER NOT NULL,
			action TEXT NOT NULL,
			accepted INTEGER NOT NULL,
			code TEXT,
			msg_id TEXT,
			PRIMARY KEY (save_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_hours ON audits(save_id, hours);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// RecordSave indexes one written save blob. Non-blocking; drops when
// the indexer is behind.
func (s *SQLiteIndex) RecordSave(path string, blob save.SaveV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := SaveRow{
		SaveID:     blob.Header.SaveID,
		Hours:      blob.Hours,
		Day:        blob.DayCount,
		Money:      blob.Money,
		Reputation: blob.Reputation,
		Stage:      blob.Stage,
		Path:       path,
		CreatedAt:  time.Now().UTC().Format(time.RFC3339Nano),
	}
	select {
	case s.ch <- req{kind: reqSave, save: r}:
	default:
	}
}

// WriteAudit implements session.AuditLogger.
func (s *SQLiteIndex) WriteAudit(entry session.AuditEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqAudit, audit: entry}:
	default:
		// Drop if the indexer falls behind; the JSONL journal remains
		// the source of truth.
	}
	return nil
}

// UpsertCatalogs records the item catalog and applied tuning so tools
// can tell which content a save was played against.
func (s *SQLiteIndex) UpsertCatalogs(cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if cats != nil {
		if b, _ := json.Marshal(cats.Roles); len(b) > 0 {
			rows = append(rows, kv{name: "items", digest: cats.Digest, json: b})
		}
	}
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	insertSave, _ := s.db.Prepare(`INSERT OR REPLACE INTO saves(save_id,hours,day,money,reputation,stage,path,created_at) VALUES(?,?,?,?,?,?,?,?)`)
	insertAudit, _ := s.db.Prepare(`INSERT OR REPLACE INTO audits(save_id,seq,hours,action,accepted,code,msg_id) VALUES(?,?,?,?,?,?,?)`)
	defer func() {
		if insertSave != nil {
			_ = insertSave.Close()
		}
		if insertAudit != nil {
			_ = insertAudit.Close()
		}
	}()

	for r := range s.ch {
		switch r.kind {
		case reqSave:
			if insertSave == nil {
				continue
			}
			_, _ = insertSave.Exec(r.save.SaveID, r.save.Hours, r.save.Day,
				r.save.Money, r.save.Reputation, r.save.Stage, r.save.Path, r.save.CreatedAt)
		case reqAudit:
			if insertAudit == nil {
				continue
			}
			accepted := 0
			if r.audit.Accepted {
				accepted = 1
			}
			_, _ = insertAudit.Exec(r.audit.SaveID, r.audit.Seq, r.audit.Hours,
				r.audit.Action, accepted, r.audit.Code, r.audit.MsgID)
		case reqSync:
			close(r.done)
		}
	}
}

// Flush blocks until every write queued before the call has been
// applied. Test and shutdown helper; the hot path never calls it.
func (s *SQLiteIndex) Flush() {
	if s == nil || s.closed.Load() {
		return
	}
	done := make(chan struct{})
	s.ch <- req{kind: reqSync, done: done}
	<-done
}

// QueueDepth reports the pending write backlog, for metrics.
func (s *SQLiteIndex) QueueDepth() int {
	if s == nil {
		return 0
	}
	return len(s.ch)
}

// Saves lists the indexed save rows for one save id, newest first.
func (s *SQLiteIndex) Saves(saveID string) ([]SaveRow, error) {
	rows, err := s.db.Query(
		`SELECT save_id,hours,day,money,reputation,stage,path,created_at
		 FROM saves WHERE save_id=? ORDER BY hours DESC`, saveID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SaveRow
	for rows.Next() {
		var r SaveRow
		if err := rows.Scan(&r.SaveID, &r.Hours, &r.Day, &r.Money, &r.Reputation,
			&r.Stage, &r.Path, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Audits returns the recorded action entries for one save id in
// sequence order, for replay tooling.
func (s *SQLiteIndex) Audits(saveID string) ([]session.AuditEntry, error) {
	rows, err := s.db.Query(
		`SELECT save_id,seq,hours,action,accepted,code,msg_id
		 FROM audits WHERE save_id=? ORDER BY seq ASC`, saveID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []session.AuditEntry
	for rows.Next() {
		var e session.AuditEntry
		var accepted int
		var code, msgID sql.NullString
		if err := rows.Scan(&e.SaveID, &e.Seq, &e.Hours, &e.Action, &accepted, &code, &msgID); err != nil {
			return nil, err
		}
		e.Accepted = accepted != 0
		e.Code = code.String
		e.MsgID = msgID.String
		out = append(out, e)
	}
	return out, rows.Err()
}
