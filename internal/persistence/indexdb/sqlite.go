// Package indexdb maintains a secondary sqlite index of war lifecycle
// events and achievement point awards. It is purely observational: the JSON
// saves remain the source of truth and the index may lag or drop rows under
// pressure without affecting the simulation.
package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/NataleeRene/shinobi-alliance-smp-mod/internal/sim/war"
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
	reqWarAudit reqKind = iota + 1
	reqPoints
)

type req struct {
	kind reqKind

	audit  war.AuditEntry
	points PointsRow
}

// PointsRow is one achievement award in the points ledger.
type PointsRow struct {
	AtMs        int64
	Player      string
	Achievement string
	Points      int
	Total       int
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
		ch: make(chan req, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
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
		`CREATE TABLE IF NOT EXISTS war_audit (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			at_ms INTEGER NOT NULL,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			counterpart TEXT,
			detail TEXT,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_war_audit_actor ON war_audit(actor, at_ms);`,
		`CREATE TABLE IF NOT EXISTS points_ledger (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			at_ms INTEGER NOT NULL,
			player TEXT NOT NULL,
			achievement TEXT NOT NULL,
			points INTEGER NOT NULL,
			total INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_points_player ON points_ledger(player, at_ms);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
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

// WriteWarAudit implements war.AuditLogger. Never blocks the store: rows are
// dropped if the indexer falls behind.
func (s *SQLiteIndex) WriteWarAudit(entry war.AuditEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqWarAudit, audit: entry}:
	default:
	}
	return nil
}

// WritePoints appends one achievement award to the ledger.
func (s *SQLiteIndex) WritePoints(row PointsRow) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqPoints, points: row}:
	default:
	}
	return nil
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertAudit, _ := s.db.Prepare(`INSERT INTO war_audit(at_ms,actor,action,counterpart,detail,raw_json) VALUES(?,?,?,?,?,?)`)
	insertPoints, _ := s.db.Prepare(`INSERT INTO points_ledger(at_ms,player,achievement,points,total) VALUES(?,?,?,?,?)`)
	defer func() {
		if insertAudit != nil {
			_ = insertAudit.Close()
		}
		if insertPoints != nil {
			_ = insertPoints.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 256
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqWarAudit:
			if insertAudit == nil {
				continue
			}
			raw, _ := json.Marshal(r.audit)
			if _, err := tx.Stmt(insertAudit).Exec(
				r.audit.AtMs,
				r.audit.Actor,
				r.audit.Action,
				r.audit.Counterpart,
				r.audit.Detail,
				string(raw),
			); err != nil {
				rollback()
				continue
			}
			opCount++

		case reqPoints:
			if insertPoints == nil {
				continue
			}
			p := r.points
			if _, err := tx.Stmt(insertPoints).Exec(p.AtMs, p.Player, p.Achievement, p.Points, p.Total); err != nil {
				rollback()
				continue
			}
			opCount++
		}
		flushIfNeeded()
	}

	commit()
}

// RecentAudit reads back the newest audit rows, mainly for the admin surface
// and tests.
func (s *SQLiteIndex) RecentAudit(limit int) ([]war.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`SELECT at_ms, actor, action, IFNULL(counterpart,''), IFNULL(detail,'') FROM war_audit ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []war.AuditEntry
	for rows.Next() {
		var e war.AuditEntry
		if err := rows.Scan(&e.AtMs, &e.Actor, &e.Action, &e.Counterpart, &e.Detail); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PointsFor reads back the ledger rows of one player, oldest first.
func (s *SQLiteIndex) PointsFor(player string) ([]PointsRow, error) {
	rows, err := s.db.Query(`SELECT at_ms, player, achievement, points, total FROM points_ledger WHERE player = ? ORDER BY seq ASC`, player)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PointsRow
	for rows.Next() {
		var p PointsRow
		if err := rows.Scan(&p.AtMs, &p.Player, &p.Achievement, &p.Points, &p.Total); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
