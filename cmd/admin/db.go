package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional; defaults to <data>/index.db)")
	unitID := fs.String("unit", "", "unit_id filter (events, ownership)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index.db")
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	switch q {
	case "snapshots":
		listSnapshots(db, *limit)
	case "events":
		listEvents(db, *unitID, *limit)
	case "ownership":
		listOwnership(db, *unitID, *limit)
	case "audits":
		listAudits(db, *limit)
	default:
		fmt.Fprintln(os.Stderr, "unknown query (snapshots|events|ownership|audits):", q)
		os.Exit(2)
	}
}

func listSnapshots(db *sqlx.DB, limit int) {
	rows, err := db.Queryx(`SELECT tick, path, event_seq, influence_rows, sieges, recorded_at FROM snapshots ORDER BY tick DESC LIMIT ?`, limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	defer rows.Close()
	for rows.Next() {
		var tick, seq int64
		var infl, sieges int
		var path, at string
		if err := rows.Scan(&tick, &path, &seq, &infl, &sieges, &at); err != nil {
			fmt.Fprintln(os.Stderr, "scan:", err)
			os.Exit(1)
		}
		fmt.Printf("tick=%d event_seq=%d influence_rows=%d sieges=%d at=%s path=%s\n", tick, seq, infl, sieges, at, path)
	}
}

func listEvents(db *sqlx.DB, unitID string, limit int) {
	query := `SELECT seq, tick, unit_id, faction_id, delta, value, cause, actor FROM events`
	args := []any{}
	if unitID != "" {
		query += ` WHERE unit_id = ?`
		args = append(args, unitID)
	}
	query += ` ORDER BY seq DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.Queryx(query, args...)
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	defer rows.Close()
	for rows.Next() {
		var seq, tick int64
		var unit, faction, cause string
		var actor *string
		var delta, value float64
		if err := rows.Scan(&seq, &tick, &unit, &faction, &delta, &value, &cause, &actor); err != nil {
			fmt.Fprintln(os.Stderr, "scan:", err)
			os.Exit(1)
		}
		a := ""
		if actor != nil {
			a = *actor
		}
		fmt.Printf("seq=%d tick=%d unit=%s faction=%s delta=%+.3f value=%.3f cause=%s actor=%s\n",
			seq, tick, unit, faction, delta, value, cause, a)
	}
}

func listOwnership(db *sqlx.DB, unitID string, limit int) {
	query := `SELECT tick, unit_id, old_holder, new_holder FROM ownership_changes`
	args := []any{}
	if unitID != "" {
		query += ` WHERE unit_id = ?`
		args = append(args, unitID)
	}
	query += ` ORDER BY tick DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.Queryx(query, args...)
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	defer rows.Close()
	for rows.Next() {
		var tick int64
		var unit string
		var oldH, newH *string
		if err := rows.Scan(&tick, &unit, &oldH, &newH); err != nil {
			fmt.Fprintln(os.Stderr, "scan:", err)
			os.Exit(1)
		}
		fmt.Printf("tick=%d unit=%s %s -> %s\n", tick, unit, deref(oldH), deref(newH))
	}
}

func listAudits(db *sqlx.DB, limit int) {
	rows, err := db.Queryx(`SELECT tick, seq, session_id, kind, unit_id, code, message FROM audits ORDER BY tick DESC, seq DESC LIMIT ?`, limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	defer rows.Close()
	for rows.Next() {
		var tick int64
		var seq int
		var session, kind string
		var unit, code, msg *string
		if err := rows.Scan(&tick, &seq, &session, &kind, &unit, &code, &msg); err != nil {
			fmt.Fprintln(os.Stderr, "scan:", err)
			os.Exit(1)
		}
		fmt.Printf("tick=%d seq=%d session=%s kind=%s unit=%s code=%s msg=%s\n",
			tick, seq, session, kind, deref(unit), deref(code), deref(msg))
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
