// Package sqlite stores the event log in an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aehistory/history/eventlog"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	parent_id          INTEGER REFERENCES events(id),
	event_type         TEXT    NOT NULL,
	timestamp          INTEGER NOT NULL,
	workspace          TEXT    NOT NULL,
	site_identifier    TEXT    NOT NULL DEFAULT '',
	node_identifier    TEXT    NOT NULL DEFAULT '',
	account_identifier TEXT    NOT NULL DEFAULT '',
	data               TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_relevant ON events(event_type, workspace, timestamp);
CREATE INDEX IF NOT EXISTS idx_events_parent ON events(parent_id);

CREATE TABLE IF NOT EXISTS sites (
	identifier TEXT PRIMARY KEY,
	name       TEXT    NOT NULL DEFAULT '',
	node_name  TEXT    NOT NULL DEFAULT '',
	online     INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS domains (
	hostname        TEXT PRIMARY KEY,
	site_identifier TEXT    NOT NULL,
	active          INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS nodes (
	workspace  TEXT NOT NULL,
	identifier TEXT NOT NULL,
	label      TEXT NOT NULL DEFAULT '',
	node_type  TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (workspace, identifier)
);
`

const eventColumns = `e.id, e.parent_id, e.event_type, e.timestamp, e.workspace,
	e.site_identifier, e.node_identifier, e.account_identifier, e.data,
	(SELECT COUNT(*) FROM events c WHERE c.parent_id = e.id)`

type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and prepares its schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite database: %w", err)
	}
	// SQLite has a single writer, and every connection to ":memory:" would
	// otherwise see its own empty database.
	db.SetMaxOpenConns(1)
	s := New(db)
	if err := s.Init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Init creates the tables if they do not exist yet.
func (s *Store) Init() error {
	if _, err := s.db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Append(ctx context.Context, e *eventlog.Event) error {
	e.Normalize()
	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	var parent sql.NullInt64
	if e.ParentID != 0 {
		parent = sql.NullInt64{Int64: e.ParentID, Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO events (parent_id, event_type, timestamp, workspace,
			site_identifier, node_identifier, account_identifier, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		parent,
		string(e.Type),
		e.Timestamp.UnixNano(),
		e.Workspace,
		e.SiteIdentifier,
		e.NodeIdentifier,
		e.AccountIdentifier,
		string(data),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	if e.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("read event id: %w", err)
	}
	return nil
}

func (s *Store) PutSite(ctx context.Context, site eventlog.Site) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sites (identifier, name, node_name, online) VALUES (?, ?, ?, ?)
		ON CONFLICT (identifier) DO UPDATE SET
			name = excluded.name, node_name = excluded.node_name, online = excluded.online`,
		site.Identifier, site.Name, site.NodeName, site.Online,
	)
	if err != nil {
		return fmt.Errorf("upsert site: %w", err)
	}
	return nil
}

func (s *Store) PutDomain(ctx context.Context, domain eventlog.Domain) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO domains (hostname, site_identifier, active) VALUES (?, ?, ?)
		ON CONFLICT (hostname) DO UPDATE SET
			site_identifier = excluded.site_identifier, active = excluded.active`,
		eventlog.Hostname(domain.Hostname), domain.SiteIdentifier, domain.Active,
	)
	if err != nil {
		return fmt.Errorf("upsert domain: %w", err)
	}
	return nil
}

func (s *Store) PutNode(ctx context.Context, node eventlog.Node) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO nodes (workspace, identifier, label, node_type) VALUES (?, ?, ?, ?)
		ON CONFLICT (workspace, identifier) DO UPDATE SET
			label = excluded.label, node_type = excluded.node_type`,
		node.Workspace, node.Identifier, node.Label, node.NodeType,
	)
	if err != nil {
		return fmt.Errorf("upsert node: %w", err)
	}
	return nil
}

func (s *Store) RelevantEvents(ctx context.Context, q eventlog.Query) ([]eventlog.Event, error) {
	where := []string{"e.parent_id IS NULL", "e.event_type = ?", "e.workspace = ?"}
	args := []interface{}{string(eventlog.NodePublished), q.Workspace}
	if q.Site != "" {
		where = append(where, "e.site_identifier = ?")
		args = append(args, q.Site)
	}
	if q.NodeIdentifier != "" {
		where = append(where, "e.node_identifier = ?")
		args = append(args, q.NodeIdentifier)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = -1
	}
	args = append(args, limit, q.Offset)

	query := `SELECT ` + eventColumns + ` FROM events e
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY e.timestamp DESC, e.id DESC
		LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func (s *Store) ChildEvents(ctx context.Context, parentIDs []int64) (map[int64][]eventlog.Event, error) {
	res := map[int64][]eventlog.Event{}
	if len(parentIDs) == 0 {
		return res, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(parentIDs)), ",")
	args := make([]interface{}, len(parentIDs))
	for i := range parentIDs {
		args[i] = parentIDs[i]
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM events e
		WHERE e.parent_id IN (`+placeholders+`)
		ORDER BY e.id ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("query child events: %w", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}
	for i := range events {
		res[events[i].ParentID] = append(res[events[i].ParentID], events[i])
	}
	return res, nil
}

func scanEvents(rows *sql.Rows) ([]eventlog.Event, error) {
	var events []eventlog.Event

	for rows.Next() {
		var (
			e         eventlog.Event
			parent    sql.NullInt64
			eventType string
			timestamp int64
			data      string
		)
		if err := rows.Scan(
			&e.ID,
			&parent,
			&eventType,
			&timestamp,
			&e.Workspace,
			&e.SiteIdentifier,
			&e.NodeIdentifier,
			&e.AccountIdentifier,
			&data,
			&e.ChildEventCount,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}

		e.ParentID = parent.Int64
		e.Type = eventlog.EventType(eventType)
		e.Timestamp = time.Unix(0, timestamp).UTC()
		if err := json.Unmarshal([]byte(data), &e.Data); err != nil {
			return nil, fmt.Errorf("decode data of event %d: %w", e.ID, err)
		}

		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func (s *Store) allSites(ctx context.Context, onlineOnly bool) ([]eventlog.Site, error) {
	query := `SELECT identifier, name, node_name, online FROM sites`
	if onlineOnly {
		query += ` WHERE online = 1`
	}
	query += ` ORDER BY name, identifier`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query sites: %w", err)
	}
	defer rows.Close()

	var sites []eventlog.Site
	for rows.Next() {
		var site eventlog.Site
		if err := rows.Scan(&site.Identifier, &site.Name, &site.NodeName, &site.Online); err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		sites = append(sites, site)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sites: %w", err)
	}
	return sites, nil
}

func (s *Store) CountSites(ctx context.Context, scope eventlog.Scope) (int, error) {
	if !scope.Restricted() {
		var n int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sites`).Scan(&n); err != nil {
			return 0, fmt.Errorf("count sites: %w", err)
		}
		return n, nil
	}

	sites, err := s.allSites(ctx, false)
	if err != nil {
		return 0, err
	}
	return len(scope.Filter(sites)), nil
}

func (s *Store) OnlineSites(ctx context.Context, scope eventlog.Scope) ([]eventlog.Site, error) {
	sites, err := s.allSites(ctx, true)
	if err != nil {
		return nil, err
	}
	return scope.Filter(sites), nil
}

func (s *Store) ActiveDomainSite(ctx context.Context, host string) (*eventlog.Site, error) {
	var site eventlog.Site
	err := s.db.QueryRowContext(ctx, `
		SELECT s.identifier, s.name, s.node_name, s.online
		FROM domains d JOIN sites s ON s.identifier = d.site_identifier
		WHERE d.hostname = ? AND d.active = 1`,
		eventlog.Hostname(host),
	).Scan(&site.Identifier, &site.Name, &site.NodeName, &site.Online)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eventlog.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query active domain: %w", err)
	}
	return &site, nil
}

func (s *Store) ResolveNode(ctx context.Context, workspace, identifier string) (*eventlog.Node, error) {
	node := eventlog.Node{Workspace: workspace, Identifier: identifier}
	err := s.db.QueryRowContext(ctx, `
		SELECT label, node_type FROM nodes WHERE workspace = ? AND identifier = ?`,
		workspace, identifier,
	).Scan(&node.Label, &node.NodeType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eventlog.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query node: %w", err)
	}
	return &node, nil
}
