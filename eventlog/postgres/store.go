// Package postgres stores the event log in PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aehistory/history/eventlog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id                 BIGSERIAL PRIMARY KEY,
	parent_id          BIGINT REFERENCES events(id),
	event_type         TEXT        NOT NULL,
	timestamp          TIMESTAMPTZ NOT NULL,
	workspace          TEXT        NOT NULL,
	site_identifier    TEXT        NOT NULL DEFAULT '',
	node_identifier    TEXT        NOT NULL DEFAULT '',
	account_identifier TEXT        NOT NULL DEFAULT '',
	data               JSONB       NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_relevant ON events(event_type, workspace, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_events_parent ON events(parent_id);

CREATE TABLE IF NOT EXISTS sites (
	identifier TEXT PRIMARY KEY,
	name       TEXT    NOT NULL DEFAULT '',
	node_name  TEXT    NOT NULL DEFAULT '',
	online     BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS domains (
	hostname        TEXT PRIMARY KEY,
	site_identifier TEXT    NOT NULL,
	active          BOOLEAN NOT NULL DEFAULT TRUE
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
	DB *pgxpool.Pool
}

// Connect opens a connection pool for the given DSN and prepares the schema.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to reach database: %w", err)
	}
	s := New(pool)
	if err := s.Init(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func New(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

func (s *Store) Init(ctx context.Context) error {
	if _, err := s.DB.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *Store) Close() {
	s.DB.Close()
}

func (s *Store) Append(ctx context.Context, e *eventlog.Event) error {
	e.Normalize()
	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	var parent *int64
	if e.ParentID != 0 {
		parent = &e.ParentID
	}

	err = s.DB.QueryRow(ctx, `
		INSERT INTO events (parent_id, event_type, timestamp, workspace,
			site_identifier, node_identifier, account_identifier, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		parent,
		string(e.Type),
		e.Timestamp,
		e.Workspace,
		e.SiteIdentifier,
		e.NodeIdentifier,
		e.AccountIdentifier,
		data,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *Store) PutSite(ctx context.Context, site eventlog.Site) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO sites (identifier, name, node_name, online) VALUES ($1, $2, $3, $4)
		ON CONFLICT (identifier) DO UPDATE SET
			name = EXCLUDED.name, node_name = EXCLUDED.node_name, online = EXCLUDED.online`,
		site.Identifier, site.Name, site.NodeName, site.Online,
	)
	if err != nil {
		return fmt.Errorf("upsert site: %w", err)
	}
	return nil
}

func (s *Store) PutDomain(ctx context.Context, domain eventlog.Domain) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO domains (hostname, site_identifier, active) VALUES ($1, $2, $3)
		ON CONFLICT (hostname) DO UPDATE SET
			site_identifier = EXCLUDED.site_identifier, active = EXCLUDED.active`,
		eventlog.Hostname(domain.Hostname), domain.SiteIdentifier, domain.Active,
	)
	if err != nil {
		return fmt.Errorf("upsert domain: %w", err)
	}
	return nil
}

func (s *Store) PutNode(ctx context.Context, node eventlog.Node) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO nodes (workspace, identifier, label, node_type) VALUES ($1, $2, $3, $4)
		ON CONFLICT (workspace, identifier) DO UPDATE SET
			label = EXCLUDED.label, node_type = EXCLUDED.node_type`,
		node.Workspace, node.Identifier, node.Label, node.NodeType,
	)
	if err != nil {
		return fmt.Errorf("upsert node: %w", err)
	}
	return nil
}

func (s *Store) RelevantEvents(ctx context.Context, q eventlog.Query) ([]eventlog.Event, error) {
	where := []string{"e.parent_id IS NULL", "e.event_type = $1", "e.workspace = $2"}
	args := []any{string(eventlog.NodePublished), q.Workspace}
	if q.Site != "" {
		args = append(args, q.Site)
		where = append(where, fmt.Sprintf("e.site_identifier = $%d", len(args)))
	}
	if q.NodeIdentifier != "" {
		args = append(args, q.NodeIdentifier)
		where = append(where, fmt.Sprintf("e.node_identifier = $%d", len(args)))
	}

	query := `SELECT ` + eventColumns + ` FROM events e
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY e.timestamp DESC, e.id DESC`
	args = append(args, q.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.DB.Query(ctx, query, args...)
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

	rows, err := s.DB.Query(ctx, `SELECT `+eventColumns+` FROM events e
		WHERE e.parent_id = ANY($1)
		ORDER BY e.id ASC`, parentIDs)
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

func scanEvents(rows pgx.Rows) ([]eventlog.Event, error) {
	var events []eventlog.Event

	for rows.Next() {
		var (
			e         eventlog.Event
			parent    *int64
			eventType string
			timestamp time.Time
			data      []byte
			children  int64
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
			&children,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}

		if parent != nil {
			e.ParentID = *parent
		}
		e.Type = eventlog.EventType(eventType)
		e.Timestamp = timestamp
		e.ChildEventCount = int(children)
		if err := json.Unmarshal(data, &e.Data); err != nil {
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
		query += ` WHERE online`
	}
	query += ` ORDER BY name, identifier`

	rows, err := s.DB.Query(ctx, query)
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
	return sites, rows.Err()
}

func (s *Store) CountSites(ctx context.Context, scope eventlog.Scope) (int, error) {
	if !scope.Restricted() {
		var n int
		if err := s.DB.QueryRow(ctx, `SELECT COUNT(*) FROM sites`).Scan(&n); err != nil {
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
	err := s.DB.QueryRow(ctx, `
		SELECT s.identifier, s.name, s.node_name, s.online
		FROM domains d JOIN sites s ON s.identifier = d.site_identifier
		WHERE d.hostname = $1 AND d.active`,
		eventlog.Hostname(host),
	).Scan(&site.Identifier, &site.Name, &site.NodeName, &site.Online)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eventlog.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query active domain: %w", err)
	}
	return &site, nil
}

func (s *Store) ResolveNode(ctx context.Context, workspace, identifier string) (*eventlog.Node, error) {
	node := eventlog.Node{Workspace: workspace, Identifier: identifier}
	err := s.DB.QueryRow(ctx, `
		SELECT label, node_type FROM nodes WHERE workspace = $1 AND identifier = $2`,
		workspace, identifier,
	).Scan(&node.Label, &node.NodeType)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eventlog.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query node: %w", err)
	}
	return &node, nil
}
