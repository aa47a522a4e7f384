// internal/backend/postgres.go
package backend

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	jsoniter "github.com/json-iterator/go"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

//go:embed schema.sql
var schemaDDL string

var (
	ErrSchemaMissing = errors.New("backend tables missing")
	ErrUnknownField  = errors.New("unknown field")
)

var schemaNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

var payloadCodec = jsoniter.ConfigCompatibleWithStandardLibrary

// column maps a canonical record field onto its snake_case column.
type column struct {
	field string
	name  string
}

var collectionColumns = map[Collection][]column{
	Books: {
		{"title", "title"},
		{"author", "author"},
		{"quantity", "quantity"},
		{"available", "available"},
	},
	Members: {
		{"name", "name"},
		{"active", "active"},
	},
	Loans: {
		{"bookId", "book_id"},
		{"memberId", "member_id"},
		{"issueDate", "issue_date"},
		{"returnDate", "return_date"},
		{"status", "status"},
	},
}

// queries builds the SQL for one schema.
type queries struct {
	dialect goqu.DialectWrapper
	schema  string
}

func newQueries(schema string) queries {
	return queries{dialect: goqu.Dialect("postgres"), schema: schema}
}

func (q queries) table(coll Collection) interface{} {
	return goqu.S(q.schema).Table(string(coll))
}

func (q queries) selectColumns(coll Collection) []interface{} {
	cols := []interface{}{goqu.C("id")}
	for _, c := range collectionColumns[coll] {
		cols = append(cols, goqu.C(c.name))
	}
	return cols
}

func toRow(coll Collection, rec Record) (goqu.Record, error) {
	row := goqu.Record{}
	for field, v := range rec {
		name, ok := columnFor(coll, field)
		if !ok {
			return nil, fmt.Errorf("%w %q for %s", ErrUnknownField, field, coll)
		}
		row[name] = v
	}
	return row, nil
}

func columnFor(coll Collection, field string) (string, bool) {
	for _, c := range collectionColumns[coll] {
		if c.field == field {
			return c.name, true
		}
	}
	return "", false
}

func fromRow(coll Collection, row map[string]interface{}) (string, Record) {
	id := stringValue(row["id"])
	rec := Record{}
	for _, c := range collectionColumns[coll] {
		v, ok := row[c.name]
		if !ok {
			continue
		}
		switch tv := v.(type) {
		case time.Time:
			rec[c.field] = tv.UTC().Format(time.RFC3339Nano)
		case []byte:
			rec[c.field] = string(tv)
		default:
			rec[c.field] = tv
		}
	}
	return id, rec
}

func stringValue(v interface{}) string {
	switch tv := v.(type) {
	case string:
		return tv
	case []byte:
		return string(tv)
	default:
		return fmt.Sprint(tv)
	}
}

func (q queries) insert(coll Collection, id string, rec Record) (string, []interface{}, error) {
	row, err := toRow(coll, rec)
	if err != nil {
		return "", nil, err
	}
	row["id"] = id
	return q.dialect.Insert(q.table(coll)).Rows(row).Prepared(true).ToSQL()
}

func (q queries) update(coll Collection, id string, fields Record) (string, []interface{}, error) {
	row, err := toRow(coll, fields)
	if err != nil {
		return "", nil, err
	}
	if len(row) == 0 {
		return "", nil, fmt.Errorf("empty update for %s/%s", coll, id)
	}
	return q.dialect.Update(q.table(coll)).
		Set(row).
		Where(goqu.C("id").Eq(id)).
		Prepared(true).
		ToSQL()
}

func (q queries) read(coll Collection, id string) (string, []interface{}, error) {
	return q.dialect.From(q.table(coll)).
		Select(q.selectColumns(coll)...).
		Where(goqu.C("id").Eq(id)).
		Prepared(true).
		ToSQL()
}

func (q queries) snapshot(coll Collection) (string, []interface{}, error) {
	return q.dialect.From(q.table(coll)).
		Select(q.selectColumns(coll)...).
		Order(goqu.C("id").Asc()).
		Prepared(true).
		ToSQL()
}

// notifyPayload is the JSON emitted by the libradesk_notify trigger.
type notifyPayload struct {
	Table string `json:"table"`
	Op    string `json:"op"`
	ID    string `json:"id"`
}

// Postgres is a Backend over three PostgreSQL tables. Triggers publish row ids
// with pg_notify; a pq.Listener turns them into notifications.
type Postgres struct {
	db       *sqlx.DB
	dsn      string
	q        queries
	channel  string
	logger   *slog.Logger
	tracer   trace.Tracer
	listener *pq.Listener
	// readRecord fetches the row named by a notification; p.Read outside tests.
	readRecord func(ctx context.Context, coll Collection, id string) (Record, error)

	mu      sync.Mutex
	deliver sync.Mutex
	subs    map[Collection]map[int]Handler
	nextSub int

	stop context.CancelFunc
	done chan struct{}
}

// PostgresOption configures a Postgres backend.
type PostgresOption func(*Postgres) error

// WithSchema places the tables in the given schema instead of "public".
func WithSchema(schema string) PostgresOption {
	return func(p *Postgres) error {
		if !schemaNamePattern.MatchString(schema) {
			return fmt.Errorf("invalid schema name %q", schema)
		}
		p.q = newQueries(schema)
		p.channel = "libradesk_changes_" + schema
		return nil
	}
}

// WithPostgresLogger sets the logger used for listener and dispatch events.
func WithPostgresLogger(logger *slog.Logger) PostgresOption {
	return func(p *Postgres) error {
		p.logger = logger
		return nil
	}
}

// OpenPostgres connects, bootstraps the tables and starts listening for changes.
func OpenPostgres(ctx context.Context, dsn string, opts ...PostgresOption) (*Postgres, error) {
	p := &Postgres{
		dsn:     dsn,
		q:       newQueries("public"),
		channel: "libradesk_changes_public",
		logger:  slog.Default(),
		tracer:  otel.Tracer("libradesk/backend"),
		subs:    make(map[Collection]map[int]Handler, len(Collections)),
	}
	p.readRecord = p.Read
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	for _, c := range Collections {
		p.subs[c] = make(map[int]Handler)
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	p.db = db

	if err := p.Bootstrap(ctx); err != nil {
		db.Close()
		return nil, err
	}

	p.listener = pq.NewListener(dsn, 2*time.Second, time.Minute, p.listenerEvent)
	if err := p.listener.Listen(p.channel); err != nil {
		p.listener.Close()
		db.Close()
		return nil, fmt.Errorf("listen %s: %w", p.channel, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	p.stop = cancel
	p.done = make(chan struct{})
	go p.listen(loopCtx)

	return p, nil
}

// Bootstrap creates the tables and notify triggers if they do not exist yet.
func (p *Postgres) Bootstrap(ctx context.Context) error {
	ddl := strings.NewReplacer(
		"{{schema}}", pq.QuoteIdentifier(p.q.schema),
		"{{channel}}", p.channel,
	).Replace(schemaDDL)

	if _, err := p.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("bootstrap schema %s: %w", p.q.schema, err)
	}
	return nil
}

// Close stops the listener and closes the connection pool.
func (p *Postgres) Close() error {
	if p.stop != nil {
		p.stop()
		<-p.done
	}
	var errList []error
	if p.listener != nil {
		errList = append(errList, p.listener.Close())
	}
	errList = append(errList, p.db.Close())
	return errors.Join(errList...)
}

func (p *Postgres) Create(ctx context.Context, coll Collection, rec Record) (string, error) {
	if !coll.Valid() {
		return "", fmt.Errorf("%w: %s", ErrUnknownCollection, coll)
	}
	id := uuid.NewString()

	ctx, span := p.tracer.Start(ctx, "backend.create",
		trace.WithAttributes(
			attribute.String("collection", string(coll)),
			attribute.String("record.id", id),
		),
	)
	defer span.End()

	query, args, err := p.q.insert(coll, id, rec)
	if err != nil {
		return "", p.fail(span, err)
	}
	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		return "", p.fail(span, classify(fmt.Errorf("insert %s: %w", coll, err)))
	}
	return id, nil
}

func (p *Postgres) Update(ctx context.Context, coll Collection, id string, fields Record) error {
	if !coll.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownCollection, coll)
	}

	ctx, span := p.tracer.Start(ctx, "backend.update",
		trace.WithAttributes(
			attribute.String("collection", string(coll)),
			attribute.String("record.id", id),
			attribute.Int("field.count", len(fields)),
		),
	)
	defer span.End()

	query, args, err := p.q.update(coll, id, fields)
	if err != nil {
		return p.fail(span, err)
	}
	res, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return p.fail(span, classify(fmt.Errorf("update %s/%s: %w", coll, id, err)))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return p.fail(span, fmt.Errorf("rows affected: %w", err))
	}
	if n == 0 {
		return fmt.Errorf("%s/%s: %w", coll, id, ErrNotFound)
	}
	return nil
}

func (p *Postgres) Read(ctx context.Context, coll Collection, id string) (Record, error) {
	if !coll.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, coll)
	}

	ctx, span := p.tracer.Start(ctx, "backend.read",
		trace.WithAttributes(
			attribute.String("collection", string(coll)),
			attribute.String("record.id", id),
		),
	)
	defer span.End()

	query, args, err := p.q.read(coll, id)
	if err != nil {
		return nil, p.fail(span, err)
	}
	row := map[string]interface{}{}
	if err := p.db.QueryRowxContext(ctx, query, args...).MapScan(row); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s/%s: %w", coll, id, ErrNotFound)
		}
		return nil, p.fail(span, classify(fmt.Errorf("read %s/%s: %w", coll, id, err)))
	}
	_, rec := fromRow(coll, row)
	return rec, nil
}

func (p *Postgres) Subscribe(ctx context.Context, coll Collection, h Handler) (func(), error) {
	if !coll.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, coll)
	}

	// Holding the delivery lock while loading keeps notifications that race
	// with the snapshot queued until after the reset.
	p.deliver.Lock()
	defer p.deliver.Unlock()

	changes, err := p.load(ctx, coll)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[coll][id] = h
	p.mu.Unlock()

	h(Notification{Collection: coll, Reset: true, Changes: changes})

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs[coll], id)
			p.mu.Unlock()
		})
	}, nil
}

func (p *Postgres) load(ctx context.Context, coll Collection) ([]Change, error) {
	ctx, span := p.tracer.Start(ctx, "backend.snapshot",
		trace.WithAttributes(attribute.String("collection", string(coll))),
	)
	defer span.End()

	query, args, err := p.q.snapshot(coll)
	if err != nil {
		return nil, p.fail(span, err)
	}
	rows, err := p.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, p.fail(span, classify(fmt.Errorf("snapshot %s: %w", coll, err)))
	}
	defer rows.Close()

	var changes []Change
	for rows.Next() {
		row := map[string]interface{}{}
		if err := rows.MapScan(row); err != nil {
			return nil, p.fail(span, fmt.Errorf("scan %s: %w", coll, err))
		}
		id, rec := fromRow(coll, row)
		changes = append(changes, Change{Op: OpUpsert, ID: id, Record: rec})
	}
	if err := rows.Err(); err != nil {
		return nil, p.fail(span, fmt.Errorf("iterate %s: %w", coll, err))
	}

	span.SetAttributes(attribute.Int("records.loaded", len(changes)))
	return changes, nil
}

func (p *Postgres) listen(ctx context.Context) {
	defer close(p.done)

	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-p.listener.Notify:
			if !ok {
				return
			}
			if n == nil {
				// The connection was re-established; notifications may have been lost.
				p.resync(ctx)
				continue
			}
			p.dispatch(ctx, n.Extra)
		case <-time.After(90 * time.Second):
			go func() {
				if err := p.listener.Ping(); err != nil {
					p.logger.Warn("listener ping failed", "error", err)
				}
			}()
		}
	}
}

func (p *Postgres) dispatch(ctx context.Context, payload string) {
	var msg notifyPayload
	if err := payloadCodec.UnmarshalFromString(payload, &msg); err != nil {
		p.logger.Warn("undecodable change notification", "payload", payload, "error", err)
		return
	}
	coll := Collection(msg.Table)
	if !coll.Valid() {
		return
	}

	// The row is read under the delivery lock so a reset loaded by Subscribe
	// or resync can never be followed by an older version of the row.
	p.deliver.Lock()
	defer p.deliver.Unlock()

	change := Change{Op: OpDelete, ID: msg.ID}
	if msg.Op != "DELETE" {
		rec, err := p.readRecord(ctx, coll, msg.ID)
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			p.logger.Error("failed to read changed record", "collection", coll, "id", msg.ID, "error", err)
			return
		default:
			change = Change{Op: OpUpsert, ID: msg.ID, Record: rec}
		}
	}
	for _, h := range p.handlers(coll) {
		h(Notification{Collection: coll, Changes: []Change{change}})
	}
}

func (p *Postgres) resync(ctx context.Context) {
	p.deliver.Lock()
	defer p.deliver.Unlock()

	for _, coll := range Collections {
		handlers := p.handlers(coll)
		if len(handlers) == 0 {
			continue
		}
		changes, err := p.load(ctx, coll)
		if err != nil {
			p.logger.Error("resync failed", "collection", coll, "error", err)
			continue
		}
		for _, h := range handlers {
			h(Notification{Collection: coll, Reset: true, Changes: changes})
		}
	}
}

func (p *Postgres) handlers(coll Collection) []Handler {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Handler, 0, len(p.subs[coll]))
	for _, h := range p.subs[coll] {
		out = append(out, h)
	}
	return out
}

func (p *Postgres) listenerEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventConnected:
		p.logger.Info("change listener connected", "channel", p.channel)
	case pq.ListenerEventDisconnected:
		p.logger.Warn("change listener disconnected", "channel", p.channel, "error", err)
	case pq.ListenerEventReconnected:
		p.logger.Info("change listener reconnected", "channel", p.channel)
	case pq.ListenerEventConnectionAttemptFailed:
		p.logger.Warn("change listener connection attempt failed", "error", err)
	}
}

func (p *Postgres) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// classify maps well-known server errors onto backend sentinels.
func classify(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "42P01" {
		return fmt.Errorf("%w: %v", ErrSchemaMissing, err)
	}
	return err
}
