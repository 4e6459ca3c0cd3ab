package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/area/diffsync/internal/diffengine"
	"github.com/area/diffsync/internal/logging"
	"github.com/area/diffsync/internal/syncstate"
)

// Claims is the JWT payload CheckDiffs expects in the bearer token
// attached to its context, styled on cloud_collab_doc/internal/auth.Claims.
type Claims struct {
	UserID string   `json:"sub"`
	Rooms  []string `json:"rooms"`
	jwt.RegisteredClaims
}

// Postgres is the reference Adapter implementation backed by a Postgres
// JSONB table, with JWT-derived edit authorization and Redis pub/sub
// cache-coherency fan-out for multi-instance deployments. It exists to
// give the sync core a concrete, swappable collaborator; none of its
// retry/auth/pubsub plumbing is known to or required by the core.
type Postgres struct {
	pool      *pgxpool.Pool
	jwtSecret []byte
	pubsub    *redis.Client
}

// PostgresOption configures optional collaborators on a Postgres adapter.
type PostgresOption func(*Postgres)

// WithRedis attaches a go-redis client used to publish a "room-updated"
// event (payload: the room name) after every successful StoreData. Only
// the publishing side exists here: nothing in this module subscribes to
// the event, and RoomStore never drops a cached room in response to it.
func WithRedis(client *redis.Client) PostgresOption {
	return func(p *Postgres) { p.pubsub = client }
}

// NewPostgres builds a Postgres adapter around an already-connected pool.
func NewPostgres(pool *pgxpool.Pool, jwtSecret string, opts ...PostgresOption) *Postgres {
	p := &Postgres{pool: pool, jwtSecret: []byte(jwtSecret)}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ConnectPostgres parses dbURL and returns a ready-to-use pool, styled on
// cloud_collab_doc/internal/db.New: simple-protocol exec mode for PgBouncer
// compatibility, a Ping before returning.
func ConnectPostgres(ctx context.Context, dbURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// GetData loads room's persisted document, seeding an empty object the
// first time a room is seen.
func (p *Postgres) GetData(ctx context.Context, room, userID string) (diffengine.Document, error) {
	var raw []byte
	err := p.pool.QueryRow(ctx, `SELECT doc FROM rooms WHERE name = $1`, room).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		seed := map[string]interface{}{}
		if _, err := p.pool.Exec(ctx, `INSERT INTO rooms (name, doc) VALUES ($1, '{}'::jsonb)`, room); err != nil {
			return nil, fmt.Errorf("seed room %s: %w", room, err)
		}
		return seed, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load room %s: %w", room, err)
	}

	var doc diffengine.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode room %s: %w", room, err)
	}
	return doc, nil
}

// CheckDiffs validates that the bearer JWT on ctx is authorized for
// msg.Room. The token is attached to ctx by transport.Bind via
// WithBearerToken before this is called; a missing or invalid token
// silently denies, with no client-visible error for authorization
// failures.
func (p *Postgres) CheckDiffs(ctx context.Context, msg EditMessage, _ *syncstate.RoomState) (bool, error) {
	tokenString, ok := ctx.Value(contextKeyToken).(string)
	if !ok || tokenString == "" {
		return false, nil
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return p.jwtSecret, nil
	})
	if err != nil {
		return false, nil
	}

	for _, room := range claims.Rooms {
		if room == msg.Room || room == "*" {
			return true, nil
		}
	}
	return false, nil
}

// StoreData persists the room's current server copy, retrying transient
// connection failures with exponential backoff (cenkalti/backoff/v4,
// styled on the Kong reconciler's reconcile retry loop). This is an
// adapter-internal retry, not a core-level one; the core itself leaves
// retry-with-backoff unspecified.
func (p *Postgres) StoreData(ctx context.Context, room, userID string, serverCopy diffengine.Document, edits []syncstate.Edit) error {
	raw, err := json.Marshal(serverCopy)
	if err != nil {
		return fmt.Errorf("encode room %s: %w", room, err)
	}

	op := func() error {
		_, err := p.pool.Exec(ctx, `UPDATE rooms SET doc = $2, updated_at = now() WHERE name = $1`, room, raw)
		if err != nil && isTransient(err) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5)
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return fmt.Errorf("store room %s: %w", room, err)
	}

	if p.pubsub != nil {
		if err := p.pubsub.Publish(ctx, "room-updated", room).Err(); err != nil {
			logging.Warn("postgres adapter: failed to publish room-updated for %s: %v", room, err)
		}
	}
	return nil
}

func isTransient(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "i/o timeout")
}

type contextKey int

const contextKeyToken contextKey = iota

// WithBearerToken attaches a bearer token to ctx for CheckDiffs to
// validate; the transport layer calls this once per inbound edit message
// using the token it extracted from the connection.
func WithBearerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, contextKeyToken, token)
}
