package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/chat-service/internal/config"
	"github.com/chirino/chat-service/internal/model"
	"github.com/chirino/chat-service/internal/pagination"
	registrymigrate "github.com/chirino/chat-service/internal/registry/migrate"
	registrystore "github.com/chirino/chat-service/internal/registry/store"
	"github.com/chirino/chat-service/internal/telemetry"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

const uniqueViolation = "23505"

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "postgres",
		Loader: func(ctx context.Context) (registrystore.DocumentStore, error) {
			cfg := config.FromContext(ctx)
			pool, err := Connect(ctx, cfg)
			if err != nil {
				return nil, err
			}
			if telemetry.DBPoolMaxConnections != nil {
				telemetry.DBPoolMaxConnections.Set(float64(pool.Config().MaxConns))
			}

			// Periodically update the open connections gauge.
			go func() {
				ticker := time.NewTicker(15 * time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						if telemetry.DBPoolOpenConnections != nil {
							telemetry.DBPoolOpenConnections.Set(float64(pool.Stat().TotalConns()))
						}
					}
				}
			}()

			return New(pool), nil
		},
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &postgresMigrator{}})
}

// Connect opens and pings a pool using the document store URL and pool sizes.
func Connect(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DBURL)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres url: %w", err)
	}
	if cfg.DBMaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		poolCfg.MinConns = int32(cfg.DBMaxIdleConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &registrystore.UnavailableError{Op: "ping", Err: err}
	}
	return pool, nil
}

type postgresMigrator struct{}

func (m *postgresMigrator) Name() string { return "postgres-schema" }
func (m *postgresMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.DatastoreMigrateAtStart || cfg.DatastoreType != "postgres" {
		return nil
	}
	log.Info("Running migration", "name", m.Name())
	pool, err := Connect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("migration: %w", err)
	}
	defer pool.Close()

	if err := ApplySchema(ctx, pool); err != nil {
		return err
	}
	log.Info("Postgres schema migration complete")
	return nil
}

// ApplySchema executes the embedded schema. Every statement is idempotent.
func ApplySchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migration: failed to execute schema: %w", err)
	}
	return nil
}

// PostgresStore implements DocumentStore over the chat_conversations and
// chat_messages tables.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// New returns a store over pool. The schema must already exist (see ApplySchema).
func New(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// translate maps driver failures onto the store error taxonomy.
func translate(op string, err error) error {
	var connectErr *pgconn.ConnectError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded), pgconn.Timeout(err), errors.As(err, &connectErr):
		return &registrystore.UnavailableError{Op: op, Err: err}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

// limitArg turns a non-positive limit into LIMIT NULL (no limit) and otherwise
// asks for one extra row to detect a following page.
func limitArg(limit int) *int {
	if limit <= 0 {
		return nil
	}
	n := limit + 1
	return &n
}

func afterArgs(after *pagination.Position) (*int64, *string) {
	if after == nil {
		return nil, nil
	}
	return &after.UnixTime, &after.ID
}

// --- Message ledger ---

type messageRow struct {
	ID             string `db:"id"`
	Text           string `db:"text"`
	SenderUsername string `db:"sender_username"`
	UnixTime       int64  `db:"unix_time"`
}

func (r messageRow) toModel() model.Message {
	return model.Message{ID: r.ID, Text: r.Text, SenderUsername: r.SenderUsername, UnixTime: r.UnixTime}
}

func (s *PostgresStore) AddMessage(ctx context.Context, conversationID string, msg model.Message) (registrystore.AddMessageResult, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO chat_messages (partition_key, id, text, sender_username, unix_time)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (partition_key, id) DO NOTHING`,
		conversationID, msg.ID, msg.Text, msg.SenderUsername, msg.UnixTime)
	if err != nil {
		return registrystore.AddMessageResult{}, translate("insert message", err)
	}
	if tag.RowsAffected() == 1 {
		return registrystore.AddMessageResult{Outcome: registrystore.Created, Message: msg}, nil
	}
	existing, err := s.GetMessage(ctx, conversationID, msg.ID)
	if err != nil {
		return registrystore.AddMessageResult{}, err
	}
	return registrystore.AddMessageResult{Outcome: registrystore.AlreadyExisted, Message: *existing}, nil
}

func (s *PostgresStore) GetMessage(ctx context.Context, conversationID string, messageID string) (*model.Message, error) {
	rows, _ := s.pool.Query(ctx, `
		SELECT id, text, sender_username, unix_time FROM chat_messages
		WHERE partition_key = $1 AND id = $2`, conversationID, messageID)
	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[messageRow])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &registrystore.NotFoundError{Resource: "message", ID: messageID}
	}
	if err != nil {
		return nil, translate("get message", err)
	}
	msg := row.toModel()
	return &msg, nil
}

func (s *PostgresStore) DeleteMessage(ctx context.Context, conversationID string, messageID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM chat_messages WHERE partition_key = $1 AND id = $2`, conversationID, messageID)
	if err != nil {
		return translate("delete message", err)
	}
	if tag.RowsAffected() == 0 {
		return &registrystore.NotFoundError{Resource: "message", ID: messageID}
	}
	return nil
}

func (s *PostgresStore) GetMessages(ctx context.Context, conversationID string, query registrystore.PageQuery) (*registrystore.MessagePage, error) {
	after, err := pagination.Decode(query.ContinuationToken)
	if err != nil {
		return nil, err
	}
	afterTime, afterID := afterArgs(after)
	rows, _ := s.pool.Query(ctx, `
		SELECT id, text, sender_username, unix_time FROM chat_messages
		WHERE partition_key = $1
		  AND unix_time > $2
		  AND ($3::bigint IS NULL OR unix_time < $3 OR (unix_time = $3 AND id < $4))
		ORDER BY unix_time DESC, id DESC
		LIMIT $5`,
		conversationID, query.LastSeenUnixTime, afterTime, afterID, limitArg(query.Limit))
	found, err := pgx.CollectRows(rows, pgx.RowToStructByName[messageRow])
	if err != nil {
		return nil, translate("list messages", err)
	}

	found, token := pagination.Trim(found, query.Limit, func(r messageRow) pagination.Position {
		return pagination.Position{UnixTime: r.UnixTime, ID: r.ID}
	})
	msgs := make([]model.Message, len(found))
	for i, r := range found {
		msgs[i] = r.toModel()
	}
	return &registrystore.MessagePage{Messages: msgs, ContinuationToken: token}, nil
}

// --- Conversation index ---

type conversationRow struct {
	ID                   string   `db:"id"`
	Participants         []string `db:"participants"`
	LastModifiedUnixTime int64    `db:"last_modified_unix_time"`
}

func (r conversationRow) toModel() *model.Conversation {
	return &model.Conversation{
		ID:                   registrystore.ConversationIDFromIndexID(r.ID),
		Participants:         r.Participants,
		LastModifiedUnixTime: r.LastModifiedUnixTime,
	}
}

func (s *PostgresStore) insertConversation(ctx context.Context, username string, conversation model.Conversation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO chat_conversations (partition_key, id, participants, last_modified_unix_time)
		VALUES ($1, $2, $3, $4)`,
		registrystore.IndexPartition(username), registrystore.IndexID(conversation.ID),
		conversation.Participants, conversation.LastModifiedUnixTime)
	if isUniqueViolation(err) {
		return &registrystore.AlreadyExistsError{Resource: "conversation", ID: conversation.ID}
	}
	return translate("insert conversation", err)
}

func (s *PostgresStore) AddConversation(ctx context.Context, conversation model.Conversation) error {
	var exists *registrystore.AlreadyExistsError
	if err := s.insertConversation(ctx, conversation.Participants[0], conversation); err != nil && !errors.As(err, &exists) {
		return err
	}
	return s.insertConversation(ctx, conversation.Participants[1], conversation)
}

func (s *PostgresStore) GetConversation(ctx context.Context, username string, conversationID string) (*model.Conversation, error) {
	rows, _ := s.pool.Query(ctx, `
		SELECT id, participants, last_modified_unix_time FROM chat_conversations
		WHERE partition_key = $1 AND id = $2`,
		registrystore.IndexPartition(username), registrystore.IndexID(conversationID))
	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[conversationRow])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &registrystore.NotFoundError{Resource: "conversation", ID: conversationID}
	}
	if err != nil {
		return nil, translate("get conversation", err)
	}
	return row.toModel(), nil
}

func (s *PostgresStore) DeleteConversation(ctx context.Context, username string, conversationID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM chat_conversations WHERE partition_key = $1 AND id = $2`,
		registrystore.IndexPartition(username), registrystore.IndexID(conversationID))
	if err != nil {
		return translate("delete conversation", err)
	}
	if tag.RowsAffected() == 0 {
		return &registrystore.NotFoundError{Resource: "conversation", ID: conversationID}
	}
	return nil
}

func (s *PostgresStore) UpdateConversation(ctx context.Context, unixTime int64, conversationID string) error {
	participants, err := registrystore.Participants(conversationID)
	if err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, username := range participants {
		g.Go(func() error {
			_, err := s.pool.Exec(gctx, `
				INSERT INTO chat_conversations (partition_key, id, participants, last_modified_unix_time)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (partition_key, id) DO UPDATE
				SET last_modified_unix_time = GREATEST(chat_conversations.last_modified_unix_time, EXCLUDED.last_modified_unix_time)`,
				registrystore.IndexPartition(username), registrystore.IndexID(conversationID), participants, unixTime)
			return translate("upsert conversation", err)
		})
	}
	return g.Wait()
}

func (s *PostgresStore) GetConversations(ctx context.Context, username string, query registrystore.PageQuery) (*registrystore.ConversationPage, error) {
	after, err := pagination.Decode(query.ContinuationToken)
	if err != nil {
		return nil, err
	}
	afterTime, afterID := afterArgs(after)
	rows, _ := s.pool.Query(ctx, `
		SELECT id, participants, last_modified_unix_time FROM chat_conversations
		WHERE partition_key = $1
		  AND last_modified_unix_time > $2
		  AND ($3::bigint IS NULL OR last_modified_unix_time < $3 OR (last_modified_unix_time = $3 AND id < $4))
		ORDER BY last_modified_unix_time DESC, id DESC
		LIMIT $5`,
		registrystore.IndexPartition(username), query.LastSeenUnixTime, afterTime, afterID, limitArg(query.Limit))
	found, err := pgx.CollectRows(rows, pgx.RowToStructByName[conversationRow])
	if err != nil {
		return nil, translate("list conversations", err)
	}

	found, token := pagination.Trim(found, query.Limit, func(r conversationRow) pagination.Position {
		return pagination.Position{UnixTime: r.LastModifiedUnixTime, ID: r.ID}
	})
	convs := make([]model.Conversation, len(found))
	for i, r := range found {
		convs[i] = *r.toModel()
	}
	return &registrystore.ConversationPage{Conversations: convs, ContinuationToken: token}, nil
}

var _ registrystore.DocumentStore = (*PostgresStore)(nil)
