package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/chirino/chat-service/internal/config"
	"github.com/chirino/chat-service/internal/model"
	"github.com/chirino/chat-service/internal/pagination"
	registrymigrate "github.com/chirino/chat-service/internal/registry/migrate"
	registrystore "github.com/chirino/chat-service/internal/registry/store"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"golang.org/x/sync/errgroup"
)

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "mongo",
		Loader: func(ctx context.Context) (registrystore.DocumentStore, error) {
			cfg := config.FromContext(ctx)
			client, err := Connect(ctx, cfg)
			if err != nil {
				return nil, err
			}
			return New(client.Database(cfg.DatabaseName)), nil
		},
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &mongoMigrator{}})
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

// Connect opens and pings a client using the document store URL and pool sizes.
func Connect(ctx context.Context, cfg *config.Config) (*mongo.Client, error) {
	opts := options.Client().ApplyURI(cfg.DBURL)
	if cfg.DBMaxOpenConns > 0 {
		opts.SetMaxPoolSize(uint64(cfg.DBMaxOpenConns))
	}
	if cfg.DBMaxIdleConns > 0 {
		opts.SetMinPoolSize(uint64(cfg.DBMaxIdleConns))
	}
	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, &registrystore.UnavailableError{Op: "ping", Err: err}
	}
	return client, nil
}

type mongoMigrator struct{}

func (m *mongoMigrator) Name() string { return "mongo-schema" }
func (m *mongoMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.DatastoreMigrateAtStart || cfg.DatastoreType != "mongo" {
		return nil
	}

	log.Info("Running migration", "name", m.Name())
	client, err := Connect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("mongo migration: %w", err)
	}
	defer client.Disconnect(ctx)

	if err := EnsureIndexes(ctx, client.Database(cfg.DatabaseName)); err != nil {
		return err
	}
	log.Info("MongoDB schema migration complete")
	return nil
}

// EnsureIndexes creates the collections and the unique and listing indexes that
// the store relies on. Safe to run repeatedly.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	collections := map[string][]mongo.IndexModel{
		conversationsCollection: {
			{
				Keys:    bson.D{{Key: "partition_key", Value: 1}, {Key: "id", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("unique_conversation_per_owner"),
			},
			{Keys: bson.D{{Key: "partition_key", Value: 1}, {Key: "last_modified_unix_time", Value: -1}, {Key: "id", Value: -1}}},
		},
		messagesCollection: {
			{
				Keys:    bson.D{{Key: "partition_key", Value: 1}, {Key: "id", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("unique_message_per_conversation"),
			},
			{Keys: bson.D{{Key: "partition_key", Value: 1}, {Key: "unix_time", Value: -1}, {Key: "id", Value: -1}}},
		},
	}
	for name, indexes := range collections {
		// Ignored: fails when the collection already exists.
		_ = db.CreateCollection(ctx, name)
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, indexes); err != nil {
			return fmt.Errorf("mongo migration: failed to create indexes for %s: %w", name, err)
		}
	}
	return nil
}

const (
	conversationsCollection = "conversations"
	messagesCollection      = "messages"
)

// --- MongoDB document types ---

type conversationDoc struct {
	PartitionKey         string   `bson:"partition_key"`
	ID                   string   `bson:"id"`
	Participants         []string `bson:"participants"`
	LastModifiedUnixTime int64    `bson:"last_modified_unix_time"`
}

func (d conversationDoc) toModel() *model.Conversation {
	return &model.Conversation{
		ID:                   registrystore.ConversationIDFromIndexID(d.ID),
		Participants:         d.Participants,
		LastModifiedUnixTime: d.LastModifiedUnixTime,
	}
}

type messageDoc struct {
	PartitionKey   string `bson:"partition_key"`
	ID             string `bson:"id"`
	Text           string `bson:"text"`
	SenderUsername string `bson:"sender_username"`
	UnixTime       int64  `bson:"unix_time"`
}

func (d messageDoc) toModel() model.Message {
	return model.Message{ID: d.ID, Text: d.Text, SenderUsername: d.SenderUsername, UnixTime: d.UnixTime}
}

// MongoStore implements DocumentStore with one collection for the conversation
// index and one for the message ledger.
type MongoStore struct {
	db *mongo.Database
}

// New returns a store over db. Indexes must already exist (see EnsureIndexes).
func New(db *mongo.Database) *MongoStore {
	return &MongoStore{db: db}
}

func (s *MongoStore) conversations() *mongo.Collection { return s.db.Collection(conversationsCollection) }
func (s *MongoStore) messages() *mongo.Collection      { return s.db.Collection(messagesCollection) }

// translate maps driver failures onto the store error taxonomy.
func translate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded), mongo.IsTimeout(err), mongo.IsNetworkError(err):
		return &registrystore.UnavailableError{Op: op, Err: err}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

// pageFilter adds the watermark and resume predicates for a descending listing
// ordered by (timeField, id).
func pageFilter(filter bson.M, timeField string, lastSeen int64, after *pagination.Position) bson.M {
	filter[timeField] = bson.M{"$gt": lastSeen}
	if after != nil {
		filter["$or"] = bson.A{
			bson.M{timeField: bson.M{"$lt": after.UnixTime}},
			bson.M{timeField: after.UnixTime, "id": bson.M{"$lt": after.ID}},
		}
	}
	return filter
}

func pageOptions(timeField string, limit int) *options.FindOptionsBuilder {
	opts := options.Find().SetSort(bson.D{{Key: timeField, Value: -1}, {Key: "id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit + 1))
	}
	return opts
}

// --- Message ledger ---

func (s *MongoStore) AddMessage(ctx context.Context, conversationID string, msg model.Message) (registrystore.AddMessageResult, error) {
	doc := messageDoc{
		PartitionKey:   conversationID,
		ID:             msg.ID,
		Text:           msg.Text,
		SenderUsername: msg.SenderUsername,
		UnixTime:       msg.UnixTime,
	}
	_, err := s.messages().InsertOne(ctx, doc)
	if err == nil {
		return registrystore.AddMessageResult{Outcome: registrystore.Created, Message: msg}, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return registrystore.AddMessageResult{}, translate("insert message", err)
	}
	existing, err := s.GetMessage(ctx, conversationID, msg.ID)
	if err != nil {
		return registrystore.AddMessageResult{}, err
	}
	return registrystore.AddMessageResult{Outcome: registrystore.AlreadyExisted, Message: *existing}, nil
}

func (s *MongoStore) GetMessage(ctx context.Context, conversationID string, messageID string) (*model.Message, error) {
	var doc messageDoc
	err := s.messages().FindOne(ctx, bson.M{"partition_key": conversationID, "id": messageID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, &registrystore.NotFoundError{Resource: "message", ID: messageID}
	}
	if err != nil {
		return nil, translate("get message", err)
	}
	msg := doc.toModel()
	return &msg, nil
}

func (s *MongoStore) DeleteMessage(ctx context.Context, conversationID string, messageID string) error {
	result, err := s.messages().DeleteOne(ctx, bson.M{"partition_key": conversationID, "id": messageID})
	if err != nil {
		return translate("delete message", err)
	}
	if result.DeletedCount == 0 {
		return &registrystore.NotFoundError{Resource: "message", ID: messageID}
	}
	return nil
}

func (s *MongoStore) GetMessages(ctx context.Context, conversationID string, query registrystore.PageQuery) (*registrystore.MessagePage, error) {
	after, err := pagination.Decode(query.ContinuationToken)
	if err != nil {
		return nil, err
	}
	filter := pageFilter(bson.M{"partition_key": conversationID}, "unix_time", query.LastSeenUnixTime, after)
	cur, err := s.messages().Find(ctx, filter, pageOptions("unix_time", query.Limit))
	if err != nil {
		return nil, translate("list messages", err)
	}
	var docs []messageDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, translate("decode messages", err)
	}

	docs, token := pagination.Trim(docs, query.Limit, func(d messageDoc) pagination.Position {
		return pagination.Position{UnixTime: d.UnixTime, ID: d.ID}
	})
	msgs := make([]model.Message, len(docs))
	for i, d := range docs {
		msgs[i] = d.toModel()
	}
	return &registrystore.MessagePage{Messages: msgs, ContinuationToken: token}, nil
}

// --- Conversation index ---

func (s *MongoStore) insertConversation(ctx context.Context, username string, conversation model.Conversation) error {
	_, err := s.conversations().InsertOne(ctx, conversationDoc{
		PartitionKey:         registrystore.IndexPartition(username),
		ID:                   registrystore.IndexID(conversation.ID),
		Participants:         conversation.Participants,
		LastModifiedUnixTime: conversation.LastModifiedUnixTime,
	})
	if mongo.IsDuplicateKeyError(err) {
		return &registrystore.AlreadyExistsError{Resource: "conversation", ID: conversation.ID}
	}
	return translate("insert conversation", err)
}

func (s *MongoStore) AddConversation(ctx context.Context, conversation model.Conversation) error {
	var exists *registrystore.AlreadyExistsError
	if err := s.insertConversation(ctx, conversation.Participants[0], conversation); err != nil && !errors.As(err, &exists) {
		return err
	}
	return s.insertConversation(ctx, conversation.Participants[1], conversation)
}

func (s *MongoStore) GetConversation(ctx context.Context, username string, conversationID string) (*model.Conversation, error) {
	var doc conversationDoc
	err := s.conversations().FindOne(ctx, bson.M{
		"partition_key": registrystore.IndexPartition(username),
		"id":            registrystore.IndexID(conversationID),
	}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, &registrystore.NotFoundError{Resource: "conversation", ID: conversationID}
	}
	if err != nil {
		return nil, translate("get conversation", err)
	}
	return doc.toModel(), nil
}

func (s *MongoStore) DeleteConversation(ctx context.Context, username string, conversationID string) error {
	result, err := s.conversations().DeleteOne(ctx, bson.M{
		"partition_key": registrystore.IndexPartition(username),
		"id":            registrystore.IndexID(conversationID),
	})
	if err != nil {
		return translate("delete conversation", err)
	}
	if result.DeletedCount == 0 {
		return &registrystore.NotFoundError{Resource: "conversation", ID: conversationID}
	}
	return nil
}

func (s *MongoStore) UpdateConversation(ctx context.Context, unixTime int64, conversationID string) error {
	participants, err := registrystore.Participants(conversationID)
	if err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, username := range participants {
		g.Go(func() error {
			return s.upsertConversation(gctx, username, conversationID, participants, unixTime)
		})
	}
	return g.Wait()
}

func (s *MongoStore) upsertConversation(ctx context.Context, username, conversationID string, participants []string, unixTime int64) error {
	filter := bson.M{
		"partition_key": registrystore.IndexPartition(username),
		"id":            registrystore.IndexID(conversationID),
	}
	update := bson.M{
		"$max":         bson.M{"last_modified_unix_time": unixTime},
		"$setOnInsert": bson.M{"participants": participants},
	}
	opts := options.UpdateOne().SetUpsert(true)
	_, err := s.conversations().UpdateOne(ctx, filter, update, opts)
	if mongo.IsDuplicateKeyError(err) {
		// Lost an insert race with a concurrent upsert; the record exists now.
		_, err = s.conversations().UpdateOne(ctx, filter, update, opts)
	}
	return translate("upsert conversation", err)
}

func (s *MongoStore) GetConversations(ctx context.Context, username string, query registrystore.PageQuery) (*registrystore.ConversationPage, error) {
	after, err := pagination.Decode(query.ContinuationToken)
	if err != nil {
		return nil, err
	}
	filter := pageFilter(bson.M{"partition_key": registrystore.IndexPartition(username)}, "last_modified_unix_time", query.LastSeenUnixTime, after)
	cur, err := s.conversations().Find(ctx, filter, pageOptions("last_modified_unix_time", query.Limit))
	if err != nil {
		return nil, translate("list conversations", err)
	}
	var docs []conversationDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, translate("decode conversations", err)
	}

	docs, token := pagination.Trim(docs, query.Limit, func(d conversationDoc) pagination.Position {
		return pagination.Position{UnixTime: d.LastModifiedUnixTime, ID: d.ID}
	})
	convs := make([]model.Conversation, len(docs))
	for i, d := range docs {
		convs[i] = *d.toModel()
	}
	return &registrystore.ConversationPage{Conversations: convs, ContinuationToken: token}, nil
}

var _ registrystore.DocumentStore = (*MongoStore)(nil)
