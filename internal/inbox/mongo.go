package inbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/charlesng35/campuslink/internal/models"
)

const defaultMongoCollection = "notifications"

// MongoConfig holds document store connection settings.
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
	Timeout    time.Duration
}

// ConnectMongo dials the document store and verifies the connection with a ping.
func ConnectMongo(ctx context.Context, cfg MongoConfig) (*mongo.Client, error) {
	uri := strings.TrimSpace(cfg.URI)
	if uri == "" {
		return nil, errors.New("inbox: mongodb uri is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri).SetTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("inbox: connect mongodb: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("inbox: ping mongodb: %w", err)
	}
	return client, nil
}

// MongoStore keeps notifications as documents in a recipient-indexed collection.
type MongoStore struct {
	c   *mongo.Collection
	now func() time.Time
}

// NewMongoStore binds a Store to the configured collection.
func NewMongoStore(db *mongo.Database, collection string) (*MongoStore, error) {
	if db == nil {
		return nil, errors.New("inbox: mongo database is required")
	}
	if strings.TrimSpace(collection) == "" {
		collection = defaultMongoCollection
	}
	return &MongoStore{
		c:   db.Collection(collection),
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

// EnsureIndexes creates the recipient inbox indexes.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "recipient_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_notifications_recipient"),
		},
		{
			Keys:    bson.D{{Key: "recipient_id", Value: 1}, {Key: "read", Value: 1}},
			Options: options.Index().SetName("idx_notifications_recipient_read"),
		},
	}
	if _, err := s.c.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("inbox: create indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) Insert(ctx context.Context, n *models.Notification) error {
	if n == nil {
		return errors.New("inbox: notification is nil")
	}
	stamp(n, s.now())
	if _, err := s.c.InsertOne(ctx, n); err != nil {
		return fmt.Errorf("inbox: insert notification: %w", err)
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, recipientID, id string) (*models.Notification, error) {
	var row models.Notification
	err := s.c.FindOne(ctx, ownedFilter(recipientID, id)).Decode(&row)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("inbox: load notification: %w", err)
	}
	return &row, nil
}

func (s *MongoStore) List(ctx context.Context, q Query) ([]models.Notification, error) {
	q = q.Normalised()

	filter := bson.M{"recipient_id": q.RecipientID}
	if q.UnreadOnly {
		filter["read"] = false
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(q.Limit)).
		SetSkip(int64(q.Offset))

	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("inbox: list notifications: %w", err)
	}
	defer cur.Close(ctx)

	rows := make([]models.Notification, 0, q.Limit)
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("inbox: decode notifications: %w", err)
	}
	return rows, nil
}

func (s *MongoStore) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	count, err := s.c.CountDocuments(ctx, bson.M{"recipient_id": recipientID, "read": false})
	if err != nil {
		return 0, fmt.Errorf("inbox: count unread: %w", err)
	}
	return count, nil
}

func (s *MongoStore) MarkRead(ctx context.Context, recipientID, id string, at time.Time) (*models.Notification, error) {
	at = at.UTC()
	filter := ownedFilter(recipientID, id)
	filter["read"] = false

	update := bson.M{"$set": bson.M{"read": true, "read_at": at, "updated_at": at}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var row models.Notification
	err := s.c.FindOneAndUpdate(ctx, filter, update, opts).Decode(&row)
	if errors.Is(err, mongo.ErrNoDocuments) {
		// Either missing or already read; Get tells the two apart.
		return s.Get(ctx, recipientID, id)
	}
	if err != nil {
		return nil, fmt.Errorf("inbox: mark read: %w", err)
	}
	return &row, nil
}

func (s *MongoStore) MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int64, error) {
	at = at.UTC()
	result, err := s.c.UpdateMany(ctx,
		bson.M{"recipient_id": recipientID, "read": false},
		bson.M{"$set": bson.M{"read": true, "read_at": at, "updated_at": at}},
	)
	if err != nil {
		return 0, fmt.Errorf("inbox: mark all read: %w", err)
	}
	return result.ModifiedCount, nil
}

func (s *MongoStore) Delete(ctx context.Context, recipientID, id string) error {
	result, err := s.c.DeleteOne(ctx, ownedFilter(recipientID, id))
	if err != nil {
		return fmt.Errorf("inbox: delete notification: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) PurgeReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.c.DeleteMany(ctx, bson.M{"read": true, "created_at": bson.M{"$lt": cutoff.UTC()}})
	if err != nil {
		return 0, fmt.Errorf("inbox: purge read notifications: %w", err)
	}
	return result.DeletedCount, nil
}

func ownedFilter(recipientID, id string) bson.M {
	return bson.M{"_id": id, "recipient_id": recipientID}
}
