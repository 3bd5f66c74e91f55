package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const usersCollection = "users"

// MongoStore はユーザーを MongoDB の users コレクションに保存します。
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// ConnectMongo は MongoDB に接続し、email の一意インデックスを作成した MongoStore を返します。
func ConnectMongo(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	store := NewMongoStore(client, client.Database(database).Collection(usersCollection))
	if err := store.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return store, nil
}

// NewMongoStore は既存のクライアントとコレクションから MongoStore を作成します。
func NewMongoStore(client *mongo.Client, coll *mongo.Collection) *MongoStore {
	return &MongoStore{client: client, coll: coll}
}

// EnsureIndexes は email の一意インデックスを作成します。
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("email_unique"),
	})
	if err != nil {
		return fmt.Errorf("create email index: %w", err)
	}
	return nil
}

func (s *MongoStore) Create(ctx context.Context, u *User) error {
	if u == nil {
		return fmt.Errorf("user is nil")
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now

	if _, err := s.coll.InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateEmail
		}
		return err
	}
	return nil
}

func (s *MongoStore) FindByID(ctx context.Context, id string) (*User, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *MongoStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.findOne(ctx, bson.M{"email": email})
}

func (s *MongoStore) FindByToken(ctx context.Context, id, token string) (*User, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	return s.findOne(ctx, bson.M{"_id": id, "token": token})
}

func (s *MongoStore) UpdateProfile(ctx context.Context, id string, p Profile) error {
	set := bson.M{
		"name":      p.Name,
		"lastname":  p.LastName,
		"image":     p.Image,
		"role":      p.Role,
		"updatedAt": time.Now().UTC(),
	}
	if p.Password != "" {
		set["password"] = p.Password
	}
	_, err := s.updateOne(ctx, bson.M{"_id": id}, set)
	return err
}

func (s *MongoStore) SetToken(ctx context.Context, id, token string, exp int64) error {
	_, err := s.updateOne(ctx, bson.M{"_id": id}, bson.M{
		"token":     token,
		"tokenExp":  exp,
		"updatedAt": time.Now().UTC(),
	})
	return err
}

func (s *MongoStore) ClearToken(ctx context.Context, id string) error {
	return s.SetToken(ctx, id, "", 0)
}

// ClearTokenIfMatch は {_id, token} を条件にした単一ドキュメント更新で比較と消去を原子的に行います。
func (s *MongoStore) ClearTokenIfMatch(ctx context.Context, id, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id, "token": token}, bson.M{"$set": bson.M{
		"token":     "",
		"tokenExp":  int64(0),
		"updatedAt": time.Now().UTC(),
	}})
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

// Close は MongoDB との接続を切断します。
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.M) (*User, error) {
	var u User
	if err := s.coll.FindOne(ctx, filter).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *MongoStore) updateOne(ctx context.Context, filter bson.M, set bson.M) (*mongo.UpdateResult, error) {
	res, err := s.coll.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return nil, err
	}
	if res.MatchedCount == 0 {
		return nil, ErrNotFound
	}
	return res, nil
}
