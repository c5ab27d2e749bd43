package notification

import (
	"context"
	"errors"

	"github.com/goevery/tracker/internal/ierr"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type MongoStore struct {
	collection *mongo.Collection
}

func NewMongoStore(client *mongo.Client, database string) *MongoStore {
	collection := client.Database(database).Collection("notifications")

	return &MongoStore{
		collection,
	}
}

func (s *MongoStore) Setup(ctx context.Context) error {
	listIndexModel := mongo.IndexModel{
		Keys: bson.D{
			{Key: "userId", Value: 1},
			{Key: "_id", Value: -1},
		},
	}

	unreadIndexModel := mongo.IndexModel{
		Keys: bson.D{
			{Key: "userId", Value: 1},
			{Key: "isRead", Value: 1},
		},
	}

	_, err := s.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{listIndexModel, unreadIndexModel})

	return err
}

func (s *MongoStore) Insert(ctx context.Context, notification Notification) error {
	_, err := s.collection.InsertOne(ctx, notification)

	return err
}

func (s *MongoStore) List(ctx context.Context, userId string, opts ListOptions) ([]Notification, error) {
	filter := bson.M{"userId": userId}
	if opts.UnreadOnly {
		filter["isRead"] = false
	}

	findOpts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: -1}}).
		SetSkip(int64(opts.Offset)).
		SetLimit(int64(opts.Limit))

	cursor, err := s.collection.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, err
	}

	notifications := []Notification{}
	err = cursor.All(ctx, &notifications)
	if err != nil {
		return nil, err
	}

	return notifications, nil
}

func (s *MongoStore) CountUnread(ctx context.Context, userId string) (int64, error) {
	return s.collection.CountDocuments(ctx, bson.M{"userId": userId, "isRead": false})
}

func (s *MongoStore) MarkRead(ctx context.Context, userId string, id string) error {
	result, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": id, "userId": userId},
		bson.M{"$set": bson.M{"isRead": true}})
	if err != nil {
		return err
	}

	if result.MatchedCount == 0 {
		return ierr.New(ierr.ErrorCodeNotFound, errors.New("notification not found"))
	}

	return nil
}

func (s *MongoStore) MarkAllRead(ctx context.Context, userId string) error {
	_, err := s.collection.UpdateMany(ctx,
		bson.M{"userId": userId, "isRead": false},
		bson.M{"$set": bson.M{"isRead": true}})

	return err
}

func (s *MongoStore) Delete(ctx context.Context, userId string, id string) error {
	result, err := s.collection.DeleteOne(ctx, bson.M{"_id": id, "userId": userId})
	if err != nil {
		return err
	}

	if result.DeletedCount == 0 {
		return ierr.New(ierr.ErrorCodeNotFound, errors.New("notification not found"))
	}

	return nil
}

func (s *MongoStore) DeleteRead(ctx context.Context, userId string) (int64, error) {
	result, err := s.collection.DeleteMany(ctx, bson.M{"userId": userId, "isRead": true})
	if err != nil {
		return 0, err
	}

	return result.DeletedCount, nil
}
