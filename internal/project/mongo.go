package project

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
	collection := client.Database(database).Collection("projects")

	return &MongoStore{
		collection,
	}
}

func (s *MongoStore) Setup(ctx context.Context) error {
	listIndexModel := mongo.IndexModel{
		Keys: bson.D{{Key: "updatedAt", Value: -1}},
	}

	_, err := s.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{listIndexModel})

	return err
}

func (s *MongoStore) Insert(ctx context.Context, project Project) error {
	_, err := s.collection.InsertOne(ctx, project)

	return err
}

func (s *MongoStore) Update(ctx context.Context, project Project) error {
	result, err := s.collection.ReplaceOne(ctx, bson.M{"_id": project.Id}, project)
	if err != nil {
		return err
	}

	if result.MatchedCount == 0 {
		return ierr.New(ierr.ErrorCodeNotFound, errors.New("project not found"))
	}

	return nil
}

func (s *MongoStore) Delete(ctx context.Context, id string) error {
	result, err := s.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}

	if result.DeletedCount == 0 {
		return ierr.New(ierr.ErrorCodeNotFound, errors.New("project not found"))
	}

	return nil
}

func (s *MongoStore) Get(ctx context.Context, id string) (Project, error) {
	var project Project

	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&project)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Project{}, ierr.New(ierr.ErrorCodeNotFound, errors.New("project not found"))
	}
	if err != nil {
		return Project{}, err
	}

	return project, nil
}

func (s *MongoStore) List(ctx context.Context, opts ListOptions) ([]Project, error) {
	findOpts := options.Find().
		SetSort(bson.D{{Key: "updatedAt", Value: -1}}).
		SetSkip(int64(opts.Offset)).
		SetLimit(int64(opts.Limit))

	cursor, err := s.collection.Find(ctx, bson.M{}, findOpts)
	if err != nil {
		return nil, err
	}

	projects := []Project{}
	err = cursor.All(ctx, &projects)
	if err != nil {
		return nil, err
	}

	return projects, nil
}
