package project

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// Project is the tracked entity whose mutations fan out on the public
// entity-list topic.
type Project struct {
	Id        string    `json:"id" bson:"_id"`
	Name      string    `json:"name" bson:"name"`
	Status    string    `json:"status" bson:"status"`
	Owner     string    `json:"owner" bson:"owner"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

func NewProjectId() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

type ListOptions struct {
	Limit  int
	Offset int
}

type Store interface {
	Setup(ctx context.Context) error
	Insert(ctx context.Context, project Project) error
	Update(ctx context.Context, project Project) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (Project, error)
	List(ctx context.Context, opts ListOptions) ([]Project, error)
}
