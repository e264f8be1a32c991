package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainprofile "github.com/gtpankaj4/campusmesh-sub001/internal/domain/profile"
)

// ProfileRepository resolves display attributes from the document store.
type ProfileRepository struct {
	col *mongo.Collection
}

func NewProfileRepository(db *mongo.Database) *ProfileRepository {
	return &ProfileRepository{col: db.Collection("profiles")}
}

func (r *ProfileRepository) ByID(ctx context.Context, id string) (*domainprofile.Profile, error) {
	var doc profileDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainprofile.ErrNotFound
		}
		return nil, err
	}
	return doc.toProfile(), nil
}

func (r *ProfileRepository) Save(ctx context.Context, p *domainprofile.Profile) error {
	if p == nil || p.ID == "" {
		return domainprofile.ErrIDRequired
	}
	doc := newProfileDocument(p)
	opts := options.Replace().SetUpsert(true)
	_, err := r.col.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, opts)
	return err
}

type profileDocument struct {
	ID        string `bson:"_id"`
	Name      string `bson:"name"`
	Email     string `bson:"email"`
	CreatedAt int64  `bson:"created_at"`
	UpdatedAt int64  `bson:"updated_at"`
}

func newProfileDocument(p *domainprofile.Profile) profileDocument {
	return profileDocument{
		ID:        p.ID,
		Name:      p.Name,
		Email:     p.Email,
		CreatedAt: p.CreatedAt.UnixMilli(),
		UpdatedAt: p.UpdatedAt.UnixMilli(),
	}
}

func (d profileDocument) toProfile() *domainprofile.Profile {
	return &domainprofile.Profile{
		ID:        d.ID,
		Name:      d.Name,
		Email:     d.Email,
		CreatedAt: timestampToTime(d.CreatedAt),
		UpdatedAt: timestampToTime(d.UpdatedAt),
	}
}

func timestampToTime(millis int64) time.Time {
	if millis == 0 {
		return time.Time{}
	}
	return time.UnixMilli(millis).UTC()
}

var _ domainprofile.Repository = (*ProfileRepository)(nil)
