package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pulsejet/cerium-engine/models"
	u "github.com/pulsejet/cerium-engine/utils"
)

// MongoStore implements Store on MongoDB collections "forms", "responses",
// "files" and "counters".
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// OpenMongo connects to uri and uses the named database.
func OpenMongo(ctx context.Context, uri, database string) (*MongoStore, error) {
	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(cctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}
	if err := client.Ping(cctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging mongo: %w", err)
	}
	return &MongoStore{client: client, db: client.Database(database)}, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) collection(name string) *mongo.Collection {
	return s.db.Collection(name)
}

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return err
}

func (s *MongoStore) PutForm(ctx context.Context, form models.Form) (models.Form, error) {
	if form.ID == "" {
		form.ID = uuid.New().String()
	}
	if form.Slug == "" {
		form.Slug = u.Slug()
	}
	if form.Timestamp.IsZero() {
		form.Timestamp = time.Now()
	}
	_, err := s.collection("forms").ReplaceOne(ctx, bson.M{"_id": form.ID}, form,
		options.Replace().SetUpsert(true))
	if err != nil {
		return models.Form{}, err
	}
	return form, nil
}

func (s *MongoStore) GetForm(ctx context.Context, idOrSlug string) (models.Form, error) {
	form := models.Form{}
	filt := bson.M{"$or": bson.A{
		bson.M{"_id": idOrSlug},
		bson.M{"slug": idOrSlug}}}
	err := s.collection("forms").FindOne(ctx, filt).Decode(&form)
	if err != nil {
		return models.Form{}, notFound(err)
	}
	return form, nil
}

func (s *MongoStore) ListForms(ctx context.Context, creator string) ([]models.Form, error) {
	opt := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	cur, err := s.collection("forms").Find(ctx, bson.M{"creator": creator}, opt)
	if err != nil {
		return nil, err
	}
	var forms []models.Form
	if err := cur.All(ctx, &forms); err != nil {
		return nil, err
	}
	return forms, nil
}

func (s *MongoStore) DeleteForm(ctx context.Context, id string) error {
	res, err := s.collection("forms").DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	if _, err := s.collection("responses").DeleteMany(ctx, bson.M{"formid": id}); err != nil {
		return err
	}
	_, err = s.collection("claims").DeleteMany(ctx, bson.M{"formid": id})
	return err
}

func (s *MongoStore) CreateResponse(ctx context.Context, resp models.FormResponse) (models.FormResponse, error) {
	resp.ID = uuid.New().String()
	if resp.Slug == "" {
		resp.Slug = u.Slug()
	}
	if _, err := s.collection("responses").InsertOne(ctx, resp); err != nil {
		return models.FormResponse{}, err
	}
	return resp, nil
}

func (s *MongoStore) UpdateResponse(ctx context.Context, resp models.FormResponse) error {
	res, err := s.collection("responses").ReplaceOne(ctx, bson.M{"_id": resp.ID}, resp)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) GetResponse(ctx context.Context, id string) (models.FormResponse, error) {
	resp := models.FormResponse{}
	err := s.collection("responses").FindOne(ctx, bson.M{"_id": id}).Decode(&resp)
	if err != nil {
		return models.FormResponse{}, notFound(err)
	}
	return resp, nil
}

func (s *MongoStore) ListResponses(ctx context.Context, formID string) ([]models.FormResponse, error) {
	opt := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})
	cur, err := s.collection("responses").Find(ctx, bson.M{"formid": formID}, opt)
	if err != nil {
		return nil, err
	}
	var responses []models.FormResponse
	if err := cur.All(ctx, &responses); err != nil {
		return nil, err
	}
	return responses, nil
}

func (s *MongoStore) HasResponded(ctx context.Context, formID, filler string) (bool, error) {
	n, err := s.collection("responses").CountDocuments(ctx, bson.M{"$and": bson.A{
		bson.M{"formid": formID},
		bson.M{"filler": filler},
		bson.M{"status": models.StatusSubmitted}}})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ClaimResponse inserts into "claims", keyed on form and filler, so the
// unique _id index settles concurrent submissions.
func (s *MongoStore) ClaimResponse(ctx context.Context, formID, filler string) error {
	filled, err := s.HasResponded(ctx, formID, filler)
	if err != nil {
		return err
	}
	if filled {
		return ErrAlreadyResponded
	}
	_, err = s.collection("claims").InsertOne(ctx, bson.M{
		"_id":    claimKey(formID, filler),
		"formid": formID,
		"filler": filler,
	})
	if mongo.IsDuplicateKeyError(err) {
		return ErrAlreadyResponded
	}
	return err
}

func (s *MongoStore) ReleaseResponse(ctx context.Context, formID, filler string) error {
	_, err := s.collection("claims").DeleteOne(ctx, bson.M{"_id": claimKey(formID, filler)})
	return err
}

// SaveFile takes the next id from the "files" counter.
func (s *MongoStore) SaveFile(ctx context.Context, file models.StoredFile) (models.StoredFile, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := s.collection("counters").FindOneAndUpdate(ctx,
		bson.M{"_id": "files"},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return models.StoredFile{}, fmt.Errorf("allocating file id: %w", err)
	}

	file.ID = counter.Seq
	if _, err := s.collection("files").InsertOne(ctx, file); err != nil {
		return models.StoredFile{}, err
	}
	return file, nil
}
