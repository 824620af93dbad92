package documents

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepo implements Repo on a MongoDB collection. The document id is the
// collection _id, so duplicate commits fail on the primary key without a
// separate unique index.
type MongoRepo struct {
	col *mongo.Collection
}

// NewMongoRepo constructs a MongoRepo and ensures the two secondary access
// paths are indexed: owner listings and location listings, both in creation
// order.
func NewMongoRepo(ctx context.Context, col *mongo.Collection) (*MongoRepo, error) {
	_, err := col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "organizationId", Value: 1}, {Key: "ownerId", Value: 1}, {Key: "createdAt", Value: 1}}},
		{Keys: bson.D{{Key: "organizationId", Value: 1}, {Key: "location", Value: 1}, {Key: "createdAt", Value: 1}}},
	})
	if err != nil {
		return nil, err
	}
	return &MongoRepo{col: col}, nil
}

var _ Repo = (*MongoRepo)(nil)

// mongoDocument is the stored shape of a record. Kept separate from the
// domain model so wire tags never leak out of this file.
type mongoDocument struct {
	ID               string     `bson:"_id"`
	OrganizationID   string     `bson:"organizationId"`
	OwnerID          string     `bson:"ownerId"`
	FileName         string     `bson:"fileName"`
	FileExtension    string     `bson:"fileExtension"`
	ContentType      string     `bson:"contentType"`
	SizeBytes        int64      `bson:"sizeBytes"`
	ContentSHA256    string     `bson:"contentSha256,omitempty"`
	BlobKey          string     `bson:"blobKey"`
	Location         string     `bson:"location"`
	Category         string     `bson:"category,omitempty"`
	ExpiryDate       *time.Time `bson:"expiryDate,omitempty"`
	Sensitivity      int        `bson:"sensitivity"`
	Version          int        `bson:"version"`
	Status           string     `bson:"status"`
	ExtractedTextKey string     `bson:"extractedTextKey,omitempty"`
	ExtractedAt      *time.Time `bson:"extractedAt,omitempty"`
	CreatedAt        time.Time  `bson:"createdAt"`
	UpdatedAt        time.Time  `bson:"updatedAt"`
}

func toMongoDocument(d Document) mongoDocument {
	return mongoDocument{
		ID:               d.ID,
		OrganizationID:   d.OrganizationID,
		OwnerID:          d.OwnerID,
		FileName:         d.FileName,
		FileExtension:    d.FileExtension,
		ContentType:      d.ContentType,
		SizeBytes:        d.SizeBytes,
		ContentSHA256:    d.ContentSHA256,
		BlobKey:          d.BlobKey,
		Location:         d.Location,
		Category:         d.Category,
		ExpiryDate:       d.ExpiryDate,
		Sensitivity:      d.Sensitivity,
		Version:          d.Version,
		Status:           string(d.Status),
		ExtractedTextKey: d.ExtractedTextKey,
		ExtractedAt:      d.ExtractedAt,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

func fromMongoDocument(m mongoDocument) Document {
	d := Document{
		ID:               m.ID,
		OrganizationID:   m.OrganizationID,
		OwnerID:          m.OwnerID,
		FileName:         m.FileName,
		FileExtension:    m.FileExtension,
		ContentType:      m.ContentType,
		SizeBytes:        m.SizeBytes,
		ContentSHA256:    m.ContentSHA256,
		BlobKey:          m.BlobKey,
		Location:         m.Location,
		Category:         m.Category,
		Sensitivity:      m.Sensitivity,
		Version:          m.Version,
		Status:           Status(m.Status),
		ExtractedTextKey: m.ExtractedTextKey,
		CreatedAt:        m.CreatedAt.UTC(),
		UpdatedAt:        m.UpdatedAt.UTC(),
	}
	if m.ExpiryDate != nil {
		t := m.ExpiryDate.UTC()
		d.ExpiryDate = &t
	}
	if m.ExtractedAt != nil {
		t := m.ExtractedAt.UTC()
		d.ExtractedAt = &t
	}
	return d
}

// Create inserts a new record.
func (r *MongoRepo) Create(ctx context.Context, doc Document) error {
	_, err := r.col.InsertOne(ctx, toMongoDocument(doc))
	if mongo.IsDuplicateKeyError(err) {
		return ErrConflict
	}
	return err
}

// Get returns a record by id.
func (r *MongoRepo) Get(ctx context.Context, id string) (Document, error) {
	var m mongoDocument
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	return fromMongoDocument(m), nil
}

// Update replaces an existing record.
func (r *MongoRepo) Update(ctx context.Context, doc Document) error {
	res, err := r.col.ReplaceOne(ctx, bson.M{"_id": doc.ID}, toMongoDocument(doc))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a record.
func (r *MongoRepo) Delete(ctx context.Context, id string) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns one page matching the query in creation order. Skip/limit run
// server-side; one extra row decides HasMore.
func (r *MongoRepo) List(ctx context.Context, q Query) (Page, error) {
	page := q.Page
	if page < 1 {
		page = 1
	}
	size := q.PageSize
	if size < 1 {
		size = 20
	}

	filter := bson.M{"organizationId": q.OrganizationID}
	if q.OwnerID != "" {
		filter["ownerId"] = q.OwnerID
	}
	if q.Location != "" {
		filter["location"] = q.Location
	}
	if q.Category != "" {
		filter["category"] = q.Category
	}
	if q.FileExtension != "" {
		filter["fileExtension"] = q.FileExtension
	}
	if q.Sensitivity != 0 {
		filter["sensitivity"] = q.Sensitivity
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}).
		SetSkip(int64((page - 1) * size)).
		SetLimit(int64(size + 1))

	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return Page{}, err
	}
	defer cur.Close(ctx)

	docs := make([]Document, 0, size)
	for cur.Next(ctx) {
		var m mongoDocument
		if err := cur.Decode(&m); err != nil {
			return Page{}, err
		}
		docs = append(docs, fromMongoDocument(m))
	}
	if err := cur.Err(); err != nil {
		return Page{}, err
	}

	hasMore := len(docs) > size
	if hasMore {
		docs = docs[:size]
	}
	return Page{Documents: docs, HasMore: hasMore}, nil
}

// SetStatus updates only the lifecycle status.
func (r *MongoRepo) SetStatus(ctx context.Context, id string, status Status) error {
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"status": string(status), "updatedAt": time.Now().UTC()},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// SetExtraction records the derived-text object for a document.
func (r *MongoRepo) SetExtraction(ctx context.Context, id, extractedKey string, extractedAt time.Time) error {
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"extractedTextKey": extractedKey, "extractedAt": extractedAt},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Organizations lists every organization with at least one record.
func (r *MongoRepo) Organizations(ctx context.Context) ([]string, error) {
	raw, err := r.col.Distinct(ctx, "organizationId", bson.M{})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}
