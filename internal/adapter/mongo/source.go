// Package mongo reads legacy sensor documents from the third-party document
// store that preceded the Postgres deployment. It exists only for the
// one-off historical importer.
package mongo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/couchcryptid/lorawan-telemetry-service/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// LegacyDocument is the shape of one document in the legacy collection.
// Older documents predate the dedup feature and carry no unique_id; the
// importer derives one from the retained payload instead.
type LegacyDocument struct {
	ID          primitive.ObjectID `bson:"_id"`
	DeviceID    string             `bson:"device_id,omitempty"`
	UniqueID    string             `bson:"unique_id,omitempty"`
	ReceivedAt  time.Time          `bson:"received_at,omitempty"`
	FullPayload bson.M             `bson:"full_payload,omitempty"`
}

// Source streams legacy documents from one collection.
type Source struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewSource connects to the document store and validates the connection.
func NewSource(ctx context.Context, uri, database, collection string) (*Source, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &Source{
		client: client,
		coll:   client.Database(database).Collection(collection),
	}, nil
}

// Each calls fn for every document in the collection, in insertion order.
// A document whose payload cannot be mapped is passed to fn as a zero event
// with the decode error; fn decides whether to skip or abort.
func (s *Source) Each(ctx context.Context, fn func(doc LegacyDocument, event domain.UplinkEvent, err error) error) error {
	cursor, err := s.coll.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return fmt.Errorf("query legacy collection: %w", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc LegacyDocument
		if err := cursor.Decode(&doc); err != nil {
			return fmt.Errorf("decode legacy document: %w", err)
		}

		event, mapErr := mapDocument(doc)
		if err := fn(doc, event, mapErr); err != nil {
			return err
		}
	}
	return cursor.Err()
}

// Close disconnects from the document store.
func (s *Source) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// mapDocument rebuilds an UplinkEvent from a legacy document's retained
// payload, so the importer runs imported rows through the same
// normalization path as live webhook traffic.
func mapDocument(doc LegacyDocument) (domain.UplinkEvent, error) {
	if len(doc.FullPayload) == 0 {
		return domain.UplinkEvent{}, fmt.Errorf("document %s has no retained payload", doc.ID.Hex())
	}

	raw, err := json.Marshal(doc.FullPayload)
	if err != nil {
		return domain.UplinkEvent{}, fmt.Errorf("re-encode payload for %s: %w", doc.ID.Hex(), err)
	}

	event, err := domain.ParseUplinkEvent(raw)
	if err != nil {
		return domain.UplinkEvent{}, fmt.Errorf("map document %s: %w", doc.ID.Hex(), err)
	}

	// Preserve the legacy dedup key when the document has one; otherwise the
	// fingerprint is derived from the payload exactly as on the live path.
	event.UniqueID = doc.UniqueID

	return event, nil
}
