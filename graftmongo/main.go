// Package graftmongo generates graft accessor sets backed by MongoDB.
// Collections stand in for tables, documents for rows, and a dedicated link
// collection for each many-to-many link table.
package graftmongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/graftdb/graft"
)

// =====================================
// Provider Implementation
// =====================================

// Provider implements graft.Provider using MongoDB.
type Provider struct {
	client   *mongo.Client
	database *mongo.Database
	config   graft.Config
}

// Factory implements graft.ProviderFactory.
type Factory struct{}

// Create creates a new MongoDB provider instance.
func (f *Factory) Create(config graft.Config) (graft.Provider, error) {
	clientOpts := options.Client().ApplyURI(connectionURI(config))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, graft.Error{
			Type:    graft.ErrorTypeConnection,
			Message: "failed to connect to MongoDB",
			Cause:   err,
		}
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, graft.Error{
			Type:    graft.ErrorTypeConnection,
			Message: "failed to ping MongoDB",
			Cause:   err,
		}
	}

	return &Provider{
		client:   client,
		database: client.Database(config.Database),
		config:   config,
	}, nil
}

// SupportedDrivers returns the list of supported database drivers.
func (f *Factory) SupportedDrivers() []string {
	return []string{"mongodb", "mongo"}
}

// connectionURI builds a MongoDB connection URI.
func connectionURI(config graft.Config) string {
	if config.ConnectionURL != "" {
		return config.ConnectionURL
	}
	uri := "mongodb://"
	if config.Username != "" {
		uri += config.Username
		if config.Password != "" {
			uri += ":" + config.Password
		}
		uri += "@"
	}
	uri += fmt.Sprintf("%s:%d", config.Host, config.Port)
	return uri
}

// Database exposes the underlying database handle, e.g. for index setup.
func (p *Provider) Database() *mongo.Database {
	return p.database
}

// Health checks the MongoDB connection.
func (p *Provider) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.client.Ping(ctx, readpref.Primary()); err != nil {
		return graft.Error{Type: graft.ErrorTypeConnection, Message: "MongoDB ping failed", Cause: err}
	}
	return nil
}

// Close disconnects from MongoDB.
func (p *Provider) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.client.Disconnect(ctx)
}

// Info returns provider metadata.
func (p *Provider) Info() graft.ProviderInfo {
	return graft.ProviderInfo{
		Name:         "mongodb",
		Version:      "1.0.0",
		DatabaseType: graft.DatabaseTypeDocument,
		Features: []graft.Feature{
			graft.FeatureGeneratedKeys,
			graft.FeaturePartialUpdates,
			graft.FeatureSecondaryIndexes,
		},
	}
}

// =====================================
// Accessor Generation
// =====================================

// Accessors generates the accessor set for a collection. The natural id
// column is "_id" with server-generated ObjectIDs, but any unique document
// field works.
func (p *Provider) Accessors(collection, idColumn string) graft.Accessors {
	coll := p.database.Collection(collection)
	return graft.Accessors{
		Read: func(ctx context.Context, id any) (graft.Row, error) {
			var doc map[string]any
			err := coll.FindOne(ctx, bson.M{idColumn: normalizeID(id)}).Decode(&doc)
			if errors.Is(err, mongo.ErrNoDocuments) {
				return nil, nil
			}
			if err != nil {
				return nil, err
			}
			return graft.Row(doc), nil
		},
		Insert: func(ctx context.Context, row graft.Row) (graft.Row, error) {
			doc := map[string]any(row.Clone())
			res, err := coll.InsertOne(ctx, doc)
			if err != nil {
				return nil, err
			}
			out := row.Clone()
			if _, ok := out[idColumn]; !ok {
				out[idColumn] = res.InsertedID
			}
			return out, nil
		},
		Update: func(ctx context.Context, row graft.Row) (graft.Row, error) {
			id, ok := row[idColumn]
			if !ok || id == nil {
				return nil, graft.Error{
					Type:    graft.ErrorTypePrecondition,
					Message: fmt.Sprintf("update on %q without %q field", collection, idColumn),
				}
			}
			set := bson.M{}
			for field, value := range row {
				if field == idColumn {
					continue
				}
				set[field] = value
			}
			if len(set) == 0 {
				return row, nil
			}
			_, err := coll.UpdateOne(ctx, bson.M{idColumn: normalizeID(id)}, bson.M{"$set": set})
			if err != nil {
				return nil, err
			}
			return row, nil
		},
		Delete: func(ctx context.Context, id any) (int64, error) {
			res, err := coll.DeleteOne(ctx, bson.M{idColumn: normalizeID(id)})
			if err != nil {
				return 0, err
			}
			return res.DeletedCount, nil
		},
	}
}

// ForeignKeyQuery selects the collection's documents whose foreign-key field
// equals the owner id.
func (p *Provider) ForeignKeyQuery(collection, fkColumn string) graft.QueryFunc {
	coll := p.database.Collection(collection)
	return func(ctx context.Context, id any) ([]graft.Row, error) {
		cursor, err := coll.Find(ctx, bson.M{fkColumn: normalizeID(id)})
		if err != nil {
			return nil, err
		}
		return decodeAll(ctx, cursor)
	}
}

// LinkQuery resolves a many-to-many relation in two steps: the link
// collection yields the target ids, then the targets are fetched with $in.
// Link documents never reach the caller, so their key fields are stripped by
// construction.
func (p *Provider) LinkQuery(collection, idColumn, linkCollection, ownColumn, otherColumn string) graft.QueryFunc {
	links := p.database.Collection(linkCollection)
	targets := p.database.Collection(collection)
	return func(ctx context.Context, id any) ([]graft.Row, error) {
		cursor, err := links.Find(ctx, bson.M{ownColumn: normalizeID(id)})
		if err != nil {
			return nil, err
		}
		linkRows, err := decodeAll(ctx, cursor)
		if err != nil {
			return nil, err
		}
		if len(linkRows) == 0 {
			return []graft.Row{}, nil
		}
		ids := make([]any, 0, len(linkRows))
		for _, link := range linkRows {
			ids = append(ids, link[otherColumn])
		}
		cursor, err = targets.Find(ctx, bson.M{idColumn: bson.M{"$in": ids}})
		if err != nil {
			return nil, err
		}
		return decodeAll(ctx, cursor)
	}
}

// LinkUpdater performs full link replacement on the link collection.
func (p *Provider) LinkUpdater(linkCollection, ownColumn, otherColumn, targetIDColumn string) graft.LinkUpdateFunc {
	links := p.database.Collection(linkCollection)
	return func(ctx context.Context, selfID any, children []graft.Row) error {
		if _, err := links.DeleteMany(ctx, bson.M{ownColumn: normalizeID(selfID)}); err != nil {
			return err
		}
		if len(children) == 0 {
			return nil
		}
		docs := make([]interface{}, 0, len(children))
		for _, child := range children {
			docs = append(docs, bson.M{
				ownColumn:   normalizeID(selfID),
				otherColumn: child[targetIDColumn],
			})
		}
		_, err := links.InsertMany(ctx, docs)
		return err
	}
}

// =====================================
// Helper Functions
// =====================================

// normalizeID converts hex strings to ObjectIDs so that ids survive a trip
// through JSON. Values that are already ObjectIDs (the common case when ids
// come back from the store) pass through unchanged.
func normalizeID(id any) any {
	if s, ok := id.(string); ok {
		if oid, err := primitive.ObjectIDFromHex(s); err == nil {
			return oid
		}
	}
	return id
}

func decodeAll(ctx context.Context, cursor *mongo.Cursor) ([]graft.Row, error) {
	defer cursor.Close(ctx)
	rows := []graft.Row{}
	for cursor.Next(ctx) {
		var doc map[string]any
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		rows = append(rows, graft.Row(doc))
	}
	return rows, cursor.Err()
}
