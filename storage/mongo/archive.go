// Copyright 2025 Support Center Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package mongo provides a storage.TaskArchive backed by MongoDB, for
// deployments that already run Mongo and want task outcomes queryable
// across processes. Retention uses a TTL index on the record's finish
// time, so expiry is enforced server-side.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oripridan-dot/support-center/core"
	"github.com/oripridan-dot/support-center/storage"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	databaseName   = "supportcenter"
	collectionName = "task_records"
	connectTimeout = 10 * time.Second
)

// taskDocument is the BSON projection of a core.TaskRecord.
type taskDocument struct {
	ID          string        `bson:"_id"`
	Category    int           `bson:"category"`
	Priority    int           `bson:"priority"`
	Status      int           `bson:"status"`
	Attempts    int           `bson:"attempts"`
	MaxRetries  int           `bson:"maxRetries"`
	LastError   string        `bson:"lastError,omitempty"`
	SubmittedAt time.Time     `bson:"submittedAt"`
	FinishedAt  time.Time     `bson:"finishedAt"`
	Duration    time.Duration `bson:"durationNs"`
}

// TaskArchive implements storage.TaskArchive on a MongoDB collection.
type TaskArchive struct {
	client     *mongo.Client
	collection *mongo.Collection
}

var _ storage.TaskArchive = (*TaskArchive)(nil)

// NewTaskArchive connects to MongoDB and prepares the task_records
// collection with a TTL index expiring records ttl after FinishedAt.
// A ttl of 0 keeps records indefinitely.
func NewTaskArchive(uri string, ttl time.Duration) (storage.TaskArchive, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to create MongoDB client: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	collection := client.Database(databaseName).Collection(collectionName)

	if ttl > 0 {
		_, err = collection.Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: "finishedAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(ttl.Seconds())),
		})
		if err != nil {
			_ = client.Disconnect(ctx)
			return nil, fmt.Errorf("failed to create TTL index: %w", err)
		}
	}

	return &TaskArchive{client: client, collection: collection}, nil
}

// PutTask upserts a finished task record.
func (a *TaskArchive) PutTask(ctx context.Context, record *core.TaskRecord) error {
	doc := taskDocument{
		ID:          string(record.Id),
		Category:    int(record.Category),
		Priority:    int(record.Priority),
		Status:      int(record.Status),
		Attempts:    record.Attempts,
		MaxRetries:  record.MaxRetries,
		LastError:   record.LastError,
		SubmittedAt: record.SubmittedAt,
		FinishedAt:  record.FinishedAt,
		Duration:    record.Duration,
	}

	_, err := a.collection.ReplaceOne(ctx,
		bson.M{"_id": doc.ID},
		doc,
		options.Replace().SetUpsert(true))
	return err
}

// GetTask retrieves a task record by id.
func (a *TaskArchive) GetTask(ctx context.Context, id core.TaskID) (*core.TaskRecord, error) {
	var doc taskDocument
	err := a.collection.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}

	return &core.TaskRecord{
		Id:          core.TaskID(doc.ID),
		Category:    core.Category(doc.Category),
		Priority:    core.Priority(doc.Priority),
		Status:      core.TaskStatus(doc.Status),
		Attempts:    doc.Attempts,
		MaxRetries:  doc.MaxRetries,
		LastError:   doc.LastError,
		SubmittedAt: doc.SubmittedAt,
		FinishedAt:  doc.FinishedAt,
		Duration:    doc.Duration,
	}, nil
}

// Close disconnects the MongoDB client.
func (a *TaskArchive) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	return a.client.Disconnect(ctx)
}
