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


package badger

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/oripridan-dot/support-center/core"
	"github.com/oripridan-dot/support-center/storage"
)

// defaultTaskTTL is the retention applied to archived task records when
// the caller does not choose one.
const defaultTaskTTL = 7 * 24 * time.Hour

// TaskArchive implements storage.TaskArchive for BadgerDB. Retention uses
// Badger's native entry TTL: expired records simply disappear from reads.
type TaskArchive struct {
	backend *Backend
	ttl     time.Duration
}

var _ storage.TaskArchive = (*TaskArchive)(nil)

// NewTaskArchive creates a task archive on the given backend. A ttl of 0
// applies the default retention; a negative ttl disables expiry.
func NewTaskArchive(backend *Backend, ttl time.Duration) storage.TaskArchive {
	if ttl == 0 {
		ttl = defaultTaskTTL
	}
	return &TaskArchive{backend: backend, ttl: ttl}
}

// PutTask stores a finished task record under its id.
func (a *TaskArchive) PutTask(ctx context.Context, record *core.TaskRecord) error {
	key := makeTaskKey(record.Id)
	value := storage.MarshalTaskRecord(record)

	return a.backend.WithTx(func(tx *badger.Txn) error {
		entry := badger.NewEntry(key, value)
		if a.ttl > 0 {
			entry = entry.WithTTL(a.ttl)
		}
		if err := tx.SetEntry(entry); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// GetTask retrieves a task record by id.
func (a *TaskArchive) GetTask(ctx context.Context, id core.TaskID) (*core.TaskRecord, error) {
	var record *core.TaskRecord

	err := a.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeTaskKey(id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			record, err = storage.UnmarshalTaskRecord(val)
			return err
		})
	}, false)

	if err != nil {
		return nil, err
	}
	return record, nil
}

// Close releases archive resources. The underlying backend is shared and
// closed by its owner.
func (a *TaskArchive) Close() error {
	return nil
}
