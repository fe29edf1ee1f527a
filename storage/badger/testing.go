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
	"time"

	"github.com/oripridan-dot/support-center/storage"
)

// NewMemoryStores creates an in-memory task archive and document
// repository for testing. Caller must close the backend when done.
func NewMemoryStores(ttl time.Duration) (storage.TaskArchive, storage.DocumentRepository, *Backend, error) {
	backend, err := OpenBackend("", true)
	if err != nil {
		return nil, nil, nil, err
	}

	archive := NewTaskArchive(backend, ttl)
	docs := NewDocumentRepository(backend)
	return archive, docs, backend, nil
}
