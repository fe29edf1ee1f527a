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


// Package storage provides the storage abstraction layer for the support
// center.
//
// It defines two repository interfaces that decouple storage backends from
// the orchestration core and the ingestion pipeline:
//
//   - TaskArchive: outcome records of finished tasks, with TTL retention
//   - DocumentRepository: scraped documents and their embedding vectors,
//     including the vector similarity scan the "vector-store" dependency
//     exposes
//
// Two backends are provided: storage/badger (embedded, used by default and
// by tests in in-memory mode) and storage/mongo (a TaskArchive backed by a
// MongoDB TTL index for deployments that already run Mongo).
//
// Public backend constructors return the interface types so consumers
// never couple to a concrete backend.
//
// Records are serialized with hand-written MUS serializers
// (TaskRecordMUS, DocumentMUS); timestamps are stored as Unix
// microseconds.
//
// All implementations must be thread-safe; all methods accept a
// context.Context for cancellation.
package storage
