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


package storage

import (
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
	"github.com/oripridan-dot/support-center/core"
)

// Hand-written MUS serializers for the two archival record types.
// Timestamps are stored as Unix microseconds.

var vectorMUS = ord.NewSliceSer[float32](varint.Float32)

// TaskRecordMUS serializes core.TaskRecord.
var TaskRecordMUS = taskRecordMUS{}

type taskRecordMUS struct{}

func (taskRecordMUS) Marshal(r core.TaskRecord, bs []byte) (n int) {
	n = ord.String.Marshal(string(r.Id), bs)
	n += varint.Int.Marshal(int(r.Category), bs[n:])
	n += varint.Int.Marshal(int(r.Priority), bs[n:])
	n += varint.Int.Marshal(int(r.Status), bs[n:])
	n += varint.Int.Marshal(r.Attempts, bs[n:])
	n += varint.Int.Marshal(r.MaxRetries, bs[n:])
	n += ord.String.Marshal(r.LastError, bs[n:])
	n += varint.Int64.Marshal(r.SubmittedAt.UnixMicro(), bs[n:])
	n += varint.Int64.Marshal(r.FinishedAt.UnixMicro(), bs[n:])
	n += varint.Int64.Marshal(int64(r.Duration), bs[n:])
	return n
}

func (taskRecordMUS) Unmarshal(bs []byte) (r core.TaskRecord, n int, err error) {
	var (
		id                  string
		c, p, s             int
		submitted, finished int64
		duration            int64
		n1                  int
	)

	if id, n, err = ord.String.Unmarshal(bs); err != nil {
		return
	}
	if c, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return r, n + n1, err
	}
	n += n1
	if p, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return r, n + n1, err
	}
	n += n1
	if s, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return r, n + n1, err
	}
	n += n1
	if r.Attempts, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return r, n + n1, err
	}
	n += n1
	if r.MaxRetries, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return r, n + n1, err
	}
	n += n1
	if r.LastError, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return r, n + n1, err
	}
	n += n1
	if submitted, n1, err = varint.Int64.Unmarshal(bs[n:]); err != nil {
		return r, n + n1, err
	}
	n += n1
	if finished, n1, err = varint.Int64.Unmarshal(bs[n:]); err != nil {
		return r, n + n1, err
	}
	n += n1
	if duration, n1, err = varint.Int64.Unmarshal(bs[n:]); err != nil {
		return r, n + n1, err
	}
	n += n1

	r.Id = core.TaskID(id)
	r.Category = core.Category(c)
	r.Priority = core.Priority(p)
	r.Status = core.TaskStatus(s)
	r.SubmittedAt = time.UnixMicro(submitted).UTC()
	r.FinishedAt = time.UnixMicro(finished).UTC()
	r.Duration = time.Duration(duration)
	return r, n, nil
}

func (taskRecordMUS) Size(r core.TaskRecord) (size int) {
	size = ord.String.Size(string(r.Id))
	size += varint.Int.Size(int(r.Category))
	size += varint.Int.Size(int(r.Priority))
	size += varint.Int.Size(int(r.Status))
	size += varint.Int.Size(r.Attempts)
	size += varint.Int.Size(r.MaxRetries)
	size += ord.String.Size(r.LastError)
	size += varint.Int64.Size(r.SubmittedAt.UnixMicro())
	size += varint.Int64.Size(r.FinishedAt.UnixMicro())
	size += varint.Int64.Size(int64(r.Duration))
	return size
}

// DocumentMUS serializes core.Document.
var DocumentMUS = documentMUS{}

type documentMUS struct{}

func (documentMUS) Marshal(d core.Document, bs []byte) (n int) {
	n = varint.Uint64.Marshal(uint64(d.Id), bs)
	n += ord.String.Marshal(d.URL, bs[n:])
	n += ord.String.Marshal(d.Contents, bs[n:])
	n += varint.Int64.Marshal(d.FetchedAt.UnixMicro(), bs[n:])
	n += varint.Int64.Marshal(d.InsertedAt.UnixMicro(), bs[n:])
	n += varint.Int64.Marshal(d.UpdatedAt.UnixMicro(), bs[n:])
	n += vectorMUS.Marshal(d.Vector, bs[n:])
	return n
}

func (documentMUS) Unmarshal(bs []byte) (d core.Document, n int, err error) {
	var (
		id                         uint64
		fetched, inserted, updated int64
		n1                         int
	)

	if id, n, err = varint.Uint64.Unmarshal(bs); err != nil {
		return
	}
	if d.URL, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return d, n + n1, err
	}
	n += n1
	if d.Contents, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return d, n + n1, err
	}
	n += n1
	if fetched, n1, err = varint.Int64.Unmarshal(bs[n:]); err != nil {
		return d, n + n1, err
	}
	n += n1
	if inserted, n1, err = varint.Int64.Unmarshal(bs[n:]); err != nil {
		return d, n + n1, err
	}
	n += n1
	if updated, n1, err = varint.Int64.Unmarshal(bs[n:]); err != nil {
		return d, n + n1, err
	}
	n += n1
	if d.Vector, n1, err = vectorMUS.Unmarshal(bs[n:]); err != nil {
		return d, n + n1, err
	}
	n += n1

	d.Id = core.ID(id)
	d.FetchedAt = time.UnixMicro(fetched).UTC()
	d.InsertedAt = time.UnixMicro(inserted).UTC()
	d.UpdatedAt = time.UnixMicro(updated).UTC()
	return d, n, nil
}

func (documentMUS) Size(d core.Document) (size int) {
	size = varint.Uint64.Size(uint64(d.Id))
	size += ord.String.Size(d.URL)
	size += ord.String.Size(d.Contents)
	size += varint.Int64.Size(d.FetchedAt.UnixMicro())
	size += varint.Int64.Size(d.InsertedAt.UnixMicro())
	size += varint.Int64.Size(d.UpdatedAt.UnixMicro())
	size += vectorMUS.Size(d.Vector)
	return size
}

// MarshalTaskRecord serializes a TaskRecord to bytes.
func MarshalTaskRecord(record *core.TaskRecord) []byte {
	buf := make([]byte, TaskRecordMUS.Size(*record))
	TaskRecordMUS.Marshal(*record, buf)
	return buf
}

// UnmarshalTaskRecord deserializes a TaskRecord from bytes.
func UnmarshalTaskRecord(data []byte) (*core.TaskRecord, error) {
	record, _, err := TaskRecordMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// MarshalDocument serializes a Document to bytes.
func MarshalDocument(doc *core.Document) []byte {
	buf := make([]byte, DocumentMUS.Size(*doc))
	DocumentMUS.Marshal(*doc, buf)
	return buf
}

// UnmarshalDocument deserializes a Document from bytes.
func UnmarshalDocument(data []byte) (*core.Document, error) {
	doc, _, err := DocumentMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}
