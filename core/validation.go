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


package core

import (
	"fmt"
	"time"
)

// ValidateCategory validates that a Category belongs to the fixed set.
// Submissions to an unknown category are a configuration error and must
// fail fast rather than be silently dropped.
func ValidateCategory(c Category) error {
	switch c {
	case CategoryInteractiveQuery, CategoryScraping, CategoryEmbedding,
		CategoryBatchBulk, CategoryMaintenance:
		return nil
	default:
		return fmt.Errorf("%w: %d", ErrUnknownCategory, int(c))
	}
}

// ValidatePriority validates that a Priority has a defined value.
func ValidatePriority(p Priority) error {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow, PriorityBulk:
		return nil
	default:
		return fmt.Errorf("%w: %d", ErrUnknownPriority, int(p))
	}
}

// ValidateDocument validates a Document according to domain rules.
//
// Validation rules:
//   - URL must not be empty
//   - Contents must not be empty
//   - FetchedAt must not be in the future
//
// NOT validated (populated later):
//   - Vector (can be empty until an embedding task runs)
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}

	if doc.URL == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyURL)
	}

	if doc.Contents == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyContent)
	}

	if !IsValidTimestamp(doc.FetchedAt) {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrInvalidTimestamp)
	}

	return nil
}

// IsValidTimestamp reports whether a timestamp is not in the future.
// A small clock-skew allowance is applied.
func IsValidTimestamp(ts time.Time) bool {
	return !ts.After(time.Now().Add(time.Minute))
}
