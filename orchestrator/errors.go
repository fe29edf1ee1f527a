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


package orchestrator

import "errors"

var (
	// ErrTaskNotFound indicates no live or archived task exists for the id.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskNotFinished indicates the task has not reached a terminal
	// status yet, so its result is not available.
	ErrTaskNotFinished = errors.New("task not finished")

	// ErrResultEvicted indicates the task finished but its result payload
	// is no longer held in memory; only the archived outcome remains.
	ErrResultEvicted = errors.New("task result evicted")

	// ErrNilJob indicates a submission without a job.
	ErrNilJob = errors.New("job cannot be nil")

	// ErrNegativeRetries indicates a submission with a negative retry budget.
	ErrNegativeRetries = errors.New("max retries cannot be negative")

	// ErrClosed indicates the orchestrator has been shut down.
	ErrClosed = errors.New("orchestrator is closed")
)
