// Copyright 2025 Kadir Pekel
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

package job

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means no job record exists for the ID.
	ErrNotFound = errors.New("job not found")

	// ErrAlreadyExists means a record with the ID is already stored.
	ErrAlreadyExists = errors.New("job already exists")

	// ErrTransientBackend means the backend could not be reached or
	// answered with a retryable failure. Poll degrades gracefully on it.
	ErrTransientBackend = errors.New("transient backend error")
)

// InvalidTransitionError records a status event that the terminal guard
// discarded. It is logged, never surfaced to event senders.
type InvalidTransitionError struct {
	JobID string
	From  Status
	To    Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("job %s: invalid transition %s -> %s", e.JobID, e.From, e.To)
}
