package badger

import (
	"fmt"

	"github.com/oripridan-dot/support-center/core"
)

// Key prefixes for different record types
const (
	taskRecordPrefix = "taskrec"
	documentPrefix   = "docrec"
)

// makeTaskKey generates a key for a task record by id.
func makeTaskKey(id core.TaskID) []byte {
	return []byte(fmt.Sprintf("%s:%s", taskRecordPrefix, id))
}

// makeDocumentKey generates a key for a document by its content-hash id.
func makeDocumentKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", documentPrefix, id))
}

// documentIDFromKey parses the content-hash id back out of a document key.
func documentIDFromKey(key []byte) (core.ID, error) {
	var id uint64
	if _, err := fmt.Sscanf(string(key), documentPrefix+":%d", &id); err != nil {
		return 0, err
	}
	return core.ID(id), nil
}
