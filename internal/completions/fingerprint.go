package completions

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

const (
	KindCompletion = "completion"
	KindChat       = "chat"
)

var fingerprintNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("finetune-backend/response-cache"))

// Fingerprint derives the cache key of a request from its kind and every field
// of the request. encoding/json writes struct fields in declaration order, so
// equal requests always produce the same bytes.
func Fingerprint(kind string, req any) (uuid.UUID, error) {
	data, err := json.Marshal(struct {
		Kind    string `json:"kind"`
		Request any    `json:"request"`
	}{Kind: kind, Request: req})
	if err != nil {
		return uuid.Nil, fmt.Errorf("error encoding %s request: %w", kind, err)
	}
	return uuid.NewSHA1(fingerprintNamespace, data), nil
}
