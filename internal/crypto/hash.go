package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/mavleo96/h2sync/internal/models"
)

// DigestAny hashes the JSON encoding of any value
func DigestAny(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256(data)
	return digest[:], nil
}

// ScenarioDigest fingerprints the frame sets of a scenario so two instances can
// check they run the same one
func ScenarioDigest(clientFrames, serverFrames models.ScenarioFrameSet) (string, error) {
	digest, err := DigestAny(struct {
		Client models.ScenarioFrameSet `json:"client_frames"`
		Server models.ScenarioFrameSet `json:"server_frames"`
	}{clientFrames, serverFrames})
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(digest), nil
}
