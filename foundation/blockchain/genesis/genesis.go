// Package genesis maintains access to the genesis file.
package genesis

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Genesis represents the genesis file.
type Genesis struct {
	Date       time.Time `json:"date"`       // Stamped on the genesis block and its transaction.
	Difficulty uint      `json:"difficulty"` // How difficult it needs to be to solve the work problem.
}

// Default returns the genesis settings used when no genesis file is provided.
func Default() Genesis {
	return Genesis{
		Date:       time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		Difficulty: 4,
	}
}

// =============================================================================

// Load opens and consumes the genesis file. An empty path returns the
// default settings.
func Load(path string) (Genesis, error) {
	if path == "" {
		return Default(), nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	if err := json.Unmarshal(content, &genesis); err != nil {
		return Genesis{}, fmt.Errorf("decoding genesis %q: %w", path, err)
	}

	if genesis.Date.IsZero() {
		return Genesis{}, fmt.Errorf("genesis %q: date is required", path)
	}

	return genesis, nil
}
