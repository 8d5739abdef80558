// Package commands contains the functionality for the set of commands
// currently supported by the admin tool.
package commands

import (
	"fmt"

	"github.com/powledger/node/foundation/blockchain/database"
	"go.uber.org/zap"
)

// Verify reads every stored block and validates the chain from genesis.
func Verify(strg database.Storage, log *zap.SugaredLogger) error {
	blocks, err := strg.ReadAll()
	if err != nil {
		return err
	}

	ev := func(v string, args ...any) {
		log.Infow(fmt.Sprintf(v, args...))
	}

	if err := database.ValidateChain(blocks, ev); err != nil {
		return err
	}

	fmt.Printf("chain is valid: length[%d]\n", len(blocks))
	return nil
}
