package commands

import (
	"fmt"

	"github.com/powledger/node/foundation/blockchain/database"
)

// Blocks prints the header of every stored block, oldest first.
func Blocks(strg database.Storage) error {
	blocks, err := strg.ReadAll()
	if err != nil {
		return err
	}

	for _, b := range blocks {
		fmt.Printf("Index: %d  Hash: %s  Prev: %s  Nonce: %d  Difficulty: %d  Trans: %d\n",
			b.Index, b.Hash, b.Header.PreviousHash, b.Header.Nonce, b.Header.Difficulty, len(b.Transactions))
	}

	return nil
}
