// This program performs administrative tasks against a node's stored chain.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/powledger/node/app/tooling/admin/commands"
	"github.com/powledger/node/foundation/blockchain/database"
	"github.com/powledger/node/foundation/blockchain/database/storage"
	"github.com/powledger/node/foundation/logger"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

const usage = "usage: admin <verify|blocks> [disk|badger] [dbpath]"

func main() {

	// Construct the application logger.
	log, err := logger.New("ADMIN")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {
	if len(os.Args) < 2 {
		return errors.New(usage)
	}

	kind := "disk"
	if len(os.Args) > 2 {
		kind = os.Args[2]
	}

	dbPath := "zblock/blocks"
	if len(os.Args) > 3 {
		dbPath = os.Args[3]
	}

	log.Infow("admin", "version", build, "command", os.Args[1], "storage", kind, "dbpath", dbPath)

	strg, err := openStorage(kind, dbPath)
	if err != nil {
		return err
	}
	defer strg.Close()

	return processCommands(os.Args[1], strg, log)
}

// processCommands handles the execution of the commands specified on
// the command line.
func processCommands(cmd string, strg database.Storage, log *zap.SugaredLogger) error {
	switch cmd {
	case "verify":
		if err := commands.Verify(strg, log); err != nil {
			return fmt.Errorf("verifying chain: %w", err)
		}
	case "blocks":
		if err := commands.Blocks(strg); err != nil {
			return fmt.Errorf("listing blocks: %w", err)
		}
	default:
		return errors.New(usage)
	}

	return nil
}

func openStorage(kind string, dbPath string) (database.Storage, error) {
	switch kind {
	case "disk":
		return storage.NewDisk(dbPath)
	case "badger":
		return storage.NewBadger(dbPath)
	}

	return nil, fmt.Errorf("unknown storage %q, expecting disk or badger", kind)
}
