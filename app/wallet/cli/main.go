// This program is a wallet for the node. It signs transactions with an
// account key and drives mining and consensus on a node.
package main

import "github.com/powledger/node/app/wallet/cli/cmd"

func main() {
	cmd.Execute()
}
