package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

var mineCmd = &cobra.Command{
	Use:   "mine",
	Short: "Ask the node to mine the pending transactions",
	Run:   mineRun,
}

func init() {
	rootCmd.AddCommand(mineCmd)
}

func mineRun(cmd *cobra.Command, args []string) {
	var resp struct {
		Message string `json:"message"`
		Pending int    `json:"pending"`
	}
	if err := send(fmt.Sprintf("%s/v1/blocks/mine", url), nil, &resp); err != nil {
		log.Fatal(err)
	}

	fmt.Printf("%s: pending[%d]\n", resp.Message, resp.Pending)
}
