package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Ask the node to resolve its chain against its peers",
	Run:   resolveRun,
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}

func resolveRun(cmd *cobra.Command, args []string) {
	var resp struct {
		Message string `json:"message"`
		Length  uint64 `json:"length"`
	}
	if err := send(fmt.Sprintf("%s/nodes/resolve", peerURL), nil, &resp); err != nil {
		log.Fatal(err)
	}

	fmt.Printf("%s: length[%d]\n", resp.Message, resp.Length)
}
