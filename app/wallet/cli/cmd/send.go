package cmd

import (
	"crypto/ecdsa"
	"fmt"
	"log"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/powledger/node/foundation/blockchain/database"
	"github.com/powledger/node/foundation/blockchain/signature"
	"github.com/spf13/cobra"
)

var (
	to     string
	amount float64
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send transaction",
	Run: func(cmd *cobra.Command, args []string) {
		privateKey, err := crypto.LoadECDSA(getPrivateKeyPath())
		if err != nil {
			log.Fatal(err)
		}

		sendWithDetails(privateKey)
	},
}

func sendWithDetails(privateKey *ecdsa.PrivateKey) {
	tx := database.NewTx(signature.PublicKeyToAddress(privateKey.PublicKey), to, amount)

	signedTx, err := tx.Sign(privateKey)
	if err != nil {
		log.Fatal(err)
	}

	req := struct {
		Sender    string  `json:"sender"`
		Receiver  string  `json:"receiver"`
		Amount    float64 `json:"amount"`
		TimeStamp float64 `json:"timestamp"`
		Signature string  `json:"signature"`
	}{
		Sender:    tx.Sender,
		Receiver:  tx.Receiver,
		Amount:    tx.Amount,
		TimeStamp: tx.TimeStamp,
		Signature: signedTx.SignatureString(),
	}

	var resp struct {
		Message string `json:"message"`
		Hash    string `json:"hash"`
		Pending int    `json:"pending"`
	}
	if err := send(fmt.Sprintf("%s/v1/tx/submit", url), req, &resp); err != nil {
		log.Fatal(err)
	}

	fmt.Printf("%s: hash[%s]: pending[%d]\n", resp.Message, resp.Hash, resp.Pending)
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&to, "to", "t", "", "Account to send to.")
	sendCmd.Flags().Float64VarP(&amount, "amount", "v", 0, "Amount to send.")
	sendCmd.MarkFlagRequired("to")
}
