package public

import (
	"github.com/powledger/node/foundation/blockchain/database"
)

// submitTx is the form a wallet submits a signed transaction in.
type submitTx struct {
	Sender    string  `json:"sender" validate:"required"`
	Receiver  string  `json:"receiver" validate:"required,nefield=Sender"`
	Amount    float64 `json:"amount" validate:"gte=0"`
	TimeStamp float64 `json:"timestamp" validate:"required"`
	Signature string  `json:"signature" validate:"required"`
}

// tx is a transaction with the names of the accounts involved.
type tx struct {
	Hash         string  `json:"hash"`
	Sender       string  `json:"sender"`
	SenderName   string  `json:"sender_name"`
	Receiver     string  `json:"receiver"`
	ReceiverName string  `json:"receiver_name"`
	Amount       float64 `json:"amount"`
	TimeStamp    float64 `json:"timestamp"`
}

// block is a block with named transactions.
type block struct {
	Index        uint64               `json:"index"`
	Hash         string               `json:"hash"`
	Header       database.BlockHeader `json:"header"`
	MerkleRoot   string               `json:"merkle_root"`
	Transactions []tx                 `json:"transactions"`
}
