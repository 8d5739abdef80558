package database

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/powledger/node/foundation/blockchain/signature"
)

// Tx is a transfer of value between two parties. A transaction is immutable
// once created and is identified by the hash of its canonical form.
type Tx struct {
	Sender    string  `json:"sender"`
	Receiver  string  `json:"receiver"`
	Amount    float64 `json:"amount"`
	TimeStamp float64 `json:"timestamp"`
}

// NewTx constructs a new transaction stamped with the current time.
func NewTx(sender string, receiver string, amount float64) Tx {
	return Tx{
		Sender:    sender,
		Receiver:  receiver,
		Amount:    amount,
		TimeStamp: Now(),
	}
}

// Canonical returns the serialization of the transaction that is hashed and
// signed. Keys are sorted, separated by ", " and ": ", and strings are ASCII
// escaped.
func (tx Tx) Canonical() string {
	var b strings.Builder

	b.WriteString(`{"amount": `)
	b.WriteString(formatJSONFloat(tx.Amount))
	b.WriteString(`, "receiver": `)
	writeJSONString(&b, tx.Receiver)
	b.WriteString(`, "sender": `)
	writeJSONString(&b, tx.Sender)
	b.WriteString(`, "timestamp": `)
	b.WriteString(formatJSONFloat(tx.TimeStamp))
	b.WriteString(`}`)

	return b.String()
}

// HashHex returns the hex encoded hash of the transaction.
func (tx Tx) HashHex() string {
	return signature.Hash([]byte(tx.Canonical()))
}

// Hash implements the merkle Hashable interface for providing a hash
// of a transaction.
func (tx Tx) Hash() ([]byte, error) {
	return hex.DecodeString(tx.HashHex())
}

// Equals implements the merkle Hashable interface for providing an equality
// check between two transactions.
func (tx Tx) Equals(otherTx Tx) bool {
	return tx.Canonical() == otherTx.Canonical()
}

// Sign uses the specified private key to sign the transaction.
func (tx Tx) Sign(privateKey *ecdsa.PrivateKey) (SignedTx, error) {
	v, r, s, err := signature.Sign([]byte(tx.Canonical()), privateKey)
	if err != nil {
		return SignedTx{}, err
	}

	signedTx := SignedTx{
		Tx: tx,
		V:  v,
		R:  r,
		S:  s,
	}

	return signedTx, nil
}

// String implements the fmt.Stringer interface for logging.
func (tx Tx) String() string {
	return fmt.Sprintf("%s->%s:%s", tx.Sender, tx.Receiver, formatFloat(tx.Amount))
}

// =============================================================================

// SignedTx is a signed version of the transaction. This is how wallets
// submit transactions to a node.
type SignedTx struct {
	Tx
	V *big.Int `json:"v"`
	R *big.Int `json:"r"`
	S *big.Int `json:"s"`
}

// Validate verifies the transaction carries a proper signature and that the
// signer is the account named as the sender.
func (tx SignedTx) Validate() error {
	if tx.Sender == "" || tx.Receiver == "" {
		return errors.New("sender and receiver are required")
	}

	if tx.Sender == tx.Receiver {
		return fmt.Errorf("transaction invalid, sending to yourself, %s", tx.Sender)
	}

	from, err := tx.FromAddress()
	if err != nil {
		return fmt.Errorf("invalid signature: %w", err)
	}

	if !strings.EqualFold(from, tx.Sender) {
		return fmt.Errorf("signature does not belong to sender, signer %s, sender %s", from, tx.Sender)
	}

	return nil
}

// FromAddress extracts the account address that signed the transaction.
func (tx SignedTx) FromAddress() (string, error) {
	return signature.FromAddress([]byte(tx.Canonical()), tx.V, tx.R, tx.S)
}

// SignatureString returns the signature as a string.
func (tx SignedTx) SignatureString() string {
	return signature.SignatureString(tx.V, tx.R, tx.S)
}

// =============================================================================

// Now returns the current time as float seconds since the epoch.
func Now() float64 {
	return float64(time.Now().UTC().UnixMicro()) / 1e6
}
