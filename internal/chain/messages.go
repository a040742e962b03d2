package chain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// Order enumerations accepted by the chain.
const (
	OrderTypeLimit = "LIMIT"

	SideBuy  = "buy"
	SideSell = "sell"

	TimeInForceGTE = "GTE"
	TimeInForceIOC = "IOC"
)

// Msg is a domain message that can be signed and submitted.
type Msg interface {
	Kind() string
	Validate() error
}

// NewOrderMsg places a limit order on a market.
type NewOrderMsg struct {
	Symbol      string `json:"symbol"`
	OrderType   string `json:"order_type"`
	Side        string `json:"side"`
	Price       Fixed8 `json:"price"`
	Quantity    Fixed8 `json:"quantity"`
	TimeInForce string `json:"time_in_force"`
}

func (m NewOrderMsg) Kind() string { return "new_order" }

func (m NewOrderMsg) Validate() error {
	if m.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if m.OrderType != OrderTypeLimit {
		return fmt.Errorf("unknown order_type %q", m.OrderType)
	}
	if m.Side != SideBuy && m.Side != SideSell {
		return fmt.Errorf("side must be %q or %q", SideBuy, SideSell)
	}
	if m.TimeInForce != TimeInForceGTE && m.TimeInForce != TimeInForceIOC {
		return fmt.Errorf("time_in_force must be %q or %q", TimeInForceGTE, TimeInForceIOC)
	}
	if m.Price <= 0 {
		return fmt.Errorf("price must be positive")
	}
	if m.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive")
	}
	return nil
}

// CancelOrderMsg cancels an open order.
type CancelOrderMsg struct {
	Symbol  string `json:"symbol"`
	OrderID string `json:"order_id"`
}

func (m CancelOrderMsg) Kind() string { return "cancel_order" }

func (m CancelOrderMsg) Validate() error {
	if m.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if m.OrderID == "" {
		return fmt.Errorf("order_id is required")
	}
	return nil
}

// TransferMsg moves funds to another address.
type TransferMsg struct {
	ToAddress string `json:"to_address"`
	Symbol    string `json:"symbol"`
	Amount    Fixed8 `json:"amount"`
}

func (m TransferMsg) Kind() string { return "transfer" }

func (m TransferMsg) Validate() error {
	if strings.TrimSpace(m.ToAddress) == "" {
		return fmt.Errorf("to_address is required")
	}
	if m.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if m.Amount <= 0 {
		return fmt.Errorf("amount must be positive")
	}
	return nil
}

// FreezeMsg locks funds on the signing account.
type FreezeMsg struct {
	Symbol string `json:"symbol"`
	Amount Fixed8 `json:"amount"`
}

func (m FreezeMsg) Kind() string { return "freeze" }

func (m FreezeMsg) Validate() error {
	if m.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if m.Amount <= 0 {
		return fmt.Errorf("amount must be positive")
	}
	return nil
}

// UnfreezeMsg releases previously frozen funds.
type UnfreezeMsg struct {
	Symbol string `json:"symbol"`
	Amount Fixed8 `json:"amount"`
}

func (m UnfreezeMsg) Kind() string { return "unfreeze" }

func (m UnfreezeMsg) Validate() error {
	if m.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if m.Amount <= 0 {
		return fmt.Errorf("amount must be positive")
	}
	return nil
}

// signDoc is the canonical byte representation covered by the signature.
// Field order matters: keys are lexicographic so nodes can reproduce it.
type signDoc struct {
	AccountNumber uint64          `json:"account_number"`
	ChainID       string          `json:"chain_id"`
	MsgKind       string          `json:"msg_kind"`
	Msg           json.RawMessage `json:"msgs"`
	Sequence      uint64          `json:"sequence"`
	Source        string          `json:"source"`
}

// signedTx is the wire envelope broadcast to the node.
type signedTx struct {
	Msg           json.RawMessage `json:"msg"`
	MsgKind       string          `json:"msg_kind"`
	PubKey        string          `json:"pub_key"`
	Signature     string          `json:"signature"`
	AccountNumber uint64          `json:"account_number"`
	Sequence      uint64          `json:"sequence"`
}

// SignMsg validates the message, signs it with the key pair and the given
// account coordinates, and returns the hex-encoded wire payload. It is pure
// and synchronous; it fails only on malformed input.
func SignMsg(kp *KeyPair, msg Msg, accountNumber, sequence uint64, chainID string) (string, error) {
	if kp == nil {
		return "", fmt.Errorf("key pair is required")
	}
	if err := msg.Validate(); err != nil {
		return "", fmt.Errorf("invalid %s message: %w", msg.Kind(), err)
	}

	rawMsg, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("encode %s message: %w", msg.Kind(), err)
	}

	doc, err := json.Marshal(signDoc{
		AccountNumber: accountNumber,
		ChainID:       chainID,
		MsgKind:       msg.Kind(),
		Msg:           rawMsg,
		Sequence:      sequence,
		Source:        "signing-gateway",
	})
	if err != nil {
		return "", fmt.Errorf("encode sign doc: %w", err)
	}

	hash := sha256.Sum256(doc)
	// Deterministic (RFC6979) compact signature; drop the recovery byte to
	// leave the 64-byte r||s form the chain expects.
	compact := ecdsa.SignCompact(kp.priv, hash[:], true)
	signature := compact[1:]

	tx, err := json.Marshal(signedTx{
		Msg:           rawMsg,
		MsgKind:       msg.Kind(),
		PubKey:        hex.EncodeToString(kp.pubKey),
		Signature:     hex.EncodeToString(signature),
		AccountNumber: accountNumber,
		Sequence:      sequence,
	})
	if err != nil {
		return "", fmt.Errorf("encode signed tx: %w", err)
	}

	return hex.EncodeToString(tx), nil
}
