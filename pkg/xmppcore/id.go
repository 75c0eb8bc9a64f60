package xmppcore

import (
	"math/big"

	"github.com/google/uuid"
	"github.com/itchyny/base58-go"
)

// NewID generates an identifier for stanzas and streams.
func NewID() (string, error) {
	//NOTE: this is inefficient but the ids stay short and unambiguous
	raw, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	i := new(big.Int).SetBytes(raw[:])
	enc, err := base58.BitcoinEncoding.Encode([]byte(i.String()))
	if err != nil {
		return "", err
	}
	return string(enc), nil
}
