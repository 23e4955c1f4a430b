package blockchain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Hash : Returns the hex encoded SHA-256 digest of the block's canonical form
func Hash(block *Block) string {
	serialized, err := serialize(block)
	if err != nil {
		panic(fmt.Sprintf("unable to serialize block %d: %v", block.Index, err))
	}
	hash := sha256.Sum256(serialized)
	return hex.EncodeToString(hash[:])
}

// serialize encodes the block as compact JSON. Maps are marshalled with their
// keys sorted, so every node produces the same bytes for the same block.
func serialize(block *Block) ([]byte, error) {
	transactions := make([]map[string]interface{}, 0, len(block.Transactions))
	for _, t := range block.Transactions {
		transactions = append(transactions, map[string]interface{}{
			"sender":    t.Sender,
			"recipient": t.Recipient,
			"amount":    t.Amount,
		})
	}

	return json.Marshal(map[string]interface{}{
		"index":         block.Index,
		"timestamp":     block.Timestamp,
		"transactions":  transactions,
		"proof":         block.Proof,
		"previous_hash": block.PreviousHash,
	})
}
