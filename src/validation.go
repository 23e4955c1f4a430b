package blockchain

import (
	"github.com/prometheus/common/log"
)

// ValidChain : Reports whether every block links to the digest of its predecessor
// and carries a proof solving the puzzle posed by the predecessor's proof
func ValidChain(chain []*Block) bool {
	if len(chain) == 0 {
		return false
	}
	// Chains decoded from peers may carry null entries.
	for i, block := range chain {
		if !wellFormed(block) {
			log.Debugf("Block at position %d is missing or holds a missing transaction", i+1)
			return false
		}
	}

	lastBlock := chain[0]
	currentIndex := 1

	for currentIndex < len(chain) {
		block := chain[currentIndex]
		lastHash := Hash(lastBlock)
		log.Debugf("Validating block %d (previous %s) against block %d (%s)",
			block.Index, block.PreviousHash, lastBlock.Index, lastHash)

		if block.PreviousHash != lastHash {
			log.Debugf("Block %d does not link to block %d", block.Index, lastBlock.Index)
			return false
		}

		if !ValidProof(lastBlock.Proof, block.Proof) {
			log.Debugf("Block %d carries an invalid proof %d", block.Index, block.Proof)
			return false
		}

		lastBlock = block
		currentIndex++
	}

	return true
}

func wellFormed(block *Block) bool {
	if block == nil {
		return false
	}
	for _, t := range block.Transactions {
		if t == nil {
			return false
		}
	}
	return true
}
