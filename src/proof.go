package blockchain

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

const difficultyPrefix = "0000"

// ProofOfWork : Finds the smallest proof q such that hash(pq) starts with four zeroes,
// where p is the previous block's proof
func ProofOfWork(lastProof int64) int64 {
	var proof int64
	for !ValidProof(lastProof, proof) {
		proof++
	}
	return proof
}

// ValidProof : Reports whether hash(lastProof proof) meets the difficulty target
func ValidProof(lastProof int64, proof int64) bool {
	guess := strconv.FormatInt(lastProof, 10) + strconv.FormatInt(proof, 10)
	guessHash := sha256.Sum256([]byte(guess))
	return strings.HasPrefix(hex.EncodeToString(guessHash[:]), difficultyPrefix)
}
