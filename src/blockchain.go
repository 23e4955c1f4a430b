package blockchain

import (
	"sync"
	"time"

	"github.com/jinzhu/copier"
	"github.com/prometheus/common/log"
)

const (
	genesisProof        int64 = 100
	genesisPreviousHash       = "1"
)

// NewBlockChain : Returns new instantiated Blockchain struct, seeded with the genesis block
func NewBlockChain() *BlockChain {
	blockChain := &BlockChain{}
	blockChain.chain = make([]*Block, 0)
	blockChain.currentTransactions = make([]*Transaction, 0)

	blockChain.NewBlock(genesisProof, genesisPreviousHash) // seed block

	return blockChain
}

// BlockChain : The block chain object, containing the chain and the pending transactions.
// Both are guarded by mu.
type BlockChain struct {
	mu                  sync.RWMutex
	chain               []*Block
	currentTransactions []*Transaction
}

// NewBlock : Seals the pending transactions into a new block, appends it and returns
// a copy of it. An empty previousHash links the block to the current last block. The
// proof is trusted as given; chains received from peers are verified in Resolve.
func (b *BlockChain) NewBlock(proof int64, previousHash string) *Block {
	b.mu.Lock()
	defer b.mu.Unlock()

	if previousHash == "" {
		previousHash = Hash(b.lastBlock())
	}

	block := &Block{
		Index:        len(b.chain) + 1,
		Timestamp:    now(),
		Transactions: b.currentTransactions,
		Proof:        proof,
		PreviousHash: previousHash,
	}

	// Reset current Transactions
	b.currentTransactions = make([]*Transaction, 0)
	b.chain = append(b.chain, block)

	log.Infof("New block %d added with %d transactions", block.Index, len(block.Transactions))

	return copyBlock(block)
}

// NewTransaction : Queues a transaction for the next block and returns that block's index
func (b *BlockChain) NewTransaction(sender string, recipient string, amount float64) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.currentTransactions = append(b.currentTransactions, &Transaction{
		Sender:    sender,
		Recipient: recipient,
		Amount:    amount,
	})
	log.Debugf("Added new transaction from %s to %s", sender, recipient)
	return len(b.chain) + 1
}

// LastBlock : Returns a copy of the most recently appended block
func (b *BlockChain) LastBlock() *Block {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return copyBlock(b.lastBlock())
}

func (b *BlockChain) lastBlock() *Block {
	return b.chain[len(b.chain)-1]
}

// Len : Returns the number of blocks in the chain
func (b *BlockChain) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.chain)
}

// Snapshot : Returns a deep copy of the chain along with its length
func (b *BlockChain) Snapshot() ([]*Block, int) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var chain []*Block
	if err := copier.CopyWithOption(&chain, &b.chain, copier.Option{DeepCopy: true}); err != nil {
		log.Errorf("Unable to copy chain, returning shallow copy: %s", err)
		chain = append([]*Block(nil), b.chain...)
	}
	return chain, len(chain)
}

// copyBlock deep copies a sealed block so callers cannot change it in place.
func copyBlock(block *Block) *Block {
	copied := &Block{}
	if err := copier.CopyWithOption(copied, block, copier.Option{DeepCopy: true}); err != nil {
		log.Errorf("Unable to copy block %d, copying by hand: %s", block.Index, err)
		*copied = *block
		copied.Transactions = make([]*Transaction, 0, len(block.Transactions))
		for _, t := range block.Transactions {
			tx := *t
			copied.Transactions = append(copied.Transactions, &tx)
		}
	}
	return copied
}

// PendingTransactions : Returns a copy of the transactions waiting for the next block
func (b *BlockChain) PendingTransactions() []*Transaction {
	b.mu.RLock()
	defer b.mu.RUnlock()

	pending := make([]*Transaction, 0, len(b.currentTransactions))
	for _, t := range b.currentTransactions {
		copied := *t
		pending = append(pending, &copied)
	}
	return pending
}

// now returns the wall clock as fractional seconds since the epoch.
func now() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}
