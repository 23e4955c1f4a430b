package blockchain

// Transaction : A transfer of value waiting in the pool or sealed in a block
type Transaction struct {
	Sender    string  `json:"sender"`
	Recipient string  `json:"recipient"`
	Amount    float64 `json:"amount"`
}

// Block : A sealed set of transactions linked to its predecessor by digest
type Block struct {
	Index        int            `json:"index"`
	Timestamp    float64        `json:"timestamp"`
	Transactions []*Transaction `json:"transactions"`
	Proof        int64          `json:"proof"`
	PreviousHash string         `json:"previous_hash"`
}

// ChainDTO : Wire shape of a full chain as served by /chain
type ChainDTO struct {
	Chain  []*Block `json:"chain"`
	Length int      `json:"length"`
}

// NodeDTO : Wire shape of a node registration request
type NodeDTO struct {
	Nodes []string `json:"nodes"`
}
