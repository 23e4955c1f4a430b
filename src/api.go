package blockchain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	uuid "github.com/nu7hatch/gouuid"
	"github.com/prometheus/common/log"
)

// Config : Settings for a node api server
type Config struct {
	// Listen is the address the http server binds to, e.g. ":8000".
	Listen string
	// Advertise is the base URL other nodes reach this node at.
	Advertise string
	// Peers are registered at startup.
	Peers []string
	// PeerTimeout bounds each request to another node.
	PeerTimeout time.Duration
	// ResolveInterval is how often the node reconciles with its peers; zero disables it.
	ResolveInterval time.Duration
}

// Run : Start the node api server and block until ctx is done
func Run(ctx context.Context, cfg Config) error {
	api := newAPI(cfg)
	for _, peer := range cfg.Peers {
		if _, err := api.nodes.Register(peer); err != nil {
			return fmt.Errorf("registering peer: %w", err)
		}
	}

	server := &http.Server{
		Addr:    cfg.Listen,
		Handler: api.routes(),
	}

	log.Infof("Node UUID: %s", api.nodeIdentifier)
	log.Infof("Listening on %s, advertised as %s", cfg.Listen, api.nodes.Self())

	if cfg.ResolveInterval > 0 {
		go api.resolveLoop(ctx, cfg.ResolveInterval)
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("serving api: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("shutting down api: %w", err)
	}
	return nil
}

// api : api for mutating the Blockchain
type api struct {
	blockChain     *BlockChain
	nodes          *NodeSet
	peers          *PeerClient
	nodeIdentifier string
}

func newAPI(cfg Config) *api {
	nodeIdentifier := getUUID()
	return &api{
		blockChain:     NewBlockChain(),
		nodes:          NewNodeSet(cfg.Advertise),
		peers:          NewPeerClient(nodeIdentifier, cfg.PeerTimeout),
		nodeIdentifier: nodeIdentifier,
	}
}

func (a *api) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/mine", a.mine)
	mux.HandleFunc("/chain", a.chain)
	mux.HandleFunc("/transactions/new", a.transactionsNew)
	mux.HandleFunc("/getNodeUUID", a.getNodeUUID)
	mux.HandleFunc("/nodes/register", a.registerNode)
	mux.HandleFunc("/nodes/resolve", a.resolveChain)
	return mux
}

func (a *api) resolveLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if a.blockChain.ResolveConflicts(ctx, a.nodes, a.peers) {
				log.Infof("Chain replaced on node: %s", a.nodeIdentifier)
			}
		}
	}
}

func (a *api) getNodeUUID(w http.ResponseWriter, req *http.Request) {
	if !allowMethod(w, req, http.MethodGet) {
		return
	}
	w.Write([]byte(a.nodeIdentifier))
}

type mineResponse struct {
	Message      string         `json:"message"`
	Index        int            `json:"index"`
	Transaction  []*Transaction `json:"transaction"`
	Proof        int64          `json:"proof"`
	PreviousHash string         `json:"previous_hash"`
}

func (a *api) mine(w http.ResponseWriter, req *http.Request) {
	if !allowMethod(w, req, http.MethodGet) {
		return
	}

	lastBlock := a.blockChain.LastBlock()
	proof := ProofOfWork(lastBlock.Proof)

	// The miner is rewarded with a single coin minted by sender "0"
	a.blockChain.NewTransaction("0", a.nodeIdentifier, 1)
	previousHash := Hash(lastBlock)
	block := a.blockChain.NewBlock(proof, previousHash)

	// Trigger the other nodes to resolve the longest chain
	a.peers.Broadcast(req.Context(), a.nodes.Nodes(), http.MethodGet, "/nodes/resolve", nil)

	writeJSON(w, http.StatusOK, &mineResponse{
		Message:      "New Block Forged",
		Index:        block.Index,
		Transaction:  block.Transactions,
		Proof:        block.Proof,
		PreviousHash: block.PreviousHash,
	})
}

func (a *api) chain(w http.ResponseWriter, req *http.Request) {
	if !allowMethod(w, req, http.MethodGet) {
		return
	}

	chain, length := a.blockChain.Snapshot()
	writeJSON(w, http.StatusOK, &ChainDTO{
		Chain:  chain,
		Length: length,
	})
}

// transactionRequest uses pointers so absent fields can be told apart from zero values.
type transactionRequest struct {
	Sender    *string  `json:"sender"`
	Recipient *string  `json:"recipient"`
	Amount    *float64 `json:"amount"`
}

func (a *api) transactionsNew(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var values transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
		http.Error(w, fmt.Sprintf("Error: failed to parse json: %s", err), http.StatusBadRequest)
		return
	}
	if values.Sender == nil || values.Recipient == nil || values.Amount == nil {
		http.Error(w, "Error: incomplete data", http.StatusBadRequest)
		return
	}

	transaction := &Transaction{
		Sender:    *values.Sender,
		Recipient: *values.Recipient,
		Amount:    *values.Amount,
	}
	index := a.blockChain.NewTransaction(transaction.Sender, transaction.Recipient, transaction.Amount)

	// If request wasn't sent from another node, forward the transaction to all other nodes
	if r.Header.Get(nodeUUIDHeader) == "" {
		a.peers.Broadcast(r.Context(), a.nodes.Nodes(), http.MethodPost, "/transactions/new", transaction)
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"message": fmt.Sprintf("Transaction will be added to block #%d", index),
	})
}

func (a *api) registerNode(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var values NodeDTO
	if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
		http.Error(w, fmt.Sprintf("Error: failed to parse json: %s", err), http.StatusBadRequest)
		return
	}
	if values.Nodes == nil {
		http.Error(w, "Error: Please supply a valid list of nodes", http.StatusBadRequest)
		return
	}

	for _, node := range values.Nodes {
		if _, err := a.nodes.Register(node); err != nil {
			log.Warnf("Skipping node registration: %s", err)
		}
	}

	// If request wasn't sent from another node, register list with all other nodes.
	// This node is included so the receivers register it as well.
	nodes := a.nodes.Nodes()
	if r.Header.Get(nodeUUIDHeader) == "" {
		blockChainNodes := append(a.nodes.Nodes(), a.nodes.Self())
		a.peers.Broadcast(r.Context(), nodes, http.MethodPost, "/nodes/register", &NodeDTO{Nodes: blockChainNodes})
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message":     "New nodes have been added",
		"total_nodes": nodes,
	})
}

func (a *api) resolveChain(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	replaced := a.blockChain.ResolveConflicts(r.Context(), a.nodes, a.peers)
	chain, _ := a.blockChain.Snapshot()
	if replaced {
		log.Infof("Chain replaced on node: %s", a.nodeIdentifier)
		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"message":   "My chain was replaced",
			"new_chain": chain,
		})
		return
	}

	log.Infof("Chain not replaced: %s", a.nodeIdentifier)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "My chain was authorative",
		"chain":   chain,
	})
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	return false
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	js, err := json.Marshal(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(js)
}

func getUUID() string {
	u, err := uuid.NewV4()
	if err != nil {
		log.Errorf("Unable to generate node uuid: %s", err)
		return strings.Repeat("0", 32)
	}
	return strings.ReplaceAll(u.String(), "-", "")
}
