package blockchain

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/jinzhu/copier"
	"github.com/prometheus/common/log"
)

// ErrInvalidNode is returned when a node address has no host.
var ErrInvalidNode = errors.New("invalid node address")

// NodeSet : The peers this node reconciles with, kept in registration order
type NodeSet struct {
	mu    sync.RWMutex
	self  string
	nodes []string
}

// NewNodeSet : Returns an empty node set that will never contain self
func NewNodeSet(self string) *NodeSet {
	normalized, err := normalizeNode(self)
	if err != nil {
		normalized = self
	}
	return &NodeSet{
		self:  normalized,
		nodes: make([]string, 0),
	}
}

// Register : Adds a node, returning false when it is already known or is this node
func (n *NodeSet) Register(node string) (bool, error) {
	normalized, err := normalizeNode(node)
	if err != nil {
		return false, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if normalized == n.self || containsNode(n.nodes, normalized) {
		return false, nil
	}
	n.nodes = append(n.nodes, normalized)
	log.Infof("Registered node %s", normalized)
	return true, nil
}

// Nodes : Returns a copy of the registered nodes
func (n *NodeSet) Nodes() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()

	var nodes []string
	if err := copier.Copy(&nodes, &n.nodes); err != nil {
		log.Errorf("Unable to copy node list: %s", err)
		return append([]string(nil), n.nodes...)
	}
	return nodes
}

// Self : Returns this node's own address
func (n *NodeSet) Self() string {
	return n.self
}

// normalizeNode reduces an address to scheme://host[:port], defaulting to http.
func normalizeNode(node string) (string, error) {
	node = strings.TrimSpace(node)
	if !strings.Contains(node, "://") {
		node = "http://" + node
	}
	parsedURL, err := url.Parse(node)
	if err != nil {
		return "", fmt.Errorf("%w %q: %s", ErrInvalidNode, node, err)
	}
	if parsedURL.Host == "" {
		return "", fmt.Errorf("%w %q", ErrInvalidNode, node)
	}
	return fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host), nil
}

func containsNode(nodes []string, targetNode string) bool {
	for _, node := range nodes {
		if node == targetNode {
			return true
		}
	}
	return false
}
