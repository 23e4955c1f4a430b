package blockchain

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
)

const testPeerTimeout = 500 * time.Millisecond

// newTestNode starts a node api on an httptest server advertising its own URL.
func newTestNode(t *testing.T) (*api, *httptest.Server) {
	t.Helper()
	a := newAPI(Config{PeerTimeout: testPeerTimeout})
	server := httptest.NewServer(a.routes())
	t.Cleanup(server.Close)
	a.nodes = NewNodeSet(server.URL)
	return a, server
}

func doRequest(t *testing.T, method string, url string, body string, fromNode bool) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest() failed: %v", err)
	}
	if fromNode {
		req.Header.Set(nodeUUIDHeader, "test")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Reading response body failed: %v", err)
	}
	return resp, respBody
}

func TestMine(t *testing.T) {
	a, server := newTestNode(t)
	genesis := a.blockChain.LastBlock()

	resp, body := doRequest(t, http.MethodGet, server.URL+"/mine", "", false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, body)
	}

	var mined mineResponse
	if err := json.Unmarshal(body, &mined); err != nil {
		t.Fatalf("Unable to decode response: %v", err)
	}
	if mined.Message != "New Block Forged" {
		t.Errorf("Unexpected message %q", mined.Message)
	}
	if mined.Index != 2 || mined.Proof != 35293 {
		t.Errorf("Expected index 2 and proof 35293, got %s", spew.Sdump(mined))
	}
	if mined.PreviousHash != Hash(genesis) {
		t.Errorf("Expected previous hash %s, got %s", Hash(genesis), mined.PreviousHash)
	}
	if !strings.Contains(string(body), `"transaction":[`) {
		t.Errorf("Expected transaction key in response, got %s", body)
	}
	if len(mined.Transaction) != 1 {
		t.Fatalf("Expected reward transaction only, got %s", spew.Sdump(mined.Transaction))
	}
	reward := mined.Transaction[0]
	if reward.Sender != "0" || reward.Recipient != a.nodeIdentifier || reward.Amount != 1 {
		t.Errorf("Unexpected reward transaction %+v", *reward)
	}
}

func TestChainSurvivesTheWire(t *testing.T) {
	a, server := newTestNode(t)
	a.blockChain.NewTransaction("a", "b", 0.1)
	mineBlocks(t, a.blockChain, 2)

	resp, body := doRequest(t, http.MethodGet, server.URL+"/chain", "", false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var chain ChainDTO
	if err := json.Unmarshal(body, &chain); err != nil {
		t.Fatalf("Unable to decode chain: %v", err)
	}
	if chain.Length != 3 || len(chain.Chain) != 3 {
		t.Fatalf("Expected length 3, got %d", chain.Length)
	}
	if !ValidChain(chain.Chain) {
		t.Error("Expected chain decoded from json to be valid")
	}
	local, _ := a.blockChain.Snapshot()
	for i := range local {
		if Hash(local[i]) != Hash(chain.Chain[i]) {
			t.Errorf("Block %d digest changed over the wire", i+1)
		}
	}
}

func TestTransactionsNew(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"valid", `{"sender":"a","recipient":"b","amount":5}`, http.StatusCreated},
		{"zero amount", `{"sender":"a","recipient":"b","amount":0}`, http.StatusCreated},
		{"missing amount", `{"sender":"a","recipient":"b"}`, http.StatusBadRequest},
		{"missing sender", `{"recipient":"b","amount":1}`, http.StatusBadRequest},
		{"bad json", `{"sender":`, http.StatusBadRequest},
		{"empty body", ``, http.StatusBadRequest},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			a, server := newTestNode(t)
			resp, body := doRequest(t, http.MethodPost, server.URL+"/transactions/new", test.body, false)
			if resp.StatusCode != test.status {
				t.Fatalf("Expected %d, got %d: %s", test.status, resp.StatusCode, body)
			}
			pending := a.blockChain.PendingTransactions()
			if test.status != http.StatusCreated {
				if len(pending) != 0 {
					t.Errorf("Expected no pending transactions, got %d", len(pending))
				}
				return
			}
			if !strings.Contains(string(body), "block #2") {
				t.Errorf("Unexpected response %s", body)
			}
			if len(pending) != 1 {
				t.Errorf("Expected one pending transaction, got %d", len(pending))
			}
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	_, server := newTestNode(t)

	for path, method := range map[string]string{
		"/mine":             http.MethodPost,
		"/chain":            http.MethodPost,
		"/transactions/new": http.MethodGet,
		"/nodes/register":   http.MethodGet,
		"/nodes/resolve":    http.MethodPost,
	} {
		resp, _ := doRequest(t, method, server.URL+path, "", false)
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("%s %s: expected 405, got %d", method, path, resp.StatusCode)
		}
	}
}

func TestGetNodeUUID(t *testing.T) {
	a, server := newTestNode(t)
	resp, body := doRequest(t, http.MethodGet, server.URL+"/getNodeUUID", "", false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if string(body) != a.nodeIdentifier || len(body) != 32 || strings.Contains(string(body), "-") {
		t.Errorf("Unexpected node identifier %q", body)
	}
}

func TestRegisterNodes(t *testing.T) {
	a, server := newTestNode(t)

	resp, _ := doRequest(t, http.MethodPost, server.URL+"/nodes/register", `{"other":1}`, false)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 without nodes, got %d", resp.StatusCode)
	}

	body := `{"nodes":["localhost:1","http://localhost:1","` + server.URL + `"]}`
	resp, respBody := doRequest(t, http.MethodPost, server.URL+"/nodes/register", body, true)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", resp.StatusCode, respBody)
	}
	var registered struct {
		TotalNodes []string `json:"total_nodes"`
	}
	if err := json.Unmarshal(respBody, &registered); err != nil {
		t.Fatalf("Unable to decode response: %v", err)
	}
	if len(registered.TotalNodes) != 1 || registered.TotalNodes[0] != "http://localhost:1" {
		t.Errorf("Unexpected nodes %v", registered.TotalNodes)
	}
	if nodes := a.nodes.Nodes(); len(nodes) != 1 {
		t.Errorf("Expected one registered node, got %v", nodes)
	}
}

func TestNodesReachConsensus(t *testing.T) {
	miner, minerServer := newTestNode(t)
	follower, followerServer := newTestNode(t)

	// Registering the follower on the miner propagates the miner to the follower.
	body := `{"nodes":["` + followerServer.URL + `"]}`
	resp, _ := doRequest(t, http.MethodPost, minerServer.URL+"/nodes/register", body, false)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}
	if nodes := follower.nodes.Nodes(); len(nodes) != 1 || nodes[0] != minerServer.URL {
		t.Fatalf("Expected follower to know the miner, got %v", nodes)
	}

	// Transactions are forwarded to known nodes.
	doRequest(t, http.MethodPost, minerServer.URL+"/transactions/new", `{"sender":"a","recipient":"b","amount":3}`, false)
	if pending := follower.blockChain.PendingTransactions(); len(pending) != 1 {
		t.Errorf("Expected forwarded transaction on follower, got %d", len(pending))
	}

	// Mining asks the follower to resolve, which adopts the longer chain.
	doRequest(t, http.MethodGet, minerServer.URL+"/mine", "", false)
	if follower.blockChain.Len() != 2 {
		t.Fatalf("Expected follower to adopt the mined chain, got length %d", follower.blockChain.Len())
	}
	if Hash(follower.blockChain.LastBlock()) != Hash(miner.blockChain.LastBlock()) {
		t.Error("Expected follower and miner to share a head block")
	}

	// The miner's chain is already the longest.
	resp, respBody := doRequest(t, http.MethodGet, minerServer.URL+"/nodes/resolve", "", false)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(respBody), "My chain was authorative") {
		t.Errorf("Expected 200 from authoritative node, got %d: %s", resp.StatusCode, respBody)
	}
}

func TestResolveSkipsUnreachableNode(t *testing.T) {
	longest, longestServer := newTestNode(t)
	mineBlocks(t, longest.blockChain, 2)

	dead := httptest.NewServer(http.NotFoundHandler())
	dead.Close()

	local, localServer := newTestNode(t)
	local.nodes.Register(dead.URL)
	local.nodes.Register(longestServer.URL)

	resp, body := doRequest(t, http.MethodGet, localServer.URL+"/nodes/resolve", "", false)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", resp.StatusCode, body)
	}
	if !strings.Contains(string(body), "new_chain") || !strings.Contains(string(body), "My chain was replaced") {
		t.Errorf("Expected new chain in response, got %s", body)
	}
	if local.blockChain.Len() != 3 {
		t.Errorf("Expected local chain length 3, got %d", local.blockChain.Len())
	}
}

func TestFetchChainRejectsBadStatus(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(server.Close)

	client := NewPeerClient("test", testPeerTimeout)
	_, err := client.FetchChain(context.Background(), server.URL)
	if !errors.Is(err, ErrPeerStatus) {
		t.Errorf("FetchChain() error = %v, want ErrPeerStatus", err)
	}
}
