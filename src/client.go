package blockchain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/prometheus/common/log"
	"golang.org/x/sync/errgroup"
)

// nodeUUIDHeader marks requests sent by another node so they are not propagated again.
const nodeUUIDHeader = "node-uuid"

// ErrPeerStatus is returned when a peer answers with a non-success status.
var ErrPeerStatus = errors.New("unexpected peer response status")

// PeerClient : Talks to other nodes over their HTTP api
type PeerClient struct {
	client         *http.Client
	nodeIdentifier string
	timeout        time.Duration
}

// NewPeerClient : Returns a client identifying itself as nodeIdentifier. The timeout
// bounds every request and the total time spent retrying a chain fetch.
func NewPeerClient(nodeIdentifier string, timeout time.Duration) *PeerClient {
	return &PeerClient{
		client:         &http.Client{Timeout: timeout},
		nodeIdentifier: nodeIdentifier,
		timeout:        timeout,
	}
}

// FetchChain : Retrieves the full chain served by node. Connection failures are retried
// with exponential backoff; bad statuses and undecodable bodies are not.
func (c *PeerClient) FetchChain(ctx context.Context, node string) (*ChainDTO, error) {
	var respBody ChainDTO

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/chain", node), nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set(nodeUUIDHeader, c.nodeIdentifier)

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body)
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrPeerStatus, resp.Status))
		}
		if err := json.NewDecoder(resp.Body).Decode(&respBody); err != nil {
			return backoff.Permanent(fmt.Errorf("decoding chain: %w", err))
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = c.timeout
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return nil, fmt.Errorf("fetching chain from %s: %w", node, err)
	}
	return &respBody, nil
}

// Broadcast : Sends the request to every node concurrently. Failures are logged and
// otherwise ignored.
func (c *PeerClient) Broadcast(ctx context.Context, nodes []string, method string, path string, body interface{}) {
	var messageBody []byte
	if body != nil {
		var err error
		messageBody, err = json.Marshal(body)
		if err != nil {
			log.Errorf("Unable to encode %s %s broadcast: %s", method, path, err)
			return
		}
	}

	var g errgroup.Group
	g.SetLimit(maxConcurrentFetches)
	for _, node := range nodes {
		node := node
		g.Go(func() error {
			if err := c.send(ctx, node, method, path, messageBody); err != nil {
				log.Errorf("Request %s %s on node %s failed, error: %s", method, path, node, err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (c *PeerClient) send(ctx context.Context, node string, method string, path string, messageBody []byte) error {
	var reader io.Reader
	if messageBody != nil {
		reader = bytes.NewReader(messageBody)
	}
	req, err := http.NewRequestWithContext(ctx, method, node+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set(nodeUUIDHeader, c.nodeIdentifier)
	if messageBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%w: %s", ErrPeerStatus, resp.Status)
	}
	return nil
}
