package escrow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"milestone-service/pkg/circuitbreaker"
	"milestone-service/pkg/metrics"
	"milestone-service/pkg/trace"
)

// Client is the HTTP implementation of Ledger against the escrow service.
// There is deliberately no fallback: when the ledger is unreachable the
// transition must fail, money never moves on a guess.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cb         *circuitbreaker.CircuitBreaker
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	cbConfig := circuitbreaker.Config{
		FailureThreshold:    3,
		SuccessThreshold:    2,
		Timeout:             30 * time.Second,
		HalfOpenMaxRequests: 2,
	}

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		cb: circuitbreaker.NewCircuitBreaker(cbConfig),
	}
}

type fundRequest struct {
	MilestoneID uuid.UUID `json:"milestone_id"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
}

type releaseRequest struct {
	MilestoneID uuid.UUID `json:"milestone_id"`
}

// Fund asks the ledger to hold amount/currency against the milestone.
func (c *Client) Fund(ctx context.Context, milestoneID uuid.UUID, amount int64, currency string) (*Receipt, error) {
	body := fundRequest{MilestoneID: milestoneID, Amount: amount, Currency: currency}
	receipt, err := c.post(ctx, "fund", milestoneID, "/escrow/fund", body)
	if err != nil {
		return nil, &OperationFailedError{Operation: "fund", MilestoneID: milestoneID, Err: err}
	}
	return receipt, nil
}

// Release asks the ledger to pay out the previously held funds.
func (c *Client) Release(ctx context.Context, milestoneID uuid.UUID) (*Receipt, error) {
	body := releaseRequest{MilestoneID: milestoneID}
	receipt, err := c.post(ctx, "release", milestoneID, "/escrow/release", body)
	if err != nil {
		return nil, &OperationFailedError{Operation: "release", MilestoneID: milestoneID, Err: err}
	}
	return receipt, nil
}

func (c *Client) post(ctx context.Context, op string, milestoneID uuid.UUID, path string, body any) (*Receipt, error) {
	var (
		receipt *Receipt
		refusal error
	)

	err := c.cb.Execute(func() error {
		start := time.Now()
		b, marshalErr := json.Marshal(body)
		if marshalErr != nil {
			return marshalErr
		}

		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
		if reqErr != nil {
			return reqErr
		}
		req.Header.Set("Content-Type", "application/json")
		// The ledger treats a repeated key as already-done and returns the
		// original receipt, so retries cannot double-fund or double-release.
		req.Header.Set("Idempotency-Key", fmt.Sprintf("%s:%s", op, milestoneID))
		if traceID := trace.FromContext(ctx); traceID != "" {
			req.Header.Set(trace.HeaderName, traceID)
		}

		resp, doErr := c.httpClient.Do(req)
		latency := time.Since(start)

		if doErr != nil {
			metrics.RecordEscrowCallLatency(op, "error", latency)
			return doErr
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			metrics.RecordEscrowCallLatency(op, "5xx", latency)
			return fmt.Errorf("escrow service 5xx: %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			metrics.RecordEscrowCallLatency(op, fmt.Sprintf("%d", resp.StatusCode), latency)
			// A 4xx is the ledger answering, not the ledger failing.
			// It stays out of the breaker's failure count so business
			// refusals on one milestone cannot block every other one.
			refusal = fmt.Errorf("escrow service refused: %d", resp.StatusCode)
			return nil
		}

		metrics.RecordEscrowCallLatency(op, "success", latency)

		var r Receipt
		if decodeErr := json.NewDecoder(resp.Body).Decode(&r); decodeErr != nil {
			return decodeErr
		}
		receipt = &r
		return nil
	})

	if err != nil {
		return nil, err
	}
	if refusal != nil {
		return nil, refusal
	}
	return receipt, nil
}
