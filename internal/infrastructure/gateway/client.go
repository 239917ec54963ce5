package gateway

import (
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Client simulates the hosted payment provider's SDK surface: asynchronous,
// callback based, configured once with credentials at process start. The
// callback receives exactly one of response or error. A declined charge is a
// response with StatusDeclined, not an error; errors mean the provider could
// not process the request at all.
type Client struct {
	mu          sync.Mutex
	random      *rand.Rand
	apiKey      string
	failureRate float64
	latency     time.Duration
}

const (
	StatusSucceeded = "succeeded"
	StatusDeclined  = "declined"

	// Tokens with this prefix are always declined. Useful in tests and demos,
	// mirroring the test-token convention of hosted providers.
	declineTokenPrefix = "tok_decline"
)

var errMissingAPIKey = errors.New("gateway client: api key is not configured")

type ChargeRequest struct {
	AmountCents int64
	Token       string
}

type ChargeResponse struct {
	TransactionID string
	AmountCents   int64
	Status        string
}

func NewClient(apiKey string, failureRate float64, latency time.Duration) *Client {
	return &Client{
		random:      rand.New(rand.NewSource(time.Now().UnixNano())),
		apiKey:      apiKey,
		failureRate: failureRate,
		latency:     latency,
	}
}

// Charge submits a charge and invokes done exactly once from another
// goroutine, with either a response or an error.
func (c *Client) Charge(req ChargeRequest, done func(*ChargeResponse, error)) {
	go func() {
		if c.latency > 0 {
			time.Sleep(c.latency)
		}

		if c.apiKey == "" {
			done(nil, errMissingAPIKey)
			return
		}
		if req.Token == "" {
			done(nil, errors.New("gateway client: payment token is required"))
			return
		}

		if strings.HasPrefix(req.Token, declineTokenPrefix) || c.roll() {
			done(&ChargeResponse{
				TransactionID: uuid.NewString(),
				AmountCents:   req.AmountCents,
				Status:        StatusDeclined,
			}, nil)
			return
		}

		done(&ChargeResponse{
			TransactionID: uuid.NewString(),
			AmountCents:   req.AmountCents,
			Status:        StatusSucceeded,
		}, nil)
	}()
}

func (c *Client) roll() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.random.Float64() < c.failureRate
}
