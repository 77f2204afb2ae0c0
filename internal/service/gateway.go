package service

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"commerce-service/internal/models"

	"github.com/google/uuid"
)

// CaptureResult is the outcome reported by a payment gateway
type CaptureResult struct {
	Captured     bool
	ProviderTxID string
	Reason       string
}

// Gateway captures payments. An error means the outcome is unknown and the capture must be retried;
// a declined payment is a CaptureResult with Captured=false.
type Gateway interface {
	Capture(ctx context.Context, orderID uuid.UUID, amount models.Money) (CaptureResult, error)
}

// ApprovingGateway approves every capture
type ApprovingGateway struct{}

func (ApprovingGateway) Capture(_ context.Context, _ uuid.UUID, _ models.Money) (CaptureResult, error) {
	return CaptureResult{Captured: true, ProviderTxID: newProviderTxID()}, nil
}

// SimulatedGateway approves a fraction of captures after a random delay
type SimulatedGateway struct {
	successRate float64
	maxLatency  time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulatedGateway creates a gateway that succeeds with probability successRate (0.0 - 1.0)
func NewSimulatedGateway(successRate float64, maxLatency time.Duration) *SimulatedGateway {
	return &SimulatedGateway{
		successRate: successRate,
		maxLatency:  maxLatency,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (g *SimulatedGateway) Capture(ctx context.Context, _ uuid.UUID, _ models.Money) (CaptureResult, error) {
	g.mu.Lock()
	var delay time.Duration
	if g.maxLatency > 0 {
		delay = time.Duration(g.rng.Int63n(int64(g.maxLatency)))
	}
	success := g.rng.Float64() < g.successRate
	g.mu.Unlock()

	select {
	case <-ctx.Done():
		return CaptureResult{}, ctx.Err()
	case <-time.After(delay):
	}

	if !success {
		return CaptureResult{Captured: false, Reason: "mock_payment_declined"}, nil
	}
	return CaptureResult{Captured: true, ProviderTxID: newProviderTxID()}, nil
}

func newProviderTxID() string {
	return fmt.Sprintf("TXN-%s", uuid.New().String()[:8])
}
