package temporal

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rendis/temporal-mcp/pkg/schema"
)

// CircuitState is the state of the breaker guarding one upstream endpoint.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures the upstream breakers.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive retryable failures that
	// opens a breaker.
	FailureThreshold int
	// Cooldown is how long an open breaker rejects calls before letting a
	// trial request through.
	Cooldown time.Duration
	// HalfOpenMax caps concurrent trial requests.
	HalfOpenMax int
}

// DefaultCircuitBreakerConfig returns the breaker settings used by NewClient.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
		HalfOpenMax:      1,
	}
}

// breakerKey identifies one Temporal API call site: the cluster base URL and
// the operation issued against it.
type breakerKey struct {
	endpoint string
	op       string
}

type breaker struct {
	state    CircuitState
	failures int
	openedAt time.Time
	trials   int
	// lastStatus is the HTTP status of the most recent failure, 0 when the
	// request never got a response.
	lastStatus int
	lastErr    string
}

// upstreamBreakers keeps a breaker per endpoint and operation, so a history
// endpoint returning 503 does not block searches against the same cluster.
type upstreamBreakers struct {
	mu    sync.Mutex
	cfg   CircuitBreakerConfig
	byKey map[breakerKey]*breaker
	now   func() time.Time
}

func newUpstreamBreakers(cfg CircuitBreakerConfig) *upstreamBreakers {
	return &upstreamBreakers{
		cfg:   cfg,
		byKey: make(map[breakerKey]*breaker),
		now:   time.Now,
	}
}

// allow returns nil when a call may go out, or a CIRCUIT_OPEN error naming
// the endpoint and the upstream status that tripped the breaker.
func (b *upstreamBreakers) allow(endpoint, op string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	k := breakerKey{endpoint: endpoint, op: op}
	br := b.lookup(k)
	switch br.state {
	case CircuitOpen:
		return openError(k, br, b.cfg.Cooldown-b.now().Sub(br.openedAt))
	case CircuitHalfOpen:
		if br.trials >= b.cfg.HalfOpenMax {
			return openError(k, br, 0)
		}
		br.trials++
	}
	return nil
}

func (b *upstreamBreakers) success(endpoint, op string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	*b.lookup(breakerKey{endpoint: endpoint, op: op}) = breaker{}
}

// failure records a retryable failure and returns the resulting state.
func (b *upstreamBreakers) failure(endpoint, op string, err error) CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()

	br := b.lookup(breakerKey{endpoint: endpoint, op: op})
	br.failures++
	br.lastStatus = 0
	var se *schema.Error
	if errors.As(err, &se) {
		br.lastStatus = se.StatusCode
	}
	if err != nil {
		br.lastErr = err.Error()
	}
	if br.state == CircuitHalfOpen || br.failures >= b.cfg.FailureThreshold {
		br.state = CircuitOpen
		br.openedAt = b.now()
		br.trials = 0
	}
	return br.state
}

func (b *upstreamBreakers) state(endpoint, op string) CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lookup(breakerKey{endpoint: endpoint, op: op}).state
}

// lookup returns the breaker for k, moving it to half-open once its cooldown
// has passed. The caller holds b.mu.
func (b *upstreamBreakers) lookup(k breakerKey) *breaker {
	br, ok := b.byKey[k]
	if !ok {
		br = &breaker{}
		b.byKey[k] = br
	}
	if br.state == CircuitOpen && b.now().Sub(br.openedAt) >= b.cfg.Cooldown {
		br.state = CircuitHalfOpen
		br.trials = 0
	}
	return br
}

func openError(k breakerKey, br *breaker, remaining time.Duration) *schema.Error {
	msg := fmt.Sprintf("cannot %s at %s: circuit open after %d consecutive failures",
		opDescription(k.op), k.endpoint, br.failures)
	details := map[string]any{
		"endpoint":             k.endpoint,
		"operation":            k.op,
		"consecutive_failures": br.failures,
		"last_error":           br.lastErr,
	}
	if br.lastStatus != 0 {
		msg += fmt.Sprintf(" (last upstream status %d)", br.lastStatus)
		details["last_status"] = br.lastStatus
	}
	if remaining > 0 {
		details["cooldown_remaining"] = remaining.String()
	} else {
		msg += "; recovery request in flight"
	}
	return schema.NewError(schema.ErrCodeCircuitOpen, msg).WithDetails(details)
}
