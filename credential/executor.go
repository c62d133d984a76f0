package credential

import (
	"context"
	"net/http"
	"strings"

	"github.com/BaSui01/llmgateway/gatewayerr"
	"go.uber.org/zap"
)

// Adapter is the narrow capability the Key-Rotation Executor needs from
// an upstream provider call: take a profile, a credential, and a request,
// and return a raw HTTP-shaped result. The Adapter Registry (package
// adapter) supplies the concrete implementations; this interface keeps
// the executor decoupled from any one wire format.
type Adapter interface {
	Call(ctx context.Context, endpoint string, cred *Record, request any) (response any, httpStatus int, body string, err error)
}

// MarkerSets holds the case-insensitive substring markers that
// distinguish a permanent credential fault from a request-content fault
// in an upstream error body, per SPEC_FULL.md §4.2.
type MarkerSets struct {
	Permanent      []string
	RequestContent []string
}

// DefaultMarkerSets mirrors the teacher's quota/credit/limit keyword
// check in llm/providers/common.go, extended with the permanent-key
// markers named directly in SPEC_FULL.md §4.2.
func DefaultMarkerSets() MarkerSets {
	return MarkerSets{
		Permanent:      []string{"invalid api key", "api key not valid", "incorrect api key"},
		RequestContent: []string{"quota", "credit", "limit", "invalid request"},
	}
}

func containsAny(haystack string, needles []string) bool {
	lower := strings.ToLower(haystack)
	for _, n := range needles {
		if strings.Contains(lower, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

// Executor runs the bounded credential-rotation loop of SPEC_FULL.md §4.2
// against a single provider profile.
type Executor struct {
	pool    *Pool
	markers MarkerSets
	logger  *zap.Logger
}

// NewExecutor builds an Executor over pool using markers for response
// classification.
func NewExecutor(pool *Pool, markers MarkerSets, logger *zap.Logger) *Executor {
	return &Executor{pool: pool, markers: markers, logger: logger}
}

// Execute runs Acquire/Call/classify up to N = available+1 times against
// providerTag via adapter, per SPEC_FULL.md §4.2's algorithm. It returns
// the adapter's response on success, or a *gatewayerr.Error of kind
// PROVIDER_EXHAUSTED or REQUEST_CONTENT_INVALID otherwise.
func (e *Executor) Execute(ctx context.Context, providerTag, endpoint string, adapter Adapter, request any) (any, error) {
	n := e.pool.SnapshotProvider(providerTag).Available + 1

	for i := 0; i < n; i++ {
		cred, ok := e.pool.Acquire(providerTag)
		if !ok {
			break
		}

		resp, status, body, callErr := adapter.Call(ctx, endpoint, cred, request)

		if callErr != nil {
			// Network/timeout failure: quarantine and continue (§4.2 step g).
			e.logger.Warn("adapter call failed",
				zap.String("provider", providerTag), zap.Error(callErr))
			e.pool.Quarantine(providerTag, cred, "network")
			continue
		}

		switch {
		case status >= 200 && status < 300:
			e.pool.Release(providerTag, cred)
			return resp, nil

		case status == http.StatusUnauthorized || containsAny(body, e.markers.Permanent):
			e.pool.Retire(providerTag, cred, httpReason(status))
			continue

		case status == http.StatusForbidden && !containsAny(body, e.markers.RequestContent):
			// §9 Open Question: 403 is permanent unless the body matches a
			// request-content marker; such a 403 falls through to the
			// request-content case below.
			e.pool.Retire(providerTag, cred, httpReason(status))
			continue

		case status == http.StatusTooManyRequests || status >= 500:
			e.pool.Quarantine(providerTag, cred, httpReason(status))
			continue

		case status == http.StatusBadRequest || containsAny(body, e.markers.RequestContent):
			// Request-content markers are only consulted once the 401/403
			// (permanent) and 429/5xx (transient) cases above have already
			// had a chance to classify the response, mirroring the
			// teacher's MapHTTPError scoping its quota/credit/limit keyword
			// check to HTTP 400 — otherwise a 429 "rate limit exceeded"
			// body would be misread as a request-content fault instead of
			// being quarantined.
			e.pool.Release(providerTag, cred)
			return nil, gatewayerr.New(gatewayerr.KindRequestContentInvalid, "upstream rejected request content").
				WithHTTPStatus(http.StatusBadRequest).
				WithProvider(providerTag)

		default:
			// Unclassified 4xx: treat conservatively as a request-content
			// fault rather than burning a credential.
			e.pool.Release(providerTag, cred)
			return nil, gatewayerr.New(gatewayerr.KindRequestContentInvalid, "unclassified upstream error").
				WithHTTPStatus(status).
				WithProvider(providerTag)
		}
	}

	return nil, gatewayerr.New(gatewayerr.KindProviderExhausted, "no credential succeeded for provider "+providerTag).
		WithProvider(providerTag)
}

func httpReason(status int) string {
	return http.StatusText(status)
}
