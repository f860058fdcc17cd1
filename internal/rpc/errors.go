package rpc

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/goran-ethernal/ChainRuntime/internal/common"
)

var (
	tooManyResultsRe = regexp.MustCompile(`(?i)(query returned more than \d+ results|too many results|log response size exceeded|block range (is )?too (large|wide))`)
	blockRangeRe     = regexp.MustCompile(`\[(0x[0-9a-fA-F]+),\s*(0x[0-9a-fA-F]+)\]`)
)

// IsTooManyResultsError reports whether err is a node refusing an eth_getLogs range
// as too large, and returns the message that may carry a suggested range.
func IsTooManyResultsError(err error) (bool, string) {
	if err == nil {
		return false, ""
	}

	msg := err.Error()
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) && dataErr.ErrorData() != nil {
		msg = fmt.Sprintf("%s: %v", msg, dataErr.ErrorData())
	}

	return tooManyResultsRe.MatchString(msg), msg
}

// ParseSuggestedBlockRange extracts the range suggested by messages like
// "Query returned more than 10000 results. Try with this block range [0x7dfd25, 0x7e0fcc]."
func ParseSuggestedBlockRange(msg string) (fromBlock, toBlock uint64, ok bool) {
	matches := blockRangeRe.FindStringSubmatch(msg)
	if len(matches) != 3 { //nolint:mnd
		return 0, 0, false
	}

	from, err := common.ParseUint64orHex(matches[1])
	if err != nil {
		return 0, 0, false
	}
	to, err := common.ParseUint64orHex(matches[2])
	if err != nil || to < from {
		return 0, 0, false
	}

	return from, to, true
}

var (
	timeoutMarkers   = []string{"timeout", "deadline exceeded"}
	rateLimitMarkers = []string{"429", "too many requests", "rate limit"}
	serverMarkers    = []string{"502", "503", "504", "bad gateway", "service unavailable", "gateway timeout"}
	networkMarkers   = []string{"connection pool", "no available connection", "connection refused", "connection reset", "eof"}
)

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// errorType classifies err for metrics and retry decisions.
func errorType(err error) string {
	if err == nil {
		return ""
	}

	if ok, _ := IsTooManyResultsError(err); ok {
		return "too_many_results"
	}

	var netErr net.Error
	if errors.As(err, &netErr) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return "network"
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, timeoutMarkers):
		return "timeout"
	case containsAny(msg, rateLimitMarkers):
		return "rate_limit"
	case containsAny(msg, serverMarkers):
		return "server"
	case containsAny(msg, networkMarkers):
		return "network"
	default:
		return "other"
	}
}

// retryable reports whether a failed call is worth repeating.
func retryable(err error) bool {
	switch errorType(err) {
	case "network", "timeout", "rate_limit", "server":
		return true
	default:
		return false
	}
}
