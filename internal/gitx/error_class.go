// SPDX-License-Identifier: MIT
package gitx

import (
	"context"
	"errors"
	"strings"
)

// ClassifyError buckets a git or process error into one of the coarse
// categories surfaced in run summaries: auth, network, timeout,
// corrupt, missing_remote or unknown.
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return "timeout"
	}

	// git exposes no stable error codes, so classification matches
	// stderr substrings.
	msg := strings.ToLower(err.Error())
	switch {
	case hasAny(msg, "permission denied", "authentication failed", "access denied", "publickey", "could not read username", "credential", "invalid credentials"):
		return "auth"
	case hasAny(msg, "could not resolve host", "network is unreachable", "connection timed out", "connection refused", "failed to connect", "temporary failure in name resolution", "tls handshake timeout"):
		return "network"
	case hasAny(msg, "timeout", "timed out", "deadline exceeded"):
		return "timeout"
	case hasAny(msg, "not a git repository", "bad object", "corrupt", "object file"):
		return "corrupt"
	case hasAny(msg, "repository not found", "couldn't find remote ref", "remote ref does not exist", "no such remote"):
		return "missing_remote"
	default:
		return "unknown"
	}
}

// Transient reports whether err looks like a passing transport failure
// that a retry could recover from. Deliberate cancellation is never
// transient.
func Transient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	switch ClassifyError(err) {
	case "network", "timeout":
		return true
	default:
		return false
	}
}

func hasAny(msg string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
