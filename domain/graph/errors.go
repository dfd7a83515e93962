package graph

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/emergent-company/dualstore/pkg/apperror"
)

// classify maps a runner error onto the error taxonomy: unreachable, timed out
// or unauthorized stores become ErrConnection, everything else ErrDatabase.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if isConnectionError(err) {
		return apperror.ErrConnection.WithMessage(op + ": graph store unavailable").WithInternal(err)
	}
	return apperror.ErrDatabase.WithMessage(op + " failed").WithInternal(err)
}

func isConnectionError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if neo4j.IsConnectivityError(err) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) {
		return strings.HasPrefix(neoErr.Code, "Neo.ClientError.Security.") ||
			strings.HasPrefix(neoErr.Code, "Neo.TransientError.General.DatabaseUnavailable")
	}
	return false
}
