// Package providers defines the provider API surface lambdaterm drives.
package providers

import (
	"context"

	"github.com/yairfalse/lambdaterm/types"
)

// InstanceAPI is the provider's instance REST API.
// Implementations never exit the process; non-200 responses come back
// as *types.ProviderError.
type InstanceAPI interface {
	// TerminateInstances requests termination of every id in req.
	TerminateInstances(ctx context.Context, req types.TerminationRequest, cred types.Credential) (*types.TerminationResult, error)

	// GetInstance returns the current record for one instance.
	GetInstance(ctx context.Context, instanceID string, cred types.Credential) (*types.Instance, error)

	// Name returns the provider identifier
	Name() string
}
