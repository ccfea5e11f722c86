package orchestrator

import (
	"github.com/yairfalse/lambdaterm/internal/config"
	"github.com/yairfalse/lambdaterm/types"
)

// BuildRequest validates the instance ids and token in cfg and returns the
// terminate payload. Ids are split literally on ","; see types.ParseInstanceSet.
func BuildRequest(cfg *config.Config) (types.TerminationRequest, types.Credential, error) {
	ids, err := types.ParseInstanceSet(cfg.InstanceIDs)
	if err != nil {
		return types.TerminationRequest{}, "", err
	}

	cred, err := types.NewCredential(cfg.Token)
	if err != nil {
		return types.TerminationRequest{}, "", err
	}

	return types.TerminationRequest{InstanceIDs: ids}, cred, nil
}
