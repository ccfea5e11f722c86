package lambda

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/yairfalse/lambdaterm/types"
)

type terminateEnvelope struct {
	Data json.RawMessage `json:"data"`
}

type terminateData struct {
	InstanceIDs []string `json:"instance_ids"`
	// Newer API revisions return full instance records instead of ids.
	TerminatedInstances []struct {
		ID string `json:"id"`
	} `json:"terminated_instances"`
}

func (d terminateData) terminatedIDs() []string {
	if len(d.TerminatedInstances) == 0 {
		return nil
	}
	ids := make([]string, 0, len(d.TerminatedInstances))
	for _, inst := range d.TerminatedInstances {
		ids = append(ids, inst.ID)
	}
	return ids
}

type instanceEnvelope struct {
	Data instanceData `json:"data"`
}

type instanceData struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
	IP     string `json:"ip"`
	Region struct {
		Name string `json:"name"`
	} `json:"region"`
	InstanceType struct {
		Name string `json:"name"`
	} `json:"instance_type"`
}

func (d instanceData) toInstance() types.Instance {
	return types.Instance{
		ID:           d.ID,
		Name:         d.Name,
		Status:       types.InstanceStatus(d.Status),
		IP:           d.IP,
		Region:       d.Region.Name,
		InstanceType: d.InstanceType.Name,
	}
}

type errorEnvelope struct {
	Error *struct {
		Code       string `json:"code"`
		Message    string `json:"message"`
		Suggestion string `json:"suggestion"`
	} `json:"error"`
}

// decodeError maps a non-200 body onto a ProviderError. Bodies that are
// not JSON surface their text as the message.
func decodeError(status int, body []byte) *types.ProviderError {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(status)
		}
		return types.NewProviderError(status, "", msg, "")
	}

	if env.Error == nil {
		return types.NewProviderError(status, "", types.DefaultErrorMessage, "")
	}

	return types.NewProviderError(status, env.Error.Code, env.Error.Message, env.Error.Suggestion)
}
