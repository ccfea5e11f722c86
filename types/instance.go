package types

import (
	"strings"
	"time"
)

// InstanceStatus is the lifecycle status reported by the provider
type InstanceStatus string

const (
	StatusBooting     InstanceStatus = "booting"
	StatusActive      InstanceStatus = "active"
	StatusUnhealthy   InstanceStatus = "unhealthy"
	StatusTerminating InstanceStatus = "terminating"
	StatusTerminated  InstanceStatus = "terminated"
)

// IsKnown reports whether s is one of the statuses the provider documents
func (s InstanceStatus) IsKnown() bool {
	switch s {
	case StatusBooting, StatusActive, StatusUnhealthy, StatusTerminating, StatusTerminated:
		return true
	}
	return false
}

// IsTerminating reports whether the provider is still tearing the instance down
func (s InstanceStatus) IsTerminating() bool {
	return s == StatusTerminating
}

// IsTerminated reports whether the instance reached the expected terminal status
func (s InstanceStatus) IsTerminated() bool {
	return s == StatusTerminated
}

// Instance is the subset of a provider instance record this tool reads
type Instance struct {
	ID           string         `json:"id"`
	Name         string         `json:"name,omitempty"`
	Status       InstanceStatus `json:"status"`
	IP           string         `json:"ip,omitempty"`
	Region       string         `json:"region,omitempty"`
	InstanceType string         `json:"instance_type,omitempty"`
	ObservedAt   time.Time      `json:"observed_at"`
}

// InstanceSet is the ordered list of instance ids to act on
type InstanceSet []string

// ParseInstanceSet splits raw on "," without trimming or deduplicating.
// Empty segments from doubled or trailing separators are kept as-is.
func ParseInstanceSet(raw string) (InstanceSet, error) {
	if raw == "" {
		return nil, &ConfigError{Field: "INSTANCE_ID", Reason: "no instance ids to terminate"}
	}
	return InstanceSet(strings.Split(raw, ",")), nil
}

// First returns the first id, or "" for an empty set
func (s InstanceSet) First() string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}

// Credential is an opaque bearer token
type Credential string

// NewCredential validates presence of the token
func NewCredential(token string) (Credential, error) {
	if token == "" {
		return "", &ConfigError{Field: "LAMBDA_TOKEN", Reason: "token is required to authenticate"}
	}
	return Credential(token), nil
}

// AuthorizationHeader renders the Authorization header value
func (c Credential) AuthorizationHeader() string {
	return "Bearer " + string(c)
}

// String redacts the token so it never lands in logs
func (c Credential) String() string {
	if c == "" {
		return ""
	}
	return "[redacted]"
}
