// Package registry resolves which configured sources are eligible for a
// query. Pure read logic over the credential and descriptor repositories; no
// network or adapter calls.
package registry

import (
	"context"
	"strings"

	"vigil/internal/domain"
	"vigil/internal/ports"
)

type Service struct {
	sources     ports.SourceRepository
	credentials ports.CredentialRepository
}

func New(sources ports.SourceRepository, credentials ports.CredentialRepository) *Service {
	return &Service{sources: sources, credentials: credentials}
}

// EligibleWithCredentials returns every (credential, descriptor) pair where
// both halves are active, optionally filtered to the given source names.
// When autoOnly is set, only credentials in auto update mode qualify; this is
// the guard that keeps the scheduler off manually-managed quota.
func (s *Service) EligibleWithCredentials(ctx context.Context, names []string, autoOnly bool) ([]domain.CredentialedSource, error) {
	return s.credentials.ListEligible(ctx, lowered(names), autoOnly)
}

// EligibleWithoutCredentials returns active descriptors that require no
// authentication, under the same optional name filter.
func (s *Service) EligibleWithoutCredentials(ctx context.Context, names []string) ([]domain.SourceDescriptor, error) {
	return s.sources.ListActiveUnauthenticated(ctx, lowered(names))
}

func lowered(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n != "" {
			out = append(out, n)
		}
	}
	return out
}
