package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/yndnr/gridbackup-go/internal/core/domain"
	"github.com/yndnr/gridbackup-go/internal/infra/simthread"
)

// GridResolver resolves operator tokens and viewpoints to graph groups.
type GridResolver struct {
	world WorldGridSource
	sim   *simthread.Dispatcher
}

// NewGridResolver creates a resolver that queries world on sim.
func NewGridResolver(world WorldGridSource, sim *simthread.Dispatcher) *GridResolver {
	return &GridResolver{world: world, sim: sim}
}

// Resolve returns the candidate groups for token, or for the group the
// viewpoint targets when token is empty.
//
// Zero matches is ErrGridNotFound. A non-empty token matching more than one
// group is ErrGridAmbiguous; the operator has to use an id or rename.
func (r *GridResolver) Resolve(ctx context.Context, token string, vp *domain.Viewpoint, includeConnections bool) ([]domain.GraphGroup, error) {
	token = strings.TrimSpace(token)
	if token == "" && vp == nil {
		return nil, domain.ErrNoViewpoint
	}

	groups, err := simthread.Call(ctx, r.sim, func() ([]domain.GraphGroup, error) {
		return r.world.FindGraphGroups(token, vp, includeConnections)
	})
	if err != nil {
		return nil, worldErr(err)
	}

	switch {
	case len(groups) == 0:
		if token == "" {
			return nil, domain.ErrGridNotFound.WithDetails("nothing targeted from viewpoint")
		}
		return nil, domain.ErrGridNotFound.WithDetailsf("token %q", token)
	case len(groups) > 1 && token != "":
		return nil, ambiguous(token, groups)
	}
	return groups, nil
}

// ResolveOne is Resolve for callers that act on exactly one group.
func (r *GridResolver) ResolveOne(ctx context.Context, token string, vp *domain.Viewpoint, includeConnections bool) (domain.GraphGroup, error) {
	groups, err := r.Resolve(ctx, token, vp, includeConnections)
	if err != nil {
		return domain.GraphGroup{}, err
	}
	if len(groups) > 1 {
		return domain.GraphGroup{}, ambiguous(token, groups)
	}
	return groups[0], nil
}

// ResolveOwned returns every group owned by identityID. An identity with
// no grids yields an empty list, not an error.
func (r *GridResolver) ResolveOwned(ctx context.Context, identityID int64, includeConnections bool) ([]domain.GraphGroup, error) {
	groups, err := simthread.Call(ctx, r.sim, func() ([]domain.GraphGroup, error) {
		return r.world.OwnedGraphGroups(identityID, includeConnections)
	})
	if err != nil {
		return nil, worldErr(err)
	}
	return groups, nil
}

// ResolveIdentity finds an identity by name or id.
func (r *GridResolver) ResolveIdentity(ctx context.Context, token string) (domain.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Identity{}, domain.ErrMissingArgument.WithDetails("identity is required")
	}

	type found struct {
		id domain.Identity
		ok bool
	}
	res, err := simthread.Call(ctx, r.sim, func() (found, error) {
		id, ok := r.world.ResolveIdentity(token)
		return found{id, ok}, nil
	})
	if err != nil {
		return domain.Identity{}, worldErr(err)
	}
	if !res.ok {
		return domain.Identity{}, domain.ErrIdentityNotFound.WithDetailsf("token %q", token)
	}
	return res.id, nil
}

// Identities lists every identity known to the world.
func (r *GridResolver) Identities(ctx context.Context) ([]domain.Identity, error) {
	ids, err := simthread.Call(ctx, r.sim, func() ([]domain.Identity, error) {
		return r.world.AllIdentities(), nil
	})
	if err != nil {
		return nil, worldErr(err)
	}
	return ids, nil
}

func ambiguous(token string, groups []domain.GraphGroup) *domain.DomainError {
	parts := make([]string, 0, len(groups))
	for _, g := range groups {
		c := g.Candidate()
		parts = append(parts, fmt.Sprintf("%s (%d)", c.Name, c.EntityID))
	}
	return domain.ErrGridAmbiguous.WithDetailsf("token %q matches %s; use an entity id or rename the grids", token, strings.Join(parts, ", "))
}

// worldErr keeps domain errors from the world and codes everything else.
func worldErr(err error) error {
	if ctxErr := contextErr(err); ctxErr != nil {
		return ctxErr
	}
	return domain.AsDomainError(err, domain.ErrInternalServer)
}
