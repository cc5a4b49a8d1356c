// Package resolve implements C6, the Name Resolver: a pure function
// over C5 (existence cache) and C7 (entity actors) mapping an
// admissible mix of ids and names for an owner/organization/
// repository/branch path to canonical ids, preferring a supplied id
// over a supplied name at every level.
package resolve

import (
	"context"
	"fmt"

	"github.com/torratdev/grace/internal/errs"
	"github.com/torratdev/grace/internal/platform/cache"
)

// Path is the admissible mix of ids and names the caller supplies for
// a request path. Only the levels relevant to the command need be set;
// a level is resolved only if its parent resolved successfully.
type Path struct {
	OwnerID   string
	OwnerName string

	OrganizationID   string
	OrganizationName string

	RepositoryID   string
	RepositoryName string

	BranchID   string
	BranchName string
}

// Resolved carries the canonical ids resolved at each requested level.
type Resolved struct {
	OwnerID        string
	OrganizationID string
	RepositoryID   string
	BranchID       string
}

// Lookup is the narrow set of id-by-name lookups the resolver needs.
// The server's adapter backs RepositoryIDByName with the RepositoryName
// index actor; its other lookups always report not found.
type Lookup interface {
	OwnerIDByName(ctx context.Context, name string) (id string, found bool, err error)
	OrganizationIDByName(ctx context.Context, ownerID, name string) (id string, found bool, err error)
	RepositoryIDByName(ctx context.Context, repoName, ownerID, organizationID string) (id string, found bool, err error)
	BranchIDByName(ctx context.Context, repositoryID, name string) (id string, found bool, err error)
}

// Resolver is the C6 Name Resolver.
type Resolver struct {
	cache  *cache.Cache
	lookup Lookup
}

// New builds a Resolver. cache is consulted to short-circuit existence
// checks a caller makes separately from resolution; it never gates
// resolution itself, per the spec's "never authoritative."
func New(cache *cache.Cache, lookup Lookup) *Resolver {
	return &Resolver{cache: cache, lookup: lookup}
}

// Resolve maps the requested levels of p to canonical ids, preferring
// a supplied id over a supplied name at each level. A level with
// neither id nor name set resolves to "" and is skipped. A name that
// fails to resolve to an existing entity yields errs.ErrEntityNotFound.
func (r *Resolver) Resolve(ctx context.Context, p Path) (Resolved, error) {
	var out Resolved

	switch {
	case p.OwnerID != "":
		out.OwnerID = p.OwnerID
	case p.OwnerName != "":
		id, found, err := r.lookup.OwnerIDByName(ctx, p.OwnerName)
		if err != nil {
			return out, errs.WrapDependency("Owner", err)
		}

		if !found {
			return out, errs.Wrap(errs.ErrEntityNotFound, "Owner")
		}

		out.OwnerID = id
	}

	if p.OrganizationID == "" && p.OrganizationName == "" {
		return out, nil
	}

	if out.OwnerID == "" {
		return out, errs.Wrap(errs.ErrUnresolvedAncestor, "Organization")
	}

	switch {
	case p.OrganizationID != "":
		out.OrganizationID = p.OrganizationID
	case p.OrganizationName != "":
		id, found, err := r.lookup.OrganizationIDByName(ctx, out.OwnerID, p.OrganizationName)
		if err != nil {
			return out, errs.WrapDependency("Organization", err)
		}

		if !found {
			return out, errs.Wrap(errs.ErrEntityNotFound, "Organization")
		}

		out.OrganizationID = id
	}

	if p.RepositoryID == "" && p.RepositoryName == "" {
		return out, nil
	}

	if out.OrganizationID == "" {
		return out, errs.Wrap(errs.ErrUnresolvedAncestor, "Repository")
	}

	switch {
	case p.RepositoryID != "":
		out.RepositoryID = p.RepositoryID
	case p.RepositoryName != "":
		id, found, err := r.lookup.RepositoryIDByName(ctx, p.RepositoryName, out.OwnerID, out.OrganizationID)
		if err != nil {
			return out, errs.WrapDependency("Repository", err)
		}

		if !found {
			return out, errs.Wrap(errs.ErrEntityNotFound, "Repository")
		}

		out.RepositoryID = id
	}

	if p.BranchID == "" && p.BranchName == "" {
		return out, nil
	}

	if out.RepositoryID == "" {
		return out, errs.Wrap(errs.ErrUnresolvedAncestor, "Branch")
	}

	switch {
	case p.BranchID != "":
		out.BranchID = p.BranchID
	case p.BranchName != "":
		id, found, err := r.lookup.BranchIDByName(ctx, out.RepositoryID, p.BranchName)
		if err != nil {
			return out, errs.WrapDependency("Branch", err)
		}

		if !found {
			return out, errs.Wrap(errs.ErrEntityNotFound, "Branch")
		}

		out.BranchID = id
	}

	return out, nil
}

// ExistsCached consults the C5 cache for key, falling back to fetch
// (an actor Exists call) on a miss and caching the result.
func (r *Resolver) ExistsCached(ctx context.Context, key string, fetch func(context.Context) (bool, error)) (bool, error) {
	switch r.cache.Get(key) {
	case cache.Exists:
		return true, nil
	case cache.DoesNotExist:
		return false, nil
	}

	exists, err := fetch(ctx)
	if err != nil {
		return false, fmt.Errorf("resolve: exists check for %s: %w", key, err)
	}

	if exists {
		r.cache.Set(key, cache.Exists)
	} else {
		r.cache.Set(key, cache.DoesNotExist)
	}

	return exists, nil
}
