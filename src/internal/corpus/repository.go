package corpus

import (
	"context"
	"errors"
)

// Repository is the content-addressed store behind ingestion and matching.
// Implementations must be safe for concurrent use. Put never overwrites an
// existing record and UnionInsert only ever grows a set.
type Repository interface {
	Get(ctx context.Context, kind Kind, key string) (*Record, error)
	// Put creates rec if absent and reports whether it was created.
	Put(ctx context.Context, rec *Record) (bool, error)
	// Replace overwrites the body of an existing record.
	Replace(ctx context.Context, rec *Record) error
	SetStatus(ctx context.Context, kind Kind, key string, status Status) error
	SetLookup(ctx context.Context, kind Kind, key, lookup string) error
	// List returns records of kind in index order; an empty status matches all.
	List(ctx context.Context, kind Kind, status Status) ([]*Record, error)
	FindByLookup(ctx context.Context, kind Kind, lookup string) ([]*Record, error)

	UnionInsert(ctx context.Context, kind Kind, key, set string, values ...string) error
	Members(ctx context.Context, kind Kind, key, set string) ([]string, error)

	NextSequence(ctx context.Context, name string) (int64, error)
	// CompareAndSetFlag sets flag name to next when it currently equals prev.
	// A missing flag reads as zero.
	CompareAndSetFlag(ctx context.Context, name string, prev, next int) (bool, error)
	Flag(ctx context.Context, name string) (int, error)
}

// ParentRefs returns the parent references of a record.
func ParentRefs(ctx context.Context, repo Repository, kind Kind, key string) ([]Ref, error) {
	members, err := repo.Members(ctx, kind, key, SetParents)
	if err != nil {
		return nil, err
	}
	refs := make([]Ref, 0, len(members))
	for _, m := range members {
		ref, err := ParseRef(m)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// AddParent union-inserts parent into the parent set of kind/key.
func AddParent(ctx context.Context, repo Repository, kind Kind, key string, parent Ref) error {
	return repo.UnionInsert(ctx, kind, key, SetParents, parent.String())
}

// Create assigns the next index for kind and puts rec if absent. The returned
// record is the stored one, which is rec itself when it was created.
func Create(ctx context.Context, repo Repository, rec *Record) (*Record, bool, error) {
	if existing, err := repo.Get(ctx, rec.Kind, rec.Key); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}
	idx, err := repo.NextSequence(ctx, string(rec.Kind))
	if err != nil {
		return nil, false, err
	}
	rec.Index = idx
	if rec.Status == "" {
		rec.Status = StatusPending
	}
	created, err := repo.Put(ctx, rec)
	if err != nil {
		return nil, false, err
	}
	if !created {
		// 并发写入时另一方先创建成功
		existing, err := repo.Get(ctx, rec.Kind, rec.Key)
		return existing, false, err
	}
	return rec, true, nil
}
