package domain

const (
	DefaultPageSize = 25
	MaxPageSize     = 100
)

// ClampPageSize applies the default and the upper bound to a requested page size.
func ClampPageSize(size int) int {
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return size
}

// ContractFilter selects contracts for read-only listing. Deleted contracts are
// excluded unless IncludeDeleted is set. OrgID keeps contracts where that
// organisation is a member or is invited.
type ContractFilter struct {
	IDs            []string
	OrgID          string
	Type           ContractType
	Status         ContractStatus
	IncludeDeleted bool
	PageSize       int
	Offset         int
}

func (f ContractFilter) Matches(c Contract) bool {
	if len(f.IDs) > 0 && !contains(f.IDs, c.Ctid) {
		return false
	}
	if f.OrgID != "" && !c.IsMember(f.OrgID) && !c.IsPending(f.OrgID) {
		return false
	}
	if f.Type != "" && c.Type != f.Type {
		return false
	}
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	if c.Deleted && !f.IncludeDeleted {
		return false
	}
	return true
}

// CommunityFilter selects communities; OrgID matches communities listing that organisation.
type CommunityFilter struct {
	Kind     CommunityKind
	OrgID    string
	PageSize int
	Offset   int
}

func (f CommunityFilter) Matches(c Community) bool {
	if f.Kind != "" && c.Kind != f.Kind {
		return false
	}
	if f.OrgID != "" {
		if _, ok := c.Member(f.OrgID); !ok {
			return false
		}
	}
	return true
}

// Page slices a fully materialized result according to offset and a clamped page size.
// A zero page size means "everything" and is used by internal sweeps.
func Page[T any](all []T, offset, size int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return []T{}
	}
	all = all[offset:]
	if size > 0 && size < len(all) {
		all = all[:size]
	}
	return all
}
