package database

import "strings"

// Filter selects media objects. Every condition is optional and the set
// conditions are ANDed. Builder methods return a new Filter, so a base
// filter can be extended independently by several callers.
type Filter struct {
	owner    *string
	favorite *bool
	deleted  *bool
	ids      []string
	hasIDs   bool
}

// NewFilter returns a filter that matches everything.
func NewFilter() Filter {
	return Filter{}
}

// Owner restricts matches to one owner.
func (f Filter) Owner(ownerID string) Filter {
	f.owner = &ownerID
	return f
}

// Favorite restricts matches by favorite flag.
func (f Filter) Favorite(v bool) Filter {
	f.favorite = &v
	return f
}

// Deleted restricts matches by soft-deletion state.
func (f Filter) Deleted(v bool) Filter {
	f.deleted = &v
	return f
}

// IDs restricts matches to the given ids. An empty list matches nothing.
func (f Filter) IDs(ids ...string) Filter {
	f.ids = append([]string(nil), ids...)
	f.hasIDs = true
	return f
}

// OwnerID returns the owner condition, if set.
func (f Filter) OwnerID() (string, bool) {
	if f.owner == nil {
		return "", false
	}
	return *f.owner, true
}

// Matches evaluates the filter against m in memory.
func (f Filter) Matches(m *MediaObject) bool {
	if m == nil {
		return false
	}
	if f.owner != nil && m.OwnerID != *f.owner {
		return false
	}
	if f.favorite != nil && m.Favorite != *f.favorite {
		return false
	}
	if f.deleted != nil && m.MarkedForDeletion != *f.deleted {
		return false
	}
	if f.hasIDs {
		found := false
		for _, id := range f.ids {
			if id == m.ID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// where compiles the filter to a WHERE clause (without the keyword) and its arguments.
func (f Filter) where() (string, []interface{}) {
	var conds []string
	var args []interface{}

	if f.owner != nil {
		conds = append(conds, "owner_id = ?")
		args = append(args, *f.owner)
	}
	if f.favorite != nil {
		conds = append(conds, "favorite = ?")
		args = append(args, boolToInt(*f.favorite))
	}
	if f.deleted != nil {
		conds = append(conds, "marked_for_deletion = ?")
		args = append(args, boolToInt(*f.deleted))
	}
	if f.hasIDs {
		if len(f.ids) == 0 {
			conds = append(conds, "1 = 0")
		} else {
			conds = append(conds, "id IN ("+placeholders(len(f.ids))+")")
			args = append(args, stringArgs(f.ids)...)
		}
	}

	if len(conds) == 0 {
		return "1 = 1", nil
	}
	return strings.Join(conds, " AND "), args
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
