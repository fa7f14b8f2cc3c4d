package rmt

import "sort"

// Group is the set of records in one collection sharing one IdentityKey.
// A group of size 1 is not a duplicate and contributes no mutations.
type Group struct {
	Collection string
	Key        IdentityKey
	Records    []Record
}

// SurvivorPolicy selects which record in a duplicate group is kept.
type SurvivorPolicy int

const (
	// PolicyOldest keeps the earliest-created record.
	PolicyOldest SurvivorPolicy = iota
	// PolicyNewest keeps the latest-created record.
	PolicyNewest
)

func (p SurvivorPolicy) String() string {
	if p == PolicyNewest {
		return "newest"
	}
	return "oldest"
}

// ParseSurvivorPolicy maps the CLI policy name to a SurvivorPolicy.
func ParseSurvivorPolicy(s string) (SurvivorPolicy, error) {
	switch s {
	case "oldest", "":
		return PolicyOldest, nil
	case "newest":
		return PolicyNewest, nil
	default:
		return PolicyOldest, &ConfigError{Reason: "survivor policy must be oldest or newest, got " + s}
	}
}

// GroupRecords partitions records by (collection, identity key). Records
// whose identity field is empty are skipped: an absent identity cannot
// collide. Groups come back in a deterministic order (by collection, then
// key) so repeated dry runs print identically.
func GroupRecords(records []Record, fm FieldMap, norm *Normalizer) []Group {
	byKey := make(map[string]*Group)
	var order []string
	for _, r := range records {
		raw := r.Field(fm.IdentityField)
		if raw == "" {
			continue
		}
		key := norm.Normalize(raw)
		mapKey := r.Collection + "\x00" + string(key)
		g, ok := byKey[mapKey]
		if !ok {
			g = &Group{Collection: r.Collection, Key: key}
			byKey[mapKey] = g
			order = append(order, mapKey)
		}
		g.Records = append(g.Records, r)
	}

	sort.Strings(order)
	groups := make([]Group, 0, len(order))
	for _, k := range order {
		groups = append(groups, *byKey[k])
	}
	return groups
}

// Duplicates returns the groups of size greater than 1.
func Duplicates(groups []Group) []Group {
	var dups []Group
	for _, g := range groups {
		if len(g.Records) > 1 {
			dups = append(dups, g)
		}
	}
	return dups
}

// SelectSurvivor picks the canonical record of a group per policy,
// comparing CreatedAt and breaking ties on the lexicographically smallest
// ID. The choice is deterministic: repeated runs on unchanged data always
// pick the same survivor. All other records are returned as duplicates.
func SelectSurvivor(g Group, policy SurvivorPolicy) (survivor Record, duplicates []Record) {
	survivor = g.Records[0]
	for _, r := range g.Records[1:] {
		if beats(r, survivor, policy) {
			survivor = r
		}
	}
	for _, r := range g.Records {
		if r.ID != survivor.ID {
			duplicates = append(duplicates, r)
		}
	}
	return survivor, duplicates
}

func beats(a, b Record, policy SurvivorPolicy) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		if policy == PolicyNewest {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
