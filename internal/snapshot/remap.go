package snapshot

// IDMap records, for one entity type, the identifier a snapshot row had in its
// origin tenant against the identifier it was written under in the destination.
type IDMap map[int64]int64

func (m IDMap) Set(oldID, newID int64) { m[oldID] = newID }

func (m IDMap) Lookup(oldID int64) (int64, bool) {
	id, ok := m[oldID]
	return id, ok
}

// Resolve rewrites an optional reference. Unmapped and nil references
// resolve to nil.
func (m IDMap) Resolve(oldID *int64) *int64 {
	if oldID == nil {
		return nil
	}
	id, ok := m[*oldID]
	if !ok {
		return nil
	}
	return &id
}

// Tally counts what reconciliation did with one entity type.
type Tally struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

// upsertFunc writes one parent row by natural key and returns the destination
// identifier and whether the row was newly created.
type upsertFunc[T any] func(item T) (newID int64, created bool, err error)

// remap upserts every item and captures old→new identifiers so children can
// be rewritten before they are persisted. When onError is nil a row error
// aborts the pass; otherwise onError decides, and returning nil skips the row.
func remap[T any](items []T, oldID func(T) int64, upsert upsertFunc[T], onError func(T, error) error) (IDMap, Tally, error) {
	ids := make(IDMap, len(items))
	var tally Tally
	for _, item := range items {
		newID, created, err := upsert(item)
		if err != nil {
			if onError == nil {
				return nil, tally, err
			}
			if err := onError(item, err); err != nil {
				return nil, tally, err
			}
			tally.Skipped++
			continue
		}
		ids.Set(oldID(item), newID)
		if created {
			tally.Created++
		} else {
			tally.Updated++
		}
	}
	return ids, tally, nil
}
