package pool

// MergeMode selects what Merge does with a key present in both pools.
type MergeMode int

const (
	// MergeKeep keeps the destination value and reports the key as a
	// conflict.
	MergeKeep MergeMode = iota
	// MergeOverwrite replaces the destination value.
	MergeOverwrite
	// MergeAppend adds the source value to the destination collection
	// with the same rules as Pool.Add.
	MergeAppend
)

func (m MergeMode) String() string {
	switch m {
	case MergeKeep:
		return "keep"
	case MergeOverwrite:
		return "overwrite"
	case MergeAppend:
		return "append"
	default:
		return "unknown"
	}
}

// Merge copies every descriptor of src into p in src order.
//
// Keys absent from p are always inserted. For keys present in both, mode
// decides. The returned slice lists the keys whose source value was not
// applied (MergeKeep with a differing value); a value is never dropped
// without being reported. Identical values are not conflicts.
func (p *Pool) Merge(src *Pool, mode MergeMode) ([]string, error) {
	var conflicts []string
	for _, key := range src.order {
		v := src.values[key]
		cur, exists := p.values[key]
		if !exists {
			if err := p.Set(key, v); err != nil {
				return conflicts, err
			}
			continue
		}
		switch mode {
		case MergeOverwrite:
			if err := p.Set(key, v); err != nil {
				return conflicts, err
			}
		case MergeAppend:
			if err := p.Add(key, v); err != nil {
				return conflicts, err
			}
		default:
			if !cur.Equal(v) {
				conflicts = append(conflicts, key)
			}
		}
	}
	return conflicts, nil
}
