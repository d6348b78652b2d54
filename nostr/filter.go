package nostr

import "slices"

// Filter selects events for a subscription. Empty fields match everything.
type Filter struct {
	IDs     []string `json:"ids,omitempty"`
	Authors []string `json:"authors,omitempty"`
	Kinds   []int    `json:"kinds,omitempty"`
	ETags   []string `json:"#e,omitempty"`
	PTags   []string `json:"#p,omitempty"`
	Since   *int64   `json:"since,omitempty"`
	Until   *int64   `json:"until,omitempty"`
	Limit   int      `json:"limit,omitempty"`
}

func (f Filter) Matches(ev Event) bool {
	if len(f.IDs) > 0 && !slices.Contains(f.IDs, ev.ID) {
		return false
	}
	if len(f.Authors) > 0 && !slices.Contains(f.Authors, ev.PubKey) {
		return false
	}
	if len(f.Kinds) > 0 && !slices.Contains(f.Kinds, ev.Kind) {
		return false
	}
	if f.Since != nil && ev.CreatedAt < *f.Since {
		return false
	}
	if f.Until != nil && ev.CreatedAt > *f.Until {
		return false
	}
	if len(f.ETags) > 0 && !hasTagValue(ev.Tags, "e", f.ETags) {
		return false
	}
	if len(f.PTags) > 0 && !hasTagValue(ev.Tags, "p", f.PTags) {
		return false
	}
	return true
}

func hasTagValue(tags Tags, key string, values []string) bool {
	for _, t := range tags.Find(key) {
		if slices.Contains(values, t.Value()) {
			return true
		}
	}
	return false
}
