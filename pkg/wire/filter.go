package wire

import "encoding/json"

// Filter describes a NIP-01 query: the set of events a relay should return
// for a REQ, or match against future events for a live subscription.
// A nil or zero-valued field means "unconstrained" for that dimension.
type Filter struct {
	IDs     []Id                `json:"ids,omitempty"`
	Authors []string            `json:"authors,omitempty"`
	Kinds   []int               `json:"kinds,omitempty"`
	Tags    map[string][]string `json:"-"`
	Since   *Timestamp          `json:"since,omitempty"`
	Until   *Timestamp          `json:"until,omitempty"`
	Limit   *int                `json:"limit,omitempty"`
	Search  string              `json:"search,omitempty"`
}

// Matches reports whether an event satisfies every constraint in the
// filter, including the Since/Until bounds on its CreatedAt. Limit and
// Search are not checked.
func (f *Filter) Matches(e *Event) bool {
	if f == nil || e == nil {
		return false
	}
	if len(f.IDs) > 0 && !containsId(f.IDs, e.ID) {
		return false
	}
	if len(f.Authors) > 0 && !containsString(f.Authors, e.PubKey) {
		return false
	}
	if len(f.Kinds) > 0 && !containsInt(f.Kinds, e.Kind) {
		return false
	}
	for key, values := range f.Tags {
		if !e.Tags.ContainsAny(key, values) {
			return false
		}
	}
	if f.Since != nil && e.CreatedAt < *f.Since {
		return false
	}
	if f.Until != nil && e.CreatedAt > *f.Until {
		return false
	}
	return true
}

// Clone returns a deep-enough copy of the filter so the caller can mutate
// slices/maps in the copy without affecting the original; used when the
// pool fans the same logical filter out to several relays independently.
func (f *Filter) Clone() *Filter {
	if f == nil {
		return nil
	}
	c := &Filter{Search: f.Search}
	if f.IDs != nil {
		c.IDs = append([]Id(nil), f.IDs...)
	}
	if f.Authors != nil {
		c.Authors = append([]string(nil), f.Authors...)
	}
	if f.Kinds != nil {
		c.Kinds = append([]int(nil), f.Kinds...)
	}
	if f.Tags != nil {
		c.Tags = make(map[string][]string, len(f.Tags))
		for k, v := range f.Tags {
			c.Tags[k] = append([]string(nil), v...)
		}
	}
	if f.Since != nil {
		since := *f.Since
		c.Since = &since
	}
	if f.Until != nil {
		until := *f.Until
		c.Until = &until
	}
	if f.Limit != nil {
		limit := *f.Limit
		c.Limit = &limit
	}
	return c
}

// MarshalJSON flattens the Tags map into NIP-01's "#x" key convention
// alongside the filter's other fields.
func (f *Filter) MarshalJSON() ([]byte, error) {
	type alias Filter
	raw := make(map[string]json.RawMessage)
	b, err := json.Marshal((*alias)(f))
	if err != nil {
		return nil, err
	}
	if err = json.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	for key, values := range f.Tags {
		vb, err := json.Marshal(values)
		if err != nil {
			return nil, err
		}
		raw["#"+key] = vb
	}
	return json.Marshal(raw)
}

// UnmarshalJSON restores the Tags map from any "#x" keys present alongside
// the filter's ordinary fields.
func (f *Filter) UnmarshalJSON(b []byte) error {
	type alias Filter
	if err := json.Unmarshal(b, (*alias)(f)); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for key, v := range raw {
		if len(key) < 2 || key[0] != '#' {
			continue
		}
		var values []string
		if err := json.Unmarshal(v, &values); err != nil {
			continue
		}
		if f.Tags == nil {
			f.Tags = make(map[string][]string)
		}
		f.Tags[key[1:]] = values
	}
	return nil
}

func containsId(ids []Id, id Id) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func containsString(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

func containsInt(is []int, i int) bool {
	for _, x := range is {
		if x == i {
			return true
		}
	}
	return false
}
