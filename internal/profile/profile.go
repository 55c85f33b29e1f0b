// Package profile defines the closed set of named TDP profiles and
// validates them once at load time.
package profile

import (
	"sort"

	"codeberg.org/mutker/tdpctl/internal/errors"
)

// Hardware-safe bounds for the three power limits, in milliwatts.
const (
	MinLimit = 5000
	MaxLimit = 120000
)

// Profile describes one named set of TDP limits. All limits are in
// milliwatts. Profiles are immutable once loaded.
type Profile struct {
	Name        string `mapstructure:"-"`
	StapmLimit  int    `mapstructure:"stapm_limit"`
	FastLimit   int    `mapstructure:"fast_limit"`
	SlowLimit   int    `mapstructure:"slow_limit"`
	RefreshHz   int    `mapstructure:"refresh_hz"`
	Description string `mapstructure:"description"`
}

// Builtins returns the built-in profiles in their canonical order.
func Builtins() []Profile {
	return []Profile{
		{
			Name:        "silent",
			StapmLimit:  10000,
			FastLimit:   12000,
			SlowLimit:   10000,
			RefreshHz:   60,
			Description: "Lowest power draw for quiet battery operation",
		},
		{
			Name:        "balanced",
			StapmLimit:  25000,
			FastLimit:   30000,
			SlowLimit:   27000,
			RefreshHz:   60,
			Description: "Everyday workloads",
		},
		{
			Name:        "performance",
			StapmLimit:  35000,
			FastLimit:   42000,
			SlowLimit:   38000,
			RefreshHz:   165,
			Description: "Sustained heavy workloads on AC",
		},
		{
			Name:        "turbo",
			StapmLimit:  45000,
			FastLimit:   65000,
			SlowLimit:   54000,
			RefreshHz:   165,
			Description: "Maximum limits, gaming and compilation",
		},
	}
}

// Catalog holds the validated name to profile mapping. List order is
// stable for a process lifetime: built-ins first, then user profiles
// sorted by name.
type Catalog struct {
	profiles map[string]Profile
	order    []string
}

// Load merges the built-in profiles with user-supplied ones and
// validates the result. A user profile may not reuse a built-in name.
func Load(user []Profile) (*Catalog, error) {
	errFactory := errors.New()

	merged := Builtins()
	sorted := make([]Profile, len(user))
	copy(sorted, user)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})
	merged = append(merged, sorted...)

	c := &Catalog{
		profiles: make(map[string]Profile, len(merged)),
		order:    make([]string, 0, len(merged)),
	}

	for _, p := range merged {
		if p.Name == "" {
			return nil, errFactory.WithData(ErrInvalidProfile, validationDetail{
				Field:  "name",
				Reason: "must not be empty",
			})
		}
		if _, exists := c.profiles[p.Name]; exists {
			return nil, errFactory.WithData(ErrDuplicateProfile, validationDetail{
				Profile: p.Name,
				Field:   "name",
				Reason:  "already defined",
			})
		}
		if err := validate(p); err != nil {
			return nil, err
		}
		c.profiles[p.Name] = p
		c.order = append(c.order, p.Name)
	}

	return c, nil
}

// Get returns the profile with the given name.
func (c *Catalog) Get(name string) (Profile, error) {
	p, ok := c.profiles[name]
	if !ok {
		return Profile{}, errors.New().WithData(ErrProfileNotFound, name)
	}

	return p, nil
}

// List returns all profiles in load order.
func (c *Catalog) List() []Profile {
	out := make([]Profile, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.profiles[name])
	}

	return out
}

type validationDetail struct {
	Profile string
	Field   string
	Reason  string
}

func validate(p Profile) error {
	errFactory := errors.New()

	limits := []struct {
		field string
		value int
	}{
		{"stapm_limit", p.StapmLimit},
		{"fast_limit", p.FastLimit},
		{"slow_limit", p.SlowLimit},
	}

	for _, l := range limits {
		if l.value < MinLimit || l.value > MaxLimit {
			return errFactory.WithData(ErrInvalidProfile, validationDetail{
				Profile: p.Name,
				Field:   l.field,
				Reason:  "outside hardware-safe range",
			})
		}
	}

	if p.FastLimit < p.StapmLimit {
		return errFactory.WithData(ErrInvalidProfile, validationDetail{
			Profile: p.Name,
			Field:   "fast_limit",
			Reason:  "must not be below stapm_limit",
		})
	}

	if p.RefreshHz < 0 {
		return errFactory.WithData(ErrInvalidProfile, validationDetail{
			Profile: p.Name,
			Field:   "refresh_hz",
			Reason:  "must not be negative",
		})
	}

	return nil
}
