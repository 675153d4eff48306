// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

// Package quality holds the immutable catalog of rendition targets and the
// static bandwidth tier to profile lookup.
package quality

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tomtom215/mediaforge/internal/config"
)

var (
	// ErrInvalidProfile is returned by NewRegistry for a malformed catalog.
	ErrInvalidProfile = errors.New("invalid quality profile")

	// ErrUnknownProfile is returned when a tier maps to a missing profile.
	ErrUnknownProfile = errors.New("unknown quality profile")

	// ErrEmptyTier is returned by Recommend for a blank tier.
	ErrEmptyTier = errors.New("network tier is required")
)

// Profile is a named encoding target.
type Profile struct {
	Name        string
	Width       int
	Height      int
	BitrateKbps int
	FrameRate   int
	Codec       string
}

// Recommendation is the answer to a tier lookup. Fallback is set when the
// tier was unknown and the lowest-bitrate profile was chosen instead.
type Recommendation struct {
	Tier     string
	Profile  Profile
	Fallback bool
}

// DefaultProfiles is the catalog used when configuration provides none.
func DefaultProfiles() []Profile {
	return []Profile{
		{Name: "720p", Width: 1280, Height: 720, BitrateKbps: 2800, FrameRate: 30, Codec: "h264"},
		{Name: "480p", Width: 854, Height: 480, BitrateKbps: 1400, FrameRate: 30, Codec: "h264"},
		{Name: "360p", Width: 640, Height: 360, BitrateKbps: 800, FrameRate: 30, Codec: "h264"},
		{Name: "240p", Width: 426, Height: 240, BitrateKbps: 400, FrameRate: 24, Codec: "h264"},
	}
}

// DefaultTiers maps network classes to the default profile names.
func DefaultTiers() map[string]string {
	return map[string]string{
		"wifi": "720p",
		"4g":   "480p",
		"3g":   "360p",
		"2g":   "240p",
	}
}

// Registry is safe for concurrent use; it is never mutated after NewRegistry.
type Registry struct {
	profiles []Profile
	byName   map[string]int
	tiers    map[string]string
	lowest   int
	highest  int
}

// NewRegistry validates profiles and tiers. Nil or empty arguments select
// the defaults.
func NewRegistry(profiles []Profile, tiers map[string]string) (*Registry, error) {
	if len(profiles) == 0 {
		profiles = DefaultProfiles()
	}
	if len(tiers) == 0 {
		tiers = DefaultTiers()
	}

	r := &Registry{
		profiles: make([]Profile, len(profiles)),
		byName:   make(map[string]int, len(profiles)),
		tiers:    make(map[string]string, len(tiers)),
	}
	copy(r.profiles, profiles)

	for i, p := range r.profiles {
		if p.Name == "" {
			return nil, fmt.Errorf("%w: profile %d has no name", ErrInvalidProfile, i)
		}
		if _, dup := r.byName[p.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate name %q", ErrInvalidProfile, p.Name)
		}
		if p.Width <= 0 || p.Height <= 0 || p.BitrateKbps <= 0 {
			return nil, fmt.Errorf("%w: %q needs positive width, height and bitrate", ErrInvalidProfile, p.Name)
		}
		if p.Codec == "" {
			r.profiles[i].Codec = "h264"
		}
		if p.FrameRate <= 0 {
			r.profiles[i].FrameRate = 30
		}
		r.byName[p.Name] = i

		if p.BitrateKbps < r.profiles[r.lowest].BitrateKbps {
			r.lowest = i
		}
		if p.BitrateKbps > r.profiles[r.highest].BitrateKbps {
			r.highest = i
		}
	}

	for tier, name := range tiers {
		if _, ok := r.byName[name]; !ok {
			return nil, fmt.Errorf("%w: tier %q maps to %q", ErrUnknownProfile, tier, name)
		}
		r.tiers[strings.ToLower(tier)] = name
	}
	return r, nil
}

// FromConfig builds a registry from the quality configuration section.
func FromConfig(cfg config.QualityConfig) (*Registry, error) {
	profiles := make([]Profile, 0, len(cfg.Profiles))
	for _, p := range cfg.Profiles {
		profiles = append(profiles, Profile(p))
	}
	return NewRegistry(profiles, cfg.Tiers)
}

// List returns the profiles in configured order.
func (r *Registry) List() []Profile {
	out := make([]Profile, len(r.profiles))
	copy(out, r.profiles)
	return out
}

// Get looks a profile up by name.
func (r *Registry) Get(name string) (Profile, bool) {
	i, ok := r.byName[name]
	if !ok {
		return Profile{}, false
	}
	return r.profiles[i], true
}

// Recommend maps a network tier (wifi, 4g, 3g, 2g) to a profile. Tiers are
// matched case-insensitively. An unknown tier is not an error: it gets the
// lowest-bitrate profile with Fallback set.
func (r *Registry) Recommend(tier string) (Recommendation, error) {
	key := strings.ToLower(strings.TrimSpace(tier))
	if key == "" {
		return Recommendation{}, ErrEmptyTier
	}
	if name, ok := r.tiers[key]; ok {
		return Recommendation{Tier: key, Profile: r.profiles[r.byName[name]]}, nil
	}
	return Recommendation{Tier: key, Profile: r.Lowest(), Fallback: true}, nil
}

// Recommendations returns a copy of the tier map.
func (r *Registry) Recommendations() map[string]string {
	out := make(map[string]string, len(r.tiers))
	for k, v := range r.tiers {
		out[k] = v
	}
	return out
}

// Tiers returns the known tier names sorted.
func (r *Registry) Tiers() []string {
	out := make([]string, 0, len(r.tiers))
	for k := range r.tiers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Lowest() Profile  { return r.profiles[r.lowest] }
func (r *Registry) Highest() Profile { return r.profiles[r.highest] }
