// Package profile ships embedded policy presets. A profile is a partial
// config overlay: applying one overrides only the sections it sets, the same
// semantics as loading a user config over the defaults.
package profile

import (
	"embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/toolgate/internal/policy"
)

//go:embed profiles/*.yaml
var profilesFS embed.FS

// Profile is one embedded preset.
type Profile struct {
	Name        string
	Description string
	Raw         []byte
}

var descriptions = map[string]string{
	"readonly": "observation only: no state-changing commands, tight caps",
	"standard": "the built-in defaults, written out explicitly",
	"trusted":  "wider tool set and looser caps, sandbox rules unchanged",
}

// Names returns the available profile names sorted.
func Names() []string {
	entries, err := profilesFS.ReadDir("profiles")
	if err != nil {
		panic(fmt.Sprintf("profile: embedded dir: %v", err))
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}

// Get returns the named profile.
func Get(name string) (*Profile, error) {
	raw, err := profilesFS.ReadFile("profiles/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("unknown profile %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return &Profile{
		Name:        name,
		Description: descriptions[name],
		Raw:         raw,
	}, nil
}

// Apply overlays the profile onto cfg. Sections the profile does not set keep
// their current values.
func (p *Profile) Apply(cfg *policy.Config) error {
	if err := yaml.Unmarshal(p.Raw, cfg); err != nil {
		return fmt.Errorf("profile %s: %w", p.Name, err)
	}
	return nil
}
