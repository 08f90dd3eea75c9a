package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/indi-protocol/indi-go/pkg/driver"
	"github.com/indi-protocol/indi-go/pkg/model"
)

// Profile is a set of device declarations.
type Profile struct {
	Devices []Device `yaml:"devices"`
}

// Device declares one in-process device.
type Device struct {
	Name       string     `yaml:"name"`
	Driver     string     `yaml:"driver,omitempty"`
	Exec       string     `yaml:"exec,omitempty"`
	Version    string     `yaml:"version,omitempty"`
	Interface  uint32     `yaml:"interface,omitempty"`
	Properties []Property `yaml:"properties,omitempty"`
}

// Property declares one vector.
type Property struct {
	Name     string    `yaml:"name"`
	Kind     string    `yaml:"kind"`
	Label    string    `yaml:"label,omitempty"`
	Group    string    `yaml:"group,omitempty"`
	Perm     string    `yaml:"perm,omitempty"`
	State    string    `yaml:"state,omitempty"`
	Rule     string    `yaml:"rule,omitempty"`
	Timeout  float64   `yaml:"timeout,omitempty"`
	Elements []Element `yaml:"elements"`
}

// Element declares one vector element.
type Element struct {
	Name   string  `yaml:"name"`
	Label  string  `yaml:"label,omitempty"`
	Value  string  `yaml:"value,omitempty"`
	Format string  `yaml:"format,omitempty"`
	Min    float64 `yaml:"min,omitempty"`
	Max    float64 `yaml:"max,omitempty"`
	Step   float64 `yaml:"step,omitempty"`
}

// LoadError describes a profile that could not be loaded.
type LoadError struct {
	File    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *LoadError) Unwrap() error { return e.Cause }

// Parse parses and validates a profile from YAML bytes.
func Parse(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, &LoadError{Message: "failed to parse YAML", Cause: err}
	}

	seen := make(map[string]bool, len(p.Devices))
	for i, d := range p.Devices {
		if d.Name == "" {
			return nil, &LoadError{Message: fmt.Sprintf("device %d has no name", i)}
		}
		if seen[d.Name] {
			return nil, &LoadError{Message: fmt.Sprintf("device %q declared twice", d.Name)}
		}
		seen[d.Name] = true
		if _, err := d.Vectors(); err != nil {
			return nil, &LoadError{Message: fmt.Sprintf("device %q", d.Name), Cause: err}
		}
	}
	return &p, nil
}

// Load loads a profile from a file.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: "failed to read file", Cause: err}
	}

	p, err := Parse(data)
	if err != nil {
		if le, ok := err.(*LoadError); ok {
			le.File = path
			return nil, le
		}
		return nil, &LoadError{File: path, Message: err.Error()}
	}
	return p, nil
}

// LoadDirectory loads and merges every .yaml or .yml profile in dir, in
// file name order.
func LoadDirectory(dir string) (*Profile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &LoadError{File: dir, Message: "failed to read directory", Cause: err}
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	merged := &Profile{}
	seen := make(map[string]string)
	for _, name := range names {
		path := filepath.Join(dir, name)
		p, err := Load(path)
		if err != nil {
			return nil, err
		}
		for _, d := range p.Devices {
			if prev, ok := seen[d.Name]; ok {
				return nil, &LoadError{File: path, Message: fmt.Sprintf("device %q already declared in %s", d.Name, prev)}
			}
			seen[d.Name] = name
			merged.Devices = append(merged.Devices, d)
		}
	}
	return merged, nil
}

// Drivers builds one driver per declared device.
func (p *Profile) Drivers() ([]*driver.Basic, error) {
	out := make([]*driver.Basic, 0, len(p.Devices))
	for _, d := range p.Devices {
		vectors, err := d.Vectors()
		if err != nil {
			return nil, fmt.Errorf("device %q: %w", d.Name, err)
		}
		out = append(out, driver.New(driver.Config{
			Device:     d.Name,
			DriverName: d.Driver,
			Exec:       d.Exec,
			Version:    d.Version,
			Interface:  d.Interface,
			Vectors:    vectors,
		}))
	}
	return out, nil
}

// Vectors converts the declared properties to validated vectors.
func (d Device) Vectors() ([]model.Vector, error) {
	out := make([]model.Vector, 0, len(d.Properties))
	for _, p := range d.Properties {
		if p.Name == driver.Connection || p.Name == driver.DriverInfo {
			return nil, fmt.Errorf("%s is defined automatically", p.Name)
		}
		v, err := p.vector(d.Name)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", p.Name, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (p Property) vector(device string) (model.Vector, error) {
	kind, err := model.ParseKind(p.Kind)
	if err != nil {
		return model.Vector{}, err
	}
	perm, err := model.ParsePerm(p.Perm)
	if err != nil {
		return model.Vector{}, err
	}
	rule, err := model.ParseRule(p.Rule)
	if err != nil {
		return model.Vector{}, err
	}
	state := model.StateIdle
	if p.State != "" {
		if state, err = model.ParseState(p.State); err != nil {
			return model.Vector{}, err
		}
	}

	v := model.Vector{
		Kind:    kind,
		Device:  device,
		Name:    p.Name,
		Label:   p.Label,
		Group:   p.Group,
		Perm:    perm,
		State:   state,
		Rule:    rule,
		Timeout: p.Timeout,
	}
	switch kind {
	case model.KindSwitch:
		if v.Rule == model.RuleUnset {
			v.Rule = model.RuleOneOfMany
		}
	case model.KindLight:
		v.Perm = model.PermRO
	}
	if v.Perm == model.PermUnset {
		v.Perm = model.PermRW
	}

	for _, e := range p.Elements {
		el := model.Element{Name: e.Name, Label: e.Label}
		switch kind {
		case model.KindSwitch:
			el.Switch = model.SwitchOff
			if e.Value != "" {
				if el.Switch, err = model.ParseSwitchState(e.Value); err != nil {
					return model.Vector{}, err
				}
			}
		case model.KindLight:
			if e.Value != "" {
				if el.Light, err = model.ParseState(e.Value); err != nil {
					return model.Vector{}, err
				}
			}
		case model.KindNumber:
			el.Number = model.Number{Format: e.Format, Min: e.Min, Max: e.Max, Step: e.Step}
			if el.Number.Format == "" {
				el.Number.Format = "%g"
			}
			if e.Value != "" {
				if el.Number.Value, err = model.ParseNumber(e.Value); err != nil {
					return model.Vector{}, err
				}
			}
		case model.KindText:
			el.Text = e.Value
		case model.KindBLOB:
			el.BLOB.Format = e.Format
		}
		v.Elements = append(v.Elements, el)
	}

	if err := model.ValidateDef(v); err != nil {
		return model.Vector{}, err
	}
	return v, nil
}
