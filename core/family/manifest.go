package family

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/stokaro/tenantopts/config"
	"github.com/stokaro/tenantopts/core/entity"
)

// Manifest is the YAML document declaring families for the command line tools.
//
//	families:
//	  - name: task_priority
//	    group: tasks
//	    defaults:
//	      - name: High
//	      - name: Critical
//	        type: optional
type Manifest struct {
	Families []ManifestFamily `yaml:"families"`
}

// ManifestFamily is one family entry of a Manifest.
type ManifestFamily struct {
	Name           string            `yaml:"name"`
	Group          string            `yaml:"group"`
	TenantTable    string            `yaml:"tenant_table"`
	TenantKey      string            `yaml:"tenant_key"`
	OptionTable    string            `yaml:"option_table"`
	SelectionTable string            `yaml:"selection_table"`
	Defaults       []ManifestDefault `yaml:"defaults"`
	Overrides      ManifestOverrides `yaml:"overrides"`
}

// ManifestDefault is one default option. Type accepts the stored code or the
// type name and defaults to mandatory.
type ManifestDefault struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// ManifestOverrides mirrors config.Overrides.
type ManifestOverrides struct {
	TenantOnDelete                  *string `yaml:"tenant_on_delete"`
	OptionOnDelete                  *string `yaml:"option_on_delete"`
	DBVendorOverride                *string `yaml:"db_vendor_override"`
	DisableFieldForDeletedSelection *bool   `yaml:"disable_field_for_deleted_selection"`
	TriggerMessage                  *string `yaml:"trigger_message"`
}

// LoadManifestFile reads a manifest from path.
func LoadManifestFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return ParseManifest(bytes.NewReader(data))
}

// ParseManifest decodes a manifest. Unknown keys are rejected.
func ParseManifest(r io.Reader) (*Manifest, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var m Manifest
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return &m, nil
		}
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}

// Descriptors converts the manifest into family descriptors. Unknown option types
// are kept verbatim so the validator can report them.
func (m *Manifest) Descriptors() []*Family {
	out := make([]*Family, 0, len(m.Families))
	for _, mf := range m.Families {
		opts := []Option{
			WithGroup(mf.Group),
			WithTenantTable(mf.TenantTable),
			WithOverrides(config.Overrides{
				TenantOnDelete:                  mf.Overrides.TenantOnDelete,
				OptionOnDelete:                  mf.Overrides.OptionOnDelete,
				DBVendorOverride:                mf.Overrides.DBVendorOverride,
				DisableFieldForDeletedSelection: mf.Overrides.DisableFieldForDeletedSelection,
				TriggerMessage:                  mf.Overrides.TriggerMessage,
			}),
		}
		if mf.TenantKey != "" {
			opts = append(opts, WithTenantKey(mf.TenantKey))
		}
		if mf.OptionTable != "" || mf.SelectionTable != "" {
			optionTable, selectionTable := mf.OptionTable, mf.SelectionTable
			if optionTable == "" {
				optionTable = mf.Name + "_options"
			}
			if selectionTable == "" {
				selectionTable = mf.Name + "_selections"
			}
			opts = append(opts, WithTables(optionTable, selectionTable))
		}
		for _, d := range mf.Defaults {
			opts = append(opts, WithDefaults(DefaultOption{Name: d.Name, Type: parseManifestType(d.Type)}))
		}
		out = append(out, New(mf.Name, opts...))
	}
	return out
}

// Registry registers every manifest family.
func (m *Manifest) Registry() (*Registry, error) {
	r := &Registry{}
	for _, f := range m.Descriptors() {
		if err := r.Register(f); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func parseManifestType(s string) entity.OptionType {
	if s == "" {
		return ""
	}
	t, err := entity.ParseOptionType(s)
	if err != nil {
		return entity.OptionType(s)
	}
	return t
}
