// Package eval measures pipeline output against a tiered ground-truth
// dataset: identity and email accuracy, per-provider coverage, confidence
// calibration, and which stage caused each miss.
package eval

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/contact-cli/internal/model"
)

// Tier classifies how well a truth contact is verified.
type Tier string

const (
	TierStrongest Tier = "strongest"
	TierMedium    Tier = "medium"
	// TierWeakest contacts are excluded from scoring.
	TierWeakest Tier = "weakest"
)

// TierFor derives a tier from the number of independent agreeing sources.
func TierFor(sources int) Tier {
	switch {
	case sources >= 3:
		return TierStrongest
	case sources == 2:
		return TierMedium
	default:
		return TierWeakest
	}
}

// TruthContact is a verified contact and the sources that agreed on it.
type TruthContact struct {
	Name       string   `yaml:"name" json:"name"`
	Title      string   `yaml:"title,omitempty" json:"title,omitempty"`
	Email      string   `yaml:"email,omitempty" json:"email,omitempty"`
	Phone      string   `yaml:"phone,omitempty" json:"phone,omitempty"`
	ProfileURL string   `yaml:"profile_url,omitempty" json:"profile_url,omitempty"`
	Sources    []string `yaml:"sources" json:"sources"`
}

// Tier returns the contact's tier by distinct source count.
func (c TruthContact) Tier() Tier {
	seen := make(map[string]bool, len(c.Sources))
	for _, s := range c.Sources {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			seen[s] = true
		}
	}
	return TierFor(len(seen))
}

// TruthCompany is one company and its verified contacts.
type TruthCompany struct {
	Company  model.CompanyRecord `yaml:"company" json:"company"`
	Contacts []TruthContact      `yaml:"contacts" json:"contacts"`
}

// Scored returns the contacts that count toward metrics, strongest first.
func (c TruthCompany) Scored() []TruthContact {
	var strong, medium []TruthContact
	for _, tc := range c.Contacts {
		switch tc.Tier() {
		case TierStrongest:
			strong = append(strong, tc)
		case TierMedium:
			medium = append(medium, tc)
		}
	}
	return append(strong, medium...)
}

// Dataset is a frozen ground-truth set.
type Dataset struct {
	Name      string         `yaml:"name" json:"name"`
	Companies []TruthCompany `yaml:"companies" json:"companies"`
}

// LoadDataset reads a dataset from YAML or JSON, chosen by extension.
func LoadDataset(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "eval: read truth %s", path)
	}

	var ds Dataset
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &ds)
	default:
		err = yaml.Unmarshal(data, &ds)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "eval: parse truth %s", path)
	}
	if ds.Name == "" {
		ds.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	for i, c := range ds.Companies {
		if strings.TrimSpace(c.Company.Name) == "" && c.Company.Domain == "" {
			return nil, eris.Errorf("eval: truth company %d has no name or domain", i)
		}
	}
	return &ds, nil
}

// Clone returns a deep copy so evaluation can never modify the original.
func (d *Dataset) Clone() *Dataset {
	out := &Dataset{Name: d.Name, Companies: make([]TruthCompany, len(d.Companies))}
	for i, c := range d.Companies {
		tc := TruthCompany{Company: c.Company.Clone(), Contacts: make([]TruthContact, len(c.Contacts))}
		for j, contact := range c.Contacts {
			contact.Sources = append([]string(nil), contact.Sources...)
			tc.Contacts[j] = contact
		}
		out.Companies[i] = tc
	}
	return out
}

// CompanyRecords returns the dataset's companies as pipeline input, with
// rows numbered from 1.
func (d *Dataset) CompanyRecords() []model.CompanyRecord {
	out := make([]model.CompanyRecord, len(d.Companies))
	for i, c := range d.Companies {
		rec := c.Company.Clone()
		if rec.Row == 0 {
			rec.Row = i + 1
		}
		out[i] = rec
	}
	return out
}
