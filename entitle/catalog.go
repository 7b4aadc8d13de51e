// Package entitle resolves which rule partitions a tenant may query,
// combining the free tier with purchased packages.
package entitle

import (
	"sort"

	"github.com/normgate/normgate/errors"
)

// PackageType identifies a purchasable package. Only values present
// in the catalog are valid.
type PackageType string

const (
	PackageISOBox             PackageType = "iso_box"
	PackageAsiaBox            PackageType = "asia_box"
	PackageUSBox              PackageType = "us_box"
	PackageIndustryAutomotive PackageType = "industry_automotive"
	PackageIndustryMedical    PackageType = "industry_medical"
	PackageMegaBundle         PackageType = "mega_bundle"
)

// Package describes one catalog entry. AllPartitions marks a bundle
// that grants the entire partition catalog.
type Package struct {
	Type          PackageType
	Name          string
	Description   string
	PriceCents    int
	TrialDays     int
	Partitions    []string
	AllPartitions bool
}

// FreePartitions are accessible to every tenant, entitled or not.
var FreePartitions = []string{"norms.json"}

// AllPartitions is the full partition catalog, free tier included.
var AllPartitions = []string{
	"norms.json",
	"norms_us.json",
	"norms_china.json",
	"norms_japan.json",
	"norms_iso.json",
	"norms_iec.json",
	"norms_uk.json",
	"norms_canada.json",
	"norms_australia.json",
	"norms_brazil.json",
	"norms_india.json",
	"norms_uae_gcc.json",
	"norms_eu_additional.json",
	"norms_industry_automotive.json",
	"norms_industry_medical.json",
	"norms_industry_electronics.json",
	"norms_industry_food.json",
	"norms_industry_construction.json",
	"norms_industry_energy.json",
}

// Catalog maps every purchasable package to its grant.
var Catalog = map[PackageType]Package{
	PackageISOBox: {
		Type:        PackageISOBox,
		Name:        "ISO Standards Box",
		Description: "60+ ISO/IEC international standards",
		PriceCents:  4999,
		TrialDays:   14,
		Partitions:  []string{"norms_iso.json", "norms_iec.json"},
	},
	PackageAsiaBox: {
		Type:        PackageAsiaBox,
		Name:        "Asia Standards Box",
		Description: "China, Japan, India, UAE/GCC regulations",
		PriceCents:  3999,
		TrialDays:   14,
		Partitions:  []string{"norms_china.json", "norms_japan.json", "norms_india.json", "norms_uae_gcc.json"},
	},
	PackageUSBox: {
		Type:        PackageUSBox,
		Name:        "US Standards Box",
		Description: "US-specific regulations and standards",
		PriceCents:  2999,
		TrialDays:   14,
		Partitions:  []string{"norms_us.json"},
	},
	PackageIndustryAutomotive: {
		Type:        PackageIndustryAutomotive,
		Name:        "Automotive Industry Standards",
		Description: "IATF 16949, ISO/TS automotive standards",
		PriceCents:  3499,
		TrialDays:   14,
		Partitions:  []string{"norms_industry_automotive.json"},
	},
	PackageIndustryMedical: {
		Type:        PackageIndustryMedical,
		Name:        "Medical Device Standards",
		Description: "ISO 13485, FDA 21 CFR, MDR compliance",
		PriceCents:  3499,
		TrialDays:   14,
		Partitions:  []string{"norms_industry_medical.json"},
	},
	PackageMegaBundle: {
		Type:          PackageMegaBundle,
		Name:          "All Access Bundle",
		Description:   "Complete access to all norm databases",
		PriceCents:    9999,
		TrialDays:     14,
		AllPartitions: true,
	},
}

// LookupPackage returns the catalog entry for a package type.
func LookupPackage(t PackageType) (Package, bool) {
	pkg, ok := Catalog[t]
	return pkg, ok
}

// PackageTypes lists the catalog in stable order.
func PackageTypes() []PackageType {
	types := make([]PackageType, 0, len(Catalog))
	for t := range Catalog {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// ValidateCatalog checks catalog integrity: every non-bundle grant
// must name partitions that exist in the full catalog, and bundles
// must not carry an explicit partition list.
func ValidateCatalog() error {
	known := make(map[string]bool, len(AllPartitions))
	for _, p := range AllPartitions {
		known[p] = true
	}

	for t, pkg := range Catalog {
		if pkg.Type != t {
			return errors.Newf("catalog key %q does not match package type %q", t, pkg.Type)
		}
		if pkg.AllPartitions {
			if len(pkg.Partitions) > 0 {
				return errors.Newf("bundle package %q must not list partitions", t)
			}
			continue
		}
		if len(pkg.Partitions) == 0 {
			return errors.Newf("package %q grants no partitions", t)
		}
		for _, p := range pkg.Partitions {
			if !known[p] {
				return errors.Newf("package %q grants unknown partition %q", t, p)
			}
		}
	}
	return nil
}
