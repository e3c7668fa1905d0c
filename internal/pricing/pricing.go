// Package pricing holds the per-volume-type EBS rate table used to compute
// monthly cost estimates. The table is versioned data loaded from
// configuration, not constants baked into scan logic.
package pricing

import "math"

// DefaultVersion tags the built-in rate table.
const DefaultVersion = "2024-01"

// Rate prices one volume type. Every supported formula reduces to
// size*GBMonth + max(0, iops-FreeIOPS)*IOPSMonth: flat-rate types carry a
// zero IOPSMonth, fully provisioned types carry a zero FreeIOPS.
type Rate struct {
	GBMonth   float64 `yaml:"gb_month"`
	IOPSMonth float64 `yaml:"iops_month"`
	FreeIOPS  int32   `yaml:"free_iops"`
}

var defaultRates = map[string]Rate{
	"gp3": {GBMonth: 0.08, IOPSMonth: 0.005, FreeIOPS: 3000},
	"gp2": {GBMonth: 0.10},
	"io1": {GBMonth: 0.125, IOPSMonth: 0.065},
	"io2": {GBMonth: 0.125, IOPSMonth: 0.065},
	"st1": {GBMonth: 0.045},
	"sc1": {GBMonth: 0.015},
}

// Table is an immutable rate table.
type Table struct {
	version string
	rates   map[string]Rate
}

// NewTable builds a table from the built-in defaults with per-type
// overrides applied on top. Overrides may adjust existing types or add new
// ones.
func NewTable(version string, overrides map[string]Rate) *Table {
	if version == "" {
		version = DefaultVersion
	}
	rates := make(map[string]Rate, len(defaultRates)+len(overrides))
	for t, r := range defaultRates {
		rates[t] = r
	}
	for t, r := range overrides {
		rates[t] = r
	}
	return &Table{version: version, rates: rates}
}

// Default returns the built-in table.
func Default() *Table {
	return NewTable(DefaultVersion, nil)
}

// Version returns the table's version tag.
func (t *Table) Version() string {
	return t.version
}

// Rate returns the rate entry for a volume type.
func (t *Table) Rate(volumeType string) (Rate, bool) {
	r, ok := t.rates[volumeType]
	return r, ok
}

// CostPerMonth estimates the monthly cost of a volume. Types without a rate
// entry cost 0 by contract, not by error. Results are rounded to cents.
func (t *Table) CostPerMonth(volumeType string, sizeGB, iops int32) float64 {
	rate, ok := t.rates[volumeType]
	if !ok {
		return 0
	}
	cost := float64(sizeGB) * rate.GBMonth
	if over := iops - rate.FreeIOPS; over > 0 {
		cost += float64(over) * rate.IOPSMonth
	}
	return math.Round(cost*100) / 100
}
