// Package tuning generates the hyperparameter tuning battery: experiment
// grids crossed with seeds, datasets and configurations sampled from each
// model's configuration space.
package tuning

import "github.com/jitsdp/jitsdp-runner/internal/battery"

// Axis is one key of a grid with the values it takes.
type Axis struct {
	Name   string
	Values []string
}

// Grid is an ordered list of axes.
type Grid []Axis

// GridToConfigs returns the cartesian product of the grid. The last axis
// varies fastest.
func GridToConfigs(grid Grid) []battery.Flags {
	configs := []battery.Flags{{}}
	for _, axis := range grid {
		next := make([]battery.Flags, 0, len(configs)*len(axis.Values))
		for _, c := range configs {
			for _, v := range axis.Values {
				config := make(battery.Flags, len(c), len(c)+1)
				copy(config, c)
				next = append(next, append(config, battery.Value(axis.Name, v)))
			}
		}
		configs = next
	}

	return configs
}

var (
	Datasets = []string{"brackets", "camel", "fabric8", "jgroups", "neutron", "tomcat", "broadleaf", "nova", "npm", "spring-integration"}
	Seeds    = []string{"0", "1", "2", "3", "4"}
)

// ExperimentGrids returns the grids of the tuned experiments.
func ExperimentGrids(crossProject bool) []Grid {
	cp := []string{"0"}
	if crossProject {
		cp = []string{"0", "1"}
	}

	return []Grid{
		{
			{Name: "meta-model", Values: []string{"orb"}},
			{Name: "cross-project", Values: cp},
			{Name: "rate-driven", Values: []string{"0", "1"}},
			{Name: "model", Values: []string{"hts"}},
		},
		{
			{Name: "meta-model", Values: []string{"borb"}},
			{Name: "cross-project", Values: cp},
			{Name: "rate-driven", Values: []string{"0", "1"}},
			{Name: "model", Values: []string{"ihf"}},
		},
		{
			{Name: "meta-model", Values: []string{"borb"}},
			{Name: "cross-project", Values: cp},
			{Name: "rate-driven", Values: []string{"1"}},
			{Name: "model", Values: []string{"lr", "mlp", "nb", "irf"}},
		},
	}
}

// SeedDatasetGrid crosses datasets with seeds.
func SeedDatasetGrid() Grid {
	return Grid{
		{Name: "dataset", Values: Datasets},
		{Name: "seed", Values: Seeds},
	}
}
