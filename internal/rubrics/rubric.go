// Package rubrics normalizes scoring rubrics from their source formats
// into one canonical, ordered criterion list.
package rubrics

// CompositeDenominator is the scale of the final grade combining
// discrete criterion points and auxiliary scale scores.
const CompositeDenominator = 20

// Auxiliary scale names recognized in object-shaped rubrics.
const (
	ScaleSynthese      = "synthese"
	ScalePriseEnCharge = "prise_en_charge"
	fieldGrille        = "grille_observation"
	fieldCriterion     = "critère"
	fieldPoints        = "points"
)

// Criterion is one independently scored rubric line.
type Criterion struct {
	Name      string `json:"name"`
	MaxPoints int    `json:"max_points"`
}

// AuxiliaryScale is a continuously scored dimension in [0,1]
// described by a level-to-descriptor mapping.
type AuxiliaryScale struct {
	Name        string            `json:"name"`
	Descriptors map[string]string `json:"descriptor_by_level"`
}

// Rubric is the canonical rubric: ordered criteria plus optional auxiliary scales.
// Duplicate criterion names are kept in order and listed in Duplicates.
// Heuristic marks rubrics recovered by the outline parser.
type Rubric struct {
	Format     Format           `json:"format"`
	Criteria   []Criterion      `json:"criteria"`
	Auxiliary  []AuxiliaryScale `json:"auxiliary,omitempty"`
	Duplicates []string         `json:"duplicates,omitempty"`
	Heuristic  bool             `json:"heuristic"`
}

// DiscreteDenominator returns the total achievable discrete points.
func (r *Rubric) DiscreteDenominator() int {
	total := 0
	for _, c := range r.Criteria {
		total += c.MaxPoints
	}
	return total
}

// CompositeDenominator returns the scale of the final grade.
func (r *Rubric) CompositeDenominator() int {
	return CompositeDenominator
}

// HasAuxiliary reports whether the rubric defines auxiliary scales.
func (r *Rubric) HasAuxiliary() bool {
	return len(r.Auxiliary) > 0
}

// MaxPoints returns the point ceiling for the named criterion.
// When a name is repeated, the largest ceiling among its entries applies.
func (r *Rubric) MaxPoints(name string) (int, bool) {
	best, found := 0, false
	for _, c := range r.Criteria {
		if c.Name == name {
			found = true
			best = max(best, c.MaxPoints)
		}
	}
	return best, found
}

// Summary is the rubric preview returned to operators.
type Summary struct {
	*Rubric
	DiscreteDenominator  int `json:"discrete_denominator"`
	CompositeDenominator int `json:"composite_denominator"`
}

// Summarize pairs the rubric with its denominators.
func (r *Rubric) Summarize() Summary {
	return Summary{
		Rubric:               r,
		DiscreteDenominator:  r.DiscreteDenominator(),
		CompositeDenominator: r.CompositeDenominator(),
	}
}

func newRubric(format Format, criteria []Criterion, aux []AuxiliaryScale) (*Rubric, error) {
	if len(criteria) == 0 {
		return nil, &EmptyRubricError{Format: format}
	}

	return &Rubric{
		Format:     format,
		Criteria:   criteria,
		Auxiliary:  aux,
		Duplicates: duplicates(criteria),
		Heuristic:  format == FormatOutline || format == FormatDocx,
	}, nil
}

func duplicates(criteria []Criterion) []string {
	seen := make(map[string]int, len(criteria))
	var dups []string
	for _, c := range criteria {
		seen[c.Name]++
		if seen[c.Name] == 2 {
			dups = append(dups, c.Name)
		}
	}
	return dups
}
