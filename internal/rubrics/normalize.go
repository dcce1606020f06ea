package rubrics

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format identifies the encoding of a rubric source.
type Format string

const (
	FormatJSON    Format = "json"
	FormatYAML    Format = "yaml"
	FormatOutline Format = "outline"
	FormatDocx    Format = "docx"
)

// ParseFormat resolves a format name. An empty name yields "" for detection.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatJSON, FormatYAML, FormatOutline, FormatDocx:
		return f, nil
	case "yml":
		return FormatYAML, nil
	case "txt", "text":
		return FormatOutline, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Source is raw rubric input. Format may be left empty to detect it
// from the file extension or the content.
type Source struct {
	Filename string
	Format   Format
	Data     []byte
}

// DetectFormat infers a rubric format from the file extension, falling back to content sniffing.
func DetectFormat(filename string, data []byte) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	case ".docx":
		return FormatDocx
	case ".txt", ".md":
		return FormatOutline
	}

	if bytes.HasPrefix(data, []byte("PK\x03\x04")) {
		return FormatDocx
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && (trimmed[0] == '[' || trimmed[0] == '{') {
		return FormatJSON
	}
	return FormatOutline
}

// Normalize converts a rubric source into the canonical Rubric.
// JSON and YAML accept either a list of {critère, points} entries or an object
// with a grille_observation list and optional synthese / prise_en_charge scales.
// Outline and docx sources go through the line heuristic and are flagged Heuristic.
func Normalize(src Source) (*Rubric, error) {
	format := src.Format
	if format == "" {
		format = DetectFormat(src.Filename, src.Data)
	}

	switch format {
	case FormatJSON:
		return normalizeJSON(src.Data)
	case FormatYAML:
		return normalizeYAML(src.Data)
	case FormatOutline:
		return newRubric(FormatOutline, parseOutline(strings.Split(string(src.Data), "\n")), nil)
	case FormatDocx:
		lines, err := docxParagraphs(src.Data)
		if err != nil {
			return nil, err
		}
		return newRubric(FormatDocx, parseOutline(lines), nil)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func normalizeJSON(data []byte) (*Rubric, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var root any
	if err := dec.Decode(&root); err != nil {
		return nil, &RubricFormatError{Field: "rubric", Err: err}
	}
	if dec.More() {
		return nil, formatErr("rubric", "unexpected content after JSON value")
	}
	return fromTree(FormatJSON, root)
}

func normalizeYAML(data []byte) (*Rubric, error) {
	var root any
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &RubricFormatError{Field: "rubric", Err: err}
	}
	return fromTree(FormatYAML, root)
}

func fromTree(format Format, root any) (*Rubric, error) {
	switch v := root.(type) {
	case []any:
		criteria, err := parseCriteria("", v)
		if err != nil {
			return nil, err
		}
		return newRubric(format, criteria, nil)

	case map[string]any:
		raw, ok := v[fieldGrille]
		if !ok {
			return nil, formatErr(fieldGrille, "missing")
		}
		items, ok := raw.([]any)
		if !ok {
			return nil, formatErr(fieldGrille, "expected a list, got %T", raw)
		}
		criteria, err := parseCriteria(fieldGrille, items)
		if err != nil {
			return nil, err
		}

		var aux []AuxiliaryScale
		for _, name := range []string{ScaleSynthese, ScalePriseEnCharge} {
			raw, ok := v[name]
			if !ok || raw == nil {
				continue
			}
			descriptors, err := parseDescriptors(name, raw)
			if err != nil {
				return nil, err
			}
			aux = append(aux, AuxiliaryScale{Name: name, Descriptors: descriptors})
		}
		return newRubric(format, criteria, aux)

	case nil:
		return nil, &EmptyRubricError{Format: format}

	default:
		return nil, formatErr("rubric", "expected a list or an object, got %T", root)
	}
}

func parseCriteria(prefix string, items []any) ([]Criterion, error) {
	criteria := make([]Criterion, 0, len(items))
	for i, item := range items {
		field := fmt.Sprintf("%s[%d]", prefix, i)

		entry, ok := item.(map[string]any)
		if !ok {
			return nil, formatErr(field, "expected an object, got %T", item)
		}

		name, ok := entry[fieldCriterion].(string)
		if !ok || strings.TrimSpace(name) == "" {
			return nil, formatErr(field+"."+fieldCriterion, "expected a non-empty string")
		}

		points, ok := toInt(entry[fieldPoints])
		if !ok || points <= 0 {
			return nil, formatErr(field+"."+fieldPoints, "expected a positive integer, got %v", entry[fieldPoints])
		}

		criteria = append(criteria, Criterion{Name: strings.TrimSpace(name), MaxPoints: points})
	}
	return criteria, nil
}

func parseDescriptors(name string, raw any) (map[string]string, error) {
	descriptors := make(map[string]string)

	add := func(key string, value any) error {
		s, ok := value.(string)
		if !ok {
			return formatErr(name+"."+key, "expected a string descriptor, got %T", value)
		}
		descriptors[key] = s
		return nil
	}

	switch m := raw.(type) {
	case map[string]any:
		for k, v := range m {
			if err := add(k, v); err != nil {
				return nil, err
			}
		}
	case map[any]any:
		for k, v := range m {
			if err := add(fmt.Sprint(k), v); err != nil {
				return nil, err
			}
		}
	default:
		return nil, formatErr(name, "expected a level-to-descriptor mapping, got %T", raw)
	}

	return descriptors, nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return floatToInt(f)
	case int:
		return n, true
	case float64:
		return floatToInt(n)
	default:
		return 0, false
	}
}

func floatToInt(f float64) (int, bool) {
	if f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}
