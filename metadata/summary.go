package metadata

import (
	"encoding/json"
	"math"

	mapset "github.com/deckarep/golang-set/v2"
)

const nwbFormat = "application/x-nwb"

var nwbStandard = map[string]interface{}{
	"schemaKey":  "StandardsType",
	"name":       "Neurodata Without Borders (NWB)",
	"identifier": "RRID:SCR_015242",
}

// Placeholder is the summary used when no assets can be read.
func Placeholder() Document {
	return Document{"numberOfBytes": 0, "numberOfFiles": 0}
}

// uniqueList keeps the first occurrence of each value, compared by canonical
// JSON.
type uniqueList struct {
	seen   mapset.Set[string]
	values []interface{}
}

func newUniqueList() *uniqueList {
	return &uniqueList{seen: mapset.NewThreadUnsafeSet[string]()}
}

func (u *uniqueList) add(v interface{}) {
	if v == nil {
		return
	}
	key, err := json.Marshal(v)
	if err != nil {
		return
	}
	if u.seen.Add(string(key)) {
		u.values = append(u.values, v)
	}
}

func (u *uniqueList) addAll(v interface{}) {
	if list, ok := v.([]interface{}); ok {
		for _, item := range list {
			u.add(item)
		}
		return
	}
	u.add(v)
}

// Aggregator accumulates an assetsSummary over asset metadata documents. It
// is fed one document at a time so callers can stream large asset sets.
type Aggregator struct {
	bytes    int64
	files    int64
	subjects mapset.Set[string]
	samples  mapset.Set[string]

	species              *uniqueList
	approach             *uniqueList
	measurementTechnique *uniqueList
	variableMeasured     *uniqueList
	dataStandard         *uniqueList
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		subjects:             mapset.NewThreadUnsafeSet[string](),
		samples:              mapset.NewThreadUnsafeSet[string](),
		species:              newUniqueList(),
		approach:             newUniqueList(),
		measurementTechnique: newUniqueList(),
		variableMeasured:     newUniqueList(),
		dataStandard:         newUniqueList(),
	}
}

// Add folds one asset's metadata into the summary. It fails on documents
// without a non-negative integer contentSize; the aggregator state is left
// unchanged in that case.
func (a *Aggregator) Add(asset Document) error {
	size, err := contentSize(asset["contentSize"])
	if err != nil {
		return err
	}
	a.bytes += size
	a.files++

	a.approach.addAll(asset["approach"])
	a.measurementTechnique.addAll(asset["measurementTechnique"])
	a.variableMeasured.addAll(asset["variableMeasured"])

	if asset.String("encodingFormat") == nwbFormat {
		a.dataStandard.add(nwbStandard)
	}

	if participants, ok := asset["wasAttributedTo"].([]interface{}); ok {
		for _, p := range participants {
			participant, ok := p.(map[string]interface{})
			if !ok {
				continue
			}
			if id, ok := participant["identifier"].(string); ok && id != "" {
				a.subjects.Add(id)
			}
			a.species.add(participant["species"])
		}
	}
	if derived, ok := asset["wasDerivedFrom"].([]interface{}); ok {
		for _, s := range derived {
			sample, ok := s.(map[string]interface{})
			if !ok {
				continue
			}
			if id, ok := sample["identifier"].(string); ok && id != "" {
				a.samples.Add(id)
			}
		}
	}
	return nil
}

// Summary returns the assetsSummary for everything added so far.
func (a *Aggregator) Summary() Document {
	out := Document{
		"schemaKey":     "AssetsSummary",
		"numberOfBytes": a.bytes,
		"numberOfFiles": a.files,
	}
	if n := a.subjects.Cardinality(); n > 0 {
		out["numberOfSubjects"] = n
	}
	if n := a.samples.Cardinality(); n > 0 {
		out["numberOfSamples"] = n
	}
	lists := map[string]*uniqueList{
		"species":              a.species,
		"approach":             a.approach,
		"measurementTechnique": a.measurementTechnique,
		"variableMeasured":     a.variableMeasured,
		"dataStandard":         a.dataStandard,
	}
	for key, list := range lists {
		if len(list.values) > 0 {
			out[key] = list.values
		}
	}
	return out
}

// Aggregate summarizes a complete set of asset documents.
func Aggregate(assets []Document) (Document, error) {
	agg := NewAggregator()
	for _, asset := range assets {
		if err := agg.Add(asset); err != nil {
			return nil, err
		}
	}
	return agg.Summary(), nil
}

func contentSize(v interface{}) (int64, error) {
	var n int64
	switch x := v.(type) {
	case nil:
		return 0, Error.New("asset metadata has no contentSize")
	case json.Number:
		i, err := x.Int64()
		if err != nil {
			return 0, Error.New("contentSize %q is not an integer", x.String())
		}
		n = i
	case float64:
		if x != math.Trunc(x) || x > math.MaxInt64 {
			return 0, Error.New("contentSize %v is not an integer", x)
		}
		n = int64(x)
	case int:
		n = int64(x)
	case int64:
		n = x
	default:
		return 0, Error.New("contentSize has unsupported type %T", v)
	}
	if n < 0 {
		return 0, Error.New("contentSize %d is negative", n)
	}
	return n, nil
}
