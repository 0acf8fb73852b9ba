// Package metadata holds the JSON metadata documents attached to versions
// and assets: hashing, computed fields, citations, asset summaries and the
// checks a document must pass before it can be published.
package metadata

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"

	"github.com/zeebo/errs"
	"gorm.io/datatypes"
)

// Error is the class of metadata errors.
var Error = errs.Class("metadata")

// Document is a decoded JSON-LD metadata document.
type Document map[string]interface{}

// Computed lists the fields the archive derives itself. Values submitted by
// clients for these keys are discarded.
var Computed = []string{
	"name",
	"identifier",
	"version",
	"id",
	"url",
	"assetsSummary",
	"citation",
	"doi",
	"datePublished",
	"publishedBy",
	"manifestLocation",
}

// Decode parses a stored JSON column. Numbers are kept as json.Number so
// large integers survive a round trip unchanged.
func Decode(raw datatypes.JSON) (Document, error) {
	doc := Document{}
	if len(raw) == 0 {
		return doc, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, Error.Wrap(err)
	}
	if doc == nil {
		doc = Document{}
	}
	return doc, nil
}

// Canonical is the encoding used for storage and hashing. Object keys are
// sorted and numbers are respelled, so structurally equal documents encode to
// the same bytes: 1, 1.0 and 1e0 all encode as 1.
func (d Document) Canonical() (datatypes.JSON, error) {
	if d == nil {
		d = Document{}
	}
	b, err := json.Marshal(normalize(d))
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return datatypes.JSON(b), nil
}

// normalize rewrites decoded numbers into one spelling. Integers stay exact
// at any size that fits int64; other numbers become float64 and take the
// encoder's shortest form, the same as numbers that were never decoded.
func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case Document:
		return normalize(map[string]interface{}(t))
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, item := range t {
			out[k] = normalize(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = normalize(item)
		}
		return out
	case json.Number:
		if n, err := strconv.ParseInt(string(t), 10, 64); err == nil {
			return json.Number(strconv.FormatInt(n, 10))
		}
		if f, err := strconv.ParseFloat(string(t), 64); err == nil {
			if f == float64(int64(f)) && f >= -(1<<53) && f <= 1<<53 {
				return json.Number(strconv.FormatInt(int64(f), 10))
			}
			return f
		}
		return t
	default:
		return v
	}
}

// Hash is the hex sha256 of the canonical encoding.
func (d Document) Hash() (string, error) {
	b, err := d.Canonical()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Clone returns a shallow copy; nested values are shared.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Strip returns a copy of d without computed fields.
func Strip(d Document) Document {
	out := d.Clone()
	for _, k := range Computed {
		delete(out, k)
	}
	return out
}

func (d Document) String(key string) string {
	s, _ := d[key].(string)
	return s
}
