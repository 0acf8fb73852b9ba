package metadata

import (
	"time"

	"github.com/google/uuid"
)

// PublishedBy is the provenance stamp recorded on a version when it is
// published.
func PublishedBy(now time.Time, apiVersion string) Document {
	ts := now.UTC().Format(time.RFC3339Nano)
	return Document{
		"id":        uuid.New().URN(),
		"name":      "DANDI publish",
		"startDate": ts,
		"endDate":   ts,
		"wasAssociatedWith": []interface{}{
			map[string]interface{}{
				"id":         "RRID:SCR_017571",
				"identifier": "RRID:SCR_017571",
				"name":       "DANDI API",
				"version":    apiVersion,
				"schemaKey":  "Software",
			},
		},
		"schemaKey": "PublishActivity",
	}
}

// ContextURL is the JSON-LD context of a schema release.
func ContextURL(base, schemaVersion string) string {
	return base + "/" + schemaVersion + "/context.json"
}
