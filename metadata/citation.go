package metadata

import (
	"fmt"
	"strings"
)

// Citation renders the dataset citation for a populated document. The
// document must carry name, version and url.
func Citation(d Document, year int) string {
	name := strings.TrimRight(d.String("name"), ".")
	version := d.String("version")
	url := d.String("url")

	if names := citedContributors(d); len(names) > 0 {
		return fmt.Sprintf("%s (%d) %s (Version %s) [Data set]. DANDI archive. %s",
			strings.Join(names, "; "), year, name, version, url)
	}
	return fmt.Sprintf("%s (%d). (Version %s) [Data set]. DANDI archive. %s", name, year, version, url)
}

func citedContributors(d Document) []string {
	list, _ := d["contributor"].([]interface{})
	var names []string
	for _, item := range list {
		c, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if include, _ := c["includeInCitation"].(bool); !include {
			continue
		}
		name, _ := c["name"].(string)
		names = append(names, name)
	}
	return names
}
