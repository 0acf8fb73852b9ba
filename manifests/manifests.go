// Package manifests locates the asset manifests written for each version.
package manifests

import (
	"fmt"
	"net/url"
	"strings"
)

// Resolver maps a version to the URL of its assets manifest.
type Resolver struct {
	baseURL string
}

func NewResolver(baseURL string) *Resolver {
	return &Resolver{baseURL: strings.TrimRight(baseURL, "/")}
}

// Location returns the manifest URL for dandiset identifier at version.
func (r *Resolver) Location(identifier, version string) string {
	return fmt.Sprintf("%s/dandisets/%s/%s/assets.yaml",
		r.baseURL, url.PathEscape(identifier), url.PathEscape(version))
}
