package models

// All lists every entity for schema migration, parents first.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Dandiset{},
		&VersionMetadata{},
		&Version{},
		&AssetBlob{},
		&AssetMetadata{},
		&Asset{},
	}
}
