package ckan

// Resource is a single file-like entry attached to a dataset. The core treats
// it as read-only input; timestamps stay strings until the normalizer parses
// them.
type Resource struct {
	ID           string `json:"id,omitempty"`
	Name         string `json:"name"`
	URL          string `json:"url"`
	Format       string `json:"format"`
	Description  string `json:"description,omitempty"`
	Created      string `json:"created,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
	Restricted   any    `json:"restricted,omitempty"`
}

// Tag is a dataset keyword.
type Tag struct {
	Name string `json:"name"`
}

// Group is a category a dataset belongs to.
type Group struct {
	Name  string `json:"name,omitempty"`
	Title string `json:"title,omitempty"`
}

// Organization owns a dataset.
type Organization struct {
	Name  string `json:"name,omitempty"`
	Title string `json:"title,omitempty"`
}

// Dataset is a catalog package with its attached resources. Author and
// Maintainer are JSON-encoded lists in the SDDI schema and are decoded only by
// the export layer.
type Dataset struct {
	ID                  string        `json:"id,omitempty"`
	Name                string        `json:"name"`
	Title               string        `json:"title"`
	Notes               string        `json:"notes,omitempty"`
	MetadataCreated     string        `json:"metadata_created,omitempty"`
	MetadataModified    string        `json:"metadata_modified,omitempty"`
	LicenseTitle        string        `json:"license_title,omitempty"`
	Author              string        `json:"author,omitempty"`
	Maintainer          string        `json:"maintainer,omitempty"`
	Language            string        `json:"language,omitempty"`
	Version             string        `json:"version,omitempty"`
	BeginCollectionDate string        `json:"begin_collection_date,omitempty"`
	EndCollectionDate   string        `json:"end_collection_date,omitempty"`
	Organization        *Organization `json:"organization,omitempty"`
	Groups              []Group       `json:"groups,omitempty"`
	Tags                []Tag         `json:"tags,omitempty"`
	Resources           []Resource    `json:"resources,omitempty"`
}

// SearchResult is the payload of a package_search call.
type SearchResult struct {
	Count   int       `json:"count"`
	Results []Dataset `json:"results"`
}
