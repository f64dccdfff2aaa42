package schema

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sddi-tools/catsync/internal/matching"
)

// accessRights maps spreadsheet access labels to catalog restriction levels.
var accessRights = map[string]string{
	"Öffentlich":     "public",
	"Registriert":    "registered",
	"Gleiche Gruppe": "same_organization",
	"Nur Erlaubte":   "only_allowed_users",
}

// publicVisibility is the spreadsheet label marking a dataset as public.
const publicVisibility = "Öffentlich"

// groupFieldNames are the mapped fields that resolve into catalog groups.
var groupFieldNames = map[string]struct{}{
	"main_category": {},
	"theme":         {},
	"group":         {},
}

// compositeFields describes fields assembled from prefixed sub-columns into a
// JSON array payload, the shape the catalog's contact extension expects.
var compositeFields = map[string][]string{
	"author":     {"author_name", "author_email", "role"},
	"maintainer": {"maintainer_name", "maintainer_email", "phone", "role"},
}

// BuildPackage converts one spreadsheet row into the package payload for the
// catalog's create/update actions. The row keys are spreadsheet column
// headers; the template decides which columns feed which catalog fields.
func (m *Manager) BuildPackage(row map[string]any, schemaType string) (map[string]any, error) {
	tpl, err := m.Template(schemaType)
	if err != nil {
		return nil, err
	}

	pkg := make(map[string]any, len(tpl.FieldMappings)+8)
	for col, field := range tpl.FieldMappings {
		pkg[field] = cellString(row[col])
	}

	if raw, ok := pkg["tag_string"]; ok {
		// tag_string stays alongside tags; the catalog reads both.
		pkg["tags"] = splitTags(cellString(raw))
	}

	for field, subs := range compositeFields {
		pkg[field] = buildComposite(pkg, field, subs)
	}

	m.applyGroups(tpl, pkg)

	if raw, ok := pkg["private"]; ok {
		pkg["private"] = strings.TrimSpace(cellString(raw)) != publicVisibility
	} else {
		pkg["private"] = false
	}
	pkg["state"] = "active"

	pkg["resources"] = buildResources(row)

	if title, ok := pkg["title"]; ok {
		pkg["name"] = matching.Standardize(cellString(title))
	}

	if raw, ok := pkg["licence_agreement"]; ok {
		if s := cellString(raw); s != "" {
			pkg["licence_agreement"] = []string{s}
		} else {
			pkg["licence_agreement"] = []string{}
		}
	}

	for _, field := range []string{"begin_collection_date", "end_collection_date"} {
		if raw, ok := pkg[field]; ok {
			pkg[field] = coerceDate(raw)
		}
	}

	if err := coerceSpatial(pkg); err != nil {
		// Malformed geometry would fail the whole API call; drop just the field.
		delete(pkg, "spatial")
	}

	for _, field := range tpl.MultiValueFields {
		if _, ok := pkg[field]; ok {
			pkg[field] = splitMulti(cellString(pkg[field]))
		}
	}

	orgTitle := cellString(pkg["owner_org"])
	orgName, ok := m.resolveOrganization(orgTitle)
	if !ok {
		return nil, fmt.Errorf("organization %q not found in schema config", orgTitle)
	}
	pkg["owner_org"] = orgName
	pkg["type"] = schemaType

	return pkg, nil
}

// CompareMappedFields reports the mapped fields whose spreadsheet value
// differs from the existing catalog value, keyed by catalog field name.
func CompareMappedFields(row map[string]any, existing map[string]any, tpl *Template) map[string][2]string {
	diffs := make(map[string][2]string)
	for col, field := range tpl.FieldMappings {
		want := strings.TrimSpace(cellString(row[col]))
		have := strings.TrimSpace(cellString(existing[field]))
		if want != "" && want != have {
			diffs[field] = [2]string{have, want}
		}
	}
	return diffs
}

func (m *Manager) applyGroups(tpl *Template, pkg map[string]any) {
	var groups []map[string]string
	seen := make(map[string]struct{})
	for _, field := range tpl.FieldMappings {
		if _, ok := groupFieldNames[field]; !ok {
			continue
		}
		val := cellString(pkg[field])
		delete(pkg, field)
		if val == "" {
			continue
		}
		name := m.resolveGroup(val)
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		groups = append(groups, map[string]string{"name": name})
	}
	if groups == nil {
		groups = []map[string]string{}
	}
	pkg["groups"] = groups
}

// buildComposite assembles prefixed sub-fields (author__author_name etc.) into
// the JSON array string the contact extension stores. The sub-fields stay in
// the payload; the catalog tolerates them.
func buildComposite(pkg map[string]any, prefix string, subs []string) string {
	obj := make(map[string]string, len(subs))
	filled := false
	for _, sub := range subs {
		key := prefix + "__" + sub
		if raw, ok := pkg[key]; ok {
			val := cellString(raw)
			obj[sub] = val
			if val != "" {
				filled = true
			}
		}
	}
	if !filled {
		return "[]"
	}
	data, err := json.Marshal([]map[string]string{obj})
	if err != nil {
		return "[]"
	}
	return string(data)
}

func buildResources(row map[string]any) []map[string]any {
	url := cellString(row["Datei/ Link"])
	if url == "" {
		return []map[string]any{}
	}
	level := accessRights[cellString(row["zugriffsrechte"])]
	if level == "" {
		level = "public"
	}
	return []map[string]any{{
		"url":         url,
		"name":        cellString(row["Name"]),
		"description": cellString(row["Beschreibung"]),
		"format":      cellString(row["Format"]),
		"restricted": map[string]string{
			"level":         level,
			"allowed_users": "",
		},
		"restricted_level": level,
	}}
}

func coerceSpatial(pkg map[string]any) error {
	raw, ok := pkg["spatial"]
	if !ok {
		return nil
	}
	s := strings.TrimSpace(cellString(raw))
	if s == "" {
		delete(pkg, "spatial")
		return nil
	}
	if !json.Valid([]byte(s)) {
		return fmt.Errorf("spatial field is not valid JSON")
	}
	pkg["spatial"] = s
	return nil
}

func coerceDate(raw any) string {
	if t, ok := raw.(time.Time); ok {
		return t.Format("2006-01-02")
	}
	return cellString(raw)
}

func splitTags(s string) []map[string]string {
	tags := []map[string]string{}
	for _, part := range strings.Split(s, ";") {
		if word := strings.TrimSpace(part); word != "" {
			tags = append(tags, map[string]string{"name": word})
		}
	}
	return tags
}

func splitMulti(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ";") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// cellString renders a spreadsheet cell value as a string. Cells read from a
// workbook may arrive as numbers or times rather than text.
func cellString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case time.Time:
		return val.Format("2006-01-02")
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", val)
	}
}
