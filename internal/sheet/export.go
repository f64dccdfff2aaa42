package sheet

import (
	"encoding/json"
	"strings"

	"github.com/sddi-tools/catsync/internal/ckan"
)

// Fixed column positions of the curated workbook layout. Column 1 is left
// empty; resources occupy five columns each with one spacer column between.
const (
	colTitle           = 2
	colNotes           = 3
	colTags            = 5
	colLicense         = 6
	colAuthorName      = 7
	colAuthorEmail     = 8
	colMaintainerName  = 9
	colMaintainerEmail = 10
	colMaintainerPhone = 11
	colOrganization    = 12
	colGroups          = 13
	colLanguage        = 17
	colVersion         = 18
	colBeginCollection = 19
	colEndCollection   = 20

	colResourceBase  = 22
	resourceColSpan  = 6
	maxResourceSlots = 4
)

var languageLabels = map[string]string{
	"de": "Deutsch",
	"en": "English",
}

var accessLabels = map[string]string{
	"public":  "Öffentlich",
	"private": "Registrierte Benutzer",
}

// contact is one entry of the JSON array the catalog stores in its author and
// maintainer fields. The catalog is inconsistent about key casing, so both
// spellings of the email keys are accepted.
type contact struct {
	Author          string `json:"author"`
	AuthorEmail     string `json:"author_email"`
	Maintainer      string `json:"maintainer"`
	MaintainerEmail string `json:"maintainer_email"`
	MaintainerAlt   string `json:"Maintainer Email"`
	Phone           string `json:"phone"`
}

func (c contact) maintainerEmail() string {
	if c.MaintainerEmail != "" {
		return c.MaintainerEmail
	}
	return c.MaintainerAlt
}

// firstContact decodes the leading entry of a contact JSON array. Malformed or
// empty payloads yield a zero contact rather than an error; the workbook cell
// just stays blank.
func firstContact(raw string) contact {
	var list []contact
	if err := json.Unmarshal([]byte(raw), &list); err != nil || len(list) == 0 {
		return contact{}
	}
	return list[0]
}

// AppendDataset writes one dataset as a new row at the bottom of the sheet.
// The caller saves the workbook once all rows are appended.
func (w *Workbook) AppendDataset(sheetName string, ds *ckan.Dataset) error {
	row, err := w.nextFreeRow(sheetName)
	if err != nil {
		return err
	}

	tagNames := make([]string, 0, len(ds.Tags))
	for _, t := range ds.Tags {
		tagNames = append(tagNames, t.Name)
	}
	groupTitles := make([]string, 0, len(ds.Groups))
	for _, g := range ds.Groups {
		groupTitles = append(groupTitles, g.Title)
	}
	orgTitle := ""
	if ds.Organization != nil {
		orgTitle = ds.Organization.Title
	}

	author := firstContact(ds.Author)
	maintainer := firstContact(ds.Maintainer)

	cells := map[int]any{
		colTitle:           ds.Title,
		colNotes:           ds.Notes,
		colTags:            strings.Join(tagNames, ";"),
		colLicense:         ds.LicenseTitle,
		colAuthorName:      author.Author,
		colAuthorEmail:     author.AuthorEmail,
		colMaintainerName:  maintainer.Maintainer,
		colMaintainerEmail: maintainer.maintainerEmail(),
		colMaintainerPhone: maintainer.Phone,
		colOrganization:    orgTitle,
		colGroups:          strings.Join(groupTitles, ";"),
		colLanguage:        languageLabels[ds.Language],
		colVersion:         ds.Version,
		colBeginCollection: ds.BeginCollectionDate,
		colEndCollection:   ds.EndCollectionDate,
	}
	for col, val := range cells {
		if err := w.setCell(sheetName, col, row, val); err != nil {
			return err
		}
	}

	for j, r := range ds.Resources {
		if j >= maxResourceSlots {
			break
		}
		base := colResourceBase + j*resourceColSpan
		resourceCells := map[int]any{
			base:     r.URL,
			base + 1: r.Name,
			base + 2: r.Description,
			base + 3: r.Format,
			base + 4: accessLabel(r.Restricted),
		}
		for col, val := range resourceCells {
			if err := w.setCell(sheetName, col, row, val); err != nil {
				return err
			}
		}
	}
	return nil
}

// accessLabel maps a resource restriction (a JSON string or decoded object)
// to its workbook label. Anything unreadable renders blank.
func accessLabel(restricted any) string {
	var level string
	switch v := restricted.(type) {
	case string:
		var obj struct {
			Level string `json:"level"`
		}
		if err := json.Unmarshal([]byte(v), &obj); err != nil {
			return ""
		}
		level = obj.Level
	case map[string]any:
		level, _ = v["level"].(string)
	default:
		return ""
	}
	return accessLabels[level]
}
