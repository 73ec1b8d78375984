package vectorsync

// Document is the typed view of a policy or guide payload. Conversion from
// raw JSON happens once at the work-item boundary; hashing still runs over
// the raw value so unknown fields count as content.
type Document struct {
	ID            string
	GuideNumber   string
	Title         string
	Filename      string
	ExtractedDate string
	FullText      string
	Sections      map[string]any
}

// Identity is the document's declared identifier: the policy id when
// present, otherwise the guide number.
func (d Document) Identity() string {
	if d.ID != "" {
		return d.ID
	}
	return d.GuideNumber
}

func documentFromValue(value any) Document {
	fields, ok := value.(map[string]any)
	if !ok {
		return Document{}
	}
	doc := Document{
		ID:            stringField(fields, "id"),
		GuideNumber:   stringField(fields, "guide_number"),
		Title:         stringField(fields, "title"),
		Filename:      stringField(fields, "filename"),
		ExtractedDate: stringField(fields, "extracted_date"),
		FullText:      stringField(fields, "full_text"),
	}
	if sections, ok := fields["sections"].(map[string]any); ok {
		doc.Sections = sections
	}
	return doc
}

func stringField(fields map[string]any, key string) string {
	value, _ := fields[key].(string)
	return value
}
