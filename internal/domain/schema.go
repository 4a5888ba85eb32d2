package domain

// ClassDescription is the displayable identity of a repository class.
type ClassDescription struct {
	SymbolicName    string `json:"symbolicName"`
	DisplayName     string `json:"displayName"`
	DescriptiveText string `json:"descriptiveText"`
}

// PropertyDescription describes one property of a class as reported by
// the repository's class metadata.
type PropertyDescription struct {
	SymbolicName    string `json:"symbolicName"`
	DisplayName     string `json:"displayName"`
	DescriptiveText string `json:"descriptiveText"`
	DataType        string `json:"dataType"`
	Cardinality     string `json:"cardinality"`
	IsSearchable    bool   `json:"isSearchable"`
	IsSystemOwned   bool   `json:"isSystemOwned"`
	IsHidden        bool   `json:"isHidden"`
}

// ClassSchema is the cached metadata for one class: its description, the
// system root it descends from, and its full property list.
type ClassSchema struct {
	ClassDescription
	RootClass string

	// NamePropertyIndex points into Properties at the property that holds
	// the object's name, or -1 when the class has none.
	NamePropertyIndex int
	Properties        []PropertyDescription
}

// NameProperty returns the symbolic name of the class's name property,
// or "" when the class has none.
func (s *ClassSchema) NameProperty() string {
	if s == nil || s.NamePropertyIndex < 0 || s.NamePropertyIndex >= len(s.Properties) {
		return ""
	}
	return s.Properties[s.NamePropertyIndex].SymbolicName
}

// UserProperties filters out system-owned and hidden descriptors.
func (s *ClassSchema) UserProperties() []PropertyDescription {
	out := make([]PropertyDescription, 0, len(s.Properties))
	for _, p := range s.Properties {
		if p.IsSystemOwned || p.IsHidden {
			continue
		}
		out = append(out, p)
	}
	return out
}

// SearchableProperties filters to descriptors usable in a where clause.
func (s *ClassSchema) SearchableProperties() []PropertyDescription {
	out := make([]PropertyDescription, 0, len(s.Properties))
	for _, p := range s.Properties {
		if !p.IsSearchable {
			continue
		}
		out = append(out, p)
	}
	return out
}
