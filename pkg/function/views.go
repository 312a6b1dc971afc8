package function

import (
	"slices"
	"strings"
	"unicode"
)

// View names one text projection of a function. Each view is embedded and
// stored as its own vector point.
type View string

const (
	ViewMain      View = "main"
	ViewDetailed  View = "detailed"
	ViewScenarios View = "scenarios"
	ViewKeywords  View = "keywords"
	ViewCombined  View = "combined"
)

// AllViews lists every view in projection order.
var AllViews = []View{ViewMain, ViewDetailed, ViewScenarios, ViewKeywords, ViewCombined}

// Valid reports whether v is a known view.
func (v View) Valid() bool {
	return slices.Contains(AllViews, v)
}

// Views maps each non-empty view to its text. Views that projected to an
// empty string are absent.
type Views map[View]string

// Changed returns the views whose text differs between v and other,
// including views that appeared or disappeared.
func (v Views) Changed(other Views) []View {
	var changed []View
	for _, view := range AllViews {
		if v[view] != other[view] {
			changed = append(changed, view)
		}
	}
	return changed
}

// Project derives the text views of f. It is a pure function of the record.
func Project(f *Function) Views {
	views := Views{}
	put := func(view View, text string) {
		if text = strings.TrimSpace(text); text != "" {
			views[view] = text
		}
	}

	put(ViewMain, mainText(f))
	put(ViewDetailed, detailedText(f))
	put(ViewScenarios, scenariosText(f))
	put(ViewKeywords, strings.Join(Keywords(f), " "))

	parts := make([]string, 0, 4)
	for _, view := range []View{ViewMain, ViewDetailed, ViewScenarios, ViewKeywords} {
		if text, ok := views[view]; ok {
			parts = append(parts, text)
		}
	}
	put(ViewCombined, strings.Join(parts, "\n"))

	return views
}

func mainText(f *Function) string {
	switch {
	case f.Name == "":
		return f.Description
	case f.Description == "":
		return f.Name
	}
	return f.Name + ": " + f.Description
}

func detailedText(f *Function) string {
	var b strings.Builder
	line := func(s string) {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(s)
	}

	if f.Name != "" {
		line("Function: " + f.Name)
	}
	if f.Description != "" {
		line("Description: " + f.Description)
	}
	if path := categoryPath(f); path != "" {
		line("Category: " + path)
	}

	if len(f.Parameters) > 0 {
		line("Parameters:")
		for _, name := range f.ParameterNames() {
			line("- " + formatParameter(name, f.Parameters[name]))
		}
	}

	if len(f.UseCases) > 0 {
		line("Use cases:")
		for _, uc := range f.UseCases {
			line("- " + uc)
		}
	}

	if len(f.Examples) > 0 {
		line("Examples:")
		for _, ex := range f.Examples {
			if ex.Input == "" && ex.Output == "" {
				continue
			}
			line("- " + ex.Input + " -> " + ex.Output)
		}
	}

	return b.String()
}

func categoryPath(f *Function) string {
	switch {
	case f.Category == "":
		return f.Subcategory
	case f.Subcategory == "":
		return f.Category
	}
	return f.Category + "/" + f.Subcategory
}

func formatParameter(name string, p Parameter) string {
	kind := string(p.Type)
	if p.Required {
		kind += ", required"
	}
	s := name + " (" + kind + ")"
	if p.Description != "" {
		s += ": " + p.Description
	}
	return s
}

func scenariosText(f *Function) string {
	parts := make([]string, 0, len(f.UseCases)+len(f.Examples))
	parts = append(parts, f.UseCases...)
	for _, ex := range f.Examples {
		if ex.Input == "" {
			continue
		}
		if ex.Context != "" {
			parts = append(parts, ex.Context+": "+ex.Input)
			continue
		}
		parts = append(parts, ex.Input)
	}
	return strings.Join(parts, "\n")
}

// Keywords returns the sorted, de-duplicated keyword set of f: tags,
// category, subcategory, name tokens and parameter names, all lowercased.
func Keywords(f *Function) []string {
	set := map[string]struct{}{}
	add := func(s string) {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			set[s] = struct{}{}
		}
	}

	for _, t := range f.Tags {
		add(t)
	}
	add(f.Category)
	add(f.Subcategory)
	for _, tok := range SplitName(f.Name) {
		add(tok)
	}
	for name := range f.Parameters {
		add(name)
	}

	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// SplitName splits an identifier on underscores, hyphens and whitespace.
func SplitName(name string) []string {
	return strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-' || unicode.IsSpace(r)
	})
}
