package function

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultVersion is applied when an add request carries no version.
	DefaultVersion = "1.0.0"

	// DefaultCategory is applied when an add request carries no category.
	DefaultCategory = "general"
)

// AddRequest is the validated input for registering a new function.
type AddRequest struct {
	Name         string               `json:"name"`
	Description  string               `json:"description"`
	Category     string               `json:"category,omitempty"`
	Subcategory  string               `json:"subcategory,omitempty"`
	Parameters   map[string]Parameter `json:"parameters,omitempty"`
	UseCases     []string             `json:"use_cases,omitempty"`
	Examples     []Example            `json:"examples,omitempty"`
	Dependencies []string             `json:"dependencies,omitempty"`
	Tags         []string             `json:"tags,omitempty"`
	Version      string               `json:"version,omitempty"`
	Performance  *PerformanceMetrics  `json:"performance_metrics,omitempty"`
}

// Validate checks the request before any network call is made.
func (r *AddRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	return validateParameters(r.Parameters)
}

// NewFunction builds a Function from the request, applying defaults. The
// caller supplies the identity and timestamp.
func (r *AddRequest) NewFunction(id string, now time.Time) *Function {
	f := &Function{
		ID:           id,
		Name:         strings.TrimSpace(r.Name),
		Description:  strings.TrimSpace(r.Description),
		Category:     strings.TrimSpace(r.Category),
		Subcategory:  strings.TrimSpace(r.Subcategory),
		UseCases:     compact(r.UseCases),
		Examples:     r.Examples,
		Dependencies: compact(r.Dependencies),
		Tags:         NormalizeTags(r.Tags),
		Version:      strings.TrimSpace(r.Version),
		LastUpdated:  now,
		Performance:  r.Performance,
	}
	if f.Category == "" {
		f.Category = DefaultCategory
	}
	if f.Version == "" {
		f.Version = DefaultVersion
	}
	if len(r.Parameters) > 0 {
		f.Parameters = make(map[string]Parameter, len(r.Parameters))
		for name, p := range r.Parameters {
			f.Parameters[strings.TrimSpace(name)] = p.clone()
		}
	}
	return f.Clone()
}

// UpdateRequest carries a partial update. Nil fields are left untouched.
type UpdateRequest struct {
	Name         *string              `json:"name,omitempty"`
	Description  *string              `json:"description,omitempty"`
	Category     *string              `json:"category,omitempty"`
	Subcategory  *string              `json:"subcategory,omitempty"`
	Parameters   map[string]Parameter `json:"parameters,omitempty"`
	UseCases     []string             `json:"use_cases,omitempty"`
	Examples     []Example            `json:"examples,omitempty"`
	Dependencies []string             `json:"dependencies,omitempty"`
	Tags         []string             `json:"tags,omitempty"`
	Version      *string              `json:"version,omitempty"`
	Performance  *PerformanceMetrics  `json:"performance_metrics,omitempty"`
}

// Validate checks the update before it is applied.
func (u *UpdateRequest) Validate() error {
	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	return validateParameters(u.Parameters)
}

// Apply returns a copy of f with the update applied. LastUpdated is not
// touched; the registry owns timestamps.
func (u *UpdateRequest) Apply(f *Function) *Function {
	out := f.Clone()
	if u.Name != nil {
		out.Name = strings.TrimSpace(*u.Name)
	}
	if u.Description != nil {
		out.Description = strings.TrimSpace(*u.Description)
	}
	if u.Category != nil {
		out.Category = strings.TrimSpace(*u.Category)
	}
	if u.Subcategory != nil {
		out.Subcategory = strings.TrimSpace(*u.Subcategory)
	}
	if u.Parameters != nil {
		out.Parameters = make(map[string]Parameter, len(u.Parameters))
		for name, p := range u.Parameters {
			out.Parameters[strings.TrimSpace(name)] = p.clone()
		}
	}
	if u.UseCases != nil {
		out.UseCases = compact(u.UseCases)
	}
	if u.Examples != nil {
		out.Examples = append([]Example(nil), u.Examples...)
	}
	if u.Dependencies != nil {
		out.Dependencies = compact(u.Dependencies)
	}
	if u.Tags != nil {
		out.Tags = NormalizeTags(u.Tags)
	}
	if u.Version != nil {
		out.Version = strings.TrimSpace(*u.Version)
	}
	if u.Performance != nil {
		perf := *u.Performance
		out.Performance = &perf
	}
	return out
}

func validateParameters(params map[string]Parameter) error {
	for name, p := range params {
		if strings.TrimSpace(name) == "" {
			return &ValidationError{Field: "parameters", Reason: "parameter name must not be empty"}
		}
		if err := validateParameter(p); err != nil {
			return &ValidationError{Field: "parameters." + name, Reason: err.Error()}
		}
	}
	return nil
}

func validateParameter(p Parameter) error {
	if !p.Type.Valid() {
		return fmt.Errorf("unknown type %q", p.Type)
	}
	if p.Items != nil {
		if p.Type != ParamArray {
			return fmt.Errorf("items is only allowed on array parameters")
		}
		if err := validateParameter(*p.Items); err != nil {
			return fmt.Errorf("items: %w", err)
		}
	}
	return nil
}

// NormalizeTags lowercases and trims tags, dropping empties and duplicates
// while keeping first-seen order.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func compact(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
