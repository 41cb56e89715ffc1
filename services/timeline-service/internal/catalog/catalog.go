// Package catalog holds the resource and treatment lookups used while
// normalizing appointments, and resolves resource selection sentinels.
package catalog

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/model"
)

const (
	// AllResources selects every resource.
	AllResources = "all"
	// PrimaryResource selects the first resource in sorted order.
	PrimaryResource = "main"
)

const defaultResourceName = "ספר"

var Palette = [...]string{
	"#2F6CF6",
	"#10B981",
	"#F59E0B",
	"#EF4444",
	"#8B5CF6",
	"#F97316",
	"#06B6D4",
	"#84CC16",
	"#EC4899",
	"#6366F1",
}

// ColorFor returns the resource's own color or the palette entry at index.
func ColorFor(r model.Resource, index int) string {
	if r.Color != "" {
		return r.Color
	}
	if index < 0 {
		index = -index
	}
	return Palette[index%len(Palette)]
}

// SortResources returns a copy of resources with primaryID first and the rest
// ordered by name under the collation rules of tag, ties broken by id.
func SortResources(resources []model.Resource, primaryID string, tag language.Tag) []model.Resource {
	out := make([]model.Resource, len(resources))
	copy(out, resources)
	col := collate.New(tag, collate.IgnoreCase)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if primaryID != "" && (a.ID == primaryID) != (b.ID == primaryID) {
			return a.ID == primaryID
		}
		if c := col.CompareString(a.Name, b.Name); c != 0 {
			return c < 0
		}
		return a.ID < b.ID
	})
	return out
}

type Catalog struct {
	resources  []model.Resource
	byID       map[string]int
	treatments map[string]model.Treatment
	primaryID  string
	tag        language.Tag
}

func New(resources []model.Resource, treatments []model.Treatment, primaryID string, tag language.Tag) *Catalog {
	named := make([]model.Resource, 0, len(resources))
	for _, r := range resources {
		if r.ID == "" {
			continue
		}
		if r.Name == "" {
			r.Name = defaultResourceName
		}
		named = append(named, r)
	}
	c := &Catalog{
		resources:  SortResources(named, primaryID, tag),
		byID:       make(map[string]int, len(named)),
		treatments: make(map[string]model.Treatment, len(treatments)),
		primaryID:  primaryID,
		tag:        tag,
	}
	for i, r := range c.resources {
		c.byID[r.ID] = i
	}
	for _, t := range treatments {
		if t.ID != "" {
			c.treatments[t.ID] = t
		}
	}
	return c
}

// Empty is a catalog with no resources or treatments.
func Empty() *Catalog {
	return New(nil, nil, "", language.Hebrew)
}

// Resources returns the sorted resources with their display colors resolved.
func (c *Catalog) Resources() []model.Resource {
	out := make([]model.Resource, len(c.resources))
	for i, r := range c.resources {
		r.Color = ColorFor(r, i)
		out[i] = r
	}
	return out
}

func (c *Catalog) Resource(id string) (model.Resource, bool) {
	i, ok := c.byID[id]
	if !ok {
		return model.Resource{}, false
	}
	r := c.resources[i]
	r.Color = ColorFor(r, i)
	return r, true
}

func (c *Catalog) Treatment(id string) (model.Treatment, bool) {
	t, ok := c.treatments[id]
	return t, ok
}

func (c *Catalog) Treatments() []model.Treatment {
	out := make([]model.Treatment, 0, len(c.treatments))
	for _, t := range c.treatments {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ResolveResource turns a requested resource into a concrete filter. An empty
// result means no resource filter.
func (c *Catalog) ResolveResource(requested string) string {
	switch requested {
	case "", AllResources:
		return ""
	case PrimaryResource:
		if len(c.resources) == 0 {
			return ""
		}
		return c.resources[0].ID
	default:
		return requested
	}
}

// Only narrows the catalog to a single resource, as used when a staff member
// may only see their own lane. Treatments are kept. An unknown id yields a
// catalog without resources.
func (c *Catalog) Only(resourceID string) *Catalog {
	var kept []model.Resource
	if i, ok := c.byID[resourceID]; ok {
		kept = append(kept, c.resources[i])
	}
	treatments := make([]model.Treatment, 0, len(c.treatments))
	for _, t := range c.treatments {
		treatments = append(treatments, t)
	}
	return New(kept, treatments, resourceID, c.tag)
}
