// Package porttype is the static table of port types: which connections are
// legal and how each type is displayed.
package porttype

import "github.com/bert-systems/canvas/pkg/domain"

// Category groups port types in menus and legends.
type Category string

const (
	CategoryMedia   Category = "media"
	CategoryStory   Category = "story"
	CategoryFashion Category = "fashion"
	CategoryDesign  Category = "design"
	CategoryGeneric Category = "generic"
)

// Info is the display metadata of a port type.
type Info struct {
	Type     domain.PortType `json:"type"`
	Label    string          `json:"label"`
	Color    string          `json:"color"`
	Category Category        `json:"category"`
}

// DefaultColor is used for types missing from the table.
const DefaultColor = "#9ca3af"

var table = []Info{
	{domain.PortImage, "Image", "#3b82f6", CategoryMedia},
	{domain.PortVideo, "Video", "#6366f1", CategoryMedia},
	{domain.PortAudio, "Audio", "#06b6d4", CategoryMedia},
	{domain.PortText, "Text", "#64748b", CategoryGeneric},
	{domain.PortStyle, "Style", "#ec4899", CategoryDesign},
	{domain.PortCharacter, "Character", "#f59e0b", CategoryStory},
	{domain.PortMesh3D, "3D Mesh", "#14b8a6", CategoryMedia},
	{domain.PortStory, "Story", "#8b5cf6", CategoryStory},
	{domain.PortScene, "Scene", "#a855f7", CategoryStory},
	{domain.PortDialogue, "Dialogue", "#d946ef", CategoryStory},
	{domain.PortOutline, "Outline", "#7c3aed", CategoryStory},
	{domain.PortLore, "Lore", "#9333ea", CategoryStory},
	{domain.PortTimeline, "Timeline", "#c026d3", CategoryStory},
	{domain.PortGarment, "Garment", "#f43f5e", CategoryFashion},
	{domain.PortFabric, "Fabric", "#fb7185", CategoryFashion},
	{domain.PortPattern, "Pattern", "#e11d48", CategoryFashion},
	{domain.PortOutfit, "Outfit", "#be123c", CategoryFashion},
	{domain.PortCollection, "Collection", "#9f1239", CategoryFashion},
	{domain.PortTechPack, "Tech Pack", "#881337", CategoryFashion},
	{domain.PortLookbook, "Lookbook", "#f97316", CategoryFashion},
	{domain.PortPalette, "Palette", "#eab308", CategoryDesign},
	{domain.PortMoodboard, "Moodboard", "#84cc16", CategoryDesign},
	{domain.PortAny, "Any", DefaultColor, CategoryGeneric},
}

var byType = func() map[domain.PortType]Info {
	m := make(map[domain.PortType]Info, len(table))
	for _, info := range table {
		m[info.Type] = info
	}
	return m
}()

// IsCompatible reports whether an output of type source may feed an input of
// type target: the types are equal, or either side is "any".
func IsCompatible(source, target domain.PortType) bool {
	return source == target || source == domain.PortAny || target == domain.PortAny
}

// ColorOf returns the display colour of a type as a hex string.
func ColorOf(t domain.PortType) string {
	if info, ok := byType[t]; ok {
		return info.Color
	}
	return DefaultColor
}

// Lookup returns the metadata of a type.
func Lookup(t domain.PortType) (Info, bool) {
	info, ok := byType[t]
	return info, ok
}

// Known reports whether a type is part of the closed enumeration.
func Known(t domain.PortType) bool {
	_, ok := byType[t]
	return ok
}

// All returns every registered type in a stable order.
func All() []Info {
	out := make([]Info, len(table))
	copy(out, table)
	return out
}
