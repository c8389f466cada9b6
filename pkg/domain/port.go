package domain

// PortType is the kind of artifact a port produces or consumes.
type PortType string

const (
	PortImage      PortType = "image"
	PortVideo      PortType = "video"
	PortAudio      PortType = "audio"
	PortText       PortType = "text"
	PortStyle      PortType = "style"
	PortCharacter  PortType = "character"
	PortMesh3D     PortType = "mesh3d"
	PortStory      PortType = "story"
	PortScene      PortType = "scene"
	PortDialogue   PortType = "dialogue"
	PortOutline    PortType = "outline"
	PortLore       PortType = "lore"
	PortTimeline   PortType = "timeline"
	PortGarment    PortType = "garment"
	PortFabric     PortType = "fabric"
	PortPattern    PortType = "pattern"
	PortOutfit     PortType = "outfit"
	PortCollection PortType = "collection"
	PortTechPack   PortType = "techPack"
	PortLookbook   PortType = "lookbook"
	PortPalette    PortType = "palette"
	PortMoodboard  PortType = "moodboard"

	// PortAny is compatible with every other type, in both directions.
	PortAny PortType = "any"
)

// Direction tells whether a port receives (input) or emits (output) data.
type Direction string

const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
)

// Port is one typed connection point on a node.
type Port struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Direction Direction `json:"direction" yaml:"direction"`
	Type      PortType  `json:"portType" yaml:"portType"`

	// Required is only meaningful for inputs. It is copied from the node template.
	Required bool `json:"required,omitempty" yaml:"required,omitempty"`
}
