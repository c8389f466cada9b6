package nodetype

import (
	"github.com/bert-systems/canvas/pkg/domain"
	"github.com/bert-systems/canvas/pkg/schema"
)

// Built-in node types.
const (
	StoryGenesis     = "storyGenesis"
	CharacterCreator = "characterCreator"
	SceneBuilder     = "sceneBuilder"
	DialogueWriter   = "dialogueWriter"
	StoryRefiner     = "storyRefiner"
	ImageComposer    = "imageComposer"
	MoodboardCurator = "moodboardCurator"
	FabricGenerator  = "fabricGenerator"
	GarmentDesigner  = "garmentDesigner"
	LookbookBuilder  = "lookbookBuilder"
	TextPrompt       = "textPrompt"
	Reroute          = "reroute"
)

func in(id, name string, t domain.PortType, required bool) PortSpec {
	return PortSpec{ID: id, Name: name, Type: t, Required: required}
}

func out(id, name string, t domain.PortType) PortSpec {
	return PortSpec{ID: id, Name: name, Type: t}
}

// Builtin returns the templates shipped with the canvas.
func Builtin() []Template {
	return []Template{
		{
			Type:        StoryGenesis,
			Label:       "Story Genesis",
			Domain:      DomainStory,
			Description: "Generates a story and outline from a premise.",
			Inputs: []PortSpec{
				in("premise", "Premise", domain.PortText, false),
				in("lore", "Lore", domain.PortLore, false),
			},
			Outputs: []PortSpec{
				out("story", "Story", domain.PortStory),
				out("outline", "Outline", domain.PortOutline),
			},
			Schema: schema.Schema{
				"premise":      {Type: schema.String()},
				"genre":        {Type: schema.Enum("fantasy", "scifi", "noir", "romance", "horror", "drama"), Required: true},
				"tone":         {Type: schema.String()},
				"targetLength": {Type: schema.IntRange(500, 50000)},
			},
			Defaults: func() Params { return &StoryGenesisParams{Genre: "fantasy", TargetLength: 3000} },
		},
		{
			Type:        CharacterCreator,
			Label:       "Character Creator",
			Domain:      DomainStory,
			Description: "Designs a character sheet and portrait.",
			Inputs: []PortSpec{
				in("story", "Story", domain.PortStory, false),
				in("reference", "Reference", domain.PortImage, false),
			},
			Outputs: []PortSpec{
				out("character", "Character", domain.PortCharacter),
				out("portrait", "Portrait", domain.PortImage),
			},
			Schema: schema.Schema{
				"name":      {Type: schema.String()},
				"archetype": {Type: schema.Enum("hero", "mentor", "trickster", "villain", "everyman"), Required: true},
				"traits":    {Type: schema.Slice(schema.String())},
				"age":       {Type: schema.IntRange(0, 1000)},
			},
			Defaults: func() Params { return &CharacterCreatorParams{Archetype: "hero", Traits: []string{}, Age: 30} },
		},
		{
			Type:        SceneBuilder,
			Label:       "Scene Builder",
			Domain:      DomainStory,
			Description: "Breaks a story into staged scenes for its characters.",
			Inputs: []PortSpec{
				in("story", "Story", domain.PortStory, true),
				in("characters", "Characters", domain.PortCharacter, true),
				in("timeline", "Timeline", domain.PortTimeline, false),
			},
			Outputs: []PortSpec{
				out("scene", "Scene", domain.PortScene),
				out("sceneTimeline", "Scene Timeline", domain.PortTimeline),
			},
			Schema: schema.Schema{
				"setting":    {Type: schema.String()},
				"mood":       {Type: schema.Enum("tense", "calm", "joyful", "somber", "mysterious")},
				"sceneCount": {Type: schema.IntRange(1, 20)},
			},
			Defaults: func() Params { return &SceneBuilderParams{Mood: "calm", SceneCount: 3} },
		},
		{
			Type:        DialogueWriter,
			Label:       "Dialogue Writer",
			Domain:      DomainStory,
			Description: "Writes dialogue for a scene.",
			Inputs: []PortSpec{
				in("scene", "Scene", domain.PortScene, true),
				in("characters", "Characters", domain.PortCharacter, false),
			},
			Outputs: []PortSpec{
				out("dialogue", "Dialogue", domain.PortDialogue),
			},
			Schema: schema.Schema{
				"style":    {Type: schema.Enum("naturalistic", "theatrical", "screenplay"), Required: true},
				"maxLines": {Type: schema.IntRange(1, 200)},
			},
			Defaults: func() Params { return &DialogueWriterParams{Style: "naturalistic", MaxLines: 40} },
		},
		{
			Type:          StoryRefiner,
			Label:         "Story Refiner",
			Domain:        DomainStory,
			Description:   "Iteratively revises a story; may be wired in a feedback loop.",
			CycleTolerant: true,
			Inputs: []PortSpec{
				in("story", "Story", domain.PortStory, true),
				in("feedback", "Feedback", domain.PortText, false),
			},
			Outputs: []PortSpec{
				out("refinedStory", "Refined Story", domain.PortStory),
				out("notes", "Notes", domain.PortText),
			},
			Schema: schema.Schema{
				"focus":      {Type: schema.Enum("pacing", "character", "prose", "structure"), Required: true},
				"iterations": {Type: schema.IntRange(1, 10)},
			},
			Defaults: func() Params { return &StoryRefinerParams{Focus: "prose", Iterations: 1} },
		},
		{
			Type:        ImageComposer,
			Label:       "Image Composer",
			Domain:      DomainMoodboard,
			Description: "Renders an image from a prompt, style and characters.",
			Inputs: []PortSpec{
				in("prompt", "Prompt", domain.PortText, true),
				in("style", "Style", domain.PortStyle, false),
				in("character", "Character", domain.PortCharacter, false),
			},
			Outputs: []PortSpec{
				out("image", "Image", domain.PortImage),
			},
			Schema: schema.Schema{
				"prompt":      {Type: schema.String()},
				"aspectRatio": {Type: schema.Enum("1:1", "16:9", "9:16", "4:3", "3:4"), Required: true},
				"width":       {Type: schema.IntRange(256, 2048)},
				"height":      {Type: schema.IntRange(256, 2048)},
				"guidance":    {Type: schema.FloatRange(1, 20)},
				"seed":        {Type: schema.Int()},
			},
			Defaults: func() Params {
				return &ImageComposerParams{AspectRatio: "1:1", Width: 1024, Height: 1024, Guidance: 7.5}
			},
		},
		{
			Type:        MoodboardCurator,
			Label:       "Moodboard Curator",
			Domain:      DomainMoodboard,
			Description: "Curates a moodboard and extracts its palette and style.",
			Inputs: []PortSpec{
				in("images", "Images", domain.PortImage, false),
				in("palette", "Palette", domain.PortPalette, false),
			},
			Outputs: []PortSpec{
				out("moodboard", "Moodboard", domain.PortMoodboard),
				out("extractedPalette", "Extracted Palette", domain.PortPalette),
				out("style", "Style", domain.PortStyle),
			},
			Schema: schema.Schema{
				"theme":      {Type: schema.String(), Required: true},
				"imageCount": {Type: schema.IntRange(4, 24)},
			},
			Defaults: func() Params { return &MoodboardCuratorParams{Theme: "untitled", ImageCount: 9} },
		},
		{
			Type:        FabricGenerator,
			Label:       "Fabric Generator",
			Domain:      DomainFashion,
			Description: "Generates fabric swatches and repeat patterns.",
			Inputs: []PortSpec{
				in("moodboard", "Moodboard", domain.PortMoodboard, false),
				in("palette", "Palette", domain.PortPalette, false),
			},
			Outputs: []PortSpec{
				out("fabric", "Fabric", domain.PortFabric),
				out("pattern", "Pattern", domain.PortPattern),
			},
			Schema: schema.Schema{
				"material": {Type: schema.Enum("cotton", "silk", "wool", "linen", "denim", "leather"), Required: true},
				"weave":    {Type: schema.Enum("plain", "twill", "satin", "knit")},
				"scale":    {Type: schema.FloatRange(0.1, 10)},
			},
			Defaults: func() Params { return &FabricGeneratorParams{Material: "cotton", Weave: "plain", Scale: 1} },
		},
		{
			Type:        GarmentDesigner,
			Label:       "Garment Designer",
			Domain:      DomainFashion,
			Description: "Designs a garment and its tech pack from a fabric.",
			Inputs: []PortSpec{
				in("fabric", "Fabric", domain.PortFabric, true),
				in("style", "Style", domain.PortStyle, false),
				in("moodboard", "Moodboard", domain.PortMoodboard, false),
			},
			Outputs: []PortSpec{
				out("garment", "Garment", domain.PortGarment),
				out("techPack", "Tech Pack", domain.PortTechPack),
			},
			Schema: schema.Schema{
				"category": {Type: schema.Enum("dress", "top", "trousers", "outerwear", "skirt", "accessory"), Required: true},
				"season":   {Type: schema.Enum("ss", "aw", "resort", "capsule")},
				"fit":      {Type: schema.Enum("slim", "regular", "relaxed", "oversized")},
			},
			Defaults: func() Params { return &GarmentDesignerParams{Category: "dress", Season: "ss", Fit: "regular"} },
		},
		{
			Type:        LookbookBuilder,
			Label:       "Lookbook Builder",
			Domain:      DomainFashion,
			Description: "Assembles garments into outfits, a collection and a lookbook.",
			Inputs: []PortSpec{
				in("garments", "Garments", domain.PortGarment, true),
				in("moodboard", "Moodboard", domain.PortMoodboard, false),
			},
			Outputs: []PortSpec{
				out("lookbook", "Lookbook", domain.PortLookbook),
				out("outfit", "Outfit", domain.PortOutfit),
				out("collection", "Collection", domain.PortCollection),
			},
			Schema: schema.Schema{
				"title":     {Type: schema.String()},
				"layout":    {Type: schema.Enum("editorial", "grid", "runway"), Required: true},
				"pageCount": {Type: schema.IntRange(1, 64)},
			},
			Defaults: func() Params { return &LookbookBuilderParams{Layout: "editorial", PageCount: 12} },
		},
		{
			Type:        TextPrompt,
			Label:       "Text Prompt",
			Domain:      DomainUtility,
			Description: "A free-text source node.",
			Outputs: []PortSpec{
				out("text", "Text", domain.PortText),
			},
			Schema: schema.Schema{
				"text": {Type: schema.String(), Required: true},
			},
			Defaults: func() Params { return &TextPromptParams{} },
		},
		{
			Type:        Reroute,
			Label:       "Reroute",
			Domain:      DomainUtility,
			Description: "Passes any value through unchanged.",
			Inputs: []PortSpec{
				in("in", "In", domain.PortAny, true),
			},
			Outputs: []PortSpec{
				out("out", "Out", domain.PortAny),
			},
			Schema:   schema.Schema{},
			Defaults: func() Params { return &RerouteParams{} },
		},
	}
}
