package nodetype

// Params is the typed parameter bag of a node. Each template owns exactly one
// variant; the variant is selected by the node type.
type Params interface {
	NodeType() string
}

type StoryGenesisParams struct {
	Premise      string `mapstructure:"premise"`
	Genre        string `mapstructure:"genre"`
	Tone         string `mapstructure:"tone"`
	TargetLength int    `mapstructure:"targetLength"`
}

func (StoryGenesisParams) NodeType() string { return StoryGenesis }

type CharacterCreatorParams struct {
	Name      string   `mapstructure:"name"`
	Archetype string   `mapstructure:"archetype"`
	Traits    []string `mapstructure:"traits"`
	Age       int      `mapstructure:"age"`
}

func (CharacterCreatorParams) NodeType() string { return CharacterCreator }

type SceneBuilderParams struct {
	Setting    string `mapstructure:"setting"`
	Mood       string `mapstructure:"mood"`
	SceneCount int    `mapstructure:"sceneCount"`
}

func (SceneBuilderParams) NodeType() string { return SceneBuilder }

type DialogueWriterParams struct {
	Style    string `mapstructure:"style"`
	MaxLines int    `mapstructure:"maxLines"`
}

func (DialogueWriterParams) NodeType() string { return DialogueWriter }

type StoryRefinerParams struct {
	Focus      string `mapstructure:"focus"`
	Iterations int    `mapstructure:"iterations"`
}

func (StoryRefinerParams) NodeType() string { return StoryRefiner }

type ImageComposerParams struct {
	Prompt      string  `mapstructure:"prompt"`
	AspectRatio string  `mapstructure:"aspectRatio"`
	Width       int     `mapstructure:"width"`
	Height      int     `mapstructure:"height"`
	Guidance    float64 `mapstructure:"guidance"`
	Seed        int     `mapstructure:"seed"`
}

func (ImageComposerParams) NodeType() string { return ImageComposer }

type MoodboardCuratorParams struct {
	Theme      string `mapstructure:"theme"`
	ImageCount int    `mapstructure:"imageCount"`
}

func (MoodboardCuratorParams) NodeType() string { return MoodboardCurator }

type FabricGeneratorParams struct {
	Material string  `mapstructure:"material"`
	Weave    string  `mapstructure:"weave"`
	Scale    float64 `mapstructure:"scale"`
}

func (FabricGeneratorParams) NodeType() string { return FabricGenerator }

type GarmentDesignerParams struct {
	Category string `mapstructure:"category"`
	Season   string `mapstructure:"season"`
	Fit      string `mapstructure:"fit"`
}

func (GarmentDesignerParams) NodeType() string { return GarmentDesigner }

type LookbookBuilderParams struct {
	Title     string `mapstructure:"title"`
	Layout    string `mapstructure:"layout"`
	PageCount int    `mapstructure:"pageCount"`
}

func (LookbookBuilderParams) NodeType() string { return LookbookBuilder }

type TextPromptParams struct {
	Text string `mapstructure:"text"`
}

func (TextPromptParams) NodeType() string { return TextPrompt }

type RerouteParams struct{}

func (RerouteParams) NodeType() string { return Reroute }
