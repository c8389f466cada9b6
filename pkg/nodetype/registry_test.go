package nodetype

import (
	"encoding/json"
	"testing"

	"github.com/bert-systems/canvas/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry(t *testing.T) {
	r := Default()

	list := r.List()
	require.Len(t, list, 12)
	for i := 1; i < len(list); i++ {
		assert.Less(t, list[i-1].Type, list[i].Type, "List must be sorted")
	}

	assert.True(t, r.CycleTolerant(StoryRefiner))
	assert.False(t, r.CycleTolerant(StoryGenesis))
	assert.False(t, r.CycleTolerant("nope"))
}

func TestBuiltinTemplates(t *testing.T) {
	for _, tmpl := range Builtin() {
		t.Run(tmpl.Type, func(t *testing.T) {
			require.NoError(t, tmpl.check())

			seen := make(map[string]bool)
			for _, p := range append(append([]PortSpec{}, tmpl.Inputs...), tmpl.Outputs...) {
				assert.False(t, seen[p.ID], "port id %s declared twice", p.ID)
				seen[p.ID] = true
			}
		})
	}

	r := Default()
	for typ, port := range map[string]string{
		SceneBuilder:     "sceneTimeline",
		StoryRefiner:     "refinedStory",
		MoodboardCurator: "extractedPalette",
	} {
		node, err := r.Build(Spec{Type: typ, ID: "n"})
		require.NoError(t, err, typ)
		_, ok := node.OutputPort(port)
		assert.True(t, ok, "%s should expose output %s", typ, port)
	}
}

func TestBuild(t *testing.T) {
	r := Default()

	node, err := r.Build(Spec{Type: SceneBuilder, ID: "s1", Parameters: map[string]any{"sceneCount": float64(5)}})
	require.NoError(t, err)

	assert.Equal(t, "s1", node.ID)
	assert.Equal(t, "Scene Builder", node.Label)
	assert.Equal(t, domain.StatusIdle, node.Status)
	assert.Equal(t, 5, node.Parameters["sceneCount"])
	assert.Equal(t, "calm", node.Parameters["mood"])

	story, ok := node.InputPort("story")
	require.True(t, ok)
	assert.True(t, story.Required)
	assert.Equal(t, domain.DirectionInput, story.Direction)

	scene, ok := node.OutputPort("scene")
	require.True(t, ok)
	assert.False(t, scene.Required)
	assert.Equal(t, domain.PortScene, scene.Type)
}

func TestBuildErrors(t *testing.T) {
	r := Default()

	_, err := r.Build(Spec{Type: "hologramMaker"})
	assert.ErrorIs(t, err, domain.ErrUnknownNodeType)

	_, err = r.Build(Spec{Type: StoryGenesis, Parameters: map[string]any{"genre": "western"}})
	assert.ErrorIs(t, err, domain.ErrInvalidParameters)

	_, err = r.Build(Spec{Type: StoryGenesis, Parameters: map[string]any{"colour": "red"}})
	assert.ErrorIs(t, err, domain.ErrInvalidParameters)
}

func TestDecodeTypedParams(t *testing.T) {
	r := Default()
	node, err := r.Build(Spec{Type: CharacterCreator, Parameters: map[string]any{
		"name":   "Ada",
		"traits": []any{"curious", "stubborn"},
	}})
	require.NoError(t, err)

	p, err := r.Decode(node)
	require.NoError(t, err)

	cc, ok := p.(*CharacterCreatorParams)
	require.True(t, ok, "got %T", p)
	assert.Equal(t, "Ada", cc.Name)
	assert.Equal(t, "hero", cc.Archetype)
	assert.Equal(t, []string{"curious", "stubborn"}, cc.Traits)
	assert.Equal(t, 30, cc.Age)
}

func TestPatchParameters(t *testing.T) {
	r := Default()
	node, err := r.Build(Spec{Type: ImageComposer})
	require.NoError(t, err)

	params, err := r.PatchParameters(node, map[string]any{"width": float64(512), "prompt": "a castle"})
	require.NoError(t, err)
	assert.Equal(t, 512, params["width"])
	assert.Equal(t, 1024, params["height"])
	assert.Equal(t, "a castle", params["prompt"])

	// nil resets a key to its default
	node.Parameters = params
	params, err = r.PatchParameters(node, map[string]any{"width": nil})
	require.NoError(t, err)
	assert.Equal(t, 1024, params["width"])

	_, err = r.PatchParameters(node, map[string]any{"width": 10})
	assert.ErrorIs(t, err, domain.ErrInvalidParameters)

	_, err = r.PatchParameters(node, map[string]any{"aspectRatio": nil})
	assert.ErrorIs(t, err, domain.ErrInvalidParameters)
}

func TestRegisterRejectsBadTemplates(t *testing.T) {
	r := NewRegistry()

	err := r.Register(Template{
		Type:     "broken",
		Outputs:  []PortSpec{{ID: "x", Type: "hologram"}},
		Defaults: func() Params { return &RerouteParams{} },
	})
	assert.Error(t, err)

	err = r.Register(Template{
		Type:     Reroute,
		Inputs:   []PortSpec{{ID: "x", Type: domain.PortAny}},
		Outputs:  []PortSpec{{ID: "x", Type: domain.PortAny}},
		Defaults: func() Params { return &RerouteParams{} },
	})
	assert.Error(t, err, "duplicate port ids")

	_, ok := r.Lookup(Reroute)
	assert.False(t, ok)
}

func TestTemplateJSON(t *testing.T) {
	tmpl, ok := Default().Lookup(TextPrompt)
	require.True(t, ok)

	raw, err := json.Marshal(tmpl)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, TextPrompt, decoded["nodeType"])
	assert.Equal(t, []any{}, decoded["inputs"])
	assert.Equal(t, map[string]any{"text": ""}, decoded["defaults"])
	assert.Contains(t, decoded["schema"], "text")
}
