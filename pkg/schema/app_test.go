package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppDefinitionJSONRoundTrip(t *testing.T) {
	minVal := 1.0
	def := AppDefinition{
		AppID: "poll",
		Name:  "Team Poll",
		StateSchema: []StateFieldSpec{
			{Name: "votes", Type: TypeMap},
			{Name: "voted", Type: TypeBool, PerAgent: true},
		},
		Actions: map[string]ActionDefinition{
			"vote": {
				Params: []ParamSpec{
					{Name: "option", Type: TypeString, Required: true, Choices: []any{"yes", "no"}},
					{Name: "weight", Type: TypeNumber, Default: float64(1), Min: &minVal},
				},
				Logic: []LogicBlock{
					{Type: BlockValidate, Condition: "!voted", ErrorMessage: `"already voted"`},
					{Type: BlockUpdate, TargetPath: "voted", Operation: OpSet, Value: "true"},
					{Type: BlockBranch, Condition: "weight > 1",
						Then: []LogicBlock{{Type: BlockNotify, Message: `"weighted vote"`, Target: "*"}}},
					{Type: BlockReturn, Value: "votes"},
				},
			},
		},
		AccessType:   AccessPerRole,
		AllowedRoles: []string{"member"},
	}

	raw, err := json.Marshal(def)
	require.NoError(t, err)

	var back AppDefinition
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, def, back)
}

func TestAppDefinitionLookups(t *testing.T) {
	def := &AppDefinition{
		AppID: "x",
		StateSchema: []StateFieldSpec{
			{Name: "count", Type: TypeNumber},
		},
		Actions: map[string]ActionDefinition{
			"bump": {Logic: []LogicBlock{{Type: BlockReturn}}},
		},
	}

	require.NotNil(t, def.Action("bump"))
	assert.Nil(t, def.Action("ghost"))

	require.NotNil(t, def.StateField("count"))
	assert.Nil(t, def.StateField("ghost"))
}

func TestAllowsRole(t *testing.T) {
	shared := &AppDefinition{AccessType: AccessShared}
	assert.True(t, shared.AllowsRole("anyone"))
	assert.True(t, (&AppDefinition{}).AllowsRole(""), "unset access type defaults to shared")

	gated := &AppDefinition{AccessType: AccessPerRole, AllowedRoles: []string{"admin", "judge"}}
	assert.True(t, gated.AllowsRole("judge"))
	assert.False(t, gated.AllowsRole("player"))
	assert.False(t, gated.AllowsRole(""))
}

func TestBroadcast(t *testing.T) {
	assert.True(t, IsBroadcast("*"))
	assert.True(t, IsBroadcast(""))
	assert.False(t, IsBroadcast("alice"))
	assert.True(t, Notification{Target: "*"}.Broadcast())
	assert.False(t, Notification{Target: "bob"}.Broadcast())
}
