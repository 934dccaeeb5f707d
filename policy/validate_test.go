package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aureus-sentinel/bridge/types"
)

func TestValidate_UnsupportedVersion(t *testing.T) {
	r := &Registry{Version: "9", Profiles: []ToolProfile{{Tool: "x", BaseRisk: types.RiskLow}}}
	assert.Error(t, r.Validate())
}

func TestValidate_NoProfiles(t *testing.T) {
	r := &Registry{Version: Version1}
	assert.Error(t, r.Validate())
}

func TestValidate_DuplicateTool(t *testing.T) {
	r := &Registry{
		Version: Version1,
		Profiles: []ToolProfile{
			{Tool: "web_search", BaseRisk: types.RiskLow},
			{Tool: "web_search", BaseRisk: types.RiskMedium},
		},
	}
	assert.Error(t, r.Validate())
}

func TestValidate_MissingToolName(t *testing.T) {
	r := &Registry{Version: Version1, Profiles: []ToolProfile{{BaseRisk: types.RiskLow}}}
	assert.Error(t, r.Validate())
}

func TestValidate_InvalidBaseRisk(t *testing.T) {
	r := &Registry{Version: Version1, Profiles: []ToolProfile{{Tool: "x", BaseRisk: "critical"}}}
	assert.Error(t, r.Validate())
}

func TestValidate_OK(t *testing.T) {
	r := &Registry{Version: Version1, Profiles: []ToolProfile{{Tool: "x", BaseRisk: types.RiskLow, Allowed: true}}}
	assert.NoError(t, r.Validate())
}
