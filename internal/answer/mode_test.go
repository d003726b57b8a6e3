package answer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectMode(t *testing.T) {
	cases := []struct {
		message string
		want    string
	}{
		{"hello", ModeGeneral},
		{"Hello!", ModeGeneral},
		{"hey there", ModeGeneral},
		{"thanks", ModeGeneral},
		{"how are you", ModeGeneral},
		{"ok", ModeGeneral},
		{"sounds good", ModeGeneral},

		{"What is Project X?", ModeKnowledge},
		{"what is the launch date", ModeKnowledge},
		{"Explain the deployment pipeline", ModeKnowledge},
		{"tell me about the roadmap", ModeKnowledge},
		{"Compare plan A and plan B", ModeKnowledge},
		{"the budget was approved?", ModeKnowledge},
		{"I need the full onboarding checklist for new hires", ModeKnowledge},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, DetectMode(tc.message), "message: %q", tc.message)
	}
}
