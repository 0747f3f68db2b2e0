package profile_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gopnik-forensics/gopnik/pkg/pii"
	"github.com/gopnik-forensics/gopnik/pkg/profile"
)

func conflictPair() (*profile.Profile, *profile.Profile) {
	a := &profile.Profile{
		Name:                "a",
		VisualRules:         map[pii.Type]bool{pii.TypeFace: true},
		TextRules:           map[pii.Type]bool{pii.TypeEmail: true},
		RedactionStyle:      profile.StyleSolidBlack,
		ConfidenceThreshold: 0.5,
	}
	b := &profile.Profile{
		Name:                "b",
		VisualRules:         map[pii.Type]bool{pii.TypeFace: false},
		TextRules:           map[pii.Type]bool{pii.TypeEmail: true, pii.TypePhone: true},
		RedactionStyle:      profile.StyleBlurred,
		ConfidenceThreshold: 0.8,
	}
	return a, b
}

func TestDetectConflicts(t *testing.T) {
	a, b := conflictPair()
	conflicts := profile.DetectConflicts(a, b)

	fields := make([]string, len(conflicts))
	for i, c := range conflicts {
		fields[i] = c.Field
	}
	assert.ElementsMatch(t, []string{"visual_rules.face", "redaction_style", "confidence_threshold"}, fields)
}

func TestDetectConflicts_SmallThresholdDeltaIgnored(t *testing.T) {
	a, b := conflictPair()
	b.VisualRules[pii.TypeFace] = true
	b.RedactionStyle = a.RedactionStyle
	b.ConfidenceThreshold = a.ConfidenceThreshold + 0.05

	assert.Empty(t, profile.DetectConflicts(a, b))
}

func TestMergeWithStrategy(t *testing.T) {
	a, b := conflictPair()

	_, err := profile.MergeWithStrategy(a, b, profile.StrategyStrict)
	var cerr *profile.ConflictError
	require.ErrorAs(t, err, &cerr)
	assert.NotEmpty(t, cerr.Conflicts)

	permissive, err := profile.MergeWithStrategy(a, b, profile.StrategyPermissive)
	require.NoError(t, err)
	assert.True(t, permissive.VisualRules[pii.TypeFace])
	assert.True(t, permissive.TextRules[pii.TypePhone])
	assert.Equal(t, 0.5, permissive.ConfidenceThreshold)

	conservative, err := profile.MergeWithStrategy(a, b, profile.StrategyConservative)
	require.NoError(t, err)
	assert.False(t, conservative.VisualRules[pii.TypeFace])
	assert.True(t, conservative.TextRules[pii.TypeEmail])
	assert.Equal(t, 0.8, conservative.ConfidenceThreshold)
}

func TestConditionEvaluation(t *testing.T) {
	p := &profile.Profile{
		Name: "conditional",
		CustomRules: map[string]profile.CustomRule{
			"email": {Condition: `confidence > 0.8 && page == 0`},
		},
	}
	require.Empty(t, p.Validate())

	prg, err := p.ConditionFor(pii.TypeEmail)
	require.NoError(t, err)
	require.NotNil(t, prg)

	det, err := pii.NewDetection(pii.TypeEmail, pii.BoundingBox{X1: 0, Y1: 0, X2: 10, Y2: 10}, 0.9, 0, pii.MethodNLP)
	require.NoError(t, err)
	ok, err := profile.EvaluateCondition(prg, det)
	require.NoError(t, err)
	assert.True(t, ok)

	low := det.WithConfidence(0.4)
	ok, err = profile.EvaluateCondition(prg, low)
	require.NoError(t, err)
	assert.False(t, ok)

	// No condition registered for the type.
	none, err := p.ConditionFor(pii.TypeFace)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestCondition_CompileErrors(t *testing.T) {
	_, err := profile.CompileCondition(`confidence +`)
	assert.Error(t, err)

	_, err = profile.CompileCondition(`confidence + 1.0`) // not boolean
	assert.Error(t, err)
}
