package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"streamchat/model"
)

func TestBandBoundaries(t *testing.T) {
	cases := []struct {
		verbosity int
		band      string
	}{
		{0, BandMinimal},
		{20, BandMinimal},
		{21, BandConcise},
		{40, BandConcise},
		{41, BandStandard},
		{50, BandStandard},
		{60, BandStandard},
		{61, BandDetailed},
		{80, BandDetailed},
		{81, BandComprehensive},
		{100, BandComprehensive},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.band, Band(tc.verbosity), "verbosity %d", tc.verbosity)
	}
}

func TestComposeIncludesBandRules(t *testing.T) {
	got := Compose(Input{Verbosity: 10, Mode: model.ModeChat})
	assert.True(t, strings.HasPrefix(got, basePersona))
	assert.Contains(t, got, bandRules[BandMinimal])
	assert.NotContains(t, got, "User instructions")
}

func TestComposeCustomInstructionsPrecedeBandRules(t *testing.T) {
	got := Compose(Input{
		Verbosity:          10,
		Mode:               model.ModeChat,
		CustomInstructions: "Always answer in French.",
	})

	// The instruction block must be declared higher priority and sit above
	// the style rulebook, so "answer at length in French" beats a minimal
	// band telling the model to keep it to two sentences.
	assert.Contains(t, got, "highest priority")
	assert.Contains(t, got, "Always answer in French.")
	assert.Contains(t, got, bandRules[BandMinimal])
	assert.Less(t,
		strings.Index(got, "Always answer in French."),
		strings.Index(got, bandRules[BandMinimal]),
	)
}

func TestComposeBlankCustomInstructionsIgnored(t *testing.T) {
	got := Compose(Input{Verbosity: 50, CustomInstructions: "   \n\t"})
	assert.NotContains(t, got, "User instructions")
	assert.Contains(t, got, bandRules[BandStandard])
}

func TestComposeLearningModeExcludesStyleSection(t *testing.T) {
	got := Compose(Input{
		Verbosity:          90,
		Mode:               model.ModeLearnSocratic,
		CustomInstructions: "Always answer in French.",
	})

	assert.Contains(t, got, learningTemplates[model.ModeLearnSocratic])
	assert.NotContains(t, got, "Always answer in French.")
	assert.NotContains(t, got, bandRules[BandComprehensive])
}

func TestComposePersonaLine(t *testing.T) {
	got := Compose(Input{Verbosity: 50, UserName: "Ada", UserGender: "female"})
	assert.Contains(t, got, "The user's name is Ada")
	assert.Contains(t, got, "she/her")

	got = Compose(Input{Verbosity: 50, UserName: "Ada", UserGender: "unspecified"})
	assert.Contains(t, got, "The user's name is Ada")
	assert.NotContains(t, got, "she/her")
	assert.NotContains(t, got, "he/him")

	got = Compose(Input{Verbosity: 50})
	assert.NotContains(t, got, "The user's name")
}
