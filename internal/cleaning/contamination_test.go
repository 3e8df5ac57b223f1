package cleaning

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newContamination(t *testing.T) *PromptContamination {
	t.Helper()
	return NewPromptContamination(DefaultConfig(), nil)
}

func TestCleanExtractsWrapperInterior(t *testing.T) {
	t.Parallel()

	c := newContamination(t)
	result, err := c.Clean(context.Background(), "<TRANSCRIPT>\nHello world\n</TRANSCRIPT>", "en", nil)
	require.NoError(t, err)
	require.Equal(t, "Hello world", result.Text)
	require.True(t, result.SignificantChange)
}

func TestCleanHandlesTruncatedWrapper(t *testing.T) {
	t.Parallel()

	c := newContamination(t)
	result, err := c.Clean(context.Background(), "<TRANSCRIPT>\nPartial content", "en", nil)
	require.NoError(t, err)
	require.Equal(t, "Partial content", result.Text)
}

func TestCleanKeepsInteriorOfDuplicatedWrapper(t *testing.T) {
	t.Parallel()

	c := newContamination(t)
	result, err := c.Clean(context.Background(), "noise before <TRANSCRIPT>kept speech</TRANSCRIPT> noise after", "en", nil)
	require.NoError(t, err)
	require.Equal(t, "kept speech", result.Text)
}

func TestCleanStripsStrayAndGenericTags(t *testing.T) {
	t.Parallel()

	c := newContamination(t)
	result, err := c.Clean(context.Background(), "Hello </TRANSCRIPT> there <br/> friend <note></note>.", "en", nil)
	require.NoError(t, err)
	require.Equal(t, "Hello  there  friend .", result.Text)
}

func TestCleanRemovesLeadingInstructionOnly(t *testing.T) {
	t.Parallel()

	c := newContamination(t)

	leading := "Please transcribe the following audio. The weather is nice today."
	result, err := c.Clean(context.Background(), leading, "en", nil)
	require.NoError(t, err)
	require.Equal(t, "The weather is nice today.", result.Text)

	// The same sentence in the middle of genuine speech must survive.
	middle := "I told him: Please transcribe the following audio. He laughed."
	result, err = c.Clean(context.Background(), middle, "en", nil)
	require.NoError(t, err)
	require.Equal(t, middle, result.Text)
}

func TestCleanRemovesInstructionSnippetWithCloser(t *testing.T) {
	t.Parallel()

	c := newContamination(t)

	// Truncated instruction echo followed closely by a closing word.
	echoed := "Please transcribe the following audio clips only\nActual speech here."
	result, err := c.Clean(context.Background(), echoed, "en", nil)
	require.NoError(t, err)
	require.Equal(t, "Actual speech here.", result.Text)
}

func TestCleanKeepsBareSnippetWithoutCloser(t *testing.T) {
	t.Parallel()

	c := newContamination(t)

	// A snippet with no closing word nearby is ordinary speech.
	speech := "We heard please transcribe and then the tape stopped."
	result, err := c.Clean(context.Background(), speech, "en", nil)
	require.NoError(t, err)
	require.Contains(t, result.Text, "the tape stopped")
}

func TestCleanRemovesPlaceholderAndFormatLabel(t *testing.T) {
	t.Parallel()

	c := newContamination(t)
	input := "Output format:\n(speaker content only)\nReal words here."
	result, err := c.Clean(context.Background(), input, "en", nil)
	require.NoError(t, err)
	require.Equal(t, "Real words here.", result.Text)
}

func TestCleanNormalizesWhitespace(t *testing.T) {
	t.Parallel()

	c := newContamination(t)
	result, err := c.Clean(context.Background(), "First.\n\n\n\n\nSecond.\n   \nThird.  ", "en", nil)
	require.NoError(t, err)
	require.Equal(t, "First.\n\nSecond.\n\nThird.", result.Text)
}

func TestCleanEmptyInput(t *testing.T) {
	t.Parallel()

	c := newContamination(t)
	result, err := c.Clean(context.Background(), "", "en", nil)
	require.NoError(t, err)
	require.Empty(t, result.Text)
	require.False(t, result.SignificantChange)
}

func TestCleanReportsHighReduction(t *testing.T) {
	t.Parallel()

	c := newContamination(t)
	input := "<TRANSCRIPT>" + strings.Join(InstructionFor("en"), " ") + "\nhi</TRANSCRIPT>"
	result, err := c.Clean(context.Background(), input, "en", nil)
	require.NoError(t, err)
	require.Equal(t, "hi", result.Text)
	require.Contains(t, result.Issues, "high reduction ratio")
}

func TestCleanSkipsMalformedExtraPattern(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.ExtraPatterns = []Pattern{
		{Expr: "[unclosed"},
		{Expr: `\[music\]`, IgnoreCase: true},
	}

	c := NewPromptContamination(cfg, nil)
	result, err := c.Clean(context.Background(), "Hello [MUSIC] world", "en", nil)
	require.NoError(t, err)
	require.Equal(t, "Hello  world", result.Text)
}

func TestCleanUnknownLanguageFallsBack(t *testing.T) {
	t.Parallel()

	c := newContamination(t)
	result, err := c.Clean(context.Background(), "<TRANSCRIPT>Bonjour tout le monde</TRANSCRIPT>", "fr", nil)
	require.NoError(t, err)
	require.Equal(t, "Bonjour tout le monde", result.Text)
}

func TestPatternCompileFlags(t *testing.T) {
	t.Parallel()

	re, err := Pattern{Expr: "^abc$", IgnoreCase: true, Multiline: true}.Compile()
	require.NoError(t, err)
	require.True(t, re.MatchString("first\nABC\nlast"))

	_, err = Pattern{Expr: "("}.Compile()
	require.Error(t, err)
}

func TestBaseLang(t *testing.T) {
	t.Parallel()

	require.Equal(t, "ja", baseLang("ja-JP"))
	require.Equal(t, "en", baseLang(" EN "))
	require.Equal(t, "zh", baseLang("zh_CN"))
	require.Equal(t, "", baseLang(""))
}
