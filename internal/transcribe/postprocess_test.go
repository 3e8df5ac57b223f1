package transcribe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mfell/voicenotes/internal/cleaning"
	"github.com/mfell/voicenotes/internal/correct"
)

func newTestPipeline(t *testing.T) *cleaning.Pipeline {
	t.Helper()
	return cleaning.NewDefaultPipeline(cleaning.DefaultConfig(), zap.NewNop())
}

func TestStripWrapperCompleteEnvelope(t *testing.T) {
	t.Parallel()

	raw := cleaning.WrapperOpen + "\nHello world\n" + cleaning.WrapperClose
	require.Equal(t, "Hello world", StripWrapper(raw))
}

func TestStripWrapperTruncatedResponse(t *testing.T) {
	t.Parallel()

	raw := cleaning.WrapperOpen + "\nThe meeting went well."
	require.Equal(t, "The meeting went well.", StripWrapper(raw))
}

func TestStripWrapperPlainTextUnchanged(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Just speech.", StripWrapper("Just speech."))
}

func TestProcessFullChain(t *testing.T) {
	t.Parallel()

	corrector := correct.New([]correct.Rule{{From: "cube control", To: "kubectl"}}, zap.NewNop())
	pp := NewPostProcessor(newTestPipeline(t), corrector, zap.NewNop())

	raw := cleaning.WrapperOpen + "\nI ran cube control apply yesterday.\n" + cleaning.WrapperClose
	text, report := pp.Process(context.Background(), raw, "en")

	require.Equal(t, "I ran kubectl apply yesterday.", text)
	require.NotEmpty(t, report.Stages)
}

func TestProcessLegacyFallbackWithoutPipeline(t *testing.T) {
	t.Parallel()

	pp := NewPostProcessor(nil, nil, zap.NewNop())

	text, report := pp.Process(context.Background(), "<note>Hello</note>\n\n\n\nthere", "en")

	require.Equal(t, "Hello\n\nthere", text)
	require.Empty(t, report.Stages)
}

func TestProcessCorrectorWithoutPipeline(t *testing.T) {
	t.Parallel()

	corrector := correct.New([]correct.Rule{{From: "teh", To: "the"}}, zap.NewNop())
	pp := NewPostProcessor(nil, corrector, zap.NewNop())

	text, _ := pp.Process(context.Background(), "teh quick fox", "en")
	require.Equal(t, "the quick fox", text)
}

func TestProcessEmptyResponse(t *testing.T) {
	t.Parallel()

	pp := NewPostProcessor(newTestPipeline(t), nil, zap.NewNop())

	text, _ := pp.Process(context.Background(), cleaning.WrapperOpen+"\n"+cleaning.WrapperClose, "en")
	require.Empty(t, text)
}
