package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRootCommandRegistersCoreFlags(t *testing.T) {
	t.Parallel()

	cmd := NewRootCmd()

	require.NotNil(t, cmd.Commands())
	require.NotNil(t, cmd.Flags().Lookup("config"))
	require.NotNil(t, cmd.Flags().Lookup("model"))
	require.NotNil(t, cmd.Flags().Lookup("base-url"))
	require.NotNil(t, cmd.Flags().Lookup("language"))
	require.NotNil(t, cmd.Flags().Lookup("backend"))
	require.NotNil(t, cmd.Flags().Lookup("copy-empty"))
	require.NotNil(t, cmd.Flags().Lookup("silence-gate"))
	require.NotNil(t, cmd.Flags().Lookup("silence-threshold-dbfs"))
	require.NotNil(t, cmd.Flags().Lookup("save-note"))
	require.NotNil(t, cmd.Flags().Lookup("notes-dir"))
	require.Equal(t, "auto", cmd.Flags().Lookup("language").DefValue)
	require.Equal(t, "false", cmd.Flags().Lookup("copy-empty").DefValue)
	require.Equal(t, "true", cmd.Flags().Lookup("silence-gate").DefValue)
	require.Equal(t, "-65", cmd.Flags().Lookup("silence-threshold-dbfs").DefValue)
	require.NotNil(t, cmd.Flags().Lookup("duration"))
	require.Equal(t, "0s", cmd.Flags().Lookup("duration").DefValue)
	require.NotNil(t, cmd.Flags().Lookup("immediate"))
	require.Equal(t, "false", cmd.Flags().Lookup("immediate").DefValue)
}

func TestRootHelpParsesSuccessfully(t *testing.T) {
	t.Parallel()

	cmd := NewRootCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs([]string{"--help"})

	err := cmd.Execute()
	require.NoError(t, err)
	require.Contains(t, out.String(), "record")
	require.Contains(t, out.String(), "transcribe")
	require.Contains(t, out.String(), "clean")
	require.Contains(t, out.String(), "setup")
	require.Contains(t, out.String(), "devices")
}

func TestSubcommandHelpParsesSuccessfully(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		args     []string
		contains string
	}{
		{name: "record", args: []string{"record", "--help"}, contains: "Record audio into a WAV file"},
		{name: "transcribe", args: []string{"transcribe", "--help"}, contains: "Transcribe an audio file"},
		{name: "clean", args: []string{"clean", "--help"}, contains: "cleaning pipeline"},
		{name: "devices", args: []string{"devices", "--help"}, contains: "List recording devices"},
		{name: "setup", args: []string{"setup", "--help"}, contains: "starter config"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cmd := NewRootCmd()
			out := new(bytes.Buffer)
			cmd.SetOut(out)
			cmd.SetErr(out)
			cmd.SetArgs(tt.args)

			err := cmd.Execute()
			require.NoError(t, err)
			require.Contains(t, out.String(), tt.contains)
		})
	}
}
