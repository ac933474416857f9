package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCompletion_SupportedShells(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		shell        Shell
		wantContains []string
	}{
		{
			name:  "bash",
			shell: ShellBash,
			wantContains: []string{
				"_pixelsafe_completions",
				"complete -F _pixelsafe_completions pixelsafe",
				"convert install doctor config version help completion",
				"--ocr-lang",
				"--backend|-b)",
				"container bwrap dummy",
				"--image-archive",
			},
		},
		{
			name:  "zsh",
			shell: ShellZsh,
			wantContains: []string{
				"#compdef pixelsafe",
				"_describe 'command' commands",
				"_arguments",
				"'--backend[isolation backend\\: container, bwrap, dummy]:value:(container bwrap dummy)'",
				"'--output[output file (single input) or directory]:directory:_files -/'",
			},
		},
		{
			name:  "fish",
			shell: ShellFish,
			wantContains: []string{
				"__fish_pixelsafe_needs_command",
				"complete -c pixelsafe -n '__fish_pixelsafe_using_command convert' -l ocr-lang -x",
				"-l config -s c -r -F",
				"-l json",
			},
		},
		{
			name:  "powershell",
			shell: ShellPowerShell,
			wantContains: []string{
				"Register-ArgumentCompleter -Native -CommandName pixelsafe",
				"'doctor' = @(",
				"'--json'",
				"CompletionResult",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			require.NoError(t, GenerateCompletion(&buf, tt.shell))
			for _, want := range tt.wantContains {
				assert.Contains(t, buf.String(), want)
			}
		})
	}
}

func TestGenerateCompletion_UnsupportedShell(t *testing.T) {
	t.Parallel()

	err := GenerateCompletion(&bytes.Buffer{}, "tcsh")
	assert.ErrorIs(t, err, ErrUnsupportedShell)
}

func TestGetCommands_FlagsFollowFlagSets(t *testing.T) {
	t.Parallel()

	byName := map[string]commandDef{}
	for _, c := range getCommands() {
		byName[c.Name] = c
	}

	convert := byName["convert"]
	assert.True(t, convert.TakesFiles)

	flags := map[string]flagDef{}
	for _, f := range convert.Flags {
		flags[f.Long] = f
	}
	assert.Equal(t, flagEnum, flags["backend"].Type)
	assert.Equal(t, "b", flags["backend"].Short)
	assert.Equal(t, flagDir, flags["output"].Type)
	assert.Equal(t, flagFile, flags["config"].Type)
	assert.Equal(t, flagInt, flags["workers"].Type)
	assert.Equal(t, flagBool, flags["archive"].Type)
	assert.Equal(t, flagString, flags["ocr-lang"].Type)

	install := map[string]flagDef{}
	for _, f := range byName["install"].Flags {
		install[f.Long] = f
	}
	assert.Equal(t, flagFile, install["image-archive"].Type)
}

func TestRunCompletion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		args       []string
		wantCode   int
		wantStdout string
	}{
		{"usage without shell", []string{"pixelsafe", "completion"}, ExitSuccess, "Supported shells:"},
		{"bash", []string{"pixelsafe", "completion", "bash"}, ExitSuccess, "complete -F"},
		{"unsupported shell", []string{"pixelsafe", "completion", "tcsh"}, ExitUsage, ""},
		{"extra args", []string{"pixelsafe", "completion", "bash", "zsh"}, ExitUsage, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env, stdout, _ := testEnv(t, &stubProvider{}, nil)
			code := runMain(context.Background(), tt.args, env)
			assert.Equal(t, tt.wantCode, code)
			assert.Contains(t, stdout.String(), tt.wantStdout)
		})
	}
}
