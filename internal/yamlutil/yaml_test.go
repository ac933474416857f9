package yamlutil_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/alnah/go-pixelsafe/internal/yamlutil"
)

type sandboxConfig struct {
	Runtime string   `yaml:"runtime"`
	Binds   []string `yaml:"binds"`
	Workers int      `yaml:"workers"`
}

func TestUnmarshalStrict(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		data    []byte
		dest    any
		wantErr error
		check   func(t *testing.T, v any)
	}{
		{
			name: "known fields",
			data: []byte("runtime: podman\nbinds: [/a:/b]\nworkers: 2"),
			dest: &sandboxConfig{},
			check: func(t *testing.T, v any) {
				cfg := v.(*sandboxConfig)
				if cfg.Runtime != "podman" {
					t.Errorf("Runtime = %q, want %q", cfg.Runtime, "podman")
				}
				if len(cfg.Binds) != 1 || cfg.Binds[0] != "/a:/b" {
					t.Errorf("Binds = %v, want [/a:/b]", cfg.Binds)
				}
				if cfg.Workers != 2 {
					t.Errorf("Workers = %d, want 2", cfg.Workers)
				}
			},
		},
		{
			name:    "unknown field",
			data:    []byte("runtime: podman\nnetwork: host"),
			dest:    &sandboxConfig{},
			wantErr: errors.New("yamlutil:"),
		},
		{
			name:    "invalid syntax",
			data:    []byte("runtime: [unclosed"),
			dest:    &sandboxConfig{},
			wantErr: errors.New("yamlutil:"),
		},
		{
			name:    "nil data",
			data:    nil,
			dest:    &sandboxConfig{},
			wantErr: yamlutil.ErrNilData,
		},
		{
			name:    "nil destination",
			data:    []byte("runtime: podman"),
			dest:    nil,
			wantErr: yamlutil.ErrNilDestination,
		},
		{
			name:    "too large",
			data:    []byte("runtime: " + strings.Repeat("a", yamlutil.MaxInputSize)),
			dest:    &sandboxConfig{},
			wantErr: yamlutil.ErrInputTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := yamlutil.UnmarshalStrict(tt.data, tt.dest)
			if tt.wantErr != nil {
				if err == nil {
					t.Fatalf("expected error containing %q, got nil", tt.wantErr)
				}
				if errors.Is(err, tt.wantErr) {
					return
				}
				if !strings.Contains(err.Error(), tt.wantErr.Error()) {
					t.Fatalf("error = %q, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.check != nil {
				tt.check(t, tt.dest)
			}
		})
	}
}

func TestMarshal(t *testing.T) {
	t.Parallel()

	out, err := yamlutil.Marshal(&sandboxConfig{Runtime: "docker", Workers: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(out), "runtime: docker") {
		t.Errorf("output = %q, want runtime: docker", out)
	}

	var back sandboxConfig
	if err := yamlutil.UnmarshalStrict(out, &back); err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if back.Runtime != "docker" || back.Workers != 1 {
		t.Errorf("round trip = %+v", back)
	}
}
