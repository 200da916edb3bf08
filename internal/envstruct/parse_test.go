package envstruct_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/myrjola/planfit/internal/envstruct"
)

func env(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestPopulate(t *testing.T) {
	type config struct {
		Addr     string        `env:"ADDR" envDefault:"localhost:8081"`
		Debug    bool          `env:"DEBUG" envDefault:"false"`
		Workers  int           `env:"WORKERS" envDefault:"4"`
		Lifetime time.Duration `env:"LIFETIME" envDefault:"12h"`
		Other    string
	}

	tests := []struct {
		name      string
		v         any
		lookupEnv func(string) (string, bool)
		want      any
		wantErr   error
	}{
		{
			name:      "nil",
			v:         nil,
			lookupEnv: env(nil),
			want:      nil,
			wantErr:   envstruct.ErrInvalidValue,
		},
		{
			name:      "not pointer",
			v:         struct{}{},
			lookupEnv: env(nil),
			want:      nil,
			wantErr:   envstruct.ErrInvalidValue,
		},
		{
			name:      "empty struct",
			v:         &struct{}{},
			lookupEnv: env(nil),
			want:      &struct{}{},
			wantErr:   nil,
		},
		{
			name: "required env missing",
			v: &struct { //nolint:exhaustruct // populated later
				EnvVar string `env:"ENV_VAR"`
			}{},
			lookupEnv: env(nil),
			want:      nil,
			wantErr:   envstruct.ErrEnvNotSet,
		},
		{
			name: "picks correct env variable",
			v: &struct { //nolint:exhaustruct // populated later
				EnvVar     string `env:"ENV_VAR"`
				EnvVar2    string `env:"ENV_VAR2"`
				OtherValue string
			}{},
			lookupEnv: func(s string) (string, bool) { return strings.ToLower(s), true },
			want: &struct {
				EnvVar     string `env:"ENV_VAR"`
				EnvVar2    string `env:"ENV_VAR2"`
				OtherValue string
			}{EnvVar: "env_var", EnvVar2: "env_var2", OtherValue: ""},
			wantErr: nil,
		},
		{
			name:      "defaults",
			v:         &config{}, //nolint:exhaustruct // populated later
			lookupEnv: env(nil),
			want: &config{
				Addr:     "localhost:8081",
				Debug:    false,
				Workers:  4,
				Lifetime: 12 * time.Hour,
				Other:    "",
			},
			wantErr: nil,
		},
		{
			name: "typed values",
			v:    &config{}, //nolint:exhaustruct // populated later
			lookupEnv: env(map[string]string{
				"ADDR":     "localhost:0",
				"DEBUG":    "true",
				"WORKERS":  "8",
				"LIFETIME": "90m",
			}),
			want: &config{
				Addr:     "localhost:0",
				Debug:    true,
				Workers:  8,
				Lifetime: 90 * time.Minute,
				Other:    "",
			},
			wantErr: nil,
		},
		{
			name:      "unparseable values",
			v:         &config{}, //nolint:exhaustruct // populated later
			lookupEnv: env(map[string]string{"WORKERS": "many", "LIFETIME": "forever"}),
			want:      nil,
			wantErr:   envstruct.ErrParse,
		},
		{
			name: "unsupported type",
			v: &struct { //nolint:exhaustruct // populated later
				Ratio float64 `env:"RATIO"`
			}{},
			lookupEnv: env(map[string]string{"RATIO": "0.5"}),
			want:      nil,
			wantErr:   envstruct.ErrInvalidValue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := envstruct.Populate(tt.v, tt.lookupEnv)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Populate() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Populate() unexpected error = %v", err)
			}
			if diff := cmp.Diff(tt.want, tt.v); diff != "" {
				t.Errorf("Populate() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
