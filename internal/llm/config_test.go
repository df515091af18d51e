package llm

import "testing"

func TestGetModel(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
		tier   ModelTier
		want   string
	}{
		{
			name:   "configured tier",
			config: DefaultGeminiConfig(),
			tier:   TierAdvanced,
			want:   "gemini-2.5-pro",
		},
		{
			name:   "image tier",
			config: DefaultGeminiConfig(),
			tier:   TierImage,
			want:   "gemini-3-pro-image-preview",
		},
		{
			name: "missing tier falls back to standard",
			config: &Config{
				Provider: ProviderGemini,
				Models:   map[ModelTier]string{TierStandard: "gemini-2.5-flash"},
			},
			tier: TierAdvanced,
			want: "gemini-2.5-flash",
		},
		{
			name: "missing standard falls back to lite",
			config: &Config{
				Provider: ProviderGemini,
				Models:   map[ModelTier]string{TierLite: "gemini-2.5-flash-lite"},
			},
			tier: TierAdvanced,
			want: "gemini-2.5-flash-lite",
		},
		{
			name: "image tier never falls back to text models",
			config: &Config{
				Provider: ProviderGemini,
				Models:   map[ModelTier]string{TierStandard: "gemini-2.5-flash"},
			},
			tier: TierImage,
			want: "",
		},
		{
			name:   "empty config",
			config: &Config{Provider: ProviderGemini, Models: map[ModelTier]string{}},
			tier:   TierStandard,
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.config.GetModel(tt.tier)
			if got != tt.want {
				t.Errorf("GetModel(%s) = %q, want %q", tt.tier, got, tt.want)
			}
		})
	}
}

func TestWithModel(t *testing.T) {
	base := DefaultGeminiConfig()
	custom := base.WithModel(TierAdvanced, "gemini-custom")

	if custom.GetModel(TierAdvanced) != "gemini-custom" {
		t.Errorf("WithModel did not override tier: got %q", custom.GetModel(TierAdvanced))
	}
	if base.GetModel(TierAdvanced) != "gemini-2.5-pro" {
		t.Errorf("WithModel mutated the original config: got %q", base.GetModel(TierAdvanced))
	}
	if custom.GetModel(TierLite) != base.GetModel(TierLite) {
		t.Errorf("WithModel dropped unrelated tiers")
	}
}
