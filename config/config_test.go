package config

import "testing"

func TestDefaultValidates(t *testing.T) {
	if err := Validate(Default()); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty network", func(c *Config) { c.Network = " " }},
		{"empty data dir", func(c *Config) { c.DataDir = "" }},
		{"bad frontiers confirmation", func(c *Config) { c.FrontiersConfirmation = "sometimes" }},
		{"bad conf height mode", func(c *Config) { c.ConfHeightProcessorMode = "turbo" }},
		{"zero batch write size", func(c *Config) { c.ConfHeightBatchWriteSize = 0 }},
		{"zero batch size", func(c *Config) { c.BlockProcessorBatchSize = 0 }},
		{"zero verification size", func(c *Config) { c.BlockProcessorVerificationSize = 0 }},
		{"zero full size", func(c *Config) { c.BlockProcessorFullSize = 0 }},
		{"zero work multiplier", func(c *Config) { c.MaxWorkGenerateMultiplier = 0 }},
		{"zero vote threshold", func(c *Config) { c.VoteGeneratorThreshold = 0 }},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := Validate(cfg); err == nil {
				t.Fatalf("expected validation failure")
			}
		})
	}
}

func TestLogLevelIsCaseInsensitive(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "DEBUG"
	if err := Validate(cfg); err != nil {
		t.Fatalf("upper-case log level must validate: %v", err)
	}
}
