package profile

import "github.com/matheus3301/chatline/internal/config"

const DefaultName = "main"

// Resolve determines the active profile name using precedence:
// 1. flagOverride (--profile flag)
// 2. config.toml default_profile
// 3. "main"
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	cfg, err := config.Load(ConfigPath())
	if err == nil && cfg.DefaultProfile != "" {
		return cfg.DefaultProfile
	}
	return DefaultName
}

// LoadConfig reads the global config, falling back to defaults when the file
// is absent, then applies the profile dotenv file and process environment.
func LoadConfig(name string) *config.Config {
	cfg, err := config.Load(ConfigPath())
	if err != nil {
		cfg = config.Default()
	}
	cfg.ApplyEnv(EnvPath(name), ".env")
	return cfg
}
