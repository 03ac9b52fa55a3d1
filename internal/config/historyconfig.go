package config

// HistoryConfig configures the sqlite-backed execution history store.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}
