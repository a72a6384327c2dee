package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tidwall/jsonc"

	"github.com/stlalpha/rgl/internal/logging"
)

// Duration is a time.Duration that reads and writes Go duration strings
// ("2s", "720h") in JSON.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"2s\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// GameConfig defines a single launchable, recorded program.
type GameConfig struct {
	Name             string            `json:"name"`                            // Display name
	Command          string            `json:"command"`                         // Executable path or name on $PATH
	Args             []string          `json:"args"`                            // Arguments; {user} and {userdir} are expanded
	WorkingDirectory string            `json:"working_directory,omitempty"`     // Defaults to the user's private directory
	EnvironmentVars  map[string]string `json:"environment_variables,omitempty"` // Extra environment, placeholders expanded
}

// EditorConfig describes the restricted editor used by EditFile.
type EditorConfig struct {
	Command string `json:"command"`
	Arg0    string `json:"arg0,omitempty"` // argv[0] override, e.g. rnano
}

// UserStoreConfig selects the user directory backend.
type UserStoreConfig struct {
	Type string `json:"type"` // "json" or "sqlite"
	Path string `json:"path"`
}

// MaintenanceConfig drives the rglmaint cron jobs.
type MaintenanceConfig struct {
	CompressSchedule string   `json:"compress_schedule"` // Cron syntax with seconds
	PruneSchedule    string   `json:"prune_schedule"`
	SweepSchedule    string   `json:"sweep_schedule"`
	Retention        Duration `json:"retention"`
	MaxConcurrent    int      `json:"max_concurrent"`
	HistoryFile      string   `json:"history_file"`
}

// ServerConfig is the root gateway configuration (rgl.jsonc).
type ServerConfig struct {
	Banner        string                `json:"banner"`
	MenusFile     string                `json:"menus_file"`
	StartMenu     string                `json:"start_menu"`
	PostLoginMenu string                `json:"post_login_menu"`
	UserdataRoot  string                `json:"userdata_root"`
	RecordingsDir string                `json:"recordings_dir"`
	LiveDir       string                `json:"live_dir"`
	LogFile       string                `json:"log_file"`
	LogLevel      string                `json:"log_level"`
	FlashDelay    Duration              `json:"flash_delay"`
	MaxFrame      int                   `json:"max_frame"`
	Editor        EditorConfig          `json:"editor"`
	UserStore     UserStoreConfig       `json:"user_store"`
	Games         map[string]GameConfig `json:"games"`
	Maintenance   MaintenanceConfig     `json:"maintenance"`
}

// DefaultServerConfig returns the settings used when no config file exists.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Banner:        " ## ascension.run - public NetHack server",
		MenusFile:     "rgldir/menus.jsonc",
		StartMenu:     "mainmenu_anon",
		PostLoginMenu: "mainmenu_user",
		UserdataRoot:  "rgldir/userdata",
		RecordingsDir: "rgldir/ttyrec",
		LiveDir:       "rgldir/live",
		LogFile:       "rgldir/logs/rgl.log",
		LogLevel:      "info",
		FlashDelay:    Duration(2 * time.Second),
		MaxFrame:      64 * 1024,
		Editor:        EditorConfig{Command: "nano", Arg0: "rnano"},
		UserStore:     UserStoreConfig{Type: "json", Path: "rgldir/users.json"},
		Games: map[string]GameConfig{
			"nethack": {
				Name:    "NetHack 3.4.3",
				Command: "nethack",
				Args:    []string{"-u", "{user}"},
				EnvironmentVars: map[string]string{
					"NETHACKOPTIONS": "{userdir}/nethack/nethackrc",
				},
			},
		},
		Maintenance: MaintenanceConfig{
			CompressSchedule: "0 */10 * * * *",
			PruneSchedule:    "0 0 4 * * *",
			SweepSchedule:    "*/30 * * * * *",
			Retention:        Duration(30 * 24 * time.Hour),
			MaxConcurrent:    2,
			HistoryFile:      "rgldir/logs/maint_history.json",
		},
	}
}

// LoadServerConfig loads the gateway configuration from a JSONC file,
// layering the file's values over DefaultServerConfig.
func LoadServerConfig(filePath string) (ServerConfig, error) {
	logging.Debug("Loading server configuration from %s", filePath)

	defaultConfig := DefaultServerConfig()

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Warn("%s not found. Using default settings.", filePath)
			return defaultConfig, nil
		}
		return defaultConfig, fmt.Errorf("failed to read config file %s: %w", filePath, err)
	}

	config := defaultConfig
	// Games replace the default set wholesale rather than merging into it.
	config.Games = nil
	if err := json.Unmarshal(jsonc.ToJSON(data), &config); err != nil {
		return defaultConfig, fmt.Errorf("failed to parse config JSON from %s: %w", filePath, err)
	}
	if config.Games == nil {
		config.Games = defaultConfig.Games
	}

	for id, game := range config.Games {
		if strings.TrimSpace(game.Command) == "" {
			return defaultConfig, fmt.Errorf("game %q in %s has no command", id, filePath)
		}
	}
	if config.MaxFrame <= 0 {
		return defaultConfig, fmt.Errorf("max_frame in %s must be positive, got %d", filePath, config.MaxFrame)
	}
	switch config.UserStore.Type {
	case "json", "sqlite":
	default:
		return defaultConfig, fmt.Errorf("unknown user_store type %q in %s", config.UserStore.Type, filePath)
	}

	logging.Debug("Successfully loaded server configuration from %s", filePath)
	return config, nil
}
