package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"
)

// ConfigFileName is the default project config file name.
const ConfigFileName = ".princepp.jsonc"

// FileConfig holds the subset of princepp's settings that can come from a
// JSONC config file. Every field is optional; zero values mean "not set"
// and leave the CLI default or an earlier-precedence value untouched.
type FileConfig struct {
	PwMin      *int    `json:"pw_min,omitempty"`
	PwMax      *int    `json:"pw_max,omitempty"`
	ElemCntMin *int    `json:"elem_cnt_min,omitempty"`
	ElemCntMax *int    `json:"elem_cnt_max,omitempty"`
	WlDistLen  *bool   `json:"wl_dist_len,omitempty"`
	OutputFile *string `json:"output_file,omitempty"`
	StatsCache *string `json:"stats_cache,omitempty"`
	StatsFile  *string `json:"stats_file,omitempty"`
}

// getGlobalConfigPath returns the path to the global user config file.
// Uses $XDG_CONFIG_HOME/princepp/config.jsonc if set, otherwise
// ~/.config/princepp/config.jsonc. Returns "" if neither can be determined.
func getGlobalConfigPath(env map[string]string) string {
	if xdgConfig := env["XDG_CONFIG_HOME"]; xdgConfig != "" {
		return filepath.Join(xdgConfig, "princepp", "config.jsonc")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "princepp", "config.jsonc")
	}

	return ""
}

// LoadConfigInput holds the inputs for LoadConfig.
type LoadConfigInput struct {
	WorkDir    string            // directory the project config file is resolved against
	ConfigPath string            // --config flag value; empty means "use default locations"
	Env        map[string]string // environment variables
}

// LoadConfig loads FileConfig with the following precedence (highest wins):
//  1. Defaults (zero value — caller applies its own CLI defaults on top)
//  2. Global user config (~/.config/princepp/config.jsonc)
//  3. Explicit config file via ConfigPath if non-empty (it must exist);
//     otherwise the project config file at the default location
//     (.princepp.jsonc, if it exists). The project file is not read when
//     ConfigPath is set.
//
// CLI flag values are applied by the caller afterward, so flags always win.
func LoadConfig(input LoadConfigInput) (FileConfig, error) {
	var cfg FileConfig

	globalPath := getGlobalConfigPath(input.Env)
	if globalPath != "" {
		globalCfg, loaded, err := loadConfigFile(globalPath, false)
		if err != nil {
			return FileConfig{}, err
		}

		if loaded {
			cfg = mergeConfig(cfg, globalCfg)
		}
	}

	var (
		projectPath string
		mustExist   bool
	)

	if input.ConfigPath != "" {
		projectPath = input.ConfigPath
		if !filepath.IsAbs(projectPath) {
			projectPath = filepath.Join(input.WorkDir, projectPath)
		}

		mustExist = true
	} else {
		projectPath = filepath.Join(input.WorkDir, ConfigFileName)
		mustExist = false
	}

	projectCfg, loaded, err := loadConfigFile(projectPath, mustExist)
	if err != nil {
		return FileConfig{}, err
	}

	if loaded {
		cfg = mergeConfig(cfg, projectCfg)
	}

	return cfg, nil
}

// loadConfigFile loads a single JSONC config file. If mustExist is false,
// a missing file is not an error and returns loaded=false.
func loadConfigFile(path string, mustExist bool) (FileConfig, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return FileConfig{}, false, nil
		}

		if mustExist {
			return FileConfig{}, false, fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
		}

		return FileConfig{}, false, fmt.Errorf("%w: %s: %w", ErrConfigFileRead, path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return FileConfig{}, false, fmt.Errorf("%w %s: invalid JSONC: %w", ErrConfigInvalid, path, err)
	}

	var cfg FileConfig
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return FileConfig{}, false, fmt.Errorf("%w %s: invalid JSON: %w", ErrConfigInvalid, path, err)
	}

	return cfg, true, nil
}

// mergeConfig overlays every field overlay sets onto base, leaving base's
// value in place for fields overlay leaves unset.
func mergeConfig(base, overlay FileConfig) FileConfig {
	if overlay.PwMin != nil {
		base.PwMin = overlay.PwMin
	}

	if overlay.PwMax != nil {
		base.PwMax = overlay.PwMax
	}

	if overlay.ElemCntMin != nil {
		base.ElemCntMin = overlay.ElemCntMin
	}

	if overlay.ElemCntMax != nil {
		base.ElemCntMax = overlay.ElemCntMax
	}

	if overlay.WlDistLen != nil {
		base.WlDistLen = overlay.WlDistLen
	}

	if overlay.OutputFile != nil {
		base.OutputFile = overlay.OutputFile
	}

	if overlay.StatsCache != nil {
		base.StatsCache = overlay.StatsCache
	}

	if overlay.StatsFile != nil {
		base.StatsFile = overlay.StatsFile
	}

	return base
}

// DefaultFileConfigJSON is written by `--init-config`. It documents every
// recognized field with its built-in default, commented out so the file
// is a no-op until the user edits it.
const DefaultFileConfigJSON = `{
  // "pw_min": 1,
  // "pw_max": 16,
  // "elem_cnt_min": 1,
  // "elem_cnt_max": 8,
  // "wl_dist_len": false,
  // "output_file": "",
  // "stats_cache": "",
  // "stats_file": ""
}
`
