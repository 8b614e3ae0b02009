package syncache

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// fileOptions is the on-disk TOML shape of Options. Interval is expressed
// in seconds to keep config files free of Go duration syntax.
type fileOptions struct {
	Type                string `toml:"type"`
	SyncOnWrite         bool   `toml:"sync_on_write"`
	SyncOnClose         bool   `toml:"sync_on_close"`
	SyncIntervalSeconds int    `toml:"sync_interval_seconds"`
	SavePath            string `toml:"save_path"`
	Host                string `toml:"host"`
	Port                int    `toml:"port"`
	Database            string `toml:"database"`
	Collection          string `toml:"collection"`
	Username            string `toml:"username"`
	Password            string `toml:"password"`
	Granular            bool   `toml:"granular"`
	Debug               bool   `toml:"debug"`
}

// LoadOptions reads cache options from a TOML file. Unset fields keep the
// zero value and fall back to the usual defaults in New; runtime-only
// fields (Logger, Hooks, Codec, Backend) cannot be configured from a file
// and stay nil.
func LoadOptions(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("syncache: reading config: %w", err)
	}

	var fo fileOptions
	if _, err := toml.Decode(string(data), &fo); err != nil {
		return Options{}, fmt.Errorf("syncache: parsing config: %w", err)
	}

	return Options{
		Type:         fo.Type,
		SyncOnWrite:  fo.SyncOnWrite,
		SyncOnClose:  fo.SyncOnClose,
		SyncInterval: time.Duration(fo.SyncIntervalSeconds) * time.Second,
		SavePath:     fo.SavePath,
		Host:         fo.Host,
		Port:         fo.Port,
		Database:     fo.Database,
		Collection:   fo.Collection,
		Username:     fo.Username,
		Password:     fo.Password,
		Granular:     fo.Granular,
		Debug:        fo.Debug,
	}, nil
}
