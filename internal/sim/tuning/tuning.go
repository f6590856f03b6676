package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz int `yaml:"tick_rate_hz"`

	// War timing. Ally grace defaults to the war grace when zero.
	GracePeriodMs     int64 `yaml:"grace_period_ms"`
	AllyGracePeriodMs int64 `yaml:"ally_grace_period_ms"`

	// Rank reconciliation cadence (coarse, seconds).
	ResyncEverySeconds int `yaml:"resync_every_seconds"`

	// Data file names inside the data dir.
	WarsFile    string `yaml:"wars_file"`
	PlayersFile string `yaml:"players_file"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:    "1.0",
		TickRateHz:         20,
		GracePeriodMs:      60 * 60 * 1000,
		AllyGracePeriodMs:  60 * 60 * 1000,
		ResyncEverySeconds: 300,
		WarsFile:           "shinobi_wars.json",
		PlayersFile:        "shinobi_players.json",
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if t.TickRateHz <= 0 {
		t.TickRateHz = Defaults().TickRateHz
	}
	if t.GracePeriodMs <= 0 {
		t.GracePeriodMs = Defaults().GracePeriodMs
	}
	if t.AllyGracePeriodMs <= 0 {
		t.AllyGracePeriodMs = t.GracePeriodMs
	}
	if t.ResyncEverySeconds <= 0 {
		t.ResyncEverySeconds = Defaults().ResyncEverySeconds
	}
	if t.WarsFile == "" {
		t.WarsFile = Defaults().WarsFile
	}
	if t.PlayersFile == "" {
		t.PlayersFile = Defaults().PlayersFile
	}
	return t, nil
}
