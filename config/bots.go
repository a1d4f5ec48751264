package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// BotDefinition describes one bot worker in the fleet file. Fields left at
// their zero value fall back to the daemon-level defaults in Config.
type BotDefinition struct {
	UserID            string   `yaml:"user_id"`
	StrategyID        string   `yaml:"strategy_id"`
	ActiveStrategyID  string   `yaml:"active_strategy_id"`
	APIKey            string   `yaml:"api_key"`
	APISecret         string   `yaml:"api_secret"`
	Pairs             []string `yaml:"pairs"`
	MaxPositionSize   float64  `yaml:"max_position_size"`
	StopLossPercent   float64  `yaml:"stop_loss_percent"`
	TakeProfitPercent float64  `yaml:"take_profit_percent"`
}

// botsFile is the top-level shape of the fleet YAML document.
type botsFile struct {
	Bots []BotDefinition `yaml:"bots"`
}

// LoadBots reads the fleet definitions from a YAML file. Structural problems
// (unreadable file, malformed YAML, empty fleet) are reported here; semantic
// validation of each definition happens when the bot is created.
func LoadBots(path string) ([]BotDefinition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bots file '%s': %w", path, err)
	}
	defer f.Close()

	var file botsFile
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse bots file '%s': %w", path, err)
	}
	if len(file.Bots) == 0 {
		return nil, fmt.Errorf("bots file '%s' defines no bots", path)
	}
	return file.Bots, nil
}
