package watchlist

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Config selects where the watchlist comes from. Notion wins when both the
// token and database ID are set; otherwise the YAML file is used.
type Config struct {
	NotionToken string `yaml:"notion_token" mapstructure:"notion_token"`
	NotionDB    string `yaml:"notion_db" mapstructure:"notion_db"`
	File        string `yaml:"file" mapstructure:"file"`
}

type fileDoc struct {
	Topics []Topic `yaml:"topics"`
}

// LoadFile reads topics from a YAML file.
func LoadFile(path string) (*Watchlist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "watchlist: read %s", path)
	}

	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrapf(err, "watchlist: parse %s", path)
	}

	return New(doc.Topics), nil
}

// Load resolves the watchlist from config. Notion failures and a missing
// file degrade to whatever else is available: an unreachable registry must
// not stop a scan, it only dulls the keyword detector.
func Load(ctx context.Context, cfg Config) (*Watchlist, error) {
	if cfg.NotionToken != "" && cfg.NotionDB != "" {
		w, err := LoadNotion(ctx, NewNotionClient(cfg.NotionToken), cfg.NotionDB)
		if err == nil {
			zap.L().Info("watchlist: loaded from notion", zap.Int("topics", w.Len()))
			return w, nil
		}
		zap.L().Warn("watchlist: notion load failed, falling back to file", zap.Error(err))
	}

	if cfg.File == "" {
		return New(nil), nil
	}
	if _, err := os.Stat(cfg.File); os.IsNotExist(err) {
		zap.L().Warn("watchlist: file not found, starting empty", zap.String("path", cfg.File))
		return New(nil), nil
	}

	w, err := LoadFile(cfg.File)
	if err != nil {
		return nil, err
	}
	zap.L().Info("watchlist: loaded from file", zap.String("path", cfg.File), zap.Int("topics", w.Len()))
	return w, nil
}
