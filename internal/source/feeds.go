package source

import (
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/market-scanner/internal/fetch"
	"github.com/sells-group/market-scanner/internal/pipeline"
)

// feedsDoc is the feeds.yaml layout.
type feedsDoc struct {
	Feeds []fetch.Spec `yaml:"feeds"`
}

// LoadSpecs reads feed specs from a YAML file. A missing file is an empty
// feed list, not an error: reference feeds are optional enrichment and a
// fresh deployment starts without them.
func LoadSpecs(path string) ([]fetch.Spec, error) {
	if path == "" {
		return nil, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			zap.L().Info("source: no feeds file, skipping reference feeds", zap.String("path", path))
			return nil, nil
		}
		return nil, eris.Wrapf(err, "source: read feeds file %s", path)
	}

	var doc feedsDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, eris.Wrapf(err, "source: parse feeds file %s", path)
	}

	for _, spec := range doc.Feeds {
		if err := spec.Validate(); err != nil {
			return nil, err
		}
	}
	return doc.Feeds, nil
}

// RegisterFeeds registers every spec as a pipeline source over the shared
// feed client.
func RegisterFeeds(reg *pipeline.Registry, client *fetch.Client, specs []fetch.Spec) {
	for _, spec := range specs {
		reg.RegisterSource(spec.Source(client))
		zap.L().Info("source: registered feed",
			zap.String("name", spec.Name),
			zap.String("format", spec.Format),
		)
	}
}
