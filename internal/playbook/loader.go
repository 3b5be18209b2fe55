package playbook

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/praetorlabs/praetor/internal/logger"
	"github.com/praetorlabs/praetor/internal/model"
)

// bootstrapFile is the YAML shape of one playbook definition file.
type bootstrapFile struct {
	Playbooks []model.Playbook `yaml:"playbooks"`
}

// Bootstrap loads playbook definitions from every .yaml/.yml file in dir
// and creates the ones not already present (matched by org and name), so
// restarts do not duplicate them. It returns the number created.
func Bootstrap(dir string, store *Store, log logger.Logger) (int, error) {
	if log == nil {
		log = logger.GetDefault()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read playbook dir %s: %w", dir, err)
	}

	existing := make(map[string]bool)
	created := 0

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			return created, fmt.Errorf("failed to read %s: %w", path, err)
		}

		// Strict decode: a typo'd trigger key must fail the bootstrap, not
		// silently widen the playbook's match.
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)

		var file bootstrapFile
		if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
			return created, fmt.Errorf("failed to parse %s: %w", path, err)
		}

		for _, playbook := range file.Playbooks {
			if err := model.ValidateOrg(playbook.Org); err != nil {
				return created, fmt.Errorf("%s: playbook %q: %w", path, playbook.Name, err)
			}
			if err := playbook.Validate(); err != nil {
				return created, fmt.Errorf("%s: invalid playbook %q: %w", path, playbook.Name, err)
			}

			if !existing[playbook.Org] {
				current, err := store.List(playbook.Org, false)
				if err != nil {
					return created, err
				}
				for _, p := range current {
					existing[playbook.Org+"\x00"+p.Name] = true
				}
				existing[playbook.Org] = true
			}
			if existing[playbook.Org+"\x00"+playbook.Name] {
				log.Debug("Skipping already-bootstrapped playbook",
					logger.String("org", playbook.Org),
					logger.String("name", playbook.Name))
				continue
			}

			if _, err := store.Create(playbook); err != nil {
				return created, fmt.Errorf("%s: failed to create playbook %q: %w", path, playbook.Name, err)
			}
			existing[playbook.Org+"\x00"+playbook.Name] = true
			created++
		}
	}

	log.Info("Playbook bootstrap finished",
		logger.String("dir", dir),
		logger.Int("created", created))
	return created, nil
}
