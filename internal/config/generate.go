package config

import (
	"fmt"

	"github.com/Mainfreight/integration-jira-cloud/internal/fileutils"
	"github.com/ubuntu/decorate"
	"gopkg.in/yaml.v3"
)

// Generate writes the fully resolved configuration to path, with screen
// creation disabled so subsequent runs reuse the baked-in Jira identifiers.
//
// The written file must be regenerated whenever the integration is upgraded.
func (c Config) Generate(path string) (err error) {
	defer decorate.OnError(&err, "could not generate config file %s", path)

	c.Screen.NoCreate = true

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("could not encode configuration: %v", err)
	}

	return fileutils.AtomicWrite(path, data)
}
