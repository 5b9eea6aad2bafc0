package dynamicconfig

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/strandhq/strand/common/log"
	"github.com/strandhq/strand/common/log/tag"
)

const minPollInterval = time.Second * 5

type (
	// FileBasedClientConfig is the config for the file based dynamic config
	// client. It specifies where the config file lives and how often to check it
	// for updates.
	FileBasedClientConfig struct {
		Filepath     string        `yaml:"filepath"`
		PollInterval time.Duration `yaml:"pollInterval"`
	}

	configValueMap map[string][]ConstrainedValue

	fileBasedClient struct {
		values          atomic.Value // configValueMap
		logger          log.Logger
		config          *FileBasedClientConfig
		lastUpdatedTime time.Time
		doneCh          <-chan interface{}
	}
)

var _ Client = (*fileBasedClient)(nil)

// NewFileBasedClient creates a file based client. The file is re-read on
// PollInterval whenever its modification time advances; a broken file keeps
// the previously loaded values.
func NewFileBasedClient(config *FileBasedClientConfig, logger log.Logger, doneCh <-chan interface{}) (*fileBasedClient, error) {
	client := &fileBasedClient{
		logger: logger,
		config: config,
		doneCh: doneCh,
	}
	if err := client.init(); err != nil {
		return nil, err
	}
	return client, nil
}

func (fc *fileBasedClient) GetValue(key Key) []ConstrainedValue {
	values := fc.values.Load().(configValueMap)
	return values[strings.ToLower(key.String())]
}

func (fc *fileBasedClient) init() error {
	if err := fc.validateConfig(fc.config); err != nil {
		return fmt.Errorf("unable to validate dynamic config: %w", err)
	}

	if err := fc.update(); err != nil {
		return fmt.Errorf("unable to read dynamic config: %w", err)
	}

	go func() {
		ticker := time.NewTicker(fc.config.PollInterval)
		for {
			select {
			case <-ticker.C:
				if err := fc.update(); err != nil {
					fc.logger.Error("Unable to update dynamic config.", tag.Error(err))
				}
			case <-fc.doneCh:
				ticker.Stop()
				return
			}
		}
	}()

	return nil
}

func (fc *fileBasedClient) update() error {
	defer func() {
		fc.lastUpdatedTime = time.Now().UTC()
	}()

	info, err := os.Stat(fc.config.Filepath)
	if err != nil {
		return fmt.Errorf("dynamic config file: %s: %w", fc.config.Filepath, err)
	}
	if !info.ModTime().After(fc.lastUpdatedTime) {
		return nil
	}

	confContent, err := os.ReadFile(fc.config.Filepath)
	if err != nil {
		return fmt.Errorf("dynamic config file: %s: %w", fc.config.Filepath, err)
	}

	var yamlValues map[string][]struct {
		Constraints map[string]string
		Value       interface{}
	}
	if err = yaml.Unmarshal(confContent, &yamlValues); err != nil {
		return fmt.Errorf("unable to decode dynamic config: %w", err)
	}

	newValues := make(configValueMap, len(yamlValues))
	for key, yamlCV := range yamlValues {
		cvs := make([]ConstrainedValue, len(yamlCV))
		for i, cv := range yamlCV {
			cvs[i].Value = cv.Value
			cvs[i].Constraints, err = convertYamlConstraints(cv.Constraints)
			if err != nil {
				return fmt.Errorf("dynamic config key %q: %w", key, err)
			}
		}
		newValues[strings.ToLower(key)] = cvs
	}

	fc.values.Store(newValues)
	fc.logger.Info("Updated dynamic config")
	return nil
}

func (fc *fileBasedClient) validateConfig(config *FileBasedClientConfig) error {
	if config == nil {
		return fmt.Errorf("no config found for file based dynamic config client")
	}
	if _, err := os.Stat(config.Filepath); err != nil {
		return fmt.Errorf("dynamic config: %s: %w", config.Filepath, err)
	}
	if config.PollInterval < minPollInterval {
		return fmt.Errorf("poll interval should be at least %v", minPollInterval)
	}
	return nil
}

func convertYamlConstraints(m map[string]string) (Constraints, error) {
	var cons Constraints
	for k, v := range m {
		switch strings.ToLower(k) {
		case "namespace":
			cons.Namespace = v
		case "taskqueuename":
			cons.TaskQueueName = v
		default:
			return cons, fmt.Errorf("unknown constraint type %q", k)
		}
	}
	return cons, nil
}
