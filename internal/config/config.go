// Package config loads the credentials needed to reach the Earth Data Hub.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// KeyName is the single key recognized in the env file.
const KeyName = "EDH_KEY"

// ErrMissingKey is returned when no data hub key is configured.
var ErrMissingKey = errors.New("missing Earth Data Hub key " + KeyName)

// Config holds the settings read at startup.
type Config struct {
	// HubKey is the Earth Data Hub access key.
	HubKey string
}

// Load reads envFile, if it exists, and the process environment. A key set
// in the environment takes precedence over the file.
func Load(envFile string) (*Config, error) {
	c := &Config{}
	if envFile != "" {
		vals, err := godotenv.Read(envFile)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading %s: %w", envFile, err)
		default:
			c.HubKey = strings.TrimSpace(vals[KeyName])
		}
	}
	if v, ok := os.LookupEnv(KeyName); ok && strings.TrimSpace(v) != "" {
		c.HubKey = strings.TrimSpace(v)
	}
	return c, nil
}

// Validate checks that the required settings are present.
func (c *Config) Validate() error {
	if c.HubKey == "" {
		return ErrMissingKey
	}
	return nil
}

// PromptKey asks for the data hub key on w and reads one line from r.
func PromptKey(r io.Reader, w io.Writer) (string, error) {
	fmt.Fprint(w, "Please enter your key to access the Earth Data Hub service: ")
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	key := strings.TrimSpace(line)
	if key == "" {
		return "", fmt.Errorf("%w: key cannot be empty", ErrMissingKey)
	}
	return key, nil
}
