package models

import (
	"io/ioutil"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shibukawa/configdir"
)

type Config struct {
	Color       bool
	TraceSys    bool
	TraceRecord string
	Strsize     int
	LoadPrefix  string
	Verbose     bool
}

func (c *Config) Init() *Config {
	if c.Strsize == 0 {
		c.Strsize = 32
	}
	return c
}

// PrefixPath remaps absolute guest paths under LoadPrefix, so a sysroot
// image can be mounted somewhere other than /.
func (c *Config) PrefixPath(path string) string {
	if c.LoadPrefix == "" || !strings.HasPrefix(path, "/") {
		return path
	}
	return filepath.Join(c.LoadPrefix, path)
}

// RCDirs returns the candidate directories for a pengolinrc file.
func RCDirs() []string {
	var dirs []string
	configDirs := configdir.New("keelos", "pengolin")
	for _, config := range configDirs.QueryFolders(configdir.All) {
		dirs = append(dirs, config.Path)
	}
	return dirs
}

// LoadRC applies the first pengolinrc found in dirs to c. The file holds
// key=value lines: trace, color, verbose, strsize, prefix.
func (c *Config) LoadRC(dirs []string) error {
	for _, dir := range dirs {
		data, err := ioutil.ReadFile(filepath.Join(dir, "pengolinrc"))
		if err != nil {
			continue
		}
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			key, val, ok := cut(line, "=")
			if !ok {
				continue
			}
			switch key {
			case "trace":
				c.TraceSys = val == "1" || val == "true"
			case "color":
				c.Color = val == "1" || val == "true"
			case "verbose":
				c.Verbose = val == "1" || val == "true"
			case "strsize":
				if n, err := strconv.Atoi(val); err == nil {
					c.Strsize = n
				}
			case "prefix":
				c.LoadPrefix = val
			}
		}
		return nil
	}
	return nil
}

func cut(s, sep string) (string, string, bool) {
	i := strings.Index(s, sep)
	if i < 0 {
		return s, "", false
	}
	return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+len(sep):]), true
}
