package s3

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/ini.v1"
)

// AvailableProfiles returns the AWS profile names configured on this host.
//
// Profiles are collected from ~/.aws/credentials and ~/.aws/config. In the
// config file, AWS prefixes section names with "profile "; that prefix is
// stripped. "default" is always included so a host without config files
// still offers a choice.
//
// Returns:
//   - []string: Sorted profile names
//   - error: Parse error in an existing config file
func AvailableProfiles() ([]string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve home directory: %w", err)
	}

	return profilesFromFiles(
		filepath.Join(home, ".aws", "credentials"),
		filepath.Join(home, ".aws", "config"),
	)
}

// profilesFromFiles merges profile names from the two AWS config files.
// Missing files are skipped; malformed files are errors.
func profilesFromFiles(credentialsPath, configPath string) ([]string, error) {
	profiles := map[string]struct{}{
		"default": {},
	}

	sections, err := iniSections(credentialsPath)
	if err != nil {
		return nil, err
	}
	for _, section := range sections {
		profiles[section] = struct{}{}
	}

	sections, err = iniSections(configPath)
	if err != nil {
		return nil, err
	}
	for _, section := range sections {
		// The config file uses "profile name" sections
		profiles[strings.TrimPrefix(section, "profile ")] = struct{}{}
	}

	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)

	return names, nil
}

// iniSections lists the section names of an INI file, or nil when the file
// does not exist.
func iniSections(path string) ([]string, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}

	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	var sections []string
	for _, name := range file.SectionStrings() {
		if name == ini.DefaultSection {
			continue
		}
		sections = append(sections, name)
	}

	return sections, nil
}
