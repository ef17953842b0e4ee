package syncactivate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joyshmitz/clawbox/internal/clawerr"
)

const aliasFileName = "clawbox_mutagen_config"

func beginMarker(vm string) string { return fmt.Sprintf("# CLAWBOX MUTAGEN BEGIN %s", vm) }
func endMarker(vm string) string   { return fmt.Sprintf("# CLAWBOX MUTAGEN END %s", vm) }

func aliasFilePath(homeDir string) string {
	return filepath.Join(homeDir, ".ssh", aliasFileName)
}

// writeAliasBlock idempotently replaces the Host block for vm in the SSH
// alias file and ensures ~/.ssh/config includes it.
func writeAliasBlock(homeDir, vm, ip, user, identityFile string) error {
	path := aliasFilePath(homeDir)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return clawerr.Wrap(clawerr.Precondition, err, "could not create %s", filepath.Dir(path))
	}

	existing, _ := os.ReadFile(path)

	block := strings.Join([]string{
		beginMarker(vm),
		fmt.Sprintf("Host %s", aliasHost(vm)),
		fmt.Sprintf("    HostName %s", ip),
		fmt.Sprintf("    User %s", user),
		fmt.Sprintf("    IdentityFile %s", identityFile),
		"    StrictHostKeyChecking no",
		"    UserKnownHostsFile /dev/null",
		endMarker(vm),
	}, "\n")

	body := removeBlock(string(existing), vm)
	if body != "" && !strings.HasSuffix(body, "\n") {
		body += "\n"
	}
	body += block + "\n"

	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		return clawerr.Wrap(clawerr.Precondition, err, "could not write %s", path)
	}

	return ensureInclude(homeDir, path)
}

// removeAliasBlock removes vm's Host block, leaving the rest of the file
// intact. A missing file or block is not an error.
func removeAliasBlock(homeDir, vm string) error {
	path := aliasFilePath(homeDir)
	existing, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return clawerr.Wrap(clawerr.Precondition, err, "could not read %s", path)
	}

	body := removeBlock(string(existing), vm)
	return os.WriteFile(path, []byte(body), 0600)
}

func removeBlock(contents, vm string) string {
	begin := beginMarker(vm)
	end := endMarker(vm)

	startIdx := strings.Index(contents, begin)
	if startIdx < 0 {
		return contents
	}
	endIdx := strings.Index(contents, end)
	if endIdx < 0 {
		return contents
	}
	endIdx += len(end)
	if endIdx < len(contents) && contents[endIdx] == '\n' {
		endIdx++
	}

	return contents[:startIdx] + contents[endIdx:]
}

// ensureInclude makes sure ~/.ssh/config contains a single Include line
// pointing at the managed alias file.
func ensureInclude(homeDir, aliasPath string) error {
	configPath := filepath.Join(homeDir, ".ssh", "config")
	includeLine := fmt.Sprintf("Include %s", aliasPath)

	existing, err := os.ReadFile(configPath)
	if err != nil && !os.IsNotExist(err) {
		return clawerr.Wrap(clawerr.Precondition, err, "could not read %s", configPath)
	}

	for _, line := range strings.Split(string(existing), "\n") {
		if strings.TrimSpace(line) == includeLine {
			return nil
		}
	}

	content := includeLine + "\n" + string(existing)
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		return clawerr.Wrap(clawerr.Precondition, err, "could not write %s", configPath)
	}
	return nil
}
