package syncactivate

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/joyshmitz/clawbox/internal/clawerr"
)

// activeVMsFile is the read-modify-write, whole-file-replacement registry
// consumed by reconciliation as an optimization hint (lock directories
// remain authoritative on conflict).
type activeVMsFile struct {
	VMs []string `json:"vms"`
}

func registryPath(mutagenStateDir string) string {
	return filepath.Join(mutagenStateDir, "active_vms.json")
}

func readRegistry(mutagenStateDir string) (activeVMsFile, error) {
	data, err := os.ReadFile(registryPath(mutagenStateDir))
	if err != nil {
		if os.IsNotExist(err) {
			return activeVMsFile{}, nil
		}
		return activeVMsFile{}, clawerr.Wrap(clawerr.ParseErr, err, "could not read active-VMs registry")
	}

	var reg activeVMsFile
	if err := json.Unmarshal(data, &reg); err != nil {
		return activeVMsFile{}, clawerr.Wrap(clawerr.ParseErr, err, "could not parse active-VMs registry")
	}
	return reg, nil
}

func writeRegistry(mutagenStateDir string, reg activeVMsFile) error {
	if err := os.MkdirAll(mutagenStateDir, 0755); err != nil {
		return clawerr.Wrap(clawerr.Precondition, err, "could not create %s", mutagenStateDir)
	}

	data, err := json.Marshal(reg)
	if err != nil {
		return clawerr.Wrap(clawerr.Precondition, err, "could not encode active-VMs registry")
	}

	return os.WriteFile(registryPath(mutagenStateDir), data, 0644)
}

func addActiveVM(mutagenStateDir, vm string) error {
	reg, err := readRegistry(mutagenStateDir)
	if err != nil {
		return err
	}

	for _, existing := range reg.VMs {
		if existing == vm {
			return nil
		}
	}
	reg.VMs = append(reg.VMs, vm)

	return writeRegistry(mutagenStateDir, reg)
}

func removeActiveVM(mutagenStateDir, vm string) error {
	reg, err := readRegistry(mutagenStateDir)
	if err != nil {
		return err
	}

	out := reg.VMs[:0]
	for _, existing := range reg.VMs {
		if existing != vm {
			out = append(out, existing)
		}
	}
	reg.VMs = out

	return writeRegistry(mutagenStateDir, reg)
}

func listActiveVMs(mutagenStateDir string) ([]string, error) {
	reg, err := readRegistry(mutagenStateDir)
	if err != nil {
		return nil, err
	}
	return reg.VMs, nil
}
