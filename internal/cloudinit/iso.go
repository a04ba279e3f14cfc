package cloudinit

import (
	"bytes"
	"fmt"
	"os"

	"github.com/kdomanski/iso9660"
)

// VolumeID is the label the NoCloud datasource looks for.
const VolumeID = "CIDATA"

// GenerateISO builds a NoCloud seed ISO containing user-data, meta-data and
// network-config in its root directory.
func GenerateISO(cfg *SeedConfig) ([]byte, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	userData, err := GenerateUserData(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to generate user-data: %w", err)
	}

	metaData, err := GenerateMetaData(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to generate meta-data: %w", err)
	}

	networkConfig, err := GenerateNetworkConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to generate network-config: %w", err)
	}

	writer, err := iso9660.NewWriter()
	if err != nil {
		return nil, fmt.Errorf("failed to create ISO writer: %w", err)
	}
	defer func() {
		_ = writer.Cleanup()
	}()

	files := []struct {
		name    string
		content string
	}{
		{"user-data", userData},
		{"meta-data", metaData},
		{"network-config", networkConfig},
	}
	for _, f := range files {
		if err := writer.AddFile(bytes.NewReader([]byte(f.content)), f.name); err != nil {
			return nil, fmt.Errorf("failed to add %s: %w", f.name, err)
		}
	}

	var buf bytes.Buffer
	if err := writer.WriteTo(&buf, VolumeID); err != nil {
		return nil, fmt.Errorf("failed to write ISO image: %w", err)
	}

	return buf.Bytes(), nil
}

// WriteISO generates the seed ISO and writes it to path.
func WriteISO(path string, cfg *SeedConfig) error {
	data, err := GenerateISO(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write seed ISO %s: %w", path, err)
	}
	return nil
}
