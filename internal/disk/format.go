package disk

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// Format is a disk image file format.
type Format string

// Image formats produced by the hypervisor plugins.
const (
	FormatRaw   Format = "raw"
	FormatQCOW2 Format = "qcow2"
	FormatVMDK  Format = "vmdk"
)

// Magic bytes for disk image format detection
var (
	// qcow2Magic is "QFI" followed by 0xfb at offset 0.
	// Reference: https://www.qemu.org/docs/master/interop/qcow2.html
	qcow2Magic = []byte{0x51, 0x46, 0x49, 0xfb}

	// vmdkMagic is "KDMV" at offset 0 of a hosted sparse extent.
	vmdkMagic = []byte{0x4b, 0x44, 0x4d, 0x56}

	// mbrSignature is the boot sector signature 0x55 0xaa at offset 510.
	// GPT disks carry it too in their protective MBR.
	mbrSignature = []byte{0x55, 0xaa}
)

// DetectImageFormat detects the format of the image at filePath by its
// magic bytes. Raw images are only recognized if they carry a partition
// table, which every image built here does.
func DetectImageFormat(filePath string) (Format, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	magic := make([]byte, 4)
	if _, err := io.ReadFull(f, magic); err != nil {
		return "", fmt.Errorf("file too small to be valid image (< 4 bytes): %w", err)
	}

	switch {
	case bytes.Equal(magic, qcow2Magic):
		return FormatQCOW2, nil
	case bytes.Equal(magic, vmdkMagic):
		return FormatVMDK, nil
	}

	if _, err := f.Seek(510, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to seek to boot sector signature: %w", err)
	}

	sig := make([]byte, 2)
	if _, err := io.ReadFull(f, sig); err != nil {
		return "", fmt.Errorf("file too small for boot sector (< 512 bytes): %w", err)
	}

	if bytes.Equal(sig, mbrSignature) {
		return FormatRaw, nil
	}

	return "", fmt.Errorf("unsupported or invalid image: not qcow2 or vmdk and missing boot sector signature (0x55aa at offset 510)")
}

// VerifyFormat returns an error unless the image at filePath is in format want.
func VerifyFormat(filePath string, want Format) error {
	got, err := DetectImageFormat(filePath)
	if err != nil {
		return fmt.Errorf("failed to verify %s: %w", filePath, err)
	}
	if got != want {
		return fmt.Errorf("image %s is %s, expected %s", filePath, got, want)
	}
	return nil
}
