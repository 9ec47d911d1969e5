package identity

import (
	"errors"
	"os"
	"strings"

	"github.com/benmeehan/killswitch/pkg/file"
	"github.com/google/uuid"
)

// Identity holds the device's unique identifier.
type Identity struct {
	ID string `json:"device_id,omitempty"`
}

// DeviceInfo manages the device identity and its associated file operations.
type DeviceInfo struct {
	DeviceInfoFile string
	Identity       Identity
	fileOps        file.FileOperations
}

// NewDeviceInfo initializes a new DeviceInfo instance.
func NewDeviceInfo(filePath string, fileOps file.FileOperations) *DeviceInfo {
	return &DeviceInfo{
		DeviceInfoFile: filePath,
		fileOps:        fileOps,
	}
}

// LoadDeviceInfo reads the device identity from the file. A device without an
// identity file gets a freshly generated ID which is written back so that the
// default hostname stays stable across restarts.
func (d *DeviceInfo) LoadDeviceInfo() error {
	err := d.fileOps.ReadJsonFile(d.DeviceInfoFile, &d.Identity)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	if d.Identity.ID != "" {
		return nil
	}

	d.Identity.ID = uuid.New().String()
	return d.fileOps.WriteJsonFile(d.DeviceInfoFile, d.Identity)
}

// GetDeviceID returns the current device ID.
func (d *DeviceInfo) GetDeviceID() string {
	return d.Identity.ID
}

// DefaultHostname builds the factory hostname, e.g. CYLENCE_3f2a9c.
func (d *DeviceInfo) DefaultHostname(prefix string, idLength int) string {
	id := strings.ReplaceAll(d.Identity.ID, "-", "")
	if len(id) > idLength {
		id = id[:idLength]
	}
	if id == "" {
		return prefix
	}
	return prefix + "_" + strings.ToLower(id)
}
