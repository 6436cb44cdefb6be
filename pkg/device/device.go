package device

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/shirou/gopsutil/mem"

	"github.com/pathlearn/fedclient/internal/core/models"
)

const deviceIDFile = ".device_id"

func getSystemInfo() (string, error) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("wmic", "csproduct", "get", "UUID")
	case "darwin":
		cmd = exec.Command("ioreg", "-d2", "-c", "IOPlatformExpertDevice")
	default: // Linux
		cmd = exec.Command("cat", "/etc/machine-id")
	}

	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("failed to get system info: %w", err)
	}
	return string(output), nil
}

func GenerateDeviceID() (string, error) {
	info, err := getSystemInfo()
	if err != nil {
		return "", err
	}

	hash := sha256.Sum256([]byte(info))
	return hex.EncodeToString(hash[:]), nil
}

func GetDeviceIDPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".fedclient", deviceIDFile), nil
}

func SaveDeviceID(deviceID string) error {
	path, err := GetDeviceIDPath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	return os.WriteFile(path, []byte(deviceID), 0o600)
}

// VerifyDeviceID returns the stored device ID, generating and persisting a
// fresh one when missing or malformed.
func VerifyDeviceID() (string, error) {
	path, err := GetDeviceIDPath()
	if err != nil {
		return "", fmt.Errorf("failed to get device ID path: %w", err)
	}

	deviceID, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			newID, err := GenerateDeviceID()
			if err != nil {
				return "", err
			}
			if err := SaveDeviceID(newID); err != nil {
				return "", err
			}
			return newID, nil
		}
		return "", err
	}

	storedID := string(deviceID)
	if !IsValidSHA256(storedID) {
		newID, err := GenerateDeviceID()
		if err != nil {
			return "", err
		}
		if err := SaveDeviceID(newID); err != nil {
			return "", err
		}
		return newID, nil
	}

	return storedID, nil
}

// IsValidSHA256 checks if a string is a valid SHA256 hash
func IsValidSHA256(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, r := range s {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')) {
			return false
		}
	}
	return true
}

// Info reports best-effort device diagnostics for submission payloads.
// Fields that cannot be determined read "unknown", never an error.
func Info() models.DeviceInfo {
	info := models.DeviceInfo{
		DeviceID:  "unknown",
		UserAgent: fmt.Sprintf("fedclient/%s (%s; %s)", runtime.Version(), runtime.GOOS, runtime.GOARCH),
		Memory:    "unknown",
		Cores:     strconv.Itoa(runtime.NumCPU()),
	}

	if id, err := VerifyDeviceID(); err == nil {
		info.DeviceID = id
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		info.Memory = strconv.FormatUint(vm.Total, 10)
	}

	return info
}
