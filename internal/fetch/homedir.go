package fetch

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// DownloadDir returns the directory downloads default to: the real user's
// Downloads folder when it exists, otherwise their home. Writing to a device
// needs elevation, so the process often runs under sudo and os.UserHomeDir
// would point at root's home; the fallbacks below recover the invoking
// user's.
func DownloadDir() string {
	home := homeDirectory()
	if dl := filepath.Join(home, "Downloads"); isDir(dl) {
		return dl
	}
	return home
}

func homeDirectory() string {
	if home, err := os.UserHomeDir(); err == nil && home != "" && isRealHomeDir(home) {
		return home
	}

	switch runtime.GOOS {
	case "linux":
		if home := sudoUserHome(); home != "" {
			return home
		}
	case "darwin":
		if home := darwinUserHome(); home != "" {
			return home
		}
	case "windows":
		if home := windowsUserHome(); home != "" {
			return home
		}
	}

	for _, env := range []string{"HOME", "USERPROFILE"} {
		if home := os.Getenv(env); home != "" {
			return home
		}
	}
	return os.TempDir()
}

// isRealHomeDir filters out root's home when running under sudo: a usable
// home has the usual user folders in it.
func isRealHomeDir(dir string) bool {
	if !isDir(dir) {
		return false
	}
	for _, subdir := range []string{"Downloads", "Documents", "Desktop"} {
		if isDir(filepath.Join(dir, subdir)) {
			return true
		}
	}
	return false
}

func isDir(path string) bool {
	stat, err := os.Stat(path)
	return err == nil && stat.IsDir()
}

// sudoUserHome resolves the invoking user's home through passwd when the
// process was elevated with sudo or pkexec.
func sudoUserHome() string {
	for _, env := range []string{"SUDO_USER", "PKEXEC_UID"} {
		key := os.Getenv(env)
		if key == "" {
			continue
		}
		out, err := exec.Command("getent", "passwd", key).Output()
		if err != nil {
			continue
		}
		fields := strings.Split(strings.TrimSpace(string(out)), ":")
		if len(fields) >= 6 && fields[5] != "" {
			return fields[5]
		}
	}
	return ""
}

func darwinUserHome() string {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		out, err := exec.Command("dscl", ".", "read", "/Users/"+sudoUser, "NFSHomeDirectory").Output()
		if err == nil {
			parts := strings.Fields(string(out))
			if len(parts) >= 2 {
				return parts[1]
			}
		}
	}
	if entries, err := os.ReadDir("/Users"); err == nil {
		for _, entry := range entries {
			if !entry.IsDir() || entry.Name() == "Shared" || entry.Name() == "Guest" {
				continue
			}
			if home := filepath.Join("/Users", entry.Name()); isRealHomeDir(home) {
				return home
			}
		}
	}
	return ""
}

func windowsUserHome() string {
	username := os.Getenv("USERNAME")
	if username == "" {
		if out, err := exec.Command("whoami").Output(); err == nil {
			username = strings.TrimSpace(string(out))
			if parts := strings.Split(username, "\\"); len(parts) > 1 {
				username = parts[1]
			}
		}
	}
	if username == "" {
		return ""
	}
	home := filepath.Join(os.Getenv("SystemDrive")+"\\", "Users", username)
	if isRealHomeDir(home) {
		return home
	}
	return ""
}
