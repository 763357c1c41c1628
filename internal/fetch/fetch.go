// Package fetch lists and downloads release disk images from a GitHub
// project so the user does not have to hunt for an ISO by hand.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/google/go-github/v55/github"
	log "github.com/sirupsen/logrus"
)

// Asset is a downloadable release image.
type Asset struct {
	Version string
	Name    string
	URL     string
	Size    int64
}

var imageSuffixes = []string{".iso", ".img", ".raw", ".iso.gz", ".img.gz", ".iso.xz", ".img.xz", ".raw.xz"}

// IsImageAsset reports whether the asset name looks like a writable disk
// image.
func IsImageAsset(name string) bool {
	lower := strings.ToLower(name)
	for _, suffix := range imageSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

// ListAssets fetches the releases of owner/repo and returns their disk-image
// assets, newest version first. Pre-releases (rc, beta) and tags that do not
// parse as semver are skipped.
func ListAssets(ctx context.Context, owner, repo string) ([]Asset, error) {
	client := github.NewClient(nil)
	releases, _, err := client.Repositories.ListReleases(ctx, owner, repo, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list releases for %s/%s: %w", owner, repo, err)
	}
	return collectAssets(releases), nil
}

// collectAssets filters and orders release assets. Split out so the
// selection rules are testable without the network.
func collectAssets(releases []*github.RepositoryRelease) []Asset {
	type versioned struct {
		version *semver.Version
		assets  []Asset
	}
	var entries []versioned

	for _, rel := range releases {
		tag := rel.GetTagName()
		lower := strings.ToLower(tag)
		if strings.Contains(lower, "rc") || strings.Contains(lower, "beta") {
			continue
		}
		v, err := semver.NewVersion(tag)
		if err != nil {
			continue // skip invalid semver
		}
		var assets []Asset
		for _, asset := range rel.Assets {
			name := asset.GetName()
			if !IsImageAsset(name) {
				continue
			}
			assets = append(assets, Asset{
				Version: tag,
				Name:    name,
				URL:     asset.GetBrowserDownloadURL(),
				Size:    int64(asset.GetSize()),
			})
		}
		if len(assets) > 0 {
			entries = append(entries, versioned{version: v, assets: assets})
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].version.GreaterThan(entries[j].version)
	})

	var out []Asset
	for _, e := range entries {
		out = append(out, e.assets...)
	}
	return out
}

// CachedAssets returns the cached asset list if one exists, otherwise
// fetches and caches it. The cache lives in the user cache dir and is best
// effort: a broken cache file is ignored, a failed write only logged.
func CachedAssets(ctx context.Context, owner, repo string) ([]Asset, error) {
	cacheFile := cachePath(owner, repo)
	if data, err := os.ReadFile(cacheFile); err == nil {
		var assets []Asset
		if err := json.Unmarshal(data, &assets); err == nil {
			return assets, nil
		}
	}

	assets, err := ListAssets(ctx, owner, repo)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(assets); err == nil {
		_ = os.MkdirAll(filepath.Dir(cacheFile), 0755)
		if err := os.WriteFile(cacheFile, data, 0644); err != nil {
			log.Warnf("failed to cache release list: %v", err)
		}
	}
	return assets, nil
}

func cachePath(owner, repo string) string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "inferno", fmt.Sprintf("%s_%s_releases.json", owner, repo))
}

// Download streams the asset to destDir, reporting progress through
// onProgress (written and total bytes; total may be 0 when the server does
// not say). Returns the path of the downloaded file. A partial download is
// removed on error or cancellation.
func Download(ctx context.Context, asset Asset, destDir string, onProgress func(written, total int64)) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset.URL, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download %s: %w", asset.Name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download %s: unexpected status %s", asset.Name, resp.Status)
	}

	total := asset.Size
	if total == 0 && resp.ContentLength > 0 {
		total = resp.ContentLength
	}

	dest := filepath.Join(destDir, asset.Name)
	f, err := os.Create(dest)
	if err != nil {
		return "", err
	}

	var written int64
	buf := make([]byte, 1024*1024)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				f.Close()
				os.Remove(dest)
				return "", werr
			}
			written += int64(n)
			if onProgress != nil {
				onProgress(written, total)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			f.Close()
			os.Remove(dest)
			return "", fmt.Errorf("download interrupted: %w", rerr)
		}
	}
	if err := f.Close(); err != nil {
		os.Remove(dest)
		return "", err
	}
	log.WithFields(log.Fields{"asset": asset.Name, "bytes": written}).Info("download complete")
	return dest, nil
}
