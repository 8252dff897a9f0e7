package transaction

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mambapkg/condaget/specs"
)

// repodataRecord is info/repodata_record.json: the package's index.json
// content overlaid with fields only the solver knows (url, channel,
// size if index.json omitted it), per spec.md §4.G step 3 / §6.1's
// field list.
type repodataRecord map[string]any

// writeRepodataRecord reads pkgDir/info/index.json (written by the
// archive's own info/ directory), overlays it with info's solver-known
// fields, and writes the merged result to pkgDir/info/repodata_record.json.
func writeRepodataRecord(pkgDir string, info specs.PackageInfo) error {
	record := repodataRecord{}

	indexPath := filepath.Join(pkgDir, "info", "index.json")
	if data, err := os.ReadFile(indexPath); err == nil {
		if err := json.Unmarshal(data, &record); err != nil {
			return fmt.Errorf("parsing %s: %w", indexPath, err)
		}
	}

	if _, ok := record["size"]; !ok {
		if fi, err := os.Stat(filepath.Join(filepath.Dir(pkgDir), info.Filename)); err == nil {
			record["size"] = fi.Size()
		} else {
			record["size"] = info.Size
		}
	}
	record["name"] = info.Name
	record["version"] = info.VersionString
	record["build"] = info.BuildString
	record["build_number"] = info.BuildNumber
	record["channel"] = info.ChannelID
	record["url"] = info.PackageURL
	record["subdir"] = info.Platform
	record["fn"] = info.Filename
	if info.MD5 != "" {
		record["md5"] = info.MD5
	}
	if info.SHA256 != "" {
		record["sha256"] = info.SHA256
	}
	if info.Noarch != specs.NoarchNo {
		record["noarch"] = info.Noarch.String()
	}
	if len(info.Dependencies) > 0 {
		record["depends"] = info.Dependencies
	}
	if len(info.Constrains) > 0 {
		record["constrains"] = info.Constrains
	}

	out, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}
	infoDir := filepath.Join(pkgDir, "info")
	if err := os.MkdirAll(infoDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(infoDir, "repodata_record.json"), out, 0o644)
}
