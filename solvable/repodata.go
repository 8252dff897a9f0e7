package solvable

import (
	"encoding/json"
	"fmt"

	"github.com/mambapkg/condaget/channel"
	"github.com/mambapkg/condaget/specs"
)

// repodataRecord mirrors the fields consumed from one entry of
// repodata.json's "packages"/"packages.conda" maps (external interface
// 6.1). noarch may be a bool or the strings "generic"/"python".
type repodataRecord struct {
	Name          string          `json:"name"`
	Version       string          `json:"version"`
	Build         string          `json:"build"`
	BuildNumber   int64           `json:"build_number"`
	Subdir        string          `json:"subdir"`
	Size          int64           `json:"size"`
	MD5           string          `json:"md5"`
	SHA256        string          `json:"sha256"`
	Noarch        json.RawMessage `json:"noarch"`
	License       string          `json:"license"`
	Timestamp     int64           `json:"timestamp"`
	Depends       []string        `json:"depends"`
	Constrains    []string        `json:"constrains"`
	TrackFeatures json.RawMessage `json:"track_features"`
}

type repodataJSON struct {
	Info struct {
		Subdir string `json:"subdir"`
	} `json:"info"`
	Packages      map[string]repodataRecord  `json:"packages"`
	PackagesConda map[string]repodataRecord  `json:"packages.conda"`
	Signatures    map[string]json.RawMessage `json:"signatures"`
}

// AddRepoFromRepodataJSON parses a repodata.json document into a new Repo.
// baseURL is the (channel, subdir) source URL used to build each package's
// PackageURL; channelID is the stable identifier recorded on every
// PackageInfo for the (channel_id, filename) dedup key.
func AddRepoFromRepodataJSON(data []byte, baseURL, channelID string, ch *channel.Channel, priority, subpriority int) (*Repo, error) {
	var doc repodataJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &specs.ParseError{Input: baseURL, Reason: "malformed repodata.json: " + err.Error()}
	}

	fallbackSubdir := doc.Info.Subdir
	repo := NewRepo(channelID, ch, priority, subpriority)

	addAll := func(m map[string]repodataRecord) error {
		for filename, rec := range m {
			info, err := recordToPackageInfo(filename, rec, baseURL, channelID, fallbackSubdir)
			if err != nil {
				return err
			}
			if sigs, ok := doc.Signatures[filename]; ok {
				info.Signatures = sigs
			}
			repo.AddPackage(info, TypePackage)
		}
		return nil
	}

	if err := addAll(doc.Packages); err != nil {
		return nil, err
	}
	if err := addAll(doc.PackagesConda); err != nil {
		return nil, err
	}

	return repo, nil
}

func recordToPackageInfo(filename string, rec repodataRecord, baseURL, channelID, fallbackSubdir string) (specs.PackageInfo, error) {
	v, err := specs.ParseVersion(rec.Version)
	if err != nil {
		return specs.PackageInfo{}, fmt.Errorf("package %s: %w", filename, err)
	}

	subdir := rec.Subdir
	if subdir == "" {
		subdir = fallbackSubdir
	}

	info := specs.PackageInfo{
		Name:          rec.Name,
		VersionString: rec.Version,
		Version:       v,
		BuildString:   rec.Build,
		BuildNumber:   rec.BuildNumber,
		ChannelID:     channelID,
		PackageURL:    baseURL + "/" + filename,
		Platform:      subdir,
		Filename:      filename,
		License:       rec.License,
		Size:          rec.Size,
		TimestampSec:  specs.NormalizeTimestamp(rec.Timestamp),
		MD5:           rec.MD5,
		SHA256:        rec.SHA256,
		Noarch:        parseNoarch(rec.Noarch),
		Dependencies:  rec.Depends,
		Constrains:    rec.Constrains,
		TrackFeatures: parseTrackFeatures(rec.TrackFeatures),
	}
	return info, nil
}

// parseNoarch accepts both the legacy boolean form (true == generic) and
// the string form ("generic"/"python").
func parseNoarch(raw json.RawMessage) specs.NoarchKind {
	if len(raw) == 0 {
		return specs.NoarchNo
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		if b {
			return specs.NoarchGeneric
		}
		return specs.NoarchNo
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch s {
		case "python":
			return specs.NoarchPython
		case "generic":
			return specs.NoarchGeneric
		}
	}
	return specs.NoarchNo
}

// parseTrackFeatures accepts both the string form ("a b c") and the array
// form (["a","b","c"]).
func parseTrackFeatures(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var arr []string
	if err := json.Unmarshal(raw, &arr); err == nil {
		return arr
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		var out []string
		cur := ""
		for _, r := range s {
			if r == ' ' {
				if cur != "" {
					out = append(out, cur)
					cur = ""
				}
				continue
			}
			cur += string(r)
		}
		if cur != "" {
			out = append(out, cur)
		}
		return out
	}
	return nil
}
