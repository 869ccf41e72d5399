package api

import (
	"repack/internal/convert"
	"repack/internal/deps"
	"repack/internal/formats"
	"repack/internal/history"
	"repack/internal/preflight"
)

// UploadResponse describes a stored upload.
type UploadResponse struct {
	Filename     string `json:"filename"`
	OriginalName string `json:"original_name"`
	Path         string `json:"path"`
	Type         string `json:"type"`
	Size         int64  `json:"size"`
	Extension    string `json:"extension"`
	Format       string `json:"format,omitempty"`
}

// ConvertRequest names an uploaded file and the wanted container format.
type ConvertRequest struct {
	FilePath     string `json:"file_path"`
	TargetFormat string `json:"target_format"`
}

// DownloadAllRequest lists output files to bundle into one ZIP.
type DownloadAllRequest struct {
	Filenames []string `json:"filenames"`
}

// Format is the transport form of a registry descriptor.
type Format struct {
	Token       string   `json:"token"`
	Extension   string   `json:"extension"`
	Aliases     []string `json:"aliases,omitempty"`
	Direction   string   `json:"direction"`
	CanExtract  bool     `json:"can_extract"`
	CanPack     bool     `json:"can_pack"`
	Available   bool     `json:"available"`
	Dependency  string   `json:"dependency,omitempty"`
	Detail      string   `json:"detail,omitempty"`
	Description string   `json:"description,omitempty"`
}

// FormatsResponse lists every known format.
type FormatsResponse struct {
	Formats []Format `json:"formats"`
}

// FromDescriptor converts a registry descriptor for transport.
func FromDescriptor(d formats.Descriptor) Format {
	return Format{
		Token:       d.Token,
		Extension:   d.Extension,
		Aliases:     d.Aliases,
		Direction:   d.Direction.String(),
		CanExtract:  d.Direction.CanExtract(),
		CanPack:     d.Direction.CanPack(),
		Available:   d.Availability == formats.Available,
		Dependency:  d.Dependency,
		Detail:      d.Detail,
		Description: d.Description,
	}
}

// DependencyStatus reports an external binary.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Path        string `json:"path,omitempty"`
	Description string `json:"description,omitempty"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// FromDependency converts a dependency probe for transport.
func FromDependency(s deps.Status) DependencyStatus {
	return DependencyStatus{
		Name:        s.Name,
		Command:     s.Command,
		Path:        s.Path,
		Description: s.Description,
		Optional:    s.Optional,
		Available:   s.Available,
		Detail:      s.Detail,
	}
}

// StagingSummary counts staging areas on disk.
type StagingSummary struct {
	Areas  int    `json:"areas"`
	Active int    `json:"active"`
	Bytes  int64  `json:"bytes"`
	Size   string `json:"size"`
}

// StatusResponse summarizes service health.
type StatusResponse struct {
	Pool         convert.Stats      `json:"pool"`
	Dependencies []DependencyStatus `json:"dependencies"`
	Checks       []preflight.Result `json:"checks"`
	Staging      StagingSummary     `json:"staging"`
	History      *history.Summary   `json:"history,omitempty"`
}

// HistoryResponse lists history records newest first.
type HistoryResponse struct {
	Items []history.Record `json:"items"`
}
