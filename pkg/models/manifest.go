package models

import (
	"time"

	"github.com/google/uuid"
)

// PackageManifest is the metadata table embedded in every package.
type PackageManifest struct {
	PackageID          uuid.UUID         `json:"package_id" validate:"required"`
	SchemaVersion      string            `json:"schema_version" validate:"required"`
	CreatedAtUtc       *time.Time        `json:"created_at_utc,omitempty"`
	DeviceID           string            `json:"device_id"`
	ExportedBy         string            `json:"exported_by"`
	AppVersion         string            `json:"app_version"`
	ContentChecksum    string            `json:"content_checksum" validate:"required,hexadecimal,len=64"`
	Signature          string            `json:"signature,omitempty"`
	VocabularyVersions map[string]string `json:"vocabulary_versions"`
	RecordCounts       map[string]int    `json:"record_counts,omitempty"`
}

// VocabularyDomainCheck is the compatibility verdict for one vocabulary.
type VocabularyDomainCheck struct {
	Domain         string `json:"domain"`
	PackageVersion string `json:"package_version"`
	ServerVersion  string `json:"server_version"`
	Compatible     bool   `json:"compatible"`
	Message        string `json:"message,omitempty"`
}

// VocabularyCompatibility aggregates the per-domain checks.
type VocabularyCompatibility struct {
	IsCompatible bool                    `json:"is_compatible"`
	Domains      []VocabularyDomainCheck `json:"domains"`
	Warnings     []string                `json:"warnings,omitempty"`
	Errors       []string                `json:"errors,omitempty"`
}
