package integrity

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/Ramsey-B/willow/pkg/models"
)

func canonicalVersion(v string) string {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

// CheckVocabularyCompatibility compares the vocabulary versions a package
// was exported with against the server's. A major difference is
// incompatible, a minor difference is a warning, a patch difference is
// ignored. Domains unknown to the server only warn.
func CheckVocabularyCompatibility(packageVersions, serverVersions map[string]string) models.VocabularyCompatibility {
	result := models.VocabularyCompatibility{IsCompatible: true, Domains: []models.VocabularyDomainCheck{}}

	domains := make([]string, 0, len(packageVersions))
	for d := range packageVersions {
		domains = append(domains, d)
	}
	sort.Strings(domains)

	for _, domain := range domains {
		check := models.VocabularyDomainCheck{
			Domain:         domain,
			PackageVersion: packageVersions[domain],
			ServerVersion:  serverVersions[domain],
			Compatible:     true,
		}

		pv := canonicalVersion(check.PackageVersion)
		sv := canonicalVersion(check.ServerVersion)
		switch {
		case check.ServerVersion == "":
			check.Message = "vocabulary not known to the server"
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %s", domain, check.Message))
		case !semver.IsValid(pv):
			check.Compatible = false
			check.Message = fmt.Sprintf("package version %q is not a semantic version", check.PackageVersion)
		case !semver.IsValid(sv):
			check.Compatible = false
			check.Message = fmt.Sprintf("server version %q is not a semantic version", check.ServerVersion)
		case semver.Major(pv) != semver.Major(sv):
			check.Compatible = false
			check.Message = fmt.Sprintf("major version mismatch: package %s, server %s", check.PackageVersion, check.ServerVersion)
		case semver.MajorMinor(pv) != semver.MajorMinor(sv):
			check.Message = fmt.Sprintf("minor version mismatch: package %s, server %s", check.PackageVersion, check.ServerVersion)
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %s", domain, check.Message))
		}

		if !check.Compatible {
			result.IsCompatible = false
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", domain, check.Message))
		}
		result.Domains = append(result.Domains, check)
	}
	return result
}
