package config

import (
	"fmt"
	"strings"

	"gitlab.bluewillows.net/root/flarekeep/pkg/dnsapi"
)

// splitTrim splits s on sep, trims whitespace around each part, and drops
// parts that are empty after trimming.
func splitTrim(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseBool parses a boolean string, returning defaultValue on parse failure.
// Accepts: true/false, 1/0, yes/no, on/off (case-insensitive).
func parseBool(s string, defaultValue bool) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		return defaultValue
	}
}

// ParseDomainGroups parses the flat fallback form: a semicolon-separated
// string of comma-separated domain groups. "a.com,www.a.com;b.com" yields
// the groups {a.com, www.a.com} and {b.com}. Segments empty after trimming
// are dropped.
func ParseDomainGroups(s string) [][]string {
	var groups [][]string
	for _, seg := range strings.Split(s, ";") {
		domains := splitTrim(seg, ",")
		if len(domains) == 0 {
			continue
		}
		groups = append(groups, dedupe(domains))
	}
	return groups
}

// groupsFromFile converts the file form, one comma-separated group per
// list entry, into domain groups. An explicit entry that yields zero
// domains is malformed rather than dropped.
func groupsFromFile(entries []string) ([][]string, []error) {
	var groups [][]string
	var errs []error
	for i, entry := range entries {
		domains := splitTrim(entry, ",")
		if len(domains) == 0 {
			errs = append(errs, invalidKey(
				fmt.Sprintf("certificates.domains[%d]", i), entry, "group contains no domains"))
			continue
		}
		groups = append(groups, dedupe(domains))
	}
	return groups, errs
}

// parseRecordTypes normalizes a comma-separated record type list into an
// upper-cased, deduplicated set. An empty list falls back to A.
func parseRecordTypes(s string) []dnsapi.RecordType {
	parts := splitTrim(s, ",")
	if len(parts) == 0 {
		return []dnsapi.RecordType{dnsapi.RecordTypeA}
	}

	seen := make(map[dnsapi.RecordType]bool, len(parts))
	var out []dnsapi.RecordType
	for _, p := range parts {
		rt := dnsapi.NormalizeRecordType(p)
		if !seen[rt] {
			seen[rt] = true
			out = append(out, rt)
		}
	}
	return out
}

// parseSubdomains splits a comma-separated subdomain list, defaulting to
// the apex when empty.
func parseSubdomains(s string) []string {
	subs := splitTrim(s, ",")
	if len(subs) == 0 {
		return []string{"@"}
	}
	return dedupe(subs)
}

// ParseDDNSDomains parses the flat fallback form
// "domain:sub1,sub2;domain2:sub1". The record types apply globally to
// every parsed entry. Segments empty after trimming are dropped; a segment
// with an empty domain part is malformed.
func ParseDDNSDomains(s string, recordTypes []dnsapi.RecordType) ([]DDNSEntry, []error) {
	var entries []DDNSEntry
	var errs []error

	for _, seg := range strings.Split(s, ";") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}

		domainPart, subPart, _ := strings.Cut(seg, ":")
		domain := strings.TrimSpace(domainPart)
		if domain == "" {
			errs = append(errs, invalidKey(EnvDDNSDomains, seg, "entry has no domain"))
			continue
		}

		entries = append(entries, DDNSEntry{
			Domain:      domain,
			Subdomains:  parseSubdomains(subPart),
			RecordTypes: recordTypes,
		})
	}

	return entries, errs
}

// ddnsFromFile converts structured entries. Record types absent from an
// entry fall back to the supplied default set, so the flat
// DDNS_RECORD_TYPES setting still applies per the usual precedence.
func ddnsFromFile(domains []FileDDNSDomain, defaultTypes []dnsapi.RecordType) ([]DDNSEntry, []error) {
	var entries []DDNSEntry
	var errs []error

	for i, d := range domains {
		domain := strings.TrimSpace(d.Domain)
		if domain == "" {
			errs = append(errs, invalidKey(
				fmt.Sprintf("ddns.domains[%d].domain", i), d.Domain, "domain is required"))
			continue
		}

		types := defaultTypes
		if len(splitTrim(d.RecordTypes, ",")) > 0 {
			types = parseRecordTypes(d.RecordTypes)
		}

		entries = append(entries, DDNSEntry{
			Domain:      domain,
			Subdomains:  parseSubdomains(d.Subdomains),
			RecordTypes: types,
		})
	}

	return entries, errs
}

// deployFromFile validates deployment targets and indexes them by group
// key. Targets must reference a configured domain group.
func deployFromFile(targets []FileDeployTarget, groups [][]string) (map[string][]DeployTarget, []error) {
	if len(targets) == 0 {
		return nil, nil
	}

	keys := make(map[string]bool, len(groups))
	for _, g := range groups {
		keys[GroupKey(g)] = true
	}

	out := make(map[string][]DeployTarget)
	var errs []error

	for i, t := range targets {
		key := fmt.Sprintf("certificates.deploy[%d]", i)

		group := strings.TrimSpace(t.Group)
		switch {
		case group == "":
			errs = append(errs, invalidKey(key, t.Group, "group is required"))
			continue
		case !keys[group]:
			errs = append(errs, invalidKey(key, group, "group does not match any configured domain group"))
			continue
		}

		if strings.TrimSpace(t.Host) == "" {
			errs = append(errs, invalidKey(key, t.Host, "host is required"))
			continue
		}
		if strings.TrimSpace(t.User) == "" {
			errs = append(errs, invalidKey(key, t.User, "user is required"))
			continue
		}
		if strings.TrimSpace(t.RemoteDir) == "" {
			errs = append(errs, invalidKey(key, t.RemoteDir, "remote_dir is required"))
			continue
		}

		port := t.Port
		if port == 0 {
			port = DefaultDeployPort
		}

		out[group] = append(out[group], DeployTarget{
			Group:         group,
			Host:          strings.TrimSpace(t.Host),
			Port:          port,
			User:          strings.TrimSpace(t.User),
			KeyFile:       strings.TrimSpace(t.KeyFile),
			Password:      t.Password,
			RemoteDir:     strings.TrimSpace(t.RemoteDir),
			ReloadCommand: strings.TrimSpace(t.ReloadCommand),
		})
	}

	return out, errs
}

// dedupe drops duplicate strings, preserving first-seen order.
func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
