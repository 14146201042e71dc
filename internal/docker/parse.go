package docker

import "strings"

// Listing lines that do not split into exactly two fields are skipped, which
// also drops the trailing empty line of the CLI output.

func ParseContainerList(out string) []ContainerEntry {
	var entries []ContainerEntry
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Split(line, ":")
		if len(fields) != 2 {
			continue
		}
		entries = append(entries, ContainerEntry{ID: fields[0], Name: fields[1]})
	}
	return entries
}

func ParseImageList(out string) []ImageEntry {
	var entries []ImageEntry
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Split(line, " ")
		if len(fields) != 2 {
			continue
		}
		entries = append(entries, ImageEntry{ID: fields[0], RepoTag: fields[1]})
	}
	return entries
}

func ParsePortList(out string) []PortEntry {
	var entries []PortEntry
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Split(line, " -> ")
		if len(fields) != 2 {
			continue
		}
		entries = append(entries, PortEntry{Inner: fields[0], Outer: fields[1]})
	}
	return entries
}
