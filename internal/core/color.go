package core

import (
	"hash/fnv"
	"regexp"
	"strings"
)

var categoryPalette = []string{
	"#4e79a7", "#f28e2b", "#e15759", "#76b7b2", "#59a14f",
	"#edc948", "#b07aa1", "#ff9da7", "#9c755f", "#bab0ac",
	"#2f4b7c", "#a05195", "#d45087", "#f95d6a", "#ffa600",
}

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// CategoryColor picks a stable palette color for a category name, so
// categories created by sync get the same color on every instance.
func CategoryColor(name string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(strings.TrimSpace(name))))
	return categoryPalette[h.Sum32()%uint32(len(categoryPalette))]
}

func ValidColor(s string) bool { return hexColor.MatchString(s) }
