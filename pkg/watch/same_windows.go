package watch

import "strings"

func sameFile(a, b string) bool { return strings.EqualFold(a, b) }
