package util

// PrefixConfig builds the dotted flag name for option under prefix. Top-level
// configs register with an empty prefix and get the bare option name.
func PrefixConfig(prefix string, option string) string {
	if len(prefix) > 0 {
		return prefix + "." + option
	}

	return option
}
