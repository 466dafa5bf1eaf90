// Package file provides a TOML file-based configuration store. The
// config lives in the arkiv home directory alongside dataset state,
// and nested TOML tables are flattened into dot-notation keys.
package file
