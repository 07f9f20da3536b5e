// Package config holds the run configuration of rankcrawl: the options
// collected from CLI flags, and the named ranking sources read from the
// .rankcrawl YAML file or built in.
package config
