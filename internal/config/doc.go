// Package config provides YAML configuration loading and validation for the recorder.
// Values not present in the file keep the defaults from Default.
package config
