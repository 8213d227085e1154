// Package config loads runtime settings from the environment.
package config
