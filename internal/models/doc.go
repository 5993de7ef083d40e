// Package models holds the built-in plugins. Importing it registers them with
// the registry; a directory named after the plugin under the plugins root
// makes it loadable.
package models
