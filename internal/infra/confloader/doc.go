// Package confloader loads configuration with koanf and watches the
// configuration file with fsnotify.
//
// Sources are applied in order, later ones overriding earlier ones:
//
//  1. Defaults loaded with LoadMap
//  2. The YAML configuration file
//  3. Environment variables (METASTORE_ prefix)
//
// In variable names a double underscore separates nesting levels and a
// single underscore stays part of the key, so METASTORE_STORAGE__META_DIR
// sets storage.meta_dir.
package confloader
