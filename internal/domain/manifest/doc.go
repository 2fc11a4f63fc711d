// Package manifest provides the immutable descriptor types of the apps service.
//
// A Manifest describes an application as it is installed on the device. An
// UpdateManifest is published by a remote source and describes a candidate
// replacement, plus the package fields the update pipeline needs (package
// URL, version, sizes, digest).
//
// Both types are decoded once from a webmanifest-shaped JSON document and
// only expose accessors afterwards. Loosely typed members such as the
// developer attribution are kept as Value, a tagged JSON variant with
// structural equality that ignores object key order.
//
// Example Usage:
//
//	installed, err := manifest.ReadManifest("/data/apps/installed/clock/manifest.webmanifest")
//	update, err := manifest.ParseUpdateManifest(body)
//	if features, ok := update.B2GFeatures(); ok {
//		dev, present := features.Developer()
//	}
package manifest
