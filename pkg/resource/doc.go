// Package resource defines the installable resources tracked by the installer.
//
// A Resource is one version of one installable artifact. Its content (URL,
// digest, data file) never changes after registration, while its state and
// its two attribute bags are updated by the tasks that drive installation.
// Untyped resources (types "file" and "properties") are turned into typed
// resources by cloning them with a TransformationResult.
package resource
