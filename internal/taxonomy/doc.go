// Package taxonomy holds the closed catalog of remote reference datasets
// (labels, countries, categories, ...) and the typed records each one decodes to.
//
// The catalog is fixed at compile time. Preference keys are derived from the
// descriptor name, so no registration step exists and keys cannot collide.
package taxonomy
