// Package harness drives the engine end to end from declarative YAML
// scenarios: it builds syntax trees, compiles them through the tier
// manager, scripts calls against them, and renders a deterministic
// trace of results and final tier state for golden comparison.
//
// The package also hosts the reference tree-walking evaluator. The
// engine treats evaluation as an external capability; the harness
// evaluator exists so scenarios and tests can run without a front end.
package harness
