// Package testutil provides utilities for testing dotapply components.
//
// Key components:
//   - TestEnvironment: temp or in-memory home and dotfiles root with an explicit Paths
//   - MemoryFS: in-memory filesystem with real symlink semantics
//   - ScriptedPrompter: queued answers for every interactive prompt
//   - FakeOracle: in-memory stand-in for the age binaries
//   - MockPackageManager: testify mock of the package manager capability
//
// Usage guidelines:
//   - Prefer EnvMemoryOnly; use EnvIsolated where real OS semantics matter
//   - Tests importing testutil live in external _test packages
package testutil
