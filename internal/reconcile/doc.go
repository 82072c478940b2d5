// Package reconcile converges a GitLab instance toward a directory snapshot.
//
// A run is split into three phases that always execute in order:
//
//   - Users: existing accounts are listed and classified against the
//     snapshot. Missing accounts are created, accounts without a directory
//     counterpart are blocked and demoted, and the rest are updated.
//   - Groups: groups are created when they have members (or empty groups
//     are allowed), path drift is corrected, and extra groups are deleted
//     only when they are empty on both sides and hold no projects or
//     subgroups.
//   - Memberships: for every surviving group, members are added at the
//     configured access level or removed so that the platform membership
//     matches the directory group.
//
// Every mutating call goes through an Executor, which suppresses calls in
// dry-run mode, substitutes simulated identifiers for entities that would
// have been created, and spaces real calls by a fixed cooldown.
//
// Built-in platform accounts and groups (see ProtectedSet) are never
// touched, whatever the ignore lists say.
package reconcile
