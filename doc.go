// Copyright (c) 2026 Bermoid Authors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package bermoid defines the connection contract between transport
// adapters and the Bermoid dispatcher.
//
// A transport parses the wire protocol and, per connection, invokes a
// [Handler] with a [Scope] plus a pair of event functions. Route
// matching, middleware, dependency resolution, response normalization
// and the server lifecycle all live in the subpackages of this module
// and are driven by the [app.App] dispatcher.
package bermoid
