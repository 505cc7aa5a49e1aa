// Package domain defines the core business types for the CAMPAIGNER
// email-marketing platform.
//
// Types in this package are pure value objects with no behavior, no database
// dependencies, and no HTTP concerns. They are the shared language between
// handlers, services, and the record store gateway.
//
// Rules for this package:
//   - No imports from other internal/ packages
//   - No store clients, no http.Request, no context.Context in struct fields
//   - JSON/dynamodbav tags are allowed (they're metadata, not behavior)
//   - Validation methods are allowed (they're pure functions on the type)
//   - Constants and enums belong here
package domain
